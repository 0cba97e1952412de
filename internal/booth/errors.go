package booth

import "errors"

// The closed error set crossing the client boundary. Callers classify with
// errors.Is; everything else carried by the wrapped chain is diagnostic only.
var (
	// ErrTransport covers network and IO level failures of the underlying
	// request.
	ErrTransport = errors.New("request to booth.pm failed")

	// ErrMalformedInput is returned before any network call when the search
	// parameters fail pre-flight validation.
	ErrMalformedInput = errors.New("invalid search input")

	// ErrNotFound covers non-2xx responses and detail documents that cannot
	// yield a usable item.
	ErrNotFound = errors.New("item not found")

	// ErrRateLimited is returned when booth.pm answers 429. The caller owns
	// any retry policy; the client never retries a rate-limited request.
	ErrRateLimited = errors.New("rate limited by booth.pm")
)
