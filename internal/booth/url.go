package booth

import (
	"fmt"
	"strings"

	"github.com/boothhunter/boothhunter/internal/models"
)

const (
	maxPage        = 10_000
	maxCategoryLen = 100
	maxPriceBound  = 999_999_999
)

// validSorts is the allowlist of sort values booth.pm accepts. Anything else
// is dropped silently so a stale UI value cannot inject query parameters.
var validSorts = map[string]bool{
	"new":        true,
	"popular":    true,
	"price_asc":  true,
	"price_desc": true,
}

// clampPage normalizes the requested page into [1, maxPage].
func clampPage(page int) int {
	if page < 1 {
		return 1
	}
	if page > maxPage {
		return maxPage
	}
	return page
}

// validateParams runs the pre-flight input checks. Failures never reach the
// network.
func validateParams(params models.SearchParams) error {
	if len(params.Category) > maxCategoryLen {
		return fmt.Errorf("%w: category longer than %d characters", ErrMalformedInput, maxCategoryLen)
	}
	if params.PriceMin != nil && (*params.PriceMin < 0 || *params.PriceMin > maxPriceBound) {
		return fmt.Errorf("%w: price_min out of range", ErrMalformedInput)
	}
	if params.PriceMax != nil && (*params.PriceMax < 0 || *params.PriceMax > maxPriceBound) {
		return fmt.Errorf("%w: price_max out of range", ErrMalformedInput)
	}
	return nil
}

// buildSearchURL constructs the search or browse URL for validated params.
// Base form precedence: category browse without query term, category browse
// with query term, generic item search.
func buildSearchURL(baseURL string, params models.SearchParams, page int) string {
	keyword := strings.TrimSpace(params.Keyword)

	var b strings.Builder
	b.WriteString(baseURL)
	if params.Category != "" {
		b.WriteString("/ja/browse/")
		b.WriteString(encodeQueryComponent(params.Category))
		if keyword == "" {
			fmt.Fprintf(&b, "?page=%d", page)
		} else {
			fmt.Fprintf(&b, "?q=%s&page=%d", encodeQueryComponent(keyword), page)
		}
	} else {
		fmt.Fprintf(&b, "/ja/items?q=%s&page=%d", encodeQueryComponent(keyword), page)
	}

	if validSorts[params.Sort] {
		b.WriteString("&sort=")
		b.WriteString(params.Sort)
	}

	if params.OnlyFree {
		// only_free overrides any explicit bounds.
		b.WriteString("&max_price=0")
	} else {
		if params.PriceMin != nil {
			fmt.Fprintf(&b, "&min_price=%d", *params.PriceMin)
		}
		if params.PriceMax != nil {
			fmt.Fprintf(&b, "&max_price=%d", *params.PriceMax)
		}
	}

	return b.String()
}

const upperhex = "0123456789ABCDEF"

// encodeQueryComponent percent-encodes every byte of the UTF-8 encoding
// except RFC 3986 unreserved characters. Stricter than url.QueryEscape,
// which leaves '+' ambiguity and sub-delims behind; here an unescaped '&',
// '=' or '#' inside a keyword would corrupt the query.
func encodeQueryComponent(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9',
			c == '-', c == '_', c == '.', c == '~':
			b.WriteByte(c)
		default:
			b.WriteByte('%')
			b.WriteByte(upperhex[c>>4])
			b.WriteByte(upperhex[c&0x0f])
		}
	}
	return b.String()
}
