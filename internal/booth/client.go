// Package booth implements the rate-limited fetch pipeline against booth.pm.
// The marketplace exposes no documented query API: item detail is fetched
// from a semi-structured JSON endpoint with an HTML fallback, search is HTML
// scraping only.
package booth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/boothhunter/boothhunter/internal/models"
	"github.com/boothhunter/boothhunter/internal/parser"
	"github.com/boothhunter/boothhunter/internal/ratelimit"
)

const (
	defaultBaseURL = "https://booth.pm"
	userAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	requestTimeout  = 15 * time.Second
	maxRedirects    = 5
	defaultInterval = 1000 * time.Millisecond
)

// Client is the shared fetch client. One instance serves all callers; the
// rate limiter and cookie jar are per instance, so pacing and session state
// span every operation issued through it.
type Client struct {
	httpClient *http.Client
	limiter    ratelimit.Limiter
	baseURL    string
	logger     *slog.Logger
}

// NewClient builds the production client. Intervals below the default are
// raised to it, so misconfiguration cannot pace requests faster than upstream
// tolerates.
func NewClient(logger *slog.Logger, interval time.Duration) *Client {
	if interval < defaultInterval {
		interval = defaultInterval
	}

	// The jar never fails with a nil PublicSuffixList.
	jar, _ := cookiejar.New(nil)

	httpClient := &http.Client{
		Timeout: requestTimeout,
		Jar:     jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}

	return newClient(httpClient, defaultBaseURL, ratelimit.NewIntervalLimiter(interval), logger)
}

// newClient lets tests inject the HTTP client, base URL and limiter.
func newClient(httpClient *http.Client, baseURL string, limiter ratelimit.Limiter, logger *slog.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		limiter:    limiter,
		baseURL:    baseURL,
		logger:     logger.With("component", "booth_client"),
	}
}

// Search fetches one page of search or browse results. There is no JSON
// search endpoint, so this is always an HTML scrape; any failure is terminal
// for the call.
func (c *Client) Search(ctx context.Context, params models.SearchParams) (*models.SearchResult, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	page := clampPage(params.Page)
	url := buildSearchURL(c.baseURL, params, page)
	c.logger.Info("searching", "url", url, "page", page)

	body, err := c.get(ctx, url, "")
	if err != nil {
		return nil, err
	}

	items, totalCount, err := parser.ParseSearchHTML(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: parsing search page: %v", ErrNotFound, err)
	}
	if items == nil {
		items = []models.Item{}
	}

	return &models.SearchResult{
		Items:       items,
		TotalCount:  totalCount,
		CurrentPage: page,
	}, nil
}

// GetItem fetches a single item by id, trying the JSON endpoint first. A 429
// on the JSON attempt is terminal: upstream is asking for back-off, and a
// second request would compound the problem. Every other JSON failure is
// logged and recovered through exactly one HTML fetch.
func (c *Client) GetItem(ctx context.Context, itemID int64) (*models.Item, error) {
	if itemID < 0 {
		return nil, fmt.Errorf("%w: negative item id", ErrMalformedInput)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	item, err := c.getItemJSON(ctx, itemID)
	if err == nil {
		return item, nil
	}
	if errors.Is(err, ErrRateLimited) {
		return nil, err
	}
	c.logger.Warn("json item fetch failed, falling back to html", "item_id", itemID, "error", err)

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	return c.getItemHTML(ctx, itemID)
}

func (c *Client) getItemJSON(ctx context.Context, itemID int64) (*models.Item, error) {
	url := fmt.Sprintf("%s/ja/items/%d.json", c.baseURL, itemID)

	body, err := c.get(ctx, url, "application/json")
	if err != nil {
		return nil, err
	}

	item, err := parser.ParseItemJSON(body)
	if err != nil {
		return nil, fmt.Errorf("parsing item %d json: %w", itemID, err)
	}

	return item, nil
}

func (c *Client) getItemHTML(ctx context.Context, itemID int64) (*models.Item, error) {
	url := fmt.Sprintf("%s/ja/items/%d", c.baseURL, itemID)

	body, err := c.get(ctx, url, "")
	if err != nil {
		return nil, err
	}

	item, err := parser.ParseItemDetailHTML(bytes.NewReader(body), itemID)
	if err != nil {
		return nil, fmt.Errorf("%w: item %d yields no usable document", ErrNotFound, itemID)
	}

	return item, nil
}

// get performs one GET and classifies the response by status before the body
// is consumed: 429 is rate limiting, any other non-2xx is a not-found.
func (c *Client) get(ctx context.Context, url, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("User-Agent", userAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d", ErrNotFound, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrTransport, err)
	}

	return body, nil
}
