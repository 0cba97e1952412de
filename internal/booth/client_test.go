package booth

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boothhunter/boothhunter/internal/models"
	"github.com/boothhunter/boothhunter/internal/ratelimit"
)

type noopLimiter struct{}

func (noopLimiter) Wait(context.Context) error { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testClient(serverURL string) *Client {
	return newClient(http.DefaultClient, serverURL, noopLimiter{}, testLogger())
}

const searchFixture = `<!DOCTYPE html>
<html><head><title>検索結果</title></head><body>
<div class="u-tpg-caption1">1,234件の商品が見つかりました</div>
<ul>
<li class="item-card" data-product-id="111" data-product-name="Alpha Hat" data-product-price="1500">
  <a class="js-thumbnail-image" data-original="https://img.example/111.jpg"></a>
  <div class="item-card__shop-name">Alpha Shop</div>
  <a class="item-card__category-anchor">3Dモデル</a>
</li>
<li class="item-card" data-product-id="222" data-product-price="0">
  <div class="item-card__title"><a>Beta Cape</a></div>
</li>
<li class="item-card" data-product-id="333" data-product-name="Gamma Boots">
</li>
<li class="item-card" data-product-id="444">
  <!-- no name anywhere: skipped -->
</li>
</ul>
</body></html>`

const detailFixture = `<!DOCTYPE html>
<html><body>
<h2 class="u-tpg-title2">Widget Deluxe</h2>
<div class="item-price"><span class="u-tpg-body1">¥ 1,200</span></div>
<div class="u-mb-400"><div class="u-tpg-body1">A fine widget.</div></div>
<div class="item-gallery">
  <img data-origin="https://img.example/full.png" src="https://img.example/lazy.png">
  <img src="https://img.example/second.png">
</div>
<div class="shop-name">Widget Works</div>
<div class="item-tag"><a>tag-one</a><a>tag-two</a></div>
<div class="item-category"><a>小物</a></div>
</body></html>`

func TestSearchEndToEnd(t *testing.T) {
	var gotPath atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath.Store(r.URL.String())
		io.WriteString(w, searchFixture)
	}))
	defer server.Close()

	c := testClient(server.URL)
	result, err := c.Search(context.Background(), models.SearchParams{Keyword: "widget", Page: 2})
	require.NoError(t, err)

	assert.Equal(t, "/ja/items?q=widget&page=2", gotPath.Load())
	assert.Equal(t, 2, result.CurrentPage)

	require.Len(t, result.Items, 3)
	assert.Equal(t, int64(111), result.Items[0].ID)
	assert.Equal(t, "Alpha Hat", result.Items[0].Name)
	assert.Equal(t, int64(1500), result.Items[0].Price)
	assert.Equal(t, []string{"https://img.example/111.jpg"}, result.Items[0].Images)
	assert.Equal(t, "Alpha Shop", result.Items[0].ShopName)

	assert.Equal(t, int64(222), result.Items[1].ID)
	assert.Equal(t, "Beta Cape", result.Items[1].Name, "falls back to title anchor text")

	assert.Equal(t, int64(333), result.Items[2].ID)
	assert.Equal(t, "https://booth.pm/ja/items/333", result.Items[2].URL)

	require.NotNil(t, result.TotalCount)
	assert.Equal(t, int64(1234), *result.TotalCount)
}

func TestSearchRateLimitedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := testClient(server.URL).Search(context.Background(), models.SearchParams{Keyword: "x"})
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestSearchNonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := testClient(server.URL).Search(context.Background(), models.SearchParams{Keyword: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSearchMalformedInputSkipsNetwork(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))
	defer server.Close()

	big := int64(1_000_000_000)
	_, err := testClient(server.URL).Search(context.Background(), models.SearchParams{
		Keyword:  "x",
		PriceMax: &big,
	})
	assert.ErrorIs(t, err, ErrMalformedInput)
	assert.Zero(t, requests.Load(), "validation failures must not reach the network")
}

func TestGetItemJSONFirst(t *testing.T) {
	var jsonRequests, htmlRequests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ja/items/42.json":
			jsonRequests.Add(1)
			assert.Equal(t, "application/json", r.Header.Get("Accept"))
			io.WriteString(w, `{"id":42,"name":"Widget","price":"¥500","images":[{"resized":"http://x/r.png"}]}`)
		default:
			htmlRequests.Add(1)
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	item, err := testClient(server.URL).GetItem(context.Background(), 42)
	require.NoError(t, err)

	assert.Equal(t, int64(42), item.ID)
	assert.Equal(t, "Widget", item.Name)
	assert.Equal(t, int64(500), item.Price)
	assert.Equal(t, []string{"http://x/r.png"}, item.Images)
	assert.Equal(t, "https://booth.pm/ja/items/42", item.URL)

	assert.Equal(t, int32(1), jsonRequests.Load())
	assert.Zero(t, htmlRequests.Load(), "a successful json fetch must not issue an html request")
}

func TestGetItemFallsBackToHTMLOnce(t *testing.T) {
	var jsonRequests, htmlRequests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ja/items/42.json":
			jsonRequests.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
		case "/ja/items/42":
			htmlRequests.Add(1)
			io.WriteString(w, detailFixture)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	item, err := testClient(server.URL).GetItem(context.Background(), 42)
	require.NoError(t, err)

	assert.Equal(t, int64(42), item.ID)
	assert.Equal(t, "Widget Deluxe", item.Name)
	assert.Equal(t, int64(1200), item.Price)
	assert.Equal(t, "A fine widget.", item.Description)
	assert.Equal(t, []string{"https://img.example/full.png", "https://img.example/second.png"}, item.Images)
	assert.Equal(t, "Widget Works", item.ShopName)
	assert.Equal(t, []string{"tag-one", "tag-two"}, item.Tags)
	assert.Equal(t, "小物", item.CategoryName)

	assert.Equal(t, int32(1), jsonRequests.Load())
	assert.Equal(t, int32(1), htmlRequests.Load(), "exactly one html fallback request")
}

func TestGetItemUnusableJSONFallsBack(t *testing.T) {
	var htmlRequests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ja/items/42.json":
			// Well-formed but id-less: unusable document.
			io.WriteString(w, `{"name":"Widget"}`)
		case "/ja/items/42":
			htmlRequests.Add(1)
			io.WriteString(w, detailFixture)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	item, err := testClient(server.URL).GetItem(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, "Widget Deluxe", item.Name)
	assert.Equal(t, int32(1), htmlRequests.Load())
}

func TestGetItemRateLimitedSkipsFallback(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := testClient(server.URL).GetItem(context.Background(), 42)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, int32(1), requests.Load(), "429 on json must not trigger an html fallback")
}

func TestGetItemFallbackWithoutTitleIsNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ja/items/42.json":
			w.WriteHeader(http.StatusNotFound)
		case "/ja/items/42":
			io.WriteString(w, `<html><body><div class="unrelated">nothing here</div></body></html>`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	_, err := testClient(server.URL).GetItem(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetItemNegativeID(t *testing.T) {
	_, err := testClient("http://unused").GetItem(context.Background(), -1)
	assert.ErrorIs(t, err, ErrMalformedInput)
}

func TestNewClientHonorsConfiguredInterval(t *testing.T) {
	c := NewClient(testLogger(), 2*time.Second)
	limiter, ok := c.limiter.(*ratelimit.IntervalLimiter)
	require.True(t, ok)
	assert.Equal(t, 2*time.Second, limiter.Interval())
}

func TestNewClientRaisesIntervalToFloor(t *testing.T) {
	c := NewClient(testLogger(), 10*time.Millisecond)
	limiter, ok := c.limiter.(*ratelimit.IntervalLimiter)
	require.True(t, ok)
	assert.Equal(t, time.Second, limiter.Interval(), "sub-second intervals are raised")
}

func TestClientPacesConsecutiveRequests(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, searchFixture)
	}))
	defer server.Close()

	limiter := ratelimit.NewIntervalLimiter(60 * time.Millisecond)
	c := newClient(http.DefaultClient, server.URL, limiter, testLogger())

	ctx := context.Background()
	_, err := c.Search(ctx, models.SearchParams{Keyword: "a"})
	require.NoError(t, err)

	start := time.Now()
	_, err = c.Search(ctx, models.SearchParams{Keyword: "b"})
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond, "second request must wait out the interval")
}
