package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/boothhunter/boothhunter/internal/booth"
	"github.com/boothhunter/boothhunter/internal/database"
	"github.com/boothhunter/boothhunter/internal/models"
)

// Fetcher interface for upstream operations (for testing)
type Fetcher interface {
	Search(ctx context.Context, params models.SearchParams) (*models.SearchResult, error)
	GetItem(ctx context.Context, itemID int64) (*models.Item, error)
}

// Store interface for persistence operations (for testing)
type Store interface {
	UpsertItem(ctx context.Context, item *models.Item) error
	GetItem(ctx context.Context, itemID int64) (*database.CachedItem, error)
	AddFavorite(ctx context.Context, item *models.Item, note string) (*database.Favorite, error)
	ListFavorites(ctx context.Context) ([]database.Favorite, error)
	RemoveFavorite(ctx context.Context, itemID int64) error
	RecordSearch(ctx context.Context, keyword string, totalCount *int64) (*database.SearchRecord, error)
	ListSearchHistory(ctx context.Context, limit int) ([]database.SearchRecord, error)
	ClearSearchHistory(ctx context.Context) error
}

// Cache interface for the hot item cache (for testing)
type Cache interface {
	Get(ctx context.Context, itemID int64) (*models.Item, bool)
	Set(ctx context.Context, item *models.Item)
	Invalidate(ctx context.Context, itemID int64)
}

type Handlers struct {
	fetcher Fetcher
	store   Store
	cache   Cache
	logger  *slog.Logger
}

func NewHandlers(fetcher Fetcher, store Store, cache Cache, logger *slog.Logger) *Handlers {
	return &Handlers{
		fetcher: fetcher,
		store:   store,
		cache:   cache,
		logger:  logger.With("component", "api"),
	}
}

// Routes returns the API route tree, mounted under /api by the caller.
func (h *Handlers) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/search", h.Search)
	r.Get("/items/{itemID}", h.GetItem)

	r.Route("/favorites", func(r chi.Router) {
		r.Get("/", h.ListFavorites)
		r.Post("/", h.AddFavorite)
		r.Delete("/{itemID}", h.RemoveFavorite)
	})

	r.Route("/history", func(r chi.Router) {
		r.Get("/", h.ListHistory)
		r.Delete("/", h.ClearHistory)
	})

	return r
}

// Search proxies one page of marketplace search results.
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	params, err := searchParamsFromQuery(r)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.fetcher.Search(r.Context(), params)
	if err != nil {
		h.respondFetchError(w, err, "search failed")
		return
	}

	// History is best effort: a write failure must not fail the search.
	if _, err := h.store.RecordSearch(r.Context(), params.Keyword, result.TotalCount); err != nil {
		h.logger.Warn("failed to record search", "keyword", params.Keyword, "error", err)
	}

	h.respondJSON(w, http.StatusOK, result)
}

// GetItem returns item detail, cheapest source first: Redis, then upstream.
// A fresh fetch refreshes both the cache and the persistent snapshot. When
// upstream is unreachable or throttling, a stored snapshot still serves.
func (h *Handlers) GetItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := strconv.ParseInt(chi.URLParam(r, "itemID"), 10, 64)
	if err != nil || itemID < 0 {
		h.respondError(w, http.StatusBadRequest, "item ID must be a non-negative integer")
		return
	}

	if item, ok := h.cache.Get(r.Context(), itemID); ok {
		h.respondJSON(w, http.StatusOK, item)
		return
	}

	item, err := h.fetcher.GetItem(r.Context(), itemID)
	if err != nil {
		if errors.Is(err, booth.ErrTransport) || errors.Is(err, booth.ErrRateLimited) {
			if cached, dbErr := h.store.GetItem(r.Context(), itemID); dbErr == nil {
				h.logger.Info("serving stored snapshot", "item_id", itemID, "reason", err)
				h.respondJSON(w, http.StatusOK, &cached.Item)
				return
			}
		}
		if errors.Is(err, booth.ErrNotFound) {
			// Upstream says the item is gone; a lingering cache entry (for
			// example one Get could not decode) must not resurrect it.
			h.cache.Invalidate(r.Context(), itemID)
		}
		h.respondFetchError(w, err, "item fetch failed")
		return
	}

	h.cache.Set(r.Context(), item)
	if err := h.store.UpsertItem(r.Context(), item); err != nil {
		h.logger.Warn("failed to persist item", "item_id", itemID, "error", err)
	}

	h.respondJSON(w, http.StatusOK, item)
}

type addFavoriteRequest struct {
	ItemID int64  `json:"item_id"`
	Note   string `json:"note"`
}

func (h *Handlers) AddFavorite(w http.ResponseWriter, r *http.Request) {
	var req addFavoriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ItemID < 0 {
		h.respondError(w, http.StatusBadRequest, "item_id must be non-negative")
		return
	}

	item := h.resolveItem(r.Context(), req.ItemID)
	if item == nil {
		h.respondError(w, http.StatusNotFound, "item not found")
		return
	}

	fav, err := h.store.AddFavorite(r.Context(), item, req.Note)
	if errors.Is(err, database.ErrAlreadyFavorite) {
		h.respondError(w, http.StatusConflict, "item is already a favorite")
		return
	}
	if err != nil {
		h.logger.Error("failed to add favorite", "item_id", req.ItemID, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to add favorite")
		return
	}

	h.respondJSON(w, http.StatusCreated, fav)
}

// resolveItem finds item data for a favorite: cache, then stored snapshot,
// then upstream.
func (h *Handlers) resolveItem(ctx context.Context, itemID int64) *models.Item {
	if item, ok := h.cache.Get(ctx, itemID); ok {
		return item
	}
	if cached, err := h.store.GetItem(ctx, itemID); err == nil {
		return &cached.Item
	}

	item, err := h.fetcher.GetItem(ctx, itemID)
	if err != nil {
		h.logger.Warn("failed to resolve item", "item_id", itemID, "error", err)
		return nil
	}
	h.cache.Set(ctx, item)
	return item
}

func (h *Handlers) ListFavorites(w http.ResponseWriter, r *http.Request) {
	favorites, err := h.store.ListFavorites(r.Context())
	if err != nil {
		h.logger.Error("failed to list favorites", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list favorites")
		return
	}
	h.respondJSON(w, http.StatusOK, favorites)
}

func (h *Handlers) RemoveFavorite(w http.ResponseWriter, r *http.Request) {
	itemID, err := strconv.ParseInt(chi.URLParam(r, "itemID"), 10, 64)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "item ID must be an integer")
		return
	}

	err = h.store.RemoveFavorite(r.Context(), itemID)
	if errors.Is(err, database.ErrNotFound) {
		h.respondError(w, http.StatusNotFound, "favorite not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to remove favorite", "item_id", itemID, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to remove favorite")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) ListHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			h.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	records, err := h.store.ListSearchHistory(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list history", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list history")
		return
	}
	h.respondJSON(w, http.StatusOK, records)
}

func (h *Handlers) ClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := h.store.ClearSearchHistory(r.Context()); err != nil {
		h.logger.Error("failed to clear history", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to clear history")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func searchParamsFromQuery(r *http.Request) (models.SearchParams, error) {
	q := r.URL.Query()
	params := models.SearchParams{
		Keyword:  q.Get("q"),
		Category: q.Get("category"),
		Sort:     q.Get("sort"),
		Page:     1,
	}

	if raw := q.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil {
			return params, errors.New("page must be an integer")
		}
		params.Page = page
	}

	if raw := q.Get("only_free"); raw != "" {
		onlyFree, err := strconv.ParseBool(raw)
		if err != nil {
			return params, errors.New("only_free must be a boolean")
		}
		params.OnlyFree = onlyFree
	}

	for _, bound := range []struct {
		key  string
		dest **int64
	}{
		{"min_price", &params.PriceMin},
		{"max_price", &params.PriceMax},
	} {
		if raw := q.Get(bound.key); raw != "" {
			v, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return params, errors.New(bound.key + " must be an integer")
			}
			*bound.dest = &v
		}
	}

	return params, nil
}

// respondFetchError maps pipeline errors onto HTTP statuses.
func (h *Handlers) respondFetchError(w http.ResponseWriter, err error, message string) {
	switch {
	case errors.Is(err, booth.ErrMalformedInput):
		h.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, booth.ErrRateLimited):
		h.respondError(w, http.StatusTooManyRequests, "upstream is rate limiting, try again later")
	case errors.Is(err, booth.ErrNotFound):
		h.respondError(w, http.StatusNotFound, "no usable result from upstream")
	case errors.Is(err, booth.ErrTransport):
		h.respondError(w, http.StatusBadGateway, "upstream is unreachable")
	default:
		h.logger.Error(message, "error", err)
		h.respondError(w, http.StatusInternalServerError, message)
	}
}

// Helper methods
func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
