package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"linkboard/cache"
	"linkboard/config"
	"linkboard/realtime"
	"linkboard/store"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
)

// LinkHandler serves the link dashboard API: link CRUD, the redirect
// endpoint, chart data and the live-count link list.
type LinkHandler struct {
	store   *store.Store
	cache   *cache.LinkCache
	hub     *realtime.Hub
	redis   *redis.Client
	config  config.Config
	baseURL string
}

// NewLinkHandler creates a new link handler
func NewLinkHandler(rdb *redis.Client, st *store.Store, linkCache *cache.LinkCache, hub *realtime.Hub, cfg config.Config) *LinkHandler {
	// Use configured base_url if provided, otherwise construct from scheme, IP, and port
	baseURL := cfg.WebServer.BaseURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("%s://%s:%s", cfg.WebServer.Scheme, cfg.WebServer.IP, cfg.WebServer.Port)
	}
	return &LinkHandler{
		store:   st,
		cache:   linkCache,
		hub:     hub,
		redis:   rdb,
		config:  cfg,
		baseURL: baseURL,
	}
}

// opCtx derives the per-operation timeout context used by every handler
func (h *LinkHandler) opCtx(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), time.Duration(h.config.Redis.OperationTimeout)*time.Second)
}

func (h *LinkHandler) shortURL(slug string) string {
	return fmt.Sprintf("%s/%s", h.baseURL, slug)
}

// HealthCheck handles GET /health
func (h *LinkHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.redis.Ping(ctx).Err(); err != nil {
		log.Error().Err(err).Msg("Redis health check failed")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "unhealthy",
			"redis":  "unavailable",
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
		"redis":  "connected",
	})
}

// CacheMetrics handles GET /cache/metrics
func (h *LinkHandler) CacheMetrics(w http.ResponseWriter, r *http.Request) {
	if !h.config.Cache.Enabled || h.cache == nil {
		SendJSONError(w, http.StatusServiceUnavailable, errors.New("cache is disabled"), "")
		return
	}

	SendJSONSuccess(w, http.StatusOK, h.cache.GetMetricsSnapshot())
}
