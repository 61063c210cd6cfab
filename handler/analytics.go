package handler

import (
	"errors"
	"net/http"
	"time"

	"linkboard/analytics"
	"linkboard/middleware"
	"linkboard/store"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

// GetAnalytics handles GET /api/analytics?period=1m&link=<id>
// The chart is computed from the full click history of the user's links
// (or one link) and bucketed server-side.
func (h *LinkHandler) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)

	period := analytics.Period(r.URL.Query().Get("period"))
	if period == "" {
		period = analytics.PeriodMonth
	}
	if !analytics.ValidPeriod(period) {
		log.Warn().Str("period", string(period)).Msg("Unknown analytics period requested")
	}

	filter := store.ClickFilter{UserID: userID}
	if linkID := r.URL.Query().Get("link"); linkID != "" {
		ctx, cancel := h.opCtx(r)
		link, err := h.store.GetLink(ctx, linkID)
		cancel()
		if err != nil || link.UserID != userID {
			SendJSONError(w, http.StatusNotFound, store.ErrLinkNotFound, "")
			return
		}
		filter = store.ClickFilter{LinkID: linkID}
	}

	ctx, cancel := h.opCtx(r)
	defer cancel()

	events, err := h.store.GetClickEvents(ctx, filter)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to load click events")
		SendJSONError(w, http.StatusInternalServerError, errors.New("failed to load analytics"), "")
		return
	}

	SendJSONSuccess(w, http.StatusOK, analytics.BuildChart(events, period, time.Now()))
}

// DeleteClick handles DELETE /api/clicks/{id} — the administrative
// correction path. The delete notification it publishes is what live
// trackers decrement on.
func (h *LinkHandler) DeleteClick(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)
	clickID := mux.Vars(r)["id"]

	ctx, cancel := h.opCtx(r)
	defer cancel()

	event, err := h.store.GetClickEvent(ctx, clickID)
	if err != nil {
		if errors.Is(err, store.ErrClickNotFound) {
			SendJSONError(w, http.StatusNotFound, err, "")
			return
		}
		log.Error().Err(err).Str("click_id", clickID).Msg("Failed to fetch click event")
		SendJSONError(w, http.StatusInternalServerError, errors.New("failed to fetch click event"), "")
		return
	}

	// Ownership is established through the click's link.
	link, err := h.store.GetLink(ctx, event.LinkID)
	if err != nil || link.UserID != userID {
		SendJSONError(w, http.StatusNotFound, store.ErrClickNotFound, "")
		return
	}

	if err := h.store.DeleteClickEvent(ctx, clickID); err != nil {
		log.Error().Err(err).Str("click_id", clickID).Msg("Failed to delete click event")
		SendJSONError(w, http.StatusInternalServerError, errors.New("failed to delete click event"), "")
		return
	}

	SendJSONSuccess(w, http.StatusOK, map[string]string{"message": "Click event deleted"})
}
