package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"linkboard/middleware"
	"linkboard/model"
	"linkboard/store"
	"linkboard/utils"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

// CreateLinkRequest represents the link creation request body. Tags accepts
// either a JSON array or a comma-separated string.
type CreateLinkRequest struct {
	DestinationURL     string      `json:"destinationURL"`
	Slug               string      `json:"slug"`
	Tags               interface{} `json:"tags,omitempty"`
	Folder             string      `json:"folder,omitempty"`
	Description        string      `json:"description,omitempty"`
	ConversionTracking bool        `json:"conversionTracking,omitempty"`
}

// UpdateLinkRequest represents a partial link update; absent fields are
// left untouched.
type UpdateLinkRequest struct {
	DestinationURL     *string     `json:"destinationURL,omitempty"`
	Slug               *string     `json:"slug,omitempty"`
	Tags               interface{} `json:"tags,omitempty"`
	Folder             *string     `json:"folder,omitempty"`
	Description        *string     `json:"description,omitempty"`
	ConversionTracking *bool       `json:"conversionTracking,omitempty"`
}

// LinkResponse is a created or updated link plus its short URL.
type LinkResponse struct {
	model.Link
	ShortURL string `json:"shortURL"`
}

// LinkListResponse is the dashboard link list: links with live click
// counts plus the state of the live stream backing them.
type LinkListResponse struct {
	Links       []model.LinkWithClicks `json:"links"`
	Live        bool                   `json:"live"`
	StreamState string                 `json:"streamState"`
	StreamError string                 `json:"streamError,omitempty"`
}

// CreateLink handles POST /api/links
func (h *LinkHandler) CreateLink(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)

	var req CreateLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn().Err(err).Msg("Invalid request body for link creation")
		SendJSONError(w, http.StatusBadRequest, errors.New("invalid request body"), "Request body must be valid JSON")
		return
	}

	// Both fields are validated synchronously; nothing touches the store
	// until the payload is known-good.
	if err := utils.ValidateURL(req.DestinationURL); err != nil {
		log.Warn().Err(err).Str("url", req.DestinationURL).Msg("Invalid destination URL")
		SendJSONError(w, http.StatusBadRequest, err, "Please provide a valid http or https URL")
		return
	}
	if err := utils.ValidateSlug(req.Slug, h.config.Analytics.MinSlugLength, h.config.Analytics.MaxSlugLength); err != nil {
		log.Warn().Err(err).Str("slug", req.Slug).Msg("Invalid slug")
		SendJSONError(w, http.StatusBadRequest, err, "")
		return
	}

	ctx, cancel := h.opCtx(r)
	defer cancel()

	link, err := h.store.CreateLink(ctx, model.Link{
		UserID:             userID,
		DestinationURL:     req.DestinationURL,
		Slug:               req.Slug,
		Tags:               model.NormalizeTags(req.Tags),
		Folder:             req.Folder,
		Description:        req.Description,
		ConversionTracking: req.ConversionTracking,
	})
	if err != nil {
		if errors.Is(err, store.ErrSlugTaken) {
			SendJSONError(w, http.StatusConflict, err, "Choose a different slug")
			return
		}
		log.Error().Err(err).Msg("Failed to create link")
		SendJSONError(w, http.StatusInternalServerError, errors.New("failed to create link"), "")
		return
	}

	// The new link must be visible with a correct count immediately, so the
	// cache is re-seeded from a batch query instead of waiting on the stream.
	if tracker, trackErr := h.hub.ForUser(ctx, userID); trackErr == nil {
		if refreshErr := tracker.ForceRefresh(ctx, userID); refreshErr != nil {
			log.Warn().Err(refreshErr).Str("user_id", userID).Msg("Post-create refresh failed")
		}
	}

	SendJSONSuccess(w, http.StatusCreated, LinkResponse{Link: link, ShortURL: h.shortURL(link.Slug)})
}

// ListLinks handles GET /api/links
func (h *LinkHandler) ListLinks(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)

	ctx, cancel := h.opCtx(r)
	defer cancel()

	tracker, err := h.hub.ForUser(ctx, userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to load links")
		SendJSONError(w, http.StatusInternalServerError, errors.New("failed to load links"), "")
		return
	}

	resp := LinkListResponse{
		Links:       tracker.Links(),
		Live:        tracker.Subscribed(),
		StreamState: tracker.State().String(),
	}
	if streamErr := tracker.Err(); streamErr != nil {
		resp.StreamError = streamErr.Error()
	}
	SendJSONSuccess(w, http.StatusOK, resp)
}

// RefreshLinks handles POST /api/links/refresh — the explicit
// drift-correction endpoint. Counts are re-derived from a batch query.
func (h *LinkHandler) RefreshLinks(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)

	ctx, cancel := h.opCtx(r)
	defer cancel()

	tracker, err := h.hub.ForUser(ctx, userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to load links")
		SendJSONError(w, http.StatusInternalServerError, errors.New("failed to load links"), "")
		return
	}
	if err := tracker.ForceRefresh(ctx, userID); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Refresh failed")
		SendJSONError(w, http.StatusInternalServerError, errors.New("failed to refresh links"), "")
		return
	}

	resp := LinkListResponse{
		Links:       tracker.Links(),
		Live:        tracker.Subscribed(),
		StreamState: tracker.State().String(),
	}
	SendJSONSuccess(w, http.StatusOK, resp)
}

// UpdateLink handles PATCH /api/links/{id}
func (h *LinkHandler) UpdateLink(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)
	linkID := mux.Vars(r)["id"]

	var req UpdateLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		SendJSONError(w, http.StatusBadRequest, errors.New("invalid request body"), "Request body must be valid JSON")
		return
	}
	if req.DestinationURL != nil {
		if err := utils.ValidateURL(*req.DestinationURL); err != nil {
			SendJSONError(w, http.StatusBadRequest, err, "Please provide a valid http or https URL")
			return
		}
	}
	if req.Slug != nil {
		if err := utils.ValidateSlug(*req.Slug, h.config.Analytics.MinSlugLength, h.config.Analytics.MaxSlugLength); err != nil {
			SendJSONError(w, http.StatusBadRequest, err, "")
			return
		}
	}

	ctx, cancel := h.opCtx(r)
	defer cancel()

	existing, err := h.store.GetLink(ctx, linkID)
	if err != nil {
		if errors.Is(err, store.ErrLinkNotFound) {
			SendJSONError(w, http.StatusNotFound, err, "")
			return
		}
		log.Error().Err(err).Str("link_id", linkID).Msg("Failed to fetch link")
		SendJSONError(w, http.StatusInternalServerError, errors.New("failed to fetch link"), "")
		return
	}
	if existing.UserID != userID {
		// Not-found rather than forbidden: the link's existence is not
		// disclosed to other users.
		SendJSONError(w, http.StatusNotFound, store.ErrLinkNotFound, "")
		return
	}

	update := store.LinkUpdate{
		DestinationURL:     req.DestinationURL,
		Slug:               req.Slug,
		Folder:             req.Folder,
		Description:        req.Description,
		ConversionTracking: req.ConversionTracking,
	}
	if req.Tags != nil {
		tags := model.NormalizeTags(req.Tags)
		update.Tags = &tags
	}

	link, err := h.store.UpdateLink(ctx, linkID, update)
	if err != nil {
		if errors.Is(err, store.ErrSlugTaken) {
			SendJSONError(w, http.StatusConflict, err, "Choose a different slug")
			return
		}
		log.Error().Err(err).Str("link_id", linkID).Msg("Failed to update link")
		SendJSONError(w, http.StatusInternalServerError, errors.New("failed to update link"), "")
		return
	}

	// Invalidate the redirect cache for both slugs; a stale entry would keep
	// serving the old destination until TTL expiry.
	h.cache.Delete(existing.Slug)
	if link.Slug != existing.Slug {
		h.cache.Delete(link.Slug)
	}

	if tracker, trackErr := h.hub.ForUser(ctx, userID); trackErr == nil {
		if refreshErr := tracker.ForceRefresh(ctx, userID); refreshErr != nil {
			log.Warn().Err(refreshErr).Str("user_id", userID).Msg("Post-update refresh failed")
		}
	}

	SendJSONSuccess(w, http.StatusOK, LinkResponse{Link: link, ShortURL: h.shortURL(link.Slug)})
}

// DeleteLink handles DELETE /api/links/{id}
func (h *LinkHandler) DeleteLink(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)
	linkID := mux.Vars(r)["id"]

	ctx, cancel := h.opCtx(r)
	defer cancel()

	existing, err := h.store.GetLink(ctx, linkID)
	if err != nil {
		if errors.Is(err, store.ErrLinkNotFound) {
			SendJSONError(w, http.StatusNotFound, err, "")
			return
		}
		log.Error().Err(err).Str("link_id", linkID).Msg("Failed to fetch link")
		SendJSONError(w, http.StatusInternalServerError, errors.New("failed to fetch link"), "")
		return
	}
	if existing.UserID != userID {
		SendJSONError(w, http.StatusNotFound, store.ErrLinkNotFound, "")
		return
	}

	if err := h.store.DeleteLink(ctx, linkID); err != nil {
		log.Error().Err(err).Str("link_id", linkID).Msg("Failed to delete link")
		SendJSONError(w, http.StatusInternalServerError, errors.New("failed to delete link"), "")
		return
	}

	h.cache.Delete(existing.Slug)

	if tracker, trackErr := h.hub.ForUser(ctx, userID); trackErr == nil {
		if refreshErr := tracker.ForceRefresh(ctx, userID); refreshErr != nil {
			log.Warn().Err(refreshErr).Str("user_id", userID).Msg("Post-delete refresh failed")
		}
	}

	SendJSONSuccess(w, http.StatusOK, map[string]string{"message": "Link deleted successfully"})
}
