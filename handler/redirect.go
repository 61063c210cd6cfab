package handler

import (
	"errors"
	"net/http"
	"time"

	"linkboard/store"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

// Redirect handles GET /{slug} — the public hot path. The click event is
// recorded before redirecting; a recording failure is logged, not surfaced,
// because the redirect itself must not break when analytics storage is
// unhappy.
func (h *LinkHandler) Redirect(w http.ResponseWriter, r *http.Request) {
	slug := mux.Vars(r)["slug"]

	ctx, cancel := h.opCtx(r)
	defer cancel()

	link, cached := h.cache.Get(slug)
	if !cached {
		var err error
		link, err = h.store.GetLinkBySlug(ctx, slug)
		if err != nil {
			if errors.Is(err, store.ErrLinkNotFound) {
				SendJSONError(w, http.StatusNotFound, err, "")
				return
			}
			log.Error().Err(err).Str("slug", slug).Msg("Failed to resolve slug")
			SendJSONError(w, http.StatusInternalServerError, errors.New("failed to resolve link"), "")
			return
		}
		h.cache.Set(slug, link)
	}

	if _, err := h.store.InsertClickEvent(ctx, link.ID, time.Now()); err != nil {
		log.Error().
			Err(err).
			Str("link_id", link.ID).
			Str("slug", slug).
			Msg("Failed to record click")
	}

	log.Debug().
		Str("slug", slug).
		Str("destination", link.DestinationURL).
		Bool("cache_hit", cached).
		Msg("Redirecting")

	http.Redirect(w, r, link.DestinationURL, http.StatusFound)
}
