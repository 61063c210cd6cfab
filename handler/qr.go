package handler

import (
	"errors"
	"net/http"
	"strconv"

	"linkboard/store"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	qrcode "github.com/skip2/go-qrcode"
)

const (
	defaultQRSize = 256
	maxQRSize     = 1024
)

// GenerateQR handles GET /qr/{slug} — returns a PNG QR code encoding the
// short URL. Size is clamped to a sane range.
func (h *LinkHandler) GenerateQR(w http.ResponseWriter, r *http.Request) {
	slug := mux.Vars(r)["slug"]

	ctx, cancel := h.opCtx(r)
	defer cancel()

	if _, found := h.cache.Get(slug); !found {
		link, err := h.store.GetLinkBySlug(ctx, slug)
		if err != nil {
			if errors.Is(err, store.ErrLinkNotFound) {
				SendJSONError(w, http.StatusNotFound, err, "")
				return
			}
			log.Error().Err(err).Str("slug", slug).Msg("Failed to resolve slug for QR")
			SendJSONError(w, http.StatusInternalServerError, errors.New("failed to resolve link"), "")
			return
		}
		h.cache.Set(slug, link)
	}

	size := defaultQRSize
	if s := r.URL.Query().Get("size"); s != "" {
		parsed, err := strconv.Atoi(s)
		if err != nil || parsed < 64 || parsed > maxQRSize {
			SendJSONError(w, http.StatusBadRequest, errors.New("invalid size"), "Size must be between 64 and 1024")
			return
		}
		size = parsed
	}

	png, err := qrcode.Encode(h.shortURL(slug), qrcode.Medium, size)
	if err != nil {
		log.Error().Err(err).Str("slug", slug).Msg("Failed to generate QR code")
		SendJSONError(w, http.StatusInternalServerError, errors.New("failed to generate QR code"), "")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}
