package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/RaiderRus/moodTrack/internal/api/respond"
	"github.com/RaiderRus/moodTrack/internal/objectstore"
)

// AudioHandler serves stored recordings to their owners.
type AudioHandler struct {
	blobs objectstore.Blobs
	log   zerolog.Logger
}

// Get GET /api/audio/{key}
func (h *AudioHandler) Get(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	// Keys of other users are reported as missing.
	if objectstore.Owner(key) != currentUserID(r) {
		respond.WriteNotFound(w, "recording not found")
		return
	}
	data, err := h.blobs.Get(r.Context(), key)
	switch {
	case errors.Is(err, objectstore.ErrNotFound):
		respond.WriteNotFound(w, "recording not found")
		return
	case errors.Is(err, objectstore.ErrInvalidKey):
		respond.WriteBadRequest(w, err.Error())
		return
	case err != nil:
		h.log.Error().Stack().Err(err).Str("key", key).Msg("read recording")
		respond.WriteInternalError(w, "could not read recording")
		return
	}
	w.Header().Set("Content-Type", objectstore.AudioContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "private, max-age=86400")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
