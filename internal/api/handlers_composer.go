package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/RaiderRus/moodTrack/internal/api/respond"
	"github.com/RaiderRus/moodTrack/internal/api/validate"
	"github.com/RaiderRus/moodTrack/internal/composer"
	"github.com/RaiderRus/moodTrack/internal/model"
)

// ComposerHandler drives the caller's entry composer.
type ComposerHandler struct {
	sessions *composer.Sessions
	maxChunk int64
	log      zerolog.Logger
}

func (h *ComposerHandler) composer(r *http.Request) *composer.Composer {
	return h.sessions.For(currentUserID(r))
}

// statusFor maps composer errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, composer.ErrEmptyDraft):
		return http.StatusUnprocessableEntity
	case errors.Is(err, composer.ErrUnknownTag):
		return http.StatusBadRequest
	case errors.Is(err, composer.ErrBusy),
		errors.Is(err, composer.ErrSaveInFlight),
		errors.Is(err, composer.ErrNotRecording):
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

func writeSnapshot(w http.ResponseWriter, snap composer.Snapshot, err error) {
	if err != nil {
		respond.WriteError(w, statusFor(err), err.Error())
		return
	}
	respond.WriteJSON(w, http.StatusOK, snap)
}

// writeResult always returns the body so callers can show the notices.
func writeResult(w http.ResponseWriter, res composer.Result, err error) {
	if res.Notices == nil {
		res.Notices = []model.Notice{}
	}
	respond.WriteJSON(w, statusFor(err), res)
}

// Get GET /api/composer
func (h *ComposerHandler) Get(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSON(w, http.StatusOK, h.composer(r).Snapshot())
}

// SetText PUT /api/composer/text
func (h *ComposerHandler) SetText(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	if err := validate.EntryText(req.Text); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	snap, err := h.composer(r).SetText(req.Text)
	writeSnapshot(w, snap, err)
}

// ToggleTag POST /api/composer/tags/{tagId}
func (h *ComposerHandler) ToggleTag(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["tagId"]
	if err := validate.TagID(id); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	snap, err := h.composer(r).ToggleTag(id)
	writeSnapshot(w, snap, err)
}

// StartRecording POST /api/composer/recording
func (h *ComposerHandler) StartRecording(w http.ResponseWriter, r *http.Request) {
	snap, err := h.composer(r).StartRecording()
	writeSnapshot(w, snap, err)
}

// AppendChunk POST /api/composer/recording/chunks with the raw audio bytes as body.
func (h *ComposerHandler) AppendChunk(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxChunk))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respond.WriteError(w, http.StatusRequestEntityTooLarge, "audio chunk too large")
			return
		}
		respond.WriteBadRequest(w, "could not read audio chunk")
		return
	}
	snap, err := h.composer(r).AppendChunk(data)
	writeSnapshot(w, snap, err)
}

// StopRecording POST /api/composer/recording/stop
func (h *ComposerHandler) StopRecording(w http.ResponseWriter, r *http.Request) {
	res, err := h.composer(r).StopRecording(r.Context())
	writeResult(w, res, err)
}

// CancelRecording DELETE /api/composer/recording
func (h *ComposerHandler) CancelRecording(w http.ResponseWriter, r *http.Request) {
	snap, err := h.composer(r).CancelRecording()
	writeSnapshot(w, snap, err)
}

// Submit POST /api/composer/submit
func (h *ComposerHandler) Submit(w http.ResponseWriter, r *http.Request) {
	res, err := h.composer(r).Submit(r.Context())
	status := statusFor(err)
	if err == nil {
		status = http.StatusCreated
	}
	if res.Notices == nil {
		res.Notices = []model.Notice{}
	}
	respond.WriteJSON(w, status, res)
}
