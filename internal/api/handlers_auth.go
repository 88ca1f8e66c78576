package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/RaiderRus/moodTrack/internal/api/respond"
	"github.com/RaiderRus/moodTrack/internal/api/validate"
	"github.com/RaiderRus/moodTrack/internal/auth"
	"github.com/RaiderRus/moodTrack/internal/composer"
	"github.com/RaiderRus/moodTrack/internal/model"
)

// AuthHandler serves sign-up, sign-in and sign-out.
type AuthHandler struct {
	svc       *auth.Service
	composers *composer.Sessions
	secure    bool
	log       zerolog.Logger
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	User      *model.User `json:"user"`
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
}

func decodeCredentials(w http.ResponseWriter, r *http.Request) (credentials, bool) {
	var req credentials
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return req, false
	}
	return req, true
}

// SignUp POST /api/auth/signup
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCredentials(w, r)
	if !ok {
		return
	}
	if err := validate.Credentials(req.Email, req.Password); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	u, sess, err := h.svc.SignUp(r.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, auth.ErrInvalidSignup):
		respond.WriteBadRequest(w, err.Error())
		return
	case errors.Is(err, auth.ErrEmailTaken):
		respond.WriteConflict(w, err.Error())
		return
	case err != nil:
		h.log.Error().Stack().Err(err).Msg("sign up")
		respond.WriteInternalError(w, "could not create account")
		return
	}
	http.SetCookie(w, auth.SessionCookie(sess, h.secure))
	respond.WriteJSON(w, http.StatusCreated, sessionResponse{User: u, Token: sess.Token, ExpiresAt: sess.ExpiresAt})
}

// SignIn POST /api/auth/signin
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCredentials(w, r)
	if !ok {
		return
	}
	u, sess, err := h.svc.SignIn(r.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		respond.WriteError(w, http.StatusUnauthorized, err.Error())
		return
	case err != nil:
		h.log.Error().Stack().Err(err).Msg("sign in")
		respond.WriteInternalError(w, "could not sign in")
		return
	}
	http.SetCookie(w, auth.SessionCookie(sess, h.secure))
	respond.WriteJSON(w, http.StatusOK, sessionResponse{User: u, Token: sess.Token, ExpiresAt: sess.ExpiresAt})
}

// SignOut POST /api/auth/signout
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	token := auth.ExtractToken(r)
	if u, err := h.svc.Authenticate(r.Context(), token); err == nil && h.composers != nil {
		h.composers.Drop(u.UserID)
	}
	if err := h.svc.SignOut(r.Context(), token); err != nil {
		h.log.Error().Stack().Err(err).Msg("sign out")
		respond.WriteInternalError(w, "could not sign out")
		return
	}
	http.SetCookie(w, auth.ClearCookie(h.secure))
	w.WriteHeader(http.StatusNoContent)
}

// Me GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.UserFrom(r.Context())
	respond.WriteJSON(w, http.StatusOK, u)
}
