package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/RaiderRus/moodTrack/internal/api/respond"
	"github.com/RaiderRus/moodTrack/internal/auth"
	"github.com/RaiderRus/moodTrack/internal/metrics"
)

const loginPath = "/login"

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps streaming responses working through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// requestLogger logs each request and records route-level metrics.
func requestLogger(log zerolog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			route := "unmatched"
			if cur := mux.CurrentRoute(r); cur != nil {
				if tpl, err := cur.GetPathTemplate(); err == nil {
					route = tpl
				}
			}
			elapsed := time.Since(start)
			metrics.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Inc()
			metrics.HTTPDuration.WithLabelValues(route).Observe(elapsed.Seconds())

			ev := log.Debug()
			if rec.status >= 500 {
				ev = log.Warn()
			}
			ev.Str("method", r.Method).
				Str("route", route).
				Int("status", rec.status).
				Dur("elapsed", elapsed).
				Msg("request")
		})
	}
}

type authenticator struct {
	svc *auth.Service
	log zerolog.Logger
}

// requireUser rejects API calls without a valid session with 401 and a login hint.
func (a *authenticator) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, err := a.svc.Authenticate(r.Context(), auth.ExtractToken(r))
		if err != nil {
			if !errors.Is(err, auth.ErrUnauthenticated) && !errors.Is(err, auth.ErrSessionExpired) {
				a.log.Error().Err(err).Msg("authenticate request")
			}
			respond.WriteUnauthorized(w, err.Error(), loginPath)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), u)))
	})
}

func (a *authenticator) signedIn(r *http.Request) bool {
	token := auth.ExtractToken(r)
	if token == "" {
		return false
	}
	_, err := a.svc.Authenticate(r.Context(), token)
	return err == nil
}

// pageRequiresUser sends guests to the login page.
func (a *authenticator) pageRequiresUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.signedIn(r) {
			http.Redirect(w, r, loginPath, http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// pageRequiresGuest sends signed-in users from the login and register pages to the journal.
func (a *authenticator) pageRequiresGuest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.signedIn(r) {
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// currentUserID is only valid behind requireUser.
func currentUserID(r *http.Request) string {
	u, ok := auth.UserFrom(r.Context())
	if !ok {
		return ""
	}
	return u.UserID
}
