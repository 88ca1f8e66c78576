// Package api exposes the mood journal over HTTP/JSON.
package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/RaiderRus/moodTrack/internal/api/recovery"
	"github.com/RaiderRus/moodTrack/internal/auth"
	"github.com/RaiderRus/moodTrack/internal/composer"
	"github.com/RaiderRus/moodTrack/internal/metrics"
	"github.com/RaiderRus/moodTrack/internal/moodstore"
	"github.com/RaiderRus/moodTrack/internal/objectstore"
	"github.com/RaiderRus/moodTrack/internal/stats"
	"github.com/RaiderRus/moodTrack/internal/tags"
)

// ServiceHealth reports aggregated component health.
type ServiceHealth interface {
	IsHealthy() bool
	Components() map[string]bool
}

// Deps wires the handlers to the domain services.
type Deps struct {
	Auth          *auth.Service
	Catalog       *tags.Catalog
	Moods         *moodstore.Provider
	Stats         *stats.Service
	Composers     *composer.Sessions
	Blobs         objectstore.Blobs
	Health        ServiceHealth
	Location      *time.Location
	WebDir        string
	SecureCookies bool
	// MaxChunkBytes bounds one uploaded audio chunk; zero means 10 MiB.
	MaxChunkBytes int64
	Log           zerolog.Logger
}

// NewRouter creates the HTTP router with every API and page route.
func NewRouter(d Deps) *mux.Router {
	if d.Location == nil {
		d.Location = time.UTC
	}
	if d.MaxChunkBytes <= 0 {
		d.MaxChunkBytes = 10 << 20
	}

	router := mux.NewRouter()

	// Global middlewares
	router.Use(recovery.Middleware(d.Log))
	router.Use(requestLogger(d.Log))

	authn := &authenticator{svc: d.Auth, log: d.Log}

	healthHandler := &HealthHandler{health: d.Health}
	authHandler := &AuthHandler{svc: d.Auth, composers: d.Composers, secure: d.SecureCookies, log: d.Log}
	entryHandler := &EntryHandler{moods: d.Moods, stats: d.Stats, catalog: d.Catalog, loc: d.Location, log: d.Log}
	composerHandler := &ComposerHandler{sessions: d.Composers, maxChunk: d.MaxChunkBytes, log: d.Log}
	audioHandler := &AudioHandler{blobs: d.Blobs, log: d.Log}

	// Public endpoints
	router.HandleFunc("/api/health", healthHandler.CheckHealth).Methods("GET")
	router.Handle("/metrics", metrics.Handler()).Methods("GET")
	router.HandleFunc("/api/auth/signup", authHandler.SignUp).Methods("POST")
	router.HandleFunc("/api/auth/signin", authHandler.SignIn).Methods("POST")
	router.HandleFunc("/api/auth/signout", authHandler.SignOut).Methods("POST")

	api := router.PathPrefix("/api").Subrouter()
	api.Use(authn.requireUser)

	api.HandleFunc("/auth/me", authHandler.Me).Methods("GET")
	api.HandleFunc("/tags", entryHandler.ListTags).Methods("GET")

	// Journal and statistics
	api.HandleFunc("/entries", entryHandler.ListEntries).Methods("GET")
	api.HandleFunc("/entries/calendar", entryHandler.Calendar).Methods("GET")
	api.HandleFunc("/entries/stream", entryHandler.Stream).Methods("GET")
	api.HandleFunc("/entries/highlight", entryHandler.Highlight).Methods("GET")
	api.HandleFunc("/stats", entryHandler.Stats).Methods("GET")

	// Composer
	api.HandleFunc("/composer", composerHandler.Get).Methods("GET")
	api.HandleFunc("/composer/text", composerHandler.SetText).Methods("PUT")
	api.HandleFunc("/composer/tags/{tagId}", composerHandler.ToggleTag).Methods("POST")
	api.HandleFunc("/composer/recording", composerHandler.StartRecording).Methods("POST")
	api.HandleFunc("/composer/recording", composerHandler.CancelRecording).Methods("DELETE")
	api.HandleFunc("/composer/recording/chunks", composerHandler.AppendChunk).Methods("POST")
	api.HandleFunc("/composer/recording/stop", composerHandler.StopRecording).Methods("POST")
	api.HandleFunc("/composer/submit", composerHandler.Submit).Methods("POST")

	api.HandleFunc("/audio/{key:.*}", audioHandler.Get).Methods("GET")

	// Pages
	pages := &PageHandler{dir: d.WebDir}
	router.Handle("/", authn.pageRequiresUser(http.HandlerFunc(pages.Index))).Methods("GET")
	router.Handle("/login", authn.pageRequiresGuest(pages.File("login.html"))).Methods("GET")
	router.Handle("/register", authn.pageRequiresGuest(pages.File("register.html"))).Methods("GET")
	if d.WebDir != "" {
		router.PathPrefix("/").Handler(http.FileServer(http.Dir(d.WebDir))).Methods("GET")
	}

	return router
}
