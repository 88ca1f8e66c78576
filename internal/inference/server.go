package inference

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/RaiderRus/moodTrack/internal/api/recovery"
	"github.com/RaiderRus/moodTrack/internal/api/respond"
)

// Backend does the actual speech-to-text and tagging work behind the HTTP API.
type Backend interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
	TranscribeURL(ctx context.Context, audioURL string) (string, error)
	Classify(ctx context.Context, text string) ([]string, error)
	HealthPing(ctx context.Context) error
}

// ErrAudioTooLarge is returned when an upload exceeds the configured limit.
var ErrAudioTooLarge = errors.New("audio exceeds size limit")

type server struct {
	backend  Backend
	maxBytes int64
	log      zerolog.Logger
}

// NewHandler exposes backend as POST /api/transcribe, POST /api/analyze and GET /api/health.
func NewHandler(backend Backend, maxBytes int64, log zerolog.Logger) http.Handler {
	s := &server{backend: backend, maxBytes: maxBytes, log: log}
	r := mux.NewRouter()
	r.Use(recovery.Middleware(log))
	r.HandleFunc("/api/transcribe", s.transcribe).Methods(http.MethodPost)
	r.HandleFunc("/api/analyze", s.analyze).Methods(http.MethodPost)
	r.HandleFunc("/api/health", s.health).Methods(http.MethodGet)
	return r
}

func (s *server) transcribe(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBytes)

	var (
		text string
		err  error
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch {
	case strings.HasPrefix(mediaType, "multipart/"):
		text, err = s.transcribeUpload(r)
	case mediaType == "application/json":
		var req TranscribeURLRequest
		if derr := json.NewDecoder(r.Body).Decode(&req); derr != nil || req.AudioURL == "" {
			respond.WriteBadRequest(w, "audioUrl is required")
			return
		}
		text, err = s.backend.TranscribeURL(r.Context(), req.AudioURL)
	default:
		respond.WriteError(w, http.StatusUnsupportedMediaType, "expected multipart/form-data or application/json")
		return
	}

	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge), errors.Is(err, ErrAudioTooLarge):
		respond.WriteError(w, http.StatusRequestEntityTooLarge, ErrAudioTooLarge.Error())
	case errors.Is(err, errNoFile):
		respond.WriteBadRequest(w, err.Error())
	case err != nil:
		s.log.Error().Stack().Err(err).Msg("transcription failed")
		respond.WriteError(w, http.StatusBadGateway, "transcription failed")
	default:
		respond.WriteJSON(w, http.StatusOK, TranscribeResponse{Text: text})
	}
}

var errNoFile = errors.New("multipart field \"file\" is required")

func (s *server) transcribeUpload(r *http.Request) (string, error) {
	f, hdr, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", err
		}
		return "", errNoFile
	}
	defer func() { _ = f.Close() }()

	audio, err := io.ReadAll(f)
	if err != nil {
		return "", err
	}
	return s.backend.Transcribe(r.Context(), audio, hdr.Filename)
}

func (s *server) analyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		respond.WriteJSON(w, http.StatusOK, AnalyzeResponse{Tags: []string{}})
		return
	}
	tags, err := s.backend.Classify(r.Context(), req.Text)
	if err != nil {
		s.log.Error().Stack().Err(err).Msg("classification failed")
		respond.WriteError(w, http.StatusBadGateway, "classification failed")
		return
	}
	if tags == nil {
		tags = []string{}
	}
	respond.WriteJSON(w, http.StatusOK, AnalyzeResponse{Tags: tags})
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.HealthPing(r.Context()); err != nil {
		respond.WriteError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]string{"status": "UP"})
}
