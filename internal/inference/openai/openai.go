// Package openai backs the inference API with an OpenAI-compatible endpoint:
// whisper for transcription and a chat model for tag classification.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tmc/langchaingo/llms"
	lcopenai "github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"golang.org/x/time/rate"

	"github.com/RaiderRus/moodTrack/internal/inference"
	"github.com/RaiderRus/moodTrack/internal/tags"
)

// Config configures the backend.
type Config struct {
	BaseURL         string
	APIKey          string
	TranscribeModel string
	ChatModel       string
	RatePerSecond   float64
	Burst           int
	MaxAudioBytes   int64
}

// Backend implements inference.Backend.
type Backend struct {
	http     *resty.Client
	chat     llms.Model
	catalog  *tags.Catalog
	limiter  *rate.Limiter
	model    string
	maxBytes int64
}

var _ inference.Backend = (*Backend)(nil)

// New builds a backend talking to cfg.BaseURL.
func New(cfg Config, catalog *tags.Catalog) (*Backend, error) {
	chat, err := lcopenai.New(
		lcopenai.WithBaseURL(cfg.BaseURL),
		lcopenai.WithModel(cfg.ChatModel),
		lcopenai.WithToken(cfg.APIKey),
	)
	if err != nil {
		return nil, fmt.Errorf("create chat model: %w", err)
	}
	return NewWithModel(cfg, catalog, chat), nil
}

// NewWithModel uses the given chat model for classification.
func NewWithModel(cfg Config, catalog *tags.Catalog, chat llms.Model) *Backend {
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 2
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.TranscribeModel == "" {
		cfg.TranscribeModel = "whisper-1"
	}
	c := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetAuthToken(cfg.APIKey).
		SetTimeout(5 * time.Minute)
	return &Backend{
		http:     c,
		chat:     chat,
		catalog:  catalog,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		model:    cfg.TranscribeModel,
		maxBytes: cfg.MaxAudioBytes,
	}
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

// Transcribe sends audio to the whisper transcription endpoint.
func (b *Backend) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("empty audio")
	}
	if b.maxBytes > 0 && int64(len(audio)) > b.maxBytes {
		return "", inference.ErrAudioTooLarge
	}
	if filename == "" {
		filename = "recording.webm"
	}
	if err := b.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	resp, err := b.http.R().
		SetContext(ctx).
		SetMultipartField("file", filename, "audio/webm", bytes.NewReader(audio)).
		SetMultipartFormData(map[string]string{"model": b.model}).
		Post("/audio/transcriptions")
	if err != nil {
		return "", fmt.Errorf("transcription request: %w", err)
	}
	if !resp.IsSuccess() {
		return "", fmt.Errorf("transcription status %d: %s", resp.StatusCode(), resp.String())
	}
	var out transcriptionResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return "", fmt.Errorf("decode transcription: %w", err)
	}
	return strings.TrimSpace(out.Text), nil
}

// TranscribeURL downloads the recording and transcribes it.
func (b *Backend) TranscribeURL(ctx context.Context, audioURL string) (string, error) {
	resp, err := resty.New().R().SetContext(ctx).Get(audioURL)
	if err != nil {
		return "", fmt.Errorf("fetch audio: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("fetch audio status %d", resp.StatusCode())
	}
	return b.Transcribe(ctx, resp.Body(), "recording.webm")
}

// Classify asks the chat model for tag ids and keeps those the catalog can resolve.
func (b *Backend) Classify(ctx context.Context, text string) ([]string, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	msgs := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, systemPrompt(b.catalog)),
		llms.TextParts(schema.ChatMessageTypeHuman, text),
	}
	resp, err := b.chat.GenerateContent(ctx, msgs, llms.WithTemperature(0))
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}
	ids, err := parseTagArray(resp.Choices[0].Content)
	if err != nil {
		return nil, err
	}
	return b.catalog.KnownIDs(ids), nil
}

// HealthPing lists models, which needs a valid key and a reachable endpoint.
func (b *Backend) HealthPing(ctx context.Context) error {
	resp, err := b.http.R().SetContext(ctx).Get("/models")
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("models status %d", resp.StatusCode())
	}
	return nil
}

var promptLabels = map[tags.Category]string{
	tags.CategoryEmotion:  "Emotions",
	tags.CategoryActivity: "Activity",
	tags.CategoryPlace:    "Contexts",
}

func systemPrompt(c *tags.Catalog) string {
	var sb strings.Builder
	sb.WriteString("You are a mood analysis expert. Analyze the given text and return relevant mood tags from the following categories:\n")
	for _, cat := range tags.Categories {
		var ids []string
		for _, t := range c.Palette() {
			if t.Category == cat {
				ids = append(ids, t.ID)
			}
		}
		if len(ids) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "%s: %s\n", promptLabels[cat], strings.Join(ids, ", "))
	}
	sb.WriteString("Return only the tag IDs in a JSON array.")
	return sb.String()
}

// parseTagArray extracts the first JSON string array from a model reply,
// tolerating surrounding prose or code fences.
func parseTagArray(content string) ([]string, error) {
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start < 0 || end < start {
		return nil, fmt.Errorf("no JSON array in model reply %q", content)
	}
	var ids []string
	if err := json.Unmarshal([]byte(content[start:end+1]), &ids); err != nil {
		return nil, fmt.Errorf("decode tag array: %w", err)
	}
	return ids, nil
}
