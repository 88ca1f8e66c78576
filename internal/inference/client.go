// Package inference talks to the transcription and tag classification service.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/RaiderRus/moodTrack/internal/metrics"
)

// Transcriber turns recorded audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// Classifier proposes tag ids for a piece of text.
type Classifier interface {
	Classify(ctx context.Context, text string) ([]string, error)
}

// Wire shapes shared with the inference service.
type (
	TranscribeURLRequest struct {
		AudioURL string `json:"audioUrl"`
	}
	TranscribeResponse struct {
		Text string `json:"text"`
	}
	AnalyzeRequest struct {
		Text string `json:"text"`
	}
	AnalyzeResponse struct {
		Tags []string `json:"tags"`
	}
)

// Client calls the inference HTTP API.
type Client struct {
	http *resty.Client
}

// New creates a client for baseURL. A zero timeout leaves calls unbounded.
func New(baseURL string, timeout time.Duration) *Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json")
	if timeout > 0 {
		c.SetTimeout(timeout)
	}
	return &Client{http: c}
}

// Transcribe uploads one audio/webm recording as multipart field "file".
func (c *Client) Transcribe(ctx context.Context, audio []byte) (text string, err error) {
	defer func(start time.Time) { metrics.ObserveInference("transcribe", start, err) }(time.Now())

	resp, err := c.http.R().
		SetContext(ctx).
		SetMultipartField("file", "recording.webm", "audio/webm", bytes.NewReader(audio)).
		Post("/api/transcribe")
	if err != nil {
		return "", &TranscriptionError{Err: err}
	}
	if !resp.IsSuccess() {
		return "", &TranscriptionError{StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	var out TranscribeResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return "", &TranscriptionError{Err: fmt.Errorf("decode response: %w", err)}
	}
	return out.Text, nil
}

// Classify posts text to /api/analyze. Ids are returned as sent; callers filter them against the catalog.
func (c *Client) Classify(ctx context.Context, text string) (tags []string, err error) {
	defer func(start time.Time) { metrics.ObserveInference("analyze", start, err) }(time.Now())

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(&AnalyzeRequest{Text: text}).
		Post("/api/analyze")
	if err != nil {
		return nil, &ClassificationError{Err: err}
	}
	if !resp.IsSuccess() {
		return nil, &ClassificationError{StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	var out AnalyzeResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, &ClassificationError{Err: fmt.Errorf("decode response: %w", err)}
	}
	return out.Tags, nil
}

// HealthPing implements health.HealthPinger for the inference service.
func (c *Client) HealthPing(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Get("/api/health")
	if err != nil {
		return err
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("inference health status %d", resp.StatusCode())
	}
	return nil
}
