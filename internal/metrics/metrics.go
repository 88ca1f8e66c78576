// Package metrics registers the service's Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "moodtrack"

var (
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route template, method and status code.",
		},
		[]string{"route", "method", "code"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route template.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	InferenceCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inference_calls_total",
			Help:      "Transcription and classification calls by outcome.",
		},
		[]string{"op", "outcome"},
	)

	InferenceDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inference_call_duration_seconds",
			Help:      "Latency of inference calls.",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"op"},
	)

	EntriesSaved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_saved_total",
			Help:      "Mood entries persisted, by input kind (text, voice).",
		},
		[]string{"kind"},
	)

	AudioAttachFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_attach_failures_total",
			Help:      "Entries saved without audio after the retry budget ran out.",
		},
	)

	AudioAttachRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_attach_retries_total",
			Help:      "Retried audio attachment attempts.",
		},
	)

	MoodStoreAppends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "moodstore_appends_total",
			Help:      "Mood Store appends by source (local, realtime) and result (appended, duplicate).",
		},
		[]string{"source", "result"},
	)

	OutboxRelayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_relayed_total",
			Help:      "Outbox rows handled by the relay, by outcome.",
		},
		[]string{"outcome"},
	)
)

// ObserveInference records one inference call.
func ObserveInference(op string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	InferenceCalls.WithLabelValues(op, outcome).Inc()
	InferenceDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
