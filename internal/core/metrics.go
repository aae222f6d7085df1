package core

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	llmRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storyforge_llm_requests_total",
			Help: "Total number of requests to the generation model, by kind and status.",
		},
		[]string{"kind", "status"},
	)
	llmRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storyforge_llm_request_duration_seconds",
			Help:    "Histogram of generation model request durations.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)
	worldsGeneratedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storyforge_worlds_generated_total",
			Help: "Worlds generated, by genre and outcome.",
		},
		[]string{"genre", "status"},
	)
	archiveUnitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storyforge_archive_units_total",
			Help: "Archival units run, by outcome.",
		},
		[]string{"status"},
	)
	archivedMessagesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storyforge_archived_messages_total",
			Help: "Messages written to the chat history index.",
		},
	)
	retrievalFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storyforge_retrieval_failures_total",
			Help: "Chat turns that proceeded without retrieved context because the index failed.",
		},
	)
)

func observeLLMRequest(kind string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	llmRequestsTotal.WithLabelValues(kind, status).Inc()
	llmRequestDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}
