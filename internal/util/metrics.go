package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EntriesSubmittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "entries_submitted_total",
		Help: "Total number of show entries submitted",
	})

	EntriesConfirmedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "entries_confirmed_total",
		Help: "Total number of entries confirmed after successful payment",
	})

	PaymentsSucceededTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payments_succeeded_total",
		Help: "Total number of payment records marked succeeded",
	})

	PaymentsFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payments_failed_total",
		Help: "Total number of payment records marked failed",
	})

	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Total number of processor webhook deliveries",
	}, []string{"kind", "outcome"})

	WebhookVerificationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webhook_verification_failures_total",
		Help: "Total number of webhook deliveries rejected by signature verification",
	})

	WebhookProcessingLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "webhook_processing_latency_seconds",
		Help:    "Latency of webhook event processing",
		Buckets: prometheus.DefBuckets,
	})

	NotificationsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_sent_total",
		Help: "Total number of exhibitor notifications dispatched",
	}, []string{"kind"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
