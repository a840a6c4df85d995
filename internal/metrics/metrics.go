package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatforms_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatforms_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5, 30, 60},
		},
		[]string{"method", "path"},
	)

	// Webhook metrics
	WebhookCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatforms_webhook_calls_total",
			Help: "Outbound webhook calls by kind and outcome",
		},
		[]string{"kind", "outcome"}, // kind: "chat" | "relay"; outcome: "ok" | "error" | "timeout"
	)

	WebhookCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatforms_webhook_cache_lookups_total",
			Help: "Webhook URL resolutions served from cache or store",
		},
		[]string{"result"}, // "hit" | "miss" | "error"
	)

	// Pipeline metrics
	PipelineOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatforms_pipeline_outcomes_total",
			Help: "Terminal states reached by outgoing chat messages",
		},
		[]string{"state", "reason"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatforms_active_sessions",
			Help: "Sessions currently held in memory",
		},
	)

	ChangeFeedEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatforms_changefeed_events_total",
			Help: "Chat webhook change notifications received",
		},
		[]string{"kind"},
	)

	// Forms
	FormSubmissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatforms_form_submissions_total",
			Help: "Form responses stored",
		},
		[]string{"forwarded"},
	)

	FormForwards = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatforms_form_forwards_total",
			Help: "Form responses forwarded to webhooks by final outcome",
		},
		[]string{"outcome"}, // "delivered" | "failed"
	)

	RateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatforms_rate_limit_hits_total",
			Help: "Requests rejected by the rate limiter",
		},
	)
)
