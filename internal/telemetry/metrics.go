package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	JobsEnqueued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_jobs_enqueued_total", Help: "Jobs pushed onto a queue",
	}, []string{"queue"})
	PaymentsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_payments_processed_total", Help: "Payments settled by the worker",
	}, []string{"status"})
	RefundsProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gateway_refunds_processed_total", Help: "Refunds finalized by the worker",
	})
	WebhooksDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gateway_webhooks_delivered_total", Help: "Webhook deliveries acknowledged with 2xx",
	})
	WebhookRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gateway_webhook_retries_scheduled_total", Help: "Webhook deliveries scheduled for retry",
	})
	WebhooksExhausted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gateway_webhooks_exhausted_total", Help: "Webhook logs terminally failed after max attempts",
	})
	RateLimitRejects = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gateway_rate_limit_rejects_total", Help: "Requests rejected by the merchant rate limiter",
	})
	QueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gateway_queue_depth", Help: "Pending jobs per queue kind",
	}, []string{"queue"})
	LogsArchived = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gateway_webhook_logs_archived_total", Help: "Failed webhook logs uploaded to the archive",
	})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			JobsEnqueued,
			PaymentsProcessed,
			RefundsProcessed,
			WebhooksDelivered,
			WebhookRetries,
			WebhooksExhausted,
			RateLimitRejects,
			QueueDepth,
			LogsArchived,
		)
	})
	return promhttp.Handler()
}
