package worker

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"payment-gateway/internal/config"
	"payment-gateway/internal/models"
	"payment-gateway/internal/queue"
	"payment-gateway/internal/telemetry"
)

// SchedulerStore is the persistence surface the retry scheduler needs.
type SchedulerStore interface {
	ClaimDueWebhookLogs(ctx context.Context, now time.Time, limit int) ([]models.WebhookLog, error)
}

// RetryScheduler periodically sweeps the webhook log for due retries and
// re-enqueues them. Claiming a log nulls its next_retry_at, so a sweep that
// overlaps a slow worker cannot double-enqueue the same record. If the
// process dies between claim and enqueue, the row stays pending with no
// schedule; recovering those needs an external repair sweep.
type RetryScheduler struct {
	cfg   config.Config
	store SchedulerStore
	queue queue.Queue
	now   func() time.Time
}

func NewRetryScheduler(cfg config.Config, st SchedulerStore, q queue.Queue) *RetryScheduler {
	return &RetryScheduler{cfg: cfg, store: st, queue: q, now: time.Now}
}

// Run sweeps on a fixed interval until ctx is cancelled.
func (s *RetryScheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SchedulerInterval)
	defer ticker.Stop()
	log.Printf("webhook retry scheduler started, interval=%s", s.cfg.SchedulerInterval)

	for {
		select {
		case <-ctx.Done():
			log.Printf("webhook retry scheduler stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep claims all due pending logs and re-enqueues them. It returns how many
// jobs were enqueued.
func (s *RetryScheduler) Sweep(ctx context.Context) int {
	logs, err := s.store.ClaimDueWebhookLogs(ctx, s.now(), s.cfg.SchedulerBatch)
	if err != nil {
		log.Printf("claim due webhooks: %v", err)
		return 0
	}
	if len(logs) == 0 {
		return 0
	}
	log.Printf("found %d webhooks due for retry", len(logs))

	enqueued := 0
	for _, l := range logs {
		var payload map[string]any
		if err := json.Unmarshal(l.Payload, &payload); err != nil {
			log.Printf("webhook log %s payload unreadable: %v", l.ID, err)
			continue
		}
		id := l.ID
		job := models.WebhookJob{
			MerchantID:    l.MerchantID,
			Event:         l.Event,
			Payload:       payload,
			ExistingLogID: &id,
		}
		if err := s.queue.Enqueue(ctx, models.WebhookQueue, job); err != nil {
			// The row keeps its null next_retry_at; see the type comment.
			log.Printf("re-enqueue webhook log %s: %v", l.ID, err)
			continue
		}
		telemetry.JobsEnqueued.WithLabelValues(models.WebhookQueue).Inc()
		enqueued++
	}
	return enqueued
}
