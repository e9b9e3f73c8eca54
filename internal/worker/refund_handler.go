package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"time"

	"payment-gateway/internal/config"
	"payment-gateway/internal/models"
	"payment-gateway/internal/queue"
	"payment-gateway/internal/telemetry"
)

// RefundStore is the persistence surface the refund handler needs.
type RefundStore interface {
	GetRefund(ctx context.Context, id string) (models.Refund, bool, error)
	GetPayment(ctx context.Context, id string) (models.Payment, bool, error)
	ListRefundsByPayment(ctx context.Context, paymentID string) ([]models.Refund, error)
	MarkRefundProcessed(ctx context.Context, id string, processedAt time.Time) error
}

// RefundHandler finalizes pending refunds. The authoritative refundability
// check happens once, at creation time; anything re-checked here is advisory
// and never aborts processing.
type RefundHandler struct {
	cfg   config.Config
	store RefundStore
	queue queue.Queue

	sleep     func(time.Duration)
	randFloat func() float64
	now       func() time.Time
}

func NewRefundHandler(cfg config.Config, st RefundStore, q queue.Queue) *RefundHandler {
	return &RefundHandler{
		cfg:       cfg,
		store:     st,
		queue:     q,
		sleep:     time.Sleep,
		randFloat: rand.Float64,
		now:       time.Now,
	}
}

func (h *RefundHandler) Handle(ctx context.Context, body []byte) error {
	var job models.RefundJob
	if err := json.Unmarshal(body, &job); err != nil {
		return fmt.Errorf("decode refund job: %w", err)
	}

	refund, found, err := h.store.GetRefund(ctx, job.RefundID)
	if err != nil {
		return fmt.Errorf("load refund %s: %w", job.RefundID, err)
	}
	if !found {
		log.Printf("refund %s not found, dropping job", job.RefundID)
		return nil
	}

	h.advisoryCheck(ctx, refund)

	delay := 3*time.Second + time.Duration(h.randFloat()*float64(2*time.Second))
	if h.cfg.TestMode {
		delay = h.cfg.TestProcessingDelay
	}
	h.sleep(delay)

	processedAt := h.now()
	if err := h.store.MarkRefundProcessed(ctx, refund.ID, processedAt); err != nil {
		return fmt.Errorf("mark refund %s processed: %w", refund.ID, err)
	}
	refund.Status = models.RefundStatusProcessed
	refund.ProcessedAt = &processedAt
	telemetry.RefundsProcessed.Inc()
	log.Printf("refund %s processed", refund.ID)

	h.enqueueWebhook(ctx, refund)
	return nil
}

// advisoryCheck logs when the cumulative refunded amount looks inconsistent
// with the originating payment. The pending row was validated when it was
// created, so a mismatch here is worth a log line, nothing more.
func (h *RefundHandler) advisoryCheck(ctx context.Context, refund models.Refund) {
	payment, found, err := h.store.GetPayment(ctx, refund.PaymentID)
	if err != nil || !found {
		return
	}
	siblings, err := h.store.ListRefundsByPayment(ctx, refund.PaymentID)
	if err != nil {
		return
	}
	var total int64
	for _, r := range siblings {
		if r.Status == models.RefundStatusPending || r.Status == models.RefundStatusProcessed {
			total += r.Amount
		}
	}
	if total > payment.Amount {
		log.Printf("refund %s: cumulative refunds %d exceed payment amount %d", refund.ID, total, payment.Amount)
	}
}

func (h *RefundHandler) enqueueWebhook(ctx context.Context, r models.Refund) {
	refundData := map[string]any{
		"id":         r.ID,
		"payment_id": r.PaymentID,
		"amount":     r.Amount,
		"status":     r.Status,
	}
	if r.ProcessedAt != nil {
		refundData["processed_at"] = r.ProcessedAt.UTC().Format(time.RFC3339)
	}

	job := models.WebhookJob{
		MerchantID: r.MerchantID,
		Event:      models.EventRefundProcessed,
		Payload: map[string]any{
			"event":     models.EventRefundProcessed,
			"timestamp": time.Now().Unix(),
			"data":      map[string]any{"refund": refundData},
		},
	}
	if err := h.queue.Enqueue(ctx, models.WebhookQueue, job); err != nil {
		log.Printf("enqueue webhook for refund %s: %v", r.ID, err)
		return
	}
	telemetry.JobsEnqueued.WithLabelValues(models.WebhookQueue).Inc()
}
