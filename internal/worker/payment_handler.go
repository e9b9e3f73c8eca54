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

// PaymentStore is the persistence surface the payment handler needs.
type PaymentStore interface {
	GetPayment(ctx context.Context, id string) (models.Payment, bool, error)
	SetPaymentOutcome(ctx context.Context, id, status string, errCode, errDesc *string) error
}

// PaymentHandler settles pending payments against a simulated processor.
type PaymentHandler struct {
	cfg   config.Config
	store PaymentStore
	queue queue.Queue

	sleep     func(time.Duration)
	randFloat func() float64
}

func NewPaymentHandler(cfg config.Config, st PaymentStore, q queue.Queue) *PaymentHandler {
	return &PaymentHandler{
		cfg:       cfg,
		store:     st,
		queue:     q,
		sleep:     time.Sleep,
		randFloat: rand.Float64,
	}
}

// Handle simulates one settlement round-trip: delay, outcome draw, status
// persist, then a webhook job for the resulting event.
func (h *PaymentHandler) Handle(ctx context.Context, body []byte) error {
	var job models.PaymentJob
	if err := json.Unmarshal(body, &job); err != nil {
		return fmt.Errorf("decode payment job: %w", err)
	}

	payment, found, err := h.store.GetPayment(ctx, job.PaymentID)
	if err != nil {
		return fmt.Errorf("load payment %s: %w", job.PaymentID, err)
	}
	if !found {
		// The record is created transactionally before the job is enqueued, so a
		// missing payment is corruption, not a race. Drop it.
		log.Printf("payment %s not found, dropping job", job.PaymentID)
		return nil
	}

	h.sleep(h.processingDelay())

	if h.outcome(payment.Method) {
		payment.Status = models.PaymentStatusSuccess
		payment.ErrorCode = nil
		payment.ErrorDescription = nil
	} else {
		payment.Status = models.PaymentStatusFailed
		code := "PAYMENT_FAILED"
		desc := "Payment processing failed due to bank rejection."
		payment.ErrorCode = &code
		payment.ErrorDescription = &desc
	}

	if err := h.store.SetPaymentOutcome(ctx, payment.ID, payment.Status, payment.ErrorCode, payment.ErrorDescription); err != nil {
		return fmt.Errorf("persist outcome for %s: %w", payment.ID, err)
	}
	telemetry.PaymentsProcessed.WithLabelValues(payment.Status).Inc()
	log.Printf("payment %s settled as %s", payment.ID, payment.Status)

	// Notification is best-effort either way; a webhook hiccup never rolls
	// back the payment state.
	h.enqueueWebhook(ctx, payment)
	return nil
}

func (h *PaymentHandler) processingDelay() time.Duration {
	if h.cfg.TestMode {
		return h.cfg.TestProcessingDelay
	}
	return 5*time.Second + time.Duration(h.randFloat()*float64(5*time.Second))
}

func (h *PaymentHandler) outcome(method string) bool {
	if h.cfg.TestMode {
		return h.cfg.TestPaymentSuccess
	}
	rate := h.cfg.CardSuccessRate
	if method == models.MethodUPI {
		rate = h.cfg.UPISuccessRate
	}
	return h.randFloat() < rate
}

func (h *PaymentHandler) enqueueWebhook(ctx context.Context, p models.Payment) {
	event := models.EventPaymentSuccess
	if p.Status == models.PaymentStatusFailed {
		event = models.EventPaymentFailed
	}

	paymentData := map[string]any{
		"id":         p.ID,
		"order_id":   p.OrderID,
		"amount":     p.Amount,
		"currency":   p.Currency,
		"method":     p.Method,
		"status":     p.Status,
		"created_at": p.CreatedAt.UTC().Format(time.RFC3339),
	}
	if p.ErrorCode != nil {
		paymentData["error_code"] = *p.ErrorCode
		paymentData["error_description"] = *p.ErrorDescription
	}

	job := models.WebhookJob{
		MerchantID: p.MerchantID,
		Event:      event,
		Payload: map[string]any{
			"event":     event,
			"timestamp": time.Now().Unix(),
			"data":      map[string]any{"payment": paymentData},
		},
	}
	if err := h.queue.Enqueue(ctx, models.WebhookQueue, job); err != nil {
		log.Printf("enqueue webhook for payment %s: %v", p.ID, err)
		return
	}
	telemetry.JobsEnqueued.WithLabelValues(models.WebhookQueue).Inc()
}
