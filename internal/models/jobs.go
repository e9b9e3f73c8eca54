package models

import (
	"github.com/google/uuid"
)

// Queue kinds. One Redis list per kind; names match the broker keys.
const (
	PaymentQueue = "payment_queue"
	RefundQueue  = "refund_queue"
	WebhookQueue = "webhook_queue"
)

// Webhook event types emitted by the workers.
const (
	EventPaymentSuccess  = "payment.success"
	EventPaymentFailed   = "payment.failed"
	EventRefundProcessed = "refund.processed"
)

// PaymentJob asks the payment worker to settle one payment.
type PaymentJob struct {
	PaymentID string `json:"payment_id"`
}

// RefundJob asks the refund worker to finalize one refund.
type RefundJob struct {
	RefundID string `json:"refund_id"`
}

// WebhookJob asks the webhook worker to deliver one event to a merchant.
// ExistingLogID is set when a retry re-enqueues a persisted log; first
// deliveries leave it nil and the worker creates the log.
type WebhookJob struct {
	MerchantID    uuid.UUID      `json:"merchant_id"`
	Event         string         `json:"event"`
	Payload       map[string]any `json:"payload"`
	ExistingLogID *uuid.UUID     `json:"existing_log_id,omitempty"`
}
