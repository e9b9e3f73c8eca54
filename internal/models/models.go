package models

import (
	"encoding/json"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// Payment lifecycle persisted in Postgres. Transitions are pending -> success|failed
// and nothing further.
const (
	PaymentStatusPending = "pending"
	PaymentStatusSuccess = "success"
	PaymentStatusFailed  = "failed"
)

// Refund lifecycle.
const (
	RefundStatusPending   = "pending"
	RefundStatusProcessed = "processed"
)

// WebhookLog delivery states.
const (
	WebhookStatusPending = "pending"
	WebhookStatusSuccess = "success"
	WebhookStatusFailed  = "failed"
)

// Payment methods accepted by the gateway.
const (
	MethodUPI  = "upi"
	MethodCard = "card"
)

// Merchant is the account a payment or refund belongs to. The webhook URL and
// secret drive outbound delivery; merchants without a URL receive no callbacks.
type Merchant struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	APIKey        string    `json:"api_key"`
	APISecret     string    `json:"-"`
	WebhookURL    string    `json:"webhook_url,omitempty"`
	WebhookSecret string    `json:"-"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Order groups payments under a merchant-supplied amount and receipt.
type Order struct {
	ID         string    `json:"id"`
	MerchantID uuid.UUID `json:"merchant_id"`
	Amount     int64     `json:"amount"`
	Currency   string    `json:"currency"`
	Receipt    string    `json:"receipt,omitempty"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

// Payment is a single attempt against an order. Instrument data is stored
// masked: a VPA for UPI, network plus last four digits for cards.
type Payment struct {
	ID               string     `json:"id"`
	OrderID          string     `json:"order_id"`
	MerchantID       uuid.UUID  `json:"merchant_id"`
	Amount           int64      `json:"amount"`
	Currency         string     `json:"currency"`
	Method           string     `json:"method"`
	Status           string     `json:"status"`
	VPA              string     `json:"vpa,omitempty"`
	CardNetwork      string     `json:"card_network,omitempty"`
	CardLast4        string     `json:"card_last4,omitempty"`
	ErrorCode        *string    `json:"error_code,omitempty"`
	ErrorDescription *string    `json:"error_description,omitempty"`
	Captured         bool       `json:"captured"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Refund is bound to exactly one payment. The cumulative amount of its
// non-failed siblings never exceeds the payment amount; that is enforced once,
// at creation time.
type Refund struct {
	ID          string     `json:"id"`
	PaymentID   string     `json:"payment_id"`
	MerchantID  uuid.UUID  `json:"merchant_id"`
	Amount      int64      `json:"amount"`
	Reason      string     `json:"reason,omitempty"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

// WebhookLog tracks one delivery series for one (merchant, event) occurrence.
// Attempts counts HTTP POSTs made so far; NextRetryAt is non-nil only while the
// log is pending and a future attempt is scheduled.
type WebhookLog struct {
	ID            uuid.UUID       `json:"id"`
	MerchantID    uuid.UUID       `json:"merchant_id"`
	Event         string          `json:"event"`
	Payload       json.RawMessage `json:"payload"`
	Status        string          `json:"status"`
	Attempts      int             `json:"attempts"`
	LastAttemptAt *time.Time      `json:"last_attempt_at,omitempty"`
	NextRetryAt   *time.Time      `json:"next_retry_at,omitempty"`
	ResponseCode  *int            `json:"response_code,omitempty"`
	ResponseBody  *string         `json:"response_body,omitempty"`
	Archived      bool            `json:"archived"`
	CreatedAt     time.Time       `json:"created_at"`
}

// IdempotencyRecord caches the response body produced for a client-supplied
// key, scoped to a merchant, for 24 hours.
type IdempotencyRecord struct {
	Key        string          `json:"key"`
	MerchantID uuid.UUID       `json:"merchant_id"`
	Response   json.RawMessage `json:"response"`
	CreatedAt  time.Time       `json:"created_at"`
	ExpiresAt  time.Time       `json:"expires_at"`
}

const idAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomID(prefix string) string {
	b := make([]byte, 16)
	for i := range b {
		b[i] = idAlphabet[rand.Intn(len(idAlphabet))]
	}
	return prefix + string(b)
}

// NewOrderID returns an id like "order_Ab12...".
func NewOrderID() string { return randomID("order_") }

// NewPaymentID returns an id like "pay_Ab12...".
func NewPaymentID() string { return randomID("pay_") }

// NewRefundID returns an id like "rfnd_Ab12...".
func NewRefundID() string { return randomID("rfnd_") }

// NewWebhookSecret returns a signing secret like "whsec_Ab12..." with 24
// alphanumerics.
func NewWebhookSecret() string {
	b := make([]byte, 24)
	for i := range b {
		b[i] = idAlphabet[rand.Intn(len(idAlphabet))]
	}
	return "whsec_" + string(b)
}
