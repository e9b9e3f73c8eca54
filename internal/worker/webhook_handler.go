package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"payment-gateway/internal/config"
	"payment-gateway/internal/models"
	"payment-gateway/internal/telemetry"
)

const signatureHeader = "X-Webhook-Signature"

// Response bodies are kept for diagnostics only; cap what we persist.
const maxResponseBody = 64 * 1024

// WebhookStore is the persistence surface the webhook handler needs.
type WebhookStore interface {
	GetMerchant(ctx context.Context, id uuid.UUID) (models.Merchant, bool, error)
	GetWebhookLog(ctx context.Context, id uuid.UUID) (models.WebhookLog, bool, error)
	CreateWebhookLog(ctx context.Context, l *models.WebhookLog) error
	UpdateWebhookDelivery(ctx context.Context, l models.WebhookLog) error
}

// WebhookHandler signs and delivers event payloads to merchant endpoints,
// recording each attempt in the webhook log. Delivery is at-least-once with
// bounded retries: any 2xx is terminal success, the fifth failed attempt is
// terminal failure, everything in between stays pending with a scheduled
// retry.
type WebhookHandler struct {
	cfg    config.Config
	store  WebhookStore
	client *http.Client
	now    func() time.Time
}

func NewWebhookHandler(cfg config.Config, st WebhookStore) *WebhookHandler {
	return &WebhookHandler{
		cfg:    cfg,
		store:  st,
		client: &http.Client{Timeout: cfg.WebhookTimeout},
		now:    time.Now,
	}
}

func (h *WebhookHandler) Handle(ctx context.Context, body []byte) error {
	var job models.WebhookJob
	if err := json.Unmarshal(body, &job); err != nil {
		return fmt.Errorf("decode webhook job: %w", err)
	}

	merchant, found, err := h.store.GetMerchant(ctx, job.MerchantID)
	if err != nil {
		return fmt.Errorf("load merchant %s: %w", job.MerchantID, err)
	}
	if !found || merchant.WebhookURL == "" {
		// A merchant without an endpoint is not charged a delivery history.
		return nil
	}

	logEntry, ok, err := h.loadOrCreateLog(ctx, job)
	if err != nil || !ok {
		return err
	}

	// The persisted payload is the canonical byte string: it is signed as-is
	// and sent as-is, for first deliveries and retries alike.
	payload := []byte(logEntry.Payload)
	signature := ""
	if merchant.WebhookSecret != "" {
		signature = Sign(payload, merchant.WebhookSecret)
	}

	logEntry.Attempts++
	attemptAt := h.now()
	logEntry.LastAttemptAt = &attemptAt

	code, respBody, postErr := h.post(ctx, merchant.WebhookURL, payload, signature)
	switch {
	case postErr != nil:
		logEntry.Status = models.WebhookStatusPending
		logEntry.ResponseCode = nil
		msg := postErr.Error()
		logEntry.ResponseBody = &msg
	case code >= 200 && code < 300:
		logEntry.Status = models.WebhookStatusSuccess
		logEntry.ResponseCode = &code
		logEntry.ResponseBody = &respBody
	default:
		logEntry.Status = models.WebhookStatusPending
		logEntry.ResponseCode = &code
		logEntry.ResponseBody = &respBody
	}

	switch {
	case logEntry.Status == models.WebhookStatusSuccess:
		logEntry.NextRetryAt = nil
		telemetry.WebhooksDelivered.Inc()
	case logEntry.Attempts >= h.cfg.MaxDeliveryAttempts:
		logEntry.Status = models.WebhookStatusFailed
		logEntry.NextRetryAt = nil
		telemetry.WebhooksExhausted.Inc()
		log.Printf("webhook %s exhausted after %d attempts", logEntry.ID, logEntry.Attempts)
	default:
		retryAt := attemptAt.Add(nextRetryDelay(logEntry.Attempts, h.cfg.TestRetryBackoff))
		logEntry.NextRetryAt = &retryAt
		telemetry.WebhookRetries.Inc()
	}

	if err := h.store.UpdateWebhookDelivery(ctx, logEntry); err != nil {
		return fmt.Errorf("persist webhook log %s: %w", logEntry.ID, err)
	}
	return nil
}

// loadOrCreateLog resolves the WebhookLog this job belongs to: retries carry
// the persisted log's id, first deliveries create a fresh row. A false ok
// means the job should be silently dropped.
func (h *WebhookHandler) loadOrCreateLog(ctx context.Context, job models.WebhookJob) (models.WebhookLog, bool, error) {
	if job.ExistingLogID != nil {
		logEntry, found, err := h.store.GetWebhookLog(ctx, *job.ExistingLogID)
		if err != nil {
			return models.WebhookLog{}, false, fmt.Errorf("load webhook log %s: %w", *job.ExistingLogID, err)
		}
		if !found {
			log.Printf("webhook log %s not found, dropping job", *job.ExistingLogID)
			return models.WebhookLog{}, false, nil
		}
		return logEntry, true, nil
	}

	payload, err := json.Marshal(job.Payload)
	if err != nil {
		// Nothing deliverable and nothing worth a log row.
		log.Printf("webhook payload for %s not serializable: %v", job.Event, err)
		return models.WebhookLog{}, false, nil
	}
	logEntry := models.WebhookLog{
		MerchantID: job.MerchantID,
		Event:      job.Event,
		Payload:    payload,
		Status:     models.WebhookStatusPending,
		Attempts:   0,
	}
	if err := h.store.CreateWebhookLog(ctx, &logEntry); err != nil {
		return models.WebhookLog{}, false, fmt.Errorf("create webhook log: %w", err)
	}
	return logEntry, true, nil
}

func (h *WebhookHandler) post(ctx context.Context, url string, payload []byte, signature string) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(signatureHeader, signature)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return resp.StatusCode, "", nil
	}
	return resp.StatusCode, string(body), nil
}
