package worker

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"payment-gateway/internal/config"
	"payment-gateway/internal/models"
)

func webhookConfig() config.Config {
	return config.Config{
		MaxDeliveryAttempts: 5,
		WebhookTimeout:      2 * time.Second,
	}
}

func singleLog(t *testing.T, st *fakeStore) models.WebhookLog {
	t.Helper()
	if len(st.webhookLogs) != 1 {
		t.Fatalf("expected exactly 1 webhook log, got %d", len(st.webhookLogs))
	}
	for _, l := range st.webhookLogs {
		return l
	}
	return models.WebhookLog{}
}

func TestWebhookDeliverySignsAndSucceeds(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	merchant := uuid.New()

	var gotBody []byte
	var gotSignature, gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSignature = r.Header.Get("X-Webhook-Signature")
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	st.merchants[merchant] = models.Merchant{ID: merchant, WebhookURL: srv.URL, WebhookSecret: "whsec_123", Active: true}

	h := NewWebhookHandler(webhookConfig(), st)
	job := models.WebhookJob{
		MerchantID: merchant,
		Event:      models.EventPaymentSuccess,
		Payload: map[string]any{
			"event":     models.EventPaymentSuccess,
			"timestamp": 1700000000,
			"data":      map[string]any{"payment": map[string]any{"id": "pay_abc"}},
		},
	}
	if err := h.Handle(ctx, mustJob(t, job)); err != nil {
		t.Fatalf("handle: %v", err)
	}

	l := singleLog(t, st)
	if l.Status != models.WebhookStatusSuccess {
		t.Fatalf("expected status success, got %s", l.Status)
	}
	if l.Attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", l.Attempts)
	}
	if l.NextRetryAt != nil {
		t.Fatal("next_retry_at must be nil after success")
	}
	if l.ResponseCode == nil || *l.ResponseCode != http.StatusOK {
		t.Fatalf("expected response code 200, got %v", l.ResponseCode)
	}
	if l.LastAttemptAt == nil {
		t.Fatal("last_attempt_at not recorded")
	}

	if gotContentType != "application/json" {
		t.Fatalf("expected application/json, got %s", gotContentType)
	}
	// The wire body and the persisted payload must be the same byte string,
	// and the signature must cover exactly those bytes.
	if string(gotBody) != string(l.Payload) {
		t.Fatalf("body %q differs from persisted payload %q", gotBody, l.Payload)
	}
	if gotSignature != Sign(gotBody, "whsec_123") {
		t.Fatal("signature does not verify against delivered body")
	}
}

func TestWebhookFailureSchedulesTieredRetry(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	merchant := uuid.New()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()
	st.merchants[merchant] = models.Merchant{ID: merchant, WebhookURL: srv.URL, Active: true}

	logID := uuid.New()
	st.webhookLogs[logID] = models.WebhookLog{
		ID:         logID,
		MerchantID: merchant,
		Event:      models.EventPaymentFailed,
		Payload:    []byte(`{"event":"payment.failed"}`),
		Status:     models.WebhookStatusPending,
		Attempts:   1,
	}

	h := NewWebhookHandler(webhookConfig(), st)
	attemptAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return attemptAt }

	job := models.WebhookJob{MerchantID: merchant, Event: models.EventPaymentFailed, ExistingLogID: &logID}
	if err := h.Handle(ctx, mustJob(t, job)); err != nil {
		t.Fatalf("handle: %v", err)
	}

	l := st.webhookLogs[logID]
	if l.Status != models.WebhookStatusPending {
		t.Fatalf("expected status pending, got %s", l.Status)
	}
	if l.Attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", l.Attempts)
	}
	if l.NextRetryAt == nil {
		t.Fatal("expected a scheduled retry")
	}
	// Second attempt just completed: the production table says +300s.
	if want := attemptAt.Add(5 * time.Minute); !l.NextRetryAt.Equal(want) {
		t.Fatalf("expected next retry at %s, got %s", want, l.NextRetryAt)
	}
	if l.ResponseCode == nil || *l.ResponseCode != http.StatusInternalServerError {
		t.Fatalf("expected response code 500, got %v", l.ResponseCode)
	}
}

func TestWebhookExhaustsAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	merchant := uuid.New()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "still broken", http.StatusInternalServerError)
	}))
	defer srv.Close()
	st.merchants[merchant] = models.Merchant{ID: merchant, WebhookURL: srv.URL, Active: true}

	logID := uuid.New()
	st.webhookLogs[logID] = models.WebhookLog{
		ID:         logID,
		MerchantID: merchant,
		Event:      models.EventRefundProcessed,
		Payload:    []byte(`{"event":"refund.processed"}`),
		Status:     models.WebhookStatusPending,
		Attempts:   4,
	}

	h := NewWebhookHandler(webhookConfig(), st)
	job := models.WebhookJob{MerchantID: merchant, Event: models.EventRefundProcessed, ExistingLogID: &logID}
	if err := h.Handle(ctx, mustJob(t, job)); err != nil {
		t.Fatalf("handle: %v", err)
	}

	l := st.webhookLogs[logID]
	if l.Status != models.WebhookStatusFailed {
		t.Fatalf("expected terminal failed, got %s", l.Status)
	}
	if l.Attempts != 5 {
		t.Fatalf("expected 5 attempts, got %d", l.Attempts)
	}
	if l.NextRetryAt != nil {
		t.Fatal("terminal failure must not schedule a retry")
	}
}

func TestWebhookNoEndpointAbandonsSilently(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	merchant := uuid.New()
	st.merchants[merchant] = models.Merchant{ID: merchant, Active: true} // no URL

	h := NewWebhookHandler(webhookConfig(), st)
	job := models.WebhookJob{MerchantID: merchant, Event: models.EventPaymentSuccess, Payload: map[string]any{"event": "payment.success"}}
	if err := h.Handle(ctx, mustJob(t, job)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(st.webhookLogs) != 0 {
		t.Fatal("merchant without endpoint must not get a delivery history")
	}
}

func TestWebhookUnknownMerchantAbandonsSilently(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()

	h := NewWebhookHandler(webhookConfig(), st)
	job := models.WebhookJob{MerchantID: uuid.New(), Event: models.EventPaymentSuccess, Payload: map[string]any{}}
	if err := h.Handle(ctx, mustJob(t, job)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(st.webhookLogs) != 0 {
		t.Fatal("unknown merchant must not get a delivery history")
	}
}

func TestWebhookTransportFailureStaysPending(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	merchant := uuid.New()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	srv.Close() // connection refused from here on
	st.merchants[merchant] = models.Merchant{ID: merchant, WebhookURL: srv.URL, Active: true}

	h := NewWebhookHandler(webhookConfig(), st)
	job := models.WebhookJob{MerchantID: merchant, Event: models.EventPaymentSuccess, Payload: map[string]any{"event": "payment.success"}}
	if err := h.Handle(ctx, mustJob(t, job)); err != nil {
		t.Fatalf("handle: %v", err)
	}

	l := singleLog(t, st)
	if l.Status != models.WebhookStatusPending {
		t.Fatalf("expected pending after transport failure, got %s", l.Status)
	}
	if l.Attempts != 1 {
		t.Fatalf("transport failure still counts as an attempt, got %d", l.Attempts)
	}
	if l.ResponseCode != nil {
		t.Fatalf("no response code expected, got %v", *l.ResponseCode)
	}
	if l.ResponseBody == nil || !strings.Contains(*l.ResponseBody, "refused") {
		t.Fatalf("expected error text recorded, got %v", l.ResponseBody)
	}
	if l.NextRetryAt == nil {
		t.Fatal("expected a scheduled retry")
	}
}

func TestWebhookWithoutSecretOmitsSignature(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	merchant := uuid.New()

	signatureSeen := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, signatureSeen = r.Header["X-Webhook-Signature"]
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()
	st.merchants[merchant] = models.Merchant{ID: merchant, WebhookURL: srv.URL, Active: true}

	h := NewWebhookHandler(webhookConfig(), st)
	job := models.WebhookJob{MerchantID: merchant, Event: models.EventPaymentSuccess, Payload: map[string]any{"event": "payment.success"}}
	if err := h.Handle(ctx, mustJob(t, job)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if signatureSeen {
		t.Fatal("signature header must be omitted without a secret")
	}
	if l := singleLog(t, st); l.Status != models.WebhookStatusSuccess {
		t.Fatalf("204 is a 2xx, expected success, got %s", l.Status)
	}
}
