package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"payment-gateway/internal/models"
	"payment-gateway/internal/telemetry"
)

func (s *Server) handleGetMerchant(w http.ResponseWriter, r *http.Request) {
	// Secrets carry `json:"-"` tags, so the body is safe to echo.
	writeJSON(w, http.StatusOK, merchantFrom(r))
}

type webhookConfigRequest struct {
	URL    string `json:"url"`
	Secret string `json:"secret"`
}

// handleUpdateWebhookConfig sets the merchant's delivery endpoint and signing
// secret. An empty URL switches callbacks off for the merchant.
func (s *Server) handleUpdateWebhookConfig(w http.ResponseWriter, r *http.Request) {
	m := merchantFrom(r)
	var req webhookConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST_ERROR", "invalid json")
		return
	}
	if err := s.store.UpdateMerchantWebhookConfig(r.Context(), m.ID, req.URL, req.Secret); err != nil {
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "could not update webhook config")
		return
	}
	m.WebhookURL = req.URL
	m.WebhookSecret = req.Secret
	writeJSON(w, http.StatusOK, m)
}

// handleRegenerateWebhookSecret rotates the signing secret, keeping the
// endpoint URL as it is. The new secret is returned exactly once.
func (s *Server) handleRegenerateWebhookSecret(w http.ResponseWriter, r *http.Request) {
	m := merchantFrom(r)
	secret := models.NewWebhookSecret()
	if err := s.store.UpdateMerchantWebhookConfig(r.Context(), m.ID, m.WebhookURL, secret); err != nil {
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "could not rotate webhook secret")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"secret": secret})
}

// handleRetryWebhook rewinds a delivery log and re-enqueues it, giving the
// endpoint a fresh attempt budget. Works on any log the merchant owns,
// including terminally failed ones.
func (s *Server) handleRetryWebhook(w http.ResponseWriter, r *http.Request) {
	m := merchantFrom(r)
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND_ERROR", "webhook log not found")
		return
	}
	logEntry, found, err := s.store.GetWebhookLog(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "could not load webhook log")
		return
	}
	if !found || logEntry.MerchantID != m.ID {
		writeError(w, http.StatusNotFound, "NOT_FOUND_ERROR", "webhook log not found")
		return
	}

	if err := s.store.ResetWebhookLogForRetry(r.Context(), logEntry.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "could not reset webhook log")
		return
	}
	job := models.WebhookJob{
		MerchantID:    logEntry.MerchantID,
		Event:         logEntry.Event,
		ExistingLogID: &logEntry.ID,
	}
	if err := s.queue.Enqueue(r.Context(), models.WebhookQueue, job); err != nil {
		// The log stays pending with no schedule; a second retry call recovers it.
		log.Printf("enqueue manual retry for webhook log %s: %v", logEntry.ID, err)
		writeError(w, http.StatusServiceUnavailable, "SERVER_ERROR", "retry accepted but enqueue failed, try again")
		return
	}
	telemetry.JobsEnqueued.WithLabelValues(models.WebhookQueue).Inc()

	writeJSON(w, http.StatusOK, map[string]any{
		"id":      logEntry.ID,
		"status":  models.WebhookStatusPending,
		"message": "webhook retry scheduled",
	})
}
