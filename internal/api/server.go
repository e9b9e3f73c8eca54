// Package api exposes the merchant-facing HTTP surface: orders, payments,
// captures, refunds, webhook history, and operational endpoints. Handlers only
// validate and persist; all settlement work happens in the worker processes.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"payment-gateway/internal/config"
	"payment-gateway/internal/idempotency"
	"payment-gateway/internal/models"
	"payment-gateway/internal/queue"
	"payment-gateway/internal/ratelimit"
	"payment-gateway/internal/telemetry"
)

// Storage is the persistence surface the API needs.
type Storage interface {
	GetMerchantByAPIKey(ctx context.Context, apiKey string) (models.Merchant, bool, error)
	UpdateMerchantWebhookConfig(ctx context.Context, id uuid.UUID, url, secret string) error
	CreateOrder(ctx context.Context, o models.Order) error
	GetOrder(ctx context.Context, id string) (models.Order, bool, error)
	CreatePayment(ctx context.Context, p models.Payment) error
	GetPayment(ctx context.Context, id string) (models.Payment, bool, error)
	ListPaymentsByMerchant(ctx context.Context, merchantID uuid.UUID) ([]models.Payment, error)
	CapturePayment(ctx context.Context, id string) error
	CreateRefund(ctx context.Context, r models.Refund) error
	GetRefund(ctx context.Context, id string) (models.Refund, bool, error)
	ListRefundsByPayment(ctx context.Context, paymentID string) ([]models.Refund, error)
	ListRefundsByMerchant(ctx context.Context, merchantID uuid.UUID) ([]models.Refund, error)
	ListWebhookLogsByMerchant(ctx context.Context, merchantID uuid.UUID) ([]models.WebhookLog, error)
	GetWebhookLog(ctx context.Context, id uuid.UUID) (models.WebhookLog, bool, error)
	ResetWebhookLogForRetry(ctx context.Context, id uuid.UUID) error
}

// Server wires HTTP handlers for the gateway API.
type Server struct {
	cfg     config.Config
	store   Storage
	queue   queue.Queue
	idem    *idempotency.Cache
	limiter *ratelimit.TokenBucket
}

// New constructs the API server. The limiter may be nil to disable rate
// limiting, which tests use.
func New(cfg config.Config, st Storage, q queue.Queue, idem *idempotency.Cache, limiter *ratelimit.TokenBucket) *Server {
	return &Server{
		cfg:     cfg,
		store:   st,
		queue:   q,
		idem:    idem,
		limiter: limiter,
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/metrics", telemetry.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authenticate)

		r.Post("/orders", s.handleCreateOrder)
		r.Get("/orders/{id}", s.handleGetOrder)

		r.Post("/payments", s.handleCreatePayment)
		r.Get("/payments", s.handleListPayments)
		r.Get("/payments/{id}", s.handleGetPayment)
		r.Post("/payments/{id}/capture", s.handleCapturePayment)
		r.Post("/payments/{id}/refunds", s.handleCreateRefund)

		r.Get("/refunds/{id}", s.handleGetRefund)
		r.Get("/webhooks", s.handleListWebhooks)
		r.Post("/webhooks/{id}/retry", s.handleRetryWebhook)

		r.Get("/jobs/status", s.handleJobStatus)
		r.Get("/merchants/me", s.handleGetMerchant)
		r.Put("/merchants/webhook-config", s.handleUpdateWebhookConfig)
		r.Post("/merchants/webhook-secret/regenerate", s.handleRegenerateWebhookSecret)
		r.Get("/merchants/stats", s.handleMerchantStats)
	})
	return r
}

type ctxKey int

const merchantKey ctxKey = 0

// authenticate resolves X-Api-Key/X-Api-Secret to an active merchant and puts
// it on the request context.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey := r.Header.Get("X-Api-Key")
		apiSecret := r.Header.Get("X-Api-Secret")
		if apiKey == "" || apiSecret == "" {
			writeError(w, http.StatusUnauthorized, "AUTHENTICATION_ERROR", "missing api credentials")
			return
		}
		m, found, err := s.store.GetMerchantByAPIKey(r.Context(), apiKey)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "authentication lookup failed")
			return
		}
		if !found || subtle.ConstantTimeCompare([]byte(m.APISecret), []byte(apiSecret)) != 1 || !m.Active {
			writeError(w, http.StatusUnauthorized, "AUTHENTICATION_ERROR", "invalid api credentials")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), merchantKey, m)))
	})
}

func merchantFrom(r *http.Request) models.Merchant {
	m, _ := r.Context().Value(merchantKey).(models.Merchant)
	return m
}

type createOrderRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	m := merchantFrom(r)
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST_ERROR", "invalid json")
		return
	}
	if req.Amount < 100 {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST_ERROR", "amount must be at least 100 (in minor units)")
		return
	}
	if req.Currency == "" {
		req.Currency = "INR"
	}

	order := models.Order{
		ID:         models.NewOrderID(),
		MerchantID: m.ID,
		Amount:     req.Amount,
		Currency:   req.Currency,
		Receipt:    req.Receipt,
		Status:     "created",
	}
	if err := s.store.CreateOrder(r.Context(), order); err != nil {
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "could not create order")
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	m := merchantFrom(r)
	order, found, err := s.store.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "could not load order")
		return
	}
	if !found || order.MerchantID != m.ID {
		writeError(w, http.StatusNotFound, "NOT_FOUND_ERROR", "order not found")
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (s *Server) handleListWebhooks(w http.ResponseWriter, r *http.Request) {
	m := merchantFrom(r)
	logs, err := s.store.ListWebhookLogsByMerchant(r.Context(), m.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "could not load webhook logs")
		return
	}
	if logs == nil {
		logs = []models.WebhookLog{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(logs), "items": logs})
}

// handleJobStatus reports queue depth per kind, for dashboards and the ops CLI.
func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	depths := map[string]int64{}
	var total int64
	for _, kind := range []string{models.PaymentQueue, models.RefundQueue, models.WebhookQueue} {
		n, err := s.queue.Depth(r.Context(), kind)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "could not read queue depth")
			return
		}
		depths[kind] = n
		total += n
		telemetry.QueueDepth.WithLabelValues(kind).Set(float64(n))
	}
	writeJSON(w, http.StatusOK, map[string]any{"queues": depths, "total": total})
}

type merchantStats struct {
	Payments struct {
		Total    int   `json:"total"`
		Success  int   `json:"success"`
		Failed   int   `json:"failed"`
		Pending  int   `json:"pending"`
		Captured int   `json:"captured"`
		AmountOK int64 `json:"amount_success"`
	} `json:"payments"`
	Refunds struct {
		Total          int   `json:"total"`
		Processed      int   `json:"processed"`
		AmountRefunded int64 `json:"amount_refunded"`
	} `json:"refunds"`
}

func (s *Server) handleMerchantStats(w http.ResponseWriter, r *http.Request) {
	m := merchantFrom(r)
	payments, err := s.store.ListPaymentsByMerchant(r.Context(), m.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "could not load payments")
		return
	}
	refunds, err := s.store.ListRefundsByMerchant(r.Context(), m.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "could not load refunds")
		return
	}

	var stats merchantStats
	stats.Payments.Total = len(payments)
	for _, p := range payments {
		switch p.Status {
		case models.PaymentStatusSuccess:
			stats.Payments.Success++
			stats.Payments.AmountOK += p.Amount
		case models.PaymentStatusFailed:
			stats.Payments.Failed++
		default:
			stats.Payments.Pending++
		}
		if p.Captured {
			stats.Payments.Captured++
		}
	}
	stats.Refunds.Total = len(refunds)
	for _, rf := range refunds {
		if rf.Status == models.RefundStatusProcessed {
			stats.Refunds.Processed++
			stats.Refunds.AmountRefunded += rf.Amount
		}
	}
	writeJSON(w, http.StatusOK, stats)
}

type apiError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

func writeError(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, map[string]apiError{"error": {Code: code, Description: description}})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
