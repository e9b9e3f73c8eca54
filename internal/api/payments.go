package api

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"payment-gateway/internal/models"
	"payment-gateway/internal/ratelimit"
	"payment-gateway/internal/telemetry"
	"payment-gateway/internal/validation"
)

const idempotencyHeader = "X-Idempotency-Key"

type cardDetails struct {
	Number      string `json:"number"`
	ExpiryMonth string `json:"expiry_month"`
	ExpiryYear  string `json:"expiry_year"`
	CVV         string `json:"cvv"`
	HolderName  string `json:"holder_name"`
}

type createPaymentRequest struct {
	OrderID string       `json:"order_id"`
	Method  string       `json:"method"`
	VPA     string       `json:"vpa"`
	Card    *cardDetails `json:"card"`
}

// handleCreatePayment accepts a payment against an order, persists it pending,
// and enqueues it for asynchronous settlement. The response is the pending
// payment; clients learn the outcome via webhook or polling.
func (s *Server) handleCreatePayment(w http.ResponseWriter, r *http.Request) {
	m := merchantFrom(r)

	idemKey := r.Header.Get(idempotencyHeader)
	if idemKey != "" && s.idem != nil {
		if cached, found := s.idem.Get(r.Context(), idemKey, m.ID); found {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(cached)
			return
		}
	}

	if s.limiter != nil {
		allowed, _, err := s.limiter.Allow(r.Context(), ratelimit.MerchantKey(m.ID))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "rate limiter unavailable")
			return
		}
		if !allowed {
			telemetry.RateLimitRejects.Inc()
			writeError(w, http.StatusTooManyRequests, "RATE_LIMIT_ERROR", "too many requests, slow down")
			return
		}
	}

	var req createPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST_ERROR", "invalid json")
		return
	}
	order, found, err := s.store.GetOrder(r.Context(), req.OrderID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "could not load order")
		return
	}
	if !found || order.MerchantID != m.ID {
		writeError(w, http.StatusNotFound, "NOT_FOUND_ERROR", "order not found")
		return
	}

	payment := models.Payment{
		ID:         models.NewPaymentID(),
		OrderID:    order.ID,
		MerchantID: m.ID,
		Amount:     order.Amount,
		Currency:   order.Currency,
		Method:     req.Method,
		Status:     models.PaymentStatusPending,
	}
	switch req.Method {
	case models.MethodUPI:
		if !validation.ValidVPA(req.VPA) {
			writeError(w, http.StatusBadRequest, "BAD_REQUEST_ERROR", "invalid vpa")
			return
		}
		payment.VPA = req.VPA
	case models.MethodCard:
		if req.Card == nil {
			writeError(w, http.StatusBadRequest, "BAD_REQUEST_ERROR", "card details required")
			return
		}
		if !validation.ValidLuhn(req.Card.Number) {
			writeError(w, http.StatusBadRequest, "BAD_REQUEST_ERROR", "invalid card number")
			return
		}
		if !validation.ValidExpiry(req.Card.ExpiryMonth, req.Card.ExpiryYear, time.Now()) {
			writeError(w, http.StatusBadRequest, "BAD_REQUEST_ERROR", "card expired or expiry invalid")
			return
		}
		// Only the network and last four digits are stored.
		payment.CardNetwork = validation.CardNetwork(req.Card.Number)
		payment.CardLast4 = validation.Last4(req.Card.Number)
	default:
		writeError(w, http.StatusBadRequest, "BAD_REQUEST_ERROR", "method must be upi or card")
		return
	}

	if err := s.store.CreatePayment(r.Context(), payment); err != nil {
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "could not create payment")
		return
	}
	if err := s.queue.Enqueue(r.Context(), models.PaymentQueue, models.PaymentJob{PaymentID: payment.ID}); err != nil {
		log.Printf("enqueue payment %s: %v", payment.ID, err)
		writeError(w, http.StatusServiceUnavailable, "SERVER_ERROR", "payment accepted but processing is delayed")
		return
	}
	telemetry.JobsEnqueued.WithLabelValues(models.PaymentQueue).Inc()

	body, err := json.Marshal(payment)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "could not encode payment")
		return
	}
	if idemKey != "" && s.idem != nil {
		s.idem.Put(r.Context(), idemKey, m.ID, body)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(body)
}

func (s *Server) handleGetPayment(w http.ResponseWriter, r *http.Request) {
	m := merchantFrom(r)
	p, found, err := s.store.GetPayment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "could not load payment")
		return
	}
	if !found || p.MerchantID != m.ID {
		writeError(w, http.StatusNotFound, "NOT_FOUND_ERROR", "payment not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleListPayments(w http.ResponseWriter, r *http.Request) {
	m := merchantFrom(r)
	payments, err := s.store.ListPaymentsByMerchant(r.Context(), m.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "could not load payments")
		return
	}
	if payments == nil {
		payments = []models.Payment{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(payments), "items": payments})
}

// handleCapturePayment flags a successful payment as captured. Capturing an
// already-captured payment is a no-op that returns the current state.
func (s *Server) handleCapturePayment(w http.ResponseWriter, r *http.Request) {
	m := merchantFrom(r)
	p, found, err := s.store.GetPayment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "could not load payment")
		return
	}
	if !found || p.MerchantID != m.ID {
		writeError(w, http.StatusNotFound, "NOT_FOUND_ERROR", "payment not found")
		return
	}
	if p.Status != models.PaymentStatusSuccess {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST_ERROR", "only successful payments can be captured")
		return
	}
	if !p.Captured {
		if err := s.store.CapturePayment(r.Context(), p.ID); err != nil {
			writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "could not capture payment")
			return
		}
		p.Captured = true
	}
	writeJSON(w, http.StatusOK, p)
}
