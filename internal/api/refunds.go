package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"payment-gateway/internal/models"
	"payment-gateway/internal/telemetry"
)

type createRefundRequest struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

// handleCreateRefund raises a refund against a successful payment. The
// cumulative-amount invariant is enforced here, once: the sum of non-failed
// refunds plus the new one may not exceed the payment amount.
func (s *Server) handleCreateRefund(w http.ResponseWriter, r *http.Request) {
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
		writeError(w, http.StatusBadRequest, "BAD_REQUEST_ERROR", "only successful payments can be refunded")
		return
	}

	var req createRefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST_ERROR", "invalid json")
		return
	}
	if req.Amount == 0 {
		req.Amount = p.Amount
	}
	if req.Amount < 0 {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST_ERROR", "amount must be positive")
		return
	}

	siblings, err := s.store.ListRefundsByPayment(r.Context(), p.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "could not load refunds")
		return
	}
	var refunded int64
	for _, sib := range siblings {
		if sib.Status == models.RefundStatusPending || sib.Status == models.RefundStatusProcessed {
			refunded += sib.Amount
		}
	}
	if refunded+req.Amount > p.Amount {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST_ERROR", "refund amount exceeds refundable balance")
		return
	}

	refund := models.Refund{
		ID:         models.NewRefundID(),
		PaymentID:  p.ID,
		MerchantID: m.ID,
		Amount:     req.Amount,
		Reason:     req.Reason,
		Status:     models.RefundStatusPending,
	}
	if err := s.store.CreateRefund(r.Context(), refund); err != nil {
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "could not create refund")
		return
	}
	if err := s.queue.Enqueue(r.Context(), models.RefundQueue, models.RefundJob{RefundID: refund.ID}); err != nil {
		log.Printf("enqueue refund %s: %v", refund.ID, err)
		writeError(w, http.StatusServiceUnavailable, "SERVER_ERROR", "refund accepted but processing is delayed")
		return
	}
	telemetry.JobsEnqueued.WithLabelValues(models.RefundQueue).Inc()

	writeJSON(w, http.StatusCreated, refund)
}

func (s *Server) handleGetRefund(w http.ResponseWriter, r *http.Request) {
	m := merchantFrom(r)
	rf, found, err := s.store.GetRefund(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "could not load refund")
		return
	}
	if !found || rf.MerchantID != m.ID {
		writeError(w, http.StatusNotFound, "NOT_FOUND_ERROR", "refund not found")
		return
	}
	writeJSON(w, http.StatusOK, rf)
}
