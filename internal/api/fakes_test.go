package api

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"payment-gateway/internal/models"
)

type fakeStorage struct {
	merchants   map[string]models.Merchant // keyed by api key
	orders      map[string]models.Order
	payments    map[string]models.Payment
	refunds     map[string]models.Refund
	webhookLogs []models.WebhookLog
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		merchants: map[string]models.Merchant{},
		orders:    map[string]models.Order{},
		payments:  map[string]models.Payment{},
		refunds:   map[string]models.Refund{},
	}
}

func (s *fakeStorage) GetMerchantByAPIKey(_ context.Context, apiKey string) (models.Merchant, bool, error) {
	m, ok := s.merchants[apiKey]
	return m, ok, nil
}

func (s *fakeStorage) UpdateMerchantWebhookConfig(_ context.Context, id uuid.UUID, url, secret string) error {
	for key, m := range s.merchants {
		if m.ID == id {
			m.WebhookURL = url
			m.WebhookSecret = secret
			s.merchants[key] = m
			return nil
		}
	}
	return fmt.Errorf("merchant %s not found", id)
}

func (s *fakeStorage) GetWebhookLog(_ context.Context, id uuid.UUID) (models.WebhookLog, bool, error) {
	for _, l := range s.webhookLogs {
		if l.ID == id {
			return l, true, nil
		}
	}
	return models.WebhookLog{}, false, nil
}

func (s *fakeStorage) ResetWebhookLogForRetry(_ context.Context, id uuid.UUID) error {
	for i, l := range s.webhookLogs {
		if l.ID == id {
			l.Status = models.WebhookStatusPending
			l.Attempts = 0
			l.NextRetryAt = nil
			s.webhookLogs[i] = l
			return nil
		}
	}
	return fmt.Errorf("webhook log %s not found", id)
}

func (s *fakeStorage) CreateOrder(_ context.Context, o models.Order) error {
	s.orders[o.ID] = o
	return nil
}

func (s *fakeStorage) GetOrder(_ context.Context, id string) (models.Order, bool, error) {
	o, ok := s.orders[id]
	return o, ok, nil
}

func (s *fakeStorage) CreatePayment(_ context.Context, p models.Payment) error {
	s.payments[p.ID] = p
	return nil
}

func (s *fakeStorage) GetPayment(_ context.Context, id string) (models.Payment, bool, error) {
	p, ok := s.payments[id]
	return p, ok, nil
}

func (s *fakeStorage) ListPaymentsByMerchant(_ context.Context, merchantID uuid.UUID) ([]models.Payment, error) {
	var out []models.Payment
	for _, p := range s.payments {
		if p.MerchantID == merchantID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeStorage) CapturePayment(_ context.Context, id string) error {
	p, ok := s.payments[id]
	if !ok {
		return fmt.Errorf("payment %s not found", id)
	}
	p.Captured = true
	s.payments[id] = p
	return nil
}

func (s *fakeStorage) CreateRefund(_ context.Context, r models.Refund) error {
	s.refunds[r.ID] = r
	return nil
}

func (s *fakeStorage) GetRefund(_ context.Context, id string) (models.Refund, bool, error) {
	r, ok := s.refunds[id]
	return r, ok, nil
}

func (s *fakeStorage) ListRefundsByPayment(_ context.Context, paymentID string) ([]models.Refund, error) {
	var out []models.Refund
	for _, r := range s.refunds {
		if r.PaymentID == paymentID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeStorage) ListRefundsByMerchant(_ context.Context, merchantID uuid.UUID) ([]models.Refund, error) {
	var out []models.Refund
	for _, r := range s.refunds {
		if r.MerchantID == merchantID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeStorage) ListWebhookLogsByMerchant(_ context.Context, merchantID uuid.UUID) ([]models.WebhookLog, error) {
	var out []models.WebhookLog
	for _, l := range s.webhookLogs {
		if l.MerchantID == merchantID {
			out = append(out, l)
		}
	}
	return out, nil
}

type fakeQueue struct {
	jobs map[string][][]byte
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{jobs: map[string][][]byte{}}
}

func (q *fakeQueue) Enqueue(_ context.Context, kind string, job any) error {
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}
	q.jobs[kind] = append(q.jobs[kind], body)
	return nil
}

func (q *fakeQueue) Dequeue(_ context.Context, kind string, _ time.Duration) ([]byte, error) {
	pending := q.jobs[kind]
	if len(pending) == 0 {
		return nil, nil
	}
	head := pending[0]
	q.jobs[kind] = pending[1:]
	return head, nil
}

func (q *fakeQueue) Depth(_ context.Context, kind string) (int64, error) {
	return int64(len(q.jobs[kind])), nil
}

type fakeIdemRepo struct {
	records map[string]models.IdempotencyRecord
}

func newFakeIdemRepo() *fakeIdemRepo {
	return &fakeIdemRepo{records: map[string]models.IdempotencyRecord{}}
}

func idemKey(key string, merchantID uuid.UUID) string {
	return key + "|" + merchantID.String()
}

func (r *fakeIdemRepo) GetIdempotencyRecord(_ context.Context, key string, merchantID uuid.UUID) (models.IdempotencyRecord, bool, error) {
	rec, ok := r.records[idemKey(key, merchantID)]
	return rec, ok, nil
}

func (r *fakeIdemRepo) PutIdempotencyRecord(_ context.Context, rec models.IdempotencyRecord) error {
	r.records[idemKey(rec.Key, rec.MerchantID)] = rec
	return nil
}

func (r *fakeIdemRepo) DeleteIdempotencyRecord(_ context.Context, key string, merchantID uuid.UUID) error {
	delete(r.records, idemKey(key, merchantID))
	return nil
}
