package worker

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"payment-gateway/internal/models"
)

// fakeQueue is an in-memory Queue capturing enqueued jobs.
type fakeQueue struct {
	mu         sync.Mutex
	jobs       map[string][][]byte
	enqueueErr error
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{jobs: map[string][][]byte{}}
}

func (q *fakeQueue) Enqueue(_ context.Context, kind string, job any) error {
	if q.enqueueErr != nil {
		return q.enqueueErr
	}
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs[kind] = append(q.jobs[kind], body)
	return nil
}

func (q *fakeQueue) Dequeue(_ context.Context, kind string, timeout time.Duration) ([]byte, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	pending := q.jobs[kind]
	if len(pending) == 0 {
		// Stand in for the broker's blocking poll.
		time.Sleep(time.Millisecond)
		return nil, nil
	}
	head := pending[0]
	q.jobs[kind] = pending[1:]
	return head, nil
}

func (q *fakeQueue) Depth(_ context.Context, kind string) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.jobs[kind])), nil
}

func (q *fakeQueue) webhookJobs(t *testing.T) []models.WebhookJob {
	t.Helper()
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]models.WebhookJob, 0, len(q.jobs[models.WebhookQueue]))
	for _, body := range q.jobs[models.WebhookQueue] {
		var job models.WebhookJob
		if err := json.Unmarshal(body, &job); err != nil {
			t.Fatalf("unmarshal webhook job: %v", err)
		}
		out = append(out, job)
	}
	return out
}

// fakeStore backs all worker store interfaces with maps.
type fakeStore struct {
	payments    map[string]models.Payment
	refunds     map[string]models.Refund
	merchants   map[uuid.UUID]models.Merchant
	webhookLogs map[uuid.UUID]models.WebhookLog
	due         []models.WebhookLog
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		payments:    map[string]models.Payment{},
		refunds:     map[string]models.Refund{},
		merchants:   map[uuid.UUID]models.Merchant{},
		webhookLogs: map[uuid.UUID]models.WebhookLog{},
	}
}

func (s *fakeStore) GetPayment(_ context.Context, id string) (models.Payment, bool, error) {
	p, ok := s.payments[id]
	return p, ok, nil
}

func (s *fakeStore) SetPaymentOutcome(_ context.Context, id, status string, errCode, errDesc *string) error {
	p := s.payments[id]
	p.Status = status
	p.ErrorCode = errCode
	p.ErrorDescription = errDesc
	s.payments[id] = p
	return nil
}

func (s *fakeStore) GetRefund(_ context.Context, id string) (models.Refund, bool, error) {
	r, ok := s.refunds[id]
	return r, ok, nil
}

func (s *fakeStore) ListRefundsByPayment(_ context.Context, paymentID string) ([]models.Refund, error) {
	var out []models.Refund
	for _, r := range s.refunds {
		if r.PaymentID == paymentID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeStore) MarkRefundProcessed(_ context.Context, id string, processedAt time.Time) error {
	r := s.refunds[id]
	r.Status = models.RefundStatusProcessed
	r.ProcessedAt = &processedAt
	s.refunds[id] = r
	return nil
}

func (s *fakeStore) GetMerchant(_ context.Context, id uuid.UUID) (models.Merchant, bool, error) {
	m, ok := s.merchants[id]
	return m, ok, nil
}

func (s *fakeStore) GetWebhookLog(_ context.Context, id uuid.UUID) (models.WebhookLog, bool, error) {
	l, ok := s.webhookLogs[id]
	return l, ok, nil
}

func (s *fakeStore) CreateWebhookLog(_ context.Context, l *models.WebhookLog) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	s.webhookLogs[l.ID] = *l
	return nil
}

func (s *fakeStore) UpdateWebhookDelivery(_ context.Context, l models.WebhookLog) error {
	s.webhookLogs[l.ID] = l
	return nil
}

func (s *fakeStore) ClaimDueWebhookLogs(_ context.Context, now time.Time, limit int) ([]models.WebhookLog, error) {
	var claimed []models.WebhookLog
	for _, l := range s.due {
		if len(claimed) >= limit {
			break
		}
		if l.Status == models.WebhookStatusPending && l.NextRetryAt != nil && !l.NextRetryAt.After(now) {
			l.NextRetryAt = nil
			s.webhookLogs[l.ID] = l
			claimed = append(claimed, l)
		}
	}
	s.due = nil
	return claimed, nil
}

func mustJob(t *testing.T, job any) []byte {
	t.Helper()
	body, err := json.Marshal(job)
	if err != nil {
		t.Fatalf("marshal job: %v", err)
	}
	return body
}
