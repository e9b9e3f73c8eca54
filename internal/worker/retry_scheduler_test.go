package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"payment-gateway/internal/config"
	"payment-gateway/internal/models"
)

func schedulerConfig() config.Config {
	return config.Config{SchedulerInterval: 10 * time.Second, SchedulerBatch: 100}
}

func dueLog(merchant uuid.UUID, due time.Time) models.WebhookLog {
	return models.WebhookLog{
		ID:          uuid.New(),
		MerchantID:  merchant,
		Event:       models.EventPaymentSuccess,
		Payload:     []byte(`{"event":"payment.success","data":{"payment":{"id":"pay_abc"}}}`),
		Status:      models.WebhookStatusPending,
		Attempts:    2,
		NextRetryAt: &due,
	}
}

func TestSweepReenqueuesDueLogs(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	q := newFakeQueue()
	merchant := uuid.New()

	past := time.Now().Add(-time.Minute)
	l := dueLog(merchant, past)
	st.webhookLogs[l.ID] = l
	st.due = []models.WebhookLog{l}

	s := NewRetryScheduler(schedulerConfig(), st, q)
	if n := s.Sweep(ctx); n != 1 {
		t.Fatalf("expected 1 re-enqueued job, got %d", n)
	}

	// The claim doubles as a lock: the next sweep must not see the record.
	if claimed := st.webhookLogs[l.ID]; claimed.NextRetryAt != nil {
		t.Fatal("claimed log should have next_retry_at cleared")
	}

	jobs := q.webhookJobs(t)
	if len(jobs) != 1 {
		t.Fatalf("expected 1 webhook job, got %d", len(jobs))
	}
	if jobs[0].ExistingLogID == nil || *jobs[0].ExistingLogID != l.ID {
		t.Fatalf("re-enqueued job must carry the existing log id, got %v", jobs[0].ExistingLogID)
	}
	if jobs[0].MerchantID != merchant || jobs[0].Event != models.EventPaymentSuccess {
		t.Fatalf("unexpected job: %+v", jobs[0])
	}
}

func TestSweepIgnoresFutureRetries(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	q := newFakeQueue()

	future := time.Now().Add(time.Hour)
	l := dueLog(uuid.New(), future)
	st.webhookLogs[l.ID] = l
	st.due = []models.WebhookLog{l}

	s := NewRetryScheduler(schedulerConfig(), st, q)
	if n := s.Sweep(ctx); n != 0 {
		t.Fatalf("expected no re-enqueues, got %d", n)
	}
	if len(q.webhookJobs(t)) != 0 {
		t.Fatal("future retry must not be enqueued")
	}
}

func TestSweepEnqueueFailureLeavesRowClaimed(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	q := newFakeQueue()
	q.enqueueErr = errors.New("broker down")

	past := time.Now().Add(-time.Minute)
	l := dueLog(uuid.New(), past)
	st.webhookLogs[l.ID] = l
	st.due = []models.WebhookLog{l}

	s := NewRetryScheduler(schedulerConfig(), st, q)
	if n := s.Sweep(ctx); n != 0 {
		t.Fatalf("expected 0 enqueued, got %d", n)
	}
	// Documented limitation: the row stays locked until an external repair.
	if st.webhookLogs[l.ID].NextRetryAt != nil {
		t.Fatal("claim should persist even when enqueue fails")
	}
}

func TestRunLoopStopsOnCancel(t *testing.T) {
	q := newFakeQueue()
	handled := make(chan []byte, 2)
	_ = q.Enqueue(context.Background(), models.PaymentQueue, models.PaymentJob{PaymentID: "pay_1"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		RunLoop(ctx, q, models.PaymentQueue, 10*time.Millisecond, func(_ context.Context, body []byte) error {
			handled <- body
			return nil
		})
		close(done)
	}()

	select {
	case <-handled:
	case <-time.After(2 * time.Second):
		t.Fatal("job was not handled")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("run loop did not stop after cancellation")
	}
}
