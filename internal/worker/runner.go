package worker

import (
	"context"
	"log"
	"time"

	"payment-gateway/internal/queue"
)

// Handler processes one raw job body popped from a queue. A returned error is
// logged and the job dropped; nothing in this subsystem is retried through
// queue redelivery.
type Handler func(ctx context.Context, body []byte) error

// RunLoop consumes a single queue kind sequentially until ctx is cancelled.
// The blocking dequeue is bounded so the loop can re-check the cancellation
// between jobs; a job already handed to the handler is never interrupted
// mid-flight.
func RunLoop(ctx context.Context, q queue.Queue, kind string, pollTimeout time.Duration, handle Handler) {
	log.Printf("%s: worker loop started", kind)
	for {
		select {
		case <-ctx.Done():
			log.Printf("%s: worker loop stopped", kind)
			return
		default:
		}

		body, err := q.Dequeue(ctx, kind, pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				log.Printf("%s: worker loop stopped", kind)
				return
			}
			log.Printf("%s: dequeue: %v", kind, err)
			// Avoid a tight loop while the broker is unreachable.
			time.Sleep(time.Second)
			continue
		}
		if body == nil {
			continue
		}

		if err := handle(context.WithoutCancel(ctx), body); err != nil {
			log.Printf("%s: %v", kind, err)
		}
	}
}
