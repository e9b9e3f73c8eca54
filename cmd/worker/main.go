package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"payment-gateway/internal/archive"
	"payment-gateway/internal/config"
	"payment-gateway/internal/models"
	"payment-gateway/internal/queue"
	"payment-gateway/internal/store"
	"payment-gateway/internal/telemetry"
	workerproc "payment-gateway/internal/worker"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	st, err := store.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer st.Close()

	if err := st.RunMigrations(ctx); err != nil {
		log.Fatalf("migrations: %v", err)
	}

	q := queue.NewRedisQueue(cfg)
	defer q.Close()

	payments := workerproc.NewPaymentHandler(cfg, st, q)
	refunds := workerproc.NewRefundHandler(cfg, st, q)
	webhooks := workerproc.NewWebhookHandler(cfg, st)
	scheduler := workerproc.NewRetryScheduler(cfg, st, q)

	go func() {
		if err := http.ListenAndServe(cfg.MetricsAddr, telemetry.Handler()); err != nil {
			log.Printf("metrics server stopped: %v", err)
		}
	}()

	var wg sync.WaitGroup
	run := func(f func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f()
		}()
	}

	run(func() { workerproc.RunLoop(ctx, q, models.PaymentQueue, cfg.DequeueTimeout, payments.Handle) })
	run(func() { workerproc.RunLoop(ctx, q, models.RefundQueue, cfg.DequeueTimeout, refunds.Handle) })
	run(func() { workerproc.RunLoop(ctx, q, models.WebhookQueue, cfg.DequeueTimeout, webhooks.Handle) })
	run(func() { scheduler.Run(ctx) })

	if cfg.ArchiveBucket != "" {
		archiver, err := archive.New(ctx, cfg, st)
		if err != nil {
			log.Fatalf("init archiver: %v", err)
		}
		run(func() { archiver.Run(ctx) })
	}

	log.Printf("worker started: queues=%v scheduler_interval=%s", []string{
		models.PaymentQueue, models.RefundQueue, models.WebhookQueue,
	}, cfg.SchedulerInterval)

	<-ctx.Done()
	wg.Wait()
	log.Printf("worker shut down cleanly")
}
