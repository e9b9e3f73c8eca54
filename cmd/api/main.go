package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	api "payment-gateway/internal/api"
	"payment-gateway/internal/config"
	"payment-gateway/internal/idempotency"
	"payment-gateway/internal/models"
	"payment-gateway/internal/queue"
	"payment-gateway/internal/ratelimit"
	"payment-gateway/internal/store"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt)
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

	if cfg.Env == "dev" {
		seedDevMerchant(ctx, st)
	}

	q := queue.NewRedisQueue(cfg)
	defer q.Close()

	redisLimiter := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	limiter := ratelimit.NewTokenBucket(redisLimiter, cfg.RateLimitCapacity, cfg.RateLimitRefill, time.Hour)
	idem := idempotency.New(st, cfg.IdempotencyTTL)

	server := api.New(cfg, st, q, idem, limiter)
	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: server.Router(),
	}

	log.Printf("api listening on :%s", cfg.HTTPPort)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)
}

// seedDevMerchant inserts a fixed merchant for local development. The insert
// is ON CONFLICT DO NOTHING, so restarts are harmless.
func seedDevMerchant(ctx context.Context, st *store.Store) {
	m := models.Merchant{
		ID:            uuid.MustParse("0b5cdbc7-13b9-4a4e-9e9c-1c2a3f4d5e6f"),
		Name:          "Dev Merchant",
		Email:         "dev@localhost",
		APIKey:        "key_dev",
		APISecret:     "secret_dev",
		WebhookURL:    os.Getenv("DEV_WEBHOOK_URL"),
		WebhookSecret: os.Getenv("DEV_WEBHOOK_SECRET"),
		Active:        true,
	}
	if err := st.CreateMerchant(ctx, m); err != nil {
		log.Printf("seed dev merchant: %v", err)
		return
	}
	log.Printf("dev merchant available: api_key=%s", m.APIKey)
}
