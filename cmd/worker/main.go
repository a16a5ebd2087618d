// Command worker runs the claim-and-deliver half of easyremind without
// the API or the scan loop. Claiming uses row locks, so any number of
// workers can poll the same database safely.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/djlord-it/easy-remind/internal/analytics"
	"github.com/djlord-it/easy-remind/internal/circuitbreaker"
	"github.com/djlord-it/easy-remind/internal/config"
	"github.com/djlord-it/easy-remind/internal/executor"
	"github.com/djlord-it/easy-remind/internal/messenger"
	"github.com/djlord-it/easy-remind/internal/notifier"
	"github.com/djlord-it/easy-remind/internal/runner"
	"github.com/djlord-it/easy-remind/internal/store/postgres"
	"github.com/djlord-it/easy-remind/internal/transport/channel"

	_ "github.com/lib/pq"
)

func main() {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(2)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DBConnMaxLifetime)

	if err := db.Ping(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to database: %v\n", err)
		os.Exit(1)
	}

	store := postgres.New(db, cfg.DBOpTimeout)

	fallbackID := uuid.Nil
	if cfg.FallbackRecipientID != "" {
		fallbackID = uuid.MustParse(cfg.FallbackRecipientID)
	}
	resolver := notifier.NewResolver(store, fallbackID, cfg.DefaultLocale, cfg.DefaultTimezone)

	webhook := messenger.NewWebhook(messenger.Config{
		MessageURL:  cfg.MessageWebhookURL,
		FollowUpURL: cfg.FollowUpWebhookURL,
		Secret:      cfg.WebhookSecret,
		Timeout:     cfg.WebhookTimeout,
	})
	if cfg.CircuitBreakerThreshold > 0 {
		webhook = webhook.WithBreaker(circuitbreaker.New(cfg.CircuitBreakerThreshold, cfg.CircuitBreakerCooldown))
	}

	action := notifier.New(store, resolver, webhook)

	bus := channel.NewEventBus(cfg.EventBusBufferSize)

	run := runner.New(runner.Config{
		PollInterval:   cfg.PollInterval,
		BatchSize:      cfg.RunnerBatchSize,
		StaleThreshold: cfg.StaleThreshold,
	}, store, bus)

	exec := executor.New(store, action).
		WithDrainTimeout(cfg.ExecutorDrainTimeout)

	// Wire analytics if Redis is configured
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
		})
		exec = exec.WithAnalytics(analytics.NewRedisSink(redisClient))
		log.Printf("worker: analytics enabled (redis=%s)", cfg.RedisAddr)
	} else {
		log.Println("worker: REDIS_ADDR not set; analytics disabled")
	}

	// Separate contexts so the runner stops claiming before the executor
	// drains what is already buffered.
	runnerCtx, cancelRunner := context.WithCancel(context.Background())
	executorCtx, cancelExecutor := context.WithCancel(context.Background())

	var runnerWg sync.WaitGroup
	var executorWg sync.WaitGroup

	runnerWg.Add(1)
	go func() {
		defer runnerWg.Done()
		run.Run(runnerCtx)
	}()

	executorWg.Add(1)
	go func() {
		defer executorWg.Done()
		exec.Run(executorCtx, bus.Channel())
	}()

	log.Println("worker: started")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig

	log.Printf("worker: received signal %v, shutting down", received)

	// Phase 1: Stop runner (no new jobs claimed)
	log.Println("worker: stopping runner...")
	cancelRunner()
	runnerWg.Wait()
	log.Println("worker: runner stopped")

	// Phase 2: Stop executor (drains buffered jobs before returning)
	log.Println("worker: stopping executor (draining jobs)...")
	cancelExecutor()
	executorWg.Wait()
	log.Println("worker: executor stopped")

	log.Println("worker: stopped")
}
