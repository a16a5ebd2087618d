package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/djlord-it/easy-remind/internal/analytics"
	"github.com/djlord-it/easy-remind/internal/api"
	"github.com/djlord-it/easy-remind/internal/circuitbreaker"
	"github.com/djlord-it/easy-remind/internal/config"
	"github.com/djlord-it/easy-remind/internal/cron"
	"github.com/djlord-it/easy-remind/internal/executor"
	"github.com/djlord-it/easy-remind/internal/hooks"
	"github.com/djlord-it/easy-remind/internal/leaderelection"
	"github.com/djlord-it/easy-remind/internal/messenger"
	"github.com/djlord-it/easy-remind/internal/metrics"
	"github.com/djlord-it/easy-remind/internal/notifier"
	"github.com/djlord-it/easy-remind/internal/reconciler"
	"github.com/djlord-it/easy-remind/internal/runner"
	"github.com/djlord-it/easy-remind/internal/store/postgres"
	"github.com/djlord-it/easy-remind/internal/transport/channel"

	_ "github.com/lib/pq"
)

// Build-time variables set via -ldflags
var (
	version = "dev"
	commit  = "unknown"
)

const (
	exitSuccess       = 0
	exitRuntimeError  = 1
	exitInvalidConfig = 2
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitRuntimeError)
	}

	cmd := os.Args[1]

	switch cmd {
	case "serve":
		os.Exit(runServe())
	case "validate":
		os.Exit(runValidate())
	case "config":
		os.Exit(runConfig())
	case "version":
		os.Exit(runVersion())
	case "--help", "-h", "help":
		printUsage()
		os.Exit(exitSuccess)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(exitRuntimeError)
	}
}

func printUsage() {
	fmt.Println(`easyremind - one-time event reminder scheduler

Usage:
  easyremind <command>

Commands:
  serve      Start the API, scanner, runner, and executor
  validate   Validate configuration (no connections made)
  config     Print effective configuration as JSON (secrets masked)
  version    Print version information

Environment Variables:
  DATABASE_URL               PostgreSQL connection string (required)
  REDIS_ADDR                 Redis address for outcome analytics (optional)
  HTTP_ADDR                  HTTP server address (default: ":8080")

  SCAN_SCHEDULE              Cron schedule for the reminder scan (default: "@every 5m")
  SCAN_TIMEZONE              Timezone the scan schedule runs in (default: "UTC")

  MESSAGE_WEBHOOK_URL        Webhook receiving reminder messages (required)
  FOLLOWUP_WEBHOOK_URL       Webhook receiving follow-up tasks (default: message URL)
  WEBHOOK_SECRET             HMAC signing secret for webhook payloads
  WEBHOOK_TIMEOUT            Webhook request timeout (default: "30s")

  FALLBACK_RECIPIENT_ID      Recipient for events without one (optional)
  DEFAULT_LOCALE             Locale when the recipient has none (default: "en_US")
  DEFAULT_TIMEZONE           Timezone when the recipient has none (default: "UTC")

  POLL_INTERVAL              How often due jobs are claimed (default: "5s")
  RUNNER_BATCH_SIZE          Max jobs claimed per poll (default: "100")
  STALE_THRESHOLD            Age before a claimed job is requeued (default: "10m")
  EXECUTOR_DRAIN_TIMEOUT     Executor drain timeout on shutdown (default: "30s")
  EVENTBUS_BUFFER_SIZE       Fired-job buffer size (default: "100")

  CIRCUIT_BREAKER_THRESHOLD  Failures before a webhook opens (default: "5", 0 disables)
  CIRCUIT_BREAKER_COOLDOWN   Open-state cooldown (default: "2m")

  METRICS_ENABLED            Enable Prometheus metrics (default: "false")
  METRICS_PATH               Metrics endpoint path (default: "/metrics")

  DB_OP_TIMEOUT              Database operation timeout (default: "5s")
  DB_MAX_OPEN_CONNS          Max open database connections (default: "25")
  DB_MAX_IDLE_CONNS          Max idle database connections (default: "5")
  DB_CONN_MAX_LIFETIME       Max connection lifetime (default: "30m")

  HTTP_SHUTDOWN_TIMEOUT      Graceful HTTP shutdown timeout (default: "10s")

  LEADER_LOCK_KEY            Advisory lock key shared by all replicas
  LEADER_RETRY_INTERVAL      Follower lock retry interval (default: "5s")
  LEADER_HEARTBEAT_INTERVAL  Leader session heartbeat interval (default: "2s")`)
}

func runServe() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitInvalidConfig
	}

	// Connect to PostgreSQL
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
		return exitRuntimeError
	}
	defer db.Close()

	// Configure connection pool
	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DBConnMaxLifetime)

	log.Printf("easyremind: db pool configured (max_open=%d, max_idle=%d, max_lifetime=%s)",
		cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime)

	if err := db.Ping(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to database: %v\n", err)
		return exitRuntimeError
	}

	store := postgres.New(db, cfg.DBOpTimeout)
	if err := store.Init(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize schema: %v\n", err)
		return exitRuntimeError
	}

	// Initialize metrics sink (optional)
	var metricsSink *metrics.PrometheusSink
	if cfg.MetricsEnabled {
		metricsSink = metrics.NewPrometheusSink(prometheus.DefaultRegisterer)
		log.Printf("easyremind: metrics enabled (path=%s)", cfg.MetricsPath)
	} else {
		log.Println("easyremind: METRICS_ENABLED not set; metrics disabled")
	}

	// Create event bus with optional metrics
	var busOpts []channel.Option
	if metricsSink != nil {
		busOpts = append(busOpts, channel.WithMetrics(metricsSink))
	}
	bus := channel.NewEventBus(cfg.EventBusBufferSize, busOpts...)

	// Recipient resolution with the configured fallback chain
	fallbackID := uuid.Nil
	if cfg.FallbackRecipientID != "" {
		fallbackID = uuid.MustParse(cfg.FallbackRecipientID)
	}
	resolver := notifier.NewResolver(store, fallbackID, cfg.DefaultLocale, cfg.DefaultTimezone)

	engine := reconciler.New(store, resolver)
	if metricsSink != nil {
		engine = engine.WithMetrics(metricsSink)
	}

	lifecycle := hooks.New(engine, store, store)

	schedule, err := cron.NewParser().Parse(cfg.ScanSchedule, cfg.ScanTimezone)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse scan schedule: %v\n", err)
		return exitInvalidConfig
	}
	scanner := hooks.NewScanner(lifecycle, schedule)
	if metricsSink != nil {
		scanner = scanner.WithMetrics(metricsSink)
	}

	run := runner.New(runner.Config{
		PollInterval:   cfg.PollInterval,
		BatchSize:      cfg.RunnerBatchSize,
		StaleThreshold: cfg.StaleThreshold,
	}, store, bus)
	if metricsSink != nil {
		run = run.WithMetrics(metricsSink)
	}

	// Webhook delivery with optional circuit breaker
	webhook := messenger.NewWebhook(messenger.Config{
		MessageURL:  cfg.MessageWebhookURL,
		FollowUpURL: cfg.FollowUpWebhookURL,
		Secret:      cfg.WebhookSecret,
		Timeout:     cfg.WebhookTimeout,
	})
	if cfg.CircuitBreakerThreshold > 0 {
		breaker := circuitbreaker.New(cfg.CircuitBreakerThreshold, cfg.CircuitBreakerCooldown)
		webhook = webhook.WithBreaker(breaker)
		log.Printf("easyremind: circuit breaker enabled (threshold=%d, cooldown=%s)",
			cfg.CircuitBreakerThreshold, cfg.CircuitBreakerCooldown)
	} else {
		log.Println("easyremind: CIRCUIT_BREAKER_THRESHOLD=0; circuit breaker disabled")
	}

	action := notifier.New(store, resolver, webhook)

	exec := executor.New(store, action).
		WithDrainTimeout(cfg.ExecutorDrainTimeout)
	if metricsSink != nil {
		exec = exec.WithMetrics(metricsSink)
	}

	// Wire analytics if Redis is configured
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
		})
		sink := analytics.NewRedisSink(redisClient)
		exec = exec.WithAnalytics(sink)
		log.Printf("easyremind: analytics enabled (redis=%s)", cfg.RedisAddr)
	} else {
		log.Println("easyremind: REDIS_ADDR not set; analytics disabled")
	}

	// HTTP surface: API plus optional metrics endpoint on the same server
	apiHandler := api.NewHandler(store, lifecycle).WithHealthChecker(db)
	mux := http.NewServeMux()
	if cfg.MetricsEnabled {
		mux.Handle(cfg.MetricsPath, promhttp.Handler())
	}
	mux.Handle("/", apiHandler)

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: mux,
	}

	go func() {
		log.Printf("easyremind: http server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("easyremind: http server error: %v", err)
		}
	}()

	// The scan, runner, and executor are singleton duties: only the
	// replica holding the advisory lock runs them. The API serves on
	// every replica.
	duties := &leaderDuties{scanner: scanner, runner: run, executor: exec, bus: bus}

	elector := leaderelection.New(
		db,
		cfg.LeaderLockKey,
		cfg.LeaderRetryInterval,
		cfg.LeaderHeartbeatInterval,
		duties.start,
		duties.stop,
	)
	if metricsSink != nil {
		elector = elector.WithMetrics(metricsSink)
	}

	electorCtx, cancelElector := context.WithCancel(context.Background())
	var electorWg sync.WaitGroup
	electorWg.Add(1)
	go func() {
		defer electorWg.Done()
		elector.Run(electorCtx)
	}()

	log.Printf("easyremind: started (scan=%s, poll=%s, http=%s)",
		cfg.ScanSchedule, cfg.PollInterval, cfg.HTTPAddr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig

	log.Printf("easyremind: received signal %v, shutting down", received)

	// Phase 1: Stop the elector. It demotes synchronously, which stops
	// the scanner and runner and drains the executor.
	log.Println("easyremind: stopping elector...")
	cancelElector()
	electorWg.Wait()
	log.Println("easyremind: elector stopped")

	// Phase 2: Stop HTTP server with graceful shutdown
	log.Println("easyremind: stopping http server...")
	httpShutdownCtx, httpShutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer httpShutdownCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		log.Printf("easyremind: http server shutdown error: %v", err)
	}
	log.Println("easyremind: http server stopped")

	log.Println("easyremind: stopped")
	return exitSuccess
}

// leaderDuties starts and stops the singleton goroutines around
// leadership transitions. stop is ordered: the scanner goes first so no
// new jobs appear, then the runner so nothing new is claimed, and the
// executor last so buffered jobs drain.
type leaderDuties struct {
	scanner  *hooks.Scanner
	runner   *runner.Runner
	executor *executor.Executor
	bus      *channel.EventBus

	mu      sync.Mutex
	halt    func()
	running bool
}

func (d *leaderDuties) start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return
	}

	scanCtx, cancelScan := context.WithCancel(context.Background())
	runCtx, cancelRun := context.WithCancel(context.Background())
	execCtx, cancelExec := context.WithCancel(context.Background())

	var scanWg, runWg, execWg sync.WaitGroup

	scanWg.Add(1)
	go func() {
		defer scanWg.Done()
		d.scanner.Run(scanCtx)
	}()

	runWg.Add(1)
	go func() {
		defer runWg.Done()
		d.runner.Run(runCtx)
	}()

	execWg.Add(1)
	go func() {
		defer execWg.Done()
		d.executor.Run(execCtx, d.bus.Channel())
	}()

	d.halt = func() {
		cancelScan()
		scanWg.Wait()
		cancelRun()
		runWg.Wait()
		cancelExec()
		execWg.Wait()
	}
	d.running = true
	log.Println("easyremind: leader duties started")
}

func (d *leaderDuties) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return
	}
	d.halt()
	d.halt = nil
	d.running = false
	log.Println("easyremind: leader duties stopped")
}

func runValidate() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitInvalidConfig
	}

	fmt.Println("configuration valid")
	return exitSuccess
}

func runConfig() int {
	cfg := config.Load()

	data, err := cfg.MaskedJSON()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal config: %v\n", err)
		return exitRuntimeError
	}

	fmt.Println(string(data))
	return exitSuccess
}

func runVersion() int {
	fmt.Printf("easyremind version %s (commit: %s)\n", version, commit)
	return exitSuccess
}
