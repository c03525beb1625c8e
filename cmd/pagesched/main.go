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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/pagesched/pagesched/internal/analytics"
	"github.com/pagesched/pagesched/internal/api"
	"github.com/pagesched/pagesched/internal/audit"
	"github.com/pagesched/pagesched/internal/config"
	"github.com/pagesched/pagesched/internal/deploytrack"
	"github.com/pagesched/pagesched/internal/documents"
	"github.com/pagesched/pagesched/internal/materializer"
	"github.com/pagesched/pagesched/internal/metrics"
	"github.com/pagesched/pagesched/internal/notify"
	"github.com/pagesched/pagesched/internal/poller"
	"github.com/pagesched/pagesched/internal/pruner"
	"github.com/pagesched/pagesched/internal/scheduler"
	"github.com/pagesched/pagesched/internal/store/github"
	"github.com/pagesched/pagesched/internal/trigger"

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
	fmt.Println(`pagesched - scheduling daemon for a GitHub Pages events site

Usage:
  pagesched <command>

Commands:
  serve      Start the scheduler, deployment tracker and HTTP server
  validate   Validate configuration (no connections made)
  config     Print effective configuration as JSON (secrets masked)
  version    Print version information

Environment Variables:
  SITE_CONFIG            Path to the site YAML file (default: "pagesched.yaml")
  GITHUB_TOKEN           GitHub access token (required)
  WEBHOOK_SECRET         Secret for the inbound GitHub push webhook (optional)

  NOTIFY_WEBHOOK_URL     Outbound deployment notification URL (optional)
  NOTIFY_WEBHOOK_SECRET  Secret signing outbound notifications

  DATABASE_URL           PostgreSQL connection string for the audit log (optional)
  REDIS_ADDR             Redis address for daily analytics counters (optional)

  HTTP_ADDR              HTTP server address (default: ":8080", PORT honored)
  HTTP_SHUTDOWN_TIMEOUT  Graceful HTTP shutdown timeout (default: "10s")
  STORE_OP_TIMEOUT       Store operation timeout (default: "30s")

  METRICS_ENABLED        Enable Prometheus metrics (default: "false")
  METRICS_PATH           Metrics endpoint path (default: "/metrics")

  TRACK_POLL_INTERVAL    Deployment poll interval (default: "15s")
  TRACK_MAX_WAIT         Deployment confirmation timeout (default: "5m")
  POLL_RULES_INTERVAL    Rules change poll interval, "0s" disables (default: "0s")
  TRIGGER_BUFFER_SIZE    Trigger queue capacity (default: "16")`)
}

func runServe() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitInvalidConfig
	}

	site, err := config.LoadSite(cfg.SiteConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "site configuration error: %v\n", err)
		return exitInvalidConfig
	}
	loc, err := site.Location()
	if err != nil {
		fmt.Fprintf(os.Stderr, "site configuration error: %v\n", err)
		return exitInvalidConfig
	}

	logConfigWarnings(cfg)

	// Audit sinks: always the process log, plus PostgreSQL when configured.
	auditSinks := audit.Multi{audit.NewLogSink()}

	var db *sql.DB
	if cfg.DatabaseURL != "" {
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
			return exitRuntimeError
		}
		defer db.Close()

		if err := db.Ping(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to connect to database: %v\n", err)
			return exitRuntimeError
		}
		if err := probeAuditTable(db); err != nil {
			log.Printf("pagesched: audit_log table not found (%v); audit inserts will fail until the schema is applied", err)
		}
		auditSinks = append(auditSinks, audit.NewPostgres(db, cfg.StoreOpTimeout))
		log.Println("pagesched: audit log persistence enabled")
	} else {
		log.Println("pagesched: DATABASE_URL not set; audit entries go to the process log only")
	}

	ghClient := &github.Client{
		Owner:  site.Owner,
		Repo:   site.Repo,
		Branch: site.Branch,
		Token:  cfg.GitHubToken,
	}
	docs, err := documents.New(github.NewStore(ghClient), site.RulesPath, site.EventsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize documents: %v\n", err)
		return exitRuntimeError
	}

	// Metrics sink (optional), served on the main HTTP listener.
	var metricsSink *metrics.PrometheusSink
	if cfg.MetricsEnabled {
		metricsSink = metrics.NewPrometheusSink(prometheus.DefaultRegisterer)
		log.Printf("pagesched: metrics enabled (path=%s)", cfg.MetricsPath)
	} else {
		log.Println("pagesched: METRICS_ENABLED not set; metrics disabled")
	}

	// Deployment outcome notifier: signed webhook when configured, log fallback.
	var notifier notify.Notifier
	if cfg.NotifyWebhookURL != "" {
		webhook := notify.NewWebhook(cfg.NotifyWebhookURL, cfg.NotifyWebhookSecret)
		if metricsSink != nil {
			webhook = webhook.WithMetrics(metricsSink)
		}
		notifier = webhook
		log.Printf("pagesched: deployment notifications enabled (url=%s)", cfg.NotifyWebhookURL)
	} else {
		notifier = notify.LogNotifier{}
		log.Println("pagesched: NOTIFY_WEBHOOK_URL not set; deployment outcomes logged only")
	}

	tracker := deploytrack.New(
		deploytrack.Config{
			PollInterval: cfg.TrackPollInterval,
			MaxWait:      cfg.TrackMaxWait,
		},
		github.NewPagesProbe(ghClient),
		notifier,
		auditSinks,
	)
	if metricsSink != nil {
		tracker = tracker.WithMetrics(metricsSink)
	}

	target := site.Owner + "/" + site.Repo

	repeatingJob := materializer.NewJob(docs, loc, site.AdvanceWindowDays, auditSinks).
		WithTracker(tracker, target)
	cleanupJob := pruner.NewJob(docs, loc, site.RetentionDays, auditSinks).
		WithTracker(tracker, target)
	if metricsSink != nil {
		repeatingJob = repeatingJob.WithMetrics(metricsSink)
		cleanupJob = cleanupJob.WithMetrics(metricsSink)
	}

	// Wire analytics if Redis is configured
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
		})
		sink := analytics.NewRedisSink(redisClient, target)
		repeatingJob = repeatingJob.WithAnalytics(sink)
		cleanupJob = cleanupJob.WithAnalytics(sink)
		tracker = tracker.WithAnalytics(sink)
		log.Printf("pagesched: analytics enabled (redis=%s)", cfg.RedisAddr)
	} else {
		log.Println("pagesched: REDIS_ADDR not set; analytics disabled")
	}

	var busOpts []trigger.Option
	if metricsSink != nil {
		busOpts = append(busOpts, trigger.WithMetrics(metricsSink))
	}
	bus := trigger.NewBus(cfg.TriggerBufferSize, busOpts...)

	sched, err := scheduler.New(
		scheduler.Config{
			Location:      loc,
			CleanupTime:   site.CleanupTime,
			RepeatingTime: site.RepeatingTime,
		},
		bus,
		cleanupJob,
		repeatingJob,
		auditSinks,
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize scheduler: %v\n", err)
		return exitInvalidConfig
	}

	if err := sched.Start(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start scheduler: %v\n", err)
		return exitRuntimeError
	}

	// Start the fallback rules poller if enabled.
	var pollerWg sync.WaitGroup
	var cancelPoller context.CancelFunc
	if cfg.PollRulesInterval > 0 {
		var pollerCtx context.Context
		pollerCtx, cancelPoller = context.WithCancel(context.Background())
		p := poller.New(docs, sched, cfg.PollRulesInterval)
		pollerWg.Add(1)
		go func() {
			defer pollerWg.Done()
			p.Run(pollerCtx)
		}()
		log.Printf("pagesched: rules poller enabled (interval=%s)", cfg.PollRulesInterval)
	} else {
		log.Println("pagesched: POLL_RULES_INTERVAL not set; rules poller disabled")
	}

	apiHandler := api.NewHandler(sched, tracker, docs, site.Branch, loc)
	if cfg.WebhookSecret != "" {
		apiHandler = apiHandler.WithWebhookSecret(cfg.WebhookSecret)
		log.Println("pagesched: github push webhook enabled")
	}
	if db != nil {
		apiHandler = apiHandler.WithHealthChecker(db)
	}

	mux := http.NewServeMux()
	if metricsSink != nil {
		mux.Handle(cfg.MetricsPath, promhttp.Handler())
	}
	mux.Handle("/", apiHandler)

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: mux,
	}

	go func() {
		log.Printf("pagesched: http server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("pagesched: http server error: %v", err)
		}
	}()

	log.Printf("pagesched: started (site=%s, cleanup=%s, repeating=%s, tz=%s)",
		target, site.CleanupTime, site.RepeatingTime, site.Timezone)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig

	log.Printf("pagesched: received signal %v, shutting down", received)

	// Phase 1: Stop scheduler (no new job runs started)
	log.Println("pagesched: stopping scheduler...")
	sched.Stop(context.Background())
	log.Println("pagesched: scheduler stopped")

	// Phase 2: Stop the rules poller (no new triggers emitted)
	if cancelPoller != nil {
		log.Println("pagesched: stopping rules poller...")
		cancelPoller()
		pollerWg.Wait()
		log.Println("pagesched: rules poller stopped")
	}

	// Phase 3: Stop the deployment tracker (pending checks abandoned)
	log.Println("pagesched: stopping deployment tracker...")
	tracker.Close()
	log.Println("pagesched: deployment tracker stopped")

	// Phase 4: Stop HTTP server with graceful shutdown
	log.Println("pagesched: stopping http server...")
	httpShutdownCtx, httpShutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer httpShutdownCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		log.Printf("pagesched: http server shutdown error: %v", err)
	}
	log.Println("pagesched: http server stopped")

	log.Println("pagesched: stopped")
	return exitSuccess
}

// probeAuditTable checks that the audit_log table exists. The schema is
// documented in internal/audit; the daemon runs without it, logging insert
// failures.
func probeAuditTable(db *sql.DB) error {
	var name string
	return db.QueryRow(
		`SELECT table_name FROM information_schema.tables WHERE table_name = 'audit_log'`,
	).Scan(&name)
}

// logConfigWarnings flags configuration combinations that work but likely
// aren't what the operator wants.
func logConfigWarnings(cfg config.Config) {
	if cfg.WebhookSecret == "" && cfg.PollRulesInterval <= 0 {
		log.Println("WARNING: WEBHOOK_SECRET unset and POLL_RULES_INTERVAL disabled; " +
			"rule edits only take effect at the next scheduled run")
	}
	if cfg.NotifyWebhookURL != "" && cfg.TrackMaxWait < cfg.TrackPollInterval*2 {
		log.Println("WARNING: TRACK_MAX_WAIT allows at most one deployment check; " +
			"most deployments will be reported as timeouts")
	}
	if !cfg.MetricsEnabled {
		log.Println("INFO: METRICS_ENABLED=false; job and deployment metrics are not exported")
	}
}

func runValidate() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitInvalidConfig
	}

	if _, err := config.LoadSite(cfg.SiteConfigPath); err != nil {
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
	fmt.Printf("pagesched version %s (commit: %s)\n", version, commit)
	return exitSuccess
}
