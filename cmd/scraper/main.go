package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/pricewatch/storefront-scraper/internal/antidetect"
	"github.com/pricewatch/storefront-scraper/internal/catalog"
	"github.com/pricewatch/storefront-scraper/internal/config"
	"github.com/pricewatch/storefront-scraper/internal/events"
	"github.com/pricewatch/storefront-scraper/internal/profile"
	"github.com/pricewatch/storefront-scraper/internal/scheduler"
	"github.com/pricewatch/storefront-scraper/internal/scraper"
	"github.com/pricewatch/storefront-scraper/internal/session"
)

func main() {
	storeKey := flag.String("store", "eldorado", "store to scrape (eldorado, ozon)")
	run := flag.String("run", "discovery", "run kind: discovery or refresh")
	mode := flag.String("mode", "", "override SCRAPER_MODE (production, debug)")
	concurrency := flag.Int("concurrency", 0, "override SCRAPER_CONCURRENT_LIMIT")
	dryRun := flag.Bool("dry-run", false, "scrape and log without writing to the backend")
	metricsAddr := flag.String("metrics-addr", "", "address for the Prometheus endpoint, empty disables")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *mode != "" {
		cfg.Scraper.Mode = config.Mode(*mode)
	}
	if *concurrency > 0 {
		cfg.Scraper.ConcurrentLimit = *concurrency
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	registry, err := profile.NewRegistry()
	if err != nil {
		logger.Error("failed to load store profiles", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	controller := session.NewController(session.Options{
		Headless:       cfg.Browser.Headless,
		Timeout:        cfg.Browser.Timeout,
		ViewportWidth:  cfg.Browser.ViewportWidth,
		ViewportHeight: cfg.Browser.ViewportHeight,
		AcceptLanguage: cfg.Browser.AcceptLanguage,
		TimezoneID:     cfg.Browser.TimezoneID,
		Locale:         cfg.Browser.Locale,
		ProxyServer:    cfg.Browser.ProxyServer,
		PageBudget:     cfg.Scraper.PageBudget,
	}, logger)
	if err := controller.Start(); err != nil {
		logger.Error("failed to start browser", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := controller.Shutdown(); err != nil {
			logger.Error("browser shutdown failed", "error", err)
		}
	}()

	shield := antidetect.NewShield(antidetect.Options{
		UserAgents:     cfg.Scraper.UserAgents,
		AcceptLanguage: cfg.Browser.AcceptLanguage,
		ViewportWidth:  cfg.Browser.ViewportWidth,
		ViewportHeight: cfg.Browser.ViewportHeight,
	}, logger)

	backend := catalog.NewClient(cfg.Backend.BaseURL, cfg.Backend.Timeout, logger)
	reconciler := catalog.NewReconciler(backend, logOnly(cfg.Scraper.Mode, *dryRun), logger)
	if err := reconciler.LoadIndex(ctx); err != nil {
		logger.Error("failed to load catalog index", "error", err)
		os.Exit(1)
	}

	var publisher *events.Publisher
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		publisher = events.NewPublisher(redisClient, cfg.Redis.Stream, logger)
		defer publisher.Close()
	}

	metrics := scheduler.NewMetrics()
	var metricsServer *http.Server
	if *metricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    *metricsAddr,
			Handler: promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		defer metricsServer.Close()
	}

	debug := cfg.Scraper.Mode == config.ModeDebug
	sched := scheduler.NewScheduler(scheduler.Deps{
		Pages:      controller,
		Backend:    backend,
		Navigator:  scraper.NewNavigator(shield, debug, logger),
		Extractor:  scraper.NewExtractor(logger),
		Reconciler: reconciler,
		Publisher:  publisher,
		Registry:   registry,
		Metrics:    metrics,
	}, cfg.Scraper.MaxCategoryID, cfg.Scraper.ConcurrentLimit, logger)

	var report *scheduler.Report
	switch *run {
	case "discovery":
		report, err = sched.RunDiscovery(ctx, *storeKey)
	case "refresh":
		report, err = sched.RunRefresh(ctx, *storeKey)
	default:
		logger.Error("unknown run kind", "run", *run)
		os.Exit(2)
	}
	if err != nil {
		logger.Error("run aborted", "run", *run, "store", *storeKey, "error", err)
		os.Exit(1)
	}

	logger.Info("run complete",
		"run", *run,
		"store", *storeKey,
		"tasks_done", report.TasksDone,
		"tasks_failed", report.TasksFailed,
		"valid_records", report.RecordsValid,
		"dropped_records", report.RecordsDropped,
		"pages_processed", controller.PagesProcessed(),
		"restarts", controller.Restarts())
}

// logOnly reports whether reconciliation must log decisions instead of
// issuing backend writes. Debug runs never write, regardless of flags.
func logOnly(mode config.Mode, dryRunFlag bool) bool {
	return dryRunFlag || mode == config.ModeDebug
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
