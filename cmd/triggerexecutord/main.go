// Command triggerexecutord watches configured take-profit/stop-loss orders
// (TCS) and routes the ones worth closing through an external swap router,
// per spec.md's off-chain trigger executor design. It owns no consensus
// state: account snapshots come from a stale bbolt cache refreshed by a
// caller-supplied fetcher, and the health/liquidation judgment that gates
// every trigger lives in pkg/health and pkg/liquidation.
package main

import (
	"context"
	"flag"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"marginrisk/pkg/adminauth"
	"marginrisk/pkg/eventlog"
	"marginrisk/pkg/fixedpoint"
	"marginrisk/pkg/riskconfig"
	"marginrisk/pkg/store/boltcache"
	"marginrisk/pkg/trigger"
)

func main() {
	var (
		execConfigPath = flag.String("config", "triggerexecutor.yaml", "path to the executor's deployment-time YAML configuration")
		riskConfigPath = flag.String("risk-config", "risk-parameters.toml", "path to the protocol risk-parameters TOML file")
		cachePath      = flag.String("cache", "triggerexecutor.db", "path to the bbolt stale-account cache")
		listenAddr     = flag.String("listen", "127.0.0.1:7201", "admin API listen address")
		logPath        = flag.String("log-file", "", "rotated log file path; empty disables file logging")
		jwtSecret      = flag.String("jwt-secret", "", "HMAC secret for admin API bearer tokens; empty disables auth")
		eventLogDSN    = flag.String("eventlog-dsn", "", "postgres DSN for the liquidation event log; empty disables persistence")
	)
	flag.Parse()

	logger := setupLogging(*logPath)

	cfg, err := trigger.LoadConfig(*execConfigPath)
	if err != nil {
		logger.Error("load executor config", "path", *execConfigPath, "error", err)
		os.Exit(1)
	}
	params, err := riskconfig.Load(*riskConfigPath)
	if err != nil {
		logger.Error("load risk parameters", "path", *riskConfigPath, "error", err)
		os.Exit(1)
	}
	logger.Info("loaded risk parameters", "banks", len(params.Banks), "perp_markets", len(params.PerpMarkets))

	cache, err := boltcache.Open(*cachePath, nil)
	if err != nil {
		logger.Error("open stale-account cache", "path", *cachePath, "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := cache.Close(); err != nil {
			logger.Warn("close stale-account cache", "error", err)
		}
	}()

	var eventDB *gorm.DB
	if strings.TrimSpace(*eventLogDSN) != "" {
		eventDB, err = gorm.Open(postgres.Open(*eventLogDSN), &gorm.Config{})
		if err != nil {
			logger.Error("open event log database", "error", err)
			os.Exit(1)
		}
		if err := eventlog.AutoMigrate(eventDB); err != nil {
			logger.Error("migrate event log database", "error", err)
			os.Exit(1)
		}
		logger.Info("event log persistence enabled")
	} else {
		logger.Warn("event log persistence disabled; liquidation logs will not be recorded")
	}

	tracker := trigger.NewErrorTracker(cfg.ErrorWindow, cfg.ErrorLimit)
	metrics := trigger.NewMetrics()

	sched := &trigger.Scheduler{
		MaxPrepared: cfg.MaxPrepared,
		MaxVolume:   fixedpoint.FromInt64(int64(cfg.MaxVolume)),
		Tracker:     tracker,
		Metrics:     metrics,
		// Prepare is wired by the deployment once the on-chain account
		// source, quote router, and swap-cost estimator for this instance
		// are known; left nil here would panic on first admitted candidate,
		// so a real deployment must set it before calling Run.
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	admin := &adminAPI{scheduler: sched, tracker: tracker, logger: logger, eventDB: eventDB}
	adminRouter := newAdminRouter(admin)
	if *jwtSecret != "" {
		auth := adminauth.NewAuthenticator(adminauth.Config{
			Enabled:    true,
			HMACSecret: *jwtSecret,
			ScopeClaim: "scope",
		}, logger)
		adminRouter = withChiAuth(auth, adminRouter)
	} else {
		logger.Warn("admin API running without authentication; set -jwt-secret in production")
	}
	mux.Handle("/v1/", adminRouter)

	server := &http.Server{
		Addr:         *listenAddr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("admin API listening", "addr", *listenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("admin API server exited", "error", err)
		}
	}()

	logger.Info("trigger executor ready", "mode", cfg.ParseMode().String())
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("admin API shutdown", "error", err)
	}
}

// withChiAuth adapts the net/http middleware onto a chi.Router so it runs
// in front of every route the admin router mounts.
func withChiAuth(auth *adminauth.Authenticator, next http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(auth.Middleware())
	r.Mount("/", next)
	return r
}

func setupLogging(path string) *slog.Logger {
	var writer io.Writer = os.Stdout
	if strings.TrimSpace(path) != "" {
		rotator := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     28,
			Compress:   true,
		}
		writer = io.MultiWriter(os.Stdout, rotator)
	}
	handler := slog.NewJSONHandler(writer, &slog.HandlerOptions{})
	logger := slog.New(handler).With(slog.String("service", "triggerexecutord"))
	slog.SetDefault(logger)
	return logger
}
