package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/dfs-sim/showdown/internal/api"
	"github.com/stitts-dev/dfs-sim/showdown/internal/export"
	"github.com/stitts-dev/dfs-sim/showdown/internal/session"
	"github.com/stitts-dev/dfs-sim/showdown/internal/store"
	"github.com/stitts-dev/dfs-sim/showdown/internal/strategy"
	"github.com/stitts-dev/dfs-sim/showdown/pkg/config"
	"github.com/stitts-dev/dfs-sim/showdown/pkg/logger"
	"github.com/stitts-dev/dfs-sim/showdown/pkg/metrics"
)

const serviceName = "showdown-optimizer"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	structuredLogger := logger.InitLogger(cfg.LogLevel, cfg.IsDevelopment())
	log := logger.WithService(serviceName)
	log.WithFields(logrus.Fields{
		"environment": cfg.Env,
		"port":        cfg.Port,
		"workers":     cfg.WorkerPoolSize,
		"salary_cap":  cfg.SalaryCap,
	}).Info("Starting showdown optimizer")

	if cfg.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	defaults, err := cfg.Defaults()
	if err != nil {
		log.Fatalf("Invalid sampler configuration: %v", err)
	}
	registry := strategy.NewRegistry(defaults)
	m := metrics.NewManager()

	lineupStore, closeStore := newLineupStore(cfg, m, log)
	defer closeStore()

	sessions := session.NewManager(registry, session.Options{
		TTL:        cfg.SessionTTL,
		Workers:    cfg.WorkerPoolSize,
		SalaryCap:  cfg.SalaryCap,
		MaxLineups: cfg.MaxLineups,
		Seed:       cfg.RNGSeed,
		Observer:   m,
		Logger:     log,
	})
	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	defer stopJanitor()
	go sessions.Run(janitorCtx)

	router := api.NewRouter(api.Dependencies{
		Sessions: sessions,
		Registry: registry,
		Store:    lineupStore,
		Exporter: export.NewExporter(),
		Metrics:  m,
		Logger:   structuredLogger,
		Settings: api.Settings{
			CorsOrigins:       cfg.CorsOrigins,
			GenerationTimeout: cfg.GenerationTimeout,
			RateLimitRPS:      cfg.RateLimitRPS,
			RateLimitBurst:    cfg.RateLimitBurst,
		},
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: router,
	}

	go func() {
		log.WithField("port", cfg.Port).Info("Showdown optimizer started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down showdown optimizer...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("Showdown optimizer forced to shutdown: %v", err)
	}
	stopJanitor()
	sessions.CloseAll()

	log.Info("Showdown optimizer exited")
}

// newLineupStore picks redis when REDIS_URL is set. An unreachable redis is
// not fatal: the breaker routes saves to memory until it recovers.
func newLineupStore(cfg *config.Config, m *metrics.Manager, log *logrus.Entry) (store.LineupStore, func()) {
	memory := store.NewMemoryStore(cfg.LineupTTL)
	if cfg.RedisURL == "" {
		log.Info("REDIS_URL not set, saving lineups in memory")
		return memory, func() {}
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to parse Redis URL: %v", err)
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.WithError(err).Warn("Redis unreachable at startup, lineups fall back to memory")
	}

	rs := store.NewRedisStore(client, cfg.LineupTTL, memory, store.BreakerSettings{
		Threshold: cfg.CircuitBreakerThreshold,
		Timeout:   cfg.CircuitBreakerTimeout,
	}, log.WithField("component", "lineup_store"))
	rs.OnFallback(m.StoreFallback)

	return rs, func() { _ = client.Close() }
}
