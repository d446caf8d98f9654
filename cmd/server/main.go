package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"refhub/internal/platform/config"
	"refhub/internal/platform/httpserver"
	"refhub/internal/platform/logger"
	"refhub/internal/platform/metrics"
	"refhub/internal/platform/middleware"
	"refhub/internal/platform/postgres"
	platformredis "refhub/internal/platform/redis"
	"refhub/internal/referral/cache"
	"refhub/internal/referral/handler"
	"refhub/internal/referral/service"
	"refhub/internal/referral/store"
	auditrelay "refhub/pkg/platform/audit/relay"
	auditpg "refhub/pkg/platform/audit/store/postgres"
)

// main wires dependencies and owns the process lifecycle. Business logic
// lives in internal/referral.
func main() {
	_ = godotenv.Load()
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := store.EnsureSchema(ctx, db); err != nil {
		log.Error("schema setup failed", "error", err)
		os.Exit(1)
	}
	if err := auditpg.EnsureSchema(ctx, db); err != nil {
		log.Error("audit schema setup failed", "error", err)
		os.Exit(1)
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		log.Info("lookup cache enabled", "ttl", cfg.Redis.TTL.String())
	}

	m := metrics.New()
	stores := store.NewPostgres(db)

	svc := service.New(stores, newSignupPostgresTx(db), log,
		service.WithAudit(auditpg.New(db)),
		service.WithMetrics(m),
		service.WithCache(cache.New(redisClient, cfg.Redis.TTL, log)),
		service.WithCodeLength(cfg.CodeLength),
		service.WithCodeRetries(cfg.CodeRetries),
		service.WithSearchLimit(cfg.SearchLimit),
	)

	router := chi.NewRouter()
	router.Use(middleware.Recovery(log))
	router.Use(middleware.RequestID)
	router.Use(middleware.ClientMetadata)
	router.Use(middleware.Logger(log))
	router.Use(middleware.Timeout(30 * time.Second))
	router.Use(middleware.Latency(m))

	h := handler.New(svc, log)
	h.Register(router)
	router.Group(func(r chi.Router) {
		if cfg.AdminToken != "" {
			r.Use(middleware.RequireAdminToken(cfg.AdminToken, log))
		} else {
			log.Warn("ADMIN_TOKEN not set, admin endpoints are unprotected")
		}
		h.RegisterAdmin(r)
	})
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	if cfg.Kafka.Brokers != "" {
		relay, err := auditrelay.New(ctx, db, cfg.Kafka.Brokers, cfg.Kafka.AuditTopic, cfg.Kafka.RelayInterval, log)
		if err != nil {
			log.Error("audit relay startup failed", "error", err)
			os.Exit(1)
		}
		defer relay.Close()
		go func() {
			if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("audit relay stopped", "error", err)
			}
		}()
		log.Info("audit relay started", "topic", cfg.Kafka.AuditTopic)
	}

	srv := httpserver.New(cfg.Addr, router)

	go func() {
		log.Info("server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
}
