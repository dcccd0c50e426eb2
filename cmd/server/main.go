package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/pvpai/agent-engine/internal/config"
	"github.com/pvpai/agent-engine/internal/engine"
	"github.com/pvpai/agent-engine/internal/external"
	"github.com/pvpai/agent-engine/internal/metrics"
	"github.com/pvpai/agent-engine/internal/store"
	"github.com/pvpai/agent-engine/internal/sweep"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if cfg.RedisURL != "" {
			opt, err := redis.ParseURL(cfg.RedisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, 30*time.Second)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Outbound adapters ---
	var signals engine.SignalSource = external.NoopSignalSource{}
	if cfg.SignalServiceURL != "" {
		signals = external.NewHTTPSignalSource(cfg.SignalServiceURL)
	} else {
		slog.Warn("SIGNAL_SERVICE_URL not set, trade triggers disabled")
	}

	var exchange engine.ExchangeFeed = external.StubExchangeFeed{Price: decimal.NewFromInt(100)}
	if cfg.ExchangeServiceURL != "" {
		exchange = external.NewHTTPExchangeFeed(cfg.ExchangeServiceURL)
	} else {
		slog.Warn("EXCHANGE_SERVICE_URL not set, using stub mark price")
	}

	var payouts engine.PayoutSender = external.LogPayoutSender{}
	if cfg.PayoutServiceURL != "" {
		payouts = external.NewHTTPPayoutSender(cfg.PayoutServiceURL)
	} else {
		slog.Warn("PAYOUT_SERVICE_URL not set, payouts logged only")
	}

	// --- WebSocket hub ---
	hub := engine.NewEventHub()
	go hub.Run()

	// --- Engine service and sweep coordinator ---
	svc := engine.NewService(st, cfg, signals, exchange, payouts, hub)
	sweeps := sweep.NewCoordinator(svc, signals, exchange, payouts, cfg.CronSecret)
	sweeps.Start(cfg.MonitorInterval, cfg.SettleInterval)
	defer sweeps.Stop()

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", cfg.CORSAllowOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-User-ID")
			if req.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, req)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"agent-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time engine events.
		r.Get("/ws", hub.HandleWS)

		// Agent lifecycle.
		r.Get("/agents", svc.HandleListAgents)
		r.Post("/agents", svc.HandleMint)
		r.Get("/agents/{agentID}", svc.HandleGetAgent)
		r.Post("/agents/{agentID}/pause", svc.HandlePause)
		r.Post("/agents/{agentID}/resume", svc.HandleResume)
		r.Post("/agents/{agentID}/close", svc.HandleClose)
		r.Post("/agents/{agentID}/resurrect", svc.HandleResurrect)
		r.Post("/agents/{agentID}/recharge", svc.HandleRecharge)
		r.Post("/agents/{agentID}/claim", svc.HandleClaim)

		// Investor pool.
		r.Post("/agents/{agentID}/invest", svc.HandleInvest)
		r.Post("/investments/{investmentID}/withdraw", svc.HandleWithdraw)
		r.Get("/positions", svc.HandlePositions)

		// History reads.
		r.Get("/agents/{agentID}/ledger", svc.HandleAgentLedger)
		r.Get("/agents/{agentID}/energy", svc.HandleAgentEnergyLog)
	})

	// Scheduler-to-engine surface: sweeps plus direct trade open/settle,
	// authenticated by the shared cron secret.
	r.Route("/internal", func(r chi.Router) {
		r.Use(sweeps.RequireSecret)
		r.Post("/sweeps/monitor", sweeps.HandleMonitor)
		r.Post("/sweeps/settle", sweeps.HandleSettle)
		r.Post("/trades", svc.HandleOpenTrade)
		r.Post("/trades/{tradeID}/settle", svc.HandleSettleTrade)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("agent-engine listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down agent-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("agent-engine stopped")
}
