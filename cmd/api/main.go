package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"outreach_backend/internal/campaign"
	"outreach_backend/internal/compose"
	"outreach_backend/internal/delivery"
	apphttp "outreach_backend/internal/http"
	"outreach_backend/internal/http/router"
	"outreach_backend/internal/leads"
	"outreach_backend/internal/notification"
	"outreach_backend/internal/policy"
	"outreach_backend/internal/webhook"
	"outreach_backend/platform/config"
	"outreach_backend/platform/db"
	"outreach_backend/platform/events"
	"outreach_backend/platform/logger"
	"outreach_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const lockLeaseTTL = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg)
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	pol, err := policy.Load(cfg.GetPolicyFile())
	if err != nil {
		log.Error("failed to load engagement policy", "error", err)
		panic("failed to load engagement policy: " + err.Error())
	}

	val := validator.New()

	// Redis-backed campaign locks; without Redis the lock is process-local.
	var rdb *redis.Client
	if cfg.GetRedisURL() != "" {
		opts, err := redis.ParseURL(cfg.GetRedisURL())
		if err != nil {
			log.Error("failed to parse redis URL", "error", err)
			panic("failed to parse redis URL: " + err.Error())
		}
		rdb = redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()
	} else {
		log.Warn("REDIS_URL not configured; campaign locks are process-local")
	}
	locker := campaign.NewLocker(rdb, lockLeaseTTL)

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	// Outbound delivery: one sender per channel behind a single router.
	sender := delivery.NewRouter(log)
	sender.Register(policy.ChannelEmail, delivery.NewEmailSender(cfg, log))
	sender.Register(policy.ChannelSMS, delivery.NewSMSSender(cfg, log))
	sender.Register(policy.ChannelCall, delivery.NewVoiceSender(cfg, log))

	var completer compose.Completer
	if llm := compose.NewLLMClient(cfg); llm != nil {
		completer = llm
		log.Info("message composer using LLM", "model", cfg.GetComposerModel())
	}
	composer := compose.New(completer, log)

	campaignModule := campaign.NewModule(pool, sender, composer, pol, eventBus, locker, cfg, val, log)
	leadsModule := leads.NewModule(pool, campaignModule.Orchestrator(), pol, eventBus, log)
	webhookModule := webhook.NewModule(pool, leadsModule.Service(), campaignModule.Orchestrator(), val)

	// Notification module subscribes to domain events.
	notificationModule := notification.NewModule(pool, cfg, cfg, log)
	notificationModule.RegisterHandlers(eventBus)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   pool,
		EventBus: eventBus,
		Modules: []apphttp.Module{
			webhookModule,
			leadsModule,
			campaignModule,
			notificationModule,
		},
	}

	engine := router.New(app)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = shutdownCtx
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return errors.New(name + ": " + lastErr.Error())
}
