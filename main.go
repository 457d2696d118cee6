package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Juls95/Trinit-AI/internal/assistant"
	"github.com/Juls95/Trinit-AI/internal/billing"
	"github.com/Juls95/Trinit-AI/internal/config"
	"github.com/Juls95/Trinit-AI/internal/database"
	"github.com/Juls95/Trinit-AI/internal/idempotency"
	"github.com/Juls95/Trinit-AI/internal/logger"
	"github.com/Juls95/Trinit-AI/internal/mail"
	"github.com/Juls95/Trinit-AI/internal/quota"
	"github.com/Juls95/Trinit-AI/internal/ratelimit"
	"github.com/Juls95/Trinit-AI/internal/router"
	"github.com/Juls95/Trinit-AI/internal/store"
	"github.com/Juls95/Trinit-AI/internal/util"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	// load configuration
	cfg, err := config.Load(os.Getenv("TRINIT_CONFIG"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	zlog := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	defer func() { _ = zlog.Sync() }()
	zap.ReplaceGlobals(zlog)

	// init database
	db, err := database.Init(cfg.Database, zlog)
	if err != nil {
		zlog.Fatal("init database", zap.Error(err))
	}

	// run migrations
	if err := database.AutoMigrate(db); err != nil {
		zlog.Fatal("migrate database", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	util.SetupValidator()
	st := store.New(db)

	deps := router.Deps{
		Config: cfg,
		DB:     db,
		Store:  st,
		Logger: zlog,
		Quota:  quota.New(st, cfg.Quota.FreeDailyTransactions, time.UTC),
	}

	// 限流和 webhook 去重：配置了 Redis 时多实例共享，否则用进程内存
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			zlog.Warn("redis unreachable, limits fail open until it recovers", zap.Error(err))
		}
		deps.ChatLimiter = ratelimit.NewLimiter(ratelimit.NewRedisStore(rdb, "trinit:rl:"),
			cfg.RateLimit.ChatWindow, cfg.RateLimit.ChatMaxRequests, "chat:")
		deps.Events = idempotency.NewRedisStore(rdb, "trinit:webhook:")
	} else {
		mem := ratelimit.NewMemoryStore(ratelimit.SystemClock, 5*time.Minute, 10*time.Minute)
		defer mem.Stop()
		deps.ChatLimiter = ratelimit.NewLimiter(mem, cfg.RateLimit.ChatWindow, cfg.RateLimit.ChatMaxRequests, "chat:")
		deps.Events = idempotency.NewMemoryStore(10 * time.Minute)
	}
	defer deps.Events.Close()

	// billing
	adapter, err := billing.NewStripeAdapter(cfg.Stripe, cfg.Server.AppURL, zlog)
	switch {
	case errors.Is(err, billing.ErrNotConfigured):
		zlog.Warn("stripe is not configured, billing endpoints disabled")
	case err != nil:
		zlog.Fatal("init stripe", zap.Error(err))
	default:
		deps.Billing = billing.NewService(adapter, st, zlog)
	}

	// assistant
	gemini, err := assistant.NewGemini(ctx, cfg.Assistant, zlog)
	switch {
	case errors.Is(err, assistant.ErrNotConfigured):
		zlog.Warn("assistant is not configured, chat disabled")
	case err != nil:
		zlog.Fatal("init assistant", zap.Error(err))
	default:
		deps.Assistant = gemini
	}

	// mail
	switch {
	case cfg.AMQP.Enabled:
		q, err := mail.NewQueue(cfg.AMQP.URL, cfg.AMQP.Exchange, cfg.AMQP.Queue, zlog)
		if err != nil {
			zlog.Fatal("init mail queue", zap.Error(err))
		}
		defer q.Close()
		deps.Mailer = q
	case cfg.Mail.ResendAPIKey != "":
		deps.Mailer = mail.NewResendSender(cfg.Mail.ResendAPIKey, cfg.Mail.From, cfg.Server.AppURL, zlog)
	default:
		deps.Mailer = mail.LogSender{AppURL: cfg.Server.AppURL, Logger: zlog}
	}

	// setup router
	r := router.SetupRouter(deps)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zlog.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("run server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zlog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error("graceful shutdown failed", zap.Error(err))
	}
}
