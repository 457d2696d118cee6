// Command mailworker sends the invitation emails the API enqueues on AMQP.
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Juls95/Trinit-AI/internal/config"
	"github.com/Juls95/Trinit-AI/internal/logger"
	"github.com/Juls95/Trinit-AI/internal/mail"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load(os.Getenv("TRINIT_CONFIG"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	zlog := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	}).With(zap.String("component", "mailworker"))
	defer func() { _ = zlog.Sync() }()

	if !cfg.AMQP.Enabled {
		zlog.Fatal("amqp is disabled, nothing to consume")
	}

	var sender mail.Sender = mail.LogSender{AppURL: cfg.Server.AppURL, Logger: zlog}
	if cfg.Mail.ResendAPIKey != "" {
		sender = mail.NewResendSender(cfg.Mail.ResendAPIKey, cfg.Mail.From, cfg.Server.AppURL, zlog)
	} else {
		zlog.Warn("resend is not configured, invitations are only logged")
	}

	q, err := mail.NewQueue(cfg.AMQP.URL, cfg.AMQP.Exchange, cfg.AMQP.Queue, zlog)
	if err != nil {
		zlog.Fatal("connect queue", zap.Error(err))
	}
	defer q.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := q.Consume(ctx, sender.SendInvitation); err != nil && !errors.Is(err, context.Canceled) {
		zlog.Fatal("consume invitations", zap.Error(err))
	}
	zlog.Info("mailworker stopped")
}
