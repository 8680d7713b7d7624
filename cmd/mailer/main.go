package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"transitpass/internal/notification"
	"transitpass/internal/platform/config"
	"transitpass/internal/platform/logger"
)

// The mailer drains the notification queue and delivers through SMTP.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.New(cfg.Env)
	slog.SetDefault(log)
	if cfg.Notify.AMQPURL == "" {
		log.Error("AMQP_URL is required for the mailer")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mailer := notification.NewSMTPMailer(notification.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})
	consumer := notification.NewConsumer(cfg.Notify.AMQPURL, cfg.Notify.Queue, mailer, log)
	log.Info("mailer started", "queue", cfg.Notify.Queue, "smtp_host", cfg.SMTP.Host)
	if err := consumer.Run(ctx); err != nil {
		log.Error("mailer stopped with error", "error", err)
		os.Exit(1)
	}
}
