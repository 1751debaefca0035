package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"label-notifier-go/internal/config"
	"label-notifier-go/internal/db"
	"label-notifier-go/internal/handler"
	"label-notifier-go/internal/mailbox"
	"label-notifier-go/internal/metrics"
	"label-notifier-go/internal/notifier"
	"label-notifier-go/internal/repository"
	"label-notifier-go/internal/router"
	"label-notifier-go/internal/scheduler"
	"label-notifier-go/internal/sweep"
)

// Run initializes and starts the application
func Run() error {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(logrus.InfoLevel)

	logrus.Info("Starting Label Notifier Service")

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	dbConn, err := db.Init(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	repo := repository.New(dbConn)

	m := metrics.NewMetrics(prometheus.DefaultRegisterer)

	ctx := context.Background()

	source, err := newSource(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := source.Close(); err != nil {
			logrus.Errorf("Failed to close thread source: %v", err)
		}
	}()

	n, err := newNotifier(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := n.Close(); err != nil {
			logrus.Errorf("Failed to close notifier: %v", err)
		}
	}()

	sweeper := sweep.New(source, n, repo, m)
	sched := scheduler.NewScheduler(&cfg.Scheduler, repo, sweeper, sweep.OptionsFromConfig(&cfg.Notification), m)

	h := handler.NewHandlers(repo, sched, sweeper, map[string]handler.Verifier{
		"source":   source,
		"notifier": n,
	})
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router.SetupRouter(h, cfg.Server.JWTSecret),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	if cfg.Scheduler.AutoStart {
		if err := sched.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	go func() {
		logrus.Infof("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := sched.Stop(); err != nil {
		logrus.Errorf("Failed to stop scheduler: %v", err)
	}
	sched.Wait()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("HTTP server shutdown error: %v", err)
	}

	logrus.Info("Server stopped gracefully")
	return nil
}

func newSource(ctx context.Context, cfg *config.Config) (mailbox.ThreadSource, error) {
	if cfg.Gmail.UseIMAP {
		source, err := mailbox.NewIMAPSource(&cfg.Gmail)
		if err != nil {
			return nil, fmt.Errorf("failed to create IMAP source: %w", err)
		}
		logrus.Info("Using IMAP for thread lookup")
		return source, nil
	}

	source, err := mailbox.NewGmailAPISource(ctx, &cfg.Gmail)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail API source: %w", err)
	}
	logrus.Info("Using Gmail API for thread lookup")
	return source, nil
}

func newNotifier(ctx context.Context, cfg *config.Config) (notifier.Notifier, error) {
	var (
		n    notifier.RawSender
		from string
	)
	if cfg.SMTP.Enabled {
		n = notifier.NewSMTPNotifier(&cfg.SMTP)
		from = cfg.SMTP.From
		logrus.Infof("Sending notifications through SMTP %s:%d", cfg.SMTP.Host, cfg.SMTP.Port)
	} else {
		gn, err := notifier.NewGmailAPINotifier(ctx, &cfg.Gmail, cfg.Notification.MaxSendAttempts)
		if err != nil {
			return nil, fmt.Errorf("failed to create Gmail API notifier: %w", err)
		}
		n = gn
		from = cfg.Gmail.UserEmail
		logrus.Info("Sending notifications through the Gmail API")
	}

	if cfg.Notification.ArchivePath != "" {
		logrus.Infof("Archiving notifications to %s", cfg.Notification.ArchivePath)
		return notifier.NewArchiveNotifier(n, cfg.Notification.ArchivePath, from), nil
	}
	return n, nil
}
