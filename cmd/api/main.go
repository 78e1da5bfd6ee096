package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dan9191/referral-service/internal/auth"
	"github.com/Dan9191/referral-service/internal/config"
	"github.com/Dan9191/referral-service/internal/handler"
	"github.com/Dan9191/referral-service/internal/metrics"
	"github.com/Dan9191/referral-service/internal/middleware"
	"github.com/Dan9191/referral-service/internal/repository"
	"github.com/Dan9191/referral-service/internal/scheduler"
	"github.com/Dan9191/referral-service/internal/service"
	"github.com/Dan9191/referral-service/internal/utils/email"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	logLevel, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Initialize store
	var store service.Store
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		logger.Warn("Using in-memory store; data is lost on restart")
		store = repository.NewMemoryRepository()
	default:
		db, err := sql.Open("postgres", cfg.DBConn)
		if err != nil {
			logger.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			logger.Fatalf("Failed to ping database: %v", err)
		}
		if cfg.DBMigrate {
			if err := repository.Migrate(db); err != nil {
				logger.Fatalf("Failed to migrate database: %v", err)
			}
		}
		store = repository.NewRepository(db)
	}

	// Initialize layers
	m := metrics.New()
	tokens := auth.NewTokenService(cfg.JWTSecret, cfg.JWTExpiration)
	opts := []service.Option{service.WithMetrics(m)}
	var sender *email.Sender
	if cfg.MailEnabled() {
		sender = email.NewSender(cfg, logger)
		opts = append(opts, service.WithNotifier(sender))
	}
	svc := service.NewService(store, auth.NewPasswordHasher(cfg.BcryptCost), tokens, logger, opts...)
	h := handler.NewHandler(svc, logger)

	if len(cfg.AdminEmails) == 0 {
		logger.Warn("ADMIN_EMAILS is empty; the referral report is unreachable")
	}

	// Scheduled report
	if cfg.ReportSchedule != "" {
		if sender == nil {
			logger.Fatal("REPORT_SCHEDULE requires SMTP_HOST")
		}
		reports, err := scheduler.NewReportScheduler(cfg.ReportSchedule, svc, sender, cfg.ReportRecipients, logger)
		if err != nil {
			logger.Fatalf("Failed to schedule report: %v", err)
		}
		reports.Start()
		defer reports.Stop()
	}

	// Setup router
	r := handler.NewRouter(h, handler.RouterConfig{
		Auth:    middleware.AuthMiddleware(tokens, logger, m),
		IsAdmin: cfg.IsAdmin,
		Metrics: m,
		Log:     logger,
	})

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("Starting server on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Errorf("Server shutdown failed: %v", err)
	}
	logger.Info("Server stopped")
}
