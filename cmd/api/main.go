package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/mzobesbulelo/siwakhelwe-paystack-backend/internal/email"
	"github.com/mzobesbulelo/siwakhelwe-paystack-backend/internal/handlers"
	"github.com/mzobesbulelo/siwakhelwe-paystack-backend/internal/paystack"
	"github.com/mzobesbulelo/siwakhelwe-paystack-backend/internal/platform/config"
	"github.com/mzobesbulelo/siwakhelwe-paystack-backend/internal/platform/observability"
	"github.com/mzobesbulelo/siwakhelwe-paystack-backend/internal/services"
)

func main() {
	// Local development reads secrets from a .env file; deployed environments
	// inject them directly, so a missing file is not an error.
	_ = godotenv.Load()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	gateway, err := paystack.NewClient(paystack.Config{
		SecretKey: cfg.Paystack.SecretKey,
		BaseURL:   cfg.Paystack.BaseURL,
	}, logger.Named("paystack"))
	if err != nil {
		logger.Fatal("failed to initialise paystack client", zap.Error(err))
	}

	mailer, err := email.NewClient(email.Config{
		APIToken:   cfg.Email.APIToken,
		Sender:     cfg.Email.Sender,
		SenderName: cfg.Email.SenderName,
		BaseURL:    cfg.Email.BaseURL,
	}, logger.Named("email"))
	if err != nil {
		logger.Fatal("failed to initialise email client", zap.Error(err))
	}

	receipts, err := services.NewReceiptDispatcher(services.ReceiptDispatcherDeps{
		Sender:     mailer,
		TemplateID: cfg.Email.TemplateID,
		OpsMailbox: cfg.Email.OpsMailbox,
		Logger:     logger.Named("receipts"),
	})
	if err != nil {
		logger.Fatal("failed to initialise receipt dispatcher", zap.Error(err))
	}

	paymentService, err := services.NewPaymentService(services.PaymentServiceDeps{
		Gateway:  gateway,
		Receipts: receipts,
		Currency: cfg.Paystack.Currency,
		Logger:   logger.Named("payments"),
	})
	if err != nil {
		logger.Fatal("failed to initialise payment service", zap.Error(err))
	}

	paymentHandlers := handlers.NewPaymentHandlers(paymentService, logger.Named("http"))

	corsMiddleware := cors.Handler(cors.Options{
		AllowedOrigins: []string{cfg.CORS.AllowedOrigin},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	})

	router := handlers.NewRouter(
		handlers.WithMiddlewares(corsMiddleware),
		handlers.WithPaymentRoutes(paymentHandlers.Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("siwakhelwe paystack backend listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
