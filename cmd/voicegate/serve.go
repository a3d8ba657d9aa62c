package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/akorchev/voicegate/internal/api"
	"github.com/akorchev/voicegate/internal/config"
	"github.com/akorchev/voicegate/internal/gate"
	"github.com/akorchev/voicegate/internal/hub"
	"github.com/akorchev/voicegate/internal/middleware"
	"github.com/akorchev/voicegate/internal/prefs"
	"github.com/akorchev/voicegate/internal/store"
	"github.com/akorchev/voicegate/internal/wait"
	"github.com/akorchev/voicegate/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the voicegate HTTP service",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func runServe() error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		return err
	}

	slog.Info("Starting voicegate", "port", cfg.Port, "delivery_mode", cfg.DeliveryMode)

	// Wire the engine, leaf to root.
	memStore := store.NewMemory()
	preferences := prefs.New()
	eventHub := hub.New(preferences, cfg.EventBufferSize, logger)
	coordinator := wait.New(memStore, preferences, eventHub, wait.Config{
		PollInterval: cfg.PollInterval,
		Timeout:      cfg.WaitTimeout,
		Logger:       logger,
	})

	mode := gate.ModeAutoDeliver
	if cfg.DeliveryMode == "manual" {
		mode = gate.ModeManual
	}
	actionGate := gate.New(memStore, preferences, eventHub, coordinator, mode, logger)

	handler := api.NewHandler(memStore, preferences, eventHub, actionGate, coordinator, cfg, logger)
	defer handler.Close()

	// Setup router.
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS())

	handler.RegisterRoutes(r)

	// Serve the embedded browser client.
	r.Handle("/*", web.Handler())

	// SSE connections require long-lived writes, so no WriteTimeout.
	srv := &http.Server{
		Addr:         "localhost:" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		return err
	}

	slog.Info("Server stopped")
	return nil
}
