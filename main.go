package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"program-events/auth"
	"program-events/catalog"
	"program-events/config"
	"program-events/dashboard"
	"program-events/db"
	"program-events/handlers"
	"program-events/participants"
	"program-events/registration"
	"program-events/schedule"
)

func main() {
	envFile := flag.String("env", ".env", "optional dotenv file")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup structured logging
	logger := cfg.NewLogger()
	slog.SetDefault(logger)
	gin.SetMode(gin.ReleaseMode)

	// Short timeouts for connecting and schema init so a bad store fails the boot fast
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store, err := db.Open(ctx, cfg.Dialect, cfg.DBDSN)
	if err != nil {
		slog.Error("failed to connect to db", "driver", cfg.Dialect, "error", err)
		os.Exit(1)
	}
	if err := store.InitSchema(ctx); err != nil {
		slog.Error("failed to initialize schema", "error", err)
		os.Exit(1)
	}
	slog.Info("database schema initialized", "driver", cfg.Dialect)

	sched := schedule.NewService(store)
	dir := participants.NewDirectory(store)
	engine := registration.NewEngine(store, sched, dir)

	h := &handlers.Handlers{
		Store:         store,
		Catalog:       catalog.NewService(store),
		Schedule:      sched,
		Registrations: engine,
		Participants:  dir,
		Dashboard:     dashboard.NewService(store, sched, engine),
	}

	router, err := handlers.NewRouter(h, handlers.RouterConfig{
		Logger:          logger,
		Signer:          auth.NewSigner(cfg.JWTSecret),
		RequestTimeout:  cfg.RequestTimeout,
		RateLimit:       cfg.RateLimit,
		RateLimitWindow: cfg.RateLimitWindow,
		TrustedProxies:  cfg.TrustedProxies,
	})
	if err != nil {
		slog.Error("failed to build router", "error", err)
		os.Exit(1)
	}

	// Configure Server with Timeouts
	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")

	// 5 seconds to finish in-flight requests
	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(ctxShutdown); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	// Close DB connection last
	if err := store.Close(); err != nil {
		slog.Error("failed to close db", "error", err)
	}

	slog.Info("server exited cleanly")
}
