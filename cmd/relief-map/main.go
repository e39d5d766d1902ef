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

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/mr1hm/go-relief-map/internal/api"
	"github.com/mr1hm/go-relief-map/internal/app"
	"github.com/mr1hm/go-relief-map/internal/config"
	"github.com/mr1hm/go-relief-map/internal/logging"
	"github.com/mr1hm/go-relief-map/internal/notify"
	"github.com/mr1hm/go-relief-map/internal/observability"
	"github.com/mr1hm/go-relief-map/internal/source"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("Server starting", "host", cfg.Server.Host, "port", cfg.Server.Port, "backend", cfg.Backend.URL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := observability.NewMetrics()
	logger := slog.Default()

	client := source.NewClient(cfg.Backend.URL, cfg.Backend.Timeout,
		source.WithLogger(logger),
		source.WithMetrics(metrics),
	)
	notifier := notify.NewBroadcaster(
		notify.WithLogger(logger),
		notify.WithMetrics(metrics),
	)

	view, err := app.Mount(ctx, app.Deps{
		Source:         client,
		Notifier:       notifier,
		Logger:         logger,
		Metrics:        metrics,
		MapInterval:    cfg.Refresh.MapInterval,
		StatsInterval:  cfg.Refresh.StatsInterval,
		NearbyRadiusKm: cfg.Map.NearbyRadiusKm,
		FitPadding:     cfg.Map.FitPaddingPx,
		EventBuffer:    cfg.Worker.BufferSize,
	})
	if err != nil {
		logging.Fatalf("Failed to mount view: %v", err)
	}

	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(view, api.RouterConfig{
		RateLimitRPS: cfg.Server.RateLimitRPS,
		AllowOrigins: cfg.Server.AllowOrigins,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down...")

	// Unmount first so notification streams close and SSE handlers return
	view.Unmount()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
}
