package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fruitorders/internal/config"
	"fruitorders/internal/metrics"
	"fruitorders/internal/repository"
	"fruitorders/internal/repository/memory"
	"fruitorders/internal/repository/postgres"
	"fruitorders/internal/service"
	tHTTP "fruitorders/internal/transport/http"
	"fruitorders/internal/transport/kafka"
)

func main() {
	cfg := config.MustLoad()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	})))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	repo, closeRepo, err := openRepository(ctx, cfg)
	if err != nil {
		slog.Error("Failed to open storage", "driver", cfg.StorageDriver, "error", err)
		os.Exit(1)
	}
	defer closeRepo()

	orderService := service.NewOrderService(repo, service.WithMetrics(metrics.NewOrderMetrics()))

	handler := tHTTP.NewOrderHandler(orderService)
	router := tHTTP.NewRouter(handler, tHTTP.RouterOptions{
		RateLimitEnabled: cfg.RateLimiter.Enabled,
		RPS:              cfg.RateLimiter.RPS,
		Burst:            cfg.RateLimiter.Burst,
		RequestTimeout:   cfg.HTTPServer.RequestTimeout,
		Metrics:          promhttp.Handler(),
	})

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.ReadTimeout,
		WriteTimeout: cfg.HTTPServer.WriteTimeout,
	}

	// pprof registers itself on DefaultServeMux.
	var pprofServer *http.Server
	if cfg.Monitor.PprofEnabled {
		pprofServer = &http.Server{
			Addr:    cfg.Monitor.PprofAddr,
			Handler: http.DefaultServeMux,
		}
		go func() {
			slog.Info("Starting pprof server", "addr", pprofServer.Addr)
			if err := pprofServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("pprof server failed", "error", err)
			}
		}()
	}

	var consumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		consumer = kafka.NewConsumer(orderService, cfg)
		go consumer.Run(ctx)
	}

	go monitorGoroutines(ctx, cfg.Monitor.GoroutinesInterval)

	go func() {
		slog.Info("Starting HTTP server", "addr", cfg.HTTPAddr, "storage", cfg.StorageDriver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPServer.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown failed", "error", err)
	}
	if pprofServer != nil {
		if err := pprofServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("pprof server shutdown failed", "error", err)
		}
	}
	if consumer != nil {
		consumer.Close()
	}

	slog.Info("Shutdown complete")
}

func openRepository(ctx context.Context, cfg *config.Config) (repository.OrderRepository, func(), error) {
	if cfg.StorageDriver == config.StorageMemory {
		slog.Warn("Using in-memory storage, orders are lost on restart")
		return memory.New(), func() {}, nil
	}

	pool, err := postgres.Connect(ctx, cfg.DSN(), cfg.Retry)
	if err != nil {
		return nil, nil, err
	}
	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, err
	}

	slog.Info("Connected to database", "host", cfg.DB.Host, "name", cfg.DB.Name)
	return postgres.New(pool), pool.Close, nil
}

func monitorGoroutines(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			slog.Info("Runtime stats",
				"goroutines", runtime.NumGoroutine(),
				"memory_alloc_mb", bToMb(m.Alloc),
				"memory_sys_mb", bToMb(m.Sys),
				"gc_cycles", m.NumGC,
			)
		case <-ctx.Done():
			slog.Info("Stopping goroutine monitor")
			return
		}
	}
}

func bToMb(b uint64) uint64 {
	return b / 1024 / 1024
}
