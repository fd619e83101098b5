// tableflow-worker — хост сессий вычислителя за RabbitMQ.
//
// Worker:
//   - Читает evaluator.init/run/close из очереди evaluator.requests
//   - Держит сессии в памяти и отвечает в reply-to запроса
//   - Перезагружает реестр из PostgreSQL по расписанию
//   - Закрывает простаивающие сессии
//
// Сессия живёт на одном worker: при нескольких worker нужна одна
// очередь на worker или один worker на очередь.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/tableflow/internal/config"
	"github.com/shaiso/tableflow/internal/engine"
	"github.com/shaiso/tableflow/internal/mq"
	"github.com/shaiso/tableflow/internal/registry"
	"github.com/shaiso/tableflow/internal/repo"
	"github.com/shaiso/tableflow/internal/scheduler"
	"github.com/shaiso/tableflow/internal/session"
	"github.com/shaiso/tableflow/internal/telemetry"
	"github.com/shaiso/tableflow/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger, err := telemetry.SetupLogger(telemetry.LogOptions{
		Service: "tableflow-worker",
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
	})
	if err != nil {
		slog.Error("setup logger", "error", err)
		os.Exit(1)
	}
	logger.Info("starting tableflow-worker")

	if err := run(cfg, logger); err != nil {
		logger.Error("tableflow-worker failed", "error", err)
		os.Exit(1)
	}
	logger.Info("tableflow-worker stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool
	pool, err := repo.NewPool(ctx, cfg.DBURL)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()
	if err := repo.EnsureSchema(ctx, pool); err != nil {
		return err
	}
	logger.Info("database connected")

	holder := registry.NewHolder(nil)
	reloader := scheduler.NewReloader(repo.NewDocumentRepo(pool), holder, logger)
	if err := reloader.Reload(ctx); err != nil {
		return fmt.Errorf("initial registry load: %w", err)
	}

	// RabbitMQ
	conn, err := mq.NewConnection(cfg.RabbitMQURL, logger)
	if err != nil {
		return fmt.Errorf("connect to RabbitMQ: %w", err)
	}
	defer conn.Close()
	logger.Info("RabbitMQ connected")

	if err := mq.SetupTopology(ctx, conn); err != nil {
		return err
	}

	sessions := session.NewManager(session.ManagerConfig{
		Registry:     func() engine.Registry { return holder.Get() },
		MaxCallDepth: cfg.MaxCallDepth,
		Logger:       logger,
	})

	sched := scheduler.New(scheduler.Config{Logger: logger})
	if err := sched.Add("registry-reload", cfg.ReloadSchedule, reloader.Reload); err != nil {
		return err
	}
	if err := sched.Add("session-sweep", cfg.SweepSchedule, scheduler.SweepJob(sessions, cfg.SessionIdle, logger)); err != nil {
		return err
	}

	w := worker.New(worker.Config{
		Sessions:  sessions,
		Publisher: mq.NewPublisher(conn, logger),
		Conn:      conn,
		Logger:    logger,
	})
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	sched.Start()

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		if w.IsStopped() || !conn.IsConnected() {
			http.Error(rw, "not ready", http.StatusServiceUnavailable)
			return
		}
		rw.WriteHeader(http.StatusOK)
		rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              cfg.WorkerAddr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	sched.Stop(shutdownCtx)
	w.Stop()
	return server.Shutdown(shutdownCtx)
}
