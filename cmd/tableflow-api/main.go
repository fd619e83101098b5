// tableflow-api — HTTP API для хранения flows и работы с сессиями.
//
// API:
//   - Хранит workflows, flows и шаблоны в PostgreSQL
//   - Держит реестр в памяти и перезагружает его по расписанию
//   - Открывает сессии вычислителя локально или на worker через RabbitMQ
//     (REMOTE_EVAL=true)
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
	"golang.org/x/sync/errgroup"

	"github.com/shaiso/tableflow/internal/api"
	"github.com/shaiso/tableflow/internal/config"
	"github.com/shaiso/tableflow/internal/engine"
	"github.com/shaiso/tableflow/internal/mq"
	"github.com/shaiso/tableflow/internal/registry"
	"github.com/shaiso/tableflow/internal/repo"
	"github.com/shaiso/tableflow/internal/scheduler"
	"github.com/shaiso/tableflow/internal/session"
	"github.com/shaiso/tableflow/internal/telemetry"
)

var startTime = time.Now()

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger, err := telemetry.SetupLogger(telemetry.LogOptions{
		Service: "tableflow-api",
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
	})
	if err != nil {
		slog.Error("setup logger", "error", err)
		os.Exit(1)
	}
	logger.Info("starting tableflow-api")

	if err := run(cfg, logger); err != nil {
		logger.Error("tableflow-api failed", "error", err)
		os.Exit(1)
	}
	logger.Info("stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Подключаемся к базе данных
	pool, err := repo.NewPool(ctx, cfg.DBURL)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()
	if err := repo.EnsureSchema(ctx, pool); err != nil {
		return err
	}
	logger.Info("connected to database")

	docs := repo.NewDocumentRepo(pool)
	holder := registry.NewHolder(nil)
	reloader := scheduler.NewReloader(docs, holder, logger)
	if err := reloader.Reload(ctx); err != nil {
		return fmt.Errorf("initial registry load: %w", err)
	}

	sched := scheduler.New(scheduler.Config{Logger: logger})
	if err := sched.Add("registry-reload", cfg.ReloadSchedule, reloader.Reload); err != nil {
		return err
	}

	// Сессии: локально или на worker
	var sessions api.Sessions
	if cfg.RemoteEval {
		conn, err := mq.NewConnection(cfg.RabbitMQURL, logger)
		if err != nil {
			return fmt.Errorf("connect to RabbitMQ: %w", err)
		}
		defer conn.Close()
		if err := mq.SetupTopology(ctx, conn); err != nil {
			return err
		}

		rpc := mq.NewRPCClient(conn, logger, mq.RPCConfig{Timeout: cfg.RequestTimeout})
		if err := rpc.Start(ctx); err != nil {
			return fmt.Errorf("start rpc client: %w", err)
		}
		defer rpc.Close()
		sessions = rpc
		logger.Info("remote evaluation enabled", "queue", mq.QueueEvaluatorRequests)
	} else {
		manager := session.NewManager(session.ManagerConfig{
			Registry:     func() engine.Registry { return holder.Get() },
			MaxCallDepth: cfg.MaxCallDepth,
			Logger:       logger,
		})
		defer manager.CloseAll()
		if err := sched.Add("session-sweep", cfg.SweepSchedule, scheduler.SweepJob(manager, cfg.SessionIdle, logger)); err != nil {
			return err
		}
		sessions = api.LocalSessions(manager)
	}

	handler := api.NewHandler(api.Config{
		Store:    docs,
		Sessions: sessions,
		Reloader: reloader,
		Registry: holder,
		Logger:   logger,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime))
	})
	mux.Handle("/metrics", promhttp.Handler())
	handler.RegisterRoutes(mux, cfg.RequestTimeout)

	server := &http.Server{
		Addr:              cfg.APIAddr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sched.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		sched.Stop(shutdownCtx)
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
