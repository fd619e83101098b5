package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shaiso/tableflow/internal/session"
)

// JobFunc — тело периодической задачи.
type JobFunc func(ctx context.Context) error

// Scheduler запускает периодические задачи по cron-расписанию.
//
// Запуски одной задачи не перекрываются: если предыдущий ещё идёт,
// очередной пропускается.
type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	logger  *slog.Logger
	timeout time.Duration
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
}

// Config — конфигурация Scheduler.
type Config struct {
	Logger *slog.Logger

	// JobTimeout ограничивает один запуск задачи (default: 1m).
	JobTimeout time.Duration
}

// New создаёт Scheduler.
func New(cfg Config) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.JobTimeout
	if timeout <= 0 {
		timeout = time.Minute
	}

	cl := cronLogger{logger: logger}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger:  logger,
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Add регистрирует задачу. Вызывается до Start.
func (s *Scheduler) Add(name, expr string, fn JobFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrStarted
	}

	sched, err := ParseSchedule(expr)
	if err != nil {
		return fmt.Errorf("job %s: %w", name, err)
	}

	s.cron.Schedule(sched, cron.FuncJob(func() {
		s.runJob(name, fn)
	}))
	s.logger.Info("job scheduled", "job", name, "schedule", expr)
	return nil
}

func (s *Scheduler) runJob(name string, fn JobFunc) {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	start := time.Now()
	if err := fn(ctx); err != nil {
		s.logger.Error("job failed", "job", name, "error", err)
		return
	}
	s.logger.Debug("job completed", "job", name, "duration", time.Since(start))
}

// Start запускает планировщик в фоне.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.cron.Start()
}

// Stop останавливает планировщик и ждёт завершения идущих задач
// не дольше, чем живёт ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out")
	}
}

// SweepJob возвращает задачу, закрывающую сессии, простаивающие дольше idle.
func SweepJob(sessions *session.Manager, idle time.Duration, logger *slog.Logger) JobFunc {
	return func(ctx context.Context) error {
		n := sessions.Sweep(idle)
		logger.Debug("session sweep", "closed", n, "remaining", sessions.Len())
		return nil
	}
}

// cronLogger передаёт сообщения cron в slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
