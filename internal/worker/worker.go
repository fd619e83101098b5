package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/shaiso/tableflow/internal/mq"
	"github.com/shaiso/tableflow/internal/session"
)

const defaultPrefetch = 8

// Replier отправляет ответ на RPC-запрос.
type Replier interface {
	Reply(ctx context.Context, replyTo, correlationID string, reply *mq.ReplyPayload) error
}

// Worker держит сессии вычислителя и обслуживает запросы
// evaluator.init, evaluator.run и evaluator.close из очереди
// evaluator.requests.
//
// Сессии живут в памяти процесса: все запросы одной сессии должны
// приходить на тот же воркер, поэтому воркер запускается одним экземпляром
// на очередь.
type Worker struct {
	sessions  *session.Manager
	publisher Replier
	conn      *mq.Connection
	prefetch  int

	consumer *mq.Consumer

	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Worker.
type Config struct {
	Sessions  *session.Manager
	Publisher Replier
	Conn      *mq.Connection

	// Prefetch — число неподтверждённых запросов в обработке (default: 8).
	Prefetch int

	Logger *slog.Logger
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = defaultPrefetch
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{
		sessions:  cfg.Sessions,
		publisher: cfg.Publisher,
		conn:      cfg.Conn,
		prefetch:  prefetch,
		logger:    logger,
	}
}

// Start запускает consumer очереди evaluator.requests.
func (w *Worker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel

	w.logger.Info("starting worker", "prefetch", w.prefetch)

	w.consumer = mq.NewConsumer(w.conn, w.logger, mq.ConsumerConfig{
		Queue:    string(mq.QueueEvaluatorRequests),
		Handler:  w.handleRequest,
		Prefetch: w.prefetch,
	})

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := w.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Error("request consumer error", "error", err)
		}
	}()

	w.logger.Info("worker started")
	return nil
}

// Stop останавливает consumer и закрывает все сессии.
func (w *Worker) Stop() {
	w.stoppedMu.Lock()
	w.stopped = true
	w.stoppedMu.Unlock()

	w.logger.Info("stopping worker...")

	if w.cancelFunc != nil {
		w.cancelFunc()
	}
	if w.consumer != nil {
		w.consumer.Stop()
	}
	w.wg.Wait()

	if w.sessions != nil {
		w.sessions.CloseAll()
	}
	w.logger.Info("worker stopped")
}

// IsStopped проверяет, остановлен ли Worker.
func (w *Worker) IsStopped() bool {
	w.stoppedMu.RLock()
	defer w.stoppedMu.RUnlock()
	return w.stopped
}
