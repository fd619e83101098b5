package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/tableflow/internal/session"
)

const defaultRPCTimeout = 30 * time.Second

// RPCConfig — конфигурация RPCClient.
type RPCConfig struct {
	// Timeout — ожидание ответа, если у ctx нет своего дедлайна (default: 30s).
	Timeout time.Duration
}

// RPCClient отправляет запросы вычислителю и ждёт ответы через
// direct reply-to. Ответ сопоставляется с запросом по correlation id.
type RPCClient struct {
	conn    *Connection
	logger  *slog.Logger
	timeout time.Duration

	mu      sync.Mutex
	ch      *amqp.Channel
	pending map[string]chan *ReplyPayload
	closed  bool

	wg sync.WaitGroup
}

// NewRPCClient создаёт RPCClient. Перед вызовами нужен Start.
func NewRPCClient(conn *Connection, logger *slog.Logger, cfg RPCConfig) *RPCClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRPCTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RPCClient{
		conn:    conn,
		logger:  logger,
		timeout: timeout,
		pending: make(map[string]chan *ReplyPayload),
	}
}

// Start открывает канал ответов и запускает его чтение.
// Чтение продолжается до отмены ctx или Close.
func (c *RPCClient) Start(ctx context.Context) error {
	reconnected := c.conn.NotifyReconnect()
	deliveries, err := c.subscribe()
	if err != nil {
		return err
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.loop(ctx, deliveries, reconnected)
	}()
	return nil
}

func (c *RPCClient) subscribe() (<-chan amqp.Delivery, error) {
	ch, deliveries, err := c.conn.ConsumeReplies()
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.ch = ch
	c.mu.Unlock()
	return deliveries, nil
}

func (c *RPCClient) loop(ctx context.Context, deliveries <-chan amqp.Delivery, reconnected <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			c.Close()
			return
		case d, ok := <-deliveries:
			if ok {
				c.deliver(d.CorrelationId, d.Body)
				continue
			}
		}

		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}

		c.logger.Warn("reply channel closed, waiting for reconnect")
		c.failPending()

		for {
			select {
			case <-ctx.Done():
				c.Close()
				return
			case <-reconnected:
			}
			next, err := c.subscribe()
			if err != nil {
				c.logger.Error("failed to resubscribe to replies", "error", err)
				continue
			}
			deliveries = next
			c.logger.Info("reply channel restored")
			break
		}
	}
}

// deliver передаёт ответ ожидающему вызову. Ответы без ожидающего
// (опоздавшие после таймаута) отбрасываются.
func (c *RPCClient) deliver(correlationID string, body []byte) {
	reply, err := decodeReply(body)
	if err != nil {
		c.logger.Warn("malformed reply", "correlation_id", correlationID, "error", err)
		return
	}

	c.mu.Lock()
	waiter, ok := c.pending[correlationID]
	delete(c.pending, correlationID)
	c.mu.Unlock()

	if !ok {
		c.logger.Debug("late reply dropped", "correlation_id", correlationID)
		return
	}
	waiter <- reply
}

func (c *RPCClient) failPending() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ch = nil
	for id, waiter := range c.pending {
		close(waiter)
		delete(c.pending, id)
	}
}

// Call отправляет запрос и ждёт ответ.
// Ошибка из ответа возвращается вместе с самим ответом.
func (c *RPCClient) Call(ctx context.Context, msgType MessageType, payload any) (*ReplyPayload, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	msg := NewMessage(msgType, payload)
	correlationID := uuid.New().String()
	publishing, err := buildPublishing(msg, PublishOptions{
		ReplyTo:       string(QueueDirectReply),
		CorrelationID: correlationID,
		Expiration:    c.timeout,
	})
	if err != nil {
		return nil, err
	}

	waiter := make(chan *ReplyPayload, 1)

	c.mu.Lock()
	if c.closed || c.ch == nil {
		c.mu.Unlock()
		return nil, ErrRPCClosed
	}
	ch := c.ch
	c.pending[correlationID] = waiter
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, correlationID)
		c.mu.Unlock()
	}()

	err = ch.PublishWithContext(ctx,
		string(ExchangeEvaluator),
		string(RoutingKeyRequest),
		false, // mandatory
		false, // immediate
		publishing,
	)
	if err != nil {
		return nil, fmt.Errorf("publish %s: %w", msgType, err)
	}

	c.logger.Debug("rpc request sent", "type", msgType, "correlation_id", correlationID)

	select {
	case reply, ok := <-waiter:
		if !ok {
			return nil, ErrRPCClosed
		}
		return reply, reply.Err()
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s", ErrRPCTimeout, msgType)
		}
		return nil, ctx.Err()
	}
}

// Init открывает сессию вычислителя на воркере.
func (c *RPCClient) Init(ctx context.Context, flowID string) (session.Info, error) {
	reply, err := c.Call(ctx, MessageTypeInit, InitPayload{FlowID: flowID})
	if err != nil {
		return session.Info{}, err
	}
	return session.Info{
		SessionID:  reply.SessionID,
		FlowID:     flowID,
		State:      reply.State,
		Validation: reply.Validation,
	}, nil
}

// Run выполняет run в сессии на воркере.
func (c *RPCClient) Run(ctx context.Context, id uuid.UUID, q session.Query) (*session.Result, error) {
	reply, err := c.Call(ctx, MessageTypeRun, RunPayload{SessionID: id, Query: q})
	if err != nil {
		return nil, err
	}
	if reply.Result == nil {
		return nil, fmt.Errorf("%w: empty run reply", ErrRPCClosed)
	}
	return reply.Result, nil
}

// CloseSession закрывает сессию на воркере.
func (c *RPCClient) CloseSession(ctx context.Context, id uuid.UUID) error {
	_, err := c.Call(ctx, MessageTypeClose, ClosePayload{SessionID: id})
	return err
}

// Close останавливает клиент. Ожидающие вызовы получают ErrRPCClosed.
func (c *RPCClient) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.failPending()
	if c.conn != nil {
		c.conn.CloseReplies()
	}
}

// Wait ждёт завершения чтения ответов.
func (c *RPCClient) Wait() {
	c.wg.Wait()
}
