package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/tableflow/internal/telemetry"
)

// Request — запрос к вычислителю из очереди evaluator.requests.
//
// Заполнен ровно один из Init, Run, Close в зависимости от Type.
// Если payload не разобран или тип неизвестен, Invalid содержит
// причину: на такой запрос отвечают кодом bad_request.
type Request struct {
	ID   string
	Type MessageType

	Init  *InitPayload
	Run   *RunPayload
	Close *ClosePayload

	Invalid error

	// ReplyTo и CorrelationID — адрес ответа по direct reply-to.
	ReplyTo       string
	CorrelationID string
}

// envelope — входящий конверт с неразобранным payload.
type envelope struct {
	ID      string          `json:"id"`
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// DecodeRequest разбирает тело AMQP-сообщения в Request. Ошибка
// возвращается, только если не разбирается сам конверт.
func DecodeRequest(body []byte) (*Request, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	req := &Request{ID: env.ID, Type: env.Type}
	var target any
	switch env.Type {
	case MessageTypeInit:
		req.Init = &InitPayload{}
		target = req.Init
	case MessageTypeRun:
		req.Run = &RunPayload{}
		target = req.Run
	case MessageTypeClose:
		req.Close = &ClosePayload{}
		target = req.Close
	default:
		req.Invalid = fmt.Errorf("%w: %q", ErrUnknownMessageType, env.Type)
		return req, nil
	}

	if err := json.Unmarshal(env.Payload, target); err != nil {
		req.Init, req.Run, req.Close = nil, nil, nil
		req.Invalid = fmt.Errorf("%s payload: %w", env.Type, err)
	}
	return req, nil
}

// decodeReply разбирает ответ worker для RPC-клиента.
func decodeReply(body []byte) (*ReplyPayload, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type != MessageTypeReply {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, env.Type)
	}
	var reply ReplyPayload
	if err := json.Unmarshal(env.Payload, &reply); err != nil {
		return nil, fmt.Errorf("reply payload: %w", err)
	}
	return &reply, nil
}

// Handler обрабатывает запрос. Ошибка означает, что на запрос не
// удалось ответить: сообщение уходит в DLQ без повтора, так как
// повтор run может изменить сессию.
type Handler func(ctx context.Context, req *Request) error

// Consumer читает запросы вычислителя из очереди.
type Consumer struct {
	conn     *Connection
	logger   *slog.Logger
	queue    string
	handler  Handler
	prefetch int
}

// ConsumerConfig — конфигурация Consumer.
type ConsumerConfig struct {
	Queue   string
	Handler Handler

	// Prefetch — число неподтверждённых запросов на worker (default: 1).
	Prefetch int
}

// NewConsumer создаёт Consumer.
func NewConsumer(conn *Connection, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}
	return &Consumer{
		conn:     conn,
		logger:   logger.With("queue", cfg.Queue),
		queue:    cfg.Queue,
		handler:  cfg.Handler,
		prefetch: prefetch,
	}
}

// Start читает очередь до отмены ctx, переподписываясь после
// восстановления соединения.
func (c *Consumer) Start(ctx context.Context) error {
	reconnected := c.conn.NotifyReconnect()
	for {
		deliveries, err := c.subscribe(ctx)
		if err == nil {
			c.logger.Info("consumer started")
			err = c.drain(ctx, deliveries)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("consumer interrupted, waiting for reconnect", "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-reconnected:
		}
	}
}

func (c *Consumer) subscribe(ctx context.Context) (<-chan amqp.Delivery, error) {
	var deliveries <-chan amqp.Delivery
	err := c.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := ch.Qos(c.prefetch, 0, false); err != nil {
			return fmt.Errorf("set qos: %w", err)
		}
		var err error
		deliveries, err = ch.Consume(
			c.queue, // queue
			"",      // consumer tag
			false,   // auto-ack
			false,   // exclusive
			false,   // no-local
			false,   // no-wait
			nil,     // args
		)
		if err != nil {
			return fmt.Errorf("consume: %w", err)
		}
		return nil
	})
	return deliveries, err
}

var errDeliveriesClosed = errors.New("deliveries channel closed")

func (c *Consumer) drain(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-deliveries:
			if !ok {
				return errDeliveriesClosed
			}
			c.handle(ctx, raw)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, raw amqp.Delivery) {
	req, err := DecodeRequest(raw.Body)
	if err != nil {
		c.logger.Error("malformed request dropped", "error", err, "body", string(raw.Body))
		telemetry.EvaluatorRequestsTotal.WithLabelValues("unknown", "failed").Inc()
		raw.Nack(false, false)
		return
	}
	req.ReplyTo = raw.ReplyTo
	req.CorrelationID = raw.CorrelationId

	result := "ok"
	if req.Invalid != nil {
		result = "bad_request"
	}

	c.logger.Debug("request received", "message_id", req.ID, "type", req.Type)

	if err := c.handler(ctx, req); err != nil {
		c.logger.Error("request failed", "message_id", req.ID, "type", req.Type, "error", err)
		telemetry.EvaluatorRequestsTotal.WithLabelValues(string(req.Type), "failed").Inc()
		raw.Nack(false, false)
		return
	}
	telemetry.EvaluatorRequestsTotal.WithLabelValues(string(req.Type), result).Inc()
	raw.Ack(false)
}
