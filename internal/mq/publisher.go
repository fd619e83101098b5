package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeInit  MessageType = "evaluator.init"
	MessageTypeRun   MessageType = "evaluator.run"
	MessageTypeClose MessageType = "evaluator.close"
	MessageTypeReply MessageType = "evaluator.reply"
)

// Message — конверт сообщения.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	Type MessageType `json:"type"`

	// Payload — полезная нагрузка; входящие запросы разбирает DecodeRequest.
	Payload any `json:"payload"`

	Timestamp time.Time `json:"timestamp"`
}

// NewMessage создаёт сообщение с новым ID.
func NewMessage(msgType MessageType, payload any) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// PublishOptions — свойства AMQP сообщения для request/reply.
type PublishOptions struct {
	ReplyTo       string
	CorrelationID string

	// Expiration — TTL сообщения в очереди. Ноль — без ограничения.
	Expiration time.Duration
}

// Publisher публикует сообщения в RabbitMQ через основной канал соединения.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Publish публикует сообщение в exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message, opts PublishOptions) error {
	publishing, err := buildPublishing(msg, opts)
	if err != nil {
		return err
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),   // exchange
			string(routingKey), // routing key
			false,              // mandatory
			false,              // immediate
			publishing,
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)
		return nil
	})
}

// Reply отправляет ответ на RPC-запрос в очередь replyTo.
func (p *Publisher) Reply(ctx context.Context, replyTo, correlationID string, reply *ReplyPayload) error {
	msg := NewMessage(MessageTypeReply, reply)
	return p.Publish(ctx, ExchangeDefault, RoutingKey(replyTo), msg, PublishOptions{
		CorrelationID: correlationID,
	})
}

// buildPublishing сериализует сообщение в AMQP publishing.
func buildPublishing(msg *Message, opts PublishOptions) (amqp.Publishing, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal message: %w", err)
	}

	pub := amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Transient,
		MessageId:     msg.ID,
		Type:          string(msg.Type),
		Timestamp:     msg.Timestamp,
		ReplyTo:       opts.ReplyTo,
		CorrelationId: opts.CorrelationID,
		Body:          body,
	}
	if opts.Expiration > 0 {
		pub.Expiration = fmt.Sprintf("%d", opts.Expiration.Milliseconds())
	}
	return pub, nil
}
