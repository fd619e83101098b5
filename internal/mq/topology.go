package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges.
const (
	ExchangeEvaluator Exchange = "tableflow.evaluator"
	ExchangeDLQ       Exchange = "tableflow.dlq"

	// ExchangeDefault — безымянный обменник, маршрутизирует по имени очереди.
	// Через него уходят ответы в amq.rabbitmq.reply-to.
	ExchangeDefault Exchange = ""
)

// Queues.
const (
	QueueEvaluatorRequests Queue = "evaluator.requests"
	QueueDLQEvaluator      Queue = "dlq.evaluator"

	// QueueDirectReply — псевдоочередь direct reply-to RabbitMQ.
	QueueDirectReply Queue = "amq.rabbitmq.reply-to"
)

// Routing keys.
const (
	RoutingKeyRequest      RoutingKey = "request"
	RoutingKeyDLQEvaluator RoutingKey = "evaluator"
)

// SetupTopology объявляет обменники и очереди вычислителя.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := declareExchanges(ch); err != nil {
			return err
		}
		if err := declareQueues(ch); err != nil {
			return err
		}
		return bindQueues(ch)
	})
}

func declareExchanges(ch *amqp.Channel) error {
	for _, name := range []Exchange{ExchangeEvaluator, ExchangeDLQ} {
		err := ch.ExchangeDeclare(
			string(name), // name
			"direct",     // type
			true,         // durable
			false,        // auto-deleted
			false,        // internal
			false,        // no-wait
			nil,          // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", name, err)
		}
	}
	return nil
}

func declareQueues(ch *amqp.Channel) error {
	queues := []struct {
		name Queue
		args amqp.Table
	}{
		// Запросы, которые воркер не смог разобрать, уходят в DLQ.
		{QueueEvaluatorRequests, amqp.Table{
			"x-dead-letter-exchange":    string(ExchangeDLQ),
			"x-dead-letter-routing-key": string(RoutingKeyDLQEvaluator),
		}},
		{QueueDLQEvaluator, nil},
	}

	for _, q := range queues {
		_, err := ch.QueueDeclare(
			string(q.name), // name
			true,           // durable
			false,          // delete when unused
			false,          // exclusive
			false,          // no-wait
			q.args,         // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}
	return nil
}

func bindQueues(ch *amqp.Channel) error {
	bindings := []struct {
		queue      Queue
		routingKey RoutingKey
		exchange   Exchange
	}{
		{QueueEvaluatorRequests, RoutingKeyRequest, ExchangeEvaluator},
		{QueueDLQEvaluator, RoutingKeyDLQEvaluator, ExchangeDLQ},
	}

	for _, b := range bindings {
		err := ch.QueueBind(
			string(b.queue),      // queue name
			string(b.routingKey), // routing key
			string(b.exchange),   // exchange
			false,                // no-wait
			nil,                  // arguments
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}
	return nil
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Tableflow RabbitMQ Topology:

    tableflow.evaluator (direct)
    └── evaluator.requests [routing: request]
            Consumer: Worker
            Replies: amq.rabbitmq.reply-to
            DLQ: dlq.evaluator

    tableflow.dlq (direct)
    └── dlq.evaluator [routing: evaluator]
            Manual processing
  `
}
