package mq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/tableflow/internal/telemetry"
)

const (
	redialInitialDelay = time.Second
	redialMaxDelay     = 30 * time.Second
)

// Connection — соединение с RabbitMQ для RPC вычислителя.
//
// Держит два канала: общий (топология, публикация ответов worker,
// consumer запросов) и канал ответов RPC-клиента API, подписанный на
// direct reply-to. После разрыва соединение восстанавливается, а
// подписчики NotifyReconnect получают сигнал, чтобы заново открыть
// свои подписки.
type Connection struct {
	url    string
	logger *slog.Logger

	mu        sync.RWMutex
	conn      *amqp.Connection
	shared    *amqp.Channel
	replies   *amqp.Channel
	listeners []chan struct{}
	closed    bool

	done chan struct{}
}

// NewConnection подключается к брокеру и начинает следить за соединением.
func NewConnection(url string, logger *slog.Logger) (*Connection, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Connection{
		url:    url,
		logger: logger,
		done:   make(chan struct{}),
	}
	if err := c.dial(); err != nil {
		return nil, err
	}
	go c.supervise()
	return c, nil
}

func (c *Connection) dial() error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.shared = ch
	c.replies = nil
	c.mu.Unlock()

	c.logger.Info("connected to RabbitMQ", "vhost", conn.Config.Vhost)
	return nil
}

// supervise ждёт разрыва и восстанавливает соединение до Close.
func (c *Connection) supervise() {
	for {
		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()

		lost := conn.NotifyClose(make(chan *amqp.Error, 1))
		select {
		case <-c.done:
			return
		case err := <-lost:
			if err != nil {
				c.logger.Warn("connection lost", "error", err)
			}
		}
		if !c.redial() {
			return
		}
	}
}

// redial переподключается с удвоением задержки. false — соединение закрыто.
func (c *Connection) redial() bool {
	delay := redialInitialDelay
	for {
		select {
		case <-c.done:
			return false
		case <-time.After(delay):
		}

		if err := c.dial(); err != nil {
			c.logger.Warn("reconnect failed", "error", err, "retry_in", delay)
			delay = min(delay*2, redialMaxDelay)
			continue
		}

		telemetry.BrokerReconnectsTotal.Inc()
		c.mu.RLock()
		for _, l := range c.listeners {
			select {
			case l <- struct{}{}:
			default:
			}
		}
		c.mu.RUnlock()
		return true
	}
}

// NotifyReconnect возвращает канал, в который приходит сигнал после
// каждого переподключения. Сигналы не накапливаются сверх одного.
func (c *Connection) NotifyReconnect() <-chan struct{} {
	ch := make(chan struct{}, 1)
	c.mu.Lock()
	c.listeners = append(c.listeners, ch)
	c.mu.Unlock()
	return ch
}

// WithChannel выполняет fn на общем канале.
func (c *Connection) WithChannel(ctx context.Context, fn func(ch *amqp.Channel) error) error {
	c.mu.RLock()
	ch := c.shared
	c.mu.RUnlock()

	if ch == nil || ch.IsClosed() {
		return ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ch)
}

// ConsumeReplies открывает канал ответов RPC и подписывается на
// amq.rabbitmq.reply-to. Запросы нужно публиковать в возвращённый
// канал. Предыдущий канал ответов закрывается; последний закрывает
// CloseReplies или Close.
func (c *Connection) ConsumeReplies() (*amqp.Channel, <-chan amqp.Delivery, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.conn == nil || c.conn.IsClosed() {
		return nil, nil, ErrNotConnected
	}
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, nil, fmt.Errorf("open reply channel: %w", err)
	}
	deliveries, err := ch.Consume(
		string(QueueDirectReply), // queue
		"",                       // consumer tag
		true,                     // auto-ack, обязателен для direct reply-to
		false,                    // exclusive
		false,                    // no-local
		false,                    // no-wait
		nil,                      // args
	)
	if err != nil {
		ch.Close()
		return nil, nil, fmt.Errorf("consume replies: %w", err)
	}

	if c.replies != nil && !c.replies.IsClosed() {
		c.replies.Close()
	}
	c.replies = ch
	return ch, deliveries, nil
}

// CloseReplies закрывает канал ответов RPC, если он ещё открыт.
func (c *Connection) CloseReplies() {
	c.mu.Lock()
	ch := c.replies
	c.replies = nil
	c.mu.Unlock()

	if ch != nil && !ch.IsClosed() {
		ch.Close()
	}
}

// IsConnected сообщает, открыто ли соединение.
func (c *Connection) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && !c.conn.IsClosed()
}

// Close закрывает каналы и соединение. Повторный вызов ничего не делает.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.done)

	var merr *multierror.Error
	for name, ch := range map[string]*amqp.Channel{"reply": c.replies, "shared": c.shared} {
		if ch != nil && !ch.IsClosed() {
			if err := ch.Close(); err != nil {
				merr = multierror.Append(merr, fmt.Errorf("close %s channel: %w", name, err))
			}
		}
	}
	if c.conn != nil && !c.conn.IsClosed() {
		if err := c.conn.Close(); err != nil {
			merr = multierror.Append(merr, fmt.Errorf("close connection: %w", err))
		}
	}
	if err := merr.ErrorOrNil(); err != nil {
		return err
	}

	c.logger.Info("connection closed")
	return nil
}
