// Package mq provides a RabbitMQ publisher with automatic reconnection,
// used to broadcast fleet insight summaries to downstream collaborators.
package mq

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	amqp "github.com/rabbitmq/amqp091-go"

	"fieldops.dev/tabletwatch/pkg/metrics"
)

// Publisher maintains a RabbitMQ connection in the background and
// publishes JSON payloads onto a single queue with publisher confirms.
type Publisher struct {
	m               *sync.Mutex
	log             *slog.Logger
	connection      *amqp.Connection
	channel         *amqp.Channel
	done            chan bool
	notifyConnClose chan *amqp.Error
	notifyChanClose chan *amqp.Error
	notifyConfirm   chan amqp.Confirmation
	queueName       string
	isReady         bool
	metrics         *metrics.PublisherMetrics // Optional metrics
}

const (
	// When reconnecting to the server after connection failure.
	reconnectDelay = 5 * time.Second

	// When setting up the channel after a channel exception.
	reInitDelay = 2 * time.Second

	// Initial backoff delay for Push retries.
	initialBackoff = 100 * time.Millisecond

	// Maximum backoff delay for Push retries.
	maxBackoff = 10 * time.Second

	// Backoff multiplier for exponential backoff.
	backoffMultiplier = 2

	// Maximum number of retry attempts before giving up.
	maxRetryAttempts = 5
)

var (
	errNotConnected       = errors.New("not connected to a server")
	errAlreadyClosed      = errors.New("already closed: not connected to the server")
	errShutdown           = errors.New("publisher is shutting down")
	errMaxRetriesExceeded = errors.New("maximum retry attempts exceeded")
)

// New creates a publisher and starts connecting to the broker in the
// background. Pushes issued before the connection is up wait with backoff.
func New(queueName, addr string, l *slog.Logger) *Publisher {
	p := Publisher{
		m:         &sync.Mutex{},
		log:       l,
		queueName: queueName,
		done:      make(chan bool),
	}
	go p.handleReconnect(addr)
	return &p
}

// SetMetrics sets the metrics collector for this publisher.
// Call before the publisher starts handling traffic.
func (p *Publisher) SetMetrics(m *metrics.PublisherMetrics) {
	p.metrics = m
}

// handleReconnect will wait for a connection error on
// notifyConnClose, and then continuously attempt to reconnect.
func (p *Publisher) handleReconnect(addr string) {
	for {
		p.m.Lock()
		p.isReady = false
		p.m.Unlock()

		p.log.Info("attempting to connect to broker")

		if p.metrics != nil {
			p.metrics.ReconnectAttempts.Inc()
		}

		conn, err := p.connect(addr)
		if err != nil {
			p.log.Error("failed to connect to broker, retrying", "error", err)

			select {
			case <-p.done:
				return
			case <-time.After(reconnectDelay):
			}
			continue
		}

		if done := p.handleReInit(conn); done {
			break
		}
	}
}

func (p *Publisher) connect(addr string) (*amqp.Connection, error) {
	conn, err := amqp.Dial(addr)
	if err != nil {
		if p.metrics != nil {
			p.metrics.ConnectionStatus.Set(0)
		}
		return nil, err
	}

	p.changeConnection(conn)
	p.log.Info("connected to broker")

	if p.metrics != nil {
		p.metrics.ConnectionStatus.Set(1)
	}

	return conn, nil
}

// handleReInit will wait for a channel error
// and then continuously attempt to re-initialize both channels.
func (p *Publisher) handleReInit(conn *amqp.Connection) bool {
	for {
		p.m.Lock()
		p.isReady = false
		p.m.Unlock()

		err := p.init(conn)
		if err != nil {
			p.log.Error("failed to initialize channel, retrying", "error", err)

			select {
			case <-p.done:
				return true
			case <-p.notifyConnClose:
				p.log.Info("connection closed, reconnecting")
				return false
			case <-time.After(reInitDelay):
			}
			continue
		}

		select {
		case <-p.done:
			return true
		case <-p.notifyConnClose:
			p.log.Info("connection closed, reconnecting")
			return false
		case <-p.notifyChanClose:
			p.log.Info("channel closed, re-running init")
		}
	}
}

// init will initialize channel & declare queue.
func (p *Publisher) init(conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return err
	}

	err = ch.Confirm(false)
	if err != nil {
		return err
	}
	_, err = ch.QueueDeclare(
		p.queueName,
		false, // Durable
		false, // Delete when unused
		false, // Exclusive
		false, // No-wait
		nil,   // Arguments
	)
	if err != nil {
		return err
	}

	p.changeChannel(ch)
	p.m.Lock()
	p.isReady = true
	p.m.Unlock()
	p.log.Info("publisher init done", "queue", p.queueName)

	return nil
}

func (p *Publisher) changeConnection(connection *amqp.Connection) {
	p.connection = connection
	p.notifyConnClose = make(chan *amqp.Error, 1)
	p.connection.NotifyClose(p.notifyConnClose)
}

func (p *Publisher) changeChannel(channel *amqp.Channel) {
	p.channel = channel
	p.notifyChanClose = make(chan *amqp.Error, 1)
	p.notifyConfirm = make(chan amqp.Confirmation, 1)
	p.channel.NotifyClose(p.notifyChanClose)
	p.channel.NotifyPublish(p.notifyConfirm)
}

// Push publishes data onto the queue and waits for a broker confirmation.
// When the publisher is not connected it retries with capped exponential
// backoff, giving the background reconnect loop time to succeed. After
// maxRetryAttempts failed attempts it returns errMaxRetriesExceeded.
// The context bounds the whole operation.
func (p *Publisher) Push(ctx context.Context, data []byte) error {
	var timer *prometheus.Timer
	if p.metrics != nil {
		timer = prometheus.NewTimer(p.metrics.PushDuration.WithLabelValues(p.queueName))
		defer timer.ObserveDuration()
	}

	backoff := initialBackoff
	retryCount := 0

	for {
		if retryCount >= maxRetryAttempts {
			p.log.Error("maximum retry attempts exceeded",
				"retry_count", retryCount,
				"max_attempts", maxRetryAttempts)

			if p.metrics != nil {
				p.metrics.PushFailures.WithLabelValues(p.queueName, "max_retries_exceeded").Inc()
			}

			return errMaxRetriesExceeded
		}

		p.m.Lock()
		isReady := p.isReady
		p.m.Unlock()

		if !isReady {
			p.log.Info("not connected, waiting for reconnection",
				"backoff", backoff,
				"retry_count", retryCount)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-p.done:
				return errShutdown
			case <-time.After(backoff):
				backoff *= backoffMultiplier
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
				retryCount++
				continue
			}
		}

		err := p.UnsafePush(ctx, data)
		if err != nil {
			p.log.Error("push failed, retrying with backoff",
				"error", err,
				"backoff", backoff,
				"retry_count", retryCount)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-p.done:
				return errShutdown
			case <-time.After(backoff):
				backoff *= backoffMultiplier
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
				retryCount++
				continue
			}
		}

		select {
		case <-ctx.Done():
			if p.metrics != nil {
				p.metrics.PushFailures.WithLabelValues(p.queueName, "context_canceled").Inc()
			}
			return ctx.Err()
		case confirm := <-p.notifyConfirm:
			if confirm.Ack {
				if p.metrics != nil {
					p.metrics.MessagesPushed.WithLabelValues(p.queueName).Inc()
				}

				if retryCount > 0 {
					p.log.Info("push confirmed after retries",
						"delivery_tag", confirm.DeliveryTag,
						"retry_count", retryCount)
				} else {
					p.log.Debug("push confirmed", "delivery_tag", confirm.DeliveryTag)
				}
				return nil
			}
			p.log.Warn("push not acknowledged, retrying",
				"delivery_tag", confirm.DeliveryTag,
				"backoff", backoff)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-p.done:
				return errShutdown
			case <-time.After(backoff):
				backoff *= backoffMultiplier
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
				retryCount++
				continue
			}
		}
	}
}

// UnsafePush publishes without waiting for a confirmation. It returns an
// error if the publisher is not connected; delivery is not guaranteed.
func (p *Publisher) UnsafePush(ctx context.Context, data []byte) error {
	p.m.Lock()
	if !p.isReady {
		p.m.Unlock()
		return errNotConnected
	}
	p.m.Unlock()

	return p.channel.PublishWithContext(
		ctx,
		"",          // Exchange
		p.queueName, // Routing key
		false,       // Mandatory
		false,       // Immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        data,
		},
	)
}

// Close will cleanly shut down the channel and connection.
func (p *Publisher) Close() error {
	p.m.Lock()
	// isReady is read and written in two locations, so hold the lock
	// until we are finished.
	defer p.m.Unlock()

	if !p.isReady {
		return errAlreadyClosed
	}
	close(p.done)
	err := p.channel.Close()
	if err != nil {
		return err
	}
	err = p.connection.Close()
	if err != nil {
		return err
	}

	p.isReady = false

	if p.metrics != nil {
		p.metrics.ConnectionStatus.Set(0)
	}

	return nil
}
