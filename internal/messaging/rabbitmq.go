package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"houmetna-service/internal/model"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	ExchangeName           = "houmetna.reports"
	QueueName              = "report.mutations"
	DeadLetterExchangeName = "houmetna.reports.dlx"
	DeadLetterQueueName    = "report.mutations.dlq"

	reconnectDelay = 5 * time.Second
	publishTimeout = 5 * time.Second
	prefetchCount  = 10
)

type RabbitMQ struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	url     string
	mu      sync.RWMutex
	done    chan struct{}
}

func NewRabbitMQ(url string) (*RabbitMQ, error) {
	rmq := &RabbitMQ{
		url:  url,
		done: make(chan struct{}),
	}

	if err := rmq.connect(); err != nil {
		return nil, err
	}

	go rmq.handleReconnect()

	return rmq, nil
}

// URL builds an AMQP URL from its parts.
func URL(host, port, user, password, vhost string) string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/%s", user, password, host, port, vhost)
}

func (r *RabbitMQ) connect() error {
	var err error

	r.conn, err = amqp.Dial(r.url)
	if err != nil {
		return fmt.Errorf("connect to rabbitmq: %w", err)
	}

	r.channel, err = r.conn.Channel()
	if err != nil {
		r.conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	if err := declareTopology(r.channel); err != nil {
		r.channel.Close()
		r.conn.Close()
		return err
	}

	slog.Info("rabbitmq: connected", "exchange", ExchangeName, "queue", QueueName)
	return nil
}

// declareTopology sets up the report exchange and its queue. Messages rejected
// without requeue are routed to the dead-letter queue.
func declareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(DeadLetterExchangeName, "fanout", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dead-letter exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(DeadLetterQueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dead-letter queue: %w", err)
	}
	if err := ch.QueueBind(DeadLetterQueueName, "", DeadLetterExchangeName, false, nil); err != nil {
		return fmt.Errorf("bind dead-letter queue: %w", err)
	}

	if err := ch.ExchangeDeclare(ExchangeName, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	args := amqp.Table{"x-dead-letter-exchange": DeadLetterExchangeName}
	if _, err := ch.QueueDeclare(QueueName, true, false, false, false, args); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(QueueName, model.RoutingKeyReportMutated, ExchangeName, false, nil); err != nil {
		return fmt.Errorf("bind queue with key %s: %w", model.RoutingKeyReportMutated, err)
	}

	if err := ch.Qos(prefetchCount, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	return nil
}

func (r *RabbitMQ) handleReconnect() {
	for {
		r.mu.RLock()
		closed := r.conn.NotifyClose(make(chan *amqp.Error, 1))
		r.mu.RUnlock()

		select {
		case <-r.done:
			return
		case err := <-closed:
			if err != nil {
				slog.Warn("rabbitmq: connection lost, reconnecting", "error", err)
			}

			r.mu.Lock()
			for {
				select {
				case <-r.done:
					r.mu.Unlock()
					return
				default:
				}
				if err := r.connect(); err != nil {
					slog.Warn("rabbitmq: reconnect failed", "error", err, "retry_in", reconnectDelay)
					time.Sleep(reconnectDelay)
					continue
				}
				break
			}
			r.mu.Unlock()
		}
	}
}

// Publish sends a persistent JSON message. messageID lets consumers drop
// duplicates of the same outbox row.
func (r *RabbitMQ) Publish(ctx context.Context, routingKey, messageID string, body []byte) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.channel == nil {
		return fmt.Errorf("channel not available")
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err := r.channel.PublishWithContext(
		ctx,
		ExchangeName,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    messageID,
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	return nil
}

func (r *RabbitMQ) Consume() (<-chan amqp.Delivery, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.channel == nil {
		return nil, fmt.Errorf("channel not available")
	}

	msgs, err := r.channel.Consume(
		QueueName,
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("register consumer: %w", err)
	}

	return msgs, nil
}

func (r *RabbitMQ) Close() {
	close(r.done)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		r.conn.Close()
	}

	slog.Info("rabbitmq: connection closed")
}
