package messaging

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"houmetna-service/internal/apperror"
	"houmetna-service/internal/model"

	"github.com/avast/retry-go"
	"github.com/getsentry/sentry-go"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	defaultMaxAttempts  = 3
	defaultInitialDelay = 1 * time.Second
	defaultMaxDelay     = 30 * time.Second
	consumeRetryDelay   = 5 * time.Second
)

// MutationHandler reacts to one stored report mutation.
type MutationHandler interface {
	HandleReportMutation(ctx context.Context, msg model.ReportMutatedMessage) error
}

type ProcessedStore interface {
	IsMessageProcessed(ctx context.Context, messageID string) (bool, error)
	MarkMessageProcessed(ctx context.Context, messageID string) error
}

type RetryPolicy struct {
	MaxAttempts  uint
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts == 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = defaultInitialDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = defaultMaxDelay
	}
	return p
}

// ReportMutationConsumer feeds report.mutated deliveries to a MutationHandler.
// Deliveries are acked after handling, skipped when their message ID was
// already processed, and dead-lettered once retries are exhausted.
type ReportMutationConsumer struct {
	rmq       *RabbitMQ
	handler   MutationHandler
	processed ProcessedStore
	policy    RetryPolicy
	done      chan struct{}
	wg        sync.WaitGroup
}

func NewReportMutationConsumer(rmq *RabbitMQ, handler MutationHandler, processed ProcessedStore, policy RetryPolicy) *ReportMutationConsumer {
	return &ReportMutationConsumer{
		rmq:       rmq,
		handler:   handler,
		processed: processed,
		policy:    policy.withDefaults(),
		done:      make(chan struct{}),
	}
}

func (c *ReportMutationConsumer) Start() {
	c.wg.Add(1)
	go c.consume()
	slog.Info("consumer: started", "queue", QueueName)
}

func (c *ReportMutationConsumer) consume() {
	defer c.wg.Done()

	for {
		select {
		case <-c.done:
			return
		default:
		}

		msgs, err := c.rmq.Consume()
		if err != nil {
			slog.Warn("consumer: subscribe failed", "error", err, "retry_in", consumeRetryDelay)
			select {
			case <-c.done:
				return
			case <-time.After(consumeRetryDelay):
			}
			continue
		}

		c.processMessages(msgs)
	}
}

func (c *ReportMutationConsumer) processMessages(msgs <-chan amqp.Delivery) {
	for {
		select {
		case <-c.done:
			return
		case msg, ok := <-msgs:
			if !ok {
				slog.Warn("consumer: delivery channel closed, resubscribing")
				return
			}
			c.HandleDelivery(context.Background(), msg)
		}
	}
}

// HandleDelivery processes one delivery and settles it with exactly one ack or nack.
func (c *ReportMutationConsumer) HandleDelivery(ctx context.Context, msg amqp.Delivery) {
	logger := slog.With("routing_key", msg.RoutingKey, "message_id", msg.MessageId)

	if msg.RoutingKey != model.RoutingKeyReportMutated {
		logger.WarnContext(ctx, "consumer: unexpected routing key")
		c.settle(logger, msg.Nack(false, false))
		return
	}

	var mutation model.ReportMutatedMessage
	if err := json.Unmarshal(msg.Body, &mutation); err != nil {
		logger.ErrorContext(ctx, "consumer: bad payload", "error", err)
		c.settle(logger, msg.Nack(false, false))
		return
	}

	messageID := deliveryID(msg)
	processed, err := c.processed.IsMessageProcessed(ctx, messageID)
	if err != nil {
		logger.WarnContext(ctx, "consumer: idempotency check failed", "error", err)
	}
	if processed {
		logger.InfoContext(ctx, "consumer: already processed")
		c.settle(logger, msg.Ack(false))
		return
	}

	err = retry.Do(
		func() error {
			return c.handler.HandleReportMutation(ctx, mutation)
		},
		retry.Attempts(c.policy.MaxAttempts),
		retry.Delay(c.policy.InitialDelay),
		retry.MaxDelay(c.policy.MaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(isRetryable),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			logger.WarnContext(ctx, "consumer: retrying", "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		logger.ErrorContext(ctx, "consumer: failed, sending to dead-letter queue",
			"report_id", mutation.ReportID,
			"error", err,
		)
		sentry.CaptureException(err)
		c.settle(logger, msg.Nack(false, false))
		return
	}

	if err := c.processed.MarkMessageProcessed(ctx, messageID); err != nil {
		logger.WarnContext(ctx, "consumer: mark processed failed", "error", err)
	}

	c.settle(logger, msg.Ack(false))
}

func (c *ReportMutationConsumer) settle(logger *slog.Logger, err error) {
	if err != nil {
		logger.Error("consumer: settle delivery", "error", err)
	}
}

func (c *ReportMutationConsumer) Stop() {
	close(c.done)
	c.wg.Wait()
	slog.Info("consumer: stopped")
}

// isRetryable limits retries to storage problems; invalid input will not get better.
func isRetryable(err error) bool {
	switch apperror.KindOf(err) {
	case apperror.KindInvalidArgument, apperror.KindNotFound, apperror.KindPermissionDenied, apperror.KindUnauthenticated:
		return false
	}
	return true
}

// deliveryID falls back to a body hash for messages published without an ID.
func deliveryID(msg amqp.Delivery) string {
	if msg.MessageId != "" {
		return msg.MessageId
	}
	sum := sha256.Sum256(msg.Body)
	return hex.EncodeToString(sum[:])
}
