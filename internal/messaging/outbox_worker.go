package messaging

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"houmetna-service/internal/repository"
)

const (
	workerInterval     = 1 * time.Second
	batchSize          = 50
	cleanupInterval    = 1 * time.Hour
	publishedRetention = 24 * time.Hour
	claimLease         = 1 * time.Minute
)

type Publisher interface {
	Publish(ctx context.Context, routingKey, messageID string, body []byte) error
}

// OutboxWorker publishes report mutations recorded in the outbox table.
type OutboxWorker struct {
	outboxRepo *repository.OutboxRepository
	publisher  Publisher
	done       chan struct{}
	wg         sync.WaitGroup
}

func NewOutboxWorker(outboxRepo *repository.OutboxRepository, publisher Publisher) *OutboxWorker {
	return &OutboxWorker{
		outboxRepo: outboxRepo,
		publisher:  publisher,
		done:       make(chan struct{}),
	}
}

func (w *OutboxWorker) Start() {
	w.wg.Add(2)
	go w.processLoop()
	go w.cleanupLoop()
	slog.Info("outbox: started")
}

func (w *OutboxWorker) processLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(workerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.ProcessPending(context.Background())
		}
	}
}

// ProcessPending claims one batch of pending messages, publishes them and
// returns how many were published. Concurrent workers never claim the same
// row. The outbox row ID is used as the broker message ID.
func (w *OutboxWorker) ProcessPending(ctx context.Context) int {
	messages, err := w.outboxRepo.ClaimPending(ctx, batchSize, claimLease)
	if err != nil {
		slog.ErrorContext(ctx, "outbox: claim pending", "error", err)
		if len(messages) == 0 {
			return 0
		}
	}

	published := 0
	for _, msg := range messages {
		if err := w.publisher.Publish(ctx, msg.RoutingKey, msg.ID.String(), msg.Payload); err != nil {
			slog.WarnContext(ctx, "outbox: publish", "message_id", msg.ID, "error", err)
			if err := w.outboxRepo.MarkAsFailed(ctx, msg.ID, err.Error()); err != nil {
				slog.ErrorContext(ctx, "outbox: mark failed", "message_id", msg.ID, "error", err)
			}
			continue
		}

		if err := w.outboxRepo.MarkAsPublished(ctx, msg.ID); err != nil {
			slog.ErrorContext(ctx, "outbox: mark published", "message_id", msg.ID, "error", err)
			continue
		}
		published++
	}

	return published
}

func (w *OutboxWorker) cleanupLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			deleted, err := w.outboxRepo.DeletePublished(context.Background(), publishedRetention)
			if err != nil {
				slog.Error("outbox: cleanup", "error", err)
			} else if deleted > 0 {
				slog.Info("outbox: cleaned old messages", "deleted", deleted)
			}
		}
	}
}

func (w *OutboxWorker) Stop() {
	close(w.done)
	w.wg.Wait()
	slog.Info("outbox: stopped")
}

func (w *OutboxWorker) GetStats(ctx context.Context) (map[string]int, error) {
	return w.outboxRepo.GetStats(ctx)
}
