package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"houmetna-service/internal/apperror"
	"houmetna-service/internal/model"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

type fakeAcknowledger struct {
	acks    int
	nacks   int
	requeue bool
}

func (a *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	a.acks++
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	a.nacks++
	a.requeue = requeue
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

type fakeHandler struct {
	mu    sync.Mutex
	calls int
	errs  []error
}

func (h *fakeHandler) HandleReportMutation(ctx context.Context, msg model.ReportMutatedMessage) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	if len(h.errs) == 0 {
		return nil
	}
	err := h.errs[0]
	h.errs = h.errs[1:]
	return err
}

type memoryProcessedStore struct {
	mu  sync.Mutex
	ids map[string]bool
}

func newMemoryProcessedStore() *memoryProcessedStore {
	return &memoryProcessedStore{ids: make(map[string]bool)}
}

func (s *memoryProcessedStore) IsMessageProcessed(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ids[id], nil
}

func (s *memoryProcessedStore) MarkMessageProcessed(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids[id] = true
	return nil
}

var fastPolicy = RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

func newTestConsumer(handler MutationHandler, store ProcessedStore) *ReportMutationConsumer {
	return NewReportMutationConsumer(nil, handler, store, fastPolicy)
}

func mutationDelivery(t *testing.T, ack amqp.Acknowledger, messageID string) amqp.Delivery {
	t.Helper()

	before := model.Report{ID: uuid.New(), OwnerID: uuid.New(), Status: model.StatusNew, Version: 1}
	after := before
	after.Status = model.StatusInProgress
	after.Version = 2

	body, err := json.Marshal(model.ReportMutatedMessage{
		ReportID:  before.ID,
		Before:    &before,
		After:     after,
		Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	return amqp.Delivery{
		Acknowledger: ack,
		DeliveryTag:  1,
		MessageId:    messageID,
		RoutingKey:   model.RoutingKeyReportMutated,
		Body:         body,
	}
}

func TestHandleDeliveryAcksOnSuccess(t *testing.T) {
	handler := &fakeHandler{}
	store := newMemoryProcessedStore()
	c := newTestConsumer(handler, store)
	ack := &fakeAcknowledger{}

	c.HandleDelivery(t.Context(), mutationDelivery(t, ack, "m1"))

	if ack.acks != 1 || ack.nacks != 0 {
		t.Fatalf("acks=%d nacks=%d, want 1/0", ack.acks, ack.nacks)
	}
	if handler.calls != 1 {
		t.Fatalf("handler calls = %d, want 1", handler.calls)
	}
	if !store.ids["m1"] {
		t.Fatal("message not marked processed")
	}
}

func TestHandleDeliverySkipsProcessedMessage(t *testing.T) {
	handler := &fakeHandler{}
	store := newMemoryProcessedStore()
	c := newTestConsumer(handler, store)

	first := &fakeAcknowledger{}
	c.HandleDelivery(t.Context(), mutationDelivery(t, first, "m1"))
	second := &fakeAcknowledger{}
	c.HandleDelivery(t.Context(), mutationDelivery(t, second, "m1"))

	if handler.calls != 1 {
		t.Fatalf("handler calls = %d, want 1", handler.calls)
	}
	if second.acks != 1 {
		t.Fatalf("redelivery not acked: %+v", second)
	}
}

func TestHandleDeliveryRetriesStoreFailures(t *testing.T) {
	storeErr := apperror.StoreFailure("recorder.record", errors.New("db down"))
	handler := &fakeHandler{errs: []error{storeErr, storeErr}}
	c := newTestConsumer(handler, newMemoryProcessedStore())
	ack := &fakeAcknowledger{}

	c.HandleDelivery(t.Context(), mutationDelivery(t, ack, "m1"))

	if handler.calls != 3 {
		t.Fatalf("handler calls = %d, want 3", handler.calls)
	}
	if ack.acks != 1 {
		t.Fatalf("expected ack after successful retry, got %+v", ack)
	}
}

func TestHandleDeliveryDeadLettersAfterRetries(t *testing.T) {
	storeErr := apperror.StoreFailure("recorder.record", errors.New("db down"))
	handler := &fakeHandler{errs: []error{storeErr, storeErr, storeErr, storeErr}}
	store := newMemoryProcessedStore()
	c := newTestConsumer(handler, store)
	ack := &fakeAcknowledger{}

	c.HandleDelivery(t.Context(), mutationDelivery(t, ack, "m1"))

	if handler.calls != int(fastPolicy.MaxAttempts) {
		t.Fatalf("handler calls = %d, want %d", handler.calls, fastPolicy.MaxAttempts)
	}
	if ack.nacks != 1 || ack.requeue {
		t.Fatalf("expected nack without requeue, got %+v", ack)
	}
	if store.ids["m1"] {
		t.Fatal("failed message marked processed")
	}
}

func TestHandleDeliveryDoesNotRetryInvalidInput(t *testing.T) {
	handler := &fakeHandler{errs: []error{apperror.InvalidArgument("push.dispatch", "bad")}}
	c := newTestConsumer(handler, newMemoryProcessedStore())
	ack := &fakeAcknowledger{}

	c.HandleDelivery(t.Context(), mutationDelivery(t, ack, "m1"))

	if handler.calls != 1 {
		t.Fatalf("handler calls = %d, want 1", handler.calls)
	}
	if ack.nacks != 1 {
		t.Fatalf("expected nack, got %+v", ack)
	}
}

func TestHandleDeliveryRejectsBadMessages(t *testing.T) {
	tests := []struct {
		name     string
		delivery func(ack amqp.Acknowledger) amqp.Delivery
	}{
		{
			name: "bad json",
			delivery: func(ack amqp.Acknowledger) amqp.Delivery {
				return amqp.Delivery{Acknowledger: ack, RoutingKey: model.RoutingKeyReportMutated, Body: []byte("{")}
			},
		},
		{
			name: "unknown routing key",
			delivery: func(ack amqp.Acknowledger) amqp.Delivery {
				return amqp.Delivery{Acknowledger: ack, RoutingKey: "report.deleted", Body: []byte("{}")}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := &fakeHandler{}
			c := newTestConsumer(handler, newMemoryProcessedStore())
			ack := &fakeAcknowledger{}

			c.HandleDelivery(t.Context(), tt.delivery(ack))

			if handler.calls != 0 {
				t.Fatalf("handler called for bad message")
			}
			if ack.nacks != 1 || ack.requeue {
				t.Fatalf("expected nack without requeue, got %+v", ack)
			}
		})
	}
}

func TestDeliveryIDFallsBackToBodyHash(t *testing.T) {
	a := deliveryID(amqp.Delivery{Body: []byte("same")})
	b := deliveryID(amqp.Delivery{Body: []byte("same")})
	c := deliveryID(amqp.Delivery{Body: []byte("other")})
	if a != b || a == c {
		t.Fatalf("unexpected ids: %s %s %s", a, b, c)
	}
	if got := deliveryID(amqp.Delivery{MessageId: "m1", Body: []byte("same")}); got != "m1" {
		t.Fatalf("got %q, want m1", got)
	}
}
