package service

import (
	"context"
	"log/slog"

	"houmetna-service/internal/model"
	"houmetna-service/internal/push"

	"github.com/google/uuid"
)

type Recorder interface {
	Record(ctx context.Context, ev model.TransitionEvent) (RecordResult, error)
}

type TokenRegistry interface {
	ListTokens(ctx context.Context, userID uuid.UUID) ([]string, error)
	Remove(ctx context.Context, userID uuid.UUID, token string) error
}

type Fanout interface {
	Dispatch(ctx context.Context, tokens []string, msg push.Message) (push.FanoutResult, error)
}

// LiveNotifier forwards a fresh notification to connected clients. It must not block.
type LiveNotifier interface {
	SendToUser(notification *model.Notification)
}

// TransitionOutcome summarizes the handling of one meaningful transition.
type TransitionOutcome struct {
	NotificationID uuid.UUID
	// Redelivered is true when the notification already existed and no push was sent.
	Redelivered bool
	Fanout      push.FanoutResult
}

type DetectorOption func(*TransitionDetector)

// WithTokenPruning removes tokens the provider reports as invalid.
func WithTokenPruning(enabled bool) DetectorOption {
	return func(d *TransitionDetector) {
		d.pruneInvalid = enabled
	}
}

func WithLiveNotifier(notifier LiveNotifier) DetectorOption {
	return func(d *TransitionDetector) {
		d.live = notifier
	}
}

// TransitionDetector reacts to report mutations. A status change records one
// notification and pushes it to the owner's devices.
type TransitionDetector struct {
	recorder     Recorder
	registry     TokenRegistry
	fanout       Fanout
	live         LiveNotifier
	pruneInvalid bool
}

func NewTransitionDetector(recorder Recorder, registry TokenRegistry, fanout Fanout, opts ...DetectorOption) *TransitionDetector {
	d := &TransitionDetector{
		recorder: recorder,
		registry: registry,
		fanout:   fanout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// OnReportMutated handles one stored mutation. before is nil for a newly
// created report. It returns nil, nil when the status did not change.
//
// Only a failure to record the notification is returned. Token lookup and push
// failures are logged and reflected in the outcome.
func (d *TransitionDetector) OnReportMutated(ctx context.Context, before *model.Report, after model.Report) (*TransitionOutcome, error) {
	if before == nil || before.Status == after.Status {
		return nil, nil
	}

	ev := model.TransitionEvent{
		Before: before.Status,
		After:  after.Status,
		Report: after,
	}

	recorded, err := d.recorder.Record(ctx, ev)
	if err != nil {
		return nil, err
	}

	outcome := &TransitionOutcome{NotificationID: recorded.Notification.ID}
	logger := slog.With(
		"report_id", after.ID,
		"notification_id", recorded.Notification.ID,
		"before", string(ev.Before),
		"after", string(ev.After),
	)

	if !recorded.Created {
		outcome.Redelivered = true
		logger.InfoContext(ctx, "detector: transition already handled, skipping push")
		return outcome, nil
	}

	if d.live != nil {
		d.live.SendToUser(recorded.Notification)
	}

	tokens, err := d.registry.ListTokens(ctx, after.OwnerID)
	if err != nil {
		logger.ErrorContext(ctx, "detector: list tokens", "error", err)
		return outcome, nil
	}

	msg := push.Message{
		Title: recorded.Notification.Title,
		Body:  recorded.Notification.Body,
		Data: map[string]string{
			"notification_id": recorded.Notification.ID.String(),
			"report_id":       after.ID.String(),
			"status":          string(after.Status),
		},
	}

	result, err := d.fanout.Dispatch(ctx, tokens, msg)
	if err != nil {
		logger.ErrorContext(ctx, "detector: dispatch", "error", err)
		return outcome, nil
	}
	outcome.Fanout = result

	logger.InfoContext(ctx, "detector: transition handled",
		"tokens", len(tokens),
		"success", result.SuccessCount,
		"failed", len(result.Failures),
	)

	if d.pruneInvalid {
		d.pruneTokens(ctx, after.OwnerID, result.InvalidTokens())
	}

	return outcome, nil
}

// HandleReportMutation adapts a change-stream message to OnReportMutated.
func (d *TransitionDetector) HandleReportMutation(ctx context.Context, msg model.ReportMutatedMessage) error {
	_, err := d.OnReportMutated(ctx, msg.Before, msg.After)
	return err
}

func (d *TransitionDetector) pruneTokens(ctx context.Context, userID uuid.UUID, tokens []string) {
	for _, token := range tokens {
		if err := d.registry.Remove(ctx, userID, token); err != nil {
			slog.WarnContext(ctx, "detector: prune token",
				"user_id", userID,
				"token", push.TokenSuffix(token),
				"error", err,
			)
			continue
		}
		slog.InfoContext(ctx, "detector: pruned invalid token",
			"user_id", userID,
			"token", push.TokenSuffix(token),
		)
	}
}
