package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"houmetna-service/internal/apperror"
	"houmetna-service/internal/model"
	"houmetna-service/internal/push"

	"github.com/google/uuid"
)

type detectorFixture struct {
	detector      *TransitionDetector
	notifications *memoryNotificationStore
	tokens        *memoryTokenStore
	provider      *scriptedProvider
	live          *recordingNotifier
}

func newDetectorFixture(sendTimeout time.Duration, opts ...DetectorOption) *detectorFixture {
	f := &detectorFixture{
		notifications: newMemoryNotificationStore(),
		tokens:        newMemoryTokenStore(),
		provider:      newScriptedProvider(),
		live:          &recordingNotifier{},
	}
	opts = append([]DetectorOption{WithLiveNotifier(f.live)}, opts...)
	f.detector = NewTransitionDetector(
		NewNotificationRecorder(f.notifications),
		NewDeviceRegistry(f.tokens),
		push.NewDispatcher(f.provider, sendTimeout),
		opts...,
	)
	return f
}

func (f *detectorFixture) addTokens(t *testing.T, owner uuid.UUID, tokens ...string) {
	t.Helper()
	for _, token := range tokens {
		if err := f.tokens.AddToken(t.Context(), owner, token); err != nil {
			t.Fatalf("add token: %v", err)
		}
	}
}

func reportPair(before, after model.ReportStatus) (*model.Report, model.Report) {
	prev := model.Report{
		ID:          uuid.New(),
		OwnerID:     uuid.New(),
		Category:    model.CategoryVoirie,
		Description: "Pothole near the school entrance",
		Status:      before,
		Version:     1,
	}
	next := prev
	next.Status = after
	next.Version = 2
	return &prev, next
}

func TestDetectorIgnoresCreation(t *testing.T) {
	f := newDetectorFixture(time.Second)
	_, after := reportPair(model.StatusNew, model.StatusNew)
	f.addTokens(t, after.OwnerID, "t1")

	outcome, err := f.detector.OnReportMutated(t.Context(), nil, after)
	if err != nil || outcome != nil {
		t.Fatalf("got (%v, %v), want (nil, nil)", outcome, err)
	}
	if f.notifications.count() != 0 || f.provider.sendCount() != 0 {
		t.Fatal("creation must not notify")
	}
}

func TestDetectorIgnoresUnchangedStatus(t *testing.T) {
	for _, status := range []model.ReportStatus{model.StatusNew, model.StatusInProgress, model.StatusResolved} {
		t.Run(string(status), func(t *testing.T) {
			f := newDetectorFixture(time.Second)
			before, after := reportPair(status, status)
			after.Description = "edited description"
			f.addTokens(t, after.OwnerID, "t1", "t2")

			outcome, err := f.detector.OnReportMutated(t.Context(), before, after)
			if err != nil || outcome != nil {
				t.Fatalf("got (%v, %v), want (nil, nil)", outcome, err)
			}
			if f.notifications.count() != 0 {
				t.Fatal("notification created for unchanged status")
			}
			if f.provider.sendCount() != 0 {
				t.Fatal("push attempted for unchanged status")
			}
			if f.live.count() != 0 {
				t.Fatal("live notification sent for unchanged status")
			}
		})
	}
}

func TestDetectorNotifiesAllDevices(t *testing.T) {
	f := newDetectorFixture(time.Second)
	before, after := reportPair(model.StatusNew, model.StatusInProgress)
	f.addTokens(t, after.OwnerID, "phone", "tablet")

	outcome, err := f.detector.OnReportMutated(t.Context(), before, after)
	if err != nil {
		t.Fatalf("OnReportMutated: %v", err)
	}

	stored := f.notifications.all()
	if len(stored) != 1 {
		t.Fatalf("stored %d notifications, want 1", len(stored))
	}
	n := stored[0]
	if !strings.Contains(n.Body, "in_progress") {
		t.Errorf("body %q does not mention the new status", n.Body)
	}
	if n.UserID != after.OwnerID || n.ReportID != after.ID || n.IsRead {
		t.Errorf("unexpected notification %+v", n)
	}
	if outcome.NotificationID != n.ID {
		t.Errorf("outcome id %s, stored id %s", outcome.NotificationID, n.ID)
	}

	if outcome.Fanout.SuccessCount != 2 || len(outcome.Fanout.Failures) != 0 {
		t.Fatalf("fanout = %+v, want 2 successes", outcome.Fanout)
	}
	if f.provider.sendCount() != 2 {
		t.Fatalf("sent %d pushes, want 2", f.provider.sendCount())
	}
	if f.live.count() != 1 {
		t.Fatalf("live notifications = %d, want 1", f.live.count())
	}
}

func TestDetectorWithoutDevicesStillRecords(t *testing.T) {
	f := newDetectorFixture(time.Second)
	before, after := reportPair(model.StatusInProgress, model.StatusResolved)

	outcome, err := f.detector.OnReportMutated(t.Context(), before, after)
	if err != nil {
		t.Fatalf("OnReportMutated: %v", err)
	}
	if f.notifications.count() != 1 {
		t.Fatalf("stored %d notifications, want 1", f.notifications.count())
	}
	if outcome.Fanout.SuccessCount != 0 || len(outcome.Fanout.Failures) != 0 {
		t.Fatalf("fanout = %+v, want empty", outcome.Fanout)
	}
	if f.provider.sendCount() != 0 {
		t.Fatalf("sent %d pushes, want 0", f.provider.sendCount())
	}
}

func TestDetectorTimedOutSendIsTransient(t *testing.T) {
	f := newDetectorFixture(50 * time.Millisecond)
	before, after := reportPair(model.StatusNew, model.StatusInProgress)
	f.addTokens(t, after.OwnerID, "token1", "token2")
	f.provider.outcomes["token2"] = func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}

	outcome, err := f.detector.OnReportMutated(t.Context(), before, after)
	if err != nil {
		t.Fatalf("transition handling failed: %v", err)
	}

	if outcome.Fanout.SuccessCount != 1 {
		t.Fatalf("successCount = %d, want 1", outcome.Fanout.SuccessCount)
	}
	if len(outcome.Fanout.Failures) != 1 {
		t.Fatalf("failures = %+v, want one", outcome.Fanout.Failures)
	}
	failure := outcome.Fanout.Failures[0]
	if failure.Token != "token2" || failure.Kind != push.KindTransient {
		t.Fatalf("failure = %+v, want (token2, transient)", failure)
	}
	if f.notifications.count() != 1 {
		t.Fatal("notification must survive push failures")
	}
}

func TestDetectorRedeliveryCreatesOneNotification(t *testing.T) {
	f := newDetectorFixture(time.Second)
	before, after := reportPair(model.StatusNew, model.StatusResolved)
	f.addTokens(t, after.OwnerID, "phone")

	msg := model.ReportMutatedMessage{ReportID: after.ID, Before: before, After: after}
	for i := 0; i < 3; i++ {
		if err := f.detector.HandleReportMutation(t.Context(), msg); err != nil {
			t.Fatalf("delivery %d: %v", i+1, err)
		}
	}

	if f.notifications.count() != 1 {
		t.Fatalf("stored %d notifications, want 1", f.notifications.count())
	}
	if f.provider.sendCount() != 1 {
		t.Fatalf("sent %d pushes, want 1", f.provider.sendCount())
	}

	outcome, err := f.detector.OnReportMutated(t.Context(), before, after)
	if err != nil {
		t.Fatalf("OnReportMutated: %v", err)
	}
	if !outcome.Redelivered {
		t.Fatal("outcome not flagged as redelivered")
	}
}

func TestDetectorSeparateTransitionsEachNotify(t *testing.T) {
	f := newDetectorFixture(time.Second)
	first, second := reportPair(model.StatusNew, model.StatusInProgress)
	third := second
	third.Status = model.StatusResolved
	third.Version = 3

	if _, err := f.detector.OnReportMutated(t.Context(), first, second); err != nil {
		t.Fatalf("first transition: %v", err)
	}
	if _, err := f.detector.OnReportMutated(t.Context(), &second, third); err != nil {
		t.Fatalf("second transition: %v", err)
	}
	if f.notifications.count() != 2 {
		t.Fatalf("stored %d notifications, want 2", f.notifications.count())
	}
}

func TestDetectorRecorderFailureIsReturned(t *testing.T) {
	f := newDetectorFixture(time.Second)
	f.notifications.err = errors.New("db unavailable")
	before, after := reportPair(model.StatusNew, model.StatusInProgress)
	f.addTokens(t, after.OwnerID, "phone")

	_, err := f.detector.OnReportMutated(t.Context(), before, after)
	if !errors.Is(err, apperror.ErrStoreFailure) {
		t.Fatalf("err = %v, want store failure", err)
	}
	if f.provider.sendCount() != 0 {
		t.Fatal("push sent although the notification was not recorded")
	}
}

func TestDetectorRegistryFailureIsNotFatal(t *testing.T) {
	f := newDetectorFixture(time.Second)
	before, after := reportPair(model.StatusNew, model.StatusInProgress)
	f.tokens.err = errors.New("registry down")

	outcome, err := f.detector.OnReportMutated(t.Context(), before, after)
	if err != nil {
		t.Fatalf("OnReportMutated: %v", err)
	}
	if outcome == nil || f.notifications.count() != 1 {
		t.Fatal("notification should still be recorded")
	}
}

func TestDetectorPrunesInvalidTokens(t *testing.T) {
	invalid := func(context.Context) error {
		return &push.SendError{Kind: push.KindInvalidToken, Err: errors.New("unregistered")}
	}

	t.Run("enabled", func(t *testing.T) {
		f := newDetectorFixture(time.Second, WithTokenPruning(true))
		before, after := reportPair(model.StatusNew, model.StatusInProgress)
		f.addTokens(t, after.OwnerID, "stale", "fresh")
		f.provider.outcomes["stale"] = invalid

		if _, err := f.detector.OnReportMutated(t.Context(), before, after); err != nil {
			t.Fatalf("OnReportMutated: %v", err)
		}

		tokens, _ := f.tokens.ListTokens(t.Context(), after.OwnerID)
		if len(tokens) != 1 || tokens[0] != "fresh" {
			t.Fatalf("tokens = %v, want [fresh]", tokens)
		}
	})

	t.Run("disabled by default", func(t *testing.T) {
		f := newDetectorFixture(time.Second)
		before, after := reportPair(model.StatusNew, model.StatusInProgress)
		f.addTokens(t, after.OwnerID, "stale", "fresh")
		f.provider.outcomes["stale"] = invalid

		if _, err := f.detector.OnReportMutated(t.Context(), before, after); err != nil {
			t.Fatalf("OnReportMutated: %v", err)
		}

		tokens, _ := f.tokens.ListTokens(t.Context(), after.OwnerID)
		if len(tokens) != 2 {
			t.Fatalf("tokens = %v, want both kept", tokens)
		}
	})
}
