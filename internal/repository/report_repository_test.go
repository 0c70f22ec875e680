package repository

import (
	"encoding/json"
	"errors"
	"testing"

	"houmetna-service/internal/model"

	"github.com/google/uuid"
)

func newTestReport(ownerID uuid.UUID) *model.Report {
	return &model.Report{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		Category:    model.CategoryVoirie,
		Description: "Large pothole on Main Street",
		Location:    &model.Location{Lat: 33.5731, Lng: -7.5898},
		PhotoURLs:   []string{"https://example.com/1.jpg", "https://example.com/2.jpg"},
		Status:      model.StatusNew,
	}
}

func TestReportCreateEnqueuesMutation(t *testing.T) {
	db := setupTestDB(t)
	outbox := NewOutboxRepository(db)
	repo := NewReportRepository(db, outbox)
	ctx := t.Context()

	report := newTestReport(uuid.New())
	if err := repo.Create(ctx, report); err != nil {
		t.Fatalf("create: %v", err)
	}
	if report.Version != 1 || report.CreatedAt.IsZero() {
		t.Fatalf("expected stored version and timestamps, got %+v", report)
	}

	stored, err := repo.FindByID(ctx, report.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if stored.Location == nil || stored.Location.Lat != 33.5731 {
		t.Fatalf("location not persisted: %+v", stored.Location)
	}
	if len(stored.PhotoURLs) != 2 || stored.PhotoURLs[1] != "https://example.com/2.jpg" {
		t.Fatalf("photo order not preserved: %v", stored.PhotoURLs)
	}

	pending, err := outbox.GetPendingMessages(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 outbox message, got %d", len(pending))
	}
	var msg model.ReportMutatedMessage
	if err := json.Unmarshal(pending[0].Payload, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Before != nil {
		t.Fatal("creation event must not carry a previous state")
	}
	if msg.After.Status != model.StatusNew || pending[0].RoutingKey != model.RoutingKeyReportMutated {
		t.Fatalf("unexpected event %+v", msg)
	}
}

func TestReportUpdateStatus(t *testing.T) {
	db := setupTestDB(t)
	outbox := NewOutboxRepository(db)
	repo := NewReportRepository(db, outbox)
	ctx := t.Context()

	report := newTestReport(uuid.New())
	if err := repo.Create(ctx, report); err != nil {
		t.Fatal(err)
	}

	before, after, err := repo.UpdateStatus(ctx, report.ID, model.StatusInProgress)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if before.Status != model.StatusNew || after.Status != model.StatusInProgress {
		t.Fatalf("unexpected transition %s -> %s", before.Status, after.Status)
	}
	if after.Version != before.Version+1 {
		t.Fatalf("expected version bump, got %d -> %d", before.Version, after.Version)
	}

	pending, err := outbox.GetPendingMessages(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 outbox messages, got %d", len(pending))
	}
	var msg model.ReportMutatedMessage
	found := false
	for _, p := range pending {
		if err := json.Unmarshal(p.Payload, &msg); err != nil {
			t.Fatal(err)
		}
		if msg.Before != nil {
			found = true
			break
		}
	}
	if !found {
		t.Fatal("status update event missing")
	}
	if msg.Before.Status != model.StatusNew || msg.After.Status != model.StatusInProgress {
		t.Fatalf("unexpected event states %s -> %s", msg.Before.Status, msg.After.Status)
	}
}

func TestReportUpdateStatusNotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewReportRepository(db, NewOutboxRepository(db))

	_, _, err := repo.UpdateStatus(t.Context(), uuid.New(), model.StatusResolved)
	if !errors.Is(err, ErrReportNotFound) {
		t.Fatalf("expected ErrReportNotFound, got %v", err)
	}
}

func TestReportFindByOwnerAndStatus(t *testing.T) {
	db := setupTestDB(t)
	repo := NewReportRepository(db, NewOutboxRepository(db))
	ctx := t.Context()
	owner := uuid.New()

	mine := newTestReport(owner)
	theirs := newTestReport(uuid.New())
	for _, r := range []*model.Report{mine, theirs} {
		if err := repo.Create(ctx, r); err != nil {
			t.Fatal(err)
		}
	}
	if _, _, err := repo.UpdateStatus(ctx, theirs.ID, model.StatusResolved); err != nil {
		t.Fatal(err)
	}

	owned, err := repo.FindByOwnerID(ctx, owner)
	if err != nil {
		t.Fatal(err)
	}
	if len(owned) != 1 || owned[0].ID != mine.ID {
		t.Fatalf("unexpected owned reports %+v", owned)
	}

	resolved := model.StatusResolved
	filtered, err := repo.FindAll(ctx, &resolved)
	if err != nil {
		t.Fatal(err)
	}
	if len(filtered) != 1 || filtered[0].ID != theirs.ID {
		t.Fatalf("unexpected filtered reports %+v", filtered)
	}
}
