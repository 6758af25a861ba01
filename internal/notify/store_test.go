package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wardflow/tanksentry/internal/store"
	"github.com/wardflow/tanksentry/pkg/models"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	db, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := Migrate(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewStore(db)
}

func appendRecord(t *testing.T, s *Store, rec *models.NotificationRecord) {
	t.Helper()
	if err := s.Append(context.Background(), rec); err != nil {
		t.Fatalf("Append: %v", err)
	}
}

func TestAppendAndList_RoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	rec := &models.NotificationRecord{
		Category: models.CategoryIssueReport,
		Actor:    "user-17",
		Payload:  map[string]any{"description": "pump leaking", "resource_id": "TANK-3"},
	}
	appendRecord(t, s, rec)

	if rec.ID == "" {
		t.Fatal("Append did not assign an ID")
	}

	recs, err := s.List(ctx, models.CategoryIssueReport)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("List returned %d records, want 1", len(recs))
	}
	got := recs[0]
	if got.ID != rec.ID || got.Actor != "user-17" {
		t.Errorf("got %+v, want id=%s actor=user-17", got, rec.ID)
	}
	if got.Payload["description"] != "pump leaking" {
		t.Errorf("payload = %v, want description preserved", got.Payload)
	}

	// Other categories are independent partitions.
	other, err := s.List(ctx, models.CategoryMaintenanceRequest)
	if err != nil {
		t.Fatalf("List other category: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("maintenance-request has %d records, want 0", len(other))
	}
}

func TestList_NewestFirst(t *testing.T) {
	s := testStore(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		appendRecord(t, s, &models.NotificationRecord{
			Category:  models.CategoryIssueReport,
			Actor:     "u",
			Payload:   map[string]any{"n": float64(i)},
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}

	recs, err := s.List(context.Background(), models.CategoryIssueReport)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("List returned %d records, want 3", len(recs))
	}
	for i := 1; i < len(recs); i++ {
		if recs[i].CreatedAt.After(recs[i-1].CreatedAt) {
			t.Errorf("records not newest-first: %v before %v", recs[i-1].CreatedAt, recs[i].CreatedAt)
		}
	}
}

func TestAppend_UnknownCategory(t *testing.T) {
	s := testStore(t)
	err := s.Append(context.Background(), &models.NotificationRecord{Category: "fan-mail"})
	if err == nil {
		t.Fatal("Append accepted unknown category")
	}
}

func TestRemove_ByPredicate(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	appendRecord(t, s, &models.NotificationRecord{
		Category: models.CategoryIssueReport, Actor: "a",
		Payload: map[string]any{"resource_id": "TANK-1"},
	})
	appendRecord(t, s, &models.NotificationRecord{
		Category: models.CategoryIssueReport, Actor: "b",
		Payload: map[string]any{"resource_id": "TANK-2"},
	})
	appendRecord(t, s, &models.NotificationRecord{
		Category: models.CategoryIssueReport, Actor: "c",
		Payload: map[string]any{"resource_id": "TANK-1"},
	})

	n, err := s.Remove(ctx, models.CategoryIssueReport, func(r models.NotificationRecord) bool {
		return r.Payload["resource_id"] == "TANK-1"
	})
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if n != 2 {
		t.Errorf("Remove removed %d records, want 2", n)
	}

	recs, err := s.List(ctx, models.CategoryIssueReport)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recs) != 1 || recs[0].Actor != "b" {
		t.Errorf("remaining records = %+v, want only actor b", recs)
	}
}

func TestRemoveByID_RaceLoserGetsNotFound(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	rec := &models.NotificationRecord{Category: models.CategoryIssueReport, Actor: "a"}
	appendRecord(t, s, rec)

	if err := s.RemoveByID(ctx, models.CategoryIssueReport, rec.ID); err != nil {
		t.Fatalf("first RemoveByID: %v", err)
	}
	// Second dismisser (e.g. another tab) loses the race.
	err := s.RemoveByID(ctx, models.CategoryIssueReport, rec.ID)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("second RemoveByID error = %v, want ErrNotFound", err)
	}
}

func TestClear(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	appendRecord(t, s, &models.NotificationRecord{Category: models.CategoryIssueReport})
	appendRecord(t, s, &models.NotificationRecord{Category: models.CategoryIssueReport})
	appendRecord(t, s, &models.NotificationRecord{Category: models.CategoryApprovalResult})

	if err := s.Clear(ctx, models.CategoryIssueReport); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	recs, _ := s.List(ctx, models.CategoryIssueReport)
	if len(recs) != 0 {
		t.Errorf("issue-report has %d records after clear, want 0", len(recs))
	}
	other, _ := s.List(ctx, models.CategoryApprovalResult)
	if len(other) != 1 {
		t.Errorf("approval-result has %d records, want 1 (clear must not cross partitions)", len(other))
	}
}

func TestApprove_AtomicTransition(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	req := &models.NotificationRecord{
		Category: models.CategoryAssetRegistration,
		Actor:    "user-17",
		Payload:  map[string]any{"resource_id": "TANK-9", "ward": "ward-07"},
	}
	appendRecord(t, s, req)

	result, err := s.Approve(ctx, req.ID)
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}

	// Request gone from its partition.
	regs, _ := s.List(ctx, models.CategoryAssetRegistration)
	if len(regs) != 0 {
		t.Errorf("asset-registration has %d records after approve, want 0", len(regs))
	}

	// Exactly one result, addressed to the original actor.
	results, _ := s.List(ctx, models.CategoryApprovalResult)
	if len(results) != 1 {
		t.Fatalf("approval-result has %d records, want exactly 1", len(results))
	}
	got := results[0]
	if got.ID != result.ID {
		t.Errorf("listed result id = %s, want %s", got.ID, result.ID)
	}
	if got.Actor != "user-17" {
		t.Errorf("result actor = %q, want user-17", got.Actor)
	}
	if got.Payload["outcome"] != models.OutcomeApproved {
		t.Errorf("outcome = %v, want approved", got.Payload["outcome"])
	}
	if got.Payload["request_id"] != req.ID {
		t.Errorf("request_id = %v, want %s", got.Payload["request_id"], req.ID)
	}
	if got.Payload["resource_id"] != "TANK-9" {
		t.Errorf("resource_id = %v, want TANK-9", got.Payload["resource_id"])
	}
}

func TestApprove_MissingRequest(t *testing.T) {
	s := testStore(t)

	_, err := s.Approve(context.Background(), "no-such-id")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Approve error = %v, want ErrNotFound", err)
	}

	// The failed transition must not have appended a result.
	results, _ := s.List(context.Background(), models.CategoryApprovalResult)
	if len(results) != 0 {
		t.Errorf("approval-result has %d records after failed approve, want 0", len(results))
	}
}

func TestReject_Outcome(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	req := &models.NotificationRecord{
		Category: models.CategoryAssetRegistration,
		Actor:    "user-3",
	}
	appendRecord(t, s, req)

	result, err := s.Reject(ctx, req.ID)
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if result.Payload["outcome"] != models.OutcomeRejected {
		t.Errorf("outcome = %v, want rejected", result.Payload["outcome"])
	}

	// Double-resolve loses the race cleanly.
	if _, err := s.Approve(ctx, req.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second resolve error = %v, want ErrNotFound", err)
	}
}
