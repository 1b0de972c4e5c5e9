package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const testRetention = 220924800 * time.Second // seven years

func newTestService(repo Repository) *Service {
	return NewService(repo, testRetention, zerolog.Nop())
}

func validEvent() Event {
	return Event{
		ActorID:    "user-1",
		Action:     ActionPatientViewed,
		Resource:   ResourcePatient,
		ResourceID: "patient-9",
		Method:     "GET",
		Path:       "/api/patients/patient-9",
		IPAddress:  "10.0.0.1",
		StatusCode: 200,
	}
}

func TestRecordAssignsServerFields(t *testing.T) {
	repo := NewMemoryRepo()
	svc := newTestService(repo)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	id, err := svc.Record(context.Background(), validEvent())
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if id == uuid.Nil {
		t.Fatal("expected server-assigned id")
	}

	page, err := svc.Query(context.Background(), Filter{}, PageRequest{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(page.Logs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(page.Logs))
	}
	rec := page.Logs[0]
	if rec.ID != id {
		t.Errorf("id mismatch: %s vs %s", rec.ID, id)
	}
	if !rec.CreatedAt.Equal(fixed) {
		t.Errorf("createdAt = %v, want %v", rec.CreatedAt, fixed)
	}
	if rec.Outcome != OutcomeSuccess {
		t.Errorf("outcome = %q, want SUCCESS (derived from 200)", rec.Outcome)
	}
}

func TestRecordRejectsInvalidEnumsWithoutWriting(t *testing.T) {
	repo := NewMemoryRepo()
	svc := newTestService(repo)

	tests := []struct {
		name    string
		mutate  func(*Event)
		wantErr error
	}{
		{"unknown action", func(ev *Event) { ev.Action = "PATIENT_EXPORTED" }, ErrInvalidAction},
		{"unknown resource", func(ev *Event) { ev.Resource = "Invoice" }, ErrInvalidResource},
		{"unknown outcome", func(ev *Event) { ev.Outcome = "MAYBE" }, ErrInvalidOutcome},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := validEvent()
			tt.mutate(&ev)
			if _, err := svc.Record(context.Background(), ev); !errors.Is(err, tt.wantErr) {
				t.Fatalf("Record error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	page, _ := svc.Query(context.Background(), Filter{}, PageRequest{})
	if page.Pagination.Total != 0 {
		t.Fatalf("rejected events must not be written, got %d records", page.Pagination.Total)
	}
}

func TestRecordRedactsDetail(t *testing.T) {
	repo := NewMemoryRepo()
	svc := newTestService(repo)

	ev := validEvent()
	ev.Detail = &Detail{RequestBody: map[string]any{
		"password": "hunter2",
		"reason":   "checkup",
	}}

	if _, err := svc.Record(context.Background(), ev); err != nil {
		t.Fatalf("Record: %v", err)
	}

	page, _ := svc.Query(context.Background(), Filter{}, PageRequest{})
	body := page.Logs[0].Detail.RequestBody
	if body["password"] != RedactionMarker {
		t.Errorf("password stored as %v, want %q", body["password"], RedactionMarker)
	}
	if body["reason"] != "checkup" {
		t.Errorf("reason altered: %v", body["reason"])
	}
}

func TestRecordErrorMessageOnlyOnFailure(t *testing.T) {
	repo := NewMemoryRepo()
	svc := newTestService(repo)

	ev := validEvent()
	ev.StatusCode = 200
	ev.ErrorMessage = "should be dropped"
	svc.Record(context.Background(), ev)

	ev2 := validEvent()
	ev2.StatusCode = 409
	ev2.ErrorMessage = "status conflict"
	svc.Record(context.Background(), ev2)

	page, _ := svc.Query(context.Background(), Filter{}, PageRequest{})
	for _, rec := range page.Logs {
		switch rec.Outcome {
		case OutcomeSuccess:
			if rec.ErrorMessage != "" {
				t.Errorf("success record carries error message %q", rec.ErrorMessage)
			}
		case OutcomeFailure:
			if rec.ErrorMessage != "status conflict" {
				t.Errorf("failure record error = %q", rec.ErrorMessage)
			}
		}
	}
}

// failingRepo simulates an unavailable audit store.
type failingRepo struct{}

func (failingRepo) Insert(context.Context, *Record) error { return errors.New("store down") }
func (failingRepo) Search(context.Context, Filter, int, int) ([]*Record, int, error) {
	return nil, 0, errors.New("store down")
}
func (failingRepo) DeleteBefore(context.Context, time.Time) (int64, error) {
	return 0, errors.New("store down")
}

func TestRecordSafeSwallowsWriteFailure(t *testing.T) {
	svc := newTestService(failingRepo{})

	id := svc.RecordSafe(context.Background(), validEvent())
	if id != uuid.Nil {
		t.Fatalf("expected uuid.Nil on write failure, got %s", id)
	}
}

func TestQueryFilters(t *testing.T) {
	repo := NewMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	mk := func(actor string, action Action, resource Resource, resID string) {
		t.Helper()
		ev := validEvent()
		ev.ActorID = actor
		ev.Action = action
		ev.Resource = resource
		ev.ResourceID = resID
		if _, err := svc.Record(ctx, ev); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	mk("alice", ActionPatientViewed, ResourcePatient, "p1")
	mk("alice", ActionAppointmentCreated, ResourceAppointment, "a1")
	mk("bob", ActionAppointmentCancelled, ResourceAppointment, "a1")

	page, err := svc.Query(ctx, Filter{ActorID: "alice"}, PageRequest{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if page.Pagination.Total != 2 {
		t.Errorf("actor filter: total = %d, want 2", page.Pagination.Total)
	}

	page, _ = svc.Query(ctx, Filter{Resource: ResourceAppointment, ResourceID: "a1"}, PageRequest{})
	if page.Pagination.Total != 2 {
		t.Errorf("resource filter: total = %d, want 2", page.Pagination.Total)
	}

	page, _ = svc.Query(ctx, Filter{Action: ActionAppointmentCancelled}, PageRequest{})
	if page.Pagination.Total != 1 {
		t.Errorf("action filter: total = %d, want 1", page.Pagination.Total)
	}

	if _, err := svc.Query(ctx, Filter{Action: "NOT_A_THING"}, PageRequest{}); !errors.Is(err, ErrInvalidAction) {
		t.Errorf("invalid action filter: err = %v, want ErrInvalidAction", err)
	}
}

func TestQueryPagination(t *testing.T) {
	repo := NewMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	i := 0
	svc.now = func() time.Time {
		i++
		return base.Add(time.Duration(i) * time.Minute)
	}

	for n := 0; n < 5; n++ {
		if _, err := svc.Record(ctx, validEvent()); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	page, err := svc.Query(ctx, Filter{}, PageRequest{Page: 1, Limit: 2})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(page.Logs) != 2 {
		t.Fatalf("page 1 size = %d, want 2", len(page.Logs))
	}
	if page.Pagination.Total != 5 || page.Pagination.Pages != 3 {
		t.Errorf("pagination = %+v, want total 5 pages 3", page.Pagination)
	}
	// Newest first.
	if !page.Logs[0].CreatedAt.After(page.Logs[1].CreatedAt) {
		t.Error("records not ordered newest first")
	}

	page, _ = svc.Query(ctx, Filter{}, PageRequest{Page: 3, Limit: 2})
	if len(page.Logs) != 1 {
		t.Errorf("last page size = %d, want 1", len(page.Logs))
	}

	// Past the end: empty page, not an error.
	page, err = svc.Query(ctx, Filter{}, PageRequest{Page: 9, Limit: 2})
	if err != nil {
		t.Fatalf("past-the-end Query: %v", err)
	}
	if len(page.Logs) != 0 {
		t.Errorf("past-the-end page size = %d, want 0", len(page.Logs))
	}
	if page.Logs == nil {
		t.Error("logs must be an empty slice, not nil")
	}
}

func TestQueryClampsPageRequest(t *testing.T) {
	svc := newTestService(NewMemoryRepo())

	page, err := svc.Query(context.Background(), Filter{}, PageRequest{Page: -3, Limit: 100000})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if page.Pagination.Page != 1 {
		t.Errorf("page = %d, want 1", page.Pagination.Page)
	}
	if page.Pagination.Limit != MaxPageLimit {
		t.Errorf("limit = %d, want %d", page.Pagination.Limit, MaxPageLimit)
	}
}

func TestPurgeExpired(t *testing.T) {
	repo := NewMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	// One record just past retention, one inside it, one exactly at the
	// cutoff (must survive).
	write := func(at time.Time) {
		t.Helper()
		svc.now = func() time.Time { return at }
		if _, err := svc.Record(ctx, validEvent()); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	cutoff := now.Add(-testRetention)
	write(cutoff.Add(-time.Second))
	write(cutoff)
	write(now.Add(-time.Hour))

	deleted, err := svc.PurgeExpired(ctx, now)
	if err != nil {
		t.Fatalf("PurgeExpired: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("deleted = %d, want 1", deleted)
	}

	// Idempotent: nothing more to delete.
	deleted, err = svc.PurgeExpired(ctx, now)
	if err != nil {
		t.Fatalf("second PurgeExpired: %v", err)
	}
	if deleted != 0 {
		t.Fatalf("second sweep deleted = %d, want 0", deleted)
	}

	page, _ := svc.Query(ctx, Filter{}, PageRequest{})
	if page.Pagination.Total != 2 {
		t.Fatalf("surviving records = %d, want 2", page.Pagination.Total)
	}
}
