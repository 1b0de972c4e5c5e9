package appointment

import (
	"context"
	"errors"
	"iter"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Errors returned by the lifecycle store. They describe rejected user
// actions and propagate synchronously to the caller.
var (
	ErrNotFound          = errors.New("appointment not found")
	ErrInvalidSlot       = errors.New("requested date/time is not an offered slot")
	ErrInvalidTransition = errors.New("appointment status does not permit this operation")
	ErrPastDate          = errors.New("appointment date is in the past")
	ErrInvalidType       = errors.New("unknown visit type")
	ErrInvalidMode       = errors.New("unknown visit mode")
	ErrMissingPatient    = errors.New("patient id is required")
	ErrMissingDoctor     = errors.New("doctor id is required")
)

// BookingRequest carries the fields of a booking operation.
type BookingRequest struct {
	PatientID    string    `json:"patientId"`
	DepartmentID string    `json:"departmentId"`
	DoctorID     string    `json:"doctorId"`
	Date         string    `json:"date"`
	Time         string    `json:"time"`
	Type         VisitType `json:"type"`
	Mode         Mode      `json:"mode"`
	Notes        string    `json:"notes,omitempty"`
}

// Store owns the authoritative set of appointments for the process and
// enforces the status state machine. Every mutation either fully applies
// or leaves the store unchanged, and no two operations on the same
// appointment interleave their read-modify-write.
type Store struct {
	mu      sync.RWMutex
	appts   map[uuid.UUID]*Appointment
	locks   map[uuid.UUID]*sync.Mutex
	catalog SlotCatalog
	notify  func(Event)
	now     func() time.Time
}

// NewStore creates an empty store consulting the given slot catalog.
func NewStore(catalog SlotCatalog) *Store {
	return &Store{
		appts:   make(map[uuid.UUID]*Appointment),
		locks:   make(map[uuid.UUID]*sync.Mutex),
		catalog: catalog,
		now:     time.Now,
	}
}

// Notify registers the consumer of domain events. Events fire after the
// mutation commits; a nil notifier disables emission. Call during setup.
func (s *Store) Notify(fn func(Event)) { s.notify = fn }

func (s *Store) emit(ev Event) {
	if s.notify != nil {
		s.notify(ev)
	}
}

// lockFor returns the per-appointment mutex, creating it on first use.
func (s *Store) lockFor(id uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// Book creates a new confirmed appointment. The date must not be in the
// past relative to booking time, and the time must be a published slot
// for that doctor/department.
func (s *Store) Book(_ context.Context, req BookingRequest) (*Appointment, error) {
	if req.PatientID == "" {
		return nil, ErrMissingPatient
	}
	if req.DoctorID == "" {
		return nil, ErrMissingDoctor
	}
	if !req.Type.Valid() {
		return nil, ErrInvalidType
	}
	mode := req.Mode
	if mode == "" {
		mode = ModeInPerson
	}
	if !mode.Valid() {
		return nil, ErrInvalidMode
	}

	day, err := time.Parse(DateLayout, req.Date)
	if err != nil {
		return nil, ErrInvalidSlot
	}
	nowDay := s.now().UTC().Truncate(24 * time.Hour)
	if day.Before(nowDay) {
		return nil, ErrPastDate
	}
	if !s.catalog.Offers(req.DepartmentID, req.DoctorID, req.Date, req.Time) {
		return nil, ErrInvalidSlot
	}

	now := s.now().UTC()
	appt := &Appointment{
		ID:            uuid.New(),
		PatientID:     req.PatientID,
		DoctorID:      req.DoctorID,
		DepartmentID:  req.DepartmentID,
		ScheduledDate: req.Date,
		ScheduledTime: req.Time,
		Type:          req.Type,
		Status:        StatusConfirmed,
		Notes:         req.Notes,
		Mode:          mode,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	s.mu.Lock()
	s.appts[appt.ID] = appt
	s.mu.Unlock()

	s.emit(Event{
		Kind:          EventCreated,
		AppointmentID: appt.ID,
		PatientID:     appt.PatientID,
		DoctorID:      appt.DoctorID,
		DepartmentID:  appt.DepartmentID,
		NewDate:       appt.ScheduledDate,
		NewTime:       appt.ScheduledTime,
		OccurredAt:    now,
	})

	cp := *appt
	return &cp, nil
}

// Reschedule replaces the slot of a confirmed appointment in place. The
// status stays confirmed; cancelled and completed appointments cannot be
// rescheduled.
func (s *Store) Reschedule(_ context.Context, id uuid.UUID, newDate, newTime string) (*Appointment, error) {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	s.mu.RLock()
	appt, ok := s.appts[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	if appt.Status != StatusConfirmed {
		return nil, ErrInvalidTransition
	}
	if _, err := time.Parse(DateLayout, newDate); err != nil {
		return nil, ErrInvalidSlot
	}
	if !s.catalog.Offers(appt.DepartmentID, appt.DoctorID, newDate, newTime) {
		return nil, ErrInvalidSlot
	}

	oldDate, oldTime := appt.ScheduledDate, appt.ScheduledTime
	now := s.now().UTC()

	updated := *appt
	updated.ScheduledDate = newDate
	updated.ScheduledTime = newTime
	updated.UpdatedAt = now

	s.mu.Lock()
	s.appts[id] = &updated
	s.mu.Unlock()

	s.emit(Event{
		Kind:          EventRescheduled,
		AppointmentID: id,
		PatientID:     updated.PatientID,
		DoctorID:      updated.DoctorID,
		DepartmentID:  updated.DepartmentID,
		OldDate:       oldDate,
		OldTime:       oldTime,
		NewDate:       newDate,
		NewTime:       newTime,
		OccurredAt:    now,
	})

	cp := updated
	return &cp, nil
}

// Cancel moves a confirmed appointment to cancelled. Cancelling an
// already-cancelled or completed appointment is an error, not a no-op.
func (s *Store) Cancel(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusCancelled, EventCancelled)
}

// Complete marks a confirmed appointment as completed. This is a
// staff/system operation, never reachable from patient flows.
func (s *Store) Complete(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusCompleted, EventCompleted)
}

func (s *Store) transition(_ context.Context, id uuid.UUID, to Status, kind EventKind) (*Appointment, error) {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	s.mu.RLock()
	appt, ok := s.appts[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	if appt.Status != StatusConfirmed {
		return nil, ErrInvalidTransition
	}

	now := s.now().UTC()
	updated := *appt
	updated.Status = to
	updated.UpdatedAt = now

	s.mu.Lock()
	s.appts[id] = &updated
	s.mu.Unlock()

	s.emit(Event{
		Kind:          kind,
		AppointmentID: id,
		PatientID:     updated.PatientID,
		DoctorID:      updated.DoctorID,
		DepartmentID:  updated.DepartmentID,
		OccurredAt:    now,
	})

	cp := updated
	return &cp, nil
}

// Get returns a copy of the appointment.
func (s *Store) Get(id uuid.UUID) (*Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	appt, ok := s.appts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *appt
	return &cp, nil
}

// ListForPatient returns a lazy, restartable sequence over a snapshot of
// the patient's appointments, optionally filtered by status. Order is
// stable for a given snapshot: by date, time, then id.
func (s *Store) ListForPatient(patientID string, status Status) iter.Seq[*Appointment] {
	s.mu.RLock()
	var snapshot []*Appointment
	for _, appt := range s.appts {
		if appt.PatientID != patientID {
			continue
		}
		if status != "" && appt.Status != status {
			continue
		}
		cp := *appt
		snapshot = append(snapshot, &cp)
	}
	s.mu.RUnlock()

	sort.Slice(snapshot, func(i, j int) bool {
		a, b := snapshot[i], snapshot[j]
		if a.ScheduledDate != b.ScheduledDate {
			return a.ScheduledDate < b.ScheduledDate
		}
		if a.ScheduledTime != b.ScheduledTime {
			return a.ScheduledTime < b.ScheduledTime
		}
		return strings.Compare(a.ID.String(), b.ID.String()) < 0
	})

	return func(yield func(*Appointment) bool) {
		for _, appt := range snapshot {
			if !yield(appt) {
				return
			}
		}
	}
}

// NextUpcoming returns the confirmed appointment with the earliest slot
// at or after asOf, or false if none exists. Exact date/time ties go to
// the lexicographically smaller id for determinism.
func (s *Store) NextUpcoming(patientID string, asOf time.Time) (*Appointment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *Appointment
	var bestAt time.Time
	for _, appt := range s.appts {
		if appt.PatientID != patientID || appt.Status != StatusConfirmed {
			continue
		}
		at, err := appt.ScheduledAt()
		if err != nil || at.Before(asOf) {
			continue
		}
		switch {
		case best == nil,
			at.Before(bestAt),
			at.Equal(bestAt) && strings.Compare(appt.ID.String(), best.ID.String()) < 0:
			best = appt
			bestAt = at
		}
	}
	if best == nil {
		return nil, false
	}
	cp := *best
	return &cp, true
}
