package audit

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Validation errors returned before any write is attempted.
var (
	ErrInvalidAction   = errors.New("action is not in the audit action set")
	ErrInvalidResource = errors.New("resource type is not in the audit resource set")
	ErrInvalidOutcome  = errors.New("outcome is not in the audit outcome set")
)

// Filter selects audit records by any subset of its fields. Zero values
// mean "no constraint".
type Filter struct {
	ActorID    string
	Action     Action
	Resource   Resource
	ResourceID string
	From       time.Time
	To         time.Time
}

// PageRequest is 1-based pagination for audit queries.
type PageRequest struct {
	Page  int
	Limit int
}

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 200
)

// normalize clamps page and limit into their allowed ranges.
func (p PageRequest) normalize() PageRequest {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	return p
}

// Pagination describes the page of results actually returned.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// Page is one page of audit records, newest first.
type Page struct {
	Logs       []*Record  `json:"logs"`
	Pagination Pagination `json:"pagination"`
}

// Repository persists audit records. Records are append-only: there is no
// update operation, and DeleteBefore exists solely for the retention sweep.
type Repository interface {
	Insert(ctx context.Context, rec *Record) error
	Search(ctx context.Context, f Filter, limit, offset int) ([]*Record, int, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Service is the audit trail: it validates, redacts, and persists one
// record per logged operation, and serves the compliance query surface.
type Service struct {
	repo      Repository
	retention time.Duration
	logger    zerolog.Logger
	now       func() time.Time
}

// NewService creates a Service with the given retention window.
func NewService(repo Repository, retention time.Duration, logger zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		retention: retention,
		logger:    logger.With().Str("component", "audit").Logger(),
		now:       time.Now,
	}
}

// Record validates the event, redacts its detail payload, and persists a
// new audit record. The returned id is server-assigned. Enum violations
// are rejected before any write.
func (s *Service) Record(ctx context.Context, ev Event) (uuid.UUID, error) {
	if !ev.Action.Valid() {
		return uuid.Nil, ErrInvalidAction
	}
	if !ev.Resource.Valid() {
		return uuid.Nil, ErrInvalidResource
	}
	outcome := ev.Outcome
	if outcome == "" {
		outcome = OutcomeFromStatus(ev.StatusCode)
	}
	if !outcome.Valid() {
		return uuid.Nil, ErrInvalidOutcome
	}

	rec := &Record{
		ID:         uuid.New(),
		ActorID:    ev.ActorID,
		Action:     ev.Action,
		Resource:   ev.Resource,
		ResourceID: ev.ResourceID,
		Method:     ev.Method,
		Path:       ev.Path,
		IPAddress:  ev.IPAddress,
		UserAgent:  ev.UserAgent,
		Outcome:    outcome,
		StatusCode: ev.StatusCode,
		Detail:     ev.Detail.Redact(),
		DurationMs: ev.Duration.Milliseconds(),
		CreatedAt:  s.now().UTC(),
	}
	if outcome == OutcomeFailure {
		rec.ErrorMessage = ev.ErrorMessage
	}

	if err := s.repo.Insert(ctx, rec); err != nil {
		return uuid.Nil, err
	}
	return rec.ID, nil
}

// RecordSafe records the event but never propagates a write failure to
// the caller: compliance logging must not abort the business operation
// that triggered it. Failures go to the log as the observability side
// channel, and uuid.Nil signals that the record was not written.
func (s *Service) RecordSafe(ctx context.Context, ev Event) uuid.UUID {
	id, err := s.Record(ctx, ev)
	if err != nil {
		s.logger.Error().Err(err).
			Str("action", string(ev.Action)).
			Str("resource", string(ev.Resource)).
			Str("path", ev.Path).
			Msg("audit record write failed")
		return uuid.Nil
	}
	return id
}

// Query returns matching records newest-first. No matches is an empty
// page, not an error. Enum-typed filter values must be valid when set.
func (s *Service) Query(ctx context.Context, f Filter, p PageRequest) (*Page, error) {
	if f.Action != "" && !f.Action.Valid() {
		return nil, ErrInvalidAction
	}
	if f.Resource != "" && !f.Resource.Valid() {
		return nil, ErrInvalidResource
	}
	p = p.normalize()

	logs, total, err := s.repo.Search(ctx, f, p.Limit, (p.Page-1)*p.Limit)
	if err != nil {
		return nil, err
	}
	if logs == nil {
		logs = []*Record{}
	}
	return &Page{
		Logs: logs,
		Pagination: Pagination{
			Page:  p.Page,
			Limit: p.Limit,
			Total: total,
			Pages: int(math.Ceil(float64(total) / float64(p.Limit))),
		},
	}, nil
}

// PurgeExpired deletes every record older than the retention window as of
// now. It is idempotent: with no intervening writes a second run deletes
// nothing. Records at or after the cutoff are never touched.
func (s *Service) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	cutoff := now.Add(-s.retention)
	n, err := s.repo.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info().Int64("purged", n).Time("cutoff", cutoff).Msg("retention sweep")
	}
	return n, nil
}

// Retention returns the configured retention window.
func (s *Service) Retention() time.Duration { return s.retention }
