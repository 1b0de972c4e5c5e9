package audit

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory audit store used in standalone mode and in
// tests. Records are stored append-only; the mutex makes writes and the
// retention sweep safe to run concurrently.
type MemoryRepo struct {
	mu   sync.RWMutex
	recs []*Record
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{}
}

func (m *MemoryRepo) Insert(_ context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := *rec
	m.recs = append(m.recs, &r)
	return nil
}

func (m *MemoryRepo) Search(_ context.Context, f Filter, limit, offset int) ([]*Record, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []*Record
	for _, r := range m.recs {
		if !matches(r, f) {
			continue
		}
		matched = append(matched, r)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	page := make([]*Record, end-offset)
	for i, r := range matched[offset:end] {
		cp := *r
		page[i] = &cp
	}
	return page, total, nil
}

func (m *MemoryRepo) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.recs[:0]
	var deleted int64
	for _, r := range m.recs {
		if r.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	m.recs = kept
	return deleted, nil
}

func matches(r *Record, f Filter) bool {
	if f.ActorID != "" && r.ActorID != f.ActorID {
		return false
	}
	if f.Action != "" && r.Action != f.Action {
		return false
	}
	if f.Resource != "" && r.Resource != f.Resource {
		return false
	}
	if f.ResourceID != "" && r.ResourceID != f.ResourceID {
		return false
	}
	if !f.From.IsZero() && r.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && r.CreatedAt.After(f.To) {
		return false
	}
	return true
}
