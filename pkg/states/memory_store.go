package states

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
)

// MemoryStore is an in-process Store, used for tests and ephemeral setups.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*memoryEntry
	seq     uint64
}

type memoryEntry struct {
	rec *Record
	seq uint64
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*memoryEntry),
	}
}

func (s *MemoryStore) Create(ctx context.Context, rec *Record, limit int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.ID]; exists {
		return fmt.Errorf("states: duplicate record id %q", rec.ID)
	}
	if limit > 0 && s.countLocked(rec.Owner, rec.StateType) >= limit {
		return ErrLimitExceeded
	}

	s.seq++
	s.records[rec.ID] = &memoryEntry{rec: rec.Clone(), seq: s.seq}
	return nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, id string, upd StatusUpdate) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}

	prev := e.rec.Status
	e.rec.Status = upd.Status
	e.rec.UpdatedAt = upd.UpdatedAt
	if upd.CompletedAt != nil {
		t := *upd.CompletedAt
		e.rec.CompletedAt = &t
	}

	out := e.rec.Clone()
	out.PreviousStatus = prev
	return out, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return e.rec.Clone(), nil
}

func (s *MemoryStore) Count(ctx context.Context, owner Owner, stateType string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countLocked(owner, stateType), nil
}

func (s *MemoryStore) countLocked(owner Owner, stateType string) int {
	n := 0
	for _, e := range s.records {
		if e.rec.Owner == owner && e.rec.StateType == stateType {
			n++
		}
	}
	return n
}

func (s *MemoryStore) List(ctx context.Context, q Query) ([]*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	matched := make([]*memoryEntry, 0)
	for _, e := range s.records {
		if e.rec.Owner != q.Owner {
			continue
		}
		if q.StateType != "" && e.rec.StateType != q.StateType {
			continue
		}
		if q.Status != "" && e.rec.Status != q.Status {
			continue
		}
		matched = append(matched, &memoryEntry{rec: e.rec.Clone(), seq: e.seq})
	}
	s.mu.RUnlock()

	slices.SortFunc(matched, func(a, b *memoryEntry) int {
		if c := b.rec.CreatedAt.Compare(a.rec.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.seq, a.seq)
	})

	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	out := make([]*Record, 0, len(matched))
	for _, e := range matched {
		out = append(out, e.rec)
	}
	return out, nil
}

func (s *MemoryStore) DeleteOwner(ctx context.Context, owner Owner) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, e := range s.records {
		if e.rec.Owner == owner {
			delete(s.records, id)
			n++
		}
	}
	return n, nil
}
