package store

import (
	"context"
	"slices"
	"sync"
)

// MemoryStore is an in-process ElementStore. Data is lost on Close.
type MemoryStore struct {
	mu       sync.RWMutex
	order    []string
	records  map[string]*Record
	lastSync *SyncResult
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

func (s *MemoryStore) Create(_ context.Context, r *Record) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := prepareNew(r, nowUTC())
	if _, ok := s.records[c.ID]; ok {
		return nil, storeConflict(c.ID)
	}
	s.insertLocked(c)
	return c.Clone(), nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[id]
	if !ok {
		return nil, storeNotFound(id)
	}
	return r.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, id string, fields map[string]any) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok {
		return nil, storeNotFound(id)
	}
	next := r.Clone()
	if err := applyUpdate(next, fields, nowUTC()); err != nil {
		return nil, err
	}
	s.records[id] = next
	return next.Clone(), nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return storeNotFound(id)
	}
	delete(s.records, id)
	s.order = slices.DeleteFunc(s.order, func(o string) bool { return o == id })
	return nil
}

func (s *MemoryStore) List(_ context.Context, filter ElementFilter) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*Record, 0, len(s.order))
	for _, id := range s.order {
		all = append(all, s.records[id])
	}
	out := page(all, filter)
	for i, r := range out {
		out[i] = r.Clone()
	}
	return out, nil
}

func (s *MemoryStore) BatchCreate(_ context.Context, recs []*Record) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := nowUTC()
	prepared := make([]*Record, len(recs))
	seen := make(map[string]bool, len(recs))
	for i, r := range recs {
		c := prepareNew(r, now)
		if _, ok := s.records[c.ID]; ok || seen[c.ID] {
			return nil, storeConflict(c.ID)
		}
		seen[c.ID] = true
		prepared[i] = c
	}

	out := make([]*Record, len(prepared))
	for i, c := range prepared {
		s.insertLocked(c)
		out[i] = c.Clone()
	}
	return out, nil
}

func (s *MemoryStore) Upsert(_ context.Context, recs []*Record) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := nowUTC()
	out := make([]*Record, len(recs))
	for i, r := range recs {
		if prev, ok := s.records[r.ID]; ok && r.ID != "" {
			c := prepareOverwrite(r, prev, now)
			s.records[c.ID] = c
			out[i] = c.Clone()
			continue
		}
		c := prepareNew(r, now)
		s.insertLocked(c)
		out[i] = c.Clone()
	}
	return out, nil
}

func (s *MemoryStore) Replace(_ context.Context, recs []*Record) (*SyncResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := nowUTC()
	fresh := make(map[string]*Record, len(recs))
	var order []string
	for _, r := range recs {
		c := prepareNew(r, now)
		c.SyncedAt = &now
		if _, dup := fresh[c.ID]; !dup {
			order = append(order, c.ID)
		}
		fresh[c.ID] = c
	}

	res := &SyncResult{BeforeCount: len(s.records), AfterCount: len(fresh), SyncedAt: now}
	s.records, s.order, s.lastSync = fresh, order, res
	cp := *res
	return &cp, nil
}

func (s *MemoryStore) LastSync(_ context.Context) (*SyncResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.lastSync == nil {
		return nil, nil
	}
	cp := *s.lastSync
	return &cp, nil
}

func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

// Vacuum compacts the order index.
func (s *MemoryStore) Vacuum(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = slices.Clip(s.order)
	return nil
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) insertLocked(r *Record) {
	s.records[r.ID] = r
	s.order = append(s.order, r.ID)
}
