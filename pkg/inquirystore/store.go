// Package inquirystore is the local inquiry cache read by the agent UI.
//
// The store is a mutex-guarded map keyed by inquiry id. It holds at most one
// record per id and hands out copies, so callers can never mutate cached
// state in place.
package inquirystore

import (
	"errors"
	"sort"
	"sync"

	livechat "github.com/roboricindustries/raycon-livequeue/pkg/schemas/livechat/v1"
)

var (
	ErrEmptyID     = errors.New("inquiry store: record id is empty")
	ErrDuplicateID = errors.New("inquiry store: duplicate record id")
)

// Outcome describes what an Upsert did.
type Outcome int

const (
	Inserted Outcome = iota + 1
	Updated
	// Stale means the cached record was newer and was kept.
	Stale
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	case Stale:
		return "stale"
	}
	return "unknown"
}

type UpsertOptions struct {
	// RejectStale keeps the cached record when its UpdatedAt is after the incoming one.
	RejectStale bool
}

type Store struct {
	mu      sync.RWMutex
	records map[string]livechat.InquiryRecord
}

func New() *Store {
	return &Store{records: map[string]livechat.InquiryRecord{}}
}

func (s *Store) Insert(r livechat.InquiryRecord) error {
	if r.ID == "" {
		return ErrEmptyID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[r.ID]; ok {
		return ErrDuplicateID
	}
	s.records[r.ID] = r.Clone()
	return nil
}

func (s *Store) Upsert(r livechat.InquiryRecord, opts UpsertOptions) (Outcome, error) {
	if r.ID == "" {
		return 0, ErrEmptyID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.records[r.ID]
	if !ok {
		s.records[r.ID] = r.Clone()
		return Inserted, nil
	}
	if opts.RejectStale && existing.UpdatedAt.After(r.UpdatedAt) {
		return Stale, nil
	}
	s.records[r.ID] = r.Clone()
	return Updated, nil
}

// Remove deletes the record with id and reports whether it was cached.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return false
	}
	delete(s.records, id)
	return true
}

// RemoveWhere deletes every record matching f. The zero Filter matches all.
func (s *Store) RemoveWhere(f Filter) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, r := range s.records {
		if f.Match(r) {
			delete(s.records, id)
			n++
		}
	}
	return n
}

func (s *Store) Get(id string) (livechat.InquiryRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return livechat.InquiryRecord{}, false
	}
	return r.Clone(), true
}

// Find counts records matching f. Counting stops once limit is reached,
// so the result saturates at limit. limit <= 0 counts everything.
func (s *Store) Find(f Filter, limit int) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, r := range s.records {
		if !f.Match(r) {
			continue
		}
		n++
		if limit > 0 && n >= limit {
			break
		}
	}
	return n
}

// List returns matching records oldest first by queue time (updatedAt when
// queuedAt is unset), ties broken by id.
func (s *Store) List(f Filter) []livechat.InquiryRecord {
	s.mu.RLock()
	out := make([]livechat.InquiryRecord, 0, len(s.records))
	for _, r := range s.records {
		if f.Match(r) {
			out = append(out, r.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		qi, qj := queuedAt(out[i]), queuedAt(out[j])
		if !qi.Equal(qj) {
			return qi.Before(qj)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
