// Package jobstate holds the in-memory status records that background fix
// jobs publish and callers poll.
package jobstate

import (
	"sync"

	"game-fix-manager/internal/model"

	"github.com/jonboulle/clockwork"
)

// Store maps application ids to the status of one job kind. Each Store owns
// its own lock, so apply and remove stores never contend.
type Store[S model.Status] struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	records map[int64]model.JobStatus[S]
}

type (
	ApplyStore  = Store[model.ApplyStatus]
	RemoveStore = Store[model.RemoveStatus]
)

func New[S model.Status](clock clockwork.Clock) *Store[S] {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store[S]{
		clock:   clock,
		records: make(map[int64]model.JobStatus[S]),
	}
}

func NewApplyStore(clock clockwork.Clock) *ApplyStore {
	return New[model.ApplyStatus](clock)
}

func NewRemoveStore(clock clockwork.Clock) *RemoveStore {
	return New[model.RemoveStatus](clock)
}

// Update merges patch into the record for id, creating it when absent, and
// returns a copy of the result.
func (s *Store[S]) Update(id int64, patch model.Patch[S]) model.JobStatus[S] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mergeLocked(id, patch)
}

// Reset replaces the record for id with patch applied to an empty record.
// Starting a new job uses it so nothing from the previous run leaks through.
func (s *Store[S]) Reset(id int64, patch model.Patch[S]) model.JobStatus[S] {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return s.mergeLocked(id, patch)
}

// UpdateIf calls decide with the current record while holding the lock and
// applies the returned patch only when decide reports true.
func (s *Store[S]) UpdateIf(id int64, decide func(cur model.JobStatus[S], exists bool) (model.Patch[S], bool)) (model.JobStatus[S], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, exists := s.records[id]
	patch, ok := decide(cur.Clone(), exists)
	if !ok {
		return cur.Clone(), false
	}
	return s.mergeLocked(id, patch), true
}

// UpdateUnless applies patch unless the record currently has status blocked.
func (s *Store[S]) UpdateUnless(id int64, blocked S, patch model.Patch[S]) (model.JobStatus[S], bool) {
	return s.UpdateIf(id, func(cur model.JobStatus[S], _ bool) (model.Patch[S], bool) {
		return patch, cur.Status != blocked
	})
}

// Get returns a defensive copy of the record for id and whether one exists.
func (s *Store[S]) Get(id int64) (model.JobStatus[S], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	return rec.Clone(), ok
}

func (s *Store[S]) Status(id int64) S {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[id].Status
}

// Snapshot copies every record.
func (s *Store[S]) Snapshot() map[int64]model.JobStatus[S] {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int64]model.JobStatus[S], len(s.records))
	for id, rec := range s.records {
		out[id] = rec.Clone()
	}
	return out
}

func (s *Store[S]) mergeLocked(id int64, patch model.Patch[S]) model.JobStatus[S] {
	rec := s.records[id].Merge(patch)
	rec.UpdatedAt = s.clock.Now().UTC()
	s.records[id] = rec
	return rec.Clone()
}
