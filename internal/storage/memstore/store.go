// Package memstore is the in-memory session store used by tests and local
// development. It honors the same atomicity and ordering contract as the
// durable stores: appends are serialized per student, reads return deep
// snapshots.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/calebrin/tutorcore/internal/core"
)

type entry struct {
	mu   sync.Mutex
	sess *core.Session
}

type Store struct {
	mu       sync.RWMutex
	sessions map[string]*entry

	alpha    float64
	baseline float64
}

func New(alpha, baseline float64) *Store {
	return &Store{
		sessions: make(map[string]*entry),
		alpha:    alpha,
		baseline: baseline,
	}
}

// get creates the entry on first access; a new student is never "not found".
func (s *Store) get(studentID string) *entry {
	s.mu.RLock()
	e, ok := s.sessions[studentID]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.sessions[studentID]; ok {
		return e
	}
	e = &entry{sess: core.NewSession(studentID)}
	s.sessions[studentID] = e
	return e
}

func (s *Store) GetSession(ctx context.Context, studentID string) (*core.Session, error) {
	e := s.get(studentID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess.Clone(), nil
}

func (s *Store) AppendTurn(ctx context.Context, studentID string, turn core.Turn) error {
	e := s.get(studentID)
	e.mu.Lock()
	defer e.mu.Unlock()

	e.sess.Turns = append(e.sess.Turns, turn)
	e.sess.LastActive = turn.Timestamp
	return nil
}

func (s *Store) UpdateProficiency(ctx context.Context, studentID string, subject core.Subject, outcome float64) (float64, error) {
	e := s.get(studentID)
	e.mu.Lock()
	defer e.mu.Unlock()

	old, ok := e.sess.Proficiency[subject]
	if !ok {
		old = s.baseline
	}
	estimate := core.ClampUnit(old + s.alpha*(outcome-old))
	e.sess.Proficiency[subject] = estimate
	return estimate, nil
}

func (s *Store) UpdateSummary(ctx context.Context, studentID string, summary string) error {
	e := s.get(studentID)
	e.mu.Lock()
	defer e.mu.Unlock()

	e.sess.Summary = summary
	return nil
}

func (s *Store) ListStudents(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
