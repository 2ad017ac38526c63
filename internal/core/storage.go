package core

import "context"

// SessionStore persists per-student conversation state.
//
// GetSession creates an empty session on first access; there is no "not
// found" for a new student. AppendTurn is atomic per student: concurrent
// appends for one student never interleave or lose a turn, while different
// students require no coordination. Proficiency is mutated only through
// UpdateProficiency.
type SessionStore interface {
	GetSession(ctx context.Context, studentID string) (*Session, error)
	AppendTurn(ctx context.Context, studentID string, turn Turn) error
	UpdateProficiency(ctx context.Context, studentID string, subject Subject, outcome float64) (float64, error)
	UpdateSummary(ctx context.Context, studentID string, summary string) error
	ListStudents(ctx context.Context) ([]string, error)
}

// ClampUnit clamps v to [0,1].
func ClampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
