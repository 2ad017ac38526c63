package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/calebrin/tutorcore/internal/core"
	"github.com/calebrin/tutorcore/pkg/kmutex"
	"github.com/calebrin/tutorcore/pkg/log"
)

// Store is the sqlite-backed session store. Appends are serialized per
// student with keyed mutexes on top of per-turn transactions, so concurrent
// requests for one student never interleave while different students stay
// parallel.
type Store struct {
	db *sql.DB
	km *kmutex.KMutex

	alpha     float64
	baseline  float64
	turnLimit int
}

func NewStore(db *sql.DB, alpha, baseline float64, turnLimit int) *Store {
	if turnLimit <= 0 {
		turnLimit = 50
	}
	return &Store{
		db:        db,
		km:        kmutex.New(),
		alpha:     alpha,
		baseline:  baseline,
		turnLimit: turnLimit,
	}
}

func (s *Store) GetSession(ctx context.Context, studentID string) (*core.Session, error) {
	sess := core.NewSession(studentID)

	var summary sql.NullString
	var lastActive sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT summary, last_active FROM sessions WHERE student_id = ?`, studentID,
	).Scan(&summary, &lastActive)
	switch {
	case err == sql.ErrNoRows:
		// New student: empty session, no error.
		return sess, nil
	case err != nil:
		return nil, fmt.Errorf("query session: %w", err)
	}
	sess.Summary = summary.String
	if lastActive.Valid {
		sess.LastActive = lastActive.Time
	}

	turns, err := s.recentTurns(ctx, studentID)
	if err != nil {
		return nil, err
	}
	sess.Turns = turns

	rows, err := s.db.QueryContext(ctx,
		`SELECT subject, estimate FROM proficiency WHERE student_id = ?`, studentID)
	if err != nil {
		return nil, fmt.Errorf("query proficiency: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var subject string
		var estimate float64
		if err := rows.Scan(&subject, &estimate); err != nil {
			return nil, fmt.Errorf("scan proficiency: %w", err)
		}
		sess.Proficiency[core.Subject(subject)] = estimate
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sess, nil
}

func (s *Store) recentTurns(ctx context.Context, studentID string) ([]core.Turn, error) {
	// Fetch the LAST 'limit' turns by ordering DESC on insertion order
	query := `SELECT id, message_id, message_text, intent, subject, response, message_ts, created_at
		FROM turns WHERE student_id = ? ORDER BY rowid DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, studentID, s.turnLimit)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var turns []core.Turn
	for rows.Next() {
		var t core.Turn
		var responseJSON string
		var messageTS, createdAt time.Time

		if err := rows.Scan(&t.ID, &t.Message.ID, &t.Message.Text, &t.Intent, &t.Subject,
			&responseJSON, &messageTS, &createdAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		t.Message.StudentID = studentID
		t.Message.Timestamp = messageTS
		t.Timestamp = createdAt

		if responseJSON != "" {
			if err := json.Unmarshal([]byte(responseJSON), &t.Response); err != nil {
				return nil, fmt.Errorf("unmarshal response: %w", err)
			}
		}

		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// The query returned turns newest first; reverse back to chronological.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}

	log.FromCtx(ctx).Debug().Int("count", len(turns)).Msg("loaded session turns")
	return turns, nil
}

func (s *Store) AppendTurn(ctx context.Context, studentID string, turn core.Turn) error {
	s.km.Lock(studentID)
	defer s.km.Unlock(studentID)

	responseJSON, err := json.Marshal(turn.Response)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO turns (id, student_id, message_id, message_text, intent, subject, response, message_ts, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		turn.ID, studentID, turn.Message.ID, turn.Message.Text, string(turn.Intent), string(turn.Subject),
		string(responseJSON), turn.Message.Timestamp, turn.Timestamp)
	if err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (student_id, last_active) VALUES (?, ?)
		 ON CONFLICT (student_id) DO UPDATE SET last_active = excluded.last_active`,
		studentID, turn.Timestamp)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}

	return tx.Commit()
}

func (s *Store) UpdateProficiency(ctx context.Context, studentID string, subject core.Subject, outcome float64) (float64, error) {
	s.km.Lock(studentID)
	defer s.km.Unlock(studentID)

	old := s.baseline
	err := s.db.QueryRowContext(ctx,
		`SELECT estimate FROM proficiency WHERE student_id = ? AND subject = ?`,
		studentID, string(subject)).Scan(&old)
	if err != nil && err != sql.ErrNoRows {
		return 0, fmt.Errorf("query estimate: %w", err)
	}

	estimate := core.ClampUnit(old + s.alpha*(outcome-old))

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO proficiency (student_id, subject, estimate) VALUES (?, ?, ?)
		 ON CONFLICT (student_id, subject) DO UPDATE SET estimate = excluded.estimate`,
		studentID, string(subject), estimate)
	if err != nil {
		return 0, fmt.Errorf("upsert estimate: %w", err)
	}

	return estimate, nil
}

func (s *Store) UpdateSummary(ctx context.Context, studentID string, summary string) error {
	s.km.Lock(studentID)
	defer s.km.Unlock(studentID)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (student_id, summary) VALUES (?, ?)
		 ON CONFLICT (student_id) DO UPDATE SET summary = excluded.summary`,
		studentID, summary)
	if err != nil {
		return fmt.Errorf("update summary: %w", err)
	}
	return nil
}

func (s *Store) ListStudents(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT student_id FROM sessions ORDER BY student_id`)
	if err != nil {
		return nil, fmt.Errorf("query students: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
