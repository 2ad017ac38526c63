// Package redis is the redis-backed session store. Turns live in an
// append-only list per student; proficiency and session fields live in
// hashes. Read-modify-write paths are serialized per student in-process
// with keyed mutexes, matching the contract of the other stores.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/calebrin/tutorcore/internal/core"
	"github.com/calebrin/tutorcore/pkg/kmutex"
	"github.com/redis/go-redis/v9"
)

type Store struct {
	rdb *redis.Client
	km  *kmutex.KMutex

	alpha     float64
	baseline  float64
	turnLimit int
}

func NewStore(rdb *redis.Client, alpha, baseline float64, turnLimit int) *Store {
	if turnLimit <= 0 {
		turnLimit = 50
	}
	return &Store{
		rdb:       rdb,
		km:        kmutex.New(),
		alpha:     alpha,
		baseline:  baseline,
		turnLimit: turnLimit,
	}
}

func studentsKey() string               { return "tutor:students" }
func sessionKey(studentID string) string { return "tutor:session:" + studentID }
func turnsKey(studentID string) string   { return "tutor:turns:" + studentID }
func profKey(studentID string) string    { return "tutor:prof:" + studentID }

func (s *Store) GetSession(ctx context.Context, studentID string) (*core.Session, error) {
	sess := core.NewSession(studentID)

	fields, err := s.rdb.HGetAll(ctx, sessionKey(studentID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read session hash: %w", err)
	}
	sess.Summary = fields["summary"]
	if raw, ok := fields["last_active"]; ok && raw != "" {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			sess.LastActive = ts
		}
	}

	raws, err := s.rdb.LRange(ctx, turnsKey(studentID), int64(-s.turnLimit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read turns: %w", err)
	}
	for _, raw := range raws {
		var turn core.Turn
		if err := json.Unmarshal([]byte(raw), &turn); err != nil {
			return nil, fmt.Errorf("unmarshal turn: %w", err)
		}
		sess.Turns = append(sess.Turns, turn)
	}

	prof, err := s.rdb.HGetAll(ctx, profKey(studentID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read proficiency: %w", err)
	}
	for subject, raw := range prof {
		estimate, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("parse estimate for %s: %w", subject, err)
		}
		sess.Proficiency[core.Subject(subject)] = estimate
	}

	return sess, nil
}

func (s *Store) AppendTurn(ctx context.Context, studentID string, turn core.Turn) error {
	s.km.Lock(studentID)
	defer s.km.Unlock(studentID)

	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("marshal turn: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.RPush(ctx, turnsKey(studentID), data)
	pipe.HSet(ctx, sessionKey(studentID), "last_active", turn.Timestamp.Format(time.RFC3339Nano))
	pipe.SAdd(ctx, studentsKey(), studentID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

func (s *Store) UpdateProficiency(ctx context.Context, studentID string, subject core.Subject, outcome float64) (float64, error) {
	s.km.Lock(studentID)
	defer s.km.Unlock(studentID)

	old := s.baseline
	raw, err := s.rdb.HGet(ctx, profKey(studentID), string(subject)).Result()
	switch {
	case err == redis.Nil:
		// First graded quiz for this subject: start from the baseline.
	case err != nil:
		return 0, fmt.Errorf("read estimate: %w", err)
	default:
		old, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			return 0, fmt.Errorf("parse estimate: %w", err)
		}
	}

	estimate := core.ClampUnit(old + s.alpha*(outcome-old))

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, profKey(studentID), string(subject), strconv.FormatFloat(estimate, 'f', -1, 64))
	pipe.SAdd(ctx, studentsKey(), studentID)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("write estimate: %w", err)
	}
	return estimate, nil
}

func (s *Store) UpdateSummary(ctx context.Context, studentID string, summary string) error {
	s.km.Lock(studentID)
	defer s.km.Unlock(studentID)

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, sessionKey(studentID), "summary", summary)
	pipe.SAdd(ctx, studentsKey(), studentID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}

func (s *Store) ListStudents(ctx context.Context) ([]string, error) {
	ids, err := s.rdb.SMembers(ctx, studentsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}
