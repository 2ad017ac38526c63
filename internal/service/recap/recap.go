// Package recap periodically condenses each student's recent conversation
// into a short long-term summary, so memory queries and welcome messages
// stay useful as sessions grow.
package recap

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/calebrin/tutorcore/internal/core"
	"github.com/calebrin/tutorcore/pkg/log"
)

const (
	defaultInterval = 30 * time.Minute
	defaultMinTurns = 4
	maxTurnsPerRun  = 40
)

type Service struct {
	model    core.ChatModel
	store    core.SessionStore
	Interval time.Duration
	MinTurns int
}

func New(model core.ChatModel, store core.SessionStore) *Service {
	return &Service{
		model:    model,
		store:    store,
		Interval: defaultInterval,
		MinTurns: defaultMinTurns,
	}
}

func (s *Service) Start(ctx context.Context) error {
	logger := log.FromCtx(ctx)
	logger.Info().Msg("starting session recap service")

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.processAll(ctx); err != nil {
				logger.Error().Err(err).Msg("recap pass failed")
			}
		}
	}
}

func (s *Service) Shutdown(ctx context.Context) error {
	return nil
}

// processAll summarizes every student with enough history. Per-student
// failures are logged and skipped; one broken session must not starve the
// rest.
func (s *Service) processAll(ctx context.Context) error {
	students, err := s.store.ListStudents(ctx)
	if err != nil {
		return fmt.Errorf("list students: %w", err)
	}

	logger := log.FromCtx(ctx)
	for _, id := range students {
		if err := s.processStudent(ctx, id); err != nil {
			logger.Warn().Err(err).Str("student", id).Msg("recap skipped")
		}
		if ctx.Err() != nil {
			return nil
		}
	}
	return nil
}

func (s *Service) processStudent(ctx context.Context, studentID string) error {
	sess, err := s.store.GetSession(ctx, studentID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if len(sess.Turns) < s.MinTurns {
		return nil
	}

	summary, err := s.summarize(ctx, sess)
	if err != nil {
		return fmt.Errorf("summarize: %w", err)
	}
	if summary == "" {
		return nil
	}

	if err := s.store.UpdateSummary(ctx, studentID, summary); err != nil {
		return fmt.Errorf("store summary: %w", err)
	}

	log.FromCtx(ctx).Info().Str("student", studentID).Msg("session summary refreshed")
	return nil
}

func (s *Service) summarize(ctx context.Context, sess *core.Session) (string, error) {
	resp, err := s.model.Chat(ctx, []core.ChatMessage{
		{Role: core.RoleSystem, Content: "You summarize tutoring sessions. Output plain prose only."},
		{Role: core.RoleUser, Content: buildRecapPrompt(sess)},
	})
	if err != nil {
		return "", fmt.Errorf("llm chat: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}

func buildRecapPrompt(sess *core.Session) string {
	var b strings.Builder

	if sess.Summary != "" {
		fmt.Fprintf(&b, "Existing summary of this student:\n%s\n\n", sess.Summary)
	}

	turns := sess.Turns
	if len(turns) > maxTurnsPerRun {
		turns = turns[len(turns)-maxTurnsPerRun:]
	}

	b.WriteString("Recent conversation:\n")
	for _, turn := range turns {
		fmt.Fprintf(&b, "STUDENT: %s\n", turn.Message.Text)
		if turn.Response.Text != "" {
			fmt.Fprintf(&b, "TUTOR: %s\n", turn.Response.Text)
		}
	}

	b.WriteString("\nRewrite the student's long-term summary: which topics they studied, " +
		"what they struggled with and what they have mastered. " +
		"At most 5 sentences. Merge the existing summary with the new conversation; " +
		"drop nothing that is still relevant.")
	return b.String()
}
