package tutor

import (
	"fmt"
	"sort"
	"strings"

	"github.com/calebrin/tutorcore/internal/core"
)

// summarizeRecent formats the newest n turns as short student/tutor lines,
// oldest first.
func summarizeRecent(sess *core.Session, n int) string {
	turns := sess.Turns
	if len(turns) > n {
		turns = turns[len(turns)-n:]
	}

	var sb strings.Builder
	for _, turn := range turns {
		fmt.Fprintf(&sb, "student: %s\n", turn.Message.Text)
		if turn.Response.Text != "" {
			fmt.Fprintf(&sb, "tutor: %s\n", firstLine(turn.Response.Text))
		}
	}
	return strings.TrimSpace(sb.String())
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// memoryRecap answers a memory query from session state alone.
func memoryRecap(sess *core.Session) string {
	if len(sess.Turns) == 0 && sess.Summary == "" && len(sess.Proficiency) == 0 {
		return "We haven't studied anything together yet. Ask me to explain a topic or quiz you to get started!"
	}

	var sb strings.Builder
	sb.WriteString("Here's what I remember about our work together:\n")

	if sess.Summary != "" {
		fmt.Fprintf(&sb, "\n%s\n", sess.Summary)
	}

	if recent := summarizeRecent(sess, 5); recent != "" {
		sb.WriteString("\nRecently:\n")
		sb.WriteString(recent)
		sb.WriteString("\n")
	}

	if len(sess.Proficiency) > 0 {
		subjects := make([]core.Subject, 0, len(sess.Proficiency))
		for subject := range sess.Proficiency {
			subjects = append(subjects, subject)
		}
		sort.Slice(subjects, func(i, j int) bool { return subjects[i] < subjects[j] })

		sb.WriteString("\nYour current levels:\n")
		for _, subject := range subjects {
			fmt.Fprintf(&sb, "- %s: %.0f%%\n", subject, sess.Proficiency[subject]*100)
		}
	}

	return strings.TrimSpace(sb.String())
}

// buildContext assembles prior-turn context for provider calls, keeping the
// newest turns that fit the token budget.
func (t *Tutor) buildContext(sess *core.Session) string {
	if len(sess.Turns) == 0 {
		return ""
	}

	budget := t.cfg.ContextTokenBudget
	var kept []string
	for i := len(sess.Turns) - 1; i >= 0; i-- {
		turn := sess.Turns[i]
		line := fmt.Sprintf("student: %s\ntutor: %s", turn.Message.Text, firstLine(turn.Response.Text))

		cost := t.tokens(line)
		if cost > budget {
			break
		}
		budget -= cost
		kept = append(kept, line)
	}

	// kept is newest first; reverse back to chronological.
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	return strings.Join(kept, "\n")
}
