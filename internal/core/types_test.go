package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIntent(t *testing.T) {
	tests := []struct {
		input   string
		want    Intent
		wantErr bool
	}{
		{"explain_concept", IntentExplainConcept, false},
		{"REQUEST_QUIZ", IntentRequestQuiz, false},
		{" lookup_fact ", IntentLookupFact, false},
		{"general_chat", IntentGeneralChat, false},
		{"memory_query", IntentMemoryQuery, false},
		{"greeting", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := ParseIntent(tt.input)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.input)
			continue
		}
		require.NoError(t, err, "input %q", tt.input)
		assert.Equal(t, tt.want, got)
	}
}

func TestParseSubject(t *testing.T) {
	tests := []struct {
		input   string
		want    Subject
		wantErr bool
	}{
		{"math", SubjectMath, false},
		{"Physics", SubjectPhysics, false},
		{"CHEMISTRY", SubjectChemistry, false},
		{"biology", SubjectBiology, false},
		{"unclassified", SubjectUnclassified, false},
		{"geography", "", true},
	}

	for _, tt := range tests {
		got, err := ParseSubject(tt.input)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.input)
			continue
		}
		require.NoError(t, err, "input %q", tt.input)
		assert.Equal(t, tt.want, got)
	}
}

func TestSessionClone(t *testing.T) {
	sess := NewSession("s1")
	sess.Summary = "likes algebra"
	sess.LastActive = time.Now()
	sess.Proficiency[SubjectMath] = 0.4
	sess.Turns = append(sess.Turns, Turn{
		ID:      "t1",
		Intent:  IntentExplainConcept,
		Subject: SubjectMath,
	})

	clone := sess.Clone()
	require.Equal(t, sess, clone)

	// Mutating the clone must not reach the original.
	clone.Proficiency[SubjectMath] = 0.9
	clone.Turns[0].ID = "changed"

	assert.Equal(t, 0.4, sess.Proficiency[SubjectMath])
	assert.Equal(t, "t1", sess.Turns[0].ID)
}

func TestProficiencyOr(t *testing.T) {
	sess := NewSession("s1")
	assert.Equal(t, 0.5, sess.ProficiencyOr(SubjectMath, 0.5))

	sess.Proficiency[SubjectMath] = 0.8
	assert.Equal(t, 0.8, sess.ProficiencyOr(SubjectMath, 0.5))
}

func TestUserMessagesAreDistinct(t *testing.T) {
	errs := []error{
		ErrInvalidInput,
		ErrClassificationUnavailable,
		ErrAmbiguousRouting,
		ErrProviderUnavailable,
		ErrPersistenceFailure,
	}

	seen := make(map[string]struct{})
	for _, err := range errs {
		msg := UserMessage(err)
		require.NotEmpty(t, msg)
		if _, dup := seen[msg]; dup {
			t.Errorf("duplicate user message for %v: %q", err, msg)
		}
		seen[msg] = struct{}{}
	}
}
