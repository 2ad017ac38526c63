package classify

import (
	"context"
	"fmt"
	"strings"

	"github.com/calebrin/tutorcore/internal/core"
	"github.com/calebrin/tutorcore/pkg/log"
)

const subjectInstruction = `You are a Subject Classification Agent for a STEM tutoring assistant.

Read the student's message and classify it into exactly one subject:
"math", "physics", "chemistry", "biology".

If the message does not clearly belong to any of them, use "unclassified".

Output strictly valid JSON (do not wrap in backticks):

{"subject": "string", "confidence": 0.0}

The confidence score is between 0 and 1.`

type SubjectClassifier struct {
	model core.ChatModel

	// Below this confidence the result is demoted to unclassified, which is
	// a valid routing outcome, not a failure.
	threshold float64
}

func NewSubjectClassifier(model core.ChatModel, threshold float64) *SubjectClassifier {
	return &SubjectClassifier{model: model, threshold: threshold}
}

func (c *SubjectClassifier) Classify(ctx context.Context, text string) (core.Subject, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("empty message: %w", core.ErrInvalidInput)
	}

	resp, err := c.model.Chat(ctx, []core.ChatMessage{
		{Role: core.RoleSystem, Content: subjectInstruction},
		{Role: core.RoleUser, Content: text},
	})
	if err != nil {
		return "", fmt.Errorf("subject model: %v: %w", err, core.ErrClassificationUnavailable)
	}

	var parsed struct {
		Subject    string  `json:"subject"`
		Confidence float64 `json:"confidence"`
	}
	if err := decodeStrict(resp.Content, &parsed); err != nil {
		return "", fmt.Errorf("%v: %w", err, core.ErrClassificationUnavailable)
	}

	subject, err := core.ParseSubject(parsed.Subject)
	if err != nil {
		return "", fmt.Errorf("%v: %w", err, core.ErrClassificationUnavailable)
	}

	if parsed.Confidence < c.threshold {
		log.FromCtx(ctx).Debug().
			Str("subject", string(subject)).
			Float64("confidence", parsed.Confidence).
			Msg("subject below confidence threshold, demoting to unclassified")
		return core.SubjectUnclassified, nil
	}

	return subject, nil
}
