package classify

import (
	"context"
	"fmt"
	"strings"

	"github.com/calebrin/tutorcore/internal/core"
	"github.com/calebrin/tutorcore/pkg/log"
)

const intentInstruction = `You are an Intent Classification Agent for a STEM tutoring assistant.

Given a student's message, classify it into ONE of the following intents:

1. "explain_concept"
   - any request to explain, teach or help understand a topic:
     "explain gravity", "help me understand algebra", "what is photosynthesis?"

2. "request_quiz"
   - the student explicitly wants to be tested:
     "test me", "give me a quiz", "practice questions", "start MCQs"

3. "lookup_fact"
   - a question about a current or specific real-world fact that needs
     fresh information: "who won the Nobel prize in physics this year?"

4. "memory_query"
   - the student asks about their own history or progress:
     "what did we study last time?", "how am I doing in math?"

5. "general_chat"
   - greetings, small talk and anything that fits none of the above

Output strictly valid JSON (do not wrap in backticks):

{"intent": "string", "confidence": 0.0}

The confidence score is between 0 and 1.`

type IntentClassifier struct {
	model core.ChatModel
}

func NewIntentClassifier(model core.ChatModel) *IntentClassifier {
	return &IntentClassifier{model: model}
}

// Classify returns exactly one intent for non-empty text. It never guesses:
// backend or parse failures surface as ErrClassificationUnavailable and the
// caller decides the fallback.
func (c *IntentClassifier) Classify(ctx context.Context, text string) (core.Intent, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("empty message: %w", core.ErrInvalidInput)
	}

	resp, err := c.model.Chat(ctx, []core.ChatMessage{
		{Role: core.RoleSystem, Content: intentInstruction},
		{Role: core.RoleUser, Content: text},
	})
	if err != nil {
		return "", fmt.Errorf("intent model: %v: %w", err, core.ErrClassificationUnavailable)
	}

	var parsed struct {
		Intent     string  `json:"intent"`
		Confidence float64 `json:"confidence"`
	}
	if err := decodeStrict(resp.Content, &parsed); err != nil {
		return "", fmt.Errorf("%v: %w", err, core.ErrClassificationUnavailable)
	}

	intent, err := core.ParseIntent(parsed.Intent)
	if err != nil {
		return "", fmt.Errorf("%v: %w", err, core.ErrClassificationUnavailable)
	}

	log.FromCtx(ctx).Debug().
		Str("intent", string(intent)).
		Float64("confidence", parsed.Confidence).
		Msg("intent classified")

	return intent, nil
}
