package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/calebrin/tutorcore/internal/core"
)

// QuizGenerator is the chat-model-backed quiz provider. Difficulty is
// derived from the student's proficiency estimate by the orchestrator and
// arrives in the request.
type QuizGenerator struct {
	model     core.ChatModel
	questions int
}

func NewQuizGenerator(model core.ChatModel, questions int) *QuizGenerator {
	if questions <= 0 {
		questions = 5
	}
	return &QuizGenerator{model: model, questions: questions}
}

func (q *QuizGenerator) Name() core.Capability {
	return core.CapabilityQuizGen
}

// difficultyBand maps a [0,1] proficiency estimate onto a difficulty label.
func difficultyBand(estimate float64) string {
	switch {
	case estimate < 0.35:
		return "easy"
	case estimate < 0.7:
		return "medium"
	default:
		return "hard"
	}
}

func (q *QuizGenerator) Invoke(ctx context.Context, req core.CapabilityRequest) (core.CapabilityResponse, error) {
	band := difficultyBand(req.Difficulty)

	system := fmt.Sprintf(`You are a quiz generation agent for a STEM tutoring assistant.

Produce exactly %d multiple-choice questions on the subject %q at %s difficulty.
Base the questions on the student's request.

Output strictly a valid JSON array (do not wrap in backticks) of objects:

[{"question": "string", "choices": ["A...", "B...", "C...", "D..."], "answer": "string"}]

Each "answer" must be one of that question's choices.`, q.questions, req.Subject, band)

	resp, err := q.model.Chat(ctx, []core.ChatMessage{
		{Role: core.RoleSystem, Content: system},
		{Role: core.RoleUser, Content: req.Query},
	})
	if err != nil {
		return core.CapabilityResponse{}, fmt.Errorf("quiz chat: %w", err)
	}

	items, err := parseQuizItems(resp.Content)
	if err != nil {
		// Never return a partial quiz.
		return core.CapabilityResponse{}, fmt.Errorf("quiz output malformed: %w", err)
	}

	return core.CapabilityResponse{
		Text:      fmt.Sprintf("Here is your %s %s quiz (%d questions). Good luck!", band, req.Subject, len(items)),
		QuizItems: items,
	}, nil
}

func parseQuizItems(raw string) ([]core.QuizItem, error) {
	jsonStr := extractJSONArray(raw)
	if jsonStr == "" {
		return nil, fmt.Errorf("no JSON array found in response")
	}

	var items []core.QuizItem
	if err := json.Unmarshal([]byte(jsonStr), &items); err != nil {
		return nil, fmt.Errorf("unmarshal quiz items: %w", err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("empty quiz")
	}

	for i, item := range items {
		if strings.TrimSpace(item.Question) == "" {
			return nil, fmt.Errorf("question %d is empty", i+1)
		}
		if len(item.Choices) < 2 {
			return nil, fmt.Errorf("question %d has %d choices", i+1, len(item.Choices))
		}
		found := false
		for _, c := range item.Choices {
			if c == item.Answer {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("question %d answer not among choices", i+1)
		}
	}

	return items, nil
}

func extractJSONArray(content string) string {
	start := strings.Index(content, "[")
	if start == -1 {
		return ""
	}

	end := strings.LastIndex(content[start:], "]")
	if end == -1 {
		return ""
	}

	return content[start : start+end+1]
}
