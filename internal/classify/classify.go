// Package classify maps raw student utterances onto the intent and subject
// enums through a chat model instructed to emit strict JSON.
package classify

import (
	"encoding/json"
	"fmt"
	"strings"
)

// stripFences tolerates models that wrap JSON in markdown code fences
// despite being told not to.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

func decodeStrict(raw string, v any) error {
	cleaned := stripFences(raw)
	if cleaned == "" {
		return fmt.Errorf("empty classifier output")
	}
	if err := json.Unmarshal([]byte(cleaned), v); err != nil {
		return fmt.Errorf("decode classifier output: %w", err)
	}
	return nil
}
