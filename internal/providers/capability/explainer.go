// Package capability implements the specialist providers the orchestrator
// routes to: concept explainer, quiz generator and web search. Each one is
// addressed by logical name through the uniform CapabilityProvider contract.
package capability

import (
	"context"
	"fmt"
	"strings"

	"github.com/calebrin/tutorcore/internal/core"
)

const explainerBasePrompt = `You are a patient, encouraging STEM tutor.
Explain concepts step by step in clear language a student can follow.
Prefer short paragraphs and concrete examples. Use markdown sparingly.`

// Explainer is the chat-model-backed concept explainer.
type Explainer struct {
	model core.ChatModel
}

func NewExplainer(model core.ChatModel) *Explainer {
	return &Explainer{model: model}
}

func (e *Explainer) Name() core.Capability {
	return core.CapabilityExplainer
}

func (e *Explainer) Invoke(ctx context.Context, req core.CapabilityRequest) (core.CapabilityResponse, error) {
	var sb strings.Builder
	sb.WriteString(explainerBasePrompt)

	if req.Subject != "" && req.Subject != core.SubjectUnclassified {
		fmt.Fprintf(&sb, "\n\nThe student is asking about %s.", req.Subject)
	}
	if req.Context != "" {
		sb.WriteString("\n\nRecent conversation with this student:\n")
		sb.WriteString(req.Context)
	}
	if req.Evidence != "" {
		sb.WriteString("\n\nUse the following search findings as your primary source. " +
			"Answer in your own words; do not quote them verbatim:\n")
		sb.WriteString(req.Evidence)
	}

	resp, err := e.model.Chat(ctx, []core.ChatMessage{
		{Role: core.RoleSystem, Content: sb.String()},
		{Role: core.RoleUser, Content: req.Query},
	})
	if err != nil {
		return core.CapabilityResponse{}, fmt.Errorf("explainer chat: %w", err)
	}
	if strings.TrimSpace(resp.Content) == "" {
		return core.CapabilityResponse{}, fmt.Errorf("explainer returned empty reply")
	}

	return core.CapabilityResponse{Text: resp.Content}, nil
}
