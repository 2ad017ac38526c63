package core

import "context"

// ChatModel is a chat-completion backend used by classifiers and the
// model-backed capability providers.
type ChatModel interface {
	Chat(ctx context.Context, history []ChatMessage) (ChatMessage, error)
}

// CapabilityProvider is a pluggable specialist addressed by logical name.
// Providers are stateless with respect to the core: all session context
// arrives in the request.
type CapabilityProvider interface {
	Name() Capability
	Invoke(ctx context.Context, req CapabilityRequest) (CapabilityResponse, error)
}
