package core

import "errors"

var (
	// ErrInvalidInput marks a malformed or empty message, rejected before
	// classification.
	ErrInvalidInput = errors.New("invalid input")

	// ErrClassificationUnavailable marks a classifier backend failure. The
	// classifier never guesses; callers decide the fallback.
	ErrClassificationUnavailable = errors.New("classification unavailable")

	// ErrAmbiguousRouting marks a quiz request with no resolvable subject.
	ErrAmbiguousRouting = errors.New("ambiguous routing")

	// ErrProviderUnavailable marks a provider timeout or provider-side failure.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrPersistenceFailure marks a session store failure. Fatal to the
	// request: success is never reported when the turn did not persist.
	ErrPersistenceFailure = errors.New("persistence failure")
)

// UserMessage maps an error to the human-readable reply surfaced to the
// student. Never exposes internal diagnostics.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return "I didn't catch that. Please type a question or request."
	case errors.Is(err, ErrAmbiguousRouting):
		return "I'd love to quiz you! Which subject should it cover: math, physics, chemistry or biology?"
	case errors.Is(err, ErrClassificationUnavailable):
		return "I'm having trouble understanding requests right now. Please try again in a moment."
	case errors.Is(err, ErrProviderUnavailable):
		return "My study tools are briefly unavailable. Please try again shortly."
	case errors.Is(err, ErrPersistenceFailure):
		return "I couldn't save our conversation just now. Please resend your message."
	}
	return "Something went wrong on my side. Please try again."
}
