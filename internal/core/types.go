package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	AppName       = "TutorCore"
	AppUserAgent  = "TutorCore-Agent/0.1"
	RepositoryURL = "https://github.com/calebrin/tutorcore"
	AppVersion    = "0.1.0"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Intent is the classified purpose of a student message.
type Intent string

const (
	IntentExplainConcept Intent = "explain_concept"
	IntentRequestQuiz    Intent = "request_quiz"
	IntentLookupFact     Intent = "lookup_fact"
	IntentGeneralChat    Intent = "general_chat"
	IntentMemoryQuery    Intent = "memory_query"
)

func ParseIntent(s string) (Intent, error) {
	switch Intent(strings.ToLower(strings.TrimSpace(s))) {
	case IntentExplainConcept:
		return IntentExplainConcept, nil
	case IntentRequestQuiz:
		return IntentRequestQuiz, nil
	case IntentLookupFact:
		return IntentLookupFact, nil
	case IntentGeneralChat:
		return IntentGeneralChat, nil
	case IntentMemoryQuery:
		return IntentMemoryQuery, nil
	}
	return "", fmt.Errorf("unknown intent: %q", s)
}

// Subject is the STEM discipline tag used to parameterize specialists.
// Unclassified is a valid terminal value, not an error.
type Subject string

const (
	SubjectMath         Subject = "math"
	SubjectPhysics      Subject = "physics"
	SubjectChemistry    Subject = "chemistry"
	SubjectBiology      Subject = "biology"
	SubjectUnclassified Subject = "unclassified"
)

func ParseSubject(s string) (Subject, error) {
	switch Subject(strings.ToLower(strings.TrimSpace(s))) {
	case SubjectMath:
		return SubjectMath, nil
	case SubjectPhysics:
		return SubjectPhysics, nil
	case SubjectChemistry:
		return SubjectChemistry, nil
	case SubjectBiology:
		return SubjectBiology, nil
	case SubjectUnclassified:
		return SubjectUnclassified, nil
	}
	return "", fmt.Errorf("unknown subject: %q", s)
}

// Message is one student utterance. Immutable once created.
type Message struct {
	ID        string    `json:"id"`
	StudentID string    `json:"student_id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatMessage is one entry of a chat-completion conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Capability is the logical name a provider is addressed by.
type Capability string

const (
	CapabilityExplainer Capability = "explainer"
	CapabilityQuizGen   Capability = "quizgen"
	CapabilityWebSearch Capability = "websearch"
)

func ParseCapability(s string) (Capability, error) {
	switch Capability(strings.ToLower(strings.TrimSpace(s))) {
	case CapabilityExplainer:
		return CapabilityExplainer, nil
	case CapabilityQuizGen:
		return CapabilityQuizGen, nil
	case CapabilityWebSearch:
		return CapabilityWebSearch, nil
	}
	return "", fmt.Errorf("unknown capability: %q", s)
}

// CapabilityRequest is the uniform payload sent to every provider.
type CapabilityRequest struct {
	Capability Capability `json:"capability"`
	Query      string     `json:"query"`
	Subject    Subject    `json:"subject"`
	Difficulty float64    `json:"difficulty,omitempty"`
	// Context carries prior-turn conversation, Evidence carries output of an
	// earlier provider in the same request (search results for the explainer).
	Context  string `json:"context,omitempty"`
	Evidence string `json:"evidence,omitempty"`
}

type Citation struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

type QuizItem struct {
	Question string   `json:"question"`
	Choices  []string `json:"choices"`
	Answer   string   `json:"answer"`
}

// CapabilityResponse is the uniform provider result. Exactly one Text is
// canonical per request; earlier providers contribute Citations only.
type CapabilityResponse struct {
	Text      string     `json:"text"`
	Citations []Citation `json:"citations,omitempty"`
	QuizItems []QuizItem `json:"quiz_items,omitempty"`
	Outcome   *float64   `json:"outcome,omitempty"`
	Degraded  bool       `json:"degraded,omitempty"`
}

// Turn is one immutable record of a message, its classification and the
// resulting response. Turns are append-only; none is ever edited or removed.
type Turn struct {
	ID        string             `json:"id"`
	Message   Message            `json:"message"`
	Intent    Intent             `json:"intent"`
	Subject   Subject            `json:"subject"`
	Response  CapabilityResponse `json:"response"`
	Timestamp time.Time          `json:"timestamp"`
}

// Session is the per-student conversation state. Owned exclusively by the
// session store and mutated only through its operations.
type Session struct {
	StudentID   string              `json:"student_id"`
	Turns       []Turn              `json:"turns"`
	Proficiency map[Subject]float64 `json:"proficiency"`
	Summary     string              `json:"summary,omitempty"`
	LastActive  time.Time           `json:"last_active"`
}

func NewSession(studentID string) *Session {
	return &Session{
		StudentID:   studentID,
		Proficiency: make(map[Subject]float64),
	}
}

// Clone returns a deep snapshot so callers never observe store-internal
// mutation between reads.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := &Session{
		StudentID:   s.StudentID,
		Summary:     s.Summary,
		LastActive:  s.LastActive,
		Proficiency: make(map[Subject]float64, len(s.Proficiency)),
	}
	if len(s.Turns) > 0 {
		out.Turns = make([]Turn, len(s.Turns))
		copy(out.Turns, s.Turns)
	}
	for k, v := range s.Proficiency {
		out.Proficiency[k] = v
	}
	return out
}

// ProficiencyOr returns the stored estimate for subject, or fallback when the
// student has no graded quiz history for it.
func (s *Session) ProficiencyOr(subject Subject, fallback float64) float64 {
	if v, ok := s.Proficiency[subject]; ok {
		return v
	}
	return fallback
}
