// Package tutor is the orchestrator: it classifies each student message,
// routes it to capability providers, merges their output into exactly one
// reply and appends the turn to the student's session.
package tutor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/calebrin/tutorcore/internal/core"
	"github.com/calebrin/tutorcore/internal/metrics"
	"github.com/calebrin/tutorcore/pkg/log"
	"github.com/calebrin/tutorcore/pkg/retry"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

const degradedText = "I'm having a little trouble with my study tools right now, " +
	"but I'm still here. Please try that again in a moment."

type IntentClassifier interface {
	Classify(ctx context.Context, text string) (core.Intent, error)
}

type SubjectClassifier interface {
	Classify(ctx context.Context, text string) (core.Subject, error)
}

type ProviderRegistry interface {
	Get(name core.Capability) (core.CapabilityProvider, error)
}

// Reply is the synchronous result returned to the caller, always paired
// with a persisted turn.
type Reply struct {
	Text      string
	Intent    core.Intent
	Subject   core.Subject
	Citations []core.Citation
	QuizItems []core.QuizItem
	Degraded  bool
}

// Config carries the orchestration tunables, supplied at construction and
// never read ad hoc mid-request.
type Config struct {
	ProviderTimeout     time.Duration
	BaselineProficiency float64
	ContextTokenBudget  int
	RetryAttempts       int
	RetryInitialDelay   time.Duration
}

type Tutor struct {
	intents  IntentClassifier
	subjects SubjectClassifier
	registry ProviderRegistry
	store    core.SessionStore
	retrier  *retry.Retrier
	cfg      Config
	tokens   TokenCounter
}

func NewTutor(
	intents IntentClassifier,
	subjects SubjectClassifier,
	registry ProviderRegistry,
	store core.SessionStore,
	cfg Config,
) *Tutor {
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = 30 * time.Second
	}
	if cfg.ContextTokenBudget <= 0 {
		cfg.ContextTokenBudget = 1024
	}
	if cfg.RetryInitialDelay <= 0 {
		cfg.RetryInitialDelay = time.Second
	}

	return &Tutor{
		intents:  intents,
		subjects: subjects,
		registry: registry,
		store:    store,
		retrier: retry.NewRetrier(&retry.Config{
			MaxRetries:    cfg.RetryAttempts,
			BackoffFactor: 2,
			InitialDelay:  cfg.RetryInitialDelay,
			MaxDelay:      10 * time.Second,
			Jitter:        50 * time.Millisecond,
		}),
		cfg:    cfg,
		tokens: defaultTokenCounter(),
	}
}

// Respond handles one student message end to end. A turn is persisted if
// and only if a reply is returned: persistence failures surface as errors,
// never as silent success.
func (t *Tutor) Respond(ctx context.Context, studentID, text string) (*Reply, error) {
	reply, tr, err := t.respond(ctx, studentID, text)

	intent := "unknown"
	if reply != nil {
		intent = string(reply.Intent)
	}
	switch {
	case err != nil:
		metrics.RequestCount.WithLabelValues(intent, "failed").Inc()
	case reply.Degraded:
		metrics.RequestCount.WithLabelValues(intent, "degraded").Inc()
	default:
		metrics.RequestCount.WithLabelValues(intent, "completed").Inc()
	}

	log.FromCtx(ctx).Debug().
		Str("student", studentID).
		Str("state", string(tr.last())).
		Msg("request finished")

	return reply, err
}

func (t *Tutor) respond(ctx context.Context, studentID, text string) (*Reply, *trace, error) {
	logger := log.FromCtx(ctx)
	tr := newTrace()

	text = strings.TrimSpace(text)
	if studentID == "" || text == "" {
		tr.to(StateFailed)
		return nil, tr, fmt.Errorf("empty student id or message: %w", core.ErrInvalidInput)
	}

	msg := core.Message{
		ID:        uuid.NewString(),
		StudentID: studentID,
		Text:      text,
		Timestamp: time.Now(),
	}

	intent, subject, err := t.classify(ctx, text)
	if err != nil {
		if errors.Is(err, core.ErrInvalidInput) {
			tr.to(StateFailed)
			return nil, tr, err
		}
		// Classification stayed down after the retry: degrade instead of
		// failing so the student still gets a reply.
		logger.Warn().Err(err).Str("student", studentID).Msg("classification degraded")
		tr.to(StateClassified)
		reply, derr := t.finishDegraded(ctx, tr, msg, core.IntentGeneralChat, core.SubjectUnclassified)
		return reply, tr, derr
	}
	tr.to(StateClassified)

	logger.Info().
		Str("student", studentID).
		Str("intent", string(intent)).
		Str("subject", string(subject)).
		Msg("message classified")

	// A quiz needs a subject; guessing one would corrupt the learning
	// analytics, so this is caller-correctable, not a silent default.
	if intent == core.IntentRequestQuiz && subject == core.SubjectUnclassified {
		tr.to(StateFailed)
		return nil, tr, fmt.Errorf("quiz request without a resolvable subject: %w", core.ErrAmbiguousRouting)
	}

	sess, err := t.store.GetSession(ctx, studentID)
	if err != nil {
		tr.to(StateFailed)
		return nil, tr, fmt.Errorf("load session: %v: %w", err, core.ErrPersistenceFailure)
	}

	steps := buildPlan(intent)
	tr.to(StateProviderSelected)

	if intent == core.IntentMemoryQuery {
		// Store read only; no provider is invoked.
		final := core.CapabilityResponse{Text: memoryRecap(sess)}
		tr.to(StateMerged)
		return t.finish(ctx, tr, msg, intent, subject, final)
	}

	req := core.CapabilityRequest{
		Query:   text,
		Subject: subject,
		Context: t.buildContext(sess),
	}
	if intent == core.IntentRequestQuiz {
		req.Difficulty = sess.ProficiencyOr(subject, t.cfg.BaselineProficiency)
	}

	var final core.CapabilityResponse
	var citations []core.Citation
	for i, st := range steps {
		provider, err := t.registry.Get(st.capability)
		if err != nil {
			tr.to(StateFailed)
			return nil, tr, fmt.Errorf("%v: %w", err, core.ErrProviderUnavailable)
		}

		req.Capability = st.capability
		resp, err := t.invoke(ctx, provider, req)
		if err != nil {
			logger.Warn().Err(err).
				Str("student", studentID).
				Str("capability", string(st.capability)).
				Msg("provider degraded after retry")
			reply, derr := t.finishDegraded(ctx, tr, msg, intent, subject)
			return reply, tr, derr
		}
		tr.to(StateProviderInvoked)

		if i < len(steps)-1 {
			// Earlier providers feed the next step and contribute citations
			// only; their prose never reaches the final reply verbatim.
			req.Evidence = resp.Text
			citations = append(citations, resp.Citations...)
			continue
		}
		final = resp
	}

	// The last provider's text is canonical.
	final.Citations = append(citations, final.Citations...)
	tr.to(StateMerged)

	return t.finish(ctx, tr, msg, intent, subject, final)
}

// classify runs intent and subject classification concurrently; they have
// no data dependency. Each goes through the retrier once.
func (t *Tutor) classify(ctx context.Context, text string) (core.Intent, core.Subject, error) {
	var (
		wg      sync.WaitGroup
		intent  core.Intent
		subject core.Subject
		ierr    error
		serr    error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		ierr = t.retrier.Do(ctx, func() error {
			var err error
			intent, err = t.intents.Classify(ctx, text)
			return err
		})
	}()
	go func() {
		defer wg.Done()
		serr = t.retrier.Do(ctx, func() error {
			var err error
			subject, err = t.subjects.Classify(ctx, text)
			return err
		})
	}()
	wg.Wait()

	for _, err := range []error{ierr, serr} {
		if err == nil {
			continue
		}
		if errors.Is(err, core.ErrInvalidInput) {
			return "", "", err
		}
		return "", "", fmt.Errorf("classify: %w", err)
	}
	return intent, subject, nil
}

// invoke calls one provider under the per-invocation timeout. The result
// channel is buffered so a late result from a timed-out call is discarded,
// never merged into a request that has already moved on.
func (t *Tutor) invoke(ctx context.Context, p core.CapabilityProvider, req core.CapabilityRequest) (core.CapabilityResponse, error) {
	name := string(p.Name())

	var out core.CapabilityResponse
	err := t.retrier.Do(ctx, func() error {
		cctx, cancel := context.WithTimeout(ctx, t.cfg.ProviderTimeout)
		defer cancel()

		type result struct {
			resp core.CapabilityResponse
			err  error
		}
		ch := make(chan result, 1)

		start := time.Now()
		go func() {
			resp, err := p.Invoke(cctx, req)
			ch <- result{resp: resp, err: err}
		}()

		select {
		case <-cctx.Done():
			metrics.ProviderCalls.WithLabelValues(name, "timeout").Inc()
			return fmt.Errorf("%s timed out: %w", name, core.ErrProviderUnavailable)
		case r := <-ch:
			metrics.ProviderLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())
			if r.err != nil {
				metrics.ProviderCalls.WithLabelValues(name, "error").Inc()
				return fmt.Errorf("%s: %v: %w", name, r.err, core.ErrProviderUnavailable)
			}
			metrics.ProviderCalls.WithLabelValues(name, "ok").Inc()
			out = r.resp
			return nil
		}
	})
	if err != nil {
		return core.CapabilityResponse{}, err
	}
	return out, nil
}

// finish persists the turn and returns the reply. Write-then-return: no
// reply is ever acknowledged for a turn that failed to persist.
func (t *Tutor) finish(ctx context.Context, tr *trace, msg core.Message, intent core.Intent, subject core.Subject, final core.CapabilityResponse) (*Reply, *trace, error) {
	if err := t.appendTurn(ctx, msg, intent, subject, final); err != nil {
		tr.to(StateFailed)
		return nil, tr, err
	}
	tr.to(StatePersisted)
	tr.to(StateCompleted)

	return &Reply{
		Text:      final.Text,
		Intent:    intent,
		Subject:   subject,
		Citations: final.Citations,
		QuizItems: final.QuizItems,
		Degraded:  final.Degraded,
	}, tr, nil
}

// finishDegraded records a degraded turn with placeholder metadata and
// returns the generic acknowledgement, so the student always gets a reply.
func (t *Tutor) finishDegraded(ctx context.Context, tr *trace, msg core.Message, intent core.Intent, subject core.Subject) (*Reply, error) {
	final := core.CapabilityResponse{Text: degradedText, Degraded: true}

	if err := t.appendTurn(ctx, msg, intent, subject, final); err != nil {
		tr.to(StateFailed)
		return nil, err
	}
	tr.to(StatePersisted)
	tr.to(StateCompleted)
	metrics.DegradedReplies.Inc()

	return &Reply{
		Text:     degradedText,
		Intent:   intent,
		Subject:  subject,
		Degraded: true,
	}, nil
}

func (t *Tutor) appendTurn(ctx context.Context, msg core.Message, intent core.Intent, subject core.Subject, resp core.CapabilityResponse) error {
	turn := core.Turn{
		ID:        ulid.Make().String(),
		Message:   msg,
		Intent:    intent,
		Subject:   subject,
		Response:  resp,
		Timestamp: time.Now(),
	}
	if err := t.store.AppendTurn(ctx, msg.StudentID, turn); err != nil {
		return fmt.Errorf("append turn: %v: %w", err, core.ErrPersistenceFailure)
	}
	metrics.TurnsAppended.Inc()
	return nil
}

// RecordQuizOutcome stores a graded quiz result. It is the only path that
// mutates proficiency; grading itself happens outside the core.
func (t *Tutor) RecordQuizOutcome(ctx context.Context, studentID string, subject core.Subject, outcome float64) (float64, error) {
	if studentID == "" {
		return 0, fmt.Errorf("empty student id: %w", core.ErrInvalidInput)
	}
	if subject == core.SubjectUnclassified {
		return 0, fmt.Errorf("quiz outcome needs a subject: %w", core.ErrInvalidInput)
	}
	if _, err := core.ParseSubject(string(subject)); err != nil {
		return 0, fmt.Errorf("%v: %w", err, core.ErrInvalidInput)
	}
	if outcome < 0 || outcome > 1 {
		return 0, fmt.Errorf("outcome %v outside [0,1]: %w", outcome, core.ErrInvalidInput)
	}

	// The turn is the source of truth: append it first, derive the estimate
	// after. An append failure must leave proficiency untouched so the
	// caller can retry without double-applying the update.
	o := outcome
	msg := core.Message{
		ID:        uuid.NewString(),
		StudentID: studentID,
		Text:      fmt.Sprintf("graded %s quiz: %.0f%%", subject, outcome*100),
		Timestamp: time.Now(),
	}
	resp := core.CapabilityResponse{
		Text:    fmt.Sprintf("Recorded your %s quiz score of %.0f%%.", subject, outcome*100),
		Outcome: &o,
	}
	if err := t.appendTurn(ctx, msg, core.IntentRequestQuiz, subject, resp); err != nil {
		return 0, err
	}

	estimate, err := t.store.UpdateProficiency(ctx, studentID, subject, outcome)
	if err != nil {
		return 0, fmt.Errorf("update proficiency: %v: %w", err, core.ErrPersistenceFailure)
	}

	log.FromCtx(ctx).Info().
		Str("student", studentID).
		Str("subject", string(subject)).
		Float64("outcome", outcome).
		Float64("estimate", estimate).
		Msg("quiz outcome recorded")

	return estimate, nil
}

// Welcome greets a student, distinguishing new from returning ones by their
// session history. No turn is appended; greetings are not study turns.
func (t *Tutor) Welcome(ctx context.Context, studentID string) (string, error) {
	if studentID == "" {
		return "", fmt.Errorf("empty student id: %w", core.ErrInvalidInput)
	}

	sess, err := t.store.GetSession(ctx, studentID)
	if err != nil {
		return "", fmt.Errorf("load session: %v: %w", err, core.ErrPersistenceFailure)
	}

	var query string
	if len(sess.Turns) == 0 {
		query = fmt.Sprintf("You are greeting a NEW student named %s. "+
			"Generate a warm, encouraging welcome message (1-2 sentences).", studentID)
	} else {
		query = fmt.Sprintf("You are greeting a RETURNING student named %s. "+
			"Here is a summary of your recent interactions with them:\n%s\n"+
			"Generate a short, friendly welcome back message (1-2 sentences).",
			studentID, summarizeRecent(sess, 5))
	}

	provider, err := t.registry.Get(core.CapabilityExplainer)
	if err != nil {
		return "Hello! Ready to learn something new?", nil
	}

	resp, err := t.invoke(ctx, provider, core.CapabilityRequest{
		Capability: core.CapabilityExplainer,
		Query:      query,
		Subject:    core.SubjectUnclassified,
	})
	if err != nil {
		log.FromCtx(ctx).Warn().Err(err).Msg("welcome degraded to static greeting")
		return "Hello! Ready to learn something new?", nil
	}
	return resp.Text, nil
}
