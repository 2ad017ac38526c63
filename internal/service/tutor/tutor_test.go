package tutor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calebrin/tutorcore/internal/core"
	"github.com/calebrin/tutorcore/internal/storage/memstore"
)

type scriptedIntents struct {
	intent core.Intent
	errs   []error
	calls  int
}

func (s *scriptedIntents) Classify(ctx context.Context, text string) (core.Intent, error) {
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return "", err
		}
	}
	return s.intent, nil
}

type scriptedSubjects struct {
	subject core.Subject
	err     error
}

func (s *scriptedSubjects) Classify(ctx context.Context, text string) (core.Subject, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.subject, nil
}

type fakeProvider struct {
	mu    sync.Mutex
	name  core.Capability
	resp  core.CapabilityResponse
	errs  []error
	delay time.Duration
	calls int
	reqs  []core.CapabilityRequest
}

func (p *fakeProvider) Name() core.Capability { return p.name }

func (p *fakeProvider) Invoke(ctx context.Context, req core.CapabilityRequest) (core.CapabilityResponse, error) {
	p.mu.Lock()
	p.calls++
	p.reqs = append(p.reqs, req)
	var err error
	if len(p.errs) > 0 {
		err = p.errs[0]
		p.errs = p.errs[1:]
	}
	p.mu.Unlock()

	if p.delay > 0 {
		select {
		case <-ctx.Done():
			return core.CapabilityResponse{}, ctx.Err()
		case <-time.After(p.delay):
		}
	}
	if err != nil {
		return core.CapabilityResponse{}, err
	}
	return p.resp, nil
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *fakeProvider) lastReq() core.CapabilityRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reqs[len(p.reqs)-1]
}

type fakeRegistry struct {
	providers map[core.Capability]core.CapabilityProvider
}

func (r *fakeRegistry) Get(name core.Capability) (core.CapabilityProvider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("no provider registered for %q", name)
	}
	return p, nil
}

// recordingStore gives tests full control over the loaded session and lets
// them fail appends on demand.
type recordingStore struct {
	mu        sync.Mutex
	sess      *core.Session
	turns     []core.Turn
	appendErr error
}

func newRecordingStore(studentID string) *recordingStore {
	return &recordingStore{sess: core.NewSession(studentID)}
}

func (s *recordingStore) GetSession(ctx context.Context, studentID string) (*core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess.Clone(), nil
}

func (s *recordingStore) AppendTurn(ctx context.Context, studentID string, turn core.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	s.turns = append(s.turns, turn)
	s.sess.Turns = append(s.sess.Turns, turn)
	return nil
}

func (s *recordingStore) UpdateProficiency(ctx context.Context, studentID string, subject core.Subject, outcome float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sess.Proficiency[subject] = outcome
	return outcome, nil
}

func (s *recordingStore) UpdateSummary(ctx context.Context, studentID string, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sess.Summary = summary
	return nil
}

func (s *recordingStore) ListStudents(ctx context.Context) ([]string, error) {
	return []string{s.sess.StudentID}, nil
}

func (s *recordingStore) recorded() []core.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

func testConfig() Config {
	return Config{
		ProviderTimeout:     100 * time.Millisecond,
		BaselineProficiency: 0.5,
		ContextTokenBudget:  256,
		RetryAttempts:       1,
		RetryInitialDelay:   time.Millisecond,
	}
}

func newTestTutor(intents IntentClassifier, subjects SubjectClassifier, reg ProviderRegistry, store core.SessionStore, cfg Config) *Tutor {
	t := NewTutor(intents, subjects, reg, store, cfg)
	t.tokens = func(text string) int { return len(text) / 4 }
	return t
}

func TestRespondExplainConcept(t *testing.T) {
	explainer := &fakeProvider{
		name: core.CapabilityExplainer,
		resp: core.CapabilityResponse{Text: "The Pythagorean theorem relates the sides of a right triangle."},
	}
	store := newRecordingStore("alice")
	tut := newTestTutor(
		&scriptedIntents{intent: core.IntentExplainConcept},
		&scriptedSubjects{subject: core.SubjectMath},
		&fakeRegistry{providers: map[core.Capability]core.CapabilityProvider{core.CapabilityExplainer: explainer}},
		store,
		testConfig(),
	)

	reply, err := tut.Respond(context.Background(), "alice", "Explain the Pythagorean theorem")
	require.NoError(t, err)

	assert.Equal(t, core.IntentExplainConcept, reply.Intent)
	assert.Equal(t, core.SubjectMath, reply.Subject)
	assert.Equal(t, explainer.resp.Text, reply.Text)
	assert.False(t, reply.Degraded)
	assert.Equal(t, 1, explainer.callCount())

	turns := store.recorded()
	require.Len(t, turns, 1)
	assert.Equal(t, core.IntentExplainConcept, turns[0].Intent)
	assert.Equal(t, core.SubjectMath, turns[0].Subject)
	assert.Equal(t, "Explain the Pythagorean theorem", turns[0].Message.Text)
	assert.NotEmpty(t, turns[0].ID)
}

func TestRespondQuizUsesStoredProficiency(t *testing.T) {
	quiz := &fakeProvider{
		name: core.CapabilityQuizGen,
		resp: core.CapabilityResponse{QuizItems: []core.QuizItem{{Question: "2+2?", Choices: []string{"3", "4"}, Answer: "4"}}},
	}
	store := newRecordingStore("bob")
	store.sess.Proficiency[core.SubjectMath] = 0.4

	tut := newTestTutor(
		&scriptedIntents{intent: core.IntentRequestQuiz},
		&scriptedSubjects{subject: core.SubjectMath},
		&fakeRegistry{providers: map[core.Capability]core.CapabilityProvider{core.CapabilityQuizGen: quiz}},
		store,
		testConfig(),
	)

	reply, err := tut.Respond(context.Background(), "bob", "quiz me on fractions")
	require.NoError(t, err)
	require.Len(t, reply.QuizItems, 1)

	assert.InDelta(t, 0.4, quiz.lastReq().Difficulty, 1e-9)
}

func TestRespondQuizDefaultsToBaseline(t *testing.T) {
	quiz := &fakeProvider{
		name: core.CapabilityQuizGen,
		resp: core.CapabilityResponse{QuizItems: []core.QuizItem{{Question: "q", Choices: []string{"a", "b"}, Answer: "a"}}},
	}
	tut := newTestTutor(
		&scriptedIntents{intent: core.IntentRequestQuiz},
		&scriptedSubjects{subject: core.SubjectPhysics},
		&fakeRegistry{providers: map[core.Capability]core.CapabilityProvider{core.CapabilityQuizGen: quiz}},
		newRecordingStore("bob"),
		testConfig(),
	)

	_, err := tut.Respond(context.Background(), "bob", "quiz me on momentum")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, quiz.lastReq().Difficulty, 1e-9)
}

func TestRespondLookupFactMerge(t *testing.T) {
	search := &fakeProvider{
		name: core.CapabilityWebSearch,
		resp: core.CapabilityResponse{
			Text:      "raw search snippet about the speed of light",
			Citations: []core.Citation{{Title: "Speed of light", URL: "https://example.org/c"}},
		},
	}
	explainer := &fakeProvider{
		name: core.CapabilityExplainer,
		resp: core.CapabilityResponse{
			Text:      "The speed of light in vacuum is about 299,792 km/s.",
			Citations: []core.Citation{{Title: "Optics primer", URL: "https://example.org/optics"}},
		},
	}
	store := newRecordingStore("carol")
	tut := newTestTutor(
		&scriptedIntents{intent: core.IntentLookupFact},
		&scriptedSubjects{subject: core.SubjectPhysics},
		&fakeRegistry{providers: map[core.Capability]core.CapabilityProvider{
			core.CapabilityWebSearch: search,
			core.CapabilityExplainer: explainer,
		}},
		store,
		testConfig(),
	)

	reply, err := tut.Respond(context.Background(), "carol", "what is the speed of light")
	require.NoError(t, err)

	// The final provider's prose is canonical; search text feeds it as
	// evidence and contributes citations only.
	assert.Equal(t, explainer.resp.Text, reply.Text)
	assert.NotContains(t, reply.Text, search.resp.Text)
	assert.Equal(t, search.resp.Text, explainer.lastReq().Evidence)

	require.Len(t, reply.Citations, 2)
	assert.Equal(t, "https://example.org/c", reply.Citations[0].URL)
	assert.Equal(t, "https://example.org/optics", reply.Citations[1].URL)

	require.Len(t, store.recorded(), 1)
}

func TestRespondMemoryQuery(t *testing.T) {
	explainer := &fakeProvider{name: core.CapabilityExplainer}
	store := newRecordingStore("dave")
	store.sess.Summary = "Dave has been working on stoichiometry."
	store.sess.Proficiency[core.SubjectChemistry] = 0.7

	tut := newTestTutor(
		&scriptedIntents{intent: core.IntentMemoryQuery},
		&scriptedSubjects{subject: core.SubjectUnclassified},
		&fakeRegistry{providers: map[core.Capability]core.CapabilityProvider{core.CapabilityExplainer: explainer}},
		store,
		testConfig(),
	)

	reply, err := tut.Respond(context.Background(), "dave", "what have we studied so far?")
	require.NoError(t, err)

	assert.Zero(t, explainer.callCount(), "memory queries are answered from the store alone")
	assert.Contains(t, reply.Text, "stoichiometry")
	assert.Contains(t, reply.Text, "chemistry")
	require.Len(t, store.recorded(), 1)
}

func TestRespondProviderRetrySucceeds(t *testing.T) {
	explainer := &fakeProvider{
		name: core.CapabilityExplainer,
		resp: core.CapabilityResponse{Text: "second attempt worked"},
		errs: []error{errors.New("upstream hiccup")},
	}
	tut := newTestTutor(
		&scriptedIntents{intent: core.IntentExplainConcept},
		&scriptedSubjects{subject: core.SubjectBiology},
		&fakeRegistry{providers: map[core.Capability]core.CapabilityProvider{core.CapabilityExplainer: explainer}},
		newRecordingStore("erin"),
		testConfig(),
	)

	reply, err := tut.Respond(context.Background(), "erin", "explain mitosis")
	require.NoError(t, err)
	assert.False(t, reply.Degraded)
	assert.Equal(t, "second attempt worked", reply.Text)
	assert.Equal(t, 2, explainer.callCount())
}

func TestRespondProviderTimeoutDegrades(t *testing.T) {
	slow := &fakeProvider{
		name:  core.CapabilityExplainer,
		resp:  core.CapabilityResponse{Text: "too late"},
		delay: 500 * time.Millisecond,
	}
	store := newRecordingStore("frank")
	cfg := testConfig()
	cfg.ProviderTimeout = 20 * time.Millisecond

	tut := newTestTutor(
		&scriptedIntents{intent: core.IntentExplainConcept},
		&scriptedSubjects{subject: core.SubjectMath},
		&fakeRegistry{providers: map[core.Capability]core.CapabilityProvider{core.CapabilityExplainer: slow}},
		store,
		cfg,
	)

	reply, err := tut.Respond(context.Background(), "frank", "explain limits")
	require.NoError(t, err, "a degraded reply is success, not an error")
	assert.True(t, reply.Degraded)
	assert.NotEqual(t, "too late", reply.Text)

	turns := store.recorded()
	require.Len(t, turns, 1)
	assert.True(t, turns[0].Response.Degraded)
}

func TestRespondClassificationFailureDegrades(t *testing.T) {
	explainer := &fakeProvider{name: core.CapabilityExplainer}
	store := newRecordingStore("gail")
	boom := errors.New("classifier offline")

	tut := newTestTutor(
		&scriptedIntents{errs: []error{boom, boom}},
		&scriptedSubjects{subject: core.SubjectMath},
		&fakeRegistry{providers: map[core.Capability]core.CapabilityProvider{core.CapabilityExplainer: explainer}},
		store,
		testConfig(),
	)

	reply, err := tut.Respond(context.Background(), "gail", "hello there")
	require.NoError(t, err)
	assert.True(t, reply.Degraded)
	assert.Equal(t, core.IntentGeneralChat, reply.Intent)
	assert.Equal(t, core.SubjectUnclassified, reply.Subject)

	turns := store.recorded()
	require.Len(t, turns, 1)
	assert.True(t, turns[0].Response.Degraded)
}

func TestRespondAmbiguousQuiz(t *testing.T) {
	store := newRecordingStore("hank")
	tut := newTestTutor(
		&scriptedIntents{intent: core.IntentRequestQuiz},
		&scriptedSubjects{subject: core.SubjectUnclassified},
		&fakeRegistry{providers: map[core.Capability]core.CapabilityProvider{}},
		store,
		testConfig(),
	)

	reply, err := tut.Respond(context.Background(), "hank", "quiz me")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrAmbiguousRouting)
	assert.Nil(t, reply)
	assert.Empty(t, store.recorded(), "an ambiguous request records no turn")
}

func TestRespondInvalidInput(t *testing.T) {
	tut := newTestTutor(
		&scriptedIntents{intent: core.IntentGeneralChat},
		&scriptedSubjects{subject: core.SubjectUnclassified},
		&fakeRegistry{providers: map[core.Capability]core.CapabilityProvider{}},
		newRecordingStore("ivy"),
		testConfig(),
	)

	for _, tc := range []struct {
		name      string
		studentID string
		text      string
	}{
		{"empty text", "ivy", "   "},
		{"empty student", "", "hello"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			reply, err := tut.Respond(context.Background(), tc.studentID, tc.text)
			assert.ErrorIs(t, err, core.ErrInvalidInput)
			assert.Nil(t, reply)
		})
	}
}

func TestRespondPersistenceFailure(t *testing.T) {
	explainer := &fakeProvider{
		name: core.CapabilityExplainer,
		resp: core.CapabilityResponse{Text: "fine answer"},
	}
	store := newRecordingStore("jane")
	store.appendErr = errors.New("disk full")

	tut := newTestTutor(
		&scriptedIntents{intent: core.IntentExplainConcept},
		&scriptedSubjects{subject: core.SubjectMath},
		&fakeRegistry{providers: map[core.Capability]core.CapabilityProvider{core.CapabilityExplainer: explainer}},
		store,
		testConfig(),
	)

	reply, err := tut.Respond(context.Background(), "jane", "explain primes")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrPersistenceFailure)
	assert.Nil(t, reply, "no reply is acknowledged for a turn that failed to persist")
}

func TestRespondStateTransitions(t *testing.T) {
	explainer := &fakeProvider{
		name: core.CapabilityExplainer,
		resp: core.CapabilityResponse{Text: "ok"},
	}
	tut := newTestTutor(
		&scriptedIntents{intent: core.IntentExplainConcept},
		&scriptedSubjects{subject: core.SubjectMath},
		&fakeRegistry{providers: map[core.Capability]core.CapabilityProvider{core.CapabilityExplainer: explainer}},
		newRecordingStore("kate"),
		testConfig(),
	)

	_, tr, err := tut.respond(context.Background(), "kate", "explain derivatives")
	require.NoError(t, err)

	assert.Equal(t, []State{
		StateReceived,
		StateClassified,
		StateProviderSelected,
		StateProviderInvoked,
		StateMerged,
		StatePersisted,
		StateCompleted,
	}, tr.states())
}

func TestRespondFailedRequestEndsInFailed(t *testing.T) {
	tut := newTestTutor(
		&scriptedIntents{intent: core.IntentGeneralChat},
		&scriptedSubjects{subject: core.SubjectUnclassified},
		&fakeRegistry{providers: map[core.Capability]core.CapabilityProvider{}},
		newRecordingStore("liam"),
		testConfig(),
	)

	_, tr, err := tut.respond(context.Background(), "liam", "  ")
	require.Error(t, err)
	assert.Equal(t, StateFailed, tr.last())
}

func TestRecordQuizOutcome(t *testing.T) {
	store := memstore.New(0.3, 0.5)
	tut := newTestTutor(
		&scriptedIntents{intent: core.IntentGeneralChat},
		&scriptedSubjects{subject: core.SubjectUnclassified},
		&fakeRegistry{providers: map[core.Capability]core.CapabilityProvider{}},
		store,
		testConfig(),
	)

	estimate, err := tut.RecordQuizOutcome(context.Background(), "mia", core.SubjectMath, 1.0)
	require.NoError(t, err)
	assert.InDelta(t, 0.65, estimate, 1e-9)

	sess, err := store.GetSession(context.Background(), "mia")
	require.NoError(t, err)
	require.Len(t, sess.Turns, 1)
	require.NotNil(t, sess.Turns[0].Response.Outcome)
	assert.InDelta(t, 1.0, *sess.Turns[0].Response.Outcome, 1e-9)
	assert.Equal(t, core.IntentRequestQuiz, sess.Turns[0].Intent)
}

// flakyAppendStore fails the next n appends, then behaves normally.
type flakyAppendStore struct {
	*memstore.Store
	failures int
}

func (s *flakyAppendStore) AppendTurn(ctx context.Context, studentID string, turn core.Turn) error {
	if s.failures > 0 {
		s.failures--
		return errors.New("append rejected")
	}
	return s.Store.AppendTurn(ctx, studentID, turn)
}

func TestRecordQuizOutcomeAppendFailureLeavesProficiencyUntouched(t *testing.T) {
	store := &flakyAppendStore{Store: memstore.New(0.3, 0.5), failures: 1}
	tut := newTestTutor(
		&scriptedIntents{intent: core.IntentGeneralChat},
		&scriptedSubjects{subject: core.SubjectUnclassified},
		&fakeRegistry{providers: map[core.Capability]core.CapabilityProvider{}},
		store,
		testConfig(),
	)
	ctx := context.Background()

	_, err := tut.RecordQuizOutcome(ctx, "mia", core.SubjectMath, 1.0)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrPersistenceFailure)

	sess, err := store.GetSession(ctx, "mia")
	require.NoError(t, err)
	assert.Empty(t, sess.Turns)
	assert.NotContains(t, sess.Proficiency, core.SubjectMath,
		"a failed outcome must not move the estimate")

	// Retrying the same outcome lands on the single-application value.
	estimate, err := tut.RecordQuizOutcome(ctx, "mia", core.SubjectMath, 1.0)
	require.NoError(t, err)
	assert.InDelta(t, 0.65, estimate, 1e-9)

	sess, err = store.GetSession(ctx, "mia")
	require.NoError(t, err)
	require.Len(t, sess.Turns, 1)
	assert.InDelta(t, 0.65, sess.Proficiency[core.SubjectMath], 1e-9)
}

func TestRecordQuizOutcomeValidation(t *testing.T) {
	tut := newTestTutor(
		&scriptedIntents{intent: core.IntentGeneralChat},
		&scriptedSubjects{subject: core.SubjectUnclassified},
		&fakeRegistry{providers: map[core.Capability]core.CapabilityProvider{}},
		memstore.New(0.3, 0.5),
		testConfig(),
	)
	ctx := context.Background()

	_, err := tut.RecordQuizOutcome(ctx, "", core.SubjectMath, 0.5)
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = tut.RecordQuizOutcome(ctx, "mia", core.SubjectUnclassified, 0.5)
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = tut.RecordQuizOutcome(ctx, "mia", core.SubjectMath, 1.5)
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = tut.RecordQuizOutcome(ctx, "mia", core.SubjectMath, -0.1)
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestWelcome(t *testing.T) {
	explainer := &fakeProvider{
		name: core.CapabilityExplainer,
		resp: core.CapabilityResponse{Text: "Welcome aboard!"},
	}
	store := newRecordingStore("nora")
	tut := newTestTutor(
		&scriptedIntents{intent: core.IntentGeneralChat},
		&scriptedSubjects{subject: core.SubjectUnclassified},
		&fakeRegistry{providers: map[core.Capability]core.CapabilityProvider{core.CapabilityExplainer: explainer}},
		store,
		testConfig(),
	)
	ctx := context.Background()

	greeting, err := tut.Welcome(ctx, "nora")
	require.NoError(t, err)
	assert.Equal(t, "Welcome aboard!", greeting)
	assert.Contains(t, explainer.lastReq().Query, "NEW")
	assert.Empty(t, store.recorded(), "greetings are not study turns")

	store.sess.Turns = append(store.sess.Turns, core.Turn{
		Message:  core.Message{Text: "explain osmosis"},
		Response: core.CapabilityResponse{Text: "Osmosis is..."},
	})
	_, err = tut.Welcome(ctx, "nora")
	require.NoError(t, err)
	assert.Contains(t, explainer.lastReq().Query, "RETURNING")
	assert.Contains(t, explainer.lastReq().Query, "osmosis")
}

func TestWelcomeFallsBackOnProviderFailure(t *testing.T) {
	broken := &fakeProvider{
		name: core.CapabilityExplainer,
		errs: []error{errors.New("down"), errors.New("still down")},
	}
	tut := newTestTutor(
		&scriptedIntents{intent: core.IntentGeneralChat},
		&scriptedSubjects{subject: core.SubjectUnclassified},
		&fakeRegistry{providers: map[core.Capability]core.CapabilityProvider{core.CapabilityExplainer: broken}},
		newRecordingStore("omar"),
		testConfig(),
	)

	greeting, err := tut.Welcome(context.Background(), "omar")
	require.NoError(t, err)
	assert.NotEmpty(t, greeting)
}

func TestBuildContextHonorsTokenBudget(t *testing.T) {
	store := newRecordingStore("pia")
	tut := newTestTutor(
		&scriptedIntents{intent: core.IntentGeneralChat},
		&scriptedSubjects{subject: core.SubjectUnclassified},
		&fakeRegistry{providers: map[core.Capability]core.CapabilityProvider{}},
		store,
		testConfig(),
	)
	// One token per character makes the budget arithmetic exact.
	tut.tokens = func(text string) int { return len(text) }
	tut.cfg.ContextTokenBudget = 70

	sess := core.NewSession("pia")
	for i := 0; i < 10; i++ {
		sess.Turns = append(sess.Turns, core.Turn{
			Message:  core.Message{Text: fmt.Sprintf("question %d", i)},
			Response: core.CapabilityResponse{Text: fmt.Sprintf("answer %d", i)},
		})
	}

	got := tut.buildContext(sess)
	assert.NotEmpty(t, got)
	assert.LessOrEqual(t, len(got), 70+1) // newline join slack

	// Newest turns win and order is chronological.
	assert.Contains(t, got, "question 9")
	assert.NotContains(t, got, "question 0")
	lines := strings.Split(got, "\n")
	assert.Contains(t, lines[0], "question 8")
}

func TestMemoryRecapEmptySession(t *testing.T) {
	got := memoryRecap(core.NewSession("quinn"))
	assert.Contains(t, got, "haven't studied")
}
