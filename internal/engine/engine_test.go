package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/course"
	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/events"
	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/quiz"
	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/store"
)

const (
	learner  = "alice@example.com"
	courseID = "onboarding"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func testOutline() *course.Outline {
	yesNo := []string{"yes", "no"}
	return &course.Outline{
		ID:            courseID,
		Title:         "Onboarding",
		SchemaVersion: "1.0.0",
		Cooldown:      24 * time.Hour,
		QuizDuration:  15 * time.Minute,
		Modules: []course.ModuleRef{
			{ID: "A", HasQuiz: true, QuestionSets: []course.QuestionSet{
				{{ID: "a1", Prompt: "first?", Options: yesNo, Answer: 0}},
				{{ID: "a2", Prompt: "second?", Options: yesNo, Answer: 1}},
			}},
			{ID: "B", HasQuiz: true, QuestionSets: []course.QuestionSet{
				{{ID: "b1", Prompt: "b?", Options: yesNo, Answer: 0}},
			}},
			{ID: "C", HasQuiz: false},
		},
	}
}

// Correct answers per question set of module A.
var (
	passA = []map[string]int{{"a1": 0}, {"a2": 1}}
	failA = []map[string]int{{"a1": 1}, {"a2": 0}}
)

type harness struct {
	eng       *Engine
	clock     *fakeClock
	store     *store.Store
	published []store.Event
	mu        sync.Mutex
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	reg := course.NewRegistry(course.DefaultPolicy())
	require.NoError(t, reg.Add(testOutline()))

	h := &harness{clock: &fakeClock{t: t0}, store: st}
	bus := events.NewBus(nil)
	bus.Subscribe("recorder", "", func(_ context.Context, ev store.Event) error {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.published = append(h.published, ev)
		return nil
	})

	cfg := DefaultConfig()
	cfg.Bus = bus
	cfg.Now = h.clock.Now
	h.eng = New(reg, st, cfg)
	return h
}

func (h *harness) publishedTypes() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var types []string
	for _, ev := range h.published {
		types = append(types, ev.Type)
	}
	return types
}

// submit sends a sessionless submission for the learner's current attempt.
func (h *harness) submit(t *testing.T, module string, answers map[string]int) (*SubmitResult, error) {
	t.Helper()
	return h.eng.SubmitQuiz(context.Background(), Submission{
		LearnerID:     learner,
		CourseID:      courseID,
		ModuleID:      module,
		AttemptNumber: h.module(t, module).NextAttempt,
		Answers:       answers,
	})
}

func (h *harness) module(t *testing.T, id string) ModuleProgress {
	t.Helper()
	p, err := h.eng.GetProgress(context.Background(), learner, courseID)
	require.NoError(t, err)
	for _, m := range p.Modules {
		if m.ModuleID == id {
			return m
		}
	}
	t.Fatalf("module %s missing from progress", id)
	return ModuleProgress{}
}

func TestGetProgress_FreshLearner(t *testing.T) {
	h := newHarness(t)
	p, err := h.eng.GetProgress(context.Background(), learner, courseID)
	require.NoError(t, err)

	require.Len(t, p.Modules, 3)
	assert.True(t, p.Modules[0].IsUnlocked)
	assert.True(t, p.Modules[0].CanTakeQuiz)
	assert.Equal(t, quiz.StateNotStarted, p.Modules[0].QuizState)
	assert.False(t, p.Modules[1].IsUnlocked)
	assert.False(t, p.Modules[2].IsUnlocked)
	assert.Equal(t, "A", p.Summary.NextModule)
	assert.Nil(t, p.Certificate)
}

func TestGetProgress_Errors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.eng.GetProgress(ctx, "", courseID)
	var verr *ValidationError
	assert.True(t, errors.As(err, &verr), "error = %v, want *ValidationError", err)

	_, err = h.eng.GetProgress(ctx, learner, "unknown")
	var nf *NotFoundError
	assert.True(t, errors.As(err, &nf), "error = %v, want *NotFoundError", err)
}

// Fail, free retake, fail, cooldown, pass; then B unlocks.
func TestSubmitQuiz_AttemptLifecycle(t *testing.T) {
	h := newHarness(t)

	res, err := h.submit(t, "A", failA[0])
	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.Equal(t, 1, res.AttemptCount)
	assert.Zero(t, res.CooldownRemaining)
	assert.Equal(t, quiz.StateFailedFirstAttempt, res.State)
	assert.True(t, h.module(t, "A").CanTakeQuiz, "retake is immediate")

	res, err = h.submit(t, "A", failA[1])
	require.NoError(t, err)
	assert.Equal(t, 2, res.AttemptCount)
	assert.Equal(t, 24*time.Hour, res.CooldownRemaining)
	assert.Equal(t, quiz.StateFailedRetakeCoolingDown, res.State)

	h.clock.Advance(23 * time.Hour)
	a := h.module(t, "A")
	assert.False(t, a.CanTakeQuiz)
	assert.Equal(t, time.Hour, a.CooldownRemaining)

	_, err = h.submit(t, "A", passA[0])
	var locked *LockedModuleError
	require.True(t, errors.As(err, &locked), "error = %v, want *LockedModuleError", err)
	assert.Equal(t, quiz.ReasonCoolingDown, locked.Reason)
	assert.Equal(t, time.Hour, locked.CooldownRemaining)
	assert.True(t, Retryable(err))

	h.clock.Advance(time.Hour)
	assert.True(t, h.module(t, "A").CanTakeQuiz)

	res, err = h.submit(t, "A", passA[0])
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.Equal(t, quiz.StatePassed, res.State)

	b := h.module(t, "B")
	assert.True(t, b.IsUnlocked)
	assert.True(t, b.CanTakeQuiz)
	assert.True(t, h.module(t, "A").IsCompleted)
}

func TestSubmitQuiz_FailureAfterCooldownRestartsIt(t *testing.T) {
	h := newHarness(t)
	for _, ans := range failA {
		_, err := h.submit(t, "A", ans)
		require.NoError(t, err)
	}
	h.clock.Advance(24 * time.Hour)

	res, err := h.submit(t, "A", failA[0])
	require.NoError(t, err)
	assert.Equal(t, 2, res.AttemptCount, "attempt count stays capped")
	assert.Equal(t, 24*time.Hour, res.CooldownRemaining)
	assert.Equal(t, 3, res.AttemptNumber)
}

func TestSubmitQuiz_ReplayOnCompletedModule(t *testing.T) {
	h := newHarness(t)
	_, err := h.submit(t, "A", passA[0])
	require.NoError(t, err)

	res, err := h.submit(t, "A", failA[0])
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.True(t, res.Replayed)

	rec, err := h.store.Get(context.Background(), store.Key{LearnerID: learner, CourseID: courseID})
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Attempt("A").AttemptCount, "replay recorded no failure")
}

func TestSubmitQuiz_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tests := []struct {
		name string
		sub  Submission
	}{
		{"unknown question", Submission{LearnerID: learner, CourseID: courseID, ModuleID: "A", AttemptNumber: 1, Answers: map[string]int{"zz": 0}}},
		{"option out of range", Submission{LearnerID: learner, CourseID: courseID, ModuleID: "A", AttemptNumber: 1, Answers: map[string]int{"a1": 5}}},
		{"attempt number without session", Submission{LearnerID: learner, CourseID: courseID, ModuleID: "A", Answers: failA[0]}},
		{"module without quiz", Submission{LearnerID: learner, CourseID: courseID, ModuleID: "C"}},
		{"missing learner", Submission{CourseID: courseID, ModuleID: "A"}},
		{"negative attempt", Submission{LearnerID: learner, CourseID: courseID, ModuleID: "A", AttemptNumber: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.eng.SubmitQuiz(ctx, tt.sub)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "error = %v, want *ValidationError", err)
			assert.False(t, Retryable(err))
		})
	}

	assert.Equal(t, 0, h.module(t, "A").AttemptCount, "rejected submissions record nothing")
}

func TestSubmitQuiz_LockedModule(t *testing.T) {
	h := newHarness(t)
	_, err := h.submit(t, "B", map[string]int{"b1": 0})
	var locked *LockedModuleError
	require.True(t, errors.As(err, &locked), "error = %v, want *LockedModuleError", err)
	assert.Equal(t, quiz.ReasonModuleLocked, locked.Reason)
}

func TestSubmitQuiz_StaleAttemptNumber(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sub := Submission{LearnerID: learner, CourseID: courseID, ModuleID: "A", AttemptNumber: 1, Answers: failA[0]}

	_, err := h.eng.SubmitQuiz(ctx, sub)
	require.NoError(t, err)

	_, err = h.eng.SubmitQuiz(ctx, sub)
	var conflict *ConflictError
	require.True(t, errors.As(err, &conflict), "error = %v, want *ConflictError", err)
	assert.False(t, Retryable(err), "stale attempts do not succeed on retry")
	assert.Equal(t, 1, h.module(t, "A").AttemptCount)
}

// A failed first attempt delivered twice is recorded once and does not
// start the cooldown of a single-set module.
func TestSubmitQuiz_ResentFailureCountedOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.submit(t, "A", passA[0])
	require.NoError(t, err)

	sub := Submission{LearnerID: learner, CourseID: courseID, ModuleID: "B", AttemptNumber: 1, Answers: map[string]int{"b1": 1}}
	res, err := h.eng.SubmitQuiz(ctx, sub)
	require.NoError(t, err)
	assert.False(t, res.Passed)

	_, err = h.eng.SubmitQuiz(ctx, sub)
	var conflict *ConflictError
	require.True(t, errors.As(err, &conflict), "error = %v, want *ConflictError", err)
	assert.False(t, Retryable(err))

	b := h.module(t, "B")
	assert.Equal(t, 1, b.AttemptCount, "redelivery recorded no failure")
	assert.True(t, b.CanTakeQuiz)
	assert.Zero(t, b.CooldownRemaining)
	assert.Equal(t, 2, b.NextAttempt)
}

// Two tabs racing for the first attempt: exactly one failure is recorded.
func TestSubmitQuiz_ConcurrentFirstAttempts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	const n = 6
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok        int
		conflicts int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.eng.SubmitQuiz(ctx, Submission{
				LearnerID: learner, CourseID: courseID, ModuleID: "A",
				AttemptNumber: 1, Answers: failA[0],
			})
			mu.Lock()
			defer mu.Unlock()
			var conflict *ConflictError
			switch {
			case err == nil:
				ok++
			case errors.As(err, &conflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, conflicts)
	assert.Equal(t, 1, h.module(t, "A").AttemptCount)
}

func TestCompleteModule(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.eng.CompleteModule(ctx, learner, courseID, "C")
	var locked *LockedModuleError
	require.True(t, errors.As(err, &locked), "error = %v, want *LockedModuleError", err)

	_, err = h.eng.CompleteModule(ctx, learner, courseID, "A")
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "quiz modules complete through the quiz: %v", err)

	_, err = h.submit(t, "A", passA[0])
	require.NoError(t, err)
	res, err := h.submit(t, "B", map[string]int{"b1": 0})
	require.NoError(t, err)
	assert.Nil(t, res.Certificate, "C still open")

	done, err := h.eng.CompleteModule(ctx, learner, courseID, "C")
	require.NoError(t, err)
	assert.False(t, done.Replayed)
	require.NotNil(t, done.Certificate)
	assert.True(t, done.CertificateIssued)
	assert.Equal(t, 3, done.Certificate.ModuleCount)

	again, err := h.eng.CompleteModule(ctx, learner, courseID, "C")
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.False(t, again.CertificateIssued)
	assert.Equal(t, done.Certificate.ID, again.Certificate.ID)

	cert, err := h.eng.Certificate(ctx, learner, courseID)
	require.NoError(t, err)
	assert.Equal(t, done.Certificate.ID, cert.ID)

	p, err := h.eng.GetProgress(ctx, learner, courseID)
	require.NoError(t, err)
	assert.True(t, p.Summary.CourseCompleted)
	assert.NotNil(t, p.Certificate)

	types := h.publishedTypes()
	assert.Contains(t, types, events.CourseCompleted)
	count := 0
	for _, typ := range types {
		if typ == events.CourseCompleted {
			count++
		}
	}
	assert.Equal(t, 1, count, "course.completed published once")
}

func TestCertificate_NotIssued(t *testing.T) {
	h := newHarness(t)
	_, err := h.eng.Certificate(context.Background(), learner, courseID)
	var nf *NotFoundError
	assert.True(t, errors.As(err, &nf), "error = %v, want *NotFoundError", err)
}

func TestAccessModule(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	st, err := h.eng.AccessModule(ctx, learner, courseID, "A")
	require.NoError(t, err)
	assert.True(t, st.IsUnlocked)

	_, err = h.eng.AccessModule(ctx, learner, courseID, "B")
	var locked *LockedModuleError
	require.True(t, errors.As(err, &locked), "error = %v, want *LockedModuleError", err)

	_, err = h.eng.AccessModule(ctx, learner, courseID, "nope")
	var nf *NotFoundError
	require.True(t, errors.As(err, &nf), "error = %v, want *NotFoundError", err)

	p, err := h.eng.GetProgress(ctx, learner, courseID)
	require.NoError(t, err)
	assert.Equal(t, "A", p.Summary.LastAccessedModule)
}

func TestQuizSession_ResumeSaveSubmit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	view, err := h.eng.StartQuiz(ctx, learner, courseID, "A")
	require.NoError(t, err)
	assert.False(t, view.Resumed)
	assert.Equal(t, 1, view.AttemptNumber)
	assert.Equal(t, t0.Add(15*time.Minute), view.Deadline)
	require.Len(t, view.Questions, 1)
	assert.Equal(t, "a1", view.Questions[0].ID)

	resumed, err := h.eng.StartQuiz(ctx, learner, courseID, "A")
	require.NoError(t, err)
	assert.True(t, resumed.Resumed)
	assert.Equal(t, view.SessionID, resumed.SessionID)
	assert.Equal(t, view.SessionID, h.module(t, "A").OpenSessionID)
	assert.Equal(t, quiz.StateInProgress, h.module(t, "A").QuizState)

	require.NoError(t, h.eng.SaveAnswers(ctx, learner, view.SessionID, map[string]int{"a1": 1}))
	err = h.eng.SaveAnswers(ctx, "mallory@example.com", view.SessionID, map[string]int{"a1": 0})
	var nf *NotFoundError
	require.True(t, errors.As(err, &nf), "foreign session: %v", err)
	err = h.eng.SaveAnswers(ctx, learner, view.SessionID, map[string]int{"zz": 0})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "bad answers: %v", err)

	sub := Submission{LearnerID: learner, CourseID: courseID, ModuleID: "A", SessionID: view.SessionID, Answers: passA[0]}
	res, err := h.eng.SubmitQuiz(ctx, sub)
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.Equal(t, view.SessionID, res.SessionID)

	replay, err := h.eng.SubmitQuiz(ctx, sub)
	require.NoError(t, err)
	assert.True(t, replay.Replayed)
	assert.True(t, replay.Passed)
	assert.Equal(t, res.Score, replay.Score)

	err = h.eng.SaveAnswers(ctx, learner, view.SessionID, map[string]int{"a1": 0})
	require.True(t, errors.As(err, &verr), "saving into a submitted session: %v", err)
}

func TestQuizSession_FailedSessionReplaysFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	view, err := h.eng.StartQuiz(ctx, learner, courseID, "A")
	require.NoError(t, err)
	sub := Submission{LearnerID: learner, CourseID: courseID, ModuleID: "A", SessionID: view.SessionID, Answers: failA[0]}

	_, err = h.eng.SubmitQuiz(ctx, sub)
	require.NoError(t, err)
	replay, err := h.eng.SubmitQuiz(ctx, sub)
	require.NoError(t, err)
	assert.True(t, replay.Replayed)
	assert.False(t, replay.Passed)
	assert.Equal(t, 1, replay.AttemptCount, "delivered twice, counted once")

	// The retake serves the next question set.
	next, err := h.eng.StartQuiz(ctx, learner, courseID, "A")
	require.NoError(t, err)
	assert.Equal(t, 2, next.AttemptNumber)
	require.Len(t, next.Questions, 1)
	assert.Equal(t, "a2", next.Questions[0].ID)
}

func TestQuizSession_LateSubmissionUsesDraft(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	view, err := h.eng.StartQuiz(ctx, learner, courseID, "A")
	require.NoError(t, err)
	require.NoError(t, h.eng.SaveAnswers(ctx, learner, view.SessionID, failA[0]))

	h.clock.Advance(20 * time.Minute)
	res, err := h.eng.SubmitQuiz(ctx, Submission{
		LearnerID: learner, CourseID: courseID, ModuleID: "A",
		SessionID: view.SessionID, Answers: passA[0],
	})
	require.NoError(t, err)
	assert.True(t, res.AutoSubmitted)
	assert.False(t, res.Passed, "answers sent after the deadline are ignored")
}

func TestExpireSessions_GradesDraft(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	view, err := h.eng.StartQuiz(ctx, learner, courseID, "A")
	require.NoError(t, err)
	require.NoError(t, h.eng.SaveAnswers(ctx, learner, view.SessionID, passA[0]))

	n, err := h.eng.ExpireSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "session still running")

	h.clock.Advance(16 * time.Minute)
	n, err = h.eng.ExpireSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	a := h.module(t, "A")
	assert.True(t, a.IsCompleted, "saved draft was correct")

	sess, err := h.store.Session(ctx, view.SessionID)
	require.NoError(t, err)
	assert.Equal(t, store.SessionSubmitted, sess.Status)
	assert.True(t, sess.AutoSubmitted)

	n, err = h.eng.ExpireSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestStartQuiz_ExpiredSessionGradedLazily(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.eng.StartQuiz(ctx, learner, courseID, "A")
	require.NoError(t, err)

	h.clock.Advance(time.Hour)
	second, err := h.eng.StartQuiz(ctx, learner, courseID, "A")
	require.NoError(t, err)
	assert.NotEqual(t, first.SessionID, second.SessionID)
	assert.Equal(t, 2, second.AttemptNumber, "empty draft counted as a failed attempt")
	assert.Contains(t, h.publishedTypes(), events.QuizFailed)
}

func TestStartQuiz_Refusals(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.eng.StartQuiz(ctx, learner, courseID, "C")
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "no-quiz module: %v", err)

	for _, ans := range failA {
		_, err := h.submit(t, "A", ans)
		require.NoError(t, err)
	}
	_, err = h.eng.StartQuiz(ctx, learner, courseID, "A")
	var locked *LockedModuleError
	require.True(t, errors.As(err, &locked), "cooling down: %v", err)
	assert.Equal(t, 24*time.Hour, locked.CooldownRemaining)
}

func TestStartQuiz_RefusalWritesNothing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.eng.StartQuiz(ctx, learner, courseID, "B")
	var locked *LockedModuleError
	require.True(t, errors.As(err, &locked), "error = %v, want *LockedModuleError", err)

	rec, err := h.store.Get(ctx, store.Key{LearnerID: learner, CourseID: courseID})
	require.NoError(t, err)
	assert.Equal(t, int64(0), rec.Version, "refused start created no row")
	assert.Empty(t, h.publishedTypes())
}

func TestStartQuiz_ResumesDuringGrace(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.eng.StartQuiz(ctx, learner, courseID, "A")
	require.NoError(t, err)

	h.clock.Advance(15*time.Minute + 10*time.Second)
	again, err := h.eng.StartQuiz(ctx, learner, courseID, "A")
	require.NoError(t, err)
	assert.True(t, again.Resumed)
	assert.Equal(t, first.SessionID, again.SessionID)
	assert.Equal(t, first.SessionID, h.module(t, "A").OpenSessionID)

	res, err := h.eng.SubmitQuiz(ctx, Submission{
		LearnerID: learner, CourseID: courseID, ModuleID: "A",
		SessionID: first.SessionID, Answers: passA[0],
	})
	require.NoError(t, err)
	assert.True(t, res.Passed, "answers sent within the grace window count")
	assert.False(t, res.AutoSubmitted)
}

// A submission without a session is graded against the open session and
// so cannot outrun its deadline.
func TestSubmitQuiz_SessionlessHonoursOpenDeadline(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	view, err := h.eng.StartQuiz(ctx, learner, courseID, "A")
	require.NoError(t, err)

	h.clock.Advance(20 * time.Minute)
	res, err := h.submit(t, "A", passA[0])
	require.NoError(t, err)
	assert.Equal(t, view.SessionID, res.SessionID)
	assert.True(t, res.AutoSubmitted)
	assert.False(t, res.Passed, "answers sent after the deadline are ignored")
}

// flakyStore loses the optimistic version check a fixed number of times.
type flakyStore struct {
	*store.Store
	mu        sync.Mutex
	conflicts int
	calls     int
}

func (f *flakyStore) Mutate(ctx context.Context, key store.Key, fn func(tx *store.Tx) error) error {
	f.mu.Lock()
	f.calls++
	if f.conflicts > 0 {
		f.conflicts--
		f.mu.Unlock()
		return fmt.Errorf("progress %s: %w", key, store.ErrConflict)
	}
	f.mu.Unlock()
	return f.Store.Mutate(ctx, key, fn)
}

func TestMutate_RetriesConflictOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	reg := course.NewRegistry(course.DefaultPolicy())
	require.NoError(t, reg.Add(testOutline()))

	flaky := &flakyStore{Store: h.store, conflicts: 1}
	eng := New(reg, flaky, Config{Now: h.clock.Now})
	_, err := eng.CompleteModule(ctx, learner, courseID, "C")
	var locked *LockedModuleError
	require.True(t, errors.As(err, &locked), "retried into the real check: %v", err)
	assert.Equal(t, 2, flaky.calls)

	flaky = &flakyStore{Store: h.store, conflicts: 2}
	eng = New(reg, flaky, Config{Now: h.clock.Now})
	_, err = eng.AccessModule(ctx, learner, courseID, "A")
	var conflict *ConflictError
	require.True(t, errors.As(err, &conflict), "error = %v, want *ConflictError", err)
	assert.True(t, Retryable(err))
	assert.Equal(t, 2, flaky.calls, "retried exactly once")
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{&ValidationError{Reason: "x"}, false},
		{&NotFoundError{Resource: "course"}, false},
		{&LockedModuleError{ModuleID: "A"}, true},
		{&ConflictError{Err: store.ErrConflict}, true},
		{&ConflictError{Err: errStaleAttempt}, false},
		{&UnavailableError{Err: errors.New("disk")}, true},
		{&UnavailableError{Err: context.Canceled}, false},
		{errors.New("plain"), false},
	}
	for _, tt := range tests {
		if got := Retryable(tt.err); got != tt.want {
			t.Errorf("Retryable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestClassify(t *testing.T) {
	key := store.Key{LearnerID: learner, CourseID: courseID}
	if classify(key, nil) != nil {
		t.Error("classify(nil) != nil")
	}
	var conflict *ConflictError
	if err := classify(key, fmt.Errorf("x: %w", store.ErrConflict)); !errors.As(err, &conflict) {
		t.Errorf("classify(ErrConflict) = %T, want *ConflictError", err)
	}
	var unavailable *UnavailableError
	if err := classify(key, errors.New("io")); !errors.As(err, &unavailable) {
		t.Errorf("classify(io) = %T, want *UnavailableError", err)
	}
	locked := &LockedModuleError{ModuleID: "A"}
	if err := classify(key, locked); err != locked {
		t.Errorf("classify(locked) = %v, want passthrough", err)
	}
}
