// Package engine is the authoritative course progression service. It ties
// the course catalog, the unlock rules, the quiz state machine and the
// certificate trigger to the progress store, serializing every change per
// (learner, course) and publishing committed events.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/certificate"
	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/course"
	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/events"
	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/logging"
	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/quiz"
	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/store"
)

// Store is the persistence the engine needs. *store.Store implements it.
type Store interface {
	store.ProgressRepo
	Session(ctx context.Context, id string) (*store.QuizSession, error)
	OpenSessions(ctx context.Context, key store.Key) ([]*store.QuizSession, error)
	SaveSessionAnswers(ctx context.Context, id string, answers map[string]int) error
	ExpiredSessions(ctx context.Context, now time.Time, limit int) ([]*store.QuizSession, error)
	Certificate(ctx context.Context, key store.Key) (*store.Certificate, error)
	ListEvents(ctx context.Context, q store.EventQuery) ([]store.Event, error)
}

var _ Store = (*store.Store)(nil)

// Config holds the engine's collaborators and tunables.
type Config struct {
	Bus    *events.Bus
	Logger logging.Logger

	// SubmissionGrace is how late after the deadline a learner's own
	// answers are still accepted.
	SubmissionGrace time.Duration

	// SweepBatch bounds how many expired sessions ExpireSessions handles
	// per call.
	SweepBatch int

	// Now and NewID default to the wall clock and random UUIDs.
	Now   func() time.Time
	NewID func() string
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		SubmissionGrace: 30 * time.Second,
		SweepBatch:      100,
	}
}

// Engine implements the progression operations.
type Engine struct {
	catalog course.Catalog
	store   Store
	bus     *events.Bus
	logger  logging.Logger
	certs   certificate.Trigger

	grace time.Duration
	batch int
	now   func() time.Time
	newID func() string
}

// New creates an Engine.
func New(catalog course.Catalog, st Store, cfg Config) *Engine {
	e := &Engine{
		catalog: catalog,
		store:   st,
		bus:     cfg.Bus,
		logger:  cfg.Logger,
		grace:   cfg.SubmissionGrace,
		batch:   cfg.SweepBatch,
		now:     cfg.Now,
		newID:   cfg.NewID,
	}
	if e.logger == nil {
		e.logger = logging.Nop()
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.newID == nil {
		e.newID = uuid.NewString
	}
	if e.batch <= 0 {
		e.batch = DefaultConfig().SweepBatch
	}
	e.certs = certificate.Trigger{NewID: e.newID}
	return e
}

func (e *Engine) clock() time.Time {
	return e.now().UTC()
}

// mutate runs fn as one unit of work on key. A lost optimistic version
// check is retried once with a fresh record before being surfaced. fn may
// run twice and must not leak state between runs.
func (e *Engine) mutate(ctx context.Context, key store.Key, fn func(tx *store.Tx) error) error {
	var err error
	for attempt := 1; attempt <= 2; attempt++ {
		err = e.store.Mutate(ctx, key, fn)
		if !errors.Is(err, store.ErrConflict) {
			break
		}
		e.logger.Warn("progress update conflict", "key", key, "attempt", attempt)
	}
	return classify(key, err)
}

func (e *Engine) publish(ctx context.Context, evs []store.Event) {
	if len(evs) > 0 {
		e.bus.Publish(ctx, evs...)
	}
}

// outline loads a course outline from the catalog.
func (e *Engine) outline(ctx context.Context, courseID string) (*course.Outline, error) {
	o, err := e.catalog.Outline(ctx, courseID)
	switch {
	case errors.Is(err, course.ErrUnknownCourse):
		return nil, &NotFoundError{Resource: "course", ID: courseID}
	case err != nil:
		return nil, &UnavailableError{Err: err}
	}
	return o, nil
}

// module resolves moduleID within courseID.
func (e *Engine) module(ctx context.Context, courseID, moduleID string) (*course.Outline, course.ModuleRef, error) {
	o, err := e.outline(ctx, courseID)
	if err != nil {
		return nil, course.ModuleRef{}, err
	}
	m, ok := o.Module(moduleID)
	if !ok {
		return nil, course.ModuleRef{}, &NotFoundError{Resource: "module", ID: moduleID}
	}
	return o, m, nil
}

func requireIDs(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] == "" {
			return &ValidationError{Field: pairs[i], Reason: "required"}
		}
	}
	return nil
}

func lockedError(moduleID string, adm quiz.Admission) error {
	if adm.Reason == quiz.ReasonNoQuiz {
		return &ValidationError{Field: "module", Reason: "module has no quiz"}
	}
	return &LockedModuleError{ModuleID: moduleID, Reason: adm.Reason, CooldownRemaining: adm.CooldownRemaining}
}
