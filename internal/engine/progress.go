package engine

import (
	"context"

	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/events"
	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/quiz"
	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/store"
	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/unlock"
)

// ModuleProgress is a module's unlock status plus its quiz state.
type ModuleProgress struct {
	unlock.ModuleStatus
	QuizState     quiz.State `json:"quiz_state,omitempty"`
	OpenSessionID string     `json:"open_session_id,omitempty"`

	// NextAttempt is the attempt number a sessionless submission must
	// carry.
	NextAttempt int `json:"next_attempt,omitempty"`
}

// Progress is a learner's view of a course.
type Progress struct {
	LearnerID   string             `json:"learner_id"`
	CourseID    string             `json:"course_id"`
	CourseTitle string             `json:"course_title,omitempty"`
	Modules     []ModuleProgress   `json:"unlock_status"`
	Summary     unlock.Summary     `json:"summary"`
	Certificate *store.Certificate `json:"certificate,omitempty"`
}

// GetProgress returns the unlock status of every module. It never writes:
// cooldowns and session deadlines are evaluated against the current time.
func (e *Engine) GetProgress(ctx context.Context, learnerID, courseID string) (*Progress, error) {
	if err := requireIDs("learner_id", learnerID, "course_id", courseID); err != nil {
		return nil, err
	}
	o, err := e.outline(ctx, courseID)
	if err != nil {
		return nil, err
	}
	key := store.Key{LearnerID: learnerID, CourseID: courseID}
	rec, err := e.store.Get(ctx, key)
	if err != nil {
		return nil, classify(key, err)
	}
	sessions, err := e.store.OpenSessions(ctx, key)
	if err != nil {
		return nil, classify(key, err)
	}
	cert, err := e.store.Certificate(ctx, key)
	if err != nil {
		return nil, classify(key, err)
	}

	now := e.clock()
	open := make(map[string]*store.QuizSession, len(sessions))
	for _, s := range sessions {
		if !now.After(s.Deadline.Add(e.grace)) {
			open[s.ModuleID] = s
		}
	}

	statuses := unlock.Compute(o, rec, now)
	p := &Progress{
		LearnerID:   learnerID,
		CourseID:    courseID,
		CourseTitle: o.Title,
		Modules:     make([]ModuleProgress, len(statuses)),
		Summary:     unlock.Summarize(statuses, rec),
		Certificate: cert,
	}
	for i, st := range statuses {
		mp := ModuleProgress{ModuleStatus: st}
		if st.HasQuiz {
			mp.NextAttempt = quiz.AttemptNumber(rec.Attempt(st.ModuleID))
		}
		if st.HasQuiz && st.IsUnlocked {
			sess := open[st.ModuleID]
			mp.QuizState, _ = quiz.StateOf(st.IsCompleted, rec.Attempt(st.ModuleID), sess != nil, now, o.Cooldown)
			if sess != nil {
				mp.OpenSessionID = sess.ID
			}
		}
		p.Modules[i] = mp
	}
	return p, nil
}

// AccessModule records moduleID as the learner's last accessed module.
// The first access creates the progress record. Locked modules are
// refused.
func (e *Engine) AccessModule(ctx context.Context, learnerID, courseID, moduleID string) (*unlock.ModuleStatus, error) {
	if err := requireIDs("learner_id", learnerID, "course_id", courseID, "module_id", moduleID); err != nil {
		return nil, err
	}
	o, _, err := e.module(ctx, courseID, moduleID)
	if err != nil {
		return nil, err
	}
	key := store.Key{LearnerID: learnerID, CourseID: courseID}

	var status unlock.ModuleStatus
	err = e.mutate(ctx, key, func(tx *store.Tx) error {
		status, _ = unlock.Module(o, tx.Record(), moduleID, e.clock())
		if !status.IsUnlocked {
			return &LockedModuleError{ModuleID: moduleID, Reason: quiz.ReasonModuleLocked}
		}
		return tx.TouchModule(ctx, moduleID)
	})
	if err != nil {
		return nil, err
	}
	return &status, nil
}

// CompletionResult is the outcome of CompleteModule.
type CompletionResult struct {
	ModuleID    string             `json:"module_id"`
	Replayed    bool               `json:"replayed"`
	Certificate *store.Certificate `json:"certificate,omitempty"`

	// CertificateIssued is true only for the call that created the
	// certificate.
	CertificateIssued bool `json:"certificate_issued"`
}

// CompleteModule marks a module without a quiz as completed. Completing it
// again is a no-op. Modules with a quiz are completed by passing it.
func (e *Engine) CompleteModule(ctx context.Context, learnerID, courseID, moduleID string) (*CompletionResult, error) {
	if err := requireIDs("learner_id", learnerID, "course_id", courseID, "module_id", moduleID); err != nil {
		return nil, err
	}
	o, m, err := e.module(ctx, courseID, moduleID)
	if err != nil {
		return nil, err
	}
	if m.HasQuiz {
		return nil, &ValidationError{Field: "module", Reason: "module is completed by passing its quiz"}
	}
	key := store.Key{LearnerID: learnerID, CourseID: courseID}

	var (
		res       *CompletionResult
		committed []store.Event
	)
	err = e.mutate(ctx, key, func(tx *store.Tx) error {
		res, committed = &CompletionResult{ModuleID: moduleID}, nil
		now := e.clock()

		status, _ := unlock.Module(o, tx.Record(), moduleID, now)
		if !status.IsUnlocked {
			return &LockedModuleError{ModuleID: moduleID, Reason: quiz.ReasonModuleLocked}
		}
		created, err := tx.UpsertCompletion(ctx, moduleID, now)
		if err != nil {
			return err
		}
		res.Replayed = !created
		if created {
			ev, err := events.New(events.ModuleCompleted, moduleID, nil)
			if err != nil {
				return err
			}
			ev.OccurredAt = now
			if ev, err = tx.AppendEvent(ctx, ev); err != nil {
				return err
			}
			committed = append(committed, ev)
		}

		cert, err := e.certs.Fire(ctx, tx, o, now)
		if err != nil {
			return err
		}
		if cert != nil {
			res.Certificate, res.CertificateIssued = cert.Certificate, cert.Created
			if cert.Event != nil {
				committed = append(committed, *cert.Event)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.publish(ctx, committed)
	return res, nil
}

// Certificate returns the learner's certificate for courseID.
func (e *Engine) Certificate(ctx context.Context, learnerID, courseID string) (*store.Certificate, error) {
	if err := requireIDs("learner_id", learnerID, "course_id", courseID); err != nil {
		return nil, err
	}
	key := store.Key{LearnerID: learnerID, CourseID: courseID}
	cert, err := e.store.Certificate(ctx, key)
	if err != nil {
		return nil, classify(key, err)
	}
	if cert == nil {
		return nil, &NotFoundError{Resource: "certificate", ID: key.String()}
	}
	return cert, nil
}

// Events pages through the event outbox.
func (e *Engine) Events(ctx context.Context, q store.EventQuery) ([]store.Event, error) {
	evs, err := e.store.ListEvents(ctx, q)
	if err != nil {
		return nil, &UnavailableError{Err: err}
	}
	return evs, nil
}
