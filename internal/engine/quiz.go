package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/course"
	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/events"
	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/quiz"
	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/store"
	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/unlock"
)

// QuizView is an open quiz session as presented to the learner.
type QuizView struct {
	SessionID     string                `json:"session_id"`
	ModuleID      string                `json:"module_id"`
	AttemptNumber int                   `json:"attempt_number"`
	StartedAt     time.Time             `json:"started_at"`
	Deadline      time.Time             `json:"deadline"`
	Questions     []quiz.PublicQuestion `json:"questions"`
	Answers       map[string]int        `json:"answers,omitempty"`
	Resumed       bool                  `json:"resumed"`
}

// Submission is a learner's answer sheet for a module quiz.
type Submission struct {
	LearnerID string
	CourseID  string
	ModuleID  string

	// SessionID binds the submission to a started session. Without it the
	// submission binds to the module's open session, if any.
	SessionID string

	// AttemptNumber is the attempt the client believes it is submitting.
	// Zero skips the check.
	AttemptNumber int

	// Answers maps question ID to the chosen option index.
	Answers map[string]int
}

// SubmitResult is the outcome of a quiz submission.
type SubmitResult struct {
	ModuleID          string             `json:"module_id"`
	SessionID         string             `json:"session_id,omitempty"`
	Passed            bool               `json:"passed"`
	Score             quiz.Score         `json:"score"`
	AttemptNumber     int                `json:"attempt_number"`
	AttemptCount      int                `json:"attempt_count"`
	CooldownRemaining time.Duration      `json:"cooldown_remaining,omitempty"`
	State             quiz.State         `json:"state"`
	Replayed          bool               `json:"replayed"`
	AutoSubmitted     bool               `json:"auto_submitted"`
	Certificate       *store.Certificate `json:"certificate,omitempty"`
	CertificateIssued bool               `json:"certificate_issued"`
}

// StartQuiz opens a time-boxed quiz session, or resumes the module's open
// session. An open session past its deadline plus grace is submitted with
// its saved answers first, and admission is decided on the resulting state.
// A refusal writes nothing unless such a session was graded.
func (e *Engine) StartQuiz(ctx context.Context, learnerID, courseID, moduleID string) (*QuizView, error) {
	if err := requireIDs("learner_id", learnerID, "course_id", courseID, "module_id", moduleID); err != nil {
		return nil, err
	}
	o, m, err := e.module(ctx, courseID, moduleID)
	if err != nil {
		return nil, err
	}
	if !m.HasQuiz {
		return nil, &ValidationError{Field: "module", Reason: "module has no quiz"}
	}
	key := store.Key{LearnerID: learnerID, CourseID: courseID}
	machine := quiz.Machine{Cooldown: o.Cooldown}

	var (
		view      *QuizView
		refused   error
		committed []store.Event
	)
	err = e.mutate(ctx, key, func(tx *store.Tx) error {
		view, refused, committed = nil, nil, nil
		now := e.clock()

		open, err := tx.OpenSession(ctx, moduleID)
		if err != nil {
			return err
		}
		// Within the grace window a late submission may still arrive.
		if open != nil && !now.After(open.Deadline.Add(e.grace)) {
			view = presentSession(m, open, true)
			return nil
		}
		graded := open != nil
		if graded {
			// Expired: the saved draft is graded as the learner's attempt.
			_, evs, err := e.gradeLocked(ctx, tx, o, m, open, nil, now)
			if err != nil {
				return err
			}
			committed = append(committed, evs...)
		}

		rec := tx.Record()
		status, _ := unlock.Module(o, rec, moduleID, now)
		attempt := rec.Attempt(moduleID)
		adm := machine.Admit(status, attempt, now)
		if !adm.Allowed {
			if !graded {
				return lockedError(moduleID, adm)
			}
			refused = lockedError(moduleID, adm)
			return nil
		}

		_, idx := m.QuestionSet(attempt.Failures)
		sess := &store.QuizSession{
			ID:            e.newID(),
			ModuleID:      moduleID,
			AttemptNumber: adm.AttemptNumber,
			QuestionSet:   idx,
			StartedAt:     now,
			Deadline:      now.Add(o.QuizDuration),
			Answers:       map[string]int{},
		}
		if err := tx.CreateSession(ctx, sess); err != nil {
			return err
		}
		if err := tx.TouchModule(ctx, moduleID); err != nil {
			return err
		}
		ev, err := events.New(events.QuizStarted, moduleID, events.QuizStartedData{
			SessionID:     sess.ID,
			AttemptNumber: sess.AttemptNumber,
			Deadline:      sess.Deadline,
		})
		if err != nil {
			return err
		}
		ev.OccurredAt = now
		if ev, err = tx.AppendEvent(ctx, ev); err != nil {
			return err
		}
		committed = append(committed, ev)
		view = presentSession(m, sess, false)
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.publish(ctx, committed)
	if refused != nil {
		return nil, refused
	}
	return view, nil
}

func presentSession(m course.ModuleRef, s *store.QuizSession, resumed bool) *QuizView {
	return &QuizView{
		SessionID:     s.ID,
		ModuleID:      s.ModuleID,
		AttemptNumber: s.AttemptNumber,
		StartedAt:     s.StartedAt,
		Deadline:      s.Deadline,
		Questions:     quiz.Present(m.SetAt(s.QuestionSet)),
		Answers:       s.Answers,
		Resumed:       resumed,
	}
}

// SaveAnswers replaces the draft answers of an open session. Drafts are
// what an expired session is graded with.
func (e *Engine) SaveAnswers(ctx context.Context, learnerID, sessionID string, answers map[string]int) error {
	if err := requireIDs("learner_id", learnerID, "session_id", sessionID); err != nil {
		return err
	}
	sess, err := e.ownedSession(ctx, learnerID, sessionID)
	if err != nil {
		return err
	}
	if sess.Status != store.SessionOpen {
		return &ValidationError{Field: "session", Reason: "session already submitted"}
	}
	if sess.Expired(e.clock()) {
		return &ValidationError{Field: "session", Reason: "session deadline has passed"}
	}
	_, m, err := e.module(ctx, sess.CourseID, sess.ModuleID)
	if err != nil {
		return err
	}
	if _, err := quiz.Grade(m.SetAt(sess.QuestionSet), answers); err != nil {
		return answerError(err)
	}

	err = e.store.SaveSessionAnswers(ctx, sessionID, answers)
	if errors.Is(err, store.ErrNotFound) {
		return &ValidationError{Field: "session", Reason: "session already submitted"}
	}
	return classify(sess.Key(), err)
}

func (e *Engine) ownedSession(ctx context.Context, learnerID, sessionID string) (*store.QuizSession, error) {
	sess, err := e.store.Session(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && sess.LearnerID != learnerID) {
		return nil, &NotFoundError{Resource: "session", ID: sessionID}
	}
	if err != nil {
		return nil, &UnavailableError{Err: err}
	}
	return sess, nil
}

// SubmitQuiz grades a submission and records its outcome: a pass
// completes the module (and may issue the certificate), a failure advances
// the attempt state. Replays of a submitted session or of a completed
// module return the recorded outcome without writing. A submission without
// a session must name its attempt number, and one naming a spent attempt
// is a non-retryable conflict. It is graded against the module's open
// session when there is one, so that session's deadline still applies.
func (e *Engine) SubmitQuiz(ctx context.Context, sub Submission) (*SubmitResult, error) {
	if err := requireIDs("learner_id", sub.LearnerID, "course_id", sub.CourseID, "module_id", sub.ModuleID); err != nil {
		return nil, err
	}
	if sub.AttemptNumber < 0 {
		return nil, &ValidationError{Field: "attempt_number", Reason: "must not be negative"}
	}
	o, m, err := e.module(ctx, sub.CourseID, sub.ModuleID)
	if err != nil {
		return nil, err
	}
	if !m.HasQuiz {
		return nil, &ValidationError{Field: "module", Reason: "module has no quiz"}
	}
	key := store.Key{LearnerID: sub.LearnerID, CourseID: sub.CourseID}
	machine := quiz.Machine{Cooldown: o.Cooldown}

	// Replays against a completed module need no unit of work.
	if sub.SessionID == "" {
		rec, err := e.store.Get(ctx, key)
		if err != nil {
			return nil, classify(key, err)
		}
		if rec.IsCompleted(sub.ModuleID) {
			return completedReplay(rec, sub.ModuleID), nil
		}
	}

	var (
		res       *SubmitResult
		committed []store.Event
	)
	err = e.mutate(ctx, key, func(tx *store.Tx) error {
		res, committed = nil, nil
		now := e.clock()

		var sess *store.QuizSession
		if sub.SessionID != "" {
			s, err := tx.Session(ctx, sub.SessionID)
			if errors.Is(err, store.ErrNotFound) || (err == nil && (s.Key() != key || s.ModuleID != sub.ModuleID)) {
				return &NotFoundError{Resource: "session", ID: sub.SessionID}
			}
			if err != nil {
				return err
			}
			if s.Status == store.SessionSubmitted {
				res = replaySession(s, tx.Record(), machine, now)
				return nil
			}
			sess = s
		}

		rec := tx.Record()
		if rec.IsCompleted(sub.ModuleID) {
			res = completedReplay(rec, sub.ModuleID)
			return nil
		}

		// Without a session only the attempt number tells a resent
		// failure apart from the next attempt.
		if sub.SessionID == "" && sub.AttemptNumber == 0 {
			return &ValidationError{Field: "attempt_number", Reason: "required without session_id"}
		}

		if sess == nil {
			s, err := tx.OpenSession(ctx, sub.ModuleID)
			if err != nil {
				return err
			}
			sess = s
		}

		status, _ := unlock.Module(o, rec, sub.ModuleID, now)
		attempt := rec.Attempt(sub.ModuleID)
		adm := machine.Admit(status, attempt, now)
		if !adm.Allowed {
			return lockedError(sub.ModuleID, adm)
		}
		if sub.AttemptNumber != 0 && sub.AttemptNumber != adm.AttemptNumber {
			return &ConflictError{Key: key, Err: fmt.Errorf("%w: got %d, current %d", errStaleAttempt, sub.AttemptNumber, adm.AttemptNumber)}
		}
		if sess != nil && sess.AttemptNumber != adm.AttemptNumber {
			return &ConflictError{Key: key, Err: fmt.Errorf("%w: session %s was opened for attempt %d", errStaleAttempt, sess.ID, sess.AttemptNumber)}
		}

		r, evs, err := e.gradeLocked(ctx, tx, o, m, sess, sub.Answers, now)
		if err != nil {
			return err
		}
		res, committed = r, evs
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.publish(ctx, committed)
	return res, nil
}

func completedReplay(rec *store.ProgressRecord, moduleID string) *SubmitResult {
	attempt := rec.Attempt(moduleID)
	return &SubmitResult{
		ModuleID:      moduleID,
		Passed:        true,
		AttemptNumber: quiz.AttemptNumber(attempt),
		AttemptCount:  attempt.AttemptCount,
		State:         quiz.StatePassed,
		Replayed:      true,
	}
}

func replaySession(s *store.QuizSession, rec *store.ProgressRecord, machine quiz.Machine, now time.Time) *SubmitResult {
	attempt := rec.Attempt(s.ModuleID)
	state, remaining := quiz.StateOf(rec.IsCompleted(s.ModuleID), attempt, false, now, machine.Cooldown)
	return &SubmitResult{
		ModuleID:          s.ModuleID,
		SessionID:         s.ID,
		Passed:            s.Passed,
		Score:             quiz.Score{Correct: s.Correct, Total: s.Total},
		AttemptNumber:     s.AttemptNumber,
		AttemptCount:      attempt.AttemptCount,
		CooldownRemaining: remaining,
		State:             state,
		Replayed:          true,
		AutoSubmitted:     s.AutoSubmitted,
	}
}

// gradeLocked grades one attempt inside a unit of work and records its
// outcome. sess may be nil for a submission without a session; when set,
// the answers graded follow the session's deadline rules and the session
// is closed. submitted == nil means "no learner answers", as for an
// expired session.
func (e *Engine) gradeLocked(ctx context.Context, tx *store.Tx, o *course.Outline, m course.ModuleRef, sess *store.QuizSession, submitted map[string]int, now time.Time) (*SubmitResult, []store.Event, error) {
	machine := quiz.Machine{Cooldown: o.Cooldown}
	rec := tx.Record()
	attempt := rec.Attempt(m.ID)

	answers, auto := submitted, false
	set, setIdx := m.QuestionSet(attempt.Failures)
	attemptNumber := quiz.AttemptNumber(attempt)
	if sess != nil {
		answers, auto = quiz.SubmissionAnswers(sess, submitted, now, e.grace)
		set, setIdx = m.SetAt(sess.QuestionSet), sess.QuestionSet
		attemptNumber = sess.AttemptNumber
	}

	// A session whose module was completed or locked in the meantime is
	// closed without grading.
	if sess != nil && (rec.IsCompleted(m.ID) || attemptNumber != quiz.AttemptNumber(attempt)) {
		sess.SubmittedAt, sess.AutoSubmitted = &now, auto
		if err := tx.CompleteSession(ctx, sess); err != nil {
			return nil, nil, err
		}
		return replaySession(sess, rec, machine, now), nil, nil
	}

	score, err := quiz.Grade(set, answers)
	if err != nil {
		return nil, nil, answerError(err)
	}
	passed := score.Passed()
	trigger := quiz.TriggerSubmit
	if auto {
		trigger = quiz.TriggerAutoSubmit
	}
	next, tr := machine.Apply(m.ID, attempt, passed, now, trigger)

	res := &SubmitResult{
		ModuleID:      m.ID,
		Passed:        passed,
		Score:         score,
		AttemptNumber: attemptNumber,
		AttemptCount:  next.AttemptCount,
		State:         tr.To,
		AutoSubmitted: auto,
	}
	var committed []store.Event
	appendEvent := func(ev store.Event, err error) error {
		if err != nil {
			return err
		}
		ev.OccurredAt = now
		ev, err = tx.AppendEvent(ctx, ev)
		if err != nil {
			return err
		}
		committed = append(committed, ev)
		return nil
	}

	if sess != nil {
		res.SessionID = sess.ID
		sess.Answers = answers
		sess.SubmittedAt = &now
		sess.Passed, sess.Correct, sess.Total = passed, score.Correct, score.Total
		sess.AutoSubmitted = auto
		if err := tx.CompleteSession(ctx, sess); err != nil {
			return nil, nil, err
		}
	}

	data := events.QuizResultData{
		SessionID:         res.SessionID,
		AttemptNumber:     attemptNumber,
		AttemptCount:      next.AttemptCount,
		Correct:           score.Correct,
		Total:             score.Total,
		AutoSubmitted:     auto,
		From:              string(tr.From),
		To:                string(tr.To),
		QuestionSetNumber: setIdx,
	}

	if !passed {
		if _, err := tx.RecordAttempt(ctx, m.ID, store.Fail, now); err != nil {
			return nil, nil, err
		}
		res.CooldownRemaining = machine.CooldownAfter(next, now)
		data.CooldownSeconds = int64(res.CooldownRemaining / time.Second)
		if err := appendEvent(events.New(events.QuizFailed, m.ID, data)); err != nil {
			return nil, nil, err
		}
		e.logger.Info("quiz failed", "key", tx.Key(), "module", m.ID, "attempt", attemptNumber, "state", tr.To)
		return res, committed, nil
	}

	if _, err := tx.UpsertCompletion(ctx, m.ID, now); err != nil {
		return nil, nil, err
	}
	if err := appendEvent(events.New(events.QuizPassed, m.ID, data)); err != nil {
		return nil, nil, err
	}
	if err := appendEvent(events.New(events.ModuleCompleted, m.ID, nil)); err != nil {
		return nil, nil, err
	}
	cert, err := e.certs.Fire(ctx, tx, o, now)
	if err != nil {
		return nil, nil, err
	}
	if cert != nil {
		res.Certificate, res.CertificateIssued = cert.Certificate, cert.Created
		if cert.Event != nil {
			committed = append(committed, *cert.Event)
		}
	}
	e.logger.Info("quiz passed", "key", tx.Key(), "module", m.ID, "attempt", attemptNumber)
	return res, committed, nil
}

func answerError(err error) error {
	var ae *quiz.AnswerError
	if errors.As(err, &ae) {
		return &ValidationError{Field: "answers", Reason: ae.Error()}
	}
	return err
}

// ExpireSessions submits every open session whose deadline plus grace has
// passed, grading the answers saved before the deadline. It returns the
// number of sessions closed.
func (e *Engine) ExpireSessions(ctx context.Context) (int, error) {
	cutoff := e.clock().Add(-e.grace)
	sessions, err := e.store.ExpiredSessions(ctx, cutoff, e.batch)
	if err != nil {
		return 0, &UnavailableError{Err: err}
	}

	var (
		closed int
		errs   []error
	)
	for _, s := range sessions {
		ok, err := e.expire(ctx, s)
		if err != nil {
			e.logger.Error("expire quiz session", "session", s.ID, "err", err)
			errs = append(errs, err)
			continue
		}
		if ok {
			closed++
		}
	}
	return closed, errors.Join(errs...)
}

func (e *Engine) expire(ctx context.Context, s *store.QuizSession) (bool, error) {
	o, m, err := e.module(ctx, s.CourseID, s.ModuleID)
	if err != nil {
		return false, err
	}
	var (
		closed    bool
		committed []store.Event
	)
	err = e.mutate(ctx, s.Key(), func(tx *store.Tx) error {
		closed, committed = false, nil
		sess, err := tx.Session(ctx, s.ID)
		if err != nil {
			return err
		}
		if sess.Status != store.SessionOpen {
			return nil
		}
		_, evs, err := e.gradeLocked(ctx, tx, o, m, sess, nil, e.clock())
		if err != nil {
			return err
		}
		closed, committed = true, evs
		return nil
	})
	if err != nil {
		return false, err
	}
	e.publish(ctx, committed)
	return closed, nil
}
