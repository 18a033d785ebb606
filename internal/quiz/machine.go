// Package quiz implements the module quiz lifecycle: admission, grading and
// the attempt state transitions of the first attempt, the free retake and
// the cooldown that follows a failed retake.
package quiz

import (
	"time"

	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/store"
	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/unlock"
)

// Reasons a quiz is refused.
const (
	ReasonModuleLocked = "module-locked"
	ReasonCompleted    = "module-completed"
	ReasonNoQuiz       = "no-quiz"
	ReasonCoolingDown  = "cooling-down"
)

// Machine applies the attempt rules with a course's cooldown.
type Machine struct {
	Cooldown time.Duration
}

// Admission is the answer to "may this learner take the quiz now?".
type Admission struct {
	Allowed bool

	// AttemptNumber identifies the attempt a submission must carry. It is
	// one more than the number of recorded failures, so it keeps growing
	// after the attempt count has reached its cap.
	AttemptNumber int

	Reason            string
	CooldownRemaining time.Duration
}

// AttemptNumber returns the attempt number the next submission uses.
func AttemptNumber(attempt store.AttemptState) int {
	return attempt.Failures + 1
}

// Admit decides whether a quiz may be started or submitted for status.
func (m Machine) Admit(status unlock.ModuleStatus, attempt store.AttemptState, now time.Time) Admission {
	a := Admission{AttemptNumber: AttemptNumber(attempt)}
	switch {
	case !status.IsUnlocked:
		a.Reason = ReasonModuleLocked
	case status.IsCompleted:
		a.Reason = ReasonCompleted
	case !status.HasQuiz:
		a.Reason = ReasonNoQuiz
	default:
		ok, remaining := unlock.QuizAvailability(attempt, now, m.Cooldown)
		if !ok {
			a.Reason, a.CooldownRemaining = ReasonCoolingDown, remaining
			return a
		}
		a.Allowed = true
	}
	return a
}

// Apply returns the attempt state after a graded submission. A pass leaves
// the failure history as it was; the caller marks the module completed.
func (m Machine) Apply(moduleID string, prev store.AttemptState, passed bool, now time.Time, trigger string) (store.AttemptState, *Transition) {
	tr := &Transition{ModuleID: moduleID, From: StateInProgress, Trigger: trigger}
	if passed {
		tr.To = StatePassed
		return prev, tr
	}
	next := prev.Record(store.Fail, now)
	if next.AttemptCount < store.MaxAttemptCount {
		tr.To = StateFailedFirstAttempt
	} else {
		tr.To = StateFailedRetakeCoolingDown
	}
	return next, tr
}

// CooldownAfter returns the cooldown a learner faces right after next was
// recorded. It is zero unless the retake has been failed.
func (m Machine) CooldownAfter(next store.AttemptState, now time.Time) time.Duration {
	_, remaining := unlock.QuizAvailability(next, now, m.Cooldown)
	return remaining
}
