package quiz

import (
	"time"

	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/store"
	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/unlock"
)

// State is a module quiz's position in the attempt lifecycle.
type State string

const (
	StateNotStarted              State = "not-started"
	StateInProgress              State = "in-progress"
	StatePassed                  State = "passed"
	StateFailedFirstAttempt      State = "failed-first-attempt"
	StateFailedRetakeCoolingDown State = "failed-retake-cooling-down"
)

// Transition records a quiz state change for display and event logging.
type Transition struct {
	ModuleID string
	From     State
	To       State
	Trigger  string // "submit", "auto-submit"
}

// StateOf derives the current state from stored facts. A module that left
// the cooling-down state by waiting out the cooldown reports
// StateFailedRetakeCoolingDown with zero remaining time.
func StateOf(completed bool, attempt store.AttemptState, inProgress bool, now time.Time, cooldown time.Duration) (State, time.Duration) {
	switch {
	case completed:
		return StatePassed, 0
	case inProgress:
		return StateInProgress, 0
	case attempt.AttemptCount == 0:
		return StateNotStarted, 0
	case attempt.AttemptCount == 1:
		return StateFailedFirstAttempt, 0
	}
	_, remaining := unlock.QuizAvailability(attempt, now, cooldown)
	return StateFailedRetakeCoolingDown, remaining
}
