// Package unlock derives which modules of a course a learner may open and
// which quizzes they may take right now. Everything here is a pure function
// of the outline, the stored progress record and the current time, so
// cooldown expiry is evaluated lazily on every read.
package unlock

import (
	"time"

	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/course"
	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/store"
)

// ModuleStatus is the derived view of one outline module for a learner.
type ModuleStatus struct {
	ModuleID    string `json:"module_id"`
	Title       string `json:"title,omitempty"`
	Index       int    `json:"index"`
	IsUnlocked  bool   `json:"is_unlocked"`
	IsCompleted bool   `json:"is_completed"`
	CanTakeQuiz bool   `json:"can_take_quiz"`

	HasQuiz           bool          `json:"has_quiz"`
	AttemptCount      int           `json:"attempt_count"`
	CooldownRemaining time.Duration `json:"cooldown_remaining"`
	CompletedAt       *time.Time    `json:"completed_at,omitempty"`
}

// Compute returns the status of every module in outline order.
//
// Module 0 is always unlocked; module i is unlocked iff module i-1 is
// completed. Completion of later modules never unlocks earlier ones: the
// check looks only at the immediate predecessor.
func Compute(outline *course.Outline, rec *store.ProgressRecord, now time.Time) []ModuleStatus {
	statuses := make([]ModuleStatus, len(outline.Modules))
	for i, m := range outline.Modules {
		st := ModuleStatus{
			ModuleID: m.ID,
			Title:    m.Title,
			Index:    i,
			HasQuiz:  m.HasQuiz,
		}
		if at, ok := rec.CompletedModules[m.ID]; ok {
			st.IsCompleted = true
			at := at
			st.CompletedAt = &at
		}
		st.IsUnlocked = i == 0 || rec.IsCompleted(outline.Modules[i-1].ID)

		attempt := rec.Attempt(m.ID)
		st.AttemptCount = attempt.AttemptCount

		if st.IsUnlocked && !st.IsCompleted && m.HasQuiz {
			st.CanTakeQuiz, st.CooldownRemaining = QuizAvailability(attempt, now, outline.Cooldown)
		}
		statuses[i] = st
	}
	return statuses
}

// Module returns the status of a single module, or false if the outline
// does not contain it.
func Module(outline *course.Outline, rec *store.ProgressRecord, moduleID string, now time.Time) (ModuleStatus, bool) {
	i := outline.Index(moduleID)
	if i < 0 {
		return ModuleStatus{}, false
	}
	return Compute(outline, rec, now)[i], true
}

// QuizAvailability reports whether a quiz with the given attempt history
// may be started at now, and how long the learner must wait otherwise.
//
// The first attempt and the free retake are always available. After the
// retake has failed, the quiz is locked until cooldown has elapsed since
// the most recent failure.
func QuizAvailability(attempt store.AttemptState, now time.Time, cooldown time.Duration) (bool, time.Duration) {
	if attempt.AttemptCount < store.MaxAttemptCount || attempt.LastFailureAt == nil {
		return true, 0
	}
	elapsed := now.Sub(*attempt.LastFailureAt)
	if elapsed >= cooldown {
		return true, 0
	}
	remaining := cooldown - elapsed
	if remaining > cooldown {
		// Failure timestamp in the future (clock skew between nodes).
		remaining = cooldown
	}
	return false, remaining
}

// Summary is the course-level progress overview.
type Summary struct {
	Completed          int    `json:"completed"`
	Total              int    `json:"total"`
	Percent            int    `json:"percent"`
	NextModule         string `json:"next_module,omitempty"`
	LastAccessedModule string `json:"last_accessed_module,omitempty"`
	CourseCompleted    bool   `json:"course_completed"`
}

// Summarize condenses module statuses into a Summary. NextModule is the
// first unlocked module that is not yet completed.
func Summarize(statuses []ModuleStatus, rec *store.ProgressRecord) Summary {
	s := Summary{Total: len(statuses), LastAccessedModule: rec.LastAccessedModule}
	for _, st := range statuses {
		if st.IsCompleted {
			s.Completed++
			continue
		}
		if s.NextModule == "" && st.IsUnlocked {
			s.NextModule = st.ModuleID
		}
	}
	if s.Total > 0 {
		s.Percent = s.Completed * 100 / s.Total
	}
	s.CourseCompleted = s.Total > 0 && s.Completed == s.Total
	return s
}
