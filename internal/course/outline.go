package course

import (
	"errors"
	"time"
)

// Default course policy values used when an outline leaves them unset.
const (
	DefaultCooldown     = 24 * time.Hour
	DefaultQuizDuration = 15 * time.Minute
)

// ErrUnknownCourse is returned by a Catalog for course IDs it does not know.
var ErrUnknownCourse = errors.New("unknown course")

// Outline is the ordered module list of a course together with the
// course-level quiz policy. It is owned by course authoring and treated as
// immutable while learners progress through it.
type Outline struct {
	ID            string
	Title         string
	SchemaVersion string

	// Cooldown is the wait enforced after a failed retake. Zero takes the
	// catalog default unless set explicitly with SetCooldown.
	Cooldown    time.Duration
	cooldownSet bool

	// QuizDuration is the wall-clock time box of a single quiz session.
	QuizDuration time.Duration

	Modules []ModuleRef
}

// ModuleRef is a single module position in an outline.
type ModuleRef struct {
	ID      string
	Title   string
	HasQuiz bool

	// QuestionSets holds the answer keys for the module quiz. Retakes rotate
	// through the sets so that a retake sees a new set when one exists.
	QuestionSets []QuestionSet
}

// QuestionSet is one complete quiz for a module.
type QuestionSet []Question

// Question is a single multiple-choice question. Answer is the index of
// the correct option and never leaves the server.
type Question struct {
	ID      string
	Prompt  string
	Options []string
	Answer  int
}

// Index returns the position of moduleID in the outline, or -1.
func (o *Outline) Index(moduleID string) int {
	for i, m := range o.Modules {
		if m.ID == moduleID {
			return i
		}
	}
	return -1
}

// Module returns the module with the given ID.
func (o *Outline) Module(moduleID string) (ModuleRef, bool) {
	if i := o.Index(moduleID); i >= 0 {
		return o.Modules[i], true
	}
	return ModuleRef{}, false
}

// ModuleIDs returns module IDs in outline order.
func (o *Outline) ModuleIDs() []string {
	ids := make([]string, len(o.Modules))
	for i, m := range o.Modules {
		ids[i] = m.ID
	}
	return ids
}

// QuestionSet returns the set served to a learner who has failed the quiz
// `failures` times so far. The second return is the index of that set.
func (m ModuleRef) QuestionSet(failures int) (QuestionSet, int) {
	if len(m.QuestionSets) == 0 {
		return nil, 0
	}
	if failures < 0 {
		failures = 0
	}
	idx := failures % len(m.QuestionSets)
	return m.QuestionSets[idx], idx
}

// SetAt returns the question set at idx, or nil when out of range.
func (m ModuleRef) SetAt(idx int) QuestionSet {
	if idx < 0 || idx >= len(m.QuestionSets) {
		return nil
	}
	return m.QuestionSets[idx]
}

// SetCooldown sets the retake cooldown. A zero cooldown set this way
// disables the wait instead of taking the default.
func (o *Outline) SetCooldown(d time.Duration) {
	o.Cooldown = d
	o.cooldownSet = true
}

// applyDefaults fills in zero-valued policy fields.
func (o *Outline) applyDefaults(cooldown, quizDuration time.Duration) {
	if o.Cooldown == 0 && !o.cooldownSet {
		o.Cooldown = cooldown
	}
	if o.QuizDuration == 0 {
		o.QuizDuration = quizDuration
	}
}
