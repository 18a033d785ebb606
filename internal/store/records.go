package store

import (
	"encoding/json"
	"errors"
	"sort"
	"time"
)

var (
	// ErrConflict is returned when a concurrent writer changed the progress
	// record between load and write. The unit of work is rolled back.
	ErrConflict = errors.New("concurrent progress update")

	// ErrNotFound is returned for lookups of rows that do not exist.
	ErrNotFound = errors.New("not found")
)

// MaxAttemptCount caps AttemptState.AttemptCount. There is no third attempt;
// failures after the retake only refresh LastFailureAt.
const MaxAttemptCount = 2

// Key identifies a progress record.
type Key struct {
	LearnerID string
	CourseID  string
}

func (k Key) String() string {
	return k.LearnerID + "/" + k.CourseID
}

// Outcome is the result of a graded quiz submission.
type Outcome string

const (
	Pass Outcome = "pass"
	Fail Outcome = "fail"
)

// AttemptState is the per-module quiz failure history.
type AttemptState struct {
	AttemptCount  int        `json:"attempt_count"`
	LastFailureAt *time.Time `json:"last_failure_at,omitempty"`

	// Failures counts every failed submission, including those after the
	// count reached its cap. It only selects question sets.
	Failures int `json:"failures"`
}

// Record returns the state after a submission with the given outcome.
// A pass leaves the failure history untouched.
func (a AttemptState) Record(outcome Outcome, at time.Time) AttemptState {
	if outcome != Fail {
		return a
	}
	next := a
	next.Failures++
	if next.AttemptCount < MaxAttemptCount {
		next.AttemptCount++
	}
	if next.AttemptCount == MaxAttemptCount {
		t := at
		next.LastFailureAt = &t
	}
	return next
}

// ProgressRecord is the full progression state of a learner in a course.
type ProgressRecord struct {
	LearnerID          string
	CourseID           string
	CompletedModules   map[string]time.Time
	LastAccessedModule string
	QuizAttempts       map[string]AttemptState
	Version            int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// NewProgressRecord returns the empty default record for key.
func NewProgressRecord(key Key) *ProgressRecord {
	return &ProgressRecord{
		LearnerID:        key.LearnerID,
		CourseID:         key.CourseID,
		CompletedModules: make(map[string]time.Time),
		QuizAttempts:     make(map[string]AttemptState),
	}
}

// Key returns the record's key.
func (r *ProgressRecord) Key() Key {
	return Key{LearnerID: r.LearnerID, CourseID: r.CourseID}
}

// IsCompleted reports whether moduleID is in the completed set.
func (r *ProgressRecord) IsCompleted(moduleID string) bool {
	_, ok := r.CompletedModules[moduleID]
	return ok
}

// Attempt returns the attempt state for moduleID (zero value if none).
func (r *ProgressRecord) Attempt(moduleID string) AttemptState {
	return r.QuizAttempts[moduleID]
}

// CompletedIDs returns completed module IDs sorted by completion time.
func (r *ProgressRecord) CompletedIDs() []string {
	ids := make([]string, 0, len(r.CompletedModules))
	for id := range r.CompletedModules {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		ti, tj := r.CompletedModules[ids[i]], r.CompletedModules[ids[j]]
		if ti.Equal(tj) {
			return ids[i] < ids[j]
		}
		return ti.Before(tj)
	})
	return ids
}

// Certificate is the one-time record of a completed course.
type Certificate struct {
	ID          string    `json:"id" db:"id"`
	LearnerID   string    `json:"learner_id" db:"learner_id"`
	CourseID    string    `json:"course_id" db:"course_id"`
	ModuleCount int       `json:"module_count" db:"module_count"`
	IssuedAt    time.Time `json:"issued_at" db:"issued_at"`
}

// Event is a persisted domain event. Sequence is assigned on append.
type Event struct {
	Sequence      int64           `json:"sequence" db:"id"`
	Type          string          `json:"type" db:"type"`
	LearnerID     string          `json:"learner_id" db:"learner_id"`
	CourseID      string          `json:"course_id" db:"course_id"`
	ModuleID      string          `json:"module_id,omitempty" db:"module_id"`
	CertificateID string          `json:"certificate_id,omitempty" db:"certificate_id"`
	Data          json.RawMessage `json:"data,omitempty" db:"data"`
	OccurredAt    time.Time       `json:"occurred_at" db:"occurred_at"`
}

// SessionStatus is the lifecycle of a time-boxed quiz session.
type SessionStatus string

const (
	SessionOpen      SessionStatus = "open"
	SessionSubmitted SessionStatus = "submitted"
)

// QuizSession is a time-boxed quiz attempt. Answers holds the learner's
// current selections (question ID to option index) so that an expired
// session can be submitted on the learner's behalf.
type QuizSession struct {
	ID            string
	LearnerID     string
	CourseID      string
	ModuleID      string
	AttemptNumber int
	QuestionSet   int
	StartedAt     time.Time
	Deadline      time.Time
	Answers       map[string]int
	Status        SessionStatus

	// Set once submitted.
	SubmittedAt   *time.Time
	Passed        bool
	Correct       int
	Total         int
	AutoSubmitted bool
}

// Key returns the progress key the session belongs to.
func (s *QuizSession) Key() Key {
	return Key{LearnerID: s.LearnerID, CourseID: s.CourseID}
}

// Expired reports whether the session deadline has passed at now.
func (s *QuizSession) Expired(now time.Time) bool {
	return !now.Before(s.Deadline)
}
