// Package events defines the progression domain events and an in-process
// bus that fans committed events out to subscribers.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/store"
)

// Event types.
const (
	ModuleCompleted = "module.completed"
	QuizStarted     = "quiz.started"
	QuizPassed      = "quiz.passed"
	QuizFailed      = "quiz.failed"
	CourseCompleted = "course.completed"
)

// QuizResultData is the payload of quiz.passed and quiz.failed.
type QuizResultData struct {
	SessionID         string `json:"session_id,omitempty"`
	AttemptNumber     int    `json:"attempt_number"`
	AttemptCount      int    `json:"attempt_count"`
	Correct           int    `json:"correct"`
	Total             int    `json:"total"`
	AutoSubmitted     bool   `json:"auto_submitted,omitempty"`
	CooldownSeconds   int64  `json:"cooldown_seconds,omitempty"`
	From              string `json:"from"`
	To                string `json:"to"`
	QuestionSetNumber int    `json:"question_set"`
}

// QuizStartedData is the payload of quiz.started.
type QuizStartedData struct {
	SessionID     string    `json:"session_id"`
	AttemptNumber int       `json:"attempt_number"`
	Deadline      time.Time `json:"deadline"`
}

// CourseCompletedData is the payload of course.completed.
type CourseCompletedData struct {
	CertificateID string `json:"certificate_id"`
	ModuleCount   int    `json:"module_count"`
	CourseTitle   string `json:"course_title,omitempty"`
}

// New builds an unsaved event of the given type with a JSON payload.
func New(typ, moduleID string, data any) (store.Event, error) {
	ev := store.Event{Type: typ, ModuleID: moduleID}
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return ev, fmt.Errorf("encode %s payload: %w", typ, err)
		}
		ev.Data = b
	}
	return ev, nil
}

// Decode unmarshals the payload of ev into v.
func Decode(ev store.Event, v any) error {
	if len(ev.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(ev.Data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", ev.Type, err)
	}
	return nil
}
