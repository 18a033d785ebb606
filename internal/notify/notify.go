// Package notify turns committed progression events into messages for
// people: completion emails through SendGrid, posts to a Telegram chat and
// a structured log line per event.
package notify

import (
	"context"
	"fmt"
	"net/mail"

	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/events"
	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/logging"
	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/store"
)

// Subscriber is a named event handler.
type Subscriber interface {
	Name() string
	Handle(ctx context.Context, ev store.Event) error
}

// Register subscribes each notifier to course.completed events.
func Register(bus *events.Bus, subs ...Subscriber) {
	for _, s := range subs {
		bus.Subscribe(s.Name(), events.CourseCompleted, s.Handle)
	}
}

// LogEvents returns a handler that logs every event it receives.
func LogEvents(logger logging.Logger) events.Handler {
	return func(_ context.Context, ev store.Event) error {
		logger.Info("progress event",
			"seq", ev.Sequence, "type", ev.Type,
			"learner", ev.LearnerID, "course", ev.CourseID, "module", ev.ModuleID)
		return nil
	}
}

// completion is the rendered content of a course.completed event.
type completion struct {
	LearnerID     string
	CourseID      string
	CourseTitle   string
	CertificateID string
	ModuleCount   int
}

func completionOf(ev store.Event) (completion, error) {
	var data events.CourseCompletedData
	if err := events.Decode(ev, &data); err != nil {
		return completion{}, err
	}
	c := completion{
		LearnerID:     ev.LearnerID,
		CourseID:      ev.CourseID,
		CourseTitle:   data.CourseTitle,
		CertificateID: data.CertificateID,
		ModuleCount:   data.ModuleCount,
	}
	if c.CertificateID == "" {
		c.CertificateID = ev.CertificateID
	}
	if c.CourseTitle == "" {
		c.CourseTitle = ev.CourseID
	}
	return c, nil
}

func (c completion) text() string {
	return fmt.Sprintf("%s completed %q (%d modules). Certificate %s.",
		c.LearnerID, c.CourseTitle, c.ModuleCount, c.CertificateID)
}

// learnerAddress returns the learner's email when the learner ID is one.
func learnerAddress(learnerID string) (*mail.Address, bool) {
	addr, err := mail.ParseAddress(learnerID)
	if err != nil {
		return nil, false
	}
	return addr, true
}
