// Package certificate issues the one-time course completion certificate
// once a learner's completed set covers the whole outline.
package certificate

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/course"
	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/events"
	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/store"
)

// Covers reports whether every outline module is in the completed set.
// An empty outline is never covered.
func Covers(outline *course.Outline, rec *store.ProgressRecord) bool {
	if len(outline.Modules) == 0 {
		return false
	}
	for _, m := range outline.Modules {
		if !rec.IsCompleted(m.ID) {
			return false
		}
	}
	return true
}

// Result is the outcome of Trigger.Fire.
type Result struct {
	Certificate *store.Certificate

	// Created is true only for the call that inserted the certificate.
	Created bool

	// Event is the appended course.completed event when Created.
	Event *store.Event
}

// Trigger issues certificates inside a progress unit of work.
type Trigger struct {
	// NewID generates certificate IDs. Defaults to random UUIDs.
	NewID func() string
}

// Fire runs after a module completion inside the same unit of work. When
// the record covers the outline it creates the certificate unless one
// exists and appends the course.completed event. A nil Result means the
// course is not complete yet.
func (tr Trigger) Fire(ctx context.Context, tx *store.Tx, outline *course.Outline, at time.Time) (*Result, error) {
	if !Covers(outline, tx.Record()) {
		return nil, nil
	}

	newID := tr.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	cert, created, err := tx.IssueCertificate(ctx, store.Certificate{
		ID:          newID(),
		ModuleCount: len(outline.Modules),
		IssuedAt:    at,
	})
	if err != nil {
		return nil, fmt.Errorf("issue certificate for %s: %w", tx.Key(), err)
	}
	res := &Result{Certificate: cert, Created: created}
	if !created {
		return res, nil
	}

	ev, err := events.New(events.CourseCompleted, "", events.CourseCompletedData{
		CertificateID: cert.ID,
		ModuleCount:   cert.ModuleCount,
		CourseTitle:   outline.Title,
	})
	if err != nil {
		return nil, err
	}
	ev.CertificateID = cert.ID
	ev.OccurredAt = at
	ev, err = tx.AppendEvent(ctx, ev)
	if err != nil {
		return nil, err
	}
	res.Event = &ev
	return res, nil
}
