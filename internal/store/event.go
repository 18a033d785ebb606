package store

// Event outbox.
//
// Domain events are appended inside the same transaction as the progress
// change that produced them, so a committed change always has its events
// and a rolled-back change never does. The auto-increment id doubles as the
// global sequence number consumers page by.

import (
	"context"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/jmoiron/sqlx"
)

var eventFields = []string{"id", "type", "learner_id", "course_id", "module_id", "certificate_id", "data", "occurred_at"}

type eventRow struct {
	Sequence      int64     `db:"id"`
	Type          string    `db:"type"`
	LearnerID     string    `db:"learner_id"`
	CourseID      string    `db:"course_id"`
	ModuleID      string    `db:"module_id"`
	CertificateID string    `db:"certificate_id"`
	Data          string    `db:"data"`
	OccurredAt    time.Time `db:"occurred_at"`
}

// AppendEvent appends ev to the outbox and returns it with its sequence
// number. LearnerID and CourseID default to the unit of work's key.
func (t *Tx) AppendEvent(ctx context.Context, ev Event) (Event, error) {
	if ev.LearnerID == "" {
		ev.LearnerID = t.key.LearnerID
	}
	if ev.CourseID == "" {
		ev.CourseID = t.key.CourseID
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = t.now
	}

	query, args := t.b.Insert(tableEvents).
		Columns("type", "learner_id", "course_id", "module_id", "certificate_id", "data", "occurred_at").
		Values(ev.Type, ev.LearnerID, ev.CourseID, ev.ModuleID, ev.CertificateID, string(ev.Data), ev.OccurredAt).
		Returning("id").
		Query()
	if err := t.tx.QueryRowxContext(ctx, query, args...).Scan(&ev.Sequence); err != nil {
		return ev, fmt.Errorf("append %s event: %w", ev.Type, err)
	}
	return ev, nil
}

// EventQuery filters ListEvents.
type EventQuery struct {
	AfterSequence int64
	LearnerID     string
	CourseID      string
	Type          string
	Limit         int
}

// ListEvents returns outbox events in sequence order.
func (s *Store) ListEvents(ctx context.Context, q EventQuery) ([]Event, error) {
	b := s.builder()
	preds := []*entsql.Predicate{entsql.GT("id", q.AfterSequence)}
	if q.LearnerID != "" {
		preds = append(preds, entsql.EQ("learner_id", q.LearnerID))
	}
	if q.CourseID != "" {
		preds = append(preds, entsql.EQ("course_id", q.CourseID))
	}
	if q.Type != "" {
		preds = append(preds, entsql.EQ("type", q.Type))
	}
	limit := q.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query, args := b.Select(eventFields...).
		From(b.Table(tableEvents)).
		Where(entsql.And(preds...)).
		OrderBy("id").
		Limit(limit).
		Query()

	var rows []eventRow
	if err := sqlx.SelectContext(ctx, s.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	events := make([]Event, 0, len(rows))
	for _, r := range rows {
		ev := Event{
			Sequence:      r.Sequence,
			Type:          r.Type,
			LearnerID:     r.LearnerID,
			CourseID:      r.CourseID,
			ModuleID:      r.ModuleID,
			CertificateID: r.CertificateID,
			OccurredAt:    r.OccurredAt,
		}
		if r.Data != "" {
			ev.Data = []byte(r.Data)
		}
		events = append(events, ev)
	}
	return events, nil
}
