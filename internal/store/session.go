package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/jmoiron/sqlx"
)

var sessionFields = []string{
	"id", "learner_id", "course_id", "module_id", "attempt_number", "question_set",
	"started_at", "deadline", "answers", "status", "submitted_at", "passed",
	"correct", "total", "auto_submitted",
}

type sessionRow struct {
	ID            string       `db:"id"`
	LearnerID     string       `db:"learner_id"`
	CourseID      string       `db:"course_id"`
	ModuleID      string       `db:"module_id"`
	AttemptNumber int          `db:"attempt_number"`
	QuestionSet   int          `db:"question_set"`
	StartedAt     time.Time    `db:"started_at"`
	Deadline      time.Time    `db:"deadline"`
	Answers       string       `db:"answers"`
	Status        string       `db:"status"`
	SubmittedAt   sql.NullTime `db:"submitted_at"`
	Passed        bool         `db:"passed"`
	Correct       int          `db:"correct"`
	Total         int          `db:"total"`
	AutoSubmitted bool         `db:"auto_submitted"`
}

func (r sessionRow) toSession() (*QuizSession, error) {
	s := &QuizSession{
		ID:            r.ID,
		LearnerID:     r.LearnerID,
		CourseID:      r.CourseID,
		ModuleID:      r.ModuleID,
		AttemptNumber: r.AttemptNumber,
		QuestionSet:   r.QuestionSet,
		StartedAt:     r.StartedAt,
		Deadline:      r.Deadline,
		Status:        SessionStatus(r.Status),
		Passed:        r.Passed,
		Correct:       r.Correct,
		Total:         r.Total,
		AutoSubmitted: r.AutoSubmitted,
		Answers:       make(map[string]int),
	}
	if r.SubmittedAt.Valid {
		t := r.SubmittedAt.Time
		s.SubmittedAt = &t
	}
	if r.Answers != "" {
		if err := json.Unmarshal([]byte(r.Answers), &s.Answers); err != nil {
			return nil, fmt.Errorf("decode answers of session %s: %w", r.ID, err)
		}
	}
	return s, nil
}

func encodeAnswers(answers map[string]int) (string, error) {
	if answers == nil {
		answers = map[string]int{}
	}
	b, err := json.Marshal(answers)
	if err != nil {
		return "", fmt.Errorf("encode answers: %w", err)
	}
	return string(b), nil
}

// CreateSession stores a new open quiz session for the unit of work's key.
func (t *Tx) CreateSession(ctx context.Context, s *QuizSession) error {
	answers, err := encodeAnswers(s.Answers)
	if err != nil {
		return err
	}
	s.LearnerID, s.CourseID = t.key.LearnerID, t.key.CourseID
	s.Status = SessionOpen

	query, args := t.b.Insert(tableSessions).
		Columns("id", "learner_id", "course_id", "module_id", "attempt_number", "question_set",
			"started_at", "deadline", "answers", "status").
		Values(s.ID, s.LearnerID, s.CourseID, s.ModuleID, s.AttemptNumber, s.QuestionSet,
			s.StartedAt, s.Deadline, answers, string(s.Status)).
		Query()
	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// OpenSession returns the open session for moduleID, or nil if none.
func (t *Tx) OpenSession(ctx context.Context, moduleID string) (*QuizSession, error) {
	query, args := t.b.Select(sessionFields...).
		From(t.b.Table(tableSessions)).
		Where(entsql.And(
			keyPredicate(t.key),
			entsql.EQ("module_id", moduleID),
			entsql.EQ("status", string(SessionOpen)),
		)).
		OrderBy(entsql.Desc("started_at")).
		Limit(1).
		Query()
	s, err := getSession(ctx, t.tx, query, args)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return s, err
}

// Session loads a session by ID inside the unit of work.
func (t *Tx) Session(ctx context.Context, id string) (*QuizSession, error) {
	return sessionByID(ctx, t.tx, t.b, id)
}

// CompleteSession records the graded result of a session.
func (t *Tx) CompleteSession(ctx context.Context, s *QuizSession) error {
	answers, err := encodeAnswers(s.Answers)
	if err != nil {
		return err
	}
	var submittedAt any
	if s.SubmittedAt != nil {
		submittedAt = *s.SubmittedAt
	}
	query, args := t.b.Update(tableSessions).
		Set("answers", answers).
		Set("status", string(SessionSubmitted)).
		Set("submitted_at", submittedAt).
		Set("passed", s.Passed).
		Set("correct", s.Correct).
		Set("total", s.Total).
		Set("auto_submitted", s.AutoSubmitted).
		Where(entsql.And(entsql.EQ("id", s.ID), entsql.EQ("status", string(SessionOpen)))).
		Query()
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("complete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete session: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("session %s already submitted: %w", s.ID, ErrConflict)
	}
	s.Status = SessionSubmitted
	return nil
}

// Session loads a session by ID.
func (s *Store) Session(ctx context.Context, id string) (*QuizSession, error) {
	return sessionByID(ctx, s.db, s.builder(), id)
}

// OpenSessions returns the open sessions of key, one per module at most.
func (s *Store) OpenSessions(ctx context.Context, key Key) ([]*QuizSession, error) {
	b := s.builder()
	query, args := b.Select(sessionFields...).
		From(b.Table(tableSessions)).
		Where(entsql.And(keyPredicate(key), entsql.EQ("status", string(SessionOpen)))).
		OrderBy("started_at").
		Query()
	return selectSessions(ctx, s.db, query, args)
}

// SaveSessionAnswers replaces the draft answers of an open session. Draft
// saves only touch the session row, so they do not take the progress lock.
func (s *Store) SaveSessionAnswers(ctx context.Context, id string, answers map[string]int) error {
	encoded, err := encodeAnswers(answers)
	if err != nil {
		return err
	}
	b := s.builder()
	query, args := b.Update(tableSessions).
		Set("answers", encoded).
		Where(entsql.And(entsql.EQ("id", id), entsql.EQ("status", string(SessionOpen)))).
		Query()
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("save answers: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save answers: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("open session %s: %w", id, ErrNotFound)
	}
	return nil
}

// ExpiredSessions returns open sessions whose deadline is at or before now,
// oldest deadline first.
func (s *Store) ExpiredSessions(ctx context.Context, now time.Time, limit int) ([]*QuizSession, error) {
	if limit <= 0 {
		limit = 100
	}
	b := s.builder()
	query, args := b.Select(sessionFields...).
		From(b.Table(tableSessions)).
		Where(entsql.And(
			entsql.EQ("status", string(SessionOpen)),
			entsql.LTE("deadline", now),
		)).
		OrderBy("deadline").
		Limit(limit).
		Query()
	return selectSessions(ctx, s.db, query, args)
}

func selectSessions(ctx context.Context, q sqlx.QueryerContext, query string, args []any) ([]*QuizSession, error) {
	var rows []sessionRow
	if err := sqlx.SelectContext(ctx, q, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	sessions := make([]*QuizSession, 0, len(rows))
	for _, r := range rows {
		sess, err := r.toSession()
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

func sessionByID(ctx context.Context, q sqlx.QueryerContext, b *entsql.DialectBuilder, id string) (*QuizSession, error) {
	query, args := b.Select(sessionFields...).
		From(b.Table(tableSessions)).
		Where(entsql.EQ("id", id)).
		Query()
	return getSession(ctx, q, query, args)
}

func getSession(ctx context.Context, q sqlx.QueryerContext, query string, args []any) (*QuizSession, error) {
	var row sessionRow
	if err := sqlx.GetContext(ctx, q, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query session: %w", err)
	}
	return row.toSession()
}
