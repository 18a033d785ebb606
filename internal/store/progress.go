package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/jmoiron/sqlx"
)

// ProgressRepo persists per-(learner, course) progression state.
//
// Reads are lock-free and may observe a slightly stale record. Writes go
// through Mutate, which serializes writers per key and applies every change
// of one unit of work atomically.
type ProgressRepo interface {
	// Get returns the progress record for key, or the empty default record
	// when the learner has not touched the course yet.
	Get(ctx context.Context, key Key) (*ProgressRecord, error)

	// UpsertCompletion marks moduleID completed. Re-applying the same module
	// is a no-op on the completed set and does not error.
	UpsertCompletion(ctx context.Context, key Key, moduleID string, completedAt time.Time) (*ProgressRecord, error)

	// RecordAttempt records a graded quiz outcome for moduleID.
	RecordAttempt(ctx context.Context, key Key, moduleID string, outcome Outcome, at time.Time) (AttemptState, error)

	// Mutate runs fn as one atomic, per-key serialized unit of work. A
	// non-nil error from fn rolls back every write made through tx.
	Mutate(ctx context.Context, key Key, fn func(tx *Tx) error) error
}

// ProgressRepo returns the ProgressRepo backed by this store.
func (s *Store) ProgressRepo() ProgressRepo {
	return s
}

type progressRow struct {
	LearnerID          string         `db:"learner_id"`
	CourseID           string         `db:"course_id"`
	LastAccessedModule sql.NullString `db:"last_accessed_module"`
	Version            int64          `db:"version"`
	CreatedAt          time.Time      `db:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at"`
}

type completionRow struct {
	ModuleID    string    `db:"module_id"`
	CompletedAt time.Time `db:"completed_at"`
}

type attemptRow struct {
	ModuleID      string       `db:"module_id"`
	AttemptCount  int          `db:"attempt_count"`
	Failures      int          `db:"failures"`
	LastFailureAt sql.NullTime `db:"last_failure_at"`
}

func keyPredicate(key Key) *entsql.Predicate {
	return entsql.And(
		entsql.EQ("learner_id", key.LearnerID),
		entsql.EQ("course_id", key.CourseID),
	)
}

// Get implements ProgressRepo.
func (s *Store) Get(ctx context.Context, key Key) (*ProgressRecord, error) {
	rec, _, err := loadRecord(ctx, s.db, s.builder(), key)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// UpsertCompletion implements ProgressRepo.
func (s *Store) UpsertCompletion(ctx context.Context, key Key, moduleID string, completedAt time.Time) (*ProgressRecord, error) {
	var rec *ProgressRecord
	err := s.Mutate(ctx, key, func(tx *Tx) error {
		if _, err := tx.UpsertCompletion(ctx, moduleID, completedAt); err != nil {
			return err
		}
		rec = tx.Record()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// RecordAttempt implements ProgressRepo.
func (s *Store) RecordAttempt(ctx context.Context, key Key, moduleID string, outcome Outcome, at time.Time) (AttemptState, error) {
	var st AttemptState
	err := s.Mutate(ctx, key, func(tx *Tx) error {
		var err error
		st, err = tx.RecordAttempt(ctx, moduleID, outcome, at)
		return err
	})
	return st, err
}

// Mutate implements ProgressRepo. The record is loaded inside the
// transaction and its version is bumped before fn runs; losing the bump to
// another writer yields ErrConflict.
func (s *Store) Mutate(ctx context.Context, key Key, fn func(tx *Tx) error) (err error) {
	unlock := s.locks.Lock(key.String())
	defer unlock()

	sqlTx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			sqlTx.Rollback()
		}
	}()

	tx := &Tx{tx: sqlTx, b: s.builder(), key: key}
	if err := tx.claim(ctx); err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// loadRecord reads the full record for key. exists is false when no
// progress row has been written yet.
func loadRecord(ctx context.Context, q sqlx.QueryerContext, b *entsql.DialectBuilder, key Key) (rec *ProgressRecord, exists bool, err error) {
	rec = NewProgressRecord(key)

	query, args := b.Select("learner_id", "course_id", "last_accessed_module", "version", "created_at", "updated_at").
		From(b.Table(tableProgress)).
		Where(keyPredicate(key)).
		Query()
	var row progressRow
	switch err := sqlx.GetContext(ctx, q, &row, query, args...); {
	case errors.Is(err, sql.ErrNoRows):
		return rec, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("query progress: %w", err)
	}
	rec.LastAccessedModule = row.LastAccessedModule.String
	rec.Version = row.Version
	rec.CreatedAt = row.CreatedAt
	rec.UpdatedAt = row.UpdatedAt

	query, args = b.Select("module_id", "completed_at").
		From(b.Table(tableCompletions)).
		Where(keyPredicate(key)).
		Query()
	var completions []completionRow
	if err := sqlx.SelectContext(ctx, q, &completions, query, args...); err != nil {
		return nil, false, fmt.Errorf("query completions: %w", err)
	}
	for _, c := range completions {
		rec.CompletedModules[c.ModuleID] = c.CompletedAt
	}

	query, args = b.Select("module_id", "attempt_count", "failures", "last_failure_at").
		From(b.Table(tableAttempts)).
		Where(keyPredicate(key)).
		Query()
	var attempts []attemptRow
	if err := sqlx.SelectContext(ctx, q, &attempts, query, args...); err != nil {
		return nil, false, fmt.Errorf("query attempts: %w", err)
	}
	for _, a := range attempts {
		st := AttemptState{AttemptCount: a.AttemptCount, Failures: a.Failures}
		if a.LastFailureAt.Valid {
			t := a.LastFailureAt.Time
			st.LastFailureAt = &t
		}
		rec.QuizAttempts[a.ModuleID] = st
	}
	return rec, true, nil
}

// Tx is a per-key unit of work. It is only valid inside the Mutate callback.
type Tx struct {
	tx  *sqlx.Tx
	b   *entsql.DialectBuilder
	key Key
	rec *ProgressRecord
	now time.Time
}

// Record returns the record as loaded at the start of the unit of work,
// with every change made through tx applied.
func (t *Tx) Record() *ProgressRecord {
	return t.rec
}

// Key returns the key the unit of work is scoped to.
func (t *Tx) Key() Key {
	return t.key
}

// claim ensures the progress row exists, loads the record and bumps its
// version guarded by the loaded value.
func (t *Tx) claim(ctx context.Context) error {
	t.now = time.Now().UTC()

	query, args := t.b.Insert(tableProgress).
		Columns("learner_id", "course_id", "version", "created_at", "updated_at").
		Values(t.key.LearnerID, t.key.CourseID, 0, t.now, t.now).
		OnConflict(entsql.ConflictColumns("learner_id", "course_id"), entsql.DoNothing()).
		Query()
	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("create progress: %w", err)
	}

	rec, _, err := loadRecord(ctx, t.tx, t.b, t.key)
	if err != nil {
		return err
	}

	query, args = t.b.Update(tableProgress).
		Set("version", rec.Version+1).
		Set("updated_at", t.now).
		Where(entsql.And(keyPredicate(t.key), entsql.EQ("version", rec.Version))).
		Query()
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("bump version: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("bump version: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("progress %s at version %d: %w", t.key, rec.Version, ErrConflict)
	}
	rec.Version++
	rec.UpdatedAt = t.now
	t.rec = rec
	return nil
}

// UpsertCompletion marks moduleID completed. It reports whether the module
// was newly completed; a repeated completion keeps the original timestamp.
func (t *Tx) UpsertCompletion(ctx context.Context, moduleID string, completedAt time.Time) (bool, error) {
	if t.rec.IsCompleted(moduleID) {
		return false, nil
	}
	query, args := t.b.Insert(tableCompletions).
		Columns("learner_id", "course_id", "module_id", "completed_at").
		Values(t.key.LearnerID, t.key.CourseID, moduleID, completedAt).
		OnConflict(entsql.ConflictColumns("learner_id", "course_id", "module_id"), entsql.DoNothing()).
		Query()
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("upsert completion: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("upsert completion: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	t.rec.CompletedModules[moduleID] = completedAt
	return true, nil
}

// RecordAttempt applies a graded outcome to moduleID's attempt state.
// Attempt state of a completed module is frozen and returned unchanged.
func (t *Tx) RecordAttempt(ctx context.Context, moduleID string, outcome Outcome, at time.Time) (AttemptState, error) {
	prev := t.rec.Attempt(moduleID)
	if t.rec.IsCompleted(moduleID) || outcome != Fail {
		return prev, nil
	}
	next := prev.Record(outcome, at)

	var lastFailure any
	if next.LastFailureAt != nil {
		lastFailure = *next.LastFailureAt
	}
	query, args := t.b.Insert(tableAttempts).
		Columns("learner_id", "course_id", "module_id", "attempt_count", "failures", "last_failure_at", "updated_at").
		Values(t.key.LearnerID, t.key.CourseID, moduleID, next.AttemptCount, next.Failures, lastFailure, t.now).
		OnConflict(
			entsql.ConflictColumns("learner_id", "course_id", "module_id"),
			entsql.ResolveWithNewValues(),
		).
		Query()
	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		return prev, fmt.Errorf("record attempt: %w", err)
	}
	t.rec.QuizAttempts[moduleID] = next
	return next, nil
}

// TouchModule records moduleID as the learner's last accessed module.
func (t *Tx) TouchModule(ctx context.Context, moduleID string) error {
	query, args := t.b.Update(tableProgress).
		Set("last_accessed_module", moduleID).
		Where(keyPredicate(t.key)).
		Query()
	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("touch module: %w", err)
	}
	t.rec.LastAccessedModule = moduleID
	return nil
}
