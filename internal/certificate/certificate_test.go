package certificate

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/course"
	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/events"
	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/store"
)

var (
	t0  = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	key = store.Key{LearnerID: "u1", CourseID: "onboarding"}
)

func testOutline() *course.Outline {
	return &course.Outline{
		ID:    "onboarding",
		Title: "Onboarding",
		Modules: []course.ModuleRef{
			{ID: "A", HasQuiz: true},
			{ID: "B"},
		},
	}
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "cert.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCovers(t *testing.T) {
	rec := store.NewProgressRecord(key)
	o := testOutline()

	if Covers(o, rec) {
		t.Error("Covers() = true for empty record")
	}
	rec.CompletedModules["A"] = t0
	rec.CompletedModules["Z"] = t0
	if Covers(o, rec) {
		t.Error("Covers() = true with B missing")
	}
	rec.CompletedModules["B"] = t0
	if !Covers(o, rec) {
		t.Error("Covers() = false with all modules completed")
	}
	if Covers(&course.Outline{}, rec) {
		t.Error("Covers() = true for empty outline")
	}
}

func TestFire_IssuesOnceWithEvent(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	tr := Trigger{NewID: func() string { return "cert-1" }}

	// Incomplete course: nothing issued.
	err := s.Mutate(ctx, key, func(tx *store.Tx) error {
		if _, err := tx.UpsertCompletion(ctx, "A", t0); err != nil {
			return err
		}
		res, err := tr.Fire(ctx, tx, testOutline(), t0)
		assert.Nil(t, res)
		return err
	})
	require.NoError(t, err)

	var first *Result
	err = s.Mutate(ctx, key, func(tx *store.Tx) error {
		if _, err := tx.UpsertCompletion(ctx, "B", t0); err != nil {
			return err
		}
		var err error
		first, err = tr.Fire(ctx, tx, testOutline(), t0)
		return err
	})
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.True(t, first.Created)
	require.NotNil(t, first.Event)
	assert.Equal(t, events.CourseCompleted, first.Event.Type)
	assert.Equal(t, "cert-1", first.Event.CertificateID)
	assert.Positive(t, first.Event.Sequence)

	var again *Result
	err = s.Mutate(ctx, key, func(tx *store.Tx) error {
		var err error
		again, err = Trigger{}.Fire(ctx, tx, testOutline(), t0.Add(time.Hour))
		return err
	})
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.Nil(t, again.Event)
	assert.Equal(t, "cert-1", again.Certificate.ID)

	evs, err := s.ListEvents(ctx, store.EventQuery{Type: events.CourseCompleted})
	require.NoError(t, err)
	assert.Len(t, evs, 1)
}

func TestFire_ConcurrentTriggersCollapse(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	_, err := s.UpsertCompletion(ctx, key, "A", t0)
	require.NoError(t, err)
	_, err = s.UpsertCompletion(ctx, key, "B", t0)
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		created atomic.Int32
		n       atomic.Int32
	)
	tr := Trigger{NewID: func() string { return fmt.Sprintf("cert-%d", n.Add(1)) }}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Mutate(ctx, key, func(tx *store.Tx) error {
				res, err := tr.Fire(ctx, tx, testOutline(), time.Now().UTC())
				if err == nil && res.Created {
					created.Add(1)
				}
				return err
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), created.Load())
	count, err := s.CountCertificates(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
