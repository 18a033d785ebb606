package unlock

import (
	"math/rand"
	"testing"
	"time"

	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/course"
	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/store"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func testOutline() *course.Outline {
	return &course.Outline{
		ID:       "onboarding",
		Cooldown: 24 * time.Hour,
		Modules: []course.ModuleRef{
			{ID: "A", HasQuiz: true},
			{ID: "B", HasQuiz: true},
			{ID: "C", HasQuiz: false},
		},
	}
}

func newRecord() *store.ProgressRecord {
	return store.NewProgressRecord(store.Key{LearnerID: "u1", CourseID: "onboarding"})
}

func failedAt(n int, at time.Time) store.AttemptState {
	st := store.AttemptState{AttemptCount: n, Failures: n}
	if n >= 2 {
		st.LastFailureAt = &at
	}
	return st
}

func TestCompute_FreshLearner(t *testing.T) {
	got := Compute(testOutline(), newRecord(), t0)

	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if !got[0].IsUnlocked || !got[0].CanTakeQuiz {
		t.Errorf("A = %+v, want unlocked with quiz available", got[0])
	}
	for _, st := range got[1:] {
		if st.IsUnlocked || st.CanTakeQuiz {
			t.Errorf("%s = %+v, want locked", st.ModuleID, st)
		}
	}
}

func TestCompute_Scenarios(t *testing.T) {
	tests := []struct {
		name      string
		completed []string
		attempts  map[string]store.AttemptState
		now       time.Time
		want      map[string][3]bool // unlocked, completed, canTakeQuiz
		remaining map[string]time.Duration
	}{
		{
			name:     "first failure keeps quiz available",
			attempts: map[string]store.AttemptState{"A": failedAt(1, t0)},
			now:      t0,
			want:     map[string][3]bool{"A": {true, false, true}, "B": {false, false, false}},
		},
		{
			name:      "second failure locks quiz for the cooldown",
			attempts:  map[string]store.AttemptState{"A": failedAt(2, t0)},
			now:       t0.Add(23 * time.Hour),
			want:      map[string][3]bool{"A": {true, false, false}},
			remaining: map[string]time.Duration{"A": time.Hour},
		},
		{
			name:     "cooldown boundary is inclusive",
			attempts: map[string]store.AttemptState{"A": failedAt(2, t0)},
			now:      t0.Add(24 * time.Hour),
			want:     map[string][3]bool{"A": {true, false, true}},
		},
		{
			name:      "completed A unlocks B",
			completed: []string{"A"},
			now:       t0,
			want:      map[string][3]bool{"A": {true, true, false}, "B": {true, false, true}, "C": {false, false, false}},
		},
		{
			name:      "module without quiz never offers a quiz",
			completed: []string{"A", "B"},
			now:       t0,
			want:      map[string][3]bool{"C": {true, false, false}},
		},
		{
			name:      "completion of a later module does not unlock its predecessor",
			completed: []string{"C"},
			now:       t0,
			want:      map[string][3]bool{"B": {false, false, false}, "C": {false, true, false}},
		},
		{
			name:      "completed module freezes its quiz even when attempts remain",
			completed: []string{"A"},
			attempts:  map[string]store.AttemptState{"A": failedAt(1, t0)},
			now:       t0,
			want:      map[string][3]bool{"A": {true, true, false}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := newRecord()
			for _, id := range tt.completed {
				rec.CompletedModules[id] = t0
			}
			for id, a := range tt.attempts {
				rec.QuizAttempts[id] = a
			}
			got := Compute(testOutline(), rec, tt.now)
			byID := map[string]ModuleStatus{}
			for _, st := range got {
				byID[st.ModuleID] = st
			}
			for id, want := range tt.want {
				st := byID[id]
				if st.IsUnlocked != want[0] || st.IsCompleted != want[1] || st.CanTakeQuiz != want[2] {
					t.Errorf("%s = {unlocked:%v completed:%v quiz:%v}, want %v",
						id, st.IsUnlocked, st.IsCompleted, st.CanTakeQuiz, want)
				}
			}
			for id, want := range tt.remaining {
				if got := byID[id].CooldownRemaining; got != want {
					t.Errorf("%s CooldownRemaining = %v, want %v", id, got, want)
				}
			}
		})
	}
}

// Random records must always satisfy the prefix rule and the quiz rule.
func TestCompute_Invariants(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	outline := &course.Outline{Cooldown: 24 * time.Hour}
	for i := 0; i < 8; i++ {
		outline.Modules = append(outline.Modules, course.ModuleRef{
			ID:      string(rune('a' + i)),
			HasQuiz: rng.Intn(2) == 0,
		})
	}

	for iter := 0; iter < 500; iter++ {
		rec := newRecord()
		for _, m := range outline.Modules {
			if rng.Intn(2) == 0 {
				rec.CompletedModules[m.ID] = t0
			}
			if m.HasQuiz {
				n := rng.Intn(3)
				rec.QuizAttempts[m.ID] = failedAt(n, t0.Add(-time.Duration(rng.Intn(48))*time.Hour))
			}
		}
		now := t0
		got := Compute(outline, rec, now)

		if !got[0].IsUnlocked {
			t.Fatalf("iter %d: first module locked", iter)
		}
		for i, st := range got {
			if i > 0 && st.IsUnlocked != got[i-1].IsCompleted {
				t.Fatalf("iter %d: %s unlocked=%v but predecessor completed=%v", iter, st.ModuleID, st.IsUnlocked, got[i-1].IsCompleted)
			}
			if st.CanTakeQuiz && (!st.IsUnlocked || st.IsCompleted || !st.HasQuiz) {
				t.Fatalf("iter %d: %s offers quiz in status %+v", iter, st.ModuleID, st)
			}
			if st.CanTakeQuiz && st.CooldownRemaining != 0 {
				t.Fatalf("iter %d: %s available with cooldown %v", iter, st.ModuleID, st.CooldownRemaining)
			}
		}
	}
}

func TestQuizAvailability(t *testing.T) {
	cooldown := 24 * time.Hour
	future := t0.Add(time.Hour)

	tests := []struct {
		name     string
		attempt  store.AttemptState
		now      time.Time
		wantOK   bool
		wantWait time.Duration
	}{
		{"never attempted", store.AttemptState{}, t0, true, 0},
		{"free retake", failedAt(1, t0), t0, true, 0},
		{"cooling down", failedAt(2, t0), t0.Add(time.Hour), false, 23 * time.Hour},
		{"cooldown elapsed", failedAt(2, t0), t0.Add(25 * time.Hour), true, 0},
		{"missing timestamp", store.AttemptState{AttemptCount: 2}, t0, true, 0},
		{"failure in the future", store.AttemptState{AttemptCount: 2, LastFailureAt: &future}, t0, false, cooldown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, wait := QuizAvailability(tt.attempt, tt.now, cooldown)
			if ok != tt.wantOK || wait != tt.wantWait {
				t.Errorf("QuizAvailability() = (%v, %v), want (%v, %v)", ok, wait, tt.wantOK, tt.wantWait)
			}
		})
	}
}

func TestSummarize(t *testing.T) {
	rec := newRecord()
	rec.CompletedModules["A"] = t0
	rec.LastAccessedModule = "B"

	s := Summarize(Compute(testOutline(), rec, t0), rec)
	want := Summary{Completed: 1, Total: 3, Percent: 33, NextModule: "B", LastAccessedModule: "B"}
	if s != want {
		t.Errorf("Summarize() = %+v, want %+v", s, want)
	}

	rec.CompletedModules["B"] = t0
	rec.CompletedModules["C"] = t0
	s = Summarize(Compute(testOutline(), rec, t0), rec)
	if !s.CourseCompleted || s.Percent != 100 || s.NextModule != "" {
		t.Errorf("Summarize() = %+v, want completed course", s)
	}
}

func TestModule(t *testing.T) {
	if _, ok := Module(testOutline(), newRecord(), "Z", t0); ok {
		t.Error("Module(Z) found, want missing")
	}
	st, ok := Module(testOutline(), newRecord(), "A", t0)
	if !ok || st.Index != 0 {
		t.Errorf("Module(A) = %+v, %v", st, ok)
	}
}
