package report

import (
	"strings"
	"testing"
	"time"

	"charm.land/lipgloss/v2"

	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/engine"
	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/store"
	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/unlock"
)

func module(id string, idx int, mutate func(*unlock.ModuleStatus)) engine.ModuleProgress {
	st := unlock.ModuleStatus{ModuleID: id, Index: idx}
	mutate(&st)
	return engine.ModuleProgress{ModuleStatus: st}
}

func TestStatus(t *testing.T) {
	tests := []struct {
		name string
		m    engine.ModuleProgress
		want string
	}{
		{"completed", module("A", 0, func(s *unlock.ModuleStatus) { s.IsUnlocked, s.IsCompleted = true, true }), "completed"},
		{"locked", module("B", 1, func(s *unlock.ModuleStatus) {}), "locked"},
		{"cooling", module("B", 1, func(s *unlock.ModuleStatus) {
			s.IsUnlocked, s.HasQuiz, s.AttemptCount, s.CooldownRemaining = true, true, 2, 90*time.Minute
		}), "cooling down 1h30m0s"},
		{"retake", module("B", 1, func(s *unlock.ModuleStatus) { s.IsUnlocked, s.HasQuiz, s.AttemptCount = true, true, 1 }), "retake (attempt 2)"},
		{"unlocked", module("B", 1, func(s *unlock.ModuleStatus) { s.IsUnlocked = true }), "unlocked"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Status(tt.m); got != tt.want {
				t.Errorf("Status() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestProgressBar_Width(t *testing.T) {
	for _, pct := range []float64{0, 0.5, 1, 1.5} {
		bar := ProgressBar{Percent: pct, Width: 30}.View()
		if w := lipgloss.Width(bar); w != 30 {
			t.Errorf("Width(bar at %v) = %d, want 30", pct, w)
		}
	}
}

func TestProgress(t *testing.T) {
	p := &engine.Progress{
		LearnerID:   "alice@example.com",
		CourseID:    "onboarding",
		CourseTitle: "Onboarding",
		Modules: []engine.ModuleProgress{
			module("intro", 0, func(s *unlock.ModuleStatus) { s.IsUnlocked, s.IsCompleted = true, true }),
			module("security", 1, func(s *unlock.ModuleStatus) { s.IsUnlocked, s.HasQuiz = true, true }),
		},
		Summary: unlock.Summary{Completed: 1, Total: 2, Percent: 50, NextModule: "security"},
	}

	out := Progress(p, 40)
	for _, want := range []string{"Onboarding", "1/2 modules", "50%", "intro", "security", "next: security"} {
		if !strings.Contains(out, want) {
			t.Errorf("Progress() missing %q in:\n%s", want, out)
		}
	}

	p.Certificate = &store.Certificate{ID: "cert-1", IssuedAt: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	if out := Progress(p, 40); !strings.Contains(out, "cert-1") {
		t.Errorf("Progress() missing certificate in:\n%s", out)
	}
}
