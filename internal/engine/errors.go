package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/store"
)

// ValidationError reports a malformed request. Retrying it unchanged will
// fail again.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid request: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError reports an unknown course, module, session or certificate.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

// LockedModuleError reports an action the learner may not take yet: a
// locked module, a quiz during its cooldown, or a quiz on a module that is
// already completed.
type LockedModuleError struct {
	ModuleID          string
	Reason            string
	CooldownRemaining time.Duration
}

func (e *LockedModuleError) Error() string {
	if e.CooldownRemaining > 0 {
		return fmt.Sprintf("module %q locked (%s, %s remaining)", e.ModuleID, e.Reason, e.CooldownRemaining.Round(time.Second))
	}
	return fmt.Sprintf("module %q locked (%s)", e.ModuleID, e.Reason)
}

// ConflictError reports a concurrent change to the same progress record
// that survived the internal retry, or a submission carrying a stale
// attempt number.
type ConflictError struct {
	Key store.Key
	Err error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("progress %s changed concurrently: %v", e.Key, e.Err)
}

func (e *ConflictError) Unwrap() error { return e.Err }

// UnavailableError reports a storage or catalog failure.
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("progression store unavailable: %v", e.Err)
	}
	return "progression store unavailable"
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// errStaleAttempt is wrapped by ConflictError when a submission names an
// attempt that is no longer current.
var errStaleAttempt = errors.New("stale attempt number")

// Retryable reports whether the caller may retry the failed operation
// unchanged and expect a different result.
func Retryable(err error) bool {
	var (
		locked      *LockedModuleError
		conflict    *ConflictError
		unavailable *UnavailableError
	)
	switch {
	case errors.As(err, &conflict):
		return !errors.Is(conflict.Err, errStaleAttempt)
	case errors.As(err, &locked):
		return true
	case errors.As(err, &unavailable):
		return !errors.Is(err, context.Canceled)
	}
	return false
}

// classify maps an internal failure onto the error taxonomy. Typed errors
// pass through unchanged.
func classify(key store.Key, err error) error {
	if err == nil {
		return nil
	}
	var (
		validation  *ValidationError
		notFound    *NotFoundError
		locked      *LockedModuleError
		conflict    *ConflictError
		unavailable *UnavailableError
	)
	switch {
	case errors.As(err, &validation), errors.As(err, &notFound), errors.As(err, &locked),
		errors.As(err, &conflict), errors.As(err, &unavailable):
		return err
	case errors.Is(err, store.ErrConflict):
		return &ConflictError{Key: key, Err: err}
	}
	return &UnavailableError{Err: err}
}
