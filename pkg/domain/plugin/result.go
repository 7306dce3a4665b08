package plugin

import (
	"errors"
	"fmt"
	"time"
)

// ErrReloadInFlight indicates the plugin is already being reloaded by an
// earlier cycle.
var ErrReloadInFlight = errors.New("reload already in flight")

// Outcome classifies the result of one plugin reload attempt.
type Outcome string

const (
	OutcomeReloaded Outcome = "reloaded"
	OutcomeFailed   Outcome = "failed"
	OutcomeSkipped  Outcome = "skipped"
)

// ReloadError ties a reload failure to the plugin it happened for.
type ReloadError struct {
	Plugin ID
	Cause  error
}

func (e *ReloadError) Error() string {
	return fmt.Sprintf("reload plugin %q: %v", e.Plugin, e.Cause)
}

func (e *ReloadError) Unwrap() error {
	return e.Cause
}

// ReloadResult records what happened to one plugin in one reload cycle.
type ReloadResult struct {
	CycleID  string        `json:"cycle_id"`
	Plugin   ID            `json:"plugin"`
	Outcome  Outcome       `json:"outcome"`
	Err      *ReloadError  `json:"-"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
}

// OK reports whether the plugin was reloaded.
func (r ReloadResult) OK() bool {
	return r.Outcome == OutcomeReloaded
}

// Message returns the failure message, or "" when there is none.
func (r ReloadResult) Message() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}
