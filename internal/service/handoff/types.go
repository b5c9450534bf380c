// Package handoff implements the job exchange between the stateful planner
// and a stateless executor. The planner writes a signed, self-contained job
// descriptor plus a short-lived credential bundle; the executor writes back
// a result descriptor. Neither side holds a reference to the other's state.
package handoff

import (
	"errors"
	"time"

	"github.com/autopress/autopress/internal/service/deliverer"
)

var (
	// ErrExecutorUnreachable means the executor never produced a result
	// within the timeout. No assumption about individual unit outcomes is
	// made; the run is parked scheduled.
	ErrExecutorUnreachable = errors.New("executor unreachable")

	// ErrSecretLeakRisk flags a failed deletion of the runtime credential
	// bundle. Not fatal to the run, but always logged loudly.
	ErrSecretLeakRisk = errors.New("runtime secrets may have leaked")
)

// JobUnit is one pending article inside a job descriptor.
type JobUnit struct {
	ArticleID uint   `json:"article_id"`
	Role      string `json:"role"`
	Work      string `json:"work"`
	Keyword   string `json:"keyword"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	Lang      string `json:"lang"`
}

// JobDescriptor is the self-contained work order for one run.
type JobDescriptor struct {
	RunID   string    `json:"run_id"`
	RunDate string    `json:"run_date"`
	Units   []JobUnit `json:"units"`
	Targets []string  `json:"targets"`
}

// RuntimeSecrets is the time-scoped credential bundle for one run. It holds
// only the credentials the run's targets need and must not outlive the
// executor: both sides delete it after use.
type RuntimeSecrets struct {
	RunID       string                           `json:"run_id"`
	Credentials map[string]deliverer.Credentials `json:"credentials"`
	ExpiresAt   time.Time                        `json:"expires_at"`
}

// UnitOutcome is the per-(article, platform) result reported back by the
// executor.
type UnitOutcome struct {
	ArticleID uint   `json:"article_id"`
	Platform  string `json:"platform"`
	Status    string `json:"status"`
	TargetID  string `json:"target_id,omitempty"`
	Error     string `json:"error,omitempty"`
	Class     string `json:"class,omitempty"`
}

// ResultDescriptor is the executor's complete answer for one job.
type ResultDescriptor struct {
	RunID    string        `json:"run_id"`
	Outcomes []UnitOutcome `json:"outcomes"`
	LogRef   string        `json:"log_ref,omitempty"`
}
