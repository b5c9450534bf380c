package service

import "errors"

// Sentinel errors for the planning and dedup pipeline. Callers branch on
// these with errors.Is; every one of them is recoverable by selecting a
// different candidate or treating the submission as a no-op.
var (
	// ErrDuplicateRun means the run_id already exists in a non-scheduled
	// state. Re-submission is a no-op returning the stored run.
	ErrDuplicateRun = errors.New("duplicate run")

	// ErrPairExhausted means the (role, work, keyword) combination already
	// has a used_pairs row and may not be generated again.
	ErrPairExhausted = errors.New("pair exhausted")

	// ErrDuplicateContent means the normalized body collides with an
	// existing article's content signature.
	ErrDuplicateContent = errors.New("duplicate content")

	// ErrDuplicateTitle means the title is too similar to a recent one.
	ErrDuplicateTitle = errors.New("duplicate title")

	// ErrBusy means the theme candidate is soft-locked by another live run.
	ErrBusy = errors.New("candidate locked by another run")

	// ErrAlreadyUsed is the commit-time violation of the pair uniqueness
	// guard, independent of any soft lock.
	ErrAlreadyUsed = errors.New("pair already used")
)
