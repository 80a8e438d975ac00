package model

import "errors"

var (
	// ErrInsufficientBalance means a conditional charge did not apply because
	// the account balance would not cover it. User-correctable, never retried.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrPersistence wraps storage failures. The whole operation is safe to
	// retry: balance delta and ledger row apply together or not at all.
	ErrPersistence = errors.New("persistence failure")

	// ErrNotFound covers missing accounts, servers and samples.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateDeposit means a capture with an already-recorded external
	// payment reference; the original deposit stands, nothing is applied.
	ErrDuplicateDeposit = errors.New("deposit already recorded")

	// ErrAlreadySettled means the bandwidth overage for the requested period
	// was settled by an earlier run.
	ErrAlreadySettled = errors.New("overage already settled for period")

	// ErrProvider covers compute-provider failures (transient, provider-side).
	ErrProvider = errors.New("provider failure")

	// ErrMetricFetch means a live usage sample could not be obtained.
	ErrMetricFetch = errors.New("metric fetch failure")

	// ErrPayment covers payment-gateway failures; no balance mutation occurs.
	ErrPayment = errors.New("payment failure")
)
