// Package services defines the business logic for balance mutations, game
// sessions, and the privileged grant path. This file centralizes common
// service-level error values so that they can be consistently returned by
// service methods and checked by callers.
//
// These errors are intended for internal use by the service layer and
// translation into user-facing messages or HTTP status codes should be
// performed at the handler layer.
package services

import "errors"

// Balance mutation errors.
var (
	// ErrInsufficientFunds is returned when a spend would drive the chip
	// count or token balance below zero. Nothing is committed.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrOperationLocked is returned when another mutation for the same
	// account is in flight. Callers should back off and retry; the retry
	// is safe because of idempotent replay.
	ErrOperationLocked = errors.New("operation locked")

	// ErrInvalidRequest is returned when an operation request is
	// malformed: unknown type, missing request_ref, or an amount of the
	// wrong sign or kind for the operation type.
	ErrInvalidRequest = errors.New("invalid operation request")

	// ErrVersionConflict indicates the ledger row changed between read
	// and commit. Under the account lock this should not happen; it is
	// the secondary defense against lost updates.
	ErrVersionConflict = errors.New("account version conflict")
)

// Session errors.
var (
	// ErrSessionNotFound indicates that the requested session does not exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidState is returned when a session transition is attempted
	// from a state that does not permit it (e.g. any transition from Ended).
	ErrInvalidState = errors.New("invalid session state")
)
