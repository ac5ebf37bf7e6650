// Package store provides the durable idempotency record store. The
// conditional insert in PutIfAbsent is the only cross-process mutual
// exclusion primitive: the first caller to insert an in-progress record
// for a key owns that key until the record completes, is deleted, or its
// lease expires. SQLite and Postgres backends share one implementation
// (SQLStore); Memory is for tests and embedded use.
package store

import (
	"context"
	"errors"
	"time"
)

// Status is the lifecycle state of an idempotency record.
type Status string

const (
	// StatusInProgress marks a record whose operation is still executing.
	StatusInProgress Status = "INPROGRESS"
	// StatusCompleted marks a record holding a persisted response payload.
	StatusCompleted Status = "COMPLETED"
)

// Record tracks one idempotency key's execution state. ResponsePayload is
// only set once Status is COMPLETED. Owner is an opaque token identifying
// the caller that inserted the record; Complete and Delete are conditioned
// on it so a late writer cannot clobber a reclaimed key.
type Record struct {
	ID              string
	Status          Status
	Owner           string
	ResponsePayload []byte
	CreatedAt       time.Time
	ExpiresAt       time.Time
}

// Expired reports whether the record's expiry is at or before now.
func (r Record) Expired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}

var (
	// ErrNotFound is returned when no live record exists for a key.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyCompleted is returned by Complete when the record has
	// already transitioned to COMPLETED.
	ErrAlreadyCompleted = errors.New("record already completed")
	// ErrNotOwner is returned when the caller's owner token no longer
	// matches the stored record.
	ErrNotOwner = errors.New("record owned by another caller")
)

// PutOutcome is the result of a conditional insert.
type PutOutcome struct {
	// Created is true when the caller's record was inserted (or an
	// expired record was reclaimed) and the caller now owns the key.
	Created bool
	// Existing holds the live record that blocked the insert when
	// Created is false.
	Existing Record
}

// Store is the durable record store contract. All reads treat expired
// records as absent; eager cleanup is an optimization, not required for
// correctness.
type Store interface {
	// PutIfAbsent atomically inserts rec if no live record exists for
	// rec.ID. An expired record (lease or TTL lapsed) counts as absent
	// and may be reclaimed in the same call.
	PutIfAbsent(ctx context.Context, rec Record) (PutOutcome, error)

	// Get returns the live record for id, or ErrNotFound.
	Get(ctx context.Context, id string) (Record, error)

	// Complete transitions the INPROGRESS record owned by owner to
	// COMPLETED with the given payload and expiry. Returns ErrNotFound,
	// ErrAlreadyCompleted, or ErrNotOwner when the precondition fails.
	Complete(ctx context.Context, id, owner string, payload []byte, expiresAt time.Time) error

	// Delete removes the record for id if owned by owner, releasing the
	// key for retry. Deleting an absent record is not an error.
	Delete(ctx context.Context, id, owner string) error

	// Close releases backend resources.
	Close() error
}
