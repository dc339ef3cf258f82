package storage

import (
	"context"
	"errors"
	"time"

	"memeWatch/internal/model"
)

var (
	// ErrNotFound is returned when a requested token does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when inserting an address that is already tracked.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrConflict is returned when a refresh update targets intervals that
	// were already cleared by another writer.
	ErrConflict = errors.New("conflicting update")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)

// TokenStore persists tracked tokens keyed by address.
type TokenStore interface {
	// Insert adds a new token. Returns ErrDuplicateKey if the address exists.
	Insert(ctx context.Context, token model.TrackedToken) error

	// Get returns the token for an address. Returns ErrNotFound if not tracked.
	Get(ctx context.Context, address string) (model.TrackedToken, error)

	// List returns all tokens ordered by creation time, newest first.
	List(ctx context.Context) ([]model.TrackedToken, error)

	// ListDue returns tokens with at least one due timestamp at or before now.
	ListDue(ctx context.Context, now time.Time) ([]model.TrackedToken, error)

	// ApplyUpdate atomically merges a refresh into a token. Returns ErrConflict
	// if any of the update's intervals is no longer set.
	ApplyUpdate(ctx context.Context, address string, update model.RefreshUpdate) error
}

// StateBackend stores named run timestamps.
type StateBackend interface {
	LoadState(ctx context.Context, name string) (time.Time, bool, error)
	SaveState(ctx context.Context, name string, ts time.Time) error
}

// SnapshotSink receives every captured snapshot.
type SnapshotSink interface {
	PutSnapshots(records []model.SnapshotRecord) error
}
