package tracker

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyTracked is returned when adding an address the registry already holds.
	ErrAlreadyTracked = errors.New("address is already tracked")

	// ErrRefreshInProgress is returned when another refresh holds the refresh lock.
	ErrRefreshInProgress = errors.New("refresh already in progress")
)

// ValidationError reports a malformed address.
type ValidationError struct {
	Address string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid address %q: %v", e.Address, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// DependencyError reports a failure of the market-data source or the store.
type DependencyError struct {
	Op      string
	Address string
	Err     error
}

func (e *DependencyError) Error() string {
	if e.Address == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Address, e.Err)
}

func (e *DependencyError) Unwrap() error {
	return e.Err
}
