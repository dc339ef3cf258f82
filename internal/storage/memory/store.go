package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"memeWatch/internal/model"
	"memeWatch/internal/storage"
)

// Store is an in-memory implementation of storage.TokenStore and
// storage.StateBackend.
type Store struct {
	mu     sync.RWMutex
	tokens map[string]model.TrackedToken // keyed by address
	state  map[string]time.Time
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		tokens: make(map[string]model.TrackedToken),
		state:  make(map[string]time.Time),
	}
}

// Insert adds a new token. Returns ErrDuplicateKey if the address exists.
func (s *Store) Insert(_ context.Context, token model.TrackedToken) error {
	if token.Address == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tokens[token.Address]; exists {
		return storage.ErrDuplicateKey
	}
	s.tokens[token.Address] = token.Clone()
	return nil
}

// Get returns the token for an address. Returns ErrNotFound if not tracked.
func (s *Store) Get(_ context.Context, address string) (model.TrackedToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	token, exists := s.tokens[address]
	if !exists {
		return model.TrackedToken{}, storage.ErrNotFound
	}
	return token.Clone(), nil
}

// List returns all tokens, newest first.
func (s *Store) List(_ context.Context) ([]model.TrackedToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.TrackedToken, 0, len(s.tokens))
	for _, token := range s.tokens {
		out = append(out, token.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Address < out[j].Address
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// ListDue returns tokens with at least one interval due at now, oldest first.
func (s *Store) ListDue(_ context.Context, now time.Time) ([]model.TrackedToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.TrackedToken
	for _, token := range s.tokens {
		if len(token.DueAt(now)) > 0 {
			out = append(out, token.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// ApplyUpdate merges a refresh into the stored token under the write lock.
func (s *Store) ApplyUpdate(_ context.Context, address string, update model.RefreshUpdate) error {
	if len(update.Intervals) == 0 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	token, exists := s.tokens[address]
	if !exists {
		return storage.ErrNotFound
	}

	updated := token.Clone()
	if err := updated.Apply(update); err != nil {
		return errors.Join(storage.ErrConflict, err)
	}
	s.tokens[address] = updated
	return nil
}

// LoadState returns the timestamp saved under name.
func (s *Store) LoadState(_ context.Context, name string) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ts, ok := s.state[name]
	return ts, ok, nil
}

// SaveState records a timestamp under name.
func (s *Store) SaveState(_ context.Context, name string, ts time.Time) error {
	if name == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.state[name] = ts
	return nil
}

var (
	_ storage.TokenStore   = (*Store)(nil)
	_ storage.StateBackend = (*Store)(nil)
)
