package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"memeWatch/internal/model"
	"memeWatch/internal/storage"
	"memeWatch/internal/telemetry"
)

// Registry owns the set of tracked addresses.
type Registry struct {
	deps Deps
}

// NewRegistry builds a Registry with its dependencies.
func NewRegistry(deps Deps) *Registry {
	return &Registry{deps: deps.withDefaults()}
}

// Add starts tracking an address. The initial snapshot is fetched before
// anything is persisted, so a failed fetch leaves the store untouched.
func (r *Registry) Add(ctx context.Context, address string) (model.TrackedToken, error) {
	ctx, span := telemetry.StartSpan(ctx, "registry.add", address)
	defer span.End()

	token, err := r.add(ctx, address)
	telemetry.RecordError(span, err)
	r.deps.Metrics.observeAdd(err)
	return token, err
}

func (r *Registry) add(ctx context.Context, raw string) (model.TrackedToken, error) {
	if r.deps.Store == nil || r.deps.Source == nil || r.deps.Validator == nil {
		return model.TrackedToken{}, fmt.Errorf("registry is not fully configured")
	}

	address := strings.TrimSpace(raw)
	if err := r.deps.Validator.Validate(address); err != nil {
		return model.TrackedToken{}, &ValidationError{Address: raw, Err: err}
	}

	_, err := r.deps.Store.Get(ctx, address)
	switch {
	case err == nil:
		return model.TrackedToken{}, ErrAlreadyTracked
	case !errors.Is(err, storage.ErrNotFound):
		return model.TrackedToken{}, &DependencyError{Op: "lookup", Address: address, Err: err}
	}

	now := normalizeTime(r.deps.Clock())
	snap, err := r.deps.Source.FetchSnapshot(ctx, address)
	if err == nil {
		err = snap.Validate()
	}
	if err != nil {
		return model.TrackedToken{}, &DependencyError{Op: "fetch snapshot", Address: address, Err: err}
	}

	token := model.NewTrackedToken(address, now, snap)
	if err := r.deps.Store.Insert(ctx, token); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return model.TrackedToken{}, ErrAlreadyTracked
		}
		return model.TrackedToken{}, &DependencyError{Op: "insert", Address: address, Err: err}
	}

	capture(r.deps.Sink, r.deps.Logger, []model.SnapshotRecord{
		snapshotRecord(address, model.LabelInitial, snap),
	})
	r.deps.Logger.Info("token tracked",
		zap.String("address", address),
		zap.Time("next_15m", *token.Next15m),
		zap.Time("next_1h", *token.Next1h),
	)
	return token, nil
}

// List returns every tracked token, newest first, or only the token matching
// address when it is non-empty. No match yields an empty slice.
func (r *Registry) List(ctx context.Context, address string) ([]model.TrackedToken, error) {
	if r.deps.Store == nil {
		return nil, fmt.Errorf("registry is not fully configured")
	}

	address = strings.TrimSpace(address)
	if address != "" {
		token, err := r.deps.Store.Get(ctx, address)
		if errors.Is(err, storage.ErrNotFound) {
			return []model.TrackedToken{}, nil
		}
		if err != nil {
			return nil, &DependencyError{Op: "list", Address: address, Err: err}
		}
		return []model.TrackedToken{token}, nil
	}

	tokens, err := r.deps.Store.List(ctx)
	if err != nil {
		return nil, &DependencyError{Op: "list", Err: err}
	}
	if tokens == nil {
		tokens = []model.TrackedToken{}
	}
	return tokens, nil
}
