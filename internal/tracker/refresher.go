package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"memeWatch/internal/lock"
	"memeWatch/internal/model"
	"memeWatch/internal/storage"
	"memeWatch/internal/telemetry"
)

// RefresherConfig holds refresh sweep settings.
type RefresherConfig struct {
	Concurrency  int
	FetchTimeout time.Duration
}

// RefreshFailure describes one entry the sweep could not update.
type RefreshFailure struct {
	Address string `json:"address"`
	Error   string `json:"error"`
	Err     error  `json:"-"`
}

// RefreshResult summarizes one refresh sweep.
type RefreshResult struct {
	Now      time.Time        `json:"now"`
	Due      int              `json:"due"`
	Updated  int              `json:"updated"`
	Skipped  int              `json:"skipped"`
	Failures []RefreshFailure `json:"failures"`
}

// Refresher merges fresh snapshots into every due entry.
type Refresher struct {
	cfg    RefresherConfig
	deps   Deps
	locker lock.Locker
	state  StateStore

	mu   sync.RWMutex
	last *RefreshResult
}

// NewRefresher builds a Refresher. A nil locker falls back to an in-process
// lock and a nil state store disables run bookkeeping.
func NewRefresher(cfg RefresherConfig, deps Deps, locker lock.Locker, state StateStore) *Refresher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	return &Refresher{
		cfg:    cfg,
		deps:   deps.withDefaults(),
		locker: locker,
		state:  state,
	}
}

// Refresh runs one sweep at now. Each due entry gets exactly one fetch, and
// every interval due at now receives that same snapshot.
func (r *Refresher) Refresh(ctx context.Context, now time.Time) (RefreshResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "refresher.refresh", "")
	defer span.End()

	started := time.Now()
	res, err := r.refresh(ctx, normalizeTime(now))
	telemetry.RecordError(span, err)
	r.deps.Metrics.observeRefresh(res, err, time.Since(started))
	return res, err
}

func (r *Refresher) refresh(ctx context.Context, now time.Time) (RefreshResult, error) {
	if r.deps.Store == nil || r.deps.Source == nil {
		return RefreshResult{}, fmt.Errorf("refresher is not fully configured")
	}

	lease, err := r.locker.Acquire(ctx)
	if errors.Is(err, lock.ErrLocked) {
		return RefreshResult{}, ErrRefreshInProgress
	}
	if err != nil {
		return RefreshResult{}, &DependencyError{Op: "acquire refresh lock", Err: err}
	}
	defer func() {
		if err := lease.Release(context.Background()); err != nil {
			r.deps.Logger.Warn("release refresh lock failed", zap.Error(err))
		}
	}()

	due, err := r.deps.Store.ListDue(ctx, now)
	if err != nil {
		return RefreshResult{}, &DependencyError{Op: "list due", Err: err}
	}

	outcomes := make([]entryOutcome, len(due))
	var g errgroup.Group
	g.SetLimit(r.cfg.Concurrency)
	for i := range due {
		i := i
		g.Go(func() error {
			outcomes[i] = r.refreshOne(ctx, due[i], now)
			return nil
		})
	}
	_ = g.Wait()

	res := RefreshResult{Now: now, Due: len(due), Failures: []RefreshFailure{}}
	var records []model.SnapshotRecord
	for i, out := range outcomes {
		switch {
		case out.err != nil:
			res.Failures = append(res.Failures, RefreshFailure{
				Address: due[i].Address,
				Error:   out.err.Error(),
				Err:     out.err,
			})
		case out.skipped:
			res.Skipped++
		default:
			res.Updated++
			records = append(records, out.records...)
		}
	}

	capture(r.deps.Sink, r.deps.Logger, records)
	if r.state != nil {
		if err := r.state.Save(ctx, now); err != nil {
			r.deps.Logger.Warn("save refresh state failed", zap.Error(err))
		}
	}
	r.setLast(res)

	r.deps.Logger.Info("refresh completed",
		zap.Time("now", now),
		zap.Int("due", res.Due),
		zap.Int("updated", res.Updated),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", len(res.Failures)),
	)
	return res, nil
}

type entryOutcome struct {
	skipped bool
	records []model.SnapshotRecord
	err     error
}

func (r *Refresher) refreshOne(ctx context.Context, token model.TrackedToken, now time.Time) entryOutcome {
	intervals := token.DueAt(now)
	if len(intervals) == 0 {
		return entryOutcome{skipped: true}
	}

	ctx, span := telemetry.StartSpan(ctx, "refresher.entry", token.Address)
	defer span.End()

	fetchCtx := ctx
	if r.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, r.cfg.FetchTimeout)
		defer cancel()
	}

	snap, err := r.deps.Source.FetchSnapshot(fetchCtx, token.Address)
	if err == nil {
		err = snap.Validate()
	}
	if err != nil {
		derr := &DependencyError{Op: "fetch snapshot", Address: token.Address, Err: err}
		telemetry.RecordError(span, derr)
		r.deps.Logger.Warn("refresh fetch failed", zap.String("address", token.Address), zap.Error(err))
		return entryOutcome{err: derr}
	}

	update := model.RefreshUpdate{Intervals: intervals, Snapshot: snap, AppliedAt: now}
	if err := r.deps.Store.ApplyUpdate(ctx, token.Address, update); err != nil {
		if errors.Is(err, storage.ErrConflict) || errors.Is(err, storage.ErrNotFound) {
			r.deps.Logger.Info("refresh skipped, entry changed concurrently",
				zap.String("address", token.Address),
				zap.Error(err),
			)
			return entryOutcome{skipped: true}
		}
		derr := &DependencyError{Op: "apply update", Address: token.Address, Err: err}
		telemetry.RecordError(span, derr)
		r.deps.Logger.Warn("refresh update failed", zap.String("address", token.Address), zap.Error(err))
		return entryOutcome{err: derr}
	}

	records := make([]model.SnapshotRecord, 0, len(intervals))
	for _, i := range intervals {
		records = append(records, snapshotRecord(token.Address, i.Label(), snap))
	}
	r.deps.Logger.Debug("entry refreshed",
		zap.String("address", token.Address),
		zap.Int("intervals", len(intervals)),
	)
	return entryOutcome{records: records}
}

func (r *Refresher) setLast(res RefreshResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = &res
}

// LastResult returns the result of the most recent sweep run by this process.
func (r *Refresher) LastResult() (RefreshResult, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.last == nil {
		return RefreshResult{}, false
	}
	return *r.last, true
}

// LastRun returns the time of the last recorded sweep from the state store.
func (r *Refresher) LastRun(ctx context.Context) (time.Time, bool, error) {
	if r.state == nil {
		return time.Time{}, false, nil
	}
	return r.state.Load(ctx)
}
