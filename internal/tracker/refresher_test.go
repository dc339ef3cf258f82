package tracker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"memeWatch/internal/lock"
	"memeWatch/internal/model"
	"memeWatch/internal/storage"
)

func newTestRefresher(f *fixture, state StateStore) *Refresher {
	return NewRefresher(RefresherConfig{Concurrency: 4, FetchTimeout: time.Second}, f.deps, nil, state)
}

func TestRefreshOnlyFifteenMinuteDue(t *testing.T) {
	f := newFixture(t)
	added := f.add(t, mintA)

	now := t0.Add(16 * time.Minute)
	f.clock.Set(now)
	res, err := newTestRefresher(f, nil).Refresh(context.Background(), now)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if res.Due != 1 || res.Updated != 1 || res.Skipped != 0 || len(res.Failures) != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}

	token := mustGet(t, f.store, mintA)
	if token.Next15m != nil {
		t.Fatalf("next_15m should be cleared")
	}
	if token.Next30m == nil || !token.Next30m.Equal(*added.Next30m) {
		t.Fatalf("next_30m changed: %v", token.Next30m)
	}
	if token.Next1h == nil || !token.Next1h.Equal(*added.Next1h) {
		t.Fatalf("next_1h changed: %v", token.Next1h)
	}
	if len(token.History) != 2 {
		t.Fatalf("expected initial and update_15m only: %+v", token.History)
	}
	if token.History[model.LabelInitial] != added.History[model.LabelInitial] {
		t.Fatalf("initial snapshot modified")
	}
	update, ok := token.History["update_15m"]
	if !ok || !update.Timestamp.Equal(now) {
		t.Fatalf("update_15m missing or stale: %+v", update)
	}
}

func TestRefreshSeveralDueIntervalsShareOneFetch(t *testing.T) {
	f := newFixture(t)
	f.add(t, mintA)

	now := t0.Add(31 * time.Minute)
	res, err := newTestRefresher(f, nil).Refresh(context.Background(), now)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if res.Updated != 1 {
		t.Fatalf("expected one entry updated: %+v", res)
	}
	if calls := f.source.Calls(mintA); calls != 2 {
		t.Fatalf("expected initial fetch plus exactly one refresh fetch, got %d", calls)
	}

	token := mustGet(t, f.store, mintA)
	if token.Next15m != nil || token.Next30m != nil || token.Next1h == nil {
		t.Fatalf("unexpected due state: %+v", token.NextDue)
	}
	if token.History["update_15m"] != token.History["update_30m"] {
		t.Fatalf("slots should hold identical values: %+v", token.History)
	}
	if _, ok := token.History["update_1h"]; ok {
		t.Fatalf("update_1h must not exist before next_1h is cleared")
	}
	if len(f.sink.records) != 3 {
		t.Fatalf("expected initial plus two update records, got %d", len(f.sink.records))
	}
}

func TestRefreshTwiceAtSameTimeIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.add(t, mintA)
	r := newTestRefresher(f, nil)
	now := t0.Add(time.Hour)

	first, err := r.Refresh(context.Background(), now)
	if err != nil || first.Updated != 1 {
		t.Fatalf("first refresh: %+v %v", first, err)
	}
	second, err := r.Refresh(context.Background(), now)
	if err != nil {
		t.Fatalf("second refresh: %v", err)
	}
	if second.Due != 0 || second.Updated != 0 {
		t.Fatalf("second refresh should update nothing: %+v", second)
	}
	if calls := f.source.Calls(mintA); calls != 2 {
		t.Fatalf("second refresh must not fetch, calls=%d", calls)
	}
	if !mustGet(t, f.store, mintA).Complete() {
		t.Fatalf("all intervals should be applied")
	}
}

func TestRefreshNothingDue(t *testing.T) {
	f := newFixture(t)
	f.add(t, mintA)

	res, err := newTestRefresher(f, nil).Refresh(context.Background(), t0.Add(14*time.Minute))
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if res.Due != 0 || res.Updated != 0 || f.source.Calls(mintA) != 1 {
		t.Fatalf("nothing should be refreshed: %+v", res)
	}
}

func TestRefreshFailureDoesNotStopOthers(t *testing.T) {
	f := newFixture(t)
	f.add(t, mintA)
	f.add(t, mintB)
	f.source.Fail(mintA, errUnavailable)

	res, err := newTestRefresher(f, nil).Refresh(context.Background(), t0.Add(20*time.Minute))
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if res.Due != 2 || res.Updated != 1 || len(res.Failures) != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	failure := res.Failures[0]
	var derr *DependencyError
	if failure.Address != mintA || !errors.As(failure.Err, &derr) || failure.Error == "" {
		t.Fatalf("unexpected failure: %+v", failure)
	}

	if mustGet(t, f.store, mintA).Next15m == nil {
		t.Fatalf("failed entry must stay due")
	}
	if mustGet(t, f.store, mintB).Next15m != nil {
		t.Fatalf("healthy entry should be updated")
	}
}

func TestRefreshWhileLockedFails(t *testing.T) {
	f := newFixture(t)
	f.add(t, mintA)
	locker := lock.NewLocalLocker()
	lease, err := locker.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer lease.Release(context.Background())

	r := NewRefresher(RefresherConfig{}, f.deps, locker, nil)
	if _, err := r.Refresh(context.Background(), t0.Add(time.Hour)); !errors.Is(err, ErrRefreshInProgress) {
		t.Fatalf("expected ErrRefreshInProgress, got %v", err)
	}
	if f.source.Calls(mintA) != 1 {
		t.Fatalf("locked refresh must not fetch")
	}
}

func TestRefreshListDueFailure(t *testing.T) {
	f := newFixture(t)
	f.deps.Store = &faultyStore{TokenStore: f.store, listDueErr: errUnavailable}

	_, err := newTestRefresher(f, nil).Refresh(context.Background(), t0)
	var derr *DependencyError
	if !errors.As(err, &derr) || !errors.Is(err, errUnavailable) {
		t.Fatalf("expected DependencyError, got %v", err)
	}
}

func TestRefreshConflictCountsAsSkipped(t *testing.T) {
	f := newFixture(t)
	f.add(t, mintA)
	f.deps.Store = &faultyStore{TokenStore: f.store, applyErr: storage.ErrConflict}

	res, err := newTestRefresher(f, nil).Refresh(context.Background(), t0.Add(16*time.Minute))
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if res.Updated != 0 || res.Skipped != 1 || len(res.Failures) != 0 {
		t.Fatalf("conflict should be skipped: %+v", res)
	}
}

func TestRefreshStoreWriteFailure(t *testing.T) {
	f := newFixture(t)
	f.add(t, mintA)
	f.deps.Store = &faultyStore{TokenStore: f.store, applyErr: errUnavailable}

	res, err := newTestRefresher(f, nil).Refresh(context.Background(), t0.Add(16*time.Minute))
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if res.Updated != 0 || len(res.Failures) != 1 {
		t.Fatalf("write failure should be reported per entry: %+v", res)
	}
}

func TestRefreshRecordsState(t *testing.T) {
	f := newFixture(t)
	f.add(t, mintA)
	state := &DBStateStore{Backend: f.store, Name: "refresh"}
	r := newTestRefresher(f, state)

	if _, ok := r.LastResult(); ok {
		t.Fatalf("no result expected before the first sweep")
	}

	now := t0.Add(16 * time.Minute)
	if _, err := r.Refresh(context.Background(), now); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	last, ok, err := r.LastRun(context.Background())
	if err != nil || !ok || !last.Equal(now) {
		t.Fatalf("last run not recorded: %v %v %v", last, ok, err)
	}
	res, ok := r.LastResult()
	if !ok || res.Updated != 1 {
		t.Fatalf("last result not kept: %+v", res)
	}
}

func TestRefreshMetrics(t *testing.T) {
	f := newFixture(t)
	f.deps.Metrics = NewMetrics(prometheus.NewRegistry())
	f.add(t, mintA)

	if _, err := newTestRefresher(f, nil).Refresh(context.Background(), t0.Add(16*time.Minute)); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if got := testutil.ToFloat64(f.deps.Metrics.refreshRuns.WithLabelValues("ok")); got != 1 {
		t.Fatalf("runs: %v", got)
	}
	if got := testutil.ToFloat64(f.deps.Metrics.refreshEntries.WithLabelValues("updated")); got != 1 {
		t.Fatalf("updated entries: %v", got)
	}
}

func TestFileStateStoreRoundTrip(t *testing.T) {
	store := &FileStateStore{Path: filepath.Join(t.TempDir(), "state", "refresh.json")}
	ctx := context.Background()

	if _, ok, err := store.Load(ctx); err != nil || ok {
		t.Fatalf("missing file should load empty: %v %v", ok, err)
	}

	ts := time.Date(2024, 5, 1, 12, 16, 0, 123000, time.UTC)
	if err := store.Save(ctx, ts); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, ok, err := store.Load(ctx)
	if err != nil || !ok || !got.Equal(ts) {
		t.Fatalf("round trip mismatch: %v %v %v", got, ok, err)
	}
}
