package tracker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"memeWatch/internal/chain"
	"memeWatch/internal/model"
	"memeWatch/internal/storage"
	"memeWatch/internal/storage/memory"
)

const (
	mintA = "4k3Dyjzvzp8eMZWUXbBCjEvwSkkk59S5iCNLY3QrkX6R"
	mintB = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fakeSource struct {
	clock *fakeClock

	mu    sync.Mutex
	calls map[string]int
	fail  map[string]error
	seq   float64
}

func newFakeSource(clock *fakeClock) *fakeSource {
	return &fakeSource{clock: clock, calls: map[string]int{}, fail: map[string]error{}}
}

func (f *fakeSource) FetchSnapshot(_ context.Context, address string) (model.MetricsSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[address]++
	if err := f.fail[address]; err != nil {
		return model.MetricsSnapshot{}, err
	}
	f.seq++
	return model.MetricsSnapshot{
		MarketCap: 1000 * f.seq,
		Price:     0.001 * f.seq,
		Volume5m:  10 * f.seq,
		Volume15m: 30 * f.seq,
		Volume30m: 60 * f.seq,
		Holders:   uint64(100 * f.seq),
		Timestamp: f.clock.Now(),
	}, nil
}

func (f *fakeSource) Calls(address string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[address]
}

func (f *fakeSource) Fail(address string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[address] = err
}

type recordingSink struct {
	mu      sync.Mutex
	records []model.SnapshotRecord
}

func (s *recordingSink) PutSnapshots(records []model.SnapshotRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, records...)
	return nil
}

// faultyStore overrides selected store operations with failures.
type faultyStore struct {
	storage.TokenStore
	listDueErr error
	applyErr   error
}

func (s *faultyStore) ListDue(ctx context.Context, now time.Time) ([]model.TrackedToken, error) {
	if s.listDueErr != nil {
		return nil, s.listDueErr
	}
	return s.TokenStore.ListDue(ctx, now)
}

func (s *faultyStore) ApplyUpdate(ctx context.Context, address string, update model.RefreshUpdate) error {
	if s.applyErr != nil {
		return s.applyErr
	}
	return s.TokenStore.ApplyUpdate(ctx, address, update)
}

type fixture struct {
	clock  *fakeClock
	store  *memory.Store
	source *fakeSource
	sink   *recordingSink
	deps   Deps
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := &fakeClock{now: t0}
	store := memory.NewStore()
	source := newFakeSource(clock)
	sink := &recordingSink{}
	return &fixture{
		clock:  clock,
		store:  store,
		source: source,
		sink:   sink,
		deps: Deps{
			Store:     store,
			Source:    source,
			Validator: chain.AddressValidator{},
			Sink:      sink,
			Clock:     clock.Now,
		},
	}
}

func (f *fixture) add(t *testing.T, address string) model.TrackedToken {
	t.Helper()
	token, err := NewRegistry(f.deps).Add(context.Background(), address)
	if err != nil {
		t.Fatalf("add %s: %v", address, err)
	}
	return token
}

func mustGet(t *testing.T, store storage.TokenStore, address string) model.TrackedToken {
	t.Helper()
	token, err := store.Get(context.Background(), address)
	if err != nil {
		t.Fatalf("get %s: %v", address, err)
	}
	return token
}

var errUnavailable = errors.New("upstream unavailable")
