package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Interval is one of the fixed delays after which a fresh snapshot is due.
type Interval string

const (
	Interval15m Interval = "15m"
	Interval30m Interval = "30m"
	Interval1h  Interval = "1h"
)

// LabelInitial is the history label of the snapshot taken at registration.
const LabelInitial = "initial"

// Intervals lists every interval kind in ascending delay order.
var Intervals = []Interval{Interval15m, Interval30m, Interval1h}

// Delay returns the offset from creation time at which the interval is due.
func (i Interval) Delay() time.Duration {
	switch i {
	case Interval15m:
		return 15 * time.Minute
	case Interval30m:
		return 30 * time.Minute
	case Interval1h:
		return time.Hour
	default:
		return 0
	}
}

// Label returns the history key the interval's snapshot is stored under.
func (i Interval) Label() string {
	return "update_" + string(i)
}

// NextDue holds the three independent due timestamps. A nil field means the
// interval has already been applied.
type NextDue struct {
	Next15m *time.Time `json:"next_15m"`
	Next30m *time.Time `json:"next_30m"`
	Next1h  *time.Time `json:"next_1h"`
}

// NewNextDue schedules all three intervals relative to createdAt.
func NewNextDue(createdAt time.Time) NextDue {
	var n NextDue
	for _, i := range Intervals {
		at := createdAt.Add(i.Delay())
		n.set(i, &at)
	}
	return n
}

// Get returns the due time for an interval, or nil once cleared.
func (n NextDue) Get(i Interval) *time.Time {
	switch i {
	case Interval15m:
		return n.Next15m
	case Interval30m:
		return n.Next30m
	case Interval1h:
		return n.Next1h
	default:
		return nil
	}
}

func (n *NextDue) set(i Interval, at *time.Time) {
	switch i {
	case Interval15m:
		n.Next15m = at
	case Interval30m:
		n.Next30m = at
	case Interval1h:
		n.Next1h = at
	}
}

// Clear marks an interval as applied.
func (n *NextDue) Clear(i Interval) {
	n.set(i, nil)
}

// DueAt returns the intervals whose deadline is set and at or before now.
func (n NextDue) DueAt(now time.Time) []Interval {
	var due []Interval
	for _, i := range Intervals {
		at := n.Get(i)
		if at != nil && !at.After(now) {
			due = append(due, i)
		}
	}
	return due
}

// Complete reports whether every interval has been applied.
func (n NextDue) Complete() bool {
	return n.Next15m == nil && n.Next30m == nil && n.Next1h == nil
}

// TrackedToken is an address under delayed snapshot collection.
type TrackedToken struct {
	ID      uuid.UUID `json:"id"`
	Address string    `json:"address"`
	NextDue
	History   map[string]MetricsSnapshot `json:"history"`
	CreatedAt time.Time                  `json:"created_at"`
	UpdatedAt time.Time                  `json:"updated_at"`
}

// NewTrackedToken builds a token with all intervals scheduled and the initial
// snapshot recorded.
func NewTrackedToken(address string, createdAt time.Time, initial MetricsSnapshot) TrackedToken {
	return TrackedToken{
		ID:        uuid.New(),
		Address:   address,
		NextDue:   NewNextDue(createdAt),
		History:   map[string]MetricsSnapshot{LabelInitial: initial},
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

// Clone returns a deep copy.
func (t TrackedToken) Clone() TrackedToken {
	out := t
	out.NextDue = NextDue{
		Next15m: cloneTime(t.Next15m),
		Next30m: cloneTime(t.Next30m),
		Next1h:  cloneTime(t.Next1h),
	}
	out.History = make(map[string]MetricsSnapshot, len(t.History))
	for k, v := range t.History {
		out.History[k] = v
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// RefreshUpdate is the atomic change applied to one token by a refresh.
type RefreshUpdate struct {
	Intervals []Interval
	Snapshot  MetricsSnapshot
	AppliedAt time.Time
}

// HistoryPatch returns the history entries the update adds.
func (u RefreshUpdate) HistoryPatch() map[string]MetricsSnapshot {
	patch := make(map[string]MetricsSnapshot, len(u.Intervals))
	for _, i := range u.Intervals {
		patch[i.Label()] = u.Snapshot
	}
	return patch
}

// Apply merges the update into the token. It fails without modifying the
// token if any of the intervals was already cleared.
func (t *TrackedToken) Apply(u RefreshUpdate) error {
	if len(u.Intervals) == 0 {
		return fmt.Errorf("refresh update has no intervals")
	}
	for _, i := range u.Intervals {
		if t.Get(i) == nil {
			return fmt.Errorf("interval %s already applied", i)
		}
	}
	if t.History == nil {
		t.History = make(map[string]MetricsSnapshot, len(u.Intervals))
	}
	for label, snap := range u.HistoryPatch() {
		t.History[label] = snap
	}
	for _, i := range u.Intervals {
		t.Clear(i)
	}
	t.UpdatedAt = u.AppliedAt
	return nil
}
