// Package tracker implements the tracking registry and the snapshot refresher.
package tracker

import (
	"time"

	"go.uber.org/zap"

	"memeWatch/internal/marketdata"
	"memeWatch/internal/model"
	"memeWatch/internal/storage"
)

// Validator checks that an address is well formed.
type Validator interface {
	Validate(address string) error
}

// Deps are the collaborators shared by the registry and the refresher. Sink,
// Metrics and Clock are optional.
type Deps struct {
	Store     storage.TokenStore
	Source    marketdata.Source
	Validator Validator
	Sink      storage.SnapshotSink
	Metrics   *Metrics
	Clock     func() time.Time
	Logger    *zap.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	return d
}

// normalizeTime keeps timestamps in UTC at the precision the row store holds.
func normalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// capture appends snapshot records to the sink. Failures are logged only.
func capture(sink storage.SnapshotSink, logger *zap.Logger, records []model.SnapshotRecord) {
	if sink == nil || len(records) == 0 {
		return
	}
	if err := sink.PutSnapshots(records); err != nil {
		logger.Warn("snapshot capture failed", zap.Int("records", len(records)), zap.Error(err))
	}
}

func snapshotRecord(address, label string, snap model.MetricsSnapshot) model.SnapshotRecord {
	return model.SnapshotRecord{
		Address:    address,
		Label:      label,
		Snapshot:   snap,
		CapturedAt: snap.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}
