// Package monitoring reports pipeline health: document counts per status,
// error rates, and documents stuck mid-pipeline.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/fxsettle/confirm-cli/internal/model"
	"github.com/fxsettle/confirm-cli/internal/store"
)

// Snapshot holds a point-in-time view of pipeline health.
type Snapshot struct {
	CountsByStatus map[model.ProcessingStatus]int `json:"counts_by_status"`
	Total          int                            `json:"total"`
	ErrorCount     int                            `json:"error_count"`
	ErrorRate      float64                        `json:"error_rate"`
	StuckCount     int                            `json:"stuck_count"`
	CollectedAt    time.Time                      `json:"collected_at"`
}

// Collector computes health snapshots from the store.
type Collector struct {
	store          store.Store
	stuckThreshold time.Duration
}

// NewCollector creates a Collector. Documents in a non-terminal state with
// no update for longer than stuckThreshold count as stuck.
func NewCollector(st store.Store, stuckThreshold time.Duration) *Collector {
	return &Collector{store: st, stuckThreshold: stuckThreshold}
}

// Snapshot queries current pipeline health.
func (c *Collector) Snapshot(ctx context.Context) (*Snapshot, error) {
	counts, err := c.store.CountsByStatus(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: status counts")
	}

	stuck, err := c.store.StuckDocuments(ctx, c.stuckThreshold)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: stuck documents")
	}

	snap := &Snapshot{
		CountsByStatus: counts,
		StuckCount:     len(stuck),
		CollectedAt:    time.Now().UTC(),
	}
	for status, n := range counts {
		snap.Total += n
		if status == model.StatusError {
			snap.ErrorCount += n
		}
	}
	if snap.Total > 0 {
		snap.ErrorRate = float64(snap.ErrorCount) / float64(snap.Total)
	}
	return snap, nil
}
