package orchestrate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"shotty/src/fleet"
	"shotty/src/safety"
)

// Request is one orchestration run.
type Request struct {
	Criterion Criterion
	// Force allows a run without project or instance selection.
	Force bool
	// MaxAgeDays is the staleness threshold; nil snapshots unconditionally.
	MaxAgeDays *int
}

// Driver runs the coordinator across the selected instances, one at a time.
type Driver struct {
	Fleet       fleet.Fleet
	Coordinator *Coordinator
	Log         *slog.Logger
	Now         func() time.Time
}

// Run selects instances and snapshots them in order. A request without
// selection and without Force returns safety.ErrSelectionRequired before any
// provider call. A selection failure aborts the run; per-instance failures
// are reported in the outcomes instead.
func (d *Driver) Run(ctx context.Context, req Request) ([]InstanceOutcome, error) {
	if err := safety.Gate(req.Criterion.Project, req.Criterion.InstanceID, req.Force); err != nil {
		return nil, err
	}
	if req.MaxAgeDays != nil && *req.MaxAgeDays < 0 {
		return nil, fmt.Errorf("age must not be negative, got %d", *req.MaxAgeDays)
	}

	log := d.logger().With("criterion", req.Criterion.String())
	instances, err := Select(ctx, d.Fleet, req.Criterion)
	if err != nil {
		return nil, fmt.Errorf("selecting instances (%s): %w", req.Criterion, err)
	}
	log.Info("instances selected", "count", len(instances))

	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	started := now()

	outcomes := make([]InstanceOutcome, 0, len(instances))
	for _, inst := range instances {
		outcomes = append(outcomes, d.Coordinator.SnapshotInstance(ctx, inst, req.MaxAgeDays, started))
	}
	return outcomes, nil
}

func (d *Driver) logger() *slog.Logger {
	if d.Log != nil {
		return d.Log
	}
	return slog.Default()
}
