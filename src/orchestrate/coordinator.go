package orchestrate

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"shotty/src/fleet"
)

// DefaultDescription is set on every snapshot the coordinator creates.
const DefaultDescription = "Created by shotty"

// Tag keys attached to created snapshots.
const (
	TagRunID          = "shotty:run-id"
	TagSourceInstance = "shotty:source-instance"
)

// Recorder receives per-volume and per-transition results. metrics.Recorder
// implements it; a nil Recorder discards everything.
type Recorder interface {
	VolumeDone(action VolumeAction)
	Transition(action string, err error)
}

// Coordinator sequences stop, snapshot and start for a single instance.
type Coordinator struct {
	Fleet fleet.Fleet
	// Out receives one human-readable progress line per step.
	Out     io.Writer
	Log     *slog.Logger
	Metrics Recorder
	DryRun  bool

	Description string
	// Tags are added to every created snapshot, e.g. the run id.
	Tags map[string]string
}

// SnapshotInstance snapshots every volume of inst that is due and not already
// being snapshotted. A running instance is stopped once before the first
// snapshot and started again afterwards; the restore decision uses the state
// observed on entry, never a re-read one. Provider errors are recorded in the
// outcome and never returned.
func (c *Coordinator) SnapshotInstance(ctx context.Context, inst fleet.Instance, maxAgeDays *int, now time.Time) InstanceOutcome {
	out := InstanceOutcome{InstanceID: inst.ID, OriginalState: inst.State}
	log := c.logger().With("instance", inst.ID, "state", string(inst.State))

	var due []int
	for _, v := range inst.Volumes {
		vo := VolumeOutcome{VolumeID: v.ID}
		switch {
		case HasPending(v):
			vo.Action = ActionSkippedPending
			vo.Reason = "snapshot already in progress"
			c.printf("  Skipping %s, snapshot already in progress\n", v.ID)
		case !NeedsSnapshot(v, maxAgeDays, now):
			last, _ := LastCompleted(v)
			vo.Action = ActionSkippedFresh
			vo.Reason = fmt.Sprintf("not aged out, %s is %d days old", last.ID, AgeDays(last, now))
			c.printf("  Skipping %s, %s\n", v.ID, vo.Reason)
		default:
			due = append(due, len(out.Volumes))
		}
		out.Volumes = append(out.Volumes, vo)
	}
	log.Debug("volumes classified", "volumes", len(inst.Volumes), "due", len(due))

	if len(due) == 0 {
		c.finish(&out)
		return out
	}

	if c.DryRun {
		for _, i := range due {
			out.Volumes[i].Action = ActionPlanned
			if inst.State == fleet.StateRunning {
				out.Volumes[i].Reason = "would stop instance and snapshot"
			} else {
				out.Volumes[i].Reason = "would snapshot"
			}
			c.printf("  Would snapshot %s\n", out.Volumes[i].VolumeID)
		}
		c.finish(&out)
		return out
	}

	if inst.State == fleet.StateRunning {
		c.printf("Stopping %s...\n", inst.ID)
		err := c.stop(ctx, inst.ID)
		c.transition("stop", err)
		if err != nil {
			log.Error("stop failed", "error", err)
			c.printf("Could not stop %s: %v\n", inst.ID, err)
			out.Err = fmt.Errorf("stopping %s: %w", inst.ID, err)
			for _, i := range due {
				out.Volumes[i].Action = ActionFailed
				out.Volumes[i].Reason = "instance could not be stopped"
				out.Volumes[i].Err = err
			}
			c.finish(&out)
			return out
		}
		out.Stopped = true
	}

	opts := c.snapshotOptions(inst.ID)
	for _, i := range due {
		vo := &out.Volumes[i]
		c.printf("  Creating snapshot of %s\n", vo.VolumeID)
		snap, err := c.Fleet.CreateSnapshot(ctx, vo.VolumeID, opts)
		if err != nil {
			log.Error("snapshot failed", "volume", vo.VolumeID, "error", err)
			c.printf("  Could not snapshot %s on %s: %v\n", vo.VolumeID, inst.ID, err)
			vo.Action = ActionFailed
			vo.Reason = err.Error()
			vo.Err = err
			continue
		}
		log.Info("snapshot created", "volume", vo.VolumeID, "snapshot", snap.ID)
		vo.Action = ActionSnapshotted
		vo.SnapshotID = snap.ID
	}

	if out.OriginalState == fleet.StateRunning && out.Stopped {
		c.printf("Starting %s...\n", inst.ID)
		err := c.start(ctx, inst.ID)
		c.transition("start", err)
		if err != nil {
			log.Error("restart failed", "error", err)
			c.printf("Could not start %s: %v\n", inst.ID, err)
			out.Err = fmt.Errorf("starting %s: %w", inst.ID, err)
			c.finish(&out)
			return out
		}
		out.Restarted = true
	}

	c.finish(&out)
	return out
}

func (c *Coordinator) stop(ctx context.Context, id string) error {
	if err := c.Fleet.StopInstance(ctx, id); err != nil {
		return err
	}
	return c.Fleet.WaitUntilStopped(ctx, id)
}

func (c *Coordinator) start(ctx context.Context, id string) error {
	if err := c.Fleet.StartInstance(ctx, id); err != nil {
		return err
	}
	return c.Fleet.WaitUntilRunning(ctx, id)
}

func (c *Coordinator) snapshotOptions(instanceID string) fleet.SnapshotOptions {
	desc := c.Description
	if desc == "" {
		desc = DefaultDescription
	}
	tags := make(map[string]string, len(c.Tags)+1)
	for k, v := range c.Tags {
		tags[k] = v
	}
	tags[TagSourceInstance] = instanceID
	return fleet.SnapshotOptions{Description: desc, Tags: tags}
}

func (c *Coordinator) finish(out *InstanceOutcome) {
	if c.Metrics != nil {
		for _, v := range out.Volumes {
			c.Metrics.VolumeDone(v.Action)
		}
	}
	c.logger().Info("instance done",
		"instance", out.InstanceID,
		"snapshotted", out.Count(ActionSnapshotted),
		"skipped", out.Count(ActionSkippedPending)+out.Count(ActionSkippedFresh),
		"failed", out.Count(ActionFailed),
		"stopped", out.Stopped,
		"restarted", out.Restarted,
	)
}

func (c *Coordinator) transition(action string, err error) {
	if c.Metrics != nil {
		c.Metrics.Transition(action, err)
	}
}

func (c *Coordinator) printf(format string, args ...any) {
	if c.Out != nil {
		fmt.Fprintf(c.Out, format, args...)
	}
}

func (c *Coordinator) logger() *slog.Logger {
	if c.Log != nil {
		return c.Log
	}
	return slog.Default()
}
