package fleet

import (
	"context"
	"sort"
	"time"
)

// RunState is the provider's instance state, treated as an opaque value
// except for the few states the orchestration acts on.
type RunState string

const (
	StateRunning      RunState = "running"
	StateStopped      RunState = "stopped"
	StateStopping     RunState = "stopping"
	StatePending      RunState = "pending"
	StateShuttingDown RunState = "shutting-down"
	StateTerminated   RunState = "terminated"
)

// SnapshotState is the lifecycle state of a volume snapshot.
type SnapshotState string

const (
	SnapshotPending   SnapshotState = "pending"
	SnapshotCompleted SnapshotState = "completed"
	SnapshotError     SnapshotState = "error"
)

// ProjectTag is the tag key used to group instances into projects.
const ProjectTag = "Project"

// Snapshot is a point-in-time copy of a volume.
type Snapshot struct {
	ID        string
	VolumeID  string
	State     SnapshotState
	Progress  string
	StartTime time.Time
}

// Volume is a block-storage volume attached to an instance.
// Snapshots are ordered most recent first.
type Volume struct {
	ID        string
	SizeGiB   int
	Encrypted bool
	State     string
	Snapshots []Snapshot
}

// Instance is a compute instance with its attached volumes.
type Instance struct {
	ID        string
	Type      string
	Zone      string
	PublicDNS string
	State     RunState
	Tags      map[string]string
	Volumes   []Volume
}

// Project returns the value of the Project tag, if any.
func (i Instance) Project() (string, bool) {
	p, ok := i.Tags[ProjectTag]
	return p, ok
}

// Selector narrows an instance listing. An empty selector matches every instance.
type Selector struct {
	InstanceIDs []string
	Tags        map[string]string
}

// SnapshotOptions carries the metadata attached to a new snapshot.
type SnapshotOptions struct {
	Description string
	Tags        map[string]string
}

// Fleet is the narrow provider capability the orchestration relies on.
// Keep it small so it stays mockable.
type Fleet interface {
	// Instances lists instances matching sel, with volumes and snapshots populated.
	Instances(ctx context.Context, sel Selector) ([]Instance, error)

	CreateSnapshot(ctx context.Context, volumeID string, opts SnapshotOptions) (Snapshot, error)

	StopInstance(ctx context.Context, id string) error
	StartInstance(ctx context.Context, id string) error
	RebootInstance(ctx context.Context, id string) error

	// WaitUntilStopped and WaitUntilRunning block until the instance reaches the
	// state, the provider gives up, or ctx is done.
	WaitUntilStopped(ctx context.Context, id string) error
	WaitUntilRunning(ctx context.Context, id string) error
}

// SortSnapshots orders snapshots most recent first. Adapters whose provider
// does not guarantee that ordering call it before handing volumes out.
func SortSnapshots(snaps []Snapshot) {
	sort.SliceStable(snaps, func(i, j int) bool {
		return snaps[i].StartTime.After(snaps[j].StartTime)
	})
}

// matches reports whether inst satisfies sel.
func (sel Selector) matches(inst Instance) bool {
	if len(sel.InstanceIDs) > 0 {
		found := false
		for _, id := range sel.InstanceIDs {
			if id == inst.ID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for k, v := range sel.Tags {
		if inst.Tags[k] != v {
			return false
		}
	}
	return true
}
