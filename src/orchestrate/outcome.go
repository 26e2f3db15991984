package orchestrate

import "shotty/src/fleet"

// VolumeAction is what happened to one volume during a run.
type VolumeAction string

const (
	ActionSnapshotted    VolumeAction = "snapshotted"
	ActionSkippedPending VolumeAction = "skipped-pending"
	ActionSkippedFresh   VolumeAction = "skipped-fresh"
	ActionPlanned        VolumeAction = "planned"
	ActionFailed         VolumeAction = "failed"
)

// VolumeOutcome records the result for one volume.
type VolumeOutcome struct {
	VolumeID   string
	Action     VolumeAction
	SnapshotID string
	Reason     string
	Err        error
}

// InstanceOutcome summarizes one instance's run.
type InstanceOutcome struct {
	InstanceID    string
	OriginalState fleet.RunState
	Stopped       bool
	Restarted     bool
	Volumes       []VolumeOutcome
	// Err is set when stopping or restarting the instance failed.
	Err error
}

// Count returns the number of volumes that ended with action a.
func (o InstanceOutcome) Count(a VolumeAction) int {
	n := 0
	for _, v := range o.Volumes {
		if v.Action == a {
			n++
		}
	}
	return n
}

// Failed reports whether any part of the instance's run failed.
func (o InstanceOutcome) Failed() bool {
	return o.Err != nil || o.Count(ActionFailed) > 0
}

// Volume returns the outcome for volume id.
func (o InstanceOutcome) Volume(id string) (VolumeOutcome, bool) {
	for _, v := range o.Volumes {
		if v.VolumeID == id {
			return v, true
		}
	}
	return VolumeOutcome{}, false
}
