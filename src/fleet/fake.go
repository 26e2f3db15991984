package fleet

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Call records one invocation against a FakeFleet.
type Call struct {
	Op string
	ID string
}

// FakeFleet is an in-memory implementation for unit tests.
// Mutating calls change the stored state so a second run observes the first.
type FakeFleet struct {
	Fleet []Instance
	Calls []Call
	// Failures maps "Op:id" (e.g. "StopInstance:i-1") to the error to return.
	Failures map[string]error
	Now      func() time.Time

	seq int
}

func NewFake(instances ...Instance) *FakeFleet {
	return &FakeFleet{Fleet: instances, Failures: map[string]error{}, Now: time.Now}
}

func (f *FakeFleet) record(op, id string) error {
	f.Calls = append(f.Calls, Call{Op: op, ID: id})
	if err, ok := f.Failures[op+":"+id]; ok {
		return err
	}
	return nil
}

// Count returns how many times op was called.
func (f *FakeFleet) Count(op string) int {
	n := 0
	for _, c := range f.Calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

func (f *FakeFleet) Instances(_ context.Context, sel Selector) ([]Instance, error) {
	if err := f.record("Instances", strings.Join(sel.InstanceIDs, ",")); err != nil {
		return nil, err
	}
	for _, id := range sel.InstanceIDs {
		if f.find(id) < 0 {
			return nil, &ClientError{Op: "DescribeInstances", Resource: id, Code: "InvalidInstanceID.NotFound", Message: fmt.Sprintf("The instance ID '%s' does not exist", id)}
		}
	}
	out := make([]Instance, 0, len(f.Fleet))
	for _, inst := range f.Fleet {
		if sel.matches(inst) {
			out = append(out, cloneInstance(inst))
		}
	}
	return out, nil
}

func (f *FakeFleet) CreateSnapshot(_ context.Context, volumeID string, _ SnapshotOptions) (Snapshot, error) {
	if err := f.record("CreateSnapshot", volumeID); err != nil {
		return Snapshot{}, err
	}
	for i := range f.Fleet {
		vols := f.Fleet[i].Volumes
		for j := range vols {
			if vols[j].ID != volumeID {
				continue
			}
			f.seq++
			s := Snapshot{
				ID:        fmt.Sprintf("snap-%d", f.seq),
				VolumeID:  volumeID,
				State:     SnapshotPending,
				Progress:  "0%",
				StartTime: f.Now().UTC(),
			}
			vols[j].Snapshots = append([]Snapshot{s}, vols[j].Snapshots...)
			return s, nil
		}
	}
	return Snapshot{}, notFound("CreateSnapshot", volumeID)
}

func (f *FakeFleet) StopInstance(_ context.Context, id string) error {
	return f.transition("StopInstance", id, StateStopped)
}

func (f *FakeFleet) StartInstance(_ context.Context, id string) error {
	return f.transition("StartInstance", id, StateRunning)
}

func (f *FakeFleet) RebootInstance(_ context.Context, id string) error {
	return f.transition("RebootInstance", id, "")
}

func (f *FakeFleet) WaitUntilStopped(_ context.Context, id string) error {
	return f.wait("WaitUntilStopped", id, StateStopped)
}

func (f *FakeFleet) WaitUntilRunning(_ context.Context, id string) error {
	return f.wait("WaitUntilRunning", id, StateRunning)
}

// State returns the stored run state of id.
func (f *FakeFleet) State(id string) RunState {
	if i := f.find(id); i >= 0 {
		return f.Fleet[i].State
	}
	return ""
}

func (f *FakeFleet) transition(op, id string, to RunState) error {
	if err := f.record(op, id); err != nil {
		return err
	}
	i := f.find(id)
	if i < 0 {
		return notFound(op, id)
	}
	if to != "" {
		f.Fleet[i].State = to
	}
	return nil
}

func (f *FakeFleet) wait(op, id string, want RunState) error {
	if err := f.record(op, id); err != nil {
		return err
	}
	i := f.find(id)
	if i < 0 {
		return notFound(op, id)
	}
	if f.Fleet[i].State != want {
		return &ClientError{Op: op, Resource: id, Code: CodeWaitTimeout, Message: fmt.Sprintf("instance is %s, want %s", f.Fleet[i].State, want)}
	}
	return nil
}

func (f *FakeFleet) find(id string) int {
	for i := range f.Fleet {
		if f.Fleet[i].ID == id {
			return i
		}
	}
	return -1
}

func cloneInstance(in Instance) Instance {
	out := in
	out.Tags = make(map[string]string, len(in.Tags))
	for k, v := range in.Tags {
		out.Tags[k] = v
	}
	out.Volumes = make([]Volume, len(in.Volumes))
	for i, v := range in.Volumes {
		v.Snapshots = append([]Snapshot(nil), v.Snapshots...)
		out.Volumes[i] = v
	}
	return out
}
