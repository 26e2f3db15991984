package fleet

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	incuscli "github.com/lxc/incus/client"
	"github.com/lxc/incus/shared/api"
	"github.com/lxc/incus/shared/units"
	"golang.org/x/time/rate"
)

// incusAPI is the subset of the Incus client used by IncusFleet.
type incusAPI interface {
	GetInstances(instanceType api.InstanceType) ([]api.Instance, error)
	GetInstanceState(name string) (*api.InstanceState, string, error)
	UpdateInstanceState(name string, state api.InstanceStatePut, ETag string) (incuscli.Operation, error)
	GetStoragePoolVolume(pool string, volType string, name string) (*api.StorageVolume, string, error)
	GetStoragePoolVolumeSnapshots(pool string, volumeType string, volumeName string) ([]api.StorageVolumeSnapshot, error)
	CreateStoragePoolVolumeSnapshot(pool string, volumeType string, volumeName string, snapshot api.StorageVolumeSnapshotsPost) (incuscli.Operation, error)
}

// IncusOptions configures an IncusFleet.
type IncusOptions struct {
	// Socket is the UNIX socket path; empty uses the default location.
	Socket string
	// Project is the Incus project to operate in; empty means "default".
	Project      string
	WaitTimeout  time.Duration
	PollInterval time.Duration
}

// IncusFleet wraps the official Incus Go client. Instance tags are the
// instance's user.* config keys; attached custom storage volumes are the volumes.
type IncusFleet struct {
	c    incusAPI
	opts IncusOptions
	now  func() time.Time
}

// ConnectIncus connects to the local Incus via the UNIX socket.
func ConnectIncus(opts IncusOptions) (*IncusFleet, error) {
	c, err := incuscli.ConnectIncusUnix(opts.Socket, nil)
	if err != nil {
		return nil, err
	}
	var srv incusAPI = c
	if opts.Project != "" {
		srv = c.UseProject(opts.Project)
	}
	return newIncusFleet(srv, opts), nil
}

func newIncusFleet(c incusAPI, opts IncusOptions) *IncusFleet {
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = 10 * time.Minute
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	return &IncusFleet{c: c, opts: opts, now: time.Now}
}

func (f *IncusFleet) Instances(ctx context.Context, sel Selector) ([]Instance, error) {
	all, err := f.c.GetInstances(api.InstanceTypeAny)
	if err != nil {
		return nil, incusError("GetInstances", "", err)
	}
	byName := make(map[string]api.Instance, len(all))
	for _, in := range all {
		byName[in.Name] = in
	}
	for _, id := range sel.InstanceIDs {
		if _, ok := byName[id]; !ok {
			return nil, notFound("GetInstances", id)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })

	var out []Instance
	for _, in := range all {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		inst := Instance{
			ID:    in.Name,
			Type:  in.Type,
			Zone:  in.Location,
			State: incusRunState(in.Status),
			Tags:  userTags(in.Config),
		}
		if !sel.matches(inst) {
			continue
		}
		vols, err := f.volumes(in)
		if err != nil {
			return nil, err
		}
		inst.Volumes = vols
		out = append(out, inst)
	}
	return out, nil
}

// volumes returns the custom storage volumes attached as disk devices, in device name order.
func (f *IncusFleet) volumes(in api.Instance) ([]Volume, error) {
	names := make([]string, 0, len(in.ExpandedDevices))
	for name := range in.ExpandedDevices {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []Volume
	for _, name := range names {
		dev := in.ExpandedDevices[name]
		if dev["type"] != "disk" || dev["pool"] == "" || dev["source"] == "" || dev["path"] == "/" {
			continue
		}
		pool, volName := dev["pool"], dev["source"]
		id := pool + "/" + volName
		v, _, err := f.c.GetStoragePoolVolume(pool, "custom", volName)
		if err != nil {
			return nil, incusError("GetStoragePoolVolume", id, err)
		}
		vol := Volume{ID: id, State: "in-use"}
		if len(v.UsedBy) == 0 {
			vol.State = "available"
		}
		if sz, err := units.ParseByteSizeString(v.Config["size"]); err == nil && sz > 0 {
			vol.SizeGiB = int(sz / (1 << 30))
		}
		snaps, err := f.c.GetStoragePoolVolumeSnapshots(pool, "custom", volName)
		if err != nil {
			return nil, incusError("GetStoragePoolVolumeSnapshots", id, err)
		}
		for _, s := range snaps {
			vol.Snapshots = append(vol.Snapshots, Snapshot{
				ID:        id + "/" + s.Name,
				VolumeID:  id,
				State:     SnapshotCompleted,
				Progress:  "100%",
				StartTime: s.CreatedAt.UTC(),
			})
		}
		SortSnapshots(vol.Snapshots)
		out = append(out, vol)
	}
	return out, nil
}

// CreateSnapshot snapshots a custom volume identified as "pool/name". Incus
// snapshots complete synchronously, so the result is already completed.
func (f *IncusFleet) CreateSnapshot(ctx context.Context, volumeID string, _ SnapshotOptions) (Snapshot, error) {
	pool, name, ok := strings.Cut(volumeID, "/")
	if !ok {
		return Snapshot{}, &ClientError{Op: "CreateStoragePoolVolumeSnapshot", Resource: volumeID, Code: "InvalidVolumeID", Message: "expected pool/name"}
	}
	now := f.now().UTC()
	snapName := "shotty-" + now.Format("20060102T150405Z")
	op, err := f.c.CreateStoragePoolVolumeSnapshot(pool, "custom", name, api.StorageVolumeSnapshotsPost{Name: snapName})
	if err != nil {
		return Snapshot{}, incusError("CreateStoragePoolVolumeSnapshot", volumeID, err)
	}
	if err := waitOperation(ctx, op); err != nil {
		return Snapshot{}, incusError("CreateStoragePoolVolumeSnapshot", volumeID, err)
	}
	return Snapshot{
		ID:        volumeID + "/" + snapName,
		VolumeID:  volumeID,
		State:     SnapshotCompleted,
		Progress:  "100%",
		StartTime: now,
	}, nil
}

func (f *IncusFleet) StopInstance(ctx context.Context, id string) error {
	return f.changeState(ctx, "stop", id)
}

func (f *IncusFleet) StartInstance(ctx context.Context, id string) error {
	return f.changeState(ctx, "start", id)
}

func (f *IncusFleet) RebootInstance(ctx context.Context, id string) error {
	return f.changeState(ctx, "restart", id)
}

func (f *IncusFleet) WaitUntilStopped(ctx context.Context, id string) error {
	return f.waitFor(ctx, "WaitUntilStopped", id, StateStopped)
}

func (f *IncusFleet) WaitUntilRunning(ctx context.Context, id string) error {
	return f.waitFor(ctx, "WaitUntilRunning", id, StateRunning)
}

func (f *IncusFleet) changeState(ctx context.Context, action, id string) error {
	op, err := f.c.UpdateInstanceState(id, api.InstanceStatePut{Action: action, Timeout: -1}, "")
	if err != nil {
		return incusError("UpdateInstanceState", id, err)
	}
	if err := waitOperation(ctx, op); err != nil {
		return incusError("UpdateInstanceState", id, err)
	}
	return nil
}

// waitFor polls the instance state, paced by a limiter, until it reaches want.
func (f *IncusFleet) waitFor(ctx context.Context, op, id string, want RunState) error {
	ctx, cancel := context.WithTimeout(ctx, f.opts.WaitTimeout)
	defer cancel()
	lim := rate.NewLimiter(rate.Every(f.opts.PollInterval), 1)
	last := RunState("")
	for {
		if err := lim.Wait(ctx); err != nil {
			return &ClientError{Op: op, Resource: id, Code: CodeWaitTimeout, Message: fmt.Sprintf("instance still %s after %v", last, f.opts.WaitTimeout), Cause: err}
		}
		st, _, err := f.c.GetInstanceState(id)
		if err != nil {
			return incusError("GetInstanceState", id, err)
		}
		last = incusRunState(st.Status)
		if last == want {
			return nil
		}
	}
}

func waitOperation(ctx context.Context, op incuscli.Operation) error {
	return op.WaitContext(ctx)
}

func incusRunState(status string) RunState {
	return RunState(strings.ToLower(status))
}

func userTags(config map[string]string) map[string]string {
	tags := map[string]string{}
	for k, v := range config {
		if key, ok := strings.CutPrefix(k, "user."); ok {
			tags[key] = v
		}
	}
	return tags
}

func incusError(op, resource string, err error) error {
	if err == nil {
		return nil
	}
	ce := &ClientError{Op: op, Resource: resource, Code: CodeUnknown, Message: err.Error(), Cause: err}
	if api.StatusErrorCheck(err, http.StatusNotFound) {
		ce.Code = CodeNotFound
	} else if errors.Is(err, context.DeadlineExceeded) {
		ce.Code = CodeWaitTimeout
	}
	return ce
}
