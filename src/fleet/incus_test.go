package fleet

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	incuscli "github.com/lxc/incus/client"
	"github.com/lxc/incus/shared/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// doneOp is an operation that has already finished with err.
type doneOp struct {
	incuscli.Operation
	err error
}

func (o doneOp) WaitContext(context.Context) error { return o.err }

type stubIncus struct {
	instances []api.Instance
	volumes   map[string]api.StorageVolume // by "pool/name"
	snapshots map[string][]api.StorageVolumeSnapshot
	states    []string // successive GetInstanceState answers; the last repeats

	actions []string
	created []string
	opErr   error
}

func (s *stubIncus) GetInstances(api.InstanceType) ([]api.Instance, error) {
	return s.instances, nil
}

func (s *stubIncus) GetInstanceState(name string) (*api.InstanceState, string, error) {
	st := s.states[0]
	if len(s.states) > 1 {
		s.states = s.states[1:]
	}
	return &api.InstanceState{Status: st}, "", nil
}

func (s *stubIncus) UpdateInstanceState(name string, state api.InstanceStatePut, _ string) (incuscli.Operation, error) {
	s.actions = append(s.actions, state.Action+":"+name)
	return doneOp{err: s.opErr}, nil
}

func (s *stubIncus) GetStoragePoolVolume(pool, _, name string) (*api.StorageVolume, string, error) {
	v, ok := s.volumes[pool+"/"+name]
	if !ok {
		return nil, "", api.StatusErrorf(http.StatusNotFound, "Storage volume not found")
	}
	return &v, "", nil
}

func (s *stubIncus) GetStoragePoolVolumeSnapshots(pool, _, name string) ([]api.StorageVolumeSnapshot, error) {
	return s.snapshots[pool+"/"+name], nil
}

func (s *stubIncus) CreateStoragePoolVolumeSnapshot(pool, _, name string, snap api.StorageVolumeSnapshotsPost) (incuscli.Operation, error) {
	s.created = append(s.created, pool+"/"+name+"/"+snap.Name)
	return doneOp{err: s.opErr}, nil
}

func incusInstance(name, status string, config map[string]string, devices map[string]map[string]string) api.Instance {
	in := api.Instance{Name: name, Status: status, Type: "container", Location: "none"}
	in.Config = config
	in.ExpandedDevices = devices
	return in
}

func TestIncusFleet_Instances(t *testing.T) {
	base := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	stub := &stubIncus{
		instances: []api.Instance{
			incusInstance("web", "Running", map[string]string{"user.Project": "web"}, nil),
			incusInstance("db", "Running", map[string]string{"user.Project": "db", "limits.cpu": "2"}, map[string]map[string]string{
				"root":  {"type": "disk", "pool": "default", "source": "rootfs", "path": "/"},
				"zdata": {"type": "disk", "pool": "default", "source": "pgdata", "path": "/var/lib/postgresql"},
				"adata": {"type": "disk", "pool": "fast", "source": "wal", "path": "/wal"},
				"eth0":  {"type": "nic", "network": "incusbr0"},
			}),
		},
		volumes: map[string]api.StorageVolume{
			"default/pgdata": {UsedBy: []string{"/1.0/instances/db"}, StorageVolumePut: api.StorageVolumePut{Config: map[string]string{"size": "10GiB"}}},
			"fast/wal":       {},
		},
		snapshots: map[string][]api.StorageVolumeSnapshot{
			"default/pgdata": {
				{Name: "old", CreatedAt: base},
				{Name: "new", CreatedAt: base.Add(24 * time.Hour)},
			},
		},
	}
	f := newIncusFleet(stub, IncusOptions{})

	insts, err := f.Instances(context.Background(), Selector{Tags: map[string]string{ProjectTag: "db"}})
	require.NoError(t, err)
	require.Len(t, insts, 1)

	db := insts[0]
	assert.Equal(t, "db", db.ID)
	assert.Equal(t, StateRunning, db.State)
	assert.Equal(t, map[string]string{"Project": "db"}, db.Tags)

	require.Len(t, db.Volumes, 2, "root disk and nic are not snapshot volumes")
	assert.Equal(t, "fast/wal", db.Volumes[0].ID, "volumes follow device name order")
	assert.Equal(t, "available", db.Volumes[0].State)

	pg := db.Volumes[1]
	assert.Equal(t, "default/pgdata", pg.ID)
	assert.Equal(t, "in-use", pg.State)
	assert.Equal(t, 10, pg.SizeGiB)
	require.Len(t, pg.Snapshots, 2)
	assert.Equal(t, "default/pgdata/new", pg.Snapshots[0].ID)
	assert.Equal(t, SnapshotCompleted, pg.Snapshots[0].State)
}

func TestIncusFleet_UnknownInstance(t *testing.T) {
	f := newIncusFleet(&stubIncus{}, IncusOptions{})

	_, err := f.Instances(context.Background(), Selector{InstanceIDs: []string{"ghost"}})
	assert.True(t, IsNotFound(err))
}

func TestIncusFleet_MissingVolumeIsNotFound(t *testing.T) {
	stub := &stubIncus{instances: []api.Instance{
		incusInstance("db", "Stopped", nil, map[string]map[string]string{
			"data": {"type": "disk", "pool": "default", "source": "gone", "path": "/data"},
		}),
	}}
	f := newIncusFleet(stub, IncusOptions{})

	_, err := f.Instances(context.Background(), Selector{})
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestIncusFleet_CreateSnapshot(t *testing.T) {
	stub := &stubIncus{}
	f := newIncusFleet(stub, IncusOptions{})
	f.now = func() time.Time { return time.Date(2026, 10, 15, 3, 0, 0, 0, time.UTC) }

	s, err := f.CreateSnapshot(context.Background(), "default/pgdata", SnapshotOptions{})
	require.NoError(t, err)
	assert.Equal(t, "default/pgdata/shotty-20261015T030000Z", s.ID)
	assert.Equal(t, SnapshotCompleted, s.State)
	assert.Equal(t, []string{"default/pgdata/shotty-20261015T030000Z"}, stub.created)

	_, err = f.CreateSnapshot(context.Background(), "no-pool", SnapshotOptions{})
	assert.True(t, IsClientError(err))
}

func TestIncusFleet_PowerActions(t *testing.T) {
	stub := &stubIncus{}
	f := newIncusFleet(stub, IncusOptions{})
	ctx := context.Background()

	require.NoError(t, f.StopInstance(ctx, "db"))
	require.NoError(t, f.StartInstance(ctx, "db"))
	require.NoError(t, f.RebootInstance(ctx, "db"))
	assert.Equal(t, []string{"stop:db", "start:db", "restart:db"}, stub.actions)

	stub.opErr = errors.New("The instance is already stopped")
	err := f.StopInstance(ctx, "db")
	var ce *ClientError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "UpdateInstanceState", ce.Op)
}

func TestIncusFleet_WaitUntilStopped(t *testing.T) {
	stub := &stubIncus{states: []string{"Running", "Stopping", "Stopped"}}
	f := newIncusFleet(stub, IncusOptions{PollInterval: time.Millisecond, WaitTimeout: time.Second})

	require.NoError(t, f.WaitUntilStopped(context.Background(), "db"))
}

func TestIncusFleet_WaitTimeout(t *testing.T) {
	stub := &stubIncus{states: []string{"Running"}}
	f := newIncusFleet(stub, IncusOptions{PollInterval: 5 * time.Millisecond, WaitTimeout: 30 * time.Millisecond})

	err := f.WaitUntilStopped(context.Background(), "db")
	var ce *ClientError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, CodeWaitTimeout, ce.Code)
	assert.Contains(t, ce.Message, "still running")
}
