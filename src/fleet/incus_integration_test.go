//go:build integration

package fleet_test

import (
	"context"
	"os"
	"os/exec"
	"testing"
	"time"

	"shotty/src/fleet"
	"shotty/src/orchestrate"
)

func runCmd(t *testing.T, name string, args ...string) {
	t.Helper()
	out, err := exec.Command(name, args...).CombinedOutput()
	if err != nil {
		t.Fatalf("%s %v: %v\n%s", name, args, err, out)
	}
}

// Launches a container with a custom volume in a throwaway project and snapshots it.
func TestIncusFleet_SnapshotRunningContainer(t *testing.T) {
	if os.Getenv("INCUS_TESTS") != "1" {
		t.Skip("INCUS_TESTS=1 not set; skipping integration test")
	}

	proj := "itest-shotty-" + time.Now().UTC().Format("20060102T150405")
	runCmd(t, "incus", "project", "create", proj, "-c", "features.storage.volumes=false", "-c", "features.profiles=false")
	t.Cleanup(func() { _ = exec.Command("incus", "project", "delete", proj).Run() })

	vol := "shotty-" + time.Now().UTC().Format("150405")
	runCmd(t, "incus", "storage", "volume", "create", "default", vol)
	t.Cleanup(func() { _ = exec.Command("incus", "storage", "volume", "delete", "default", vol).Run() })

	runCmd(t, "incus", "--project", proj, "launch", "images:alpine/3.18", "c1", "-c", "user.Project=itest")
	t.Cleanup(func() { _ = exec.Command("incus", "--project", proj, "delete", "--force", "c1").Run() })
	runCmd(t, "incus", "--project", proj, "config", "device", "add", "c1", "data", "disk", "pool=default", "source="+vol, "path=/data")

	f, err := fleet.ConnectIncus(fleet.IncusOptions{Project: proj, PollInterval: time.Second, WaitTimeout: 2 * time.Minute})
	if err != nil {
		t.Fatalf("connect incus: %v", err)
	}

	d := &orchestrate.Driver{Fleet: f, Coordinator: &orchestrate.Coordinator{Fleet: f}}
	res, err := d.Run(context.Background(), orchestrate.Request{Criterion: orchestrate.Criterion{Project: "itest"}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res) != 1 || res[0].Err != nil || !res[0].Restarted {
		t.Fatalf("unexpected outcome: %+v", res)
	}
	vo, ok := res[0].Volume("default/" + vol)
	if !ok || vo.Action != orchestrate.ActionSnapshotted {
		t.Fatalf("volume not snapshotted: %+v", res[0].Volumes)
	}

	insts, err := f.Instances(context.Background(), fleet.Selector{InstanceIDs: []string{"c1"}})
	if err != nil {
		t.Fatalf("instances: %v", err)
	}
	if insts[0].State != fleet.StateRunning || len(insts[0].Volumes[0].Snapshots) != 1 {
		t.Fatalf("unexpected post-run state: %+v", insts[0])
	}
}
