package cli_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"shotty/src/cli"
	"shotty/src/fleet"
	"shotty/src/version"
)

var testNow = time.Now().UTC().Truncate(time.Second)

func sampleFleet() *fleet.FakeFleet {
	f := fleet.NewFake(
		fleet.Instance{
			ID: "i-1", Type: "t3.micro", Zone: "us-east-1a", PublicDNS: "ec2-1.example.com",
			State: fleet.StateRunning, Tags: map[string]string{"Project": "db"},
			Volumes: []fleet.Volume{{
				ID: "vol-1", SizeGiB: 8, Encrypted: true, State: "in-use",
				Snapshots: []fleet.Snapshot{
					{ID: "snap-b", VolumeID: "vol-1", State: fleet.SnapshotCompleted, Progress: "100%", StartTime: testNow.Add(-10 * 24 * time.Hour)},
					{ID: "snap-a", VolumeID: "vol-1", State: fleet.SnapshotCompleted, Progress: "100%", StartTime: testNow.Add(-20 * 24 * time.Hour)},
				},
			}},
		},
		fleet.Instance{
			ID: "i-2", Type: "t3.small", Zone: "us-east-1b",
			State: fleet.StateStopped, Tags: map[string]string{},
			Volumes: []fleet.Volume{{ID: "vol-2", SizeGiB: 20, State: "in-use"}},
		},
	)
	f.Now = func() time.Time { return testNow }
	return f
}

// run executes the CLI against f with an isolated config directory.
func run(t *testing.T, f *fleet.FakeFleet, args ...string) (string, error) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	reset := cli.SetConnectForTest(func(context.Context) (fleet.Fleet, error) {
		if f == nil {
			t.Fatalf("provider must not be contacted")
		}
		return f, nil
	})
	defer reset()

	var out, errOut bytes.Buffer
	cmd := cli.NewRootCmd(&out, &errOut)
	cmd.SetArgs(args)
	_, err := cmd.ExecuteC()
	return out.String(), err
}

func TestRootHelp_ShowsUsage(t *testing.T) {
	o, err := run(t, nil, "--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(o, "Usage:") || !strings.Contains(o, "shotty") {
		t.Fatalf("help output missing expected content; got: %s", o)
	}
}

func TestVersionCommand_PrintsVersion(t *testing.T) {
	o, err := run(t, nil, "version")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(o, version.Version) {
		t.Fatalf("expected version %q in output; got: %s", version.Version, o)
	}
}

func TestGlobalFlags_Present(t *testing.T) {
	cmd := cli.NewRootCmd(nil, nil)
	for _, name := range []string{"config", "provider", "profile", "region", "log-level", "dry-run", "metrics-file"} {
		if f := cmd.PersistentFlags().Lookup(name); f == nil {
			t.Fatalf("missing global flag --%s", name)
		}
	}
}

func TestInstancesSnapshot_RequiresSelection(t *testing.T) {
	o, err := run(t, nil, "instances", "snapshot")
	if err != nil {
		t.Fatalf("usage errors are not fatal: %v", err)
	}
	if !strings.Contains(o, "requires a project name") {
		t.Fatalf("expected guidance, got: %s", o)
	}
}

func TestInstancesSnapshot_Project(t *testing.T) {
	f := sampleFleet()
	o, err := run(t, f, "instances", "snapshot", "--project", "db", "--age", "7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{
		"Stopping i-1...",
		"Creating snapshot of vol-1",
		"Starting i-1...",
		"i-1 , vol-1 , snapshotted , snap-1",
		"i-1 , running , stopped=true , restarted=true , ok",
	} {
		if !strings.Contains(o, want) {
			t.Fatalf("missing %q in output:\n%s", want, o)
		}
	}
	if f.Count("CreateSnapshot") != 1 {
		t.Fatalf("got %d snapshots, want 1", f.Count("CreateSnapshot"))
	}
	if f.State("i-1") != fleet.StateRunning {
		t.Fatalf("i-1 left %s", f.State("i-1"))
	}
}

func TestInstancesSnapshot_FreshVolumeSkipped(t *testing.T) {
	f := sampleFleet()
	o, err := run(t, f, "instances", "snapshot", "--instance", "i-1", "--age", "30")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Count("CreateSnapshot") != 0 || f.Count("StopInstance") != 0 {
		t.Fatalf("unexpected calls: %+v", f.Calls)
	}
	if !strings.Contains(o, "i-1 , vol-1 , skipped-fresh") {
		t.Fatalf("expected skip line, got:\n%s", o)
	}
}

func TestInstancesSnapshot_NegativeAge(t *testing.T) {
	if _, err := run(t, sampleFleet(), "instances", "snapshot", "--force", "--age", "-1"); err == nil {
		t.Fatalf("expected error for negative age")
	}
}

func TestInstancesSnapshot_UnknownInstance(t *testing.T) {
	_, err := run(t, sampleFleet(), "instances", "snapshot", "--instance", "i-404")
	if err == nil || !fleet.IsNotFound(err) {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestInstancesSnapshot_DryRun(t *testing.T) {
	f := sampleFleet()
	o, err := run(t, f, "--dry-run", "instances", "snapshot", "--force")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Count("CreateSnapshot") != 0 || f.Count("StopInstance") != 0 {
		t.Fatalf("dry run mutated the fleet: %+v", f.Calls)
	}
	if !strings.Contains(o, "i-2 , vol-2 , planned") {
		t.Fatalf("expected planned line, got:\n%s", o)
	}
}

func TestInstancesSnapshot_MetricsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shotty.prom")
	if _, err := run(t, sampleFleet(), "--metrics-file", path, "instances", "snapshot", "--force"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("metrics file: %v", err)
	}
	if !strings.Contains(string(data), `shotty_volumes_total{action="snapshotted"} 2`) {
		t.Fatalf("unexpected metrics:\n%s", data)
	}
}

func TestInstancesList(t *testing.T) {
	o, err := run(t, sampleFleet(), "instances", "list")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "i-1 , t3.micro , us-east-1a , running , ec2-1.example.com , db\n" +
		"i-2 , t3.small , us-east-1b , stopped ,  , <no project>\n"
	if o != want {
		t.Fatalf("got:\n%q\nwant:\n%q", o, want)
	}
}

func TestInstancesStop_ContinuesPastFailures(t *testing.T) {
	f := sampleFleet()
	f.Failures["StopInstance:i-1"] = &fleet.ClientError{Code: "IncorrectInstanceState", Message: "busy"}
	o, err := run(t, f, "instances", "stop", "--force")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(o, "Could not stop i-1") || f.Count("StopInstance") != 2 {
		t.Fatalf("expected both instances attempted; calls=%+v out=%s", f.Calls, o)
	}
}

func TestInstancesReboot_RequiresSelection(t *testing.T) {
	o, err := run(t, nil, "instances", "reboot")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(o, "requires a project name") {
		t.Fatalf("expected guidance, got: %s", o)
	}
}

func TestVolumesList(t *testing.T) {
	o, err := run(t, sampleFleet(), "volumes", "list", "--project", "db")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o != "vol-1 , i-1 , in-use , 8GiB , Encrypted\n" {
		t.Fatalf("unexpected output: %q", o)
	}
}

func TestSnapshotsList(t *testing.T) {
	o, err := run(t, sampleFleet(), "snapshots", "list", "--project", "db")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(o, "snap-b , vol-1 , i-1 , completed , 100%") || strings.Contains(o, "snap-a") {
		t.Fatalf("expected only the most recent completed snapshot, got:\n%s", o)
	}

	o, err = run(t, sampleFleet(), "snapshots", "list", "--project", "db", "--all")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(o, "snap-a") {
		t.Fatalf("--all should list older snapshots, got:\n%s", o)
	}
}

func TestInstancesSnapshot_InvalidSchedule(t *testing.T) {
	f := sampleFleet()
	_, err := run(t, f, "instances", "snapshot", "--force", "--schedule", "not a cron line")
	if err == nil || !strings.Contains(err.Error(), "invalid --schedule") {
		t.Fatalf("expected schedule parse error, got %v", err)
	}
	if f.Count("CreateSnapshot") != 0 {
		t.Fatalf("no run may start on a bad schedule")
	}
}
