package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"shotty/src/fleet"
	"shotty/src/metrics"
	"shotty/src/orchestrate"
	"shotty/src/safety"
)

const usageGuidance = "This command requires a project name or an instance id. Use --force to act on every instance; see --help."

func newInstancesCmd(stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "instances",
		Short: "Commands for instances",
	}
	cmd.AddCommand(newInstancesListCmd(stdout))
	cmd.AddCommand(newInstancesSnapshotCmd(stdout, stderr))
	for _, a := range []orchestrate.PowerAction{orchestrate.PowerStop, orchestrate.PowerStart, orchestrate.PowerReboot} {
		cmd.AddCommand(newInstancesPowerCmd(stdout, a))
	}
	return cmd
}

func newInstancesListCmd(stdout io.Writer) *cobra.Command {
	var project string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List instances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, _, err := openFleet(cmd)
			if err != nil {
				return err
			}
			insts, err := orchestrate.Select(cmdContext(cmd), f, orchestrate.Criterion{Project: project})
			if err != nil {
				return err
			}
			for _, i := range insts {
				p, ok := i.Project()
				if !ok {
					p = "<no project>"
				}
				printRow(stdout, i.ID, i.Type, i.Zone, string(i.State), i.PublicDNS, p)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "Only instances for project (tag Project:<name>)")
	return cmd
}

func newInstancesSnapshotCmd(stdout, stderr io.Writer) *cobra.Command {
	var project, instanceID, schedule string
	var force bool
	var age int
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Create snapshots of all volumes",
		Long: `Create snapshots of the volumes attached to the selected instances.

Running instances are stopped before their volumes are snapshotted and started
again afterwards. Volumes with a snapshot still pending are skipped. With --age,
only volumes whose last completed snapshot is older than that many days are
snapshotted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := safety.Gate(project, instanceID, force); err != nil {
				fmt.Fprintln(stdout, usageGuidance)
				return nil
			}
			var maxAge *int
			if cmd.Flags().Changed("age") {
				if age < 0 {
					return fmt.Errorf("--age must not be negative, got %d", age)
				}
				maxAge = &age
			}

			f, g, err := openFleet(cmd)
			if err != nil {
				return err
			}
			req := orchestrate.Request{
				Criterion:  orchestrate.Criterion{InstanceID: instanceID, Project: project},
				Force:      force,
				MaxAgeDays: maxAge,
			}
			run := func(ctx context.Context) error {
				return runSnapshots(ctx, f, g, req, stdout)
			}
			if schedule != "" {
				return runScheduled(cmdContext(cmd), schedule, run, stderr)
			}
			return run(cmdContext(cmd))
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "Only instances for project (tag Project:<name>)")
	cmd.Flags().StringVar(&instanceID, "instance", "", "Only this instance id")
	cmd.Flags().BoolVar(&force, "force", false, "Act on all instances when no project or instance is given")
	cmd.Flags().IntVar(&age, "age", 0, "Only snapshot volumes whose last completed snapshot is older than this many days")
	cmd.Flags().StringVar(&schedule, "schedule", "", "Repeat on a cron schedule (e.g. \"0 3 * * *\") until interrupted")
	return cmd
}

// runSnapshots performs one orchestration run and prints one line per volume.
func runSnapshots(ctx context.Context, f fleet.Fleet, g globals, req orchestrate.Request, stdout io.Writer) error {
	runID := uuid.NewString()
	log := slog.Default().With("run", runID)
	tags := map[string]string{orchestrate.TagRunID: runID}
	for k, v := range g.cfg.Snapshot.Tags {
		tags[k] = v
	}

	var rec *metrics.Recorder
	coord := &orchestrate.Coordinator{
		Fleet:       f,
		Out:         stdout,
		Log:         log,
		DryRun:      g.safety.DryRun,
		Description: g.cfg.Snapshot.Description,
		Tags:        tags,
	}
	if g.cfg.MetricsFile != "" {
		rec = metrics.New()
		coord.Metrics = rec
	}
	d := &orchestrate.Driver{Fleet: f, Coordinator: coord, Log: log}

	start := time.Now()
	outcomes, err := d.Run(ctx, req)
	if errors.Is(err, safety.ErrSelectionRequired) {
		fmt.Fprintln(stdout, usageGuidance)
		return nil
	}
	if err != nil {
		return err
	}
	printOutcomes(stdout, outcomes)

	if rec != nil {
		rec.RunFinished(start, time.Now())
		if err := rec.WriteTextfile(g.cfg.MetricsFile); err != nil {
			return fmt.Errorf("writing metrics: %w", err)
		}
	}
	return nil
}

func printOutcomes(w io.Writer, outcomes []orchestrate.InstanceOutcome) {
	for _, o := range outcomes {
		for _, v := range o.Volumes {
			detail := v.SnapshotID
			if detail == "" {
				detail = v.Reason
			}
			printRow(w, o.InstanceID, v.VolumeID, string(v.Action), detail)
		}
		status := "ok"
		if o.Err != nil {
			status = o.Err.Error()
		}
		printRow(w, o.InstanceID, string(o.OriginalState), fmt.Sprintf("stopped=%t", o.Stopped), fmt.Sprintf("restarted=%t", o.Restarted), status)
	}
}

func newInstancesPowerCmd(stdout io.Writer, action orchestrate.PowerAction) *cobra.Command {
	var project, instanceID string
	var force bool
	cmd := &cobra.Command{
		Use:   string(action),
		Short: fmt.Sprintf("%s instances", titleVerb(action)),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := safety.Gate(project, instanceID, force); err != nil {
				fmt.Fprintln(stdout, usageGuidance)
				return nil
			}
			f, g, err := openFleet(cmd)
			if err != nil {
				return err
			}
			crit := orchestrate.Criterion{InstanceID: instanceID, Project: project}
			if g.safety.DryRun {
				insts, err := orchestrate.Select(cmdContext(cmd), f, crit)
				if err != nil {
					return err
				}
				for _, i := range insts {
					fmt.Fprintf(stdout, "would %s %s\n", action, i.ID)
				}
				return nil
			}
			_, err = orchestrate.Power(cmdContext(cmd), f, crit, force, action, stdout)
			return err
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "Only instances for project")
	cmd.Flags().StringVar(&instanceID, "instance", "", "Only this instance id")
	cmd.Flags().BoolVar(&force, "force", false, fmt.Sprintf("Forces %s of all instances", action))
	return cmd
}

func titleVerb(a orchestrate.PowerAction) string {
	switch a {
	case orchestrate.PowerStop:
		return "Stop"
	case orchestrate.PowerStart:
		return "Start"
	default:
		return "Reboot"
	}
}
