package cli

import (
	"io"
	"time"

	"github.com/spf13/cobra"

	"shotty/src/fleet"
	"shotty/src/orchestrate"
)

func newSnapshotsCmd(stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshots",
		Short: "Commands for snapshots",
	}
	cmd.AddCommand(newSnapshotsListCmd(stdout))
	return cmd
}

func newSnapshotsListCmd(stdout io.Writer) *cobra.Command {
	var project string
	var listAll bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List snapshots",
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
				for _, v := range i.Volumes {
					for _, s := range v.Snapshots {
						printRow(stdout, s.ID, v.ID, i.ID, string(s.State), s.Progress, s.StartTime.Format(time.ANSIC))
						// Older snapshots are only interesting with --all.
						if s.State == fleet.SnapshotCompleted && !listAll {
							break
						}
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "Only snapshots for project (tag Project:<name>)")
	cmd.Flags().BoolVar(&listAll, "all", false, "List all snapshots for each volume, not just the most recent")
	return cmd
}
