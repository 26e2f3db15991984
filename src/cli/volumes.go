package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"shotty/src/orchestrate"
)

func newVolumesCmd(stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "volumes",
		Short: "Commands for volumes",
	}
	cmd.AddCommand(newVolumesListCmd(stdout))
	return cmd
}

func newVolumesListCmd(stdout io.Writer) *cobra.Command {
	var project string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List volumes",
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
					enc := "Not Encrypted"
					if v.Encrypted {
						enc = "Encrypted"
					}
					printRow(stdout, v.ID, i.ID, v.State, fmt.Sprintf("%dGiB", v.SizeGiB), enc)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "Only volumes for project (tag Project:<name>)")
	return cmd
}
