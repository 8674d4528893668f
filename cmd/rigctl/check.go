package main

import (
	"fmt"

	"codeberg.org/meshalyzer/rigctl/internal/protocol"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func (a *app) checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <protocol>...",
		Short: "Parse protocols without touching the rig",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs := afero.NewOsFs()
			out := cmd.OutOrStdout()

			var failed error
			for _, path := range args {
				prog, err := protocol.ParseFile(fs, path)
				if err != nil {
					fmt.Fprintf(out, "%s: %v\n", path, err)
					failed = err
					continue
				}

				fmt.Fprintf(out, "%s: %d steps\n", path, len(prog.Steps))
				for _, step := range prog.Steps {
					if step.Op == protocol.OpUnknown {
						fmt.Fprintf(out, "  step %d (line %d): unknown instruction %q is skipped\n", step.Index, step.Line, step.Raw)
					}
				}
			}

			return failed
		},
	}
}
