package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"codeberg.org/meshalyzer/rigctl/internal/logger"
	"codeberg.org/meshalyzer/rigctl/internal/rig"
	"codeberg.org/meshalyzer/rigctl/internal/runindex"
	"github.com/spf13/cobra"
)

const durationPrecision = 10 * time.Millisecond

func (a *app) runsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List saved runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			index, err := runindex.New(rig.IndexConfig(a.cfg), logger.Default())
			if err != nil {
				return err
			}
			defer index.Close()

			entries, err := index.List(cmd.Context(), limit)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "CREATED\tANIMAL\tSAMPLE\tTRIAL\tPROTOCOL\tOUTCOME\tSTEPS\tDURATION\tDIR")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%02d\t%s\t%s\t%d\t%s\t%s\n",
					e.CreatedAt.Format("2006-01-02 15:04:05"), e.Animal, e.Sample, e.Trial,
					e.Protocol, e.Outcome, e.Steps, e.Duration.Round(durationPrecision), e.Dir)
			}

			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to list")

	return cmd
}
