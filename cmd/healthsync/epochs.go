package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newEpochsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "epochs",
		Short: "List the windows the next pass will walk",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "#\tSTART\tEND")
			for i, e := range a.Plan() {
				fmt.Fprintf(w, "%d\t%s\t%s\n", i+1, e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339Nano))
			}
			return w.Flush()
		},
	}
}
