package main

import (
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newStatusCmd(c *cli) *cobra.Command {
	var letters int
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show per-activity checkpoints and dead-lettered records",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			entries, err := a.Checkpoints(ctx)
			if err != nil {
				return err
			}
			synced := make(map[string]time.Time, len(entries))
			for _, e := range entries {
				synced[e.Activity] = e.LastSyncedAt
			}
			counts, err := a.DeadLetters().Count(ctx)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ACTIVITY\tLAST SYNCED\tDEAD LETTERS")
			for _, activity := range a.Catalog().All() {
				last := "never"
				if at, ok := synced[activity.ID]; ok {
					last = at.Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%s\t%s\t%d\n", activity.ID, last, counts[activity.ID])
			}
			if err := w.Flush(); err != nil {
				return err
			}

			if letters <= 0 {
				return nil
			}
			recent, err := a.DeadLetters().List(ctx, letters)
			if err != nil {
				return err
			}
			sort.SliceStable(recent, func(i, j int) bool { return recent[i].FailedAt.After(recent[j].FailedAt) })
			fmt.Fprintln(cmd.OutOrStdout())
			w = tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "FAILED AT\tACTIVITY\tRECORDED AT\tATTEMPTS\tREASON")
			for _, l := range recent {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", l.FailedAt.Format(time.RFC3339), l.Record.Activity,
					l.Record.Timestamp.Format(time.RFC3339), l.Attempts, l.Reason)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&letters, "dead-letters", 0, "also list this many recent dead-lettered records")
	return cmd
}
