package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mlopez/jobquest/stats"
)

func newStatsCommand(root *rootOptions) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show per-provider usage counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := root.setup()
			if err != nil {
				return err
			}
			store, err := stats.Open(cfg.StatsDB, log)
			if err != nil {
				return err
			}
			defer store.Close()

			rows, err := queryStats(cmd, store, all)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				fmt.Println("No usage recorded.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
			fmt.Fprintln(w, "DAY\tPROVIDER\tCALLS\tAPPS")
			for _, row := range rows {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", row.Day, row.Provider, row.Calls, row.Apps)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "show every recorded day, not just today")
	return cmd
}

func queryStats(cmd *cobra.Command, store *stats.Store, all bool) ([]stats.DayStats, error) {
	if all {
		return store.All(cmd.Context())
	}
	return store.Today(cmd.Context())
}
