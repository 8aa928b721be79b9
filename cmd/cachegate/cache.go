package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pario-ai/cachegate/pkg/cache"
)

func newCacheCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and clear the response cache",
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show persisted cache size",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.cache(nil).Stats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Entries: %d\n", stats.Size)
			fmt.Println("Hit and miss counters are kept by the running server; see GET /api/stats.")
			return nil
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached response and the activity log",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.cache(nil).Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("Cache cleared.")
			return nil
		},
	}

	activityCmd := &cobra.Command{
		Use:   "activity",
		Short: "Show recent cache activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.cache(nil).RecentActivity(cmd.Context())
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("No recent activity.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tTYPE\tSERVICE\tPROMPT")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					e.Timestamp.Local().Format("2006-01-02T15:04:05"), e.Type, e.Service, cache.Snippet(e.Prompt))
			}
			return w.Flush()
		},
	}

	cmd.AddCommand(statsCmd, clearCmd, activityCmd)
	return cmd
}
