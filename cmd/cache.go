package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/sw33tLie/jobscope/internal/utils"
)

// cacheCmd represents the cache command
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and clean the details and evaluation caches",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache sizes and stored blobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		a, err := openApp(cmd, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		fmt.Printf("Details cache:    %d postings\n", a.details.Len())
		fmt.Printf("Evaluation cache: %d postings\n\n", a.evals.Cache.Len())

		keys, err := a.db.ListKeys(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "SCOPE\tKEY\tBYTES\tUPDATED")
		for _, k := range keys {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", k.Scope, k.Key, k.Size, k.UpdatedAt.Local().Format(time.RFC3339))
		}
		return w.Flush()
	},
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Drop expired cache entries and old results",
	RunE: func(cmd *cobra.Command, args []string) error {
		olderThan, _ := cmd.Flags().GetDuration("older-than")

		ctx, cancel := commandContext(cmd)
		defer cancel()

		a, err := openApp(cmd, appOptions{write: true})
		if err != nil {
			return err
		}
		defer a.Close()

		fmt.Printf("Pruned %d details and %d evaluations.\n", a.details.Prune(), a.evals.Cache.Prune())
		if olderThan > 0 {
			n, err := a.db.PruneResults(ctx, time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Printf("Deleted %d results not scored in the last %s.\n", n, olderThan)
		}
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:       "clear <details|eval|all>",
	Short:     "Empty a cache",
	Args:      cobra.ExactValidArgs(1),
	ValidArgs: []string{"details", "eval", "all"},
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, appOptions{write: true})
		if err != nil {
			return err
		}
		defer a.Close()

		switch args[0] {
		case "details":
			a.details.Clear()
		case "eval":
			a.evals.Cache.Clear()
		case "all":
			a.details.Clear()
			a.evals.Cache.Clear()
		}
		utils.Log.Infof("Cleared %s cache", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cachePruneCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cachePruneCmd.Flags().Duration("older-than", 0, "Also delete stored results not scored within this window, e.g. 720h")
}
