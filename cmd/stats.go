package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/sw33tLie/jobscope/pkg/scoring"
)

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Prints how many stored postings fall in each score tier.",
	Long:  "Prints how many stored postings fall in each score tier.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		a, err := openApp(cmd, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.db.GetStats(ctx)
		if err != nil {
			return err
		}

		if len(stats) == 0 {
			fmt.Println("No postings in the database yet. Run 'jobscope scan' first.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight)
		fmt.Fprintln(w, "TIER\tPOSTINGS\t")

		var total int
		for _, s := range stats {
			name := s.Tier
			if name == "" {
				name = "unscored"
			} else if t, ok := scoring.ParseTier(s.Tier); ok {
				name = t.String()
			}
			fmt.Fprintf(w, "%s\t%d\t\n", name, s.Count)
			total += s.Count
		}

		fmt.Fprintln(w, " \t \t")
		fmt.Fprintf(w, "TOTAL\t%d\t\n", total)

		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
