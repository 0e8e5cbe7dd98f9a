package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/sw33tLie/jobscope/pkg/pipeline"
)

const defaultListingURL = "https://www.upwork.com/nx/find-work/best-matches"

// scanCmd implements: jobscope scan [listing-url]
var scanCmd = &cobra.Command{
	Use:   "scan [listing-url]",
	Short: "Score the postings of one listing page",
	Long: `Loads a listing page, fetches the details it lacks (at most --max-fetch new
pages per pass), scores every posting and stores the results.

With --file the listing is read from a page saved by your browser; the URL
argument is then only used to resolve relative links.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pageURL := defaultListingURL
		if len(args) == 1 {
			pageURL = args[0]
		}
		file, _ := cmd.Flags().GetString("file")
		maxFetch, _ := cmd.Flags().GetInt("max-fetch")
		minScore, _ := cmd.Flags().GetFloat64("min-score")
		asJSON, _ := cmd.Flags().GetBool("json")
		noSave, _ := cmd.Flags().GetBool("no-save")
		evalTop, _ := cmd.Flags().GetInt("evaluate")

		ctx, cancel := commandContext(cmd)
		defer cancel()

		a, err := openApp(cmd, appOptions{write: true, network: true, referer: pageURL, maxFetch: maxFetch})
		if err != nil {
			return err
		}
		defer a.Close()

		var load pipeline.Loader
		if file != "" {
			if _, err := os.Stat(file); err != nil {
				return fmt.Errorf("listing file: %w", err)
			}
			load = pipeline.FileLoader(file)
		}

		results, err := a.runner.Pass(ctx, pageURL, load)
		if err != nil {
			return err
		}
		if evalTop > 0 {
			evaluateTop(ctx, a.evals, results, evalTop)
		}
		if !noSave {
			a.saveResults(ctx, results)
		}
		if blocked, reason := a.sched.Blocked(); blocked {
			fmt.Fprintf(os.Stderr, "The site refused further requests (%s). Open a posting in your browser before the next scan.\n", reason)
		}
		return printResults(os.Stdout, filterByScore(results, minScore), asJSON)
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().StringP("file", "f", "", "Read the listing from a saved HTML file instead of fetching it")
	scanCmd.Flags().Int("max-fetch", 8, "New detail pages fetched per pass")
	scanCmd.Flags().Float64("min-score", 0, "Only print postings scoring at least this much")
	scanCmd.Flags().Bool("json", false, "Print results as JSON")
	scanCmd.Flags().Bool("no-save", false, "Do not store results in the database")
	scanCmd.Flags().Int("evaluate", 0, "Ask the LLM about the N best scored postings")
}
