package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/sw33tLie/jobscope/internal/utils"
	"github.com/sw33tLie/jobscope/pkg/evaluate"
	"github.com/sw33tLie/jobscope/pkg/pipeline"
	"github.com/sw33tLie/jobscope/pkg/storage"
)

// samplePosting is sent by "evaluate --test" to check key and model.
var samplePosting = evaluate.Request{
	Title:       "Build a REST API for an inventory dashboard",
	URL:         "https://www.upwork.com/jobs/~0000000000000000000",
	Skills:      "Go, PostgreSQL, REST API",
	Description: "We need a small service exposing stock levels from our PostgreSQL database over a JSON API. Fixed price, two weeks.",
}

// evaluateCmd implements: jobscope evaluate <posting-url>
var evaluateCmd = &cobra.Command{
	Use:   "evaluate [posting-url]",
	Short: "Ask the LLM whether a posting is worth a proposal",
	Long: `Fetches the posting page, sends its title, skills and description to the
configured OpenRouter model and stores the verdict. Answers are cached per
posting, so asking twice costs one request.

With --test a built-in sample posting is sent instead, which checks the API
key and model without touching any cache.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		test, _ := cmd.Flags().GetBool("test")
		file, _ := cmd.Flags().GetString("file")
		if !test && len(args) == 0 {
			return errors.New("a posting URL is required (or use --test)")
		}

		ctx, cancel := commandContext(cmd)
		defer cancel()

		a, err := openApp(cmd, appOptions{write: !test, network: !test})
		if err != nil {
			return err
		}
		defer a.Close()

		if test {
			res := a.evals.Provider.Evaluate(ctx, samplePosting)
			if err := res.Err(); err != nil {
				return fmt.Errorf("test failed: %w", err)
			}
			fmt.Println("Model answered:")
			fmt.Println(res.Content)
			return nil
		}

		var load pipeline.Loader
		if file != "" {
			load = pipeline.FileLoader(file)
		}
		p, err := a.runner.Posting(ctx, args[0], load)
		if err != nil {
			return err
		}
		if p.ItemID == "" {
			return fmt.Errorf("no posting id in %s", args[0])
		}

		ev, cached, err := a.evals.Evaluate(ctx, p.ItemID, evaluate.Request{
			Title:       p.Job.Title,
			URL:         p.URL,
			Skills:      p.Job.Skills,
			Description: p.Job.Description,
		})
		if err != nil {
			return err
		}
		if err := a.db.SetVerdict(ctx, p.ItemID, ev.Verdict); err != nil && !errors.Is(err, storage.ErrResultNotFound) {
			utils.Log.Warnf("Could not store verdict: %v", err)
		}

		source := "model"
		if cached {
			source = "cache"
		}
		fmt.Printf("%s\nVerdict: %s (from %s)\n\n%s\n", p.Job.Title, ev.Verdict, source, ev.Content)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(evaluateCmd)
	evaluateCmd.Flags().Bool("test", false, "Send a sample posting to check the API key and model")
	evaluateCmd.Flags().StringP("file", "f", "", "Read the posting from a saved HTML file")
}
