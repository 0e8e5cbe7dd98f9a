package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/sw33tLie/jobscope/internal/server"
	"github.com/sw33tLie/jobscope/internal/utils"
	"github.com/sw33tLie/jobscope/pkg/pipeline"
)

// watchCmd implements: jobscope watch [listing-url]
var watchCmd = &cobra.Command{
	Use:   "watch [listing-url]",
	Short: "Keep scoring a listing page on a schedule",
	Long: `Runs a scan pass right away and then on every --interval (or cron
--schedule). With --listen the results API is served as well, and POST
/api/trigger requests an extra pass.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pageURL := defaultListingURL
		if len(args) == 1 {
			pageURL = args[0]
		}
		file, _ := cmd.Flags().GetString("file")
		maxFetch, _ := cmd.Flags().GetInt("max-fetch")
		interval, _ := cmd.Flags().GetDuration("interval")
		schedule, _ := cmd.Flags().GetString("schedule")
		minScore, _ := cmd.Flags().GetFloat64("min-score")
		evalTop, _ := cmd.Flags().GetInt("evaluate")
		listen, _ := cmd.Flags().GetString("listen")

		ctx, cancel := commandContext(cmd)
		defer cancel()

		a, err := openApp(cmd, appOptions{write: true, network: true, referer: pageURL, maxFetch: maxFetch})
		if err != nil {
			return err
		}
		defer a.Close()

		var load pipeline.Loader
		if file != "" {
			load = pipeline.FileLoader(file)
		}

		trigger := make(chan struct{}, 1)
		if listen != "" {
			user, _ := cmd.Flags().GetString("username")
			pass, _ := cmd.Flags().GetString("password")
			srv := server.New(a.db, user, pass)
			srv.Gatherer = a.registry
			srv.Trigger = trigger
			httpSrv := &http.Server{Addr: listen, Handler: srv.Handler()}
			go func() {
				utils.Log.Infof("Serving results on %s", listen)
				if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					utils.Log.Errorf("Server failed: %v", err)
				}
			}()
			defer func() {
				shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
				defer done()
				httpSrv.Shutdown(shutdownCtx)
			}()
		}

		job := func(ctx context.Context) error {
			results, err := a.runner.Pass(ctx, pageURL, load)
			if err != nil {
				return err
			}
			if evalTop > 0 {
				evaluateTop(ctx, a.evals, results, evalTop)
			}
			a.saveResults(ctx, results)

			best := filterByScore(results, minScore)
			utils.Log.Infof("Pass done: %d postings, %d at or above %.1f", len(results), len(best), minScore)
			if blocked, reason := a.sched.Blocked(); blocked {
				utils.Log.Warnf("Detail fetches are blocked (%s); only listing data is scored until restart", reason)
			}
			if len(best) > 0 {
				fmt.Println()
				return printResults(os.Stdout, best, false)
			}
			return nil
		}

		return a.runner.Watch(ctx, pipeline.WatchConfig{
			Schedule: schedule,
			Interval: interval,
			Trigger:  trigger,
		}, job)
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringP("file", "f", "", "Re-read the listing from a saved HTML file on every pass")
	watchCmd.Flags().Int("max-fetch", 8, "New detail pages fetched per pass")
	watchCmd.Flags().Duration("interval", pipeline.DefaultWatchInterval, "Time between passes")
	watchCmd.Flags().String("schedule", "", "Cron expression for passes (overrides --interval)")
	watchCmd.Flags().Float64("min-score", 7, "Print postings scoring at least this much after each pass")
	watchCmd.Flags().Int("evaluate", 0, "Ask the LLM about the N best scored postings of each pass")
	watchCmd.Flags().String("listen", "", "Also serve the results API on this address, e.g. :9999")
	watchCmd.Flags().StringP("username", "u", "", "Username for basic auth (optional)")
	watchCmd.Flags().StringP("password", "p", "", "Password for basic auth (optional)")
}
