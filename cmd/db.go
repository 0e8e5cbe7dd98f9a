package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/sw33tLie/jobscope/internal/utils"
	"github.com/sw33tLie/jobscope/pkg/scoring"
	"github.com/sw33tLie/jobscope/pkg/storage"
)

// dbCmd represents the db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Interact with the jobscope database",
}

// shellCmd represents the shell command
var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Start an interactive shell to the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath, err := dbPathFromFlags(cmd)
		if err != nil {
			return err
		}
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return fmt.Errorf("database file not found: %s", dbPath)
		}

		// Check if sqlite3 is in PATH
		sqlitePath, err := exec.LookPath("sqlite3")
		if err != nil {
			return fmt.Errorf("sqlite3 command not found in your PATH. Please install it to use the db shell")
		}

		fmt.Println("--> Database schema:")
		schemaCmd := exec.Command(sqlitePath, dbPath, ".schema")
		schemaCmd.Stdout = os.Stdout
		schemaCmd.Stderr = os.Stderr
		if err := schemaCmd.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: couldn't retrieve schema: %v\n", err)
		}
		fmt.Println("\n--> Starting interactive shell... (Ctrl+D to exit)")

		c := exec.Command(sqlitePath, dbPath)
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr

		return c.Run()
	},
}

// resultsCmd prints stored postings, best first.
var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "List stored postings, best score first",
	RunE: func(cmd *cobra.Command, args []string) error {
		minScore, _ := cmd.Flags().GetFloat64("min-score")
		since, _ := cmd.Flags().GetDuration("since")
		limit, _ := cmd.Flags().GetInt("limit")
		unscored, _ := cmd.Flags().GetBool("unscored")
		asJSON, _ := cmd.Flags().GetBool("json")

		ctx, cancel := commandContext(cmd)
		defer cancel()

		a, err := openApp(cmd, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		opts := storage.ListOptions{MinScore: minScore, Limit: limit, IncludeUnscored: unscored}
		if since > 0 {
			opts.Since = time.Now().Add(-since)
		}
		results, err := a.db.ListResults(ctx, opts)
		if err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(results)
		}
		if len(results) == 0 {
			fmt.Println("No stored postings match.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SCORE\tTIER\tSTATUS\tVERDICT\tSCORED\tTITLE\tURL")
		for _, r := range results {
			tier := "-"
			if t, ok := scoring.ParseTier(r.Tier); ok {
				tier = t.String()
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				scoring.Format(r.Score, r.HasScore),
				tier,
				orDash(r.Status),
				orDash(r.Verdict),
				r.ScoredAt.Local().Format("2006-01-02 15:04"),
				utils.Truncate(r.Title, 50),
				r.URL,
			)
		}
		return w.Flush()
	},
}

// verdictCmd records a verdict by hand, e.g. after reading a posting.
var verdictCmd = &cobra.Command{
	Use:   "verdict <item-id> <verdict>",
	Short: "Set the verdict of a stored posting",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		a, err := openApp(cmd, appOptions{write: true})
		if err != nil {
			return err
		}
		defer a.Close()

		verdict := strings.TrimSpace(strings.Join(args[1:], " "))
		if err := a.db.SetVerdict(ctx, args[0], verdict); err != nil {
			if errors.Is(err, storage.ErrResultNotFound) {
				return fmt.Errorf("no stored posting with id %s", args[0])
			}
			return err
		}
		fmt.Printf("Verdict of %s set to %q\n", args[0], verdict)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(shellCmd)
	dbCmd.AddCommand(resultsCmd)
	dbCmd.AddCommand(verdictCmd)

	resultsCmd.Flags().Float64("min-score", 0, "Only list postings scoring at least this much")
	resultsCmd.Flags().Duration("since", 0, "Only list postings scored within this window, e.g. 24h")
	resultsCmd.Flags().Int("limit", 50, "Maximum number of postings")
	resultsCmd.Flags().Bool("unscored", false, "Include postings without a score")
	resultsCmd.Flags().Bool("json", false, "Print results as JSON")
}
