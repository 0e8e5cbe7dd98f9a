package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/sw33tLie/jobscope/internal/utils"
	"github.com/sw33tLie/jobscope/pkg/evaluate"
	"github.com/sw33tLie/jobscope/pkg/pipeline"
	"github.com/sw33tLie/jobscope/pkg/scoring"
)

// commandContext is cancelled on Ctrl+C.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return signal.NotifyContext(ctx, os.Interrupt)
}

type jsonResult struct {
	ItemID  string             `json:"item_id"`
	URL     string             `json:"url"`
	Title   string             `json:"title"`
	Score   *float64           `json:"score"`
	Tier    string             `json:"tier,omitempty"`
	Badge   string             `json:"badge,omitempty"`
	Status  string             `json:"status"`
	Reason  string             `json:"reason,omitempty"`
	Details pipeline.Details   `json:"details"`
	Factors map[string]float64 `json:"factors,omitempty"`
	Verdict string             `json:"verdict,omitempty"`
}

func toJSONResult(r pipeline.Result) jsonResult {
	out := jsonResult{
		ItemID:  r.ItemID,
		URL:     r.URL,
		Title:   r.Job.Title,
		Status:  string(r.Status),
		Reason:  r.Reason,
		Details: r.Details,
		Verdict: r.Verdict,
	}
	if r.HasScore {
		score := r.Score
		out.Score = &score
		out.Tier = r.Tier.String()
		out.Badge = r.Tier.BadgeClass()
	}
	for _, f := range r.Factors {
		if !f.Counts() {
			continue
		}
		if out.Factors == nil {
			out.Factors = map[string]float64{}
		}
		v, _ := f.Value.Get()
		out.Factors[f.Name] = v
	}
	return out
}

func filterByScore(results []pipeline.Result, min float64) []pipeline.Result {
	if min <= 0 {
		return results
	}
	var out []pipeline.Result
	for _, r := range results {
		if r.HasScore && r.Score >= min {
			out = append(out, r)
		}
	}
	return out
}

func printResults(w io.Writer, results []pipeline.Result, asJSON bool) error {
	if asJSON {
		out := make([]jsonResult, 0, len(results))
		for _, r := range results {
			out = append(out, toJSONResult(r))
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	if len(results) == 0 {
		fmt.Fprintln(w, "No postings to show.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tSCORE\tTIER\tDETAILS\tVERDICT\tTITLE\tURL")
	for _, r := range results {
		tier := "-"
		if r.HasScore {
			tier = r.Tier.String()
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Index,
			scoring.Format(r.Score, r.HasScore),
			tier,
			detailsColumn(r),
			orDash(r.Verdict),
			utils.Truncate(r.Job.Title, 50),
			r.URL,
		)
	}
	return tw.Flush()
}

func detailsColumn(r pipeline.Result) string {
	switch r.Status {
	case pipeline.StatusUnavailable:
		return pipeline.UnavailableMessage
	case pipeline.StatusDeferred:
		return "pending"
	}
	parts := []string{}
	for _, s := range []string{r.Details.HireRateText, r.Details.ConnectsText, r.Details.MemberSinceText} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return "-"
	}
	return utils.Truncate(joinParts(parts), 60)
}

func joinParts(parts []string) string {
	out := parts[0]
	for _, p := range parts[1:] {
		out += " | " + p
	}
	return out
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// evaluateTop asks the provider about the n best scored postings and
// attaches the verdicts. Failures are logged per posting.
func evaluateTop(ctx context.Context, svc *evaluate.Service, results []pipeline.Result, n int) {
	idx := make([]int, 0, len(results))
	for i, r := range results {
		if r.HasScore && r.ItemID != "" {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool { return results[idx[a]].Score > results[idx[b]].Score })
	if len(idx) > n {
		idx = idx[:n]
	}

	for _, i := range idx {
		r := &results[i]
		ev, cached, err := svc.Evaluate(ctx, r.ItemID, evaluate.Request{
			Title:       r.Job.Title,
			URL:         r.URL,
			Skills:      r.Job.Skills,
			Description: r.Job.Description,
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			utils.Log.Warnf("Could not evaluate %s: %v", r.URL, err)
			continue
		}
		r.Verdict = ev.Verdict
		utils.Log.Debugf("Verdict for %s: %s (cached: %v)", r.ItemID, ev.Verdict, cached)
	}
}
