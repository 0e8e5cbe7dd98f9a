package pipeline

import (
	"context"

	"github.com/sw33tLie/jobscope/pkg/extract"
)

// Posting is a single posting read from its own page.
type Posting struct {
	ItemID  string
	URL     string
	Job     extract.JobInfo
	Details Details
	Verdict string
}

// Posting loads one posting page through load (the scheduler when nil),
// stores its detail texts and returns what an evaluation needs.
func (r *Runner) Posting(ctx context.Context, pageURL string, load Loader) (Posting, error) {
	if load == nil {
		load = r.PageLoader(pageURL)
	}
	doc, err := load(ctx)
	if err != nil {
		return Posting{}, err
	}

	id, _ := r.CaptureDetails(pageURL, doc)
	p := Posting{
		ItemID: id,
		URL:    pageURL,
		Job:    r.x.JobInfo(nil, doc.Selection),
	}
	if d, ok := r.cachedDetails(id); ok {
		p.Details = d
	}
	if r.cfg.Evaluations != nil && id != "" {
		if ev, ok := r.cfg.Evaluations.Cached(id); ok {
			p.Verdict = ev.Verdict
		}
	}
	return p, nil
}
