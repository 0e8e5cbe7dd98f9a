// Package pipeline drives one or many passes over a listing page: detail
// pages are fetched through the scheduler when the listing lacks what the
// user asked for, learned details are cached, and every posting is scored.
package pipeline

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sw33tLie/jobscope/pkg/cache"
	"github.com/sw33tLie/jobscope/pkg/evaluate"
	"github.com/sw33tLie/jobscope/pkg/extract"
	"github.com/sw33tLie/jobscope/pkg/fetch"
	"github.com/sw33tLie/jobscope/pkg/scoring"
	"github.com/sw33tLie/jobscope/pkg/storage"
)

// Logger abstracts logging so callers can use logrus, stdlib log, or any
// other logger that satisfies this interface.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Debugf(string, ...interface{}) {}

// Status says whether a posting's details could be loaded.
type Status string

const (
	StatusOK Status = "ok"
	// StatusUnavailable means the detail fetch failed or the site blocked
	// us. The posting is still scored from what the listing shows.
	StatusUnavailable Status = "unavailable"
	// StatusDeferred means the pass ran out of fetch budget; a later pass
	// picks the posting up.
	StatusDeferred Status = "deferred"
)

// UnavailableMessage is shown next to postings whose details are missing.
const UnavailableMessage = "temporarily unavailable"

// Config holds the runner's collaborators. Scheduler is required.
type Config struct {
	Scheduler *fetch.Scheduler
	Extractor extract.Extractor // defaults to extract.New()
	Details   *cache.Persisted[Details]
	// Settings, when set, is re-read at the start of every pass and wins
	// over Toggles and ScoreConfig.
	Settings        SettingsStore
	Toggles         Toggles
	ScoreConfig     scoring.Config
	MaxFetchPerPass int // defaults to fetch.DefaultMaxPerPass if <= 0
	// Evaluations, when set, attaches cached verdicts to results.
	Evaluations *evaluate.Service

	PollInterval   time.Duration // defaults to DefaultPollInterval
	ListingTimeout time.Duration // defaults to DefaultListingTimeout

	Log Logger

	// OnResult is called for each posting as soon as it is processed.
	OnResult func(Result)
}

// Result is the outcome of one posting in a pass.
type Result struct {
	Index   int
	ItemID  string
	URL     string
	Job     extract.JobInfo
	Details Details
	Signals scoring.Signals
	Factors []scoring.Factor

	Score    float64
	HasScore bool
	Tier     scoring.Tier

	Status  Status
	Reason  string
	Fetched bool
	Verdict string
}

// Record converts the result into its stored form.
func (r Result) Record() storage.Result {
	rec := storage.Result{
		ItemID:   r.ItemID,
		URL:      r.URL,
		Title:    r.Job.Title,
		HasScore: r.HasScore,
		Score:    r.Score,
		Status:   string(r.Status),
		Verdict:  r.Verdict,
	}
	if r.HasScore {
		rec.Tier = r.Tier.String()
	}
	if !r.Details.Empty() {
		if b, err := json.Marshal(r.Details); err == nil {
			rec.Details = string(b)
		}
	}
	return rec
}

// Runner executes passes. A Runner is safe for concurrent use, though
// Watch never runs two passes at once.
type Runner struct {
	cfg Config
	x   extract.Extractor
	log Logger

	mu   sync.Mutex
	last []Result
}

func New(cfg Config) *Runner {
	x := cfg.Extractor
	if x == nil {
		x = extract.New()
	}
	log := cfg.Log
	if log == nil {
		log = nopLogger{}
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.ListingTimeout <= 0 {
		cfg.ListingTimeout = DefaultListingTimeout
	}
	return &Runner{cfg: cfg, x: x, log: log}
}

// Last returns the results of the most recent completed pass.
func (r *Runner) Last() []Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Result(nil), r.last...)
}

// Run processes the cards of one listing. Detail fetches that fail or are
// blocked mark the posting unavailable without ending the pass; only ctx
// cancellation does that.
func (r *Runner) Run(ctx context.Context, cards []extract.Card) ([]Result, error) {
	toggles, score := r.settings(ctx)
	if !toggles.AutoLoad {
		r.log.Debugf("[pipeline] auto load disabled, skipping pass")
		return nil, nil
	}
	if !toggles.WantsDetails() && !score.Enabled {
		r.log.Debugf("[pipeline] nothing to load or score, skipping pass")
		return nil, nil
	}

	pass := r.cfg.Scheduler.NewPass(r.cfg.MaxFetchPerPass)
	results := make([]Result, 0, len(cards))
	for _, card := range cards {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := r.process(ctx, card, toggles, score, pass)
		if err != nil {
			return results, err
		}
		results = append(results, res)
		if r.cfg.OnResult != nil {
			r.cfg.OnResult(res)
		}
	}

	r.mu.Lock()
	r.last = results
	r.mu.Unlock()
	return results, nil
}

func (r *Runner) process(ctx context.Context, card extract.Card, toggles Toggles, score scoring.Config, pass *fetch.Pass) (Result, error) {
	res := Result{Index: card.Index, ItemID: card.ItemID, URL: card.URL, Status: StatusOK}
	cached, hasCached := r.cachedDetails(card.ItemID)

	var d Details
	if toggles.HireRate {
		if d.HireRateText = r.x.HireRateText(card.Selection, nil); d.HireRateText == "" {
			d.HireRateText = cached.HireRateText
		}
	}
	if toggles.ConnectsRequired {
		d.ConnectsText = cached.ConnectsText
	}
	if toggles.MemberSince {
		d.MemberSinceText = cached.MemberSinceText
	}

	// A cached entry means the detail page was read before; fields it
	// lacks are not on that page.
	needsFetch := !hasCached &&
		((toggles.HireRate && d.HireRateText == "") ||
			(toggles.ConnectsRequired && d.ConnectsText == "") ||
			(toggles.MemberSince && d.MemberSinceText == ""))

	var detail *goquery.Selection
	if needsFetch {
		doc, status, reason, err := r.fetchDetail(ctx, card.URL, pass)
		if err != nil {
			return res, err
		}
		res.Status, res.Reason = status, reason
		if doc != nil {
			detail = doc.Selection
			res.Fetched = true
			if toggles.HireRate && d.HireRateText == "" {
				d.HireRateText = r.x.HireRateText(nil, detail)
			}
			if toggles.ConnectsRequired && d.ConnectsText == "" {
				d.ConnectsText = r.x.ConnectsText(detail)
			}
			if toggles.MemberSince && d.MemberSinceText == "" {
				d.MemberSinceText = r.x.MemberSinceText(detail)
			}
			r.rememberDetails(card.ItemID, d)
		}
	}
	res.Details = d
	res.Job = r.x.JobInfo(card.Selection, detail)

	if score.Enabled {
		sig := r.x.Extract(card.Selection, detail)
		if cached.HireRateText != "" {
			sig.HireRate = cached.HireRateText
		}
		res.Signals = sig
		res.Factors = scoring.Factors(sig, score)
		if res.Score, res.HasScore = scoring.Score(res.Factors); res.HasScore {
			res.Tier = scoring.Classify(res.Score)
		}
	}

	if r.cfg.Evaluations != nil {
		if ev, ok := r.cfg.Evaluations.Cached(card.ItemID); ok {
			res.Verdict = ev.Verdict
		}
	}
	return res, nil
}

// fetchDetail loads a posting's detail page. The returned error is only
// ever the caller's cancellation; fetch failures come back as a status.
func (r *Runner) fetchDetail(ctx context.Context, url string, pass *fetch.Pass) (*goquery.Document, Status, string, error) {
	s := r.cfg.Scheduler
	if blocked, reason := s.Blocked(); blocked {
		return nil, StatusUnavailable, reason, nil
	}
	if !s.Cached(url) && !pass.TryAcquire() {
		if blocked, reason := s.Blocked(); blocked {
			return nil, StatusUnavailable, reason, nil
		}
		return nil, StatusDeferred, "fetch budget spent", nil
	}

	out, err := s.Enqueue(ctx, url)
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", "", ctx.Err()
		}
		r.log.Warnf("Fetching %s failed: %v", url, err)
		return nil, StatusUnavailable, err.Error(), nil
	}
	if out.Kind == fetch.Blocked {
		_, reason := s.Blocked()
		return nil, StatusUnavailable, reason, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(out.Body))
	if err != nil {
		r.log.Warnf("Parsing %s failed: %v", url, err)
		return nil, StatusUnavailable, err.Error(), nil
	}
	return doc, StatusOK, "", nil
}
