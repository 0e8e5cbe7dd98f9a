package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sw33tLie/jobscope/pkg/extract"
	"github.com/sw33tLie/jobscope/pkg/fetch"
)

const (
	DefaultPollInterval   = 100 * time.Millisecond
	DefaultListingTimeout = 15 * time.Second

	// A listing is considered rendered once it holds more job links than
	// this.
	minJobLinks = 2
)

var (
	// ErrTimeout is returned by WaitFor when the condition never held.
	ErrTimeout = errors.New("timeout exceeded")
	// ErrListingTimeout is returned when a listing page never showed
	// enough job links.
	ErrListingTimeout = errors.New("listing did not load in time")
	// ErrBlocked is returned when the listing page itself is refused.
	ErrBlocked = errors.New("listing fetch blocked")
)

// WaitFor checks cond immediately and then every interval until it holds,
// fails, or timeout has elapsed since the first check.
func WaitFor(ctx context.Context, interval, timeout time.Duration, cond func(context.Context) (bool, error)) error {
	start := time.Now()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		ok, err := cond(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Since(start) >= timeout {
			return ErrTimeout
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Loader returns the current state of a listing page.
type Loader func(ctx context.Context) (*goquery.Document, error)

// PageLoader loads pageURL through the scheduler.
func (r *Runner) PageLoader(pageURL string) Loader {
	return func(ctx context.Context) (*goquery.Document, error) {
		out, err := r.cfg.Scheduler.Reload(ctx, pageURL)
		if err != nil {
			return nil, err
		}
		if out.Kind == fetch.Blocked {
			_, reason := r.cfg.Scheduler.Blocked()
			return nil, fmt.Errorf("%w: %s", ErrBlocked, reason)
		}
		return goquery.NewDocumentFromReader(strings.NewReader(out.Body))
	}
}

// FileLoader reads a page saved to disk, e.g. from a logged in browser
// session. The file is re-read on every call.
func FileLoader(path string) Loader {
	return func(context.Context) (*goquery.Document, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return goquery.NewDocumentFromReader(f)
	}
}

// LoadListing waits until the page returned by load holds more than two
// job links and returns its cards. The last loaded document is returned
// even on timeout so callers can still inspect it. Fetch failures while
// waiting are retried; a block ends the wait at once.
func (r *Runner) LoadListing(ctx context.Context, pageURL string, load Loader) ([]extract.Card, *goquery.Document, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing listing url: %w", err)
	}
	if load == nil {
		load = r.PageLoader(pageURL)
	}

	var doc *goquery.Document
	var lastErr error
	err = WaitFor(ctx, r.cfg.PollInterval, r.cfg.ListingTimeout, func(ctx context.Context) (bool, error) {
		d, err := load(ctx)
		if err != nil {
			if errors.Is(err, ErrBlocked) || ctx.Err() != nil {
				return false, err
			}
			r.log.Debugf("[pipeline] listing not ready: %v", err)
			lastErr = err
			return false, nil
		}
		doc = d
		return extract.CountJobLinks(d) > minJobLinks, nil
	})
	switch {
	case errors.Is(err, ErrTimeout) && lastErr != nil:
		return nil, doc, fmt.Errorf("%w: %v", ErrListingTimeout, lastErr)
	case errors.Is(err, ErrTimeout):
		return nil, doc, ErrListingTimeout
	case err != nil:
		return nil, doc, err
	}
	return extract.Listing(doc, base), doc, nil
}

// Pass runs one full pass over the page at pageURL. Details shown on the
// page itself are captured first, then the listing is processed. A nil
// load fetches the page through the scheduler.
func (r *Runner) Pass(ctx context.Context, pageURL string, load Loader) ([]Result, error) {
	if load == nil {
		load = r.PageLoader(pageURL)
	}
	cards, doc, err := r.LoadListing(ctx, pageURL, load)
	if doc != nil {
		r.CaptureDetails(pageURL, doc)
	}
	if err != nil {
		return nil, err
	}
	r.log.Infof("Found %d postings on %s", len(cards), pageURL)
	return r.Run(ctx, cards)
}
