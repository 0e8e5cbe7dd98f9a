package pipeline

import (
	"context"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sw33tLie/jobscope/pkg/cache"
	"github.com/sw33tLie/jobscope/pkg/extract"
)

const (
	DefaultDetailsTTL      = 48 * time.Hour
	DefaultDetailsMax      = 200
	DefaultDetailsDebounce = time.Second
)

// Details are the texts only a posting's detail page shows. They are
// cached per item id so later passes can skip the fetch.
type Details struct {
	HireRateText    string `json:"hireRateText,omitempty"`
	ConnectsText    string `json:"connectsText,omitempty"`
	MemberSinceText string `json:"memberSinceText,omitempty"`
}

// Empty reports whether no field is set.
func (d Details) Empty() bool {
	return d.HireRateText == "" && d.ConnectsText == "" && d.MemberSinceText == ""
}

// Merge overlays the non-empty fields of update onto d.
func (d Details) Merge(update Details) Details {
	if update.HireRateText != "" {
		d.HireRateText = update.HireRateText
	}
	if update.ConnectsText != "" {
		d.ConnectsText = update.ConnectsText
	}
	if update.MemberSinceText != "" {
		d.MemberSinceText = update.MemberSinceText
	}
	return d
}

// OpenDetailsCache loads the details cache persisted under key.
func OpenDetailsCache(ctx context.Context, store cache.Store, key string, onError func(error)) (*cache.Persisted[Details], error) {
	return cache.Open[Details](ctx, store, key, cache.Options{
		TTL:        DefaultDetailsTTL,
		MaxEntries: DefaultDetailsMax,
		Debounce:   DefaultDetailsDebounce,
		OnError:    onError,
	})
}

func (r *Runner) cachedDetails(itemID string) (Details, bool) {
	if r.cfg.Details == nil || itemID == "" {
		return Details{}, false
	}
	return r.cfg.Details.Get(itemID)
}

func (r *Runner) rememberDetails(itemID string, d Details) {
	if r.cfg.Details == nil || itemID == "" || d.Empty() {
		return
	}
	r.cfg.Details.Update(itemID, func(old Details, found bool) Details {
		if !found {
			return d
		}
		return old.Merge(d)
	})
}

// CaptureDetails stores the detail texts shown on an open posting page.
// It returns the item id and whether anything was stored.
func (r *Runner) CaptureDetails(pageURL string, doc *goquery.Document) (string, bool) {
	if doc == nil {
		return "", false
	}
	id := extract.PageItemID(pageURL, doc.Selection)
	if id == "" {
		return "", false
	}
	d := Details{
		HireRateText:    r.x.HireRateText(nil, doc.Selection),
		ConnectsText:    r.x.ConnectsText(doc.Selection),
		MemberSinceText: r.x.MemberSinceText(doc.Selection),
	}
	if d.Empty() {
		return id, false
	}
	r.rememberDetails(id, d)
	r.log.Debugf("[pipeline] captured details for %s", id)
	return id, true
}
