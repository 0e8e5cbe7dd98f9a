package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sw33tLie/jobscope/pkg/evaluate"
	"github.com/sw33tLie/jobscope/pkg/extract"
	"github.com/sw33tLie/jobscope/pkg/fetch"
	"github.com/sw33tLie/jobscope/pkg/scoring"
	"github.com/sw33tLie/jobscope/pkg/storage"
)

const listingHTML = `<html><body>
<section class="air3-card-section">
  <h2 data-test="job-tile-title"><a href="/jobs/Alpha_~01a">Alpha</a></h2>
  <div data-test="budget">$1,000</div>
  <div data-test="client-country">USA</div>
</section>
<section class="air3-card-section">
  <h2 data-test="job-tile-title"><a href="/jobs/Beta_~02b">Beta</a></h2>
  <div data-test="job-activity">91% hire rate, 4 open jobs</div>
  <div data-test="client-country">Brazil</div>
</section>
<section class="air3-card-section">
  <h2 data-test="job-tile-title"><a href="/jobs/Gamma_~03c">Gamma</a></h2>
  <strong data-test="proposals">Less than 5</strong>
</section>
</body></html>`

func detailHTML(title, rate, connects, since string) string {
	return `<html><body><h1>` + title + `</h1>
<div data-test="job-description-text">About ` + title + `</div>
<ul>
  <li data-qa="client-job-posting-stats"><div>` + rate + `</div></li>
  <li data-qa="client-contract-date"><small>` + since + `</small></li>
</ul>
<div>Send a proposal for: <strong>` + connects + `</strong></div>
</body></html>`
}

type page struct {
	status int
	body   string
}

type site struct {
	srv   *httptest.Server
	mu    sync.Mutex
	pages map[string]page
	hits  map[string]int
}

func newSite(t *testing.T) *site {
	t.Helper()
	s := &site{
		pages: map[string]page{
			"/listing":         {200, listingHTML},
			"/jobs/Alpha_~01a": {200, detailHTML("Alpha", "80% hire rate, 2 open jobs", "12", "Member since Mar 1, 2020")},
			"/jobs/Beta_~02b":  {200, detailHTML("Beta", "10% hire rate, 9 open jobs", "8", "Member since Jan 1, 2015")},
			"/jobs/Gamma_~03c": {200, detailHTML("Gamma", "50% hire rate, 1 open job", "16", "Member since Jul 7, 2023")},
		},
		hits: map[string]int{},
	}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		p, ok := s.pages[r.URL.Path]
		s.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(p.status)
		w.Write([]byte(p.body))
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *site) set(path string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[path] = page{status, body}
}

func (s *site) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemStore() *memStore { return &memStore{data: map[string][]byte{}} }

func (m *memStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memStore) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func newRunner(t *testing.T, st *site, cfg Config) *Runner {
	t.Helper()
	s := fetch.New(fetch.Config{
		Client: st.srv.Client(),
		Sleep:  func(time.Duration, <-chan struct{}) bool { return true },
	})
	t.Cleanup(s.Close)
	cfg.Scheduler = s

	if cfg.Details == nil {
		details, err := OpenDetailsCache(context.Background(), newMemStore(), storage.KeyDetailsCache, nil)
		if err != nil {
			t.Fatal(err)
		}
		cfg.Details = details
	}
	if cfg.Toggles == (Toggles{}) {
		cfg.Toggles = DefaultToggles()
	}
	if cfg.ScoreConfig.Weights == nil {
		cfg.ScoreConfig = scoring.DefaultConfig()
	}
	return New(cfg)
}

func cards(t *testing.T, st *site) []extract.Card {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(listingHTML))
	if err != nil {
		t.Fatal(err)
	}
	base, _ := url.Parse(st.srv.URL + "/listing")
	c := extract.Listing(doc, base)
	if len(c) != 3 {
		t.Fatalf("expected 3 cards, got %d", len(c))
	}
	return c
}

func TestRunFetchesMissingDetailsOnce(t *testing.T) {
	st := newSite(t)
	r := newRunner(t, st, Config{})
	ctx := context.Background()

	results, err := r.Run(ctx, cards(t, st))
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	alpha := results[0]
	want := Details{
		HireRateText:    "80% hire rate, 2 open jobs",
		ConnectsText:    "12 Connects Required",
		MemberSinceText: "Member since Mar 1, 2020",
	}
	if alpha.ItemID != "01a" || alpha.Status != StatusOK || !alpha.Fetched || alpha.Details != want {
		t.Fatalf("unexpected first result %+v", alpha)
	}
	if alpha.Job.Title != "Alpha" || alpha.Job.Description != "About Alpha" {
		t.Fatalf("unexpected job info %+v", alpha.Job)
	}
	if !alpha.HasScore || alpha.Signals.HireRate != want.HireRateText {
		t.Fatalf("expected a score built from the detail page, got %+v", alpha)
	}

	if got := results[1].Details.HireRateText; got != "91% hire rate, 4 open jobs" {
		t.Fatalf("card hire rate must win over the detail page, got %q", got)
	}

	// A second pass is served entirely from the details cache.
	again, err := r.Run(ctx, cards(t, st))
	if err != nil {
		t.Fatal(err)
	}
	for _, path := range []string{"/jobs/Alpha_~01a", "/jobs/Beta_~02b", "/jobs/Gamma_~03c"} {
		if st.Hits(path) != 1 {
			t.Fatalf("%s fetched %d times", path, st.Hits(path))
		}
	}
	if again[0].Fetched || again[0].Details != want {
		t.Fatalf("expected cached details, got %+v", again[0])
	}
	if len(r.Last()) != 3 {
		t.Fatal("expected the last pass to be kept")
	}
}

func TestRunUsesCachedDetails(t *testing.T) {
	st := newSite(t)
	details, err := OpenDetailsCache(context.Background(), newMemStore(), storage.KeyDetailsCache, nil)
	if err != nil {
		t.Fatal(err)
	}
	details.Set("01a", Details{HireRateText: "65% hire rate"})

	r := newRunner(t, st, Config{Details: details})
	results, err := r.Run(context.Background(), cards(t, st))
	if err != nil {
		t.Fatal(err)
	}
	if st.Hits("/jobs/Alpha_~01a") != 0 {
		t.Fatal("a cached posting must not be fetched")
	}
	if results[0].Details.HireRateText != "65% hire rate" || results[0].Signals.HireRate != "65% hire rate" {
		t.Fatalf("expected cached hire rate, got %+v", results[0])
	}
}

func TestRunMarksBlockedPostingsUnavailable(t *testing.T) {
	st := newSite(t)
	st.set("/jobs/Alpha_~01a", http.StatusTooManyRequests, "")
	r := newRunner(t, st, Config{})

	results, err := r.Run(context.Background(), cards(t, st))
	if err != nil {
		t.Fatalf("a block must not end the pass: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected every posting in the result, got %d", len(results))
	}
	for _, res := range results {
		if res.Status != StatusUnavailable || res.Reason != "fetch_429" {
			t.Fatalf("expected unavailable, got %+v", res)
		}
	}
	if st.Hits("/jobs/Beta_~02b") != 0 || st.Hits("/jobs/Gamma_~03c") != 0 {
		t.Fatal("no request may follow a block")
	}
	if !results[0].HasScore {
		t.Fatal("blocked postings are still scored from the card")
	}
}

func TestRunFailedFetchDoesNotEndPass(t *testing.T) {
	st := newSite(t)
	st.set("/jobs/Alpha_~01a", http.StatusInternalServerError, "")
	r := newRunner(t, st, Config{})

	results, err := r.Run(context.Background(), cards(t, st))
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Status != StatusUnavailable || !strings.Contains(results[0].Reason, "fetch_500") {
		t.Fatalf("unexpected failed result %+v", results[0])
	}
	if results[1].Status != StatusOK || results[2].Status != StatusOK {
		t.Fatal("later postings must still load")
	}
}

func TestRunRespectsPassBudget(t *testing.T) {
	st := newSite(t)
	r := newRunner(t, st, Config{MaxFetchPerPass: 1})

	results, err := r.Run(context.Background(), cards(t, st))
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Status != StatusOK || results[1].Status != StatusDeferred || results[2].Status != StatusDeferred {
		t.Fatalf("unexpected statuses %s %s %s", results[0].Status, results[1].Status, results[2].Status)
	}
	if st.Hits("/jobs/Beta_~02b") != 0 {
		t.Fatal("deferred postings must not be fetched")
	}
}

func TestRunReadsSettingsEachPass(t *testing.T) {
	st := newSite(t)
	settings := newMemStore()
	r := newRunner(t, st, Config{Settings: settings})
	ctx := context.Background()

	settings.Set(ctx, storage.KeyToggles, []byte(`{"checkboxAutoLoad": false}`))
	results, err := r.Run(ctx, cards(t, st))
	if err != nil || results != nil {
		t.Fatalf("expected no pass with auto load off, got %v %v", results, err)
	}

	settings.Set(ctx, storage.KeyToggles, []byte(`{"checkboxHireRate": false, "checkboxConnectsRequired": false, "checkboxMemberSince": false}`))
	settings.Set(ctx, storage.KeyScoreSettings, []byte(`{"enabled": false}`))
	if results, _ := r.Run(ctx, cards(t, st)); results != nil {
		t.Fatal("expected no pass with nothing to do")
	}

	settings.Set(ctx, storage.KeyScoreSettings, []byte(`{"enabled": true}`))
	results, err = r.Run(ctx, cards(t, st))
	if err != nil || len(results) != 3 {
		t.Fatalf("expected a scoring-only pass, got %d %v", len(results), err)
	}
	if results[0].Fetched || !results[0].Details.Empty() {
		t.Fatalf("no details are wanted, got %+v", results[0])
	}
	if st.Hits("/jobs/Alpha_~01a") != 0 {
		t.Fatal("scoring alone must not fetch details")
	}
}

func TestRunAttachesCachedVerdict(t *testing.T) {
	st := newSite(t)
	evals, err := evaluate.OpenCache(context.Background(), newMemStore(), storage.KeyEvalCache, nil)
	if err != nil {
		t.Fatal(err)
	}
	evals.Set("02b", evaluate.Evaluation{Verdict: "NOT WORTH", Content: "not worth it"})
	r := newRunner(t, st, Config{Evaluations: &evaluate.Service{Cache: evals}})

	results, err := r.Run(context.Background(), cards(t, st))
	if err != nil {
		t.Fatal(err)
	}
	if results[1].Verdict != "NOT WORTH" || results[0].Verdict != "" {
		t.Fatalf("unexpected verdicts %q %q", results[0].Verdict, results[1].Verdict)
	}
	rec := results[1].Record()
	if rec.Verdict != "NOT WORTH" || rec.Title != "Beta" || rec.Status != "ok" || !strings.Contains(rec.Details, "91% hire rate") {
		t.Fatalf("unexpected record %+v", rec)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	st := newSite(t)
	r := newRunner(t, st, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := r.Run(ctx, cards(t, st))
	if err != context.Canceled || len(results) != 0 {
		t.Fatalf("expected cancellation, got %d %v", len(results), err)
	}
}

func TestParseToggles(t *testing.T) {
	tests := []struct {
		raw  string
		want Toggles
	}{
		{``, DefaultToggles()},
		{`not json`, DefaultToggles()},
		{`[true]`, DefaultToggles()},
		{`{"checkboxMemberSince": false}`, Toggles{HireRate: true, ConnectsRequired: true, AutoLoad: true}},
		{`{"checkboxAutoLoad": "no", "checkboxHireRate": false}`, Toggles{ConnectsRequired: true, MemberSince: true, AutoLoad: true}},
		{`{"checkboxAutoLoad": 0, "checkboxMemberSince": null, "checkboxHireRate": true}`, DefaultToggles()},
		{`{"checkboxConnectsRequired": false, "checkboxAutoLoad": false}`, Toggles{HireRate: true, MemberSince: true}},
	}
	for _, tc := range tests {
		if got := ParseToggles([]byte(tc.raw)); got != tc.want {
			t.Fatalf("%q: expected %+v, got %+v", tc.raw, tc.want, got)
		}
	}
}

func TestTogglesMergeKeepsCurrentValues(t *testing.T) {
	cur := Toggles{HireRate: false, MemberSince: true}
	got := cur.Merge([]byte(`{"checkboxAutoLoad": true}`))
	want := Toggles{MemberSince: true, AutoLoad: true}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestCaptureDetails(t *testing.T) {
	st := newSite(t)
	r := newRunner(t, st, Config{})
	r.cfg.Details.Set("01a", Details{ConnectsText: "4 Connects Required", MemberSinceText: "old"})

	doc, _ := goquery.NewDocumentFromReader(strings.NewReader(detailHTML("Alpha", "70% hire rate, 1 open job", "", "Member since May 5, 2021")))
	id, ok := r.CaptureDetails(st.srv.URL+"/jobs/Alpha_~01a", doc)
	if !ok || id != "01a" {
		t.Fatalf("expected capture, got %q %v", id, ok)
	}
	got, _ := r.cfg.Details.Get("01a")
	want := Details{HireRateText: "70% hire rate, 1 open job", ConnectsText: "4 Connects Required", MemberSinceText: "Member since May 5, 2021"}
	if got != want {
		t.Fatalf("expected a field-wise merge, got %+v", got)
	}

	if _, ok := r.CaptureDetails(st.srv.URL+"/nx/find-work", doc); ok {
		t.Fatal("a page without an id must not be captured")
	}
	if _, ok := r.CaptureDetails("", nil); ok {
		t.Fatal("nil document must not be captured")
	}
}

func TestPassLoadsListingThroughScheduler(t *testing.T) {
	st := newSite(t)
	r := newRunner(t, st, Config{})

	results, err := r.Pass(context.Background(), st.srv.URL+"/listing", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 || st.Hits("/listing") != 1 {
		t.Fatalf("unexpected pass: %d results, %d listing hits", len(results), st.Hits("/listing"))
	}
}

func TestPassReloadsListingEachTime(t *testing.T) {
	st := newSite(t)
	r := newRunner(t, st, Config{})
	ctx := context.Background()
	listing := st.srv.URL + "/listing"

	first, err := r.Pass(ctx, listing, nil)
	if err != nil {
		t.Fatal(err)
	}

	st.set("/listing", http.StatusOK, strings.Replace(listingHTML, "</body>", `<section class="air3-card-section">
  <h2 data-test="job-tile-title"><a href="/jobs/Delta_~04d">Delta</a></h2>
</section>
</body>`, 1))
	second, err := r.Pass(ctx, listing, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 3 || len(second) != 4 {
		t.Fatalf("expected 3 then 4 postings, got %d then %d", len(first), len(second))
	}
	if got := st.Hits("/listing"); got != 2 {
		t.Fatalf("expected the listing fetched on every pass, got %d", got)
	}
}

func TestWaitFor(t *testing.T) {
	ctx := context.Background()
	calls := 0
	err := WaitFor(ctx, time.Millisecond, time.Second, func(context.Context) (bool, error) {
		calls++
		return calls == 3, nil
	})
	if err != nil || calls != 3 {
		t.Fatalf("expected success on the third check, got %v after %d", err, calls)
	}

	if err := WaitFor(ctx, time.Millisecond, 20*time.Millisecond, func(context.Context) (bool, error) {
		return false, nil
	}); err != ErrTimeout {
		t.Fatalf("expected timeout, got %v", err)
	}

	boom := ErrBlocked
	if err := WaitFor(ctx, time.Millisecond, time.Second, func(context.Context) (bool, error) {
		return false, boom
	}); err != boom {
		t.Fatalf("expected condition error, got %v", err)
	}
}

func TestLoadListing(t *testing.T) {
	st := newSite(t)
	r := newRunner(t, st, Config{PollInterval: time.Millisecond, ListingTimeout: 50 * time.Millisecond})
	ctx := context.Background()

	polls := 0
	growing := func(context.Context) (*goquery.Document, error) {
		polls++
		if polls < 3 {
			return goquery.NewDocumentFromReader(strings.NewReader(`<a href="/jobs/~1">one</a>`))
		}
		return goquery.NewDocumentFromReader(strings.NewReader(listingHTML))
	}
	got, doc, err := r.LoadListing(ctx, st.srv.URL+"/listing", growing)
	if err != nil || len(got) != 3 || doc == nil {
		t.Fatalf("expected the listing once rendered, got %d %v", len(got), err)
	}

	sparse := func(context.Context) (*goquery.Document, error) {
		return goquery.NewDocumentFromReader(strings.NewReader(`<a href="/jobs/~1">one</a>`))
	}
	if _, doc, err := r.LoadListing(ctx, st.srv.URL+"/listing", sparse); err != ErrListingTimeout || doc == nil {
		t.Fatalf("expected listing timeout with the last document, got %v", err)
	}

	st.set("/blocked", http.StatusForbidden, "")
	start := time.Now()
	if _, _, err := r.LoadListing(ctx, st.srv.URL+"/blocked", nil); err == nil || !strings.Contains(err.Error(), "fetch_403") {
		t.Fatalf("expected a block error, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("a block must end the wait at once")
	}
}

func TestPostingReadsDetailPage(t *testing.T) {
	st := newSite(t)
	st.set("/jobs/Alpha_~01a", 200, detailHTML("Alpha", "80% hire rate, 2 open jobs", "6 Connects", "Member since Jan 1, 2020"))
	r := newRunner(t, st, Config{})

	p, err := r.Posting(context.Background(), st.srv.URL+"/jobs/Alpha_~01a", nil)
	if err != nil {
		t.Fatal(err)
	}
	if p.ItemID != "01a" || p.Job.Title != "Alpha" {
		t.Fatalf("unexpected posting %+v", p)
	}
	if p.Job.Description != "About Alpha" {
		t.Fatalf("description = %q", p.Job.Description)
	}
	if p.Details.HireRateText != "80% hire rate, 2 open jobs" {
		t.Fatalf("details not captured: %+v", p.Details)
	}
	if got, ok := r.cfg.Details.Get("01a"); !ok || got.MemberSinceText != "Member since Jan 1, 2020" {
		t.Fatalf("details not cached: %+v", got)
	}
}
