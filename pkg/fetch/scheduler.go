// Package fetch serializes detail page requests through a single worker
// with randomized pacing, backoff on failure and a session-wide stop once
// the site starts refusing requests.
package fetch

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"

	"github.com/sw33tLie/jobscope/pkg/whttp"
)

const (
	DefaultMinDelay      = 1000 * time.Millisecond
	DefaultMaxDelay      = 3000 * time.Millisecond
	DefaultErrorDelay    = 10 * time.Second
	DefaultMaxErrorDelay = 60 * time.Second
	DefaultMultiplier    = 1.7
	DefaultMaxQueue      = 12
	DefaultMaxPerPass    = 8
)

// Logger abstracts logging so callers can plug in logrus or anything else
// with the same method set.
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

// Kind tells a successful Outcome apart from a blocked one.
type Kind int

const (
	HTML Kind = iota
	Blocked
)

func (k Kind) String() string {
	if k == Blocked {
		return "blocked"
	}
	return "html"
}

// Outcome is what a fetch resolves to when it is not an error. Blocked
// carries no body and must not be retried.
type Outcome struct {
	Kind Kind
	Body string
}

// Config holds the scheduler's collaborators and pacing parameters. Zero
// values take the package defaults.
type Config struct {
	Client  *http.Client
	Referer string
	// Cookie is sent verbatim as the Cookie header, for sessions copied
	// out of a browser.
	Cookie  string
	Headers []whttp.WHTTPHeader

	MinDelay      time.Duration
	MaxDelay      time.Duration
	ErrorDelay    time.Duration
	MaxErrorDelay time.Duration
	Multiplier    float64
	MaxQueue      int

	Documents *DocumentCache
	Metrics   *Metrics
	Log       Logger

	// Jitter picks the pause used after a success. Defaults to a uniform
	// millisecond in [min, max].
	Jitter func(min, max time.Duration) time.Duration
	// Sleep waits d or until quit is closed, returning false in the latter
	// case.
	Sleep func(d time.Duration, quit <-chan struct{}) bool
}

type job struct {
	url string
	key string
	// fresh jobs bypass the document cache in both directions.
	fresh   bool
	done    chan struct{}
	waiters int
	outcome Outcome
	err     error
}

// Scheduler issues at most one outbound request at a time. Enqueue is safe
// for concurrent use; all network work happens on the worker goroutine.
type Scheduler struct {
	cfg  Config
	log  Logger
	docs *DocumentCache

	mu            sync.Mutex
	queue         []*job
	inflight      map[string]*job
	delay         time.Duration
	errorDelay    time.Duration
	blocked       bool
	blockedReason string
	closed        bool

	wake    chan struct{}
	quit    chan struct{}
	stopped chan struct{}
}

// New starts a scheduler and its worker goroutine. Call Close to stop it.
func New(cfg Config) *Scheduler {
	if cfg.Client == nil {
		jar, _ := cookiejar.New(nil)
		cfg.Client = &http.Client{Jar: jar, Timeout: 30 * time.Second}
	}
	if cfg.MinDelay <= 0 {
		cfg.MinDelay = DefaultMinDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultMaxDelay
	}
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MaxDelay = cfg.MinDelay
	}
	if cfg.ErrorDelay <= 0 {
		cfg.ErrorDelay = DefaultErrorDelay
	}
	if cfg.MaxErrorDelay <= 0 {
		cfg.MaxErrorDelay = DefaultMaxErrorDelay
	}
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = DefaultMultiplier
	}
	if cfg.MaxQueue <= 0 {
		cfg.MaxQueue = DefaultMaxQueue
	}
	if cfg.Jitter == nil {
		cfg.Jitter = randomDelay
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleep
	}
	log := cfg.Log
	if log == nil {
		log = nopLogger{}
	}
	docs := cfg.Documents
	if docs == nil {
		docs = NewDocumentCache(DefaultDocumentTTL)
	}

	s := &Scheduler{
		cfg:        cfg,
		log:        log,
		docs:       docs,
		inflight:   make(map[string]*job),
		errorDelay: cfg.ErrorDelay,
		wake:       make(chan struct{}, 1),
		quit:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}
	s.delay = cfg.Jitter(cfg.MinDelay, cfg.MaxDelay)
	cfg.Metrics.setDelay(s.delay)
	go s.loop()
	return s
}

// Enqueue fetches url through the worker and waits for the result. Once
// the scheduler is blocked every call returns Blocked immediately. A
// cancelled ctx abandons the wait but not a request already issued.
func (s *Scheduler) Enqueue(ctx context.Context, url string) (Outcome, error) {
	return s.enqueue(ctx, url, false)
}

// Reload is Enqueue for pages that change between passes, such as a
// listing: the document cache is neither read nor written. Pacing and the
// blocked short-circuit still apply.
func (s *Scheduler) Reload(ctx context.Context, url string) (Outcome, error) {
	return s.enqueue(ctx, url, true)
}

func (s *Scheduler) enqueue(ctx context.Context, url string, fresh bool) (Outcome, error) {
	key := url
	if fresh {
		key = "fresh " + url
	}

	s.mu.Lock()
	if s.blocked {
		s.mu.Unlock()
		s.cfg.Metrics.observe(outcomeShortCircuit)
		return Outcome{Kind: Blocked}, nil
	}
	if s.closed {
		s.mu.Unlock()
		return Outcome{}, ErrClosed
	}
	j, ok := s.inflight[key]
	if !ok {
		if len(s.queue) >= s.cfg.MaxQueue {
			s.mu.Unlock()
			s.cfg.Metrics.observe(outcomeQueueFull)
			return Outcome{}, ErrQueueFull
		}
		j = &job{url: url, key: key, fresh: fresh, done: make(chan struct{})}
		s.queue = append(s.queue, j)
		s.inflight[key] = j
		s.cfg.Metrics.setQueueDepth(len(s.queue))
		select {
		case s.wake <- struct{}{}:
		default:
		}
	}
	j.waiters++
	s.mu.Unlock()

	select {
	case <-j.done:
		return j.outcome, j.err
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// Cached reports whether url would be served from the document cache.
func (s *Scheduler) Cached(url string) bool {
	_, ok := s.docs.Get(url)
	return ok
}

// Blocked reports whether the site refused a request and why.
func (s *Scheduler) Blocked() (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blocked, s.blockedReason
}

// MarkBlocked stops all further fetches for the life of the scheduler.
func (s *Scheduler) MarkBlocked(reason string) {
	if reason == "" {
		reason = "fetch_blocked"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.blocked {
		return
	}
	s.blocked = true
	s.blockedReason = reason
	s.log.Warnf("Fetching disabled for this session: %s", reason)
}

// Delays returns the current pause between jobs and the pause the next
// failure will apply.
func (s *Scheduler) Delays() (delay, errorDelay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delay, s.errorDelay
}

// QueueLen returns the number of jobs waiting for the worker.
func (s *Scheduler) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Close stops the worker after the job in progress. Jobs still queued
// resolve with ErrClosed.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.stopped
		return
	}
	s.closed = true
	close(s.quit)
	s.mu.Unlock()
	<-s.stopped

	s.mu.Lock()
	pending := s.queue
	s.queue = nil
	s.mu.Unlock()
	for _, j := range pending {
		s.resolve(j, Outcome{}, ErrClosed)
	}
}

func (s *Scheduler) loop() {
	defer close(s.stopped)
	for {
		j := s.dequeue()
		if j == nil {
			select {
			case <-s.wake:
				continue
			case <-s.quit:
				return
			}
		}

		if !s.process(j) {
			continue
		}

		s.mu.Lock()
		d := s.delay
		s.mu.Unlock()
		if !s.cfg.Sleep(d, s.quit) {
			return
		}
	}
}

func (s *Scheduler) dequeue() *job {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.quit:
		return nil
	default:
	}
	if len(s.queue) == 0 {
		return nil
	}
	j := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	s.cfg.Metrics.setQueueDepth(len(s.queue))
	return j
}

// process runs one job and reports whether the worker should pause before
// the next one.
func (s *Scheduler) process(j *job) bool {
	s.mu.Lock()
	blocked := s.blocked
	s.mu.Unlock()
	if blocked {
		s.cfg.Metrics.observe(outcomeShortCircuit)
		s.resolve(j, Outcome{Kind: Blocked}, nil)
		return false
	}

	if body, ok := s.docs.Get(j.url); ok && !j.fresh {
		s.log.Debugf("Document cache hit for %s", j.url)
		s.cfg.Metrics.observe(outcomeCacheHit)
		s.resetDelay()
		s.resolve(j, Outcome{Kind: HTML, Body: body}, nil)
		return true
	}

	s.log.Debugf("Fetching %s", j.url)
	res, err := whttp.SendHTTPRequest(context.Background(), s.request(j.url), s.cfg.Client)
	switch {
	case err != nil:
		s.cfg.Metrics.observe(outcomeError)
		s.backoff()
		s.log.Warnf("Fetch %s failed: %v", j.url, err)
		s.resolve(j, Outcome{}, &FetchError{URL: j.url, Err: err})
	case res.StatusCode == http.StatusForbidden || res.StatusCode == http.StatusTooManyRequests:
		s.cfg.Metrics.observe(outcomeBlocked)
		s.MarkBlocked(fmt.Sprintf("fetch_%d", res.StatusCode))
		s.resolve(j, Outcome{Kind: Blocked}, nil)
	case !res.OK():
		s.cfg.Metrics.observe(outcomeError)
		s.backoff()
		s.log.Warnf("Fetch %s returned HTTP %d", j.url, res.StatusCode)
		s.resolve(j, Outcome{}, &FetchError{URL: j.url, Status: res.StatusCode})
	default:
		s.cfg.Metrics.observe(outcomeHTML)
		if !j.fresh {
			s.docs.Put(j.url, res.BodyString)
		}
		s.resetDelay()
		s.resolve(j, Outcome{Kind: HTML, Body: res.BodyString}, nil)
	}
	return true
}

func (s *Scheduler) request(url string) *whttp.WHTTPReq {
	req := &whttp.WHTTPReq{URL: url, Referer: s.cfg.Referer}
	if s.cfg.Cookie != "" {
		req.Headers = append(req.Headers, whttp.WHTTPHeader{Name: "Cookie", Value: s.cfg.Cookie})
	}
	req.Headers = append(req.Headers, s.cfg.Headers...)
	return req
}

func (s *Scheduler) resolve(j *job, out Outcome, err error) {
	s.mu.Lock()
	if s.inflight[j.key] == j {
		delete(s.inflight, j.key)
	}
	s.mu.Unlock()
	j.outcome = out
	j.err = err
	close(j.done)
}

func (s *Scheduler) resetDelay() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = s.cfg.Jitter(s.cfg.MinDelay, s.cfg.MaxDelay)
	s.errorDelay = s.cfg.ErrorDelay
	s.cfg.Metrics.setDelay(s.delay)
}

func (s *Scheduler) backoff() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errorDelay > s.delay {
		s.delay = s.errorDelay
	}
	next := time.Duration(math.Round(float64(s.errorDelay) * s.cfg.Multiplier)).Round(time.Millisecond)
	if next > s.cfg.MaxErrorDelay {
		next = s.cfg.MaxErrorDelay
	}
	s.errorDelay = next
	s.cfg.Metrics.setDelay(s.delay)
	s.log.Debugf("Backing off: next pause %s, next error pause %s", s.delay, s.errorDelay)
}

// waiters reports how many callers share the in-flight job for url.
func (s *Scheduler) waiters(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.inflight[url]; ok {
		return j.waiters
	}
	return 0
}

func randomDelay(min, max time.Duration) time.Duration {
	span := int64((max - min) / time.Millisecond)
	if span <= 0 {
		return min
	}
	return min + time.Duration(rand.Int63n(span+1))*time.Millisecond
}

func sleep(d time.Duration, quit <-chan struct{}) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-quit:
		return false
	}
}

// Pass limits how many new network fetches one orchestration pass may
// start.
type Pass struct {
	s         *Scheduler
	mu        sync.Mutex
	remaining int
}

// NewPass returns a budget of max fetches, DefaultMaxPerPass if max <= 0.
func (s *Scheduler) NewPass(max int) *Pass {
	if max <= 0 {
		max = DefaultMaxPerPass
	}
	return &Pass{s: s, remaining: max}
}

// TryAcquire takes one fetch from the budget. It fails once the budget is
// spent or the scheduler is blocked.
func (p *Pass) TryAcquire() bool {
	if blocked, _ := p.s.Blocked(); blocked {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.remaining <= 0 {
		return false
	}
	p.remaining--
	return true
}

// Remaining returns the unspent budget.
func (p *Pass) Remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remaining
}
