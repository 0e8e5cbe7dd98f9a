package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	DefaultWatchInterval = 5 * time.Minute
	DefaultDebounce      = 600 * time.Millisecond
)

// WatchConfig controls continuous mode.
type WatchConfig struct {
	// Schedule is a cron expression. When empty, passes run every
	// Interval.
	Schedule string
	Interval time.Duration
	// Trigger requests an extra pass, e.g. after the listing changed.
	// Bursts are debounced.
	Trigger  <-chan struct{}
	Debounce time.Duration
}

func (c WatchConfig) spec() string {
	if c.Schedule != "" {
		return c.Schedule
	}
	interval := c.Interval
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	return "@every " + interval.String()
}

// Watch runs job once right away and then on every schedule tick and
// debounced trigger until ctx is done. Passes never overlap: a request
// that arrives while one runs queues exactly one rerun. Job errors are
// logged and do not stop the loop.
func (r *Runner) Watch(ctx context.Context, cfg WatchConfig, job func(context.Context) error) error {
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	co := &coalescer{run: func() {
		if err := job(ctx); err != nil && ctx.Err() == nil {
			r.log.Warnf("Pass failed: %v", err)
		}
	}}

	c := cron.New()
	if _, err := c.AddFunc(cfg.spec(), co.request); err != nil {
		return fmt.Errorf("invalid watch schedule %q: %w", cfg.spec(), err)
	}
	c.Start()
	r.log.Infof("Watching on schedule %q", cfg.spec())

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
		<-c.Stop().Done()
		co.stop()
	}()

	co.request()
	trigger := cfg.Trigger
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-trigger:
			if !ok {
				trigger = nil
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, co.request)
		}
	}
}

// coalescer runs at most one pass at a time and folds any number of
// requests made during a pass into a single rerun.
type coalescer struct {
	run func()

	mu      sync.Mutex
	running bool
	queued  bool
	stopped bool
	wg      sync.WaitGroup
}

func (c *coalescer) request() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	if c.running {
		c.queued = true
		return
	}
	c.running = true
	c.wg.Add(1)
	go c.loop()
}

func (c *coalescer) loop() {
	defer c.wg.Done()
	for {
		c.run()

		c.mu.Lock()
		if !c.queued || c.stopped {
			c.running, c.queued = false, false
			c.mu.Unlock()
			return
		}
		c.queued = false
		c.mu.Unlock()
	}
}

// stop rejects further requests and waits for the current pass.
func (c *coalescer) stop() {
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()
	c.wg.Wait()
}
