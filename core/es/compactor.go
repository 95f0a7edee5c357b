package es

import (
	"context"
	"log/slog"
	"time"
)

type (
	compactorOptions struct {
		log       *slog.Logger
		threshold int
		interval  time.Duration
	}

	// CompactorOption configures a Compactor.
	CompactorOption interface {
		applyToCompactor(*compactorOptions)
	}

	ThresholdOption valueOption[int]
	IntervalOption  valueOption[time.Duration]
)

// WithThreshold compacts once n events follow the most recent snapshot.
func WithThreshold(n int) ThresholdOption { return ThresholdOption{v: n} }

// WithInterval compacts every d if anything was written since the last
// snapshot.
func WithInterval(d time.Duration) IntervalOption { return IntervalOption{v: d} }

func (o ThresholdOption) applyToCompactor(c *compactorOptions) { c.threshold = o.v }
func (o IntervalOption) applyToCompactor(c *compactorOptions)  { c.interval = o.v }
func (o LogOption) applyToCompactor(c *compactorOptions) {
	if o.v != nil {
		c.log = o.v
	}
}

// Compactor decides when an engine takes snapshots. Without options it is
// purely explicit: nothing happens until Trigger is called.
type Compactor[S any] struct {
	engine    *Engine[S]
	log       *slog.Logger
	threshold int
	interval  time.Duration
	kick      chan struct{}
}

func NewCompactor[S any](engine *Engine[S], opts ...CompactorOption) *Compactor[S] {
	options := compactorOptions{log: engine.log}
	for _, opt := range opts {
		opt.applyToCompactor(&options)
	}
	return &Compactor[S]{
		engine:    engine,
		log:       options.log.With(slog.String("component", "compactor")),
		threshold: options.threshold,
		interval:  options.interval,
		kick:      make(chan struct{}, 1),
	}
}

// Trigger takes a snapshot now.
func (c *Compactor[S]) Trigger(ctx context.Context) error {
	return c.engine.TakeSnapshot(ctx)
}

// MaybeCompact takes a snapshot if the threshold policy is configured and
// reached. It reports whether a snapshot was taken.
func (c *Compactor[S]) MaybeCompact(ctx context.Context) (bool, error) {
	if c.threshold <= 0 {
		return false, nil
	}
	n, err := c.engine.EventsSinceSnapshot()
	if err != nil {
		return false, err
	}
	if n < c.threshold {
		return false, nil
	}
	if err := c.engine.TakeSnapshot(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Run applies the configured policies until ctx is done. Threshold checks
// run after every write, interval checks on a ticker. Failures are logged
// and retried only by the next policy check.
func (c *Compactor[S]) Run(ctx context.Context) {
	unsubscribe := c.engine.Subscribe(func() {
		select {
		case c.kick <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	var tick <-chan time.Time
	if c.interval > 0 {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	c.log.Debug("compactor started", slog.Int("threshold", c.threshold), slog.Duration("interval", c.interval))

	for {
		select {
		case <-ctx.Done():
			c.log.Debug("compactor stopped")
			return
		case <-c.kick:
			if _, err := c.MaybeCompact(ctx); err != nil {
				c.log.Error("threshold compaction failed", slog.Any("error", err))
			}
		case <-tick:
			n, err := c.engine.EventsSinceSnapshot()
			if err != nil || n == 0 {
				continue
			}
			if err := c.engine.TakeSnapshot(ctx); err != nil {
				c.log.Error("interval compaction failed", slog.Any("error", err))
			}
		}
	}
}
