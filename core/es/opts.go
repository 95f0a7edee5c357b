package es

import (
	"log/slog"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

type (
	engineOptions struct {
		name    string
		log     *slog.Logger
		metrics Metrics
		now     func() time.Time
		newID   func() string
	}

	// Option configures an Engine.
	Option interface {
		applyToEngine(*engineOptions)
	}
)

func newEngineOptions(opts ...Option) engineOptions {
	options := engineOptions{
		name:    "default",
		log:     slog.Default(),
		metrics: NopMetrics(),
		now:     time.Now,
		newID:   func() string { return gonanoid.Must() },
	}
	for _, opt := range opts {
		opt.applyToEngine(&options)
	}
	return options
}

// === options ===

type (
	valueOption[T any] struct{ v T }
	NameOption         valueOption[string]
	LogOption          valueOption[*slog.Logger]
	MetricsOption      valueOption[Metrics]
	ClockOption        valueOption[func() time.Time]
	IDGeneratorOption  valueOption[func() string]
)

// WithName names the engine in logs and metrics.
func WithName(name string) NameOption { return NameOption{v: name} }

// WithLog sets the logger for engines and compactors.
func WithLog(l *slog.Logger) LogOption { return LogOption{v: l} }

// WithMetrics sets the metrics implementation for engines and compactors.
func WithMetrics(m Metrics) MetricsOption { return MetricsOption{v: m} }

// WithClock sets the time source used to date snapshot events.
func WithClock(now func() time.Time) ClockOption { return ClockOption{v: now} }

// WithIDGenerator sets the identifier source used for snapshot events.
func WithIDGenerator(newID func() string) IDGeneratorOption { return IDGeneratorOption{v: newID} }

func (o NameOption) applyToEngine(e *engineOptions) {
	if o.v != "" {
		e.name = o.v
	}
}
func (o LogOption) applyToEngine(e *engineOptions) {
	if o.v != nil {
		e.log = o.v
	}
}
func (o MetricsOption) applyToEngine(e *engineOptions) {
	if o.v != nil {
		e.metrics = o.v
	}
}
func (o ClockOption) applyToEngine(e *engineOptions) {
	if o.v != nil {
		e.now = o.v
	}
}
func (o IDGeneratorOption) applyToEngine(e *engineOptions) {
	if o.v != nil {
		e.newID = o.v
	}
}
