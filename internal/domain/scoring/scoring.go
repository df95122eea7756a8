// Package scoring picks the value a score submission is ranked by.
package scoring

import (
	"context"
	"fmt"

	"github.com/okian/lets/internal/domain/leaderboard"
)

// Metric names what a leaderboard ranks by.
type Metric string

// Supported metrics.
const (
	MetricPP    Metric = "pp"
	MetricScore Metric = "score"
)

// Valid reports whether m is supported.
func (m Metric) Valid() bool { return m == MetricPP || m == MetricScore }

// Option applies a configuration option to the Selector.
type Option func(*Selector)

// WithMetric sets the metric used for mode.
func WithMetric(mode leaderboard.Mode, m Metric) Option {
	return func(s *Selector) {
		if mode.Valid() && m.Valid() {
			s.metrics[mode] = m
		}
	}
}

// WithMetricsFromConfig reads a mode name to metric name map. Unknown modes
// and metrics are ignored.
func WithMetricsFromConfig(cfg map[string]string) Option {
	return func(s *Selector) {
		for name, metric := range cfg {
			mode, err := leaderboard.ParseMode(name)
			if err != nil {
				continue
			}
			if m := Metric(metric); m.Valid() {
				s.metrics[mode] = m
			}
		}
	}
}

// Input abstracts the submission fields needed for ranking.
type Input struct {
	UserID      int64
	Mode        leaderboard.Mode
	PP          float64
	RankedScore int64
}

// Result is the user's new ranking value.
type Result struct {
	UserID int64
	Score  float64
}

// Scorer turns a submission into a ranking value.
type Scorer interface {
	// Score computes a ranking value, honoring ctx for cancellation.
	Score(ctx context.Context, in Input) (Result, error)
}

// Selector implements Scorer by choosing pp or ranked score per mode.
type Selector struct {
	metrics map[leaderboard.Mode]Metric
}

// NewSelector ranks every mode by pp unless configured otherwise.
func NewSelector(opts ...Option) *Selector {
	s := &Selector{metrics: make(map[leaderboard.Mode]Metric, len(leaderboard.Modes()))}
	for _, m := range leaderboard.Modes() {
		s.metrics[m] = MetricPP
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MetricFor returns the metric configured for mode.
func (s *Selector) MetricFor(mode leaderboard.Mode) Metric {
	return s.metrics[mode]
}

// Value returns pp or rankedScore depending on the metric of mode.
func (s *Selector) Value(mode leaderboard.Mode, pp float64, rankedScore int64) float64 {
	if s.metrics[mode] == MetricScore {
		return float64(rankedScore)
	}
	return pp
}

// Score implements Scorer.
func (s *Selector) Score(ctx context.Context, in Input) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("context cancelled: %w", err)
	}
	if !in.Mode.Valid() {
		return Result{}, fmt.Errorf("%w: mode %d", leaderboard.ErrInvalidArgument, int(in.Mode))
	}
	return Result{UserID: in.UserID, Score: s.Value(in.Mode, in.PP, in.RankedScore)}, nil
}
