// Package estimator wires score normalization to either the resampling
// simulator or the deterministic ranking and returns a result ready for
// rendering.
package estimator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"

	"github.com/mmstats/mmstats/internal/metrics"
	"github.com/mmstats/mmstats/internal/ranking"
	"github.com/mmstats/mmstats/internal/scoring"
	"github.com/mmstats/mmstats/internal/simulation"
)

// Estimate is the outcome of one run. Probabilities is set in simulate mode,
// Ranking in rank mode.
type Estimate struct {
	Options     Options
	Competitors []string
	Normalized  *scoring.Normalized

	Probabilities *mat.Dense // [competitor][place]
	Trials        int        // completed trials
	Ranking       *ranking.Result
}

// ProbabilityRows returns the probability matrix as nested slices, or nil in
// rank mode.
func (e *Estimate) ProbabilityRows() [][]float64 {
	if e.Probabilities == nil {
		return nil
	}
	n, _ := e.Probabilities.Dims()
	rows := make([][]float64, n)
	for i := range n {
		rows[i] = mat.Row(nil, i, e.Probabilities)
	}
	return rows
}

// Run validates opts against raw, normalizes the scores of the first
// opts.Limit competitors and produces either a placement probability matrix
// or a ranking.
//
// Configuration and data errors are returned before any simulation work. If
// ctx is cancelled mid-simulation the partial estimate is returned together
// with ctx.Err().
func Run(ctx context.Context, raw scoring.RawScores, opts Options) (*Estimate, error) {
	if err := raw.Validate(); err != nil {
		switch {
		case errors.Is(err, scoring.ErrNoCompetitors):
			return nil, &NoDataError{Reason: "empty competitor list"}
		case errors.Is(err, scoring.ErrNoTestCases):
			return nil, &NoDataError{Reason: "empty test case list"}
		}
		return nil, fmt.Errorf("estimate: %w", err)
	}

	resolved, err := opts.Resolve(raw.NumCompetitors(), raw.NumTests())
	if err != nil {
		return nil, err
	}

	subset := raw.Truncate(resolved.Limit)
	norm, err := scoring.Normalize(subset, resolved.Policy)
	if err != nil {
		return nil, fmt.Errorf("estimate: %w", err)
	}

	est := &Estimate{
		Options:     resolved,
		Competitors: subset.Competitors,
		Normalized:  norm,
	}

	mode := resolved.Mode.String()
	start := time.Now()
	defer func() {
		metrics.EstimateDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	}()

	log.Debug().Str("mode", mode).Str("policy", resolved.Policy.String()).
		Int("competitors", resolved.Limit).Int("tests", raw.NumTests()).Msg("estimating placements")

	switch resolved.Mode {
	case ModeRank:
		res := ranking.Aggregate(norm, subset.Competitors)
		est.Ranking = &res
	case ModeSimulate:
		sim := simulation.New(simulatorOptions(resolved)...)
		res, err := sim.Run(ctx, norm, resolved.Simulations)
		if res != nil {
			est.Probabilities = res.Probabilities()
			est.Trials = res.Completed
			metrics.TrialsTotal.Add(float64(res.Completed))
		}
		if err != nil {
			metrics.EstimatesTotal.WithLabelValues(mode, "error").Inc()
			if res == nil {
				return nil, fmt.Errorf("estimate: %w", err)
			}
			return est, err
		}
	}

	metrics.EstimatesTotal.WithLabelValues(mode, "ok").Inc()
	return est, nil
}

func simulatorOptions(o Options) []simulation.Option {
	opts := []simulation.Option{
		simulation.WithWorkers(o.Workers),
		simulation.WithTestsPerTrial(o.TestsPerTrial),
	}
	if o.Seed != nil {
		opts = append(opts, simulation.WithSeed(*o.Seed))
	}
	if o.Progress != nil {
		opts = append(opts, simulation.WithProgress(o.Progress, 100))
	}
	return opts
}
