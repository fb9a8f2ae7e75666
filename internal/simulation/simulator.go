// Package simulation estimates placement probabilities by resampling test
// cases with replacement and ranking competitors on each resampled set.
//
// Trials are independent: every shard owns its random source and its count
// matrix, and shards are reduced by element-wise addition once they finish.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"lukechampine.com/frand"

	"github.com/mmstats/mmstats/internal/scoring"
)

// ProgressFunc receives the number of completed trials out of total.
// Calls are serialized by the simulator.
type ProgressFunc func(completed, total int)

// Simulator runs resampling trials over a normalized score matrix.
type Simulator struct {
	workers       int
	seed          uint64
	seeded        bool
	testsPerTrial int
	progress      ProgressFunc
	progressSteps int
}

type Option func(*Simulator)

// WithWorkers sets the number of shards run concurrently. Values < 1 mean
// runtime.NumCPU().
func WithWorkers(n int) Option {
	return func(s *Simulator) {
		s.workers = n
	}
}

// WithSeed makes runs reproducible for a fixed seed and worker count.
func WithSeed(seed uint64) Option {
	return func(s *Simulator) {
		s.seed = seed
		s.seeded = true
	}
}

// WithTestsPerTrial sets how many test cases each trial draws. Zero means
// one draw per original test case.
func WithTestsPerTrial(n int) Option {
	return func(s *Simulator) {
		s.testsPerTrial = n
	}
}

// WithProgress registers a callback invoked roughly steps times per run.
func WithProgress(fn ProgressFunc, steps int) Option {
	return func(s *Simulator) {
		s.progress = fn
		s.progressSteps = steps
	}
}

func New(opts ...Option) *Simulator {
	s := &Simulator{progressSteps: 100}
	for _, opt := range opts {
		opt(s)
	}
	if s.workers < 1 {
		s.workers = runtime.NumCPU()
	}
	if s.progressSteps < 1 {
		s.progressSteps = 1
	}
	return s
}

// Result holds the merged placement counts of a run.
type Result struct {
	Counts    *Counts
	Trials    int // requested
	Completed int
}

// Probabilities returns the placement probability matrix [competitor][place].
func (r *Result) Probabilities() *mat.Dense {
	return r.Counts.Probabilities(r.Completed)
}

// source is the minimal random interface a shard draws indices from.
type source interface {
	Intn(n int) int
}

type pcgSource struct {
	r *rand.Rand
}

func (p pcgSource) Intn(n int) int { return p.r.IntN(n) }

func (s *Simulator) newSource(shard int) source {
	if s.seeded {
		return pcgSource{r: rand.New(rand.NewPCG(s.seed, uint64(shard)))}
	}
	return frand.New()
}

// Run performs trials resampling trials over norm.
//
// Each trial draws testsPerTrial test indices uniformly with replacement,
// sums every competitor's normalized score over the draw and orders
// competitors by that sum, highest first. Equal sums are won by the
// competitor with the lower original index.
//
// If ctx is cancelled the run stops between trials; the returned Result holds
// every completed trial and the error is ctx.Err().
func (s *Simulator) Run(ctx context.Context, norm *scoring.Normalized, trials int) (*Result, error) {
	logger := zerolog.Ctx(ctx)

	tests, competitors := norm.Dims()
	draws := s.testsPerTrial
	if draws == 0 {
		draws = tests
	}
	if trials < 1 {
		return nil, fmt.Errorf("simulate: trials must be >= 1, got %d", trials)
	}
	if draws < 1 || draws > tests {
		return nil, fmt.Errorf("simulate: tests per trial must be in [1, %d], got %d", tests, draws)
	}

	shards := min(s.workers, trials)
	partials := make([]*Counts, shards)
	completed := make([]int, shards)

	var done atomic.Int64
	var progressMu sync.Mutex
	var reported int64 // high-water mark, guarded by progressMu
	interval := int64(max(1, trials/s.progressSteps))
	report := func(n int64) {
		if s.progress == nil || (n%interval != 0 && n != int64(trials)) {
			return
		}
		progressMu.Lock()
		defer progressMu.Unlock()
		// shards race between Add and Lock; never report going backwards
		if n <= reported {
			return
		}
		reported = n
		s.progress(int(n), trials)
	}

	start := time.Now()
	logger.Debug().Int("trials", trials).Int("shards", shards).Int("tests", tests).
		Int("tests_per_trial", draws).Int("competitors", competitors).Msg("simulation starting")

	g, gctx := errgroup.WithContext(ctx)
	for shard := range shards {
		quota := trials / shards
		if shard < trials%shards {
			quota++
		}
		partials[shard] = NewCounts(competitors)

		g.Go(func() error {
			t := newTrial(norm, draws, s.newSource(shard))
			counts := partials[shard]
			for i := range quota {
				if err := gctx.Err(); err != nil {
					return err
				}
				t.run(counts)
				completed[shard] = i + 1
				report(done.Add(1))
			}
			return nil
		})
	}

	err := g.Wait()

	merged := NewCounts(competitors)
	total := 0
	for shard, partial := range partials {
		if mergeErr := merged.Merge(partial); mergeErr != nil {
			return nil, mergeErr
		}
		total += completed[shard]
	}

	res := &Result{Counts: merged, Trials: trials, Completed: total}
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			logger.Info().Int("completed", total).Int("trials", trials).Msg("simulation interrupted")
		}
		return res, err
	}

	logger.Debug().Int("trials", total).Dur("elapsed", time.Since(start)).Msg("simulation finished")
	return res, nil
}

// trial holds the per-shard scratch buffers reused across trials.
type trial struct {
	norm  *scoring.Normalized
	draws int
	tests int
	rng   source
	sums  []float64
	order []int
}

func newTrial(norm *scoring.Normalized, draws int, rng source) *trial {
	tests, competitors := norm.Dims()
	return &trial{
		norm:  norm,
		draws: draws,
		tests: tests,
		rng:   rng,
		sums:  make([]float64, competitors),
		order: make([]int, competitors),
	}
}

func (t *trial) run(counts *Counts) {
	for j := range t.sums {
		t.sums[j] = 0
		t.order[j] = j
	}
	for range t.draws {
		floats.Add(t.sums, t.norm.Test(t.rng.Intn(t.tests)))
	}

	sums := t.sums
	slices.SortStableFunc(t.order, func(a, b int) int {
		switch {
		case sums[a] > sums[b]:
			return -1
		case sums[a] < sums[b]:
			return 1
		}
		return 0
	})

	for place, competitor := range t.order {
		counts.inc(competitor, place)
	}
}
