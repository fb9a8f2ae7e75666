// Package scoring converts raw per-test scores into comparable normalized
// scores using one of several interchangeable policies.
package scoring

import (
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Sentinel stands in for "no positive score" where a minimum is taken, and
// for invalid scores when lower raw values rank better.
const Sentinel = 1e100

// Normalize applies policy to every test case of raw independently and
// returns a test-major matrix of normalized scores.
func Normalize(raw RawScores, policy Policy) (*Normalized, error) {
	if !policy.Valid() {
		return nil, &UnknownPolicyError{Name: policy.String()}
	}
	if err := raw.Validate(); err != nil {
		return nil, fmt.Errorf("normalize: %w", err)
	}

	fn := policyFuncs[policy]
	competitors := raw.NumCompetitors()
	tests := raw.NumTests()

	data := make([]float64, tests*competitors)
	column := make([]float64, competitors)
	degenerate := 0

	for t := range tests {
		for j := range competitors {
			column[j] = validScore(raw.Scores[j][t])
		}

		out := data[t*competitors : (t+1)*competitors]
		if !anyPositive(column) {
			// out stays zero: nobody gets credit for this test
			degenerate++
			log.Trace().Err(ErrDegenerateTestCase).Int("test", t).Msg("zero-filled test case")
			continue
		}

		fn(column, out)
		sanitize(column, out)
	}

	if degenerate > 0 {
		log.Debug().Int("tests", degenerate).Str("policy", policy.String()).
			Msg("test cases without any positive score were zero-filled")
	}

	return &Normalized{
		Policy: policy,
		Values: mat.NewDense(tests, competitors, data),
	}, nil
}

// validScore maps NaN and infinite scores to 0 so every policy treats them
// like a missing submission.
func validScore(s float64) float64 {
	if math.IsNaN(s) || math.IsInf(s, 0) {
		return 0
	}
	return s
}

// sanitize enforces the invariants shared by every policy: no credit for an
// invalid raw score and no NaN or infinite values.
func sanitize(scores, out []float64) {
	for j, v := range out {
		if !(scores[j] > 0) || math.IsInf(scores[j], 0) || math.IsNaN(v) || math.IsInf(v, 0) {
			out[j] = 0
		}
	}
}

func anyPositive(scores []float64) bool {
	for _, s := range scores {
		if s > 0 {
			return true
		}
	}
	return false
}

func maxPositive(scores []float64, fallback float64) float64 {
	best, found := 0.0, false
	for _, s := range scores {
		if s > 0 && (!found || s > best) {
			best, found = s, true
		}
	}
	if !found {
		return fallback
	}
	return best
}

func minPositive(scores []float64, fallback float64) float64 {
	best, found := 0.0, false
	for _, s := range scores {
		if s > 0 && (!found || s < best) {
			best, found = s, true
		}
	}
	if !found {
		return fallback
	}
	return best
}

func normalizeRaw(scores, out []float64) {
	for j, s := range scores {
		out[j] = math.Max(s, 0)
	}
}

func normalizeRelativeToMax(scores, out []float64) {
	best := maxPositive(scores, 1)
	for j, s := range scores {
		if s > 0 {
			out[j] = s / best
		}
	}
}

func normalizeRelativeToMin(scores, out []float64) {
	best := minPositive(scores, Sentinel)
	for j, s := range scores {
		if s > 0 {
			out[j] = best / s
		}
	}
}

func normalizeCustomSquaredRatio(scores, out []float64) {
	best := minPositive(scores, 0)
	if best == 0 {
		return
	}
	for j, s := range scores {
		if s > 0 {
			r := best / s
			out[j] = r * r
		}
	}
}

func normalizeRankDescending(scores, out []float64) {
	fractionalRank(scores, out)
}

func normalizeRankAscending(scores, out []float64) {
	// Negate so that "strictly lower" in fractionalRank means "worse".
	keyed := make([]float64, len(scores))
	for j, s := range scores {
		if s <= 0 {
			s = Sentinel
		}
		keyed[j] = -s
	}
	fractionalRank(keyed, out)
}

// fractionalRank writes, for each entry, the share of other entries it beats:
// (strictly lower + 0.5 * equal excluding self) / (N-1). A lone entry gets 1.
func fractionalRank(keys, out []float64) {
	n := len(keys)
	if n == 1 {
		out[0] = 1
		return
	}

	sorted := make([]float64, n)
	copy(sorted, keys)
	sort.Float64s(sorted)

	denom := float64(n - 1)
	for j, k := range keys {
		lower := sort.SearchFloat64s(sorted, k)
		upper := sort.Search(n, func(i int) bool { return sorted[i] > k })
		equal := upper - lower - 1
		out[j] = (float64(lower) + 0.5*float64(equal)) / denom
	}
}

// SumByCompetitor returns each competitor's total over all test cases.
func (n *Normalized) SumByCompetitor() []float64 {
	_, competitors := n.Dims()
	sums := make([]float64, competitors)
	for j := range competitors {
		sums[j] = floats.Sum(n.Competitor(j))
	}
	return sums
}
