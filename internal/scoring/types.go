package scoring

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

var (
	ErrNoCompetitors = errors.New("no competitors")
	ErrNoTestCases   = errors.New("no test cases")
	ErrMalformed     = errors.New("malformed score matrix")

	// ErrDegenerateTestCase marks a test case on which no competitor has a
	// positive score. It is recovered by zero filling and never returned.
	ErrDegenerateTestCase = errors.New("degenerate test case: no positive score")
)

// RawScores holds raw per-test scores: Scores[competitor][test].
// A score <= 0 means no valid submission for that test.
type RawScores struct {
	Competitors []string    `json:"competitors"`
	Scores      [][]float64 `json:"scores"`
}

// NumCompetitors returns the number of competitors.
func (r RawScores) NumCompetitors() int { return len(r.Competitors) }

// NumTests returns the shared test case count, or 0 when there are no competitors.
func (r RawScores) NumTests() int {
	if len(r.Scores) == 0 {
		return 0
	}
	return len(r.Scores[0])
}

// Validate checks the matrix shape and competitor ids.
func (r RawScores) Validate() error {
	if len(r.Competitors) == 0 {
		return ErrNoCompetitors
	}
	if len(r.Scores) != len(r.Competitors) {
		return fmt.Errorf("%w: got %d score rows for %d competitors", ErrMalformed, len(r.Scores), len(r.Competitors))
	}
	tests := len(r.Scores[0])
	if tests == 0 {
		return ErrNoTestCases
	}

	seen := make(map[string]struct{}, len(r.Competitors))
	for i, id := range r.Competitors {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: duplicate competitor %q", ErrMalformed, id)
		}
		seen[id] = struct{}{}

		if len(r.Scores[i]) != tests {
			return fmt.Errorf("%w: competitor %q has %d test cases, expected %d", ErrMalformed, id, len(r.Scores[i]), tests)
		}
	}
	return nil
}

// Truncate keeps the first n competitors in their original order. On a
// malformed matrix it never slices past the shorter of the two lists.
func (r RawScores) Truncate(n int) RawScores {
	if n >= len(r.Competitors) && n >= len(r.Scores) {
		return r
	}
	n = max(n, 0)
	return RawScores{
		Competitors: r.Competitors[:min(n, len(r.Competitors))],
		Scores:      r.Scores[:min(n, len(r.Scores))],
	}
}

// Normalized is a test-major matrix of normalized scores: row t holds the
// per-competitor values for test case t. It is never mutated after Normalize
// returns, so it can be shared by concurrent readers.
type Normalized struct {
	Policy Policy
	Values *mat.Dense // T x N
}

// Dims returns the number of test cases and competitors.
func (n *Normalized) Dims() (tests, competitors int) {
	return n.Values.Dims()
}

// Test returns the per-competitor values for test case t without copying.
func (n *Normalized) Test(t int) []float64 {
	return n.Values.RawRowView(t)
}

// Competitor returns a copy of competitor j's values across all test cases.
func (n *Normalized) Competitor(j int) []float64 {
	return mat.Col(nil, j, n.Values)
}
