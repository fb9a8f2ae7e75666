// Package ranking produces a single deterministic ranking from summed
// normalized scores, without resampling.
package ranking

import (
	"sort"

	"github.com/samber/lo"

	"github.com/mmstats/mmstats/internal/scoring"
)

// Entry is one row of a ranking. Place is 1-based.
type Entry struct {
	Place      int     `json:"place"`
	Competitor string  `json:"competitor"`
	Index      int     `json:"index"`
	Score      float64 `json:"score"`
}

type Result struct {
	Entries []Entry `json:"entries"`
}

// Aggregate sums each competitor's normalized scores over all test cases and
// orders competitors by that total, highest first. Equal totals keep the
// original competitor order, so places are always distinct.
func Aggregate(norm *scoring.Normalized, competitors []string) Result {
	sums := norm.SumByCompetitor()

	entries := lo.Map(sums, func(sum float64, i int) Entry {
		return Entry{Competitor: competitors[i], Index: i, Score: sum}
	})
	sort.SliceStable(entries, func(a, b int) bool {
		return entries[a].Score > entries[b].Score
	})
	for i := range entries {
		entries[i].Place = i + 1
	}

	return Result{Entries: entries}
}

// Order returns the competitor indices from first to last place.
func (r Result) Order() []int {
	return lo.Map(r.Entries, func(e Entry, _ int) int { return e.Index })
}
