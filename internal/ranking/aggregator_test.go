package ranking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmstats/mmstats/internal/scoring"
)

func normalize(t *testing.T, policy scoring.Policy, ids []string, rows ...[]float64) *scoring.Normalized {
	t.Helper()
	norm, err := scoring.Normalize(scoring.RawScores{Competitors: ids, Scores: rows}, policy)
	require.NoError(t, err)
	return norm
}

func TestAggregateRawScenario(t *testing.T) {
	ids := []string{"A", "B", "C"}
	norm := normalize(t, scoring.PolicyRaw, ids, []float64{10, 0}, []float64{5, 5}, []float64{0, 20})

	res := Aggregate(norm, ids)

	assert.Equal(t, []Entry{
		{Place: 1, Competitor: "C", Index: 2, Score: 20},
		{Place: 2, Competitor: "A", Index: 0, Score: 10},
		{Place: 3, Competitor: "B", Index: 1, Score: 10},
	}, res.Entries)
	assert.Equal(t, []int{2, 0, 1}, res.Order())
}

func TestAggregateIsIdempotent(t *testing.T) {
	ids := []string{"p", "q", "r", "s"}
	norm := normalize(t, scoring.PolicyCustomSquaredRatio, ids,
		[]float64{10, 3, 0, 8},
		[]float64{12, 3, 5, 8},
		[]float64{10, -1, 5, 2},
		[]float64{11, 3, 4, 8},
	)

	first := Aggregate(norm, ids)
	second := Aggregate(norm, ids)
	assert.Equal(t, first, second)

	for i, e := range first.Entries {
		assert.Equal(t, i+1, e.Place)
		if i > 0 {
			assert.GreaterOrEqual(t, first.Entries[i-1].Score, e.Score)
		}
	}
}

func TestAggregateSingleCompetitor(t *testing.T) {
	norm := normalize(t, scoring.PolicyRelativeToMax, []string{"solo"}, []float64{4, 0, 9})
	res := Aggregate(norm, []string{"solo"})

	require.Len(t, res.Entries, 1)
	assert.Equal(t, 1, res.Entries[0].Place)
	assert.InDelta(t, 2.0, res.Entries[0].Score, 1e-12)
}
