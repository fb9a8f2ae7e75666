package estimator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/mmstats/mmstats/internal/scoring"
)

func scenario() scoring.RawScores {
	return scoring.RawScores{
		Competitors: []string{"A", "B", "C"},
		Scores:      [][]float64{{10, 0}, {5, 5}, {0, 20}},
	}
}

func seeded(o Options, seed uint64) Options {
	o.Seed = &seed
	return o
}

func TestRunRankMode(t *testing.T) {
	opts := DefaultOptions()
	opts.Mode = ModeRank
	opts.Policy = scoring.PolicyRaw

	est, err := Run(context.Background(), scenario(), opts)
	require.NoError(t, err)
	require.NotNil(t, est.Ranking)
	assert.Nil(t, est.Probabilities)
	assert.Nil(t, est.ProbabilityRows())

	names := make([]string, 0, 3)
	for _, e := range est.Ranking.Entries {
		names = append(names, e.Competitor)
	}
	assert.Equal(t, []string{"C", "A", "B"}, names)
}

func TestRunSimulateMode(t *testing.T) {
	opts := seeded(DefaultOptions(), 5)
	opts.Simulations = 2000

	est, err := Run(context.Background(), scenario(), opts)
	require.NoError(t, err)
	require.NotNil(t, est.Probabilities)
	assert.Nil(t, est.Ranking)
	assert.Equal(t, 2000, est.Trials)

	rows := est.ProbabilityRows()
	require.Len(t, rows, 3)
	for _, row := range rows {
		require.Len(t, row, 3)
		sum := 0.0
		for _, p := range row {
			assert.GreaterOrEqual(t, p, 0.0)
			assert.LessOrEqual(t, p, 1.0)
			sum += p
		}
		assert.InDelta(t, 1.0, sum, 1e-9)
	}

	assert.Equal(t, 3, est.Options.Limit)
	assert.Equal(t, 3, est.Options.Show)
	assert.Equal(t, 3, est.Options.Places)
	assert.Equal(t, 2, est.Options.TestsPerTrial)
}

func TestRunProgressDoesNotChangeResult(t *testing.T) {
	base := seeded(DefaultOptions(), 99)
	base.Workers = 2

	quiet, err := Run(context.Background(), scenario(), base)
	require.NoError(t, err)

	calls := 0
	withProgress := base
	withProgress.Progress = func(int, int) { calls++ }
	loud, err := Run(context.Background(), scenario(), withProgress)
	require.NoError(t, err)

	assert.Positive(t, calls)
	assert.True(t, mat.Equal(quiet.Probabilities, loud.Probabilities))
}

func TestRunLimitTruncates(t *testing.T) {
	opts := DefaultOptions()
	opts.Limit = 2
	opts.Mode = ModeRank
	opts.Policy = scoring.PolicyRaw

	est, err := Run(context.Background(), scenario(), opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, est.Competitors)
	assert.Len(t, est.Ranking.Entries, 2)
}

func TestRunConfigurationErrors(t *testing.T) {
	cases := []struct {
		name  string
		field string
		mut   func(*Options)
	}{
		{"show above limit", "show", func(o *Options) { o.Limit = 2; o.Show = 3 }},
		{"places above limit", "places", func(o *Options) { o.Limit = 2; o.Places = 3 }},
		{"limit above available", "limit", func(o *Options) { o.Limit = 4 }},
		{"tests per trial above available", "tests_per_trial", func(o *Options) { o.TestsPerTrial = 3 }},
		{"negative simulations", "simulations", func(o *Options) { o.Simulations = -1 }},
		{"negative workers", "workers", func(o *Options) { o.Workers = -2 }},
		{"unknown mode", "mode", func(o *Options) { o.Mode = Mode(9) }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			opts := DefaultOptions()
			tc.mut(&opts)

			_, err := Run(context.Background(), scenario(), opts)
			var cfgErr *ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tc.field, cfgErr.Field)
			assert.True(t, IsInputError(err))
		})
	}
}

func TestRunUnknownPolicy(t *testing.T) {
	opts := DefaultOptions()
	opts.Policy = scoring.Policy(77)

	_, err := Run(context.Background(), scenario(), opts)
	var unknown *scoring.UnknownPolicyError
	require.ErrorAs(t, err, &unknown)
	assert.True(t, IsInputError(err))
}

func TestRunNoData(t *testing.T) {
	_, err := Run(context.Background(), scoring.RawScores{}, DefaultOptions())
	var noData *NoDataError
	require.ErrorAs(t, err, &noData)

	_, err = Run(context.Background(), scoring.RawScores{
		Competitors: []string{"A"},
		Scores:      [][]float64{{}},
	}, DefaultOptions())
	require.ErrorAs(t, err, &noData)
	assert.True(t, IsInputError(err))
}

func TestRunMalformedScores(t *testing.T) {
	limited := DefaultOptions()
	limited.Limit = 2

	cases := map[string]struct {
		raw  scoring.RawScores
		opts Options
	}{
		"ragged row": {
			raw:  scoring.RawScores{Competitors: []string{"A", "B"}, Scores: [][]float64{{1, 2}, {3}}},
			opts: DefaultOptions(),
		},
		"fewer rows than competitors": {
			raw:  scoring.RawScores{Competitors: []string{"A", "B", "C"}, Scores: [][]float64{{1}}},
			opts: limited,
		},
		"more rows than competitors": {
			raw:  scoring.RawScores{Competitors: []string{"A"}, Scores: [][]float64{{1}, {2}, {3}}},
			opts: DefaultOptions(),
		},
		"duplicate competitor": {
			raw:  scoring.RawScores{Competitors: []string{"A", "A"}, Scores: [][]float64{{1}, {2}}},
			opts: DefaultOptions(),
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			var est *Estimate
			var err error
			require.NotPanics(t, func() {
				est, err = Run(context.Background(), tc.raw, tc.opts)
			})
			assert.Nil(t, est)
			assert.ErrorIs(t, err, scoring.ErrMalformed)
			assert.True(t, IsInputError(err))
		})
	}
}

func TestRunCancelledReturnsPartial(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	est, err := Run(ctx, scenario(), DefaultOptions())
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, est)
	assert.Zero(t, est.Trials)
	assert.False(t, IsInputError(err))
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("Rank")
	require.NoError(t, err)
	assert.Equal(t, ModeRank, m)

	_, err = ParseMode("fast")
	var cfgErr *ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)

	var parsed Mode
	require.NoError(t, parsed.UnmarshalText([]byte("simulate")))
	assert.Equal(t, ModeSimulate, parsed)
}
