package server

import (
	"context"

	"github.com/mmstats/mmstats/internal/estimator"
	"github.com/mmstats/mmstats/internal/ranking"
	"github.com/mmstats/mmstats/internal/scoring"
)

const (
	RequestIDHeader = "X-Request-ID"

	requestIDLocal = "request_id"
)

// RoundSource resolves a round id to its raw scores.
type RoundSource interface {
	RoundScores(ctx context.Context, roundID int64, limit int) (scoring.RawScores, error)
}

// StdResponse is the envelope of every JSON response.
type StdResponse[T any] struct {
	Body      T       `json:"body"`
	Error     *string `json:"error,omitempty"`
	RequestID string  `json:"request_id,omitempty"`
}

// EstimateRequest carries raw scores and optional overrides of the server
// defaults.
type EstimateRequest struct {
	Competitors []string          `json:"competitors"`
	Scores      [][]float64       `json:"scores"`
	Options     estimator.Options `json:"options"`
}

type EstimateResponse struct {
	Mode        string   `json:"mode"`
	Policy      string   `json:"policy"`
	Competitors []string `json:"competitors"`
	Show        int      `json:"show"`
	Places      int      `json:"places"`

	// simulate mode
	Trials        int         `json:"trials,omitempty"`
	Probabilities [][]float64 `json:"probabilities,omitempty"` // [competitor][place], Show x Places

	// rank mode
	Ranking []ranking.Entry `json:"ranking,omitempty"`
}

// roundQuery are the query parameters of the round estimate route.
type roundQuery struct {
	Limit         int    `query:"limit"`
	Show          int    `query:"show"`
	Places        int    `query:"places"`
	TestsPerTrial int    `query:"tests_per_trial"`
	Simulations   int    `query:"simulations"`
	Workers       int    `query:"workers"`
	Seed          string `query:"seed"`
	Policy        string `query:"policy"`
	Mode          string `query:"mode"`
}

func newEstimateResponse(est *estimator.Estimate) EstimateResponse {
	o := est.Options
	resp := EstimateResponse{
		Mode:        o.Mode.String(),
		Policy:      o.Policy.String(),
		Competitors: est.Competitors,
		Show:        o.Show,
		Places:      o.Places,
		Trials:      est.Trials,
	}
	if rows := est.ProbabilityRows(); rows != nil {
		resp.Probabilities = make([][]float64, o.Show)
		for i := range o.Show {
			resp.Probabilities[i] = rows[i][:o.Places]
		}
	}
	if est.Ranking != nil {
		resp.Ranking = est.Ranking.Entries
	}
	return resp
}
