// Package resultsapi retrieves marathon match results from the public
// results feed.
package resultsapi

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/mmstats/mmstats/internal/config"
	"github.com/mmstats/mmstats/internal/metrics"
	"github.com/mmstats/mmstats/internal/scoring"
)

const (
	matchResultsPath      = "/tc"
	individualResultsPath = "/longcontest/stats/"
)

var ErrEmptyRound = errors.New("round has no results")

type ResultsAPIInterface interface {
	FetchMatchResults(ctx context.Context, roundID int64) ([]int64, error)
	FetchIndividualResults(ctx context.Context, roundID, coderID int64) (Individual, error)
	FetchRound(ctx context.Context, roundID int64, limit int, onFetched func(Individual)) (scoring.RawScores, error)
}

var _ ResultsAPIInterface = (*Client)(nil)

// RoundFetcher adapts api to the fetch signature used by the snapshot store.
func RoundFetcher(api ResultsAPIInterface) func(ctx context.Context, roundID int64, limit int) (scoring.RawScores, error) {
	return func(ctx context.Context, roundID int64, limit int) (scoring.RawScores, error) {
		return api.FetchRound(ctx, roundID, limit, nil)
	}
}

// Client is a REST client wrapper for the results feed.
type Client struct {
	cfg     *config.FeedEnvConfig
	client  *resty.Client
	limiter *rate.Limiter
}

// NewClient builds a rate limited client whose transport retries transient
// failures.
func NewClient(cfg *config.FeedEnvConfig) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("feed env configuration cannot be nil")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("feed base url cannot be empty")
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.RetryMax
	retryClient.RetryWaitMin = cfg.RetryWaitMin
	retryClient.RetryWaitMax = cfg.RetryWaitMax
	retryClient.HTTPClient.Timeout = cfg.Timeout
	retryClient.Logger = nil

	client := resty.NewWithClient(retryClient.StandardClient()).
		SetBaseURL(cfg.BaseURL).
		SetHeader("Accept", "application/xml, text/xml").
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal)

	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}

	return &Client{
		cfg:     cfg,
		client:  client,
		limiter: rate.NewLimiter(limit, max(cfg.RateBurst, 1)),
	}, nil
}

func (c *Client) getXML(ctx context.Context, endpoint, path string, params map[string]string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: rate limiter: %w", endpoint, err)
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(path)
	if err != nil {
		metrics.FeedRequestsTotal.WithLabelValues(endpoint, "error").Inc()
		log.Error().Err(err).Str("endpoint", endpoint).Msg("feed request failed")
		return fmt.Errorf("%s: %w", endpoint, err)
	}
	if resp.IsError() {
		metrics.FeedRequestsTotal.WithLabelValues(endpoint, "status_"+strconv.Itoa(resp.StatusCode())).Inc()
		log.Error().Int("status", resp.StatusCode()).Str("endpoint", endpoint).Msg("feed non-2xx")
		return fmt.Errorf("%s status %d: %s", endpoint, resp.StatusCode(), resp.String())
	}

	if err := xml.Unmarshal(resp.Body(), out); err != nil {
		metrics.FeedRequestsTotal.WithLabelValues(endpoint, "decode_error").Inc()
		return fmt.Errorf("%s: decode xml: %w", endpoint, err)
	}
	metrics.FeedRequestsTotal.WithLabelValues(endpoint, "ok").Inc()
	return nil
}

// FetchMatchResults returns the round's coder ids ordered by final place.
func (c *Client) FetchMatchResults(ctx context.Context, roundID int64) ([]int64, error) {
	var feed matchResultsFeed
	err := c.getXML(ctx, "match-results", matchResultsPath, map[string]string{
		"module": "BasicData",
		"c":      "dd_marathon_round_results",
		"rd":     strconv.FormatInt(roundID, 10),
	}, &feed)
	if err != nil {
		return nil, err
	}

	rows := feed.Rows
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Placed != rows[j].Placed {
			return rows[i].Placed < rows[j].Placed
		}
		return rows[i].CoderID < rows[j].CoderID
	})

	ids := make([]int64, len(rows))
	for i, r := range rows {
		ids[i] = r.CoderID
	}
	return ids, nil
}

// FetchIndividualResults returns one coder's handle and system test scores.
func (c *Client) FetchIndividualResults(ctx context.Context, roundID, coderID int64) (Individual, error) {
	var feed individualResultsFeed
	err := c.getXML(ctx, "individual-results", individualResultsPath, map[string]string{
		"module": "IndividualResultsFeed",
		"rd":     strconv.FormatInt(roundID, 10),
		"cr":     strconv.FormatInt(coderID, 10),
	}, &feed)
	if err != nil {
		return Individual{}, err
	}
	if feed.Handle == "" {
		return Individual{}, fmt.Errorf("individual-results: coder %d has no handle in round %d", coderID, roundID)
	}
	return Individual{CoderID: coderID, Handle: feed.Handle, Scores: feed.Scores}, nil
}

// FetchRound downloads the scores of the first limit coders of a round
// (every coder when limit <= 0), ordered by final place. onFetched, if set,
// is called after each coder is downloaded.
func (c *Client) FetchRound(ctx context.Context, roundID int64, limit int, onFetched func(Individual)) (scoring.RawScores, error) {
	ids, err := c.FetchMatchResults(ctx, roundID)
	if err != nil {
		return scoring.RawScores{}, err
	}
	if len(ids) == 0 {
		return scoring.RawScores{}, fmt.Errorf("round %d: %w", roundID, ErrEmptyRound)
	}
	if limit > 0 && limit < len(ids) {
		ids = ids[:limit]
	}

	raw := scoring.RawScores{
		Competitors: make([]string, 0, len(ids)),
		Scores:      make([][]float64, 0, len(ids)),
	}
	for _, id := range ids {
		ind, err := c.FetchIndividualResults(ctx, roundID, id)
		if err != nil {
			return scoring.RawScores{}, fmt.Errorf("round %d coder %d: %w", roundID, id, err)
		}
		log.Info().Str("handle", ind.Handle).Int("tests", len(ind.Scores)).Msg("downloaded scores")
		if onFetched != nil {
			onFetched(ind)
		}
		raw.Competitors = append(raw.Competitors, ind.Handle)
		raw.Scores = append(raw.Scores, ind.Scores)
	}
	return raw, nil
}
