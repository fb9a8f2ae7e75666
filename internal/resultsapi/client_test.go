package resultsapi

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmstats/mmstats/internal/config"
	"github.com/mmstats/mmstats/internal/scoring"
)

const matchResultsXML = `<?xml version="1.0"?>
<dd_marathon_round_results>
  <row><coder_id>300</coder_id><placed>2</placed></row>
  <row><coder_id>100</coder_id><placed>1</placed></row>
  <row><coder_id>200</coder_id><placed>3</placed></row>
</dd_marathon_round_results>`

var individuals = map[string]string{
	"100": individualXML("tourist", 10, 0, 7.5),
	"300": individualXML("Psyho", 5, 5, 8),
	"200": individualXML("wleite", 0, 20, -1),
}

func individualXML(handle string, scores ...float64) string {
	body := ""
	for i, s := range scores {
		body += fmt.Sprintf("<testcase><number>%d</number><score> %g </score></testcase>", i, s)
	}
	return fmt.Sprintf(`<?xml version="1.0"?><results><handle>%s</handle><testcases>%s</testcases></results>`, handle, body)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	c, err := NewClient(&config.FeedEnvConfig{
		BaseURL:      ts.URL,
		Timeout:      5 * time.Second,
		RetryMax:     0,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: time.Millisecond,
		RateLimit:    0,
		RateBurst:    1,
	})
	require.NoError(t, err)
	return c
}

func feedHandler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		w.Header().Set("Content-Type", "text/xml")
		switch {
		case r.URL.Path == "/tc" && q.Get("c") == "dd_marathon_round_results":
			assert.Equal(t, "17153", q.Get("rd"))
			fmt.Fprint(w, matchResultsXML)
		case r.URL.Path == "/longcontest/stats/" && q.Get("module") == "IndividualResultsFeed":
			body, ok := individuals[q.Get("cr")]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			fmt.Fprint(w, body)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func TestNewClient_NilConfig(t *testing.T) {
	_, err := NewClient(nil)
	assert.Error(t, err)

	_, err = NewClient(&config.FeedEnvConfig{})
	assert.Error(t, err)
}

func TestFetchMatchResults_OrderedByPlace(t *testing.T) {
	c := newTestClient(t, feedHandler(t))

	ids, err := c.FetchMatchResults(context.Background(), 17153)
	require.NoError(t, err)
	assert.Equal(t, []int64{100, 300, 200}, ids)
}

func TestFetchIndividualResults(t *testing.T) {
	c := newTestClient(t, feedHandler(t))

	ind, err := c.FetchIndividualResults(context.Background(), 17153, 300)
	require.NoError(t, err)
	assert.Equal(t, "Psyho", ind.Handle)
	assert.Equal(t, []float64{5, 5, 8}, ind.Scores)
}

func TestFetchRound(t *testing.T) {
	c := newTestClient(t, feedHandler(t))

	var fetched []string
	raw, err := c.FetchRound(context.Background(), 17153, 2, func(ind Individual) {
		fetched = append(fetched, ind.Handle)
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"tourist", "Psyho"}, raw.Competitors)
	assert.Equal(t, [][]float64{{10, 0, 7.5}, {5, 5, 8}}, raw.Scores)
	assert.Equal(t, raw.Competitors, fetched)
	require.NoError(t, raw.Validate())
}

func TestRoundFetcher_OverClient(t *testing.T) {
	c := newTestClient(t, feedHandler(t))

	raw, err := RoundFetcher(c)(context.Background(), 17153, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"tourist"}, raw.Competitors)
	assert.Equal(t, [][]float64{{10, 0, 7.5}}, raw.Scores)
}

type stubAPI struct {
	ResultsAPIInterface
	roundID int64
	limit   int
}

func (s *stubAPI) FetchRound(_ context.Context, roundID int64, limit int, onFetched func(Individual)) (scoring.RawScores, error) {
	s.roundID, s.limit = roundID, limit
	if onFetched != nil {
		return scoring.RawScores{}, fmt.Errorf("unexpected callback")
	}
	return scoring.RawScores{Competitors: []string{"a"}, Scores: [][]float64{{1}}}, nil
}

func TestRoundFetcher_PassesArguments(t *testing.T) {
	api := &stubAPI{}

	raw, err := RoundFetcher(api)(context.Background(), 42, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(42), api.roundID)
	assert.Equal(t, 7, api.limit)
	assert.Equal(t, []string{"a"}, raw.Competitors)
}

func TestFetchRound_Non2xx(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, "nope")
	})

	_, err := c.FetchRound(context.Background(), 17153, 0, nil)
	assert.Error(t, err)
}

func TestFetchRound_ServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := c.FetchMatchResults(context.Background(), 1)
	assert.Error(t, err)
}

func TestFetchRound_Empty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<dd_marathon_round_results></dd_marathon_round_results>`)
	})

	_, err := c.FetchRound(context.Background(), 1, 0, nil)
	assert.ErrorIs(t, err, ErrEmptyRound)
}

func TestFetchIndividualResults_BadXML(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<results><handle>x</handle><testcases><testcase><score>abc</score></testcase></testcases></results>`)
	})

	_, err := c.FetchIndividualResults(context.Background(), 1, 2)
	assert.Error(t, err)
}
