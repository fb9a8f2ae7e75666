package resultsapi

// matchResultsFeed is the dd_marathon_round_results payload: one row per
// coder with the final place.
type matchResultsFeed struct {
	Rows []matchResultRow `xml:"row"`
}

type matchResultRow struct {
	CoderID int64 `xml:"coder_id"`
	Placed  int   `xml:"placed"`
}

// individualResultsFeed is the IndividualResultsFeed payload for one coder.
type individualResultsFeed struct {
	Handle string    `xml:"handle"`
	Scores []float64 `xml:"testcases>testcase>score"`
}

// Individual holds one coder's handle and per-test scores in feed order.
type Individual struct {
	CoderID int64
	Handle  string
	Scores  []float64
}
