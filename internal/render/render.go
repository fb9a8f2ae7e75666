// Package render formats estimates as aligned text tables.
package render

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"unicode/utf8"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/mat"

	"github.com/mmstats/mmstats/internal/ranking"
)

type Style int

const (
	StylePlain Style = iota
	// StyleForum wraps the table in a <pre> block with [h] handle tags, ready
	// to paste into a forum post.
	StyleForum
)

const DefaultDigits = 2

const ruleWidth = 80

func ParseStyle(s string) (Style, error) {
	switch strings.ToLower(s) {
	case "", "plain":
		return StylePlain, nil
	case "forum":
		return StyleForum, nil
	}
	return 0, fmt.Errorf("unknown output format %q (want plain or forum)", s)
}

func (s Style) String() string {
	if s == StyleForum {
		return "forum"
	}
	return "plain"
}

// Table selects the part of a placement matrix to print.
type Table struct {
	Competitors []string
	Show        int // rows, 0 for all
	Places      int // columns, 0 for Show
	Digits      int
	Style       Style
}

func (t Table) dims(probs mat.Matrix) (rows, cols int, err error) {
	n, m := probs.Dims()
	if len(t.Competitors) != n {
		return 0, 0, fmt.Errorf("render: %d competitors for a %dx%d matrix", len(t.Competitors), n, m)
	}
	if t.Digits < 0 {
		return 0, 0, fmt.Errorf("render: digits must be >= 0, got %d", t.Digits)
	}
	rows = t.Show
	if rows <= 0 || rows > n {
		rows = n
	}
	cols = t.Places
	if cols <= 0 {
		cols = rows
	}
	if cols > m {
		cols = m
	}
	return rows, cols, nil
}

func percent(v float64, digits int) string {
	return strconv.FormatFloat(v*100, 'f', digits, 64) + "%"
}

// Placements writes probs (competitor x place) as a table whose first column
// holds the competitor and whose remaining columns hold the probability of
// each place in percent.
func Placements(w io.Writer, probs mat.Matrix, t Table) error {
	rows, cols, err := t.dims(probs)
	if err != nil {
		return err
	}
	if t.Style == StyleForum {
		return forum(w, probs, t, rows, cols)
	}
	return plain(w, probs, t, rows, cols)
}

func plain(w io.Writer, probs mat.Matrix, t Table, rows, cols int) error {
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', tabwriter.AlignRight)

	header := make([]string, 0, cols+1)
	header = append(header, "")
	for p := 1; p <= cols; p++ {
		header = append(header, strconv.Itoa(p))
	}
	fmt.Fprintln(tw, strings.Join(header, "\t")+"\t")

	for i := 0; i < rows; i++ {
		cells := make([]string, 0, cols+1)
		cells = append(cells, t.Competitors[i])
		for p := 0; p < cols; p++ {
			cells = append(cells, percent(probs.At(i, p), t.Digits))
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t")+"\t")
	}
	return tw.Flush()
}

func forum(w io.Writer, probs mat.Matrix, t Table, rows, cols int) error {
	shown := t.Competitors[:rows]
	width := lo.Max(lo.Map(shown, func(h string, _ int) int { return utf8.RuneCountInString(h) })) + 2
	cw := 3
	if t.Digits > 0 {
		cw += t.Digits + 1
	}

	var b strings.Builder
	b.WriteString(strings.Repeat("-", ruleWidth) + "\n")
	b.WriteString("<pre>\n")

	b.WriteString(strings.Repeat(" ", width))
	for p := 1; p <= cols; p++ {
		fmt.Fprintf(&b, "%*d ", cw, p)
	}
	b.WriteString("\n")

	for i, h := range shown {
		b.WriteString("[h]" + h + "[/h]" + strings.Repeat(" ", width-utf8.RuneCountInString(h)))
		for p := 0; p < cols; p++ {
			fmt.Fprintf(&b, "%*s ", cw, percent(probs.At(i, p), t.Digits))
		}
		b.WriteString("\n")
	}

	b.WriteString("</pre>\n")
	b.WriteString(strings.Repeat("-", ruleWidth) + "\n")

	_, err := io.WriteString(w, b.String())
	return err
}

// Ranking writes a deterministic ranking, one competitor per line.
func Ranking(w io.Writer, r ranking.Result, digits int) error {
	if digits < 0 {
		return fmt.Errorf("render: digits must be >= 0, got %d", digits)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "place\tcompetitor\tscore")
	for _, e := range r.Entries {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", e.Place, e.Competitor, strconv.FormatFloat(e.Score, 'f', digits, 64))
	}
	return tw.Flush()
}
