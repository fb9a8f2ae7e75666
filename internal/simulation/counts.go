package simulation

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Counts is a square placement count matrix indexed [competitor][place].
type Counts struct {
	n     int
	cells []int64
}

// NewCounts returns an empty n x n count matrix.
func NewCounts(n int) *Counts {
	return &Counts{n: n, cells: make([]int64, n*n)}
}

// Size returns the number of competitors (and places).
func (c *Counts) Size() int { return c.n }

// At returns how often competitor finished in place (0-indexed).
func (c *Counts) At(competitor, place int) int64 {
	return c.cells[competitor*c.n+place]
}

func (c *Counts) inc(competitor, place int) {
	c.cells[competitor*c.n+place]++
}

// Merge adds other into c element-wise.
func (c *Counts) Merge(other *Counts) error {
	if other.n != c.n {
		return fmt.Errorf("merge counts: size %d into %d", other.n, c.n)
	}
	for i, v := range other.cells {
		c.cells[i] += v
	}
	return nil
}

// Probabilities divides every cell by trials. With trials == 0 the matrix is
// all zeros.
func (c *Counts) Probabilities(trials int) *mat.Dense {
	probs := mat.NewDense(c.n, c.n, nil)
	if trials <= 0 {
		return probs
	}
	scale := 1 / float64(trials)
	for i := range c.n {
		for p := range c.n {
			probs.Set(i, p, float64(c.At(i, p))*scale)
		}
	}
	return probs
}
