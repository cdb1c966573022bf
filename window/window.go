// Package window slides a fixed-size lookback window over chronologically
// sorted, normalized rows to build supervised training pairs.
package window

import (
	"errors"
	"fmt"

	"github.com/yearcast/go-yearcaster/dataset"
)

var (
	ErrNotEnoughRows       = errors.New("not enough rows to train")
	ErrNonPositiveLookback = errors.New("lookback must be positive")
)

// Sequences holds the supervised pairs built from one dataset. X[i] is the
// window of lookback feature vectors ending just before row lookback+i, and
// Y[i] is that following row's target value.
type Sequences struct {
	X [][][]float64
	Y []float64
}

// Build constructs len(rows)-lookback pairs from year-sorted rows. Rows must
// already be normalized; Build does no scaling of its own.
func Build(rows []dataset.Row, lookback int, features []string, target string) (*Sequences, error) {
	if lookback <= 0 {
		return nil, ErrNonPositiveLookback
	}
	if len(rows) <= lookback {
		return nil, fmt.Errorf("have %d rows with lookback %d, %w", len(rows), lookback, ErrNotEnoughRows)
	}

	n := len(rows) - lookback
	seqs := &Sequences{
		X: make([][][]float64, 0, n),
		Y: make([]float64, 0, n),
	}
	for i := lookback; i < len(rows); i++ {
		win := make([][]float64, 0, lookback)
		for j := i - lookback; j < i; j++ {
			vec := make([]float64, len(features))
			for k, f := range features {
				vec[k] = rows[j][f]
			}
			win = append(win, vec)
		}
		seqs.X = append(seqs.X, win)
		seqs.Y = append(seqs.Y, rows[i][target])
	}
	return seqs, nil
}
