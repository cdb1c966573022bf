// Package score computes regression quality metrics over denormalized
// actual/predicted pairs. Metrics are never computed on [0,1]-scaled values.
package score

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/stat"
)

var (
	ErrLenMismatch = errors.New("predicted and actual have different lengths")
	ErrNoValues    = errors.New("no values to score")
)

// DisplayPrecision is the number of decimal places metrics are rounded to for
// presentation and comparison. Raw values are kept internally.
const DisplayPrecision = 4

// Scores summarizes the fit quality of one training run.
type Scores struct {
	MAE      float64 `json:"mae"`
	RMSE     float64 `json:"rmse"`
	MAPE     float64 `json:"mape"`
	R2       float64 `json:"r2"`
	Accuracy float64 `json:"accuracy"`
}

// NewScores computes all metrics from denormalized actual and predicted
// values. MAPE averages only over rows with a non-zero actual; rows where the
// actual is 0 are excluded from the mean rather than treated as zero error.
// Accuracy is derived as max(0, 100-MAPE).
func NewScores(actual, predicted []float64) (*Scores, error) {
	if len(actual) != len(predicted) {
		return nil, ErrLenMismatch
	}
	if len(actual) == 0 {
		return nil, ErrNoValues
	}

	var absSum, sqSum, mapeSum float64
	var mapeCount int
	for i := range actual {
		diff := actual[i] - predicted[i]
		absSum += math.Abs(diff)
		sqSum += diff * diff
		if actual[i] != 0 {
			mapeSum += math.Abs(diff / actual[i])
			mapeCount++
		}
	}

	n := float64(len(actual))
	mae := absSum / n
	rmse := math.Sqrt(sqSum / n)

	var mape float64
	if mapeCount > 0 {
		mape = mapeSum / float64(mapeCount) * 100.0
	}

	return &Scores{
		MAE:      mae,
		RMSE:     rmse,
		MAPE:     mape,
		R2:       rSquared(actual, sqSum),
		Accuracy: math.Max(0, 100.0-mape),
	}, nil
}

// rSquared computes 1 - SS_res/SS_tot against the mean of actual. A constant
// actual series has no variance to explain: a perfect fit scores 1, anything
// else 0.
func rSquared(actual []float64, ssRes float64) float64 {
	mean := stat.Mean(actual, nil)
	var ssTot float64
	for _, a := range actual {
		ssTot += (a - mean) * (a - mean)
	}
	if ssTot == 0 {
		if ssRes == 0 {
			return 1
		}
		return 0
	}
	return 1 - ssRes/ssTot
}

// Rounded returns a copy with every metric rounded to DisplayPrecision
// decimal places.
func (s *Scores) Rounded() *Scores {
	return &Scores{
		MAE:      Round(s.MAE),
		RMSE:     Round(s.RMSE),
		MAPE:     Round(s.MAPE),
		R2:       Round(s.R2),
		Accuracy: Round(s.Accuracy),
	}
}

// Round rounds a metric to DisplayPrecision decimal places.
func Round(v float64) float64 {
	shift := math.Pow(10, DisplayPrecision)
	return math.Round(v*shift) / shift
}
