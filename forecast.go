package yearcaster

import (
	"fmt"

	"github.com/yearcast/go-yearcaster/dataset"
	"github.com/yearcast/go-yearcaster/scale"
)

// ForecastRow is one autoregressively produced future row. Values holds the
// predicted target alongside the carried feature values.
type ForecastRow struct {
	Year     int                `json:"year"`
	Values   map[string]float64 `json:"values"`
	Forecast bool               `json:"is_forecast"`
}

// CarryForward derives the next window's value for one feature after a
// prediction. window holds the current lookback rows in denormalized form and
// predicted is the just-predicted denormalized target.
type CarryForward func(field string, window []dataset.Row, predicted float64) float64

// NewDefaultCarryForward returns the default policy: the target (and any
// feature named the same) takes the predicted value; cumulative features are
// extrapolated at the constant rate observed across the current window; every
// other feature is held at its most recent value.
func NewDefaultCarryForward(target string, cumulative []string) CarryForward {
	cumulativeSet := make(map[string]struct{}, len(cumulative))
	for _, f := range cumulative {
		cumulativeSet[f] = struct{}{}
	}

	return func(field string, window []dataset.Row, predicted float64) float64 {
		if field == target {
			return predicted
		}
		last := window[len(window)-1][field]
		if _, ok := cumulativeSet[field]; ok && len(window) > 1 {
			first := window[0][field]
			rate := (last - first) / float64(len(window)-1)
			return last + rate
		}
		return last
	}
}

// Forecast runs the trained model autoregressively for horizon years past the
// last trained year. Each step consumes the current lookback window, predicts
// the next target, emits a forecast row, and derives the next window through
// the carry-forward policy.
func (p *Pipeline) Forecast(horizon int) ([]ForecastRow, error) {
	if p.model == nil || p.meta == nil {
		return nil, ErrUntrainedPipeline
	}
	if horizon <= 0 {
		return nil, ErrNonPositiveHorizon
	}

	meta := p.meta
	scaler := &scale.State{Mins: meta.Mins, Maxs: meta.Maxs}

	policy := p.opt.CarryForward
	if policy == nil {
		policy = NewDefaultCarryForward(meta.Target, meta.CumulativeFeatures)
	}

	win := make([]dataset.Row, len(meta.LastWindow))
	for i, row := range meta.LastWindow {
		win[i] = row.Copy()
	}

	out := make([]ForecastRow, 0, horizon)
	for step := 1; step <= horizon; step++ {
		x := make([][]float64, len(win))
		for i, row := range win {
			vec := make([]float64, len(meta.Features))
			for k, f := range meta.Features {
				vec[k] = scaler.Normalize(f, row[f])
			}
			x[i] = vec
		}

		preds, err := p.model.Predict([][][]float64{x})
		if err != nil {
			return nil, fmt.Errorf("forecast step %d failed, %w", step, err)
		}
		predicted := scaler.Denormalize(meta.Target, preds[0])

		year := meta.LastYear + step
		next := dataset.Row{meta.YearKey: float64(year)}
		values := map[string]float64{meta.Target: predicted}
		for _, f := range meta.Features {
			v := policy(f, win, predicted)
			next[f] = v
			values[f] = v
		}
		if !featureListed(meta.Features, meta.Target) {
			next[meta.Target] = predicted
		}

		out = append(out, ForecastRow{Year: year, Values: values, Forecast: true})
		win = append(win[1:], next)
	}
	return out, nil
}
