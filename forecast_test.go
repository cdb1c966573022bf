package yearcaster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yearcast/go-yearcaster/dataset"
	"github.com/yearcast/go-yearcaster/models"
)

// constantModel always predicts the same normalized value.
type constantModel struct {
	value float64
}

func (c *constantModel) TrainEpoch([][][]float64, []float64, int) (models.EpochLog, error) {
	return models.EpochLog{}, nil
}

func (c *constantModel) Predict(x [][][]float64) ([]float64, error) {
	preds := make([]float64, len(x))
	for i := range preds {
		preds[i] = c.value
	}
	return preds, nil
}

func (c *constantModel) Weights() ([]byte, error) { return nil, nil }
func (c *constantModel) SetWeights([]byte) error  { return nil }

func stubPipeline() *Pipeline {
	meta := &Metadata{
		Family:             models.FamilyFeedForward,
		YearKey:            "year",
		Target:             "emigrants",
		Features:           []string{"emigrants", "population", "gdp"},
		CumulativeFeatures: []string{"population"},
		Mins:               map[string]float64{"emigrants": 100, "population": 5000, "gdp": 1.0},
		Maxs:               map[string]float64{"emigrants": 130, "population": 5300, "gdp": 2.0},
		LastYear:           2021,
		LastWindow: []dataset.Row{
			{"year": 2019, "emigrants": 110, "population": 5100, "gdp": 1.5},
			{"year": 2020, "emigrants": 120, "population": 5200, "gdp": 1.7},
			{"year": 2021, "emigrants": 130, "population": 5300, "gdp": 1.6},
		},
	}
	return &Pipeline{
		opt: &Options{
			Preparation: &dataset.Options{
				YearKey:  "year",
				Target:   "emigrants",
				Features: meta.Features,
			},
			CumulativeFeatures: meta.CumulativeFeatures,
		},
		model: &constantModel{value: 0.5},
		meta:  meta,
	}
}

func TestForecastOrderingAndHorizon(t *testing.T) {
	p := stubPipeline()

	rows, err := p.Forecast(5)
	require.Nil(t, err)
	require.Equal(t, 5, len(rows))

	for i, row := range rows {
		assert.Equal(t, 2022+i, row.Year)
		assert.True(t, row.Forecast)
		// 0.5 normalized denormalizes against the target's min/max
		assert.InDelta(t, 115.0, row.Values["emigrants"], 1e-9)
	}
}

func TestForecastCarryForward(t *testing.T) {
	p := stubPipeline()

	rows, err := p.Forecast(2)
	require.Nil(t, err)

	// cumulative feature extrapolates at the window's constant rate
	assert.InDelta(t, 5400.0, rows[0].Values["population"], 1e-9)
	assert.InDelta(t, 5500.0, rows[1].Values["population"], 1e-9)

	// non-cumulative features hold their most recent value
	assert.InDelta(t, 1.6, rows[0].Values["gdp"], 1e-9)
	assert.InDelta(t, 1.6, rows[1].Values["gdp"], 1e-9)
}

func TestForecastCustomPolicy(t *testing.T) {
	p := stubPipeline()
	p.opt.CarryForward = func(field string, window []dataset.Row, predicted float64) float64 {
		if field == "emigrants" {
			return predicted
		}
		return -1
	}

	rows, err := p.Forecast(1)
	require.Nil(t, err)
	assert.Equal(t, -1.0, rows[0].Values["gdp"])
	assert.Equal(t, -1.0, rows[0].Values["population"])
}

func TestForecastErrors(t *testing.T) {
	p := stubPipeline()

	_, err := p.Forecast(0)
	assert.ErrorIs(t, err, ErrNonPositiveHorizon)

	p.model = nil
	_, err = p.Forecast(1)
	assert.ErrorIs(t, err, ErrUntrainedPipeline)
}

func TestDefaultCarryForwardTargetAlias(t *testing.T) {
	policy := NewDefaultCarryForward("emigrants", nil)
	window := []dataset.Row{
		{"emigrants": 100, "other": 7},
		{"emigrants": 120, "other": 9},
	}

	assert.Equal(t, 999.0, policy("emigrants", window, 999))
	assert.Equal(t, 9.0, policy("other", window, 999))
}

func TestDefaultCarryForwardSingleRowWindow(t *testing.T) {
	policy := NewDefaultCarryForward("t", []string{"population"})
	window := []dataset.Row{{"population": 50}}

	// no rate can be derived from one row
	assert.Equal(t, 50.0, policy("population", window, 0))
}
