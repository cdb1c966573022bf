package yearcaster

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yearcast/go-yearcaster/dataset"
	"github.com/yearcast/go-yearcaster/models"
)

func emigrantRows() []map[string]any {
	return []map[string]any{
		{"year": 2018, "emigrants": 100},
		{"year": 2019, "emigrants": 110},
		{"year": 2020, "emigrants": 120},
		{"year": 2021, "emigrants": 130},
	}
}

func emigrantOptions(family models.Family) *Options {
	cfg := models.NewDefaultConfig(family)
	cfg.Lookback = 3
	cfg.HiddenUnits = []int{8}
	cfg.LearningRate = 0.1
	cfg.Epochs = 60

	return &Options{
		Preparation: &dataset.Options{
			YearKey:  "year",
			Target:   "emigrants",
			Features: []string{"emigrants"},
		},
		Model: cfg,
	}
}

func TestPipelineScenario(t *testing.T) {
	for _, family := range []models.Family{models.FamilyFeedForward, models.FamilySequenceMemory} {
		p, err := New(emigrantOptions(family))
		require.Nil(t, err, "family %q", family)

		res, err := p.Fit(context.Background(), emigrantRows())
		require.Nil(t, err)

		// exactly one sequence pair from 4 rows with lookback 3
		require.Equal(t, 1, len(res.Fitted))
		assert.Equal(t, []int{2021}, res.FittedYears)
		assert.Equal(t, []int{2018, 2019, 2020, 2021}, res.Years)
		assert.Equal(t, []float64{100, 110, 120, 130}, res.Actual)
		assert.Equal(t, 60, len(res.History.Epochs))

		meta := res.Metadata
		require.NotNil(t, meta)
		assert.Equal(t, 2021, meta.LastYear)
		require.Equal(t, 3, len(meta.LastWindow))
		assert.Equal(t, 110.0, meta.LastWindow[0]["emigrants"])
		assert.Equal(t, 100.0, meta.Mins["emigrants"])
		assert.Equal(t, 130.0, meta.Maxs["emigrants"])

		forecast, err := p.Forecast(1)
		require.Nil(t, err)
		require.Equal(t, 1, len(forecast))
		assert.Equal(t, 2022, forecast[0].Year)
		assert.True(t, forecast[0].Forecast)
		assert.False(t, math.IsNaN(forecast[0].Values["emigrants"]))
	}
}

func TestPipelineInsufficientRows(t *testing.T) {
	p, err := New(emigrantOptions(models.FamilyFeedForward))
	require.Nil(t, err)

	_, err = p.Fit(context.Background(), emigrantRows()[:3])
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestPipelineNoSurvivors(t *testing.T) {
	raw := []map[string]any{
		{"emigrants": 100},
		{"emigrants": 110},
	}

	p, err := New(emigrantOptions(models.FamilyFeedForward))
	require.Nil(t, err)

	_, err = p.Fit(context.Background(), raw)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestPipelineReportsPreparationCounts(t *testing.T) {
	raw := append(emigrantRows(),
		map[string]any{"year": 2022, "emigrants": "bad"},
		map[string]any{"emigrants": 150},
	)

	opt := emigrantOptions(models.FamilyFeedForward)
	opt.Preparation.DropInvalid = true
	opt.Model.Epochs = 5

	p, err := New(opt)
	require.Nil(t, err)

	res, err := p.Fit(context.Background(), raw)
	require.Nil(t, err)

	assert.Equal(t, 6, res.TotalRows)
	assert.Equal(t, 2, res.Discarded)
	assert.Equal(t, 2, len(res.Issues))
	assert.Equal(t, 2, res.Metadata.Preparation.Discarded)
	assert.Equal(t, 2, res.Metadata.Preparation.IssueCount)
	assert.Equal(t, 6, res.Metadata.Preparation.TotalRows)
}

func TestPipelineOnEpochProgress(t *testing.T) {
	opt := emigrantOptions(models.FamilyFeedForward)
	opt.Model.Epochs = 10

	var progress []Progress
	opt.OnEpoch = func(p Progress) {
		progress = append(progress, p)
	}

	p, err := New(opt)
	require.Nil(t, err)

	_, err = p.Fit(context.Background(), emigrantRows())
	require.Nil(t, err)

	require.Equal(t, 10, len(progress))
	for i, pr := range progress {
		assert.Equal(t, i+1, pr.Epoch)
		assert.Equal(t, 10, pr.TotalEpochs)
		assert.Equal(t, models.FamilyFeedForward, pr.Config.Family)
	}
}

func TestPipelineCancellation(t *testing.T) {
	opt := emigrantOptions(models.FamilyFeedForward)
	opt.Model.Epochs = 10000

	ctx, cancel := context.WithCancel(context.Background())
	var epochs int
	opt.OnEpoch = func(Progress) {
		epochs++
		if epochs == 5 {
			cancel()
		}
	}

	p, err := New(opt)
	require.Nil(t, err)

	_, err = p.Fit(ctx, emigrantRows())
	require.NotNil(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	// a failed run must not leave a partially trained pipeline behind
	_, err = p.Forecast(1)
	assert.ErrorIs(t, err, ErrUntrainedPipeline)
}

func TestPipelineValidation(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrNoOptions)

	opt := emigrantOptions(models.FamilyFeedForward)
	opt.Model.Lookback = 0
	_, err = New(opt)
	assert.ErrorIs(t, err, models.ErrNonPositiveLookback)

	opt = emigrantOptions(models.FamilyFeedForward)
	opt.Preparation.Features = nil
	_, err = New(opt)
	assert.ErrorIs(t, err, dataset.ErrNoFeatures)
}

func TestNewFromSaved(t *testing.T) {
	p, err := New(emigrantOptions(models.FamilyFeedForward))
	require.Nil(t, err)

	_, err = p.Fit(context.Background(), emigrantRows())
	require.Nil(t, err)

	weights, err := p.ModelWeights()
	require.Nil(t, err)

	want, err := p.Forecast(3)
	require.Nil(t, err)

	restored, err := NewFromSaved(p.Metadata(), weights)
	require.Nil(t, err)

	got, err := restored.Forecast(3)
	require.Nil(t, err)

	require.Equal(t, len(want), len(got))
	for i := range want {
		assert.Equal(t, want[i].Year, got[i].Year)
		assert.InDelta(t, want[i].Values["emigrants"], got[i].Values["emigrants"], 1e-9)
	}
}

func TestMetadataDocumentRoundTrip(t *testing.T) {
	p, err := New(emigrantOptions(models.FamilyFeedForward))
	require.Nil(t, err)

	res, err := p.Fit(context.Background(), emigrantRows())
	require.Nil(t, err)

	doc, err := res.Metadata.Document()
	require.Nil(t, err)

	meta, err := MetadataFromDocument(doc)
	require.Nil(t, err)

	assert.Equal(t, res.Metadata.Family, meta.Family)
	assert.Equal(t, res.Metadata.LastYear, meta.LastYear)
	assert.Equal(t, res.Metadata.Mins, meta.Mins)
	assert.Equal(t, res.Metadata.LastWindow, meta.LastWindow)
	assert.Equal(t, res.Metadata.Preparation, meta.Preparation)
}
