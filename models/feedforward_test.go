package models

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rampPairs builds windows over a normalized linear ramp where the next value
// always follows the window by a constant step.
func rampPairs(n, lookback int) ([][][]float64, []float64) {
	series := make([]float64, n)
	for i := range series {
		series[i] = float64(i) / float64(n-1)
	}

	var x [][][]float64
	var y []float64
	for i := lookback; i < n; i++ {
		win := make([][]float64, 0, lookback)
		for j := i - lookback; j < i; j++ {
			win = append(win, []float64{series[j]})
		}
		x = append(x, win)
		y = append(y, series[i])
	}
	return x, y
}

func TestFeedForwardLossDecreases(t *testing.T) {
	cfg := NewDefaultConfig(FamilyFeedForward)
	cfg.Lookback = 3
	cfg.HiddenUnits = []int{8}
	cfg.LearningRate = 0.1

	m, err := Build(cfg, 1)
	require.Nil(t, err)

	x, y := rampPairs(12, 3)

	first, err := m.TrainEpoch(x, y, 32)
	require.Nil(t, err)

	var last EpochLog
	for epoch := 0; epoch < 200; epoch++ {
		last, err = m.TrainEpoch(x, y, 32)
		require.Nil(t, err)
	}

	assert.Less(t, last.Loss, first.Loss)
	assert.Less(t, last.MAE, first.MAE)
	assert.False(t, math.IsNaN(last.Loss))
}

func TestFeedForwardPredictShape(t *testing.T) {
	cfg := NewDefaultConfig(FamilyFeedForward)
	cfg.Lookback = 2

	m, err := Build(cfg, 3)
	require.Nil(t, err)

	x := [][][]float64{
		{{0.1, 0.2, 0.3}, {0.2, 0.3, 0.4}},
		{{0.5, 0.5, 0.5}, {0.6, 0.6, 0.6}},
	}
	preds, err := m.Predict(x)
	require.Nil(t, err)
	require.Equal(t, 2, len(preds))
	for _, p := range preds {
		assert.False(t, math.IsNaN(p))
	}
}

func TestFeedForwardDeterministicSeed(t *testing.T) {
	cfg := NewDefaultConfig(FamilyFeedForward)
	cfg.Lookback = 2
	cfg.Seed = 7

	x, y := rampPairs(10, 2)

	run := func() []float64 {
		m, err := Build(cfg, 1)
		require.Nil(t, err)
		for epoch := 0; epoch < 20; epoch++ {
			_, err := m.TrainEpoch(x, y, 4)
			require.Nil(t, err)
		}
		preds, err := m.Predict(x)
		require.Nil(t, err)
		return preds
	}

	a, b := run(), run()
	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.Equal(t, a[i], b[i])
	}
}

func TestFeedForwardDropoutStillConverges(t *testing.T) {
	cfg := NewDefaultConfig(FamilyFeedForward)
	cfg.Lookback = 3
	cfg.HiddenUnits = []int{16}
	cfg.Dropout = 0.2
	cfg.LearningRate = 0.1

	m, err := Build(cfg, 1)
	require.Nil(t, err)

	x, y := rampPairs(15, 3)
	var logs []EpochLog
	for epoch := 0; epoch < 150; epoch++ {
		log, err := m.TrainEpoch(x, y, 32)
		require.Nil(t, err)
		logs = append(logs, log)
	}

	assert.Less(t, logs[len(logs)-1].Loss, logs[0].Loss)
}
