package models

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequenceMemoryLossDecreases(t *testing.T) {
	cfg := NewDefaultConfig(FamilySequenceMemory)
	cfg.Lookback = 3
	cfg.HiddenUnits = []int{8}
	cfg.LearningRate = 0.1

	m, err := Build(cfg, 1)
	require.Nil(t, err)

	x, y := rampPairs(12, 3)

	first, err := m.TrainEpoch(x, y, 32)
	require.Nil(t, err)

	var last EpochLog
	for epoch := 0; epoch < 300; epoch++ {
		last, err = m.TrainEpoch(x, y, 32)
		require.Nil(t, err)
	}

	assert.Less(t, last.Loss, first.Loss)
	assert.False(t, math.IsNaN(last.Loss))
	assert.False(t, math.IsInf(last.Loss, 0))
}

func TestSequenceMemoryPredict(t *testing.T) {
	cfg := NewDefaultConfig(FamilySequenceMemory)
	cfg.Lookback = 4

	m, err := Build(cfg, 2)
	require.Nil(t, err)

	x := [][][]float64{
		{{0.1, 0.9}, {0.2, 0.8}, {0.3, 0.7}, {0.4, 0.6}},
	}
	preds, err := m.Predict(x)
	require.Nil(t, err)
	require.Equal(t, 1, len(preds))
	assert.False(t, math.IsNaN(preds[0]))

	// mismatched window length is rejected
	_, err = m.Predict([][][]float64{{{0.1, 0.9}}})
	assert.ErrorIs(t, err, ErrWindowShape)
}

func TestSequenceMemoryDeterministicSeed(t *testing.T) {
	cfg := NewDefaultConfig(FamilySequenceMemory)
	cfg.Lookback = 2
	cfg.HiddenUnits = []int{4}
	cfg.Seed = 11

	x, y := rampPairs(8, 2)

	run := func() []float64 {
		m, err := Build(cfg, 1)
		require.Nil(t, err)
		for epoch := 0; epoch < 30; epoch++ {
			_, err := m.TrainEpoch(x, y, 4)
			require.Nil(t, err)
		}
		preds, err := m.Predict(x)
		require.Nil(t, err)
		return preds
	}

	a, b := run(), run()
	for i := range a {
		assert.Equal(t, a[i], b[i])
	}
}

func TestSequenceMemorySetWeightsRejectsMismatchedFeatures(t *testing.T) {
	cfg := NewDefaultConfig(FamilySequenceMemory)
	cfg.Lookback = 2
	cfg.HiddenUnits = []int{4}

	// same hidden count, different feature count, so the gate rows are wider
	wide, err := Build(cfg, 3)
	require.Nil(t, err)
	blob, err := wide.Weights()
	require.Nil(t, err)

	narrow, err := Build(cfg, 1)
	require.Nil(t, err)
	assert.ErrorIs(t, narrow.SetWeights(blob), ErrWindowShape)

	// matching shapes round-trip
	other, err := Build(cfg, 3)
	require.Nil(t, err)
	require.Nil(t, other.SetWeights(blob))
}

func TestSequenceMemorySinglePairConverges(t *testing.T) {
	// the smallest viable dataset: one window, one target
	cfg := NewDefaultConfig(FamilySequenceMemory)
	cfg.Lookback = 3
	cfg.HiddenUnits = []int{8}
	cfg.LearningRate = 0.2

	m, err := Build(cfg, 1)
	require.Nil(t, err)

	x := [][][]float64{{{0.0}, {1.0 / 3.0}, {2.0 / 3.0}}}
	y := []float64{1.0}

	var last EpochLog
	for epoch := 0; epoch < 500; epoch++ {
		last, err = m.TrainEpoch(x, y, 32)
		require.Nil(t, err)
	}

	assert.Less(t, last.Loss, 0.01)
}
