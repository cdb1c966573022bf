package models

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/goccy/go-json"
	"gonum.org/v1/gonum/floats"
)

// feedForward is a multilayer perceptron over the flattened lookback window,
// trained with mini-batch gradient descent on squared error.
type feedForward struct {
	cfg          Config
	featureCount int
	layers       []*denseLayer
	rng          *rand.Rand
}

type denseLayer struct {
	W   [][]float64 `json:"w"` // [out][in]
	B   []float64   `json:"b"`
	Act string      `json:"act"`
}

type feedForwardWeights struct {
	Layers []*denseLayer `json:"layers"`
}

func newFeedForward(cfg Config, featureCount int) *feedForward {
	m := &feedForward{
		cfg:          cfg,
		featureCount: featureCount,
		rng:          rand.New(rand.NewSource(cfg.Seed)),
	}

	dims := make([]int, 0, len(cfg.HiddenUnits)+2)
	dims = append(dims, cfg.Lookback*featureCount)
	dims = append(dims, cfg.HiddenUnits...)
	dims = append(dims, 1)

	for l := 0; l < len(dims)-1; l++ {
		act := cfg.Activation
		if l == len(dims)-2 {
			act = "" // linear output
		}
		m.layers = append(m.layers, m.newDenseLayer(dims[l], dims[l+1], act))
	}
	return m
}

func (m *feedForward) newDenseLayer(in, out int, act string) *denseLayer {
	layer := &denseLayer{
		W:   make([][]float64, out),
		B:   make([]float64, out),
		Act: act,
	}
	scale := math.Sqrt(1.0 / float64(in))
	for o := 0; o < out; o++ {
		layer.W[o] = make([]float64, in)
		for i := 0; i < in; i++ {
			layer.W[o][i] = m.rng.NormFloat64() * scale
		}
	}
	return layer
}

func flatten(win [][]float64) []float64 {
	if len(win) == 0 {
		return nil
	}
	flat := make([]float64, 0, len(win)*len(win[0]))
	for _, vec := range win {
		flat = append(flat, vec...)
	}
	return flat
}

// forward runs one sample through the network, returning per-layer
// activations (index 0 is the input) and pre-activations. When masks is
// non-nil, it receives an inverted-dropout scale per hidden activation.
func (m *feedForward) forward(in []float64, masks [][]float64) (acts, pres [][]float64) {
	acts = make([][]float64, len(m.layers)+1)
	pres = make([][]float64, len(m.layers))
	acts[0] = in

	for l, layer := range m.layers {
		out := len(layer.W)
		pre := make([]float64, out)
		act := make([]float64, out)
		for o := 0; o < out; o++ {
			pre[o] = layer.B[o] + floats.Dot(layer.W[o], acts[l])
			act[o] = activate(layer.Act, pre[o])
		}

		if masks != nil && l < len(m.layers)-1 && m.cfg.Dropout > 0 {
			mask := make([]float64, out)
			keep := 1.0 - m.cfg.Dropout
			for o := 0; o < out; o++ {
				if m.rng.Float64() < m.cfg.Dropout {
					mask[o] = 0
					act[o] = 0
				} else {
					mask[o] = 1.0 / keep
					act[o] *= mask[o]
				}
			}
			masks[l] = mask
		}

		pres[l] = pre
		acts[l+1] = act
	}
	return acts, pres
}

func (m *feedForward) TrainEpoch(x [][][]float64, y []float64, batchSize int) (EpochLog, error) {
	if err := checkPairs(x, y, m.cfg.Lookback, m.featureCount); err != nil {
		return EpochLog{}, err
	}
	if batchSize <= 0 || batchSize > len(x) {
		batchSize = len(x)
	}

	order := m.rng.Perm(len(x))

	var sqSum, absSum float64
	for start := 0; start < len(order); start += batchSize {
		end := start + batchSize
		if end > len(order) {
			end = len(order)
		}

		gradW, gradB := m.zeroGrads()
		for _, idx := range order[start:end] {
			masks := make([][]float64, len(m.layers))
			acts, pres := m.forward(flatten(x[idx]), masks)

			yhat := acts[len(acts)-1][0]
			diff := yhat - y[idx]
			sqSum += diff * diff
			absSum += math.Abs(diff)

			m.backprop(acts, pres, masks, diff, gradW, gradB)
		}

		step := m.cfg.LearningRate / float64(end-start)
		for l, layer := range m.layers {
			for o := range layer.W {
				floats.AddScaled(layer.W[o], -step, gradW[l][o])
				layer.B[o] -= step * gradB[l][o]
			}
		}
	}

	n := float64(len(x))
	return EpochLog{Loss: sqSum / n, MAE: absSum / n}, nil
}

// backprop accumulates one sample's gradient of squared error (scaled by 1/2)
// into gradW/gradB.
func (m *feedForward) backprop(acts, pres, masks [][]float64, diff float64, gradW [][][]float64, gradB [][]float64) {
	delta := []float64{diff}

	for l := len(m.layers) - 1; l >= 0; l-- {
		layer := m.layers[l]
		dPre := make([]float64, len(layer.W))
		for o := range layer.W {
			grad := activateGrad(layer.Act, pres[l][o])
			if masks[l] != nil {
				grad *= masks[l][o]
			}
			dPre[o] = delta[o] * grad
		}

		for o := range layer.W {
			floats.AddScaled(gradW[l][o], dPre[o], acts[l])
			gradB[l][o] += dPre[o]
		}

		if l > 0 {
			next := make([]float64, len(acts[l]))
			for o := range layer.W {
				floats.AddScaled(next, dPre[o], layer.W[o])
			}
			delta = next
		}
	}
}

func (m *feedForward) zeroGrads() ([][][]float64, [][]float64) {
	gradW := make([][][]float64, len(m.layers))
	gradB := make([][]float64, len(m.layers))
	for l, layer := range m.layers {
		gradW[l] = make([][]float64, len(layer.W))
		gradB[l] = make([]float64, len(layer.B))
		for o := range layer.W {
			gradW[l][o] = make([]float64, len(layer.W[o]))
		}
	}
	return gradW, gradB
}

func (m *feedForward) Predict(x [][][]float64) ([]float64, error) {
	if err := checkPairs(x, nil, m.cfg.Lookback, m.featureCount); err != nil {
		return nil, err
	}

	preds := make([]float64, len(x))
	for i, win := range x {
		acts, _ := m.forward(flatten(win), nil)
		preds[i] = acts[len(acts)-1][0]
	}
	return preds, nil
}

func (m *feedForward) Weights() ([]byte, error) {
	return json.Marshal(feedForwardWeights{Layers: m.layers})
}

func (m *feedForward) SetWeights(data []byte) error {
	var w feedForwardWeights
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("unable to decode feed-forward weights, %w", err)
	}
	if len(w.Layers) != len(m.layers) {
		return fmt.Errorf("expected %d layers but got %d, %w", len(m.layers), len(w.Layers), ErrWindowShape)
	}
	m.layers = w.Layers
	return nil
}
