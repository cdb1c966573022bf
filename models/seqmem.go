package models

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/goccy/go-json"
	"gonum.org/v1/gonum/floats"
)

// gradient clipping threshold on the global gradient norm, keeping
// backpropagation through time from blowing up on short noisy series
const maxGradNorm = 5.0

// sequenceMemory is a single-layer gated recurrent model (LSTM cell) with a
// linear readout, consuming the lookback window one timestep at a time and
// trained with truncated backpropagation through time.
type sequenceMemory struct {
	cfg          Config
	featureCount int
	hidden       int
	w            *lstmWeights
	rng          *rand.Rand
}

type lstmWeights struct {
	Wf [][]float64 `json:"wf"` // [hidden][featureCount+hidden]
	Wi [][]float64 `json:"wi"`
	Wg [][]float64 `json:"wg"`
	Wo [][]float64 `json:"wo"`
	Bf []float64   `json:"bf"`
	Bi []float64   `json:"bi"`
	Bg []float64   `json:"bg"`
	Bo []float64   `json:"bo"`
	Wy []float64   `json:"wy"` // [hidden]
	By float64     `json:"by"`
}

// lstmGrads mirrors lstmWeights for accumulation over a mini-batch.
type lstmGrads struct {
	wf, wi, wg, wo [][]float64
	bf, bi, bg, bo []float64
	wy             []float64
	by             float64
}

// lstmTrace caches one sample's forward pass for backpropagation.
type lstmTrace struct {
	z          [][]float64 // concatenated [x_t, h_{t-1}] per timestep
	f, i, g, o [][]float64
	c, tanhC   [][]float64
	h          [][]float64
	hOut       []float64 // readout input after dropout
	mask       []float64 // dropout scale on the final hidden state, nil when not training
	yhat       float64
}

func newSequenceMemory(cfg Config, featureCount int) *sequenceMemory {
	m := &sequenceMemory{
		cfg:          cfg,
		featureCount: featureCount,
		hidden:       cfg.HiddenUnits[0],
		rng:          rand.New(rand.NewSource(cfg.Seed)),
	}

	zDim := featureCount + m.hidden
	m.w = &lstmWeights{
		Wf: m.newGateMatrix(zDim),
		Wi: m.newGateMatrix(zDim),
		Wg: m.newGateMatrix(zDim),
		Wo: m.newGateMatrix(zDim),
		Bf: make([]float64, m.hidden),
		Bi: make([]float64, m.hidden),
		Bg: make([]float64, m.hidden),
		Bo: make([]float64, m.hidden),
		Wy: make([]float64, m.hidden),
	}
	// bias the forget gate open so early epochs retain cell state
	for h := 0; h < m.hidden; h++ {
		m.w.Bf[h] = 1.0
	}
	scale := math.Sqrt(1.0 / float64(m.hidden))
	for h := 0; h < m.hidden; h++ {
		m.w.Wy[h] = m.rng.NormFloat64() * scale
	}
	return m
}

func (m *sequenceMemory) newGateMatrix(zDim int) [][]float64 {
	w := make([][]float64, m.hidden)
	scale := math.Sqrt(1.0 / float64(zDim))
	for h := 0; h < m.hidden; h++ {
		w[h] = make([]float64, zDim)
		for j := 0; j < zDim; j++ {
			w[h][j] = m.rng.NormFloat64() * scale
		}
	}
	return w
}

// forward unrolls the cell over the window. training toggles dropout on the
// final hidden state.
func (m *sequenceMemory) forward(win [][]float64, training bool) *lstmTrace {
	steps := len(win)
	tr := &lstmTrace{
		z:     make([][]float64, steps),
		f:     make([][]float64, steps),
		i:     make([][]float64, steps),
		g:     make([][]float64, steps),
		o:     make([][]float64, steps),
		c:     make([][]float64, steps),
		tanhC: make([][]float64, steps),
		h:     make([][]float64, steps),
	}

	hPrev := make([]float64, m.hidden)
	cPrev := make([]float64, m.hidden)
	for t := 0; t < steps; t++ {
		z := make([]float64, 0, m.featureCount+m.hidden)
		z = append(z, win[t]...)
		z = append(z, hPrev...)

		f := make([]float64, m.hidden)
		i := make([]float64, m.hidden)
		g := make([]float64, m.hidden)
		o := make([]float64, m.hidden)
		c := make([]float64, m.hidden)
		tanhC := make([]float64, m.hidden)
		h := make([]float64, m.hidden)
		for u := 0; u < m.hidden; u++ {
			f[u] = sigmoid(m.w.Bf[u] + floats.Dot(m.w.Wf[u], z))
			i[u] = sigmoid(m.w.Bi[u] + floats.Dot(m.w.Wi[u], z))
			g[u] = math.Tanh(m.w.Bg[u] + floats.Dot(m.w.Wg[u], z))
			o[u] = sigmoid(m.w.Bo[u] + floats.Dot(m.w.Wo[u], z))
			c[u] = f[u]*cPrev[u] + i[u]*g[u]
			tanhC[u] = math.Tanh(c[u])
			h[u] = o[u] * tanhC[u]
		}

		tr.z[t], tr.f[t], tr.i[t], tr.g[t], tr.o[t] = z, f, i, g, o
		tr.c[t], tr.tanhC[t], tr.h[t] = c, tanhC, h
		hPrev, cPrev = h, c
	}

	hOut := make([]float64, m.hidden)
	copy(hOut, hPrev)
	if training && m.cfg.Dropout > 0 {
		keep := 1.0 - m.cfg.Dropout
		tr.mask = make([]float64, m.hidden)
		for u := 0; u < m.hidden; u++ {
			if m.rng.Float64() < m.cfg.Dropout {
				tr.mask[u] = 0
				hOut[u] = 0
			} else {
				tr.mask[u] = 1.0 / keep
				hOut[u] *= tr.mask[u]
			}
		}
	}
	tr.hOut = hOut
	tr.yhat = m.w.By + floats.Dot(m.w.Wy, hOut)
	return tr
}

func (m *sequenceMemory) TrainEpoch(x [][][]float64, y []float64, batchSize int) (EpochLog, error) {
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

		grads := m.zeroGrads()
		for _, idx := range order[start:end] {
			tr := m.forward(x[idx], true)
			diff := tr.yhat - y[idx]
			sqSum += diff * diff
			absSum += math.Abs(diff)
			m.backprop(tr, diff, grads)
		}

		m.clip(grads)
		m.apply(grads, m.cfg.LearningRate/float64(end-start))
	}

	n := float64(len(x))
	return EpochLog{Loss: sqSum / n, MAE: absSum / n}, nil
}

// backprop accumulates one sample's gradient through the readout and back
// through every timestep of the window.
func (m *sequenceMemory) backprop(tr *lstmTrace, diff float64, grads *lstmGrads) {
	floats.AddScaled(grads.wy, diff, tr.hOut)
	grads.by += diff

	dh := make([]float64, m.hidden)
	dc := make([]float64, m.hidden)
	for u := 0; u < m.hidden; u++ {
		dh[u] = diff * m.w.Wy[u]
		if tr.mask != nil {
			dh[u] *= tr.mask[u]
		}
	}

	steps := len(tr.z)
	for t := steps - 1; t >= 0; t-- {
		f, i, g, o := tr.f[t], tr.i[t], tr.g[t], tr.o[t]
		tanhC := tr.tanhC[t]

		var cPrev []float64
		if t > 0 {
			cPrev = tr.c[t-1]
		} else {
			cPrev = make([]float64, m.hidden)
		}

		dPreF := make([]float64, m.hidden)
		dPreI := make([]float64, m.hidden)
		dPreG := make([]float64, m.hidden)
		dPreO := make([]float64, m.hidden)
		for u := 0; u < m.hidden; u++ {
			dcU := dc[u] + dh[u]*o[u]*(1-tanhC[u]*tanhC[u])

			dPreO[u] = dh[u] * tanhC[u] * o[u] * (1 - o[u])
			dPreF[u] = dcU * cPrev[u] * f[u] * (1 - f[u])
			dPreI[u] = dcU * g[u] * i[u] * (1 - i[u])
			dPreG[u] = dcU * i[u] * (1 - g[u]*g[u])

			dc[u] = dcU * f[u]
		}

		dz := make([]float64, m.featureCount+m.hidden)
		for u := 0; u < m.hidden; u++ {
			floats.AddScaled(grads.wf[u], dPreF[u], tr.z[t])
			floats.AddScaled(grads.wi[u], dPreI[u], tr.z[t])
			floats.AddScaled(grads.wg[u], dPreG[u], tr.z[t])
			floats.AddScaled(grads.wo[u], dPreO[u], tr.z[t])
			grads.bf[u] += dPreF[u]
			grads.bi[u] += dPreI[u]
			grads.bg[u] += dPreG[u]
			grads.bo[u] += dPreO[u]

			floats.AddScaled(dz, dPreF[u], m.w.Wf[u])
			floats.AddScaled(dz, dPreI[u], m.w.Wi[u])
			floats.AddScaled(dz, dPreG[u], m.w.Wg[u])
			floats.AddScaled(dz, dPreO[u], m.w.Wo[u])
		}

		copy(dh, dz[m.featureCount:])
	}
}

func (m *sequenceMemory) zeroGrads() *lstmGrads {
	zDim := m.featureCount + m.hidden
	zeroMatrix := func() [][]float64 {
		w := make([][]float64, m.hidden)
		for u := range w {
			w[u] = make([]float64, zDim)
		}
		return w
	}
	return &lstmGrads{
		wf: zeroMatrix(), wi: zeroMatrix(), wg: zeroMatrix(), wo: zeroMatrix(),
		bf: make([]float64, m.hidden),
		bi: make([]float64, m.hidden),
		bg: make([]float64, m.hidden),
		bo: make([]float64, m.hidden),
		wy: make([]float64, m.hidden),
	}
}

func (m *sequenceMemory) clip(grads *lstmGrads) {
	var sq float64
	for _, ws := range [][][]float64{grads.wf, grads.wi, grads.wg, grads.wo} {
		for _, row := range ws {
			sq += floats.Dot(row, row)
		}
	}
	for _, bs := range [][]float64{grads.bf, grads.bi, grads.bg, grads.bo, grads.wy} {
		sq += floats.Dot(bs, bs)
	}
	sq += grads.by * grads.by

	norm := math.Sqrt(sq)
	if norm <= maxGradNorm {
		return
	}
	s := maxGradNorm / norm
	for _, ws := range [][][]float64{grads.wf, grads.wi, grads.wg, grads.wo} {
		for _, row := range ws {
			floats.Scale(s, row)
		}
	}
	for _, bs := range [][]float64{grads.bf, grads.bi, grads.bg, grads.bo, grads.wy} {
		floats.Scale(s, bs)
	}
	grads.by *= s
}

func (m *sequenceMemory) apply(grads *lstmGrads, step float64) {
	for u := 0; u < m.hidden; u++ {
		floats.AddScaled(m.w.Wf[u], -step, grads.wf[u])
		floats.AddScaled(m.w.Wi[u], -step, grads.wi[u])
		floats.AddScaled(m.w.Wg[u], -step, grads.wg[u])
		floats.AddScaled(m.w.Wo[u], -step, grads.wo[u])
		m.w.Bf[u] -= step * grads.bf[u]
		m.w.Bi[u] -= step * grads.bi[u]
		m.w.Bg[u] -= step * grads.bg[u]
		m.w.Bo[u] -= step * grads.bo[u]
	}
	floats.AddScaled(m.w.Wy, -step, grads.wy)
	m.w.By -= step * grads.by
}

func (m *sequenceMemory) Predict(x [][][]float64) ([]float64, error) {
	if err := checkPairs(x, nil, m.cfg.Lookback, m.featureCount); err != nil {
		return nil, err
	}

	preds := make([]float64, len(x))
	for i, win := range x {
		preds[i] = m.forward(win, false).yhat
	}
	return preds, nil
}

func (m *sequenceMemory) Weights() ([]byte, error) {
	return json.Marshal(m.w)
}

func (m *sequenceMemory) SetWeights(data []byte) error {
	var w lstmWeights
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("unable to decode sequence-memory weights, %w", err)
	}
	if len(w.Wy) != m.hidden || len(w.Wf) != m.hidden {
		return fmt.Errorf("expected %d hidden units, %w", m.hidden, ErrWindowShape)
	}
	zdim := m.featureCount + m.hidden
	if len(w.Wf[0]) != zdim {
		return fmt.Errorf("expected gate rows of width %d, %w", zdim, ErrWindowShape)
	}
	m.w = &w
	return nil
}
