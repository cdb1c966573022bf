// Package trainer drives a model family through its epoch loop, reporting a
// full-fidelity per-epoch log stream and honoring cancellation at epoch
// boundaries.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"

	"go.uber.org/zap"

	"github.com/yearcast/go-yearcaster/models"
)

var (
	ErrNoPairs           = errors.New("no training pairs")
	ErrNonPositiveEpochs = errors.New("epochs must be positive")
	ErrBadSplit          = errors.New("validation split must be in [0, 1)")
)

// MaxBatchSize bounds the mini-batch size regardless of dataset size.
const MaxBatchSize = 32

// BatchSize returns the mini-batch size for n training pairs.
func BatchSize(n int) int {
	if n < MaxBatchSize {
		return n
	}
	return MaxBatchSize
}

// EpochLog is one normalized per-epoch record. Validation fields are nil when
// no split was held out.
type EpochLog struct {
	Epoch   int      `json:"epoch"`
	Loss    float64  `json:"loss"`
	MAE     float64  `json:"mae"`
	ValLoss *float64 `json:"val_loss,omitempty"`
	ValMAE  *float64 `json:"val_mae,omitempty"`
}

// History is the complete training curve of one run.
type History struct {
	Epochs []EpochLog `json:"epochs"`
}

// Options configures one training run.
type Options struct {
	// Epochs is the number of sequential passes. Every epoch is reported.
	Epochs int

	// ValidationSplit in [0,1) reserves a held-out fraction of the pairs for
	// per-epoch diagnostics. It never reorders the training series.
	ValidationSplit float64

	// BatchSize overrides the bounded default of BatchSize(len(pairs)).
	BatchSize int

	// Split selects the validation partitioning policy. Nil falls back to
	// ContiguousTail.
	Split SplitPolicy

	// Seed drives the Shuffled split policy.
	Seed int64

	// OnEpoch is invoked synchronously once per epoch, in increasing epoch
	// order with no gaps.
	OnEpoch func(EpochLog)

	// Logger, when set, emits a debug record per epoch.
	Logger *zap.Logger
}

// Train runs the epoch loop over the supervised pairs. The context is checked
// once per epoch boundary; cancellation aborts the run without corrupting the
// model's previously applied updates.
func Train(ctx context.Context, m models.Model, x [][][]float64, y []float64, opt *Options) (*History, error) {
	if opt == nil {
		opt = &Options{Epochs: models.DefaultEpochs}
	}
	if len(x) == 0 || len(x) != len(y) {
		return nil, ErrNoPairs
	}
	if opt.Epochs <= 0 {
		return nil, ErrNonPositiveEpochs
	}
	if opt.ValidationSplit < 0 || opt.ValidationSplit >= 1 {
		return nil, ErrBadSplit
	}

	trainX, trainY := x, y
	var valX [][][]float64
	var valY []float64
	if opt.ValidationSplit > 0 && len(x) > 1 {
		split := opt.Split
		if split == nil {
			split = ContiguousTail
		}
		rng := rand.New(rand.NewSource(opt.Seed))
		trainIdx, valIdx := split(len(x), opt.ValidationSplit, rng)
		if len(valIdx) > 0 {
			trainX, trainY = subset(x, y, trainIdx)
			valX, valY = subset(x, y, valIdx)
		}
	}

	batchSize := opt.BatchSize
	if batchSize <= 0 {
		batchSize = BatchSize(len(trainX))
	}

	history := &History{Epochs: make([]EpochLog, 0, opt.Epochs)}
	for epoch := 1; epoch <= opt.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("training canceled before epoch %d, %w", epoch, err)
		}

		raw, err := m.TrainEpoch(trainX, trainY, batchSize)
		if err != nil {
			return nil, fmt.Errorf("epoch %d failed, %w", epoch, err)
		}

		log := EpochLog{Epoch: epoch, Loss: raw.Loss, MAE: raw.MAE}
		if len(valX) > 0 {
			valLoss, valMAE, err := evaluate(m, valX, valY)
			if err != nil {
				return nil, fmt.Errorf("validation at epoch %d failed, %w", epoch, err)
			}
			log.ValLoss = &valLoss
			log.ValMAE = &valMAE
		}

		history.Epochs = append(history.Epochs, log)
		if opt.Logger != nil {
			opt.Logger.Debug("epoch complete",
				zap.Int("epoch", epoch),
				zap.Int("total_epochs", opt.Epochs),
				zap.Float64("loss", log.Loss),
				zap.Float64("mae", log.MAE),
			)
		}
		if opt.OnEpoch != nil {
			opt.OnEpoch(log)
		}
	}
	return history, nil
}

func subset(x [][][]float64, y []float64, idx []int) ([][][]float64, []float64) {
	outX := make([][][]float64, 0, len(idx))
	outY := make([]float64, 0, len(idx))
	for _, i := range idx {
		outX = append(outX, x[i])
		outY = append(outY, y[i])
	}
	return outX, outY
}

func evaluate(m models.Model, x [][][]float64, y []float64) (loss, mae float64, err error) {
	preds, err := m.Predict(x)
	if err != nil {
		return 0, 0, err
	}
	for i := range preds {
		diff := preds[i] - y[i]
		loss += diff * diff
		mae += math.Abs(diff)
	}
	n := float64(len(preds))
	return loss / n, mae / n, nil
}
