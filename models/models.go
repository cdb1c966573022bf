// Package models implements the trainable model families used for annual
// sequence prediction. Families are selected by tag through one capability
// interface so the training orchestrator, scorer, and forecaster stay
// family-agnostic.
package models

import (
	"errors"
	"fmt"
)

// Family tags one of the supported model families.
type Family string

const (
	// FamilySequenceMemory is a recurrent model with gated memory cells that
	// consumes the lookback window one timestep at a time.
	FamilySequenceMemory Family = "sequence-memory"

	// FamilyFeedForward is a dense multilayer perceptron over the flattened
	// lookback window.
	FamilyFeedForward Family = "feed-forward"
)

const (
	DefaultLearningRate = 0.05
	DefaultEpochs       = 100
	DefaultSeed         = 1
)

var (
	ErrUnknownFamily          = errors.New("unknown model family")
	ErrNonPositiveLookback    = errors.New("lookback must be positive")
	ErrNonPositiveEpochs      = errors.New("epochs must be positive")
	ErrNonPositiveRate        = errors.New("learning rate must be positive")
	ErrNoHiddenUnits          = errors.New("no hidden units configured")
	ErrInvalidDropout         = errors.New("dropout must be in [0, 1)")
	ErrInvalidValidationSplit = errors.New("validation split must be in [0, 1)")
	ErrUnknownActivation      = errors.New("unknown activation")
	ErrNoFeatures             = errors.New("feature count must be positive")
	ErrNoTrainingPairs        = errors.New("no training pairs")
	ErrTargetLenMismatch      = errors.New("target length does not match window count")
	ErrWindowShape            = errors.New("window does not match configured lookback and feature count")
)

// Config identifies a model family and its hyperparameters. It is immutable
// once training starts; the resulting metadata carries it permanently.
type Config struct {
	Family          Family  `json:"family"`
	Lookback        int     `json:"lookback"`
	HiddenUnits     []int   `json:"hidden_units"`
	Dropout         float64 `json:"dropout"`
	Activation      string  `json:"activation"`
	LearningRate    float64 `json:"learning_rate"`
	Epochs          int     `json:"epochs"`
	ValidationSplit float64 `json:"validation_split"`
	Seed            int64   `json:"seed"`
}

// NewDefaultConfig returns a baseline configuration for the given family.
func NewDefaultConfig(family Family) *Config {
	cfg := &Config{
		Family:       family,
		Lookback:     3,
		Dropout:      0.0,
		LearningRate: DefaultLearningRate,
		Epochs:       DefaultEpochs,
		Seed:         DefaultSeed,
	}
	switch family {
	case FamilySequenceMemory:
		cfg.HiddenUnits = []int{16}
	default:
		cfg.HiddenUnits = []int{16, 8}
		cfg.Activation = ActivationTanh
	}
	return cfg
}

// Validate runs basic validation on the model configuration.
func (c *Config) Validate() error {
	switch c.Family {
	case FamilySequenceMemory, FamilyFeedForward:
	default:
		return fmt.Errorf("%q, %w", c.Family, ErrUnknownFamily)
	}
	if c.Lookback <= 0 {
		return ErrNonPositiveLookback
	}
	if c.Epochs <= 0 {
		return ErrNonPositiveEpochs
	}
	if c.LearningRate <= 0 {
		return ErrNonPositiveRate
	}
	if len(c.HiddenUnits) == 0 {
		return ErrNoHiddenUnits
	}
	for _, units := range c.HiddenUnits {
		if units <= 0 {
			return ErrNoHiddenUnits
		}
	}
	if c.Dropout < 0 || c.Dropout >= 1 {
		return ErrInvalidDropout
	}
	if c.ValidationSplit < 0 || c.ValidationSplit >= 1 {
		return ErrInvalidValidationSplit
	}
	if c.Family == FamilyFeedForward {
		switch c.Activation {
		case ActivationTanh, ActivationReLU, ActivationSigmoid:
		default:
			return fmt.Errorf("%q, %w", c.Activation, ErrUnknownActivation)
		}
	}
	return nil
}

// EpochLog is the raw per-epoch training log emitted by a model family. Loss
// is the mean squared error and MAE the mean absolute error over the epoch,
// both on the normalized scale.
type EpochLog struct {
	Loss float64 `json:"loss"`
	MAE  float64 `json:"mae"`
}

// Model is the capability interface every family implements. The training
// orchestrator owns the epoch loop and delegates single passes to TrainEpoch.
type Model interface {
	// TrainEpoch runs one full gradient pass over the pairs in mini-batches
	// of at most batchSize and reports the epoch's loss and error.
	TrainEpoch(x [][][]float64, y []float64, batchSize int) (EpochLog, error)

	// Predict returns one normalized prediction per input window.
	Predict(x [][][]float64) ([]float64, error)

	// Weights serializes the trained parameters.
	Weights() ([]byte, error)

	// SetWeights restores previously serialized parameters.
	SetWeights(data []byte) error
}

// Build constructs an untrained model of the configured family for windows of
// featureCount values per timestep.
func Build(cfg *Config, featureCount int) (Model, error) {
	if cfg == nil {
		return nil, ErrUnknownFamily
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if featureCount <= 0 {
		return nil, ErrNoFeatures
	}

	switch cfg.Family {
	case FamilySequenceMemory:
		return newSequenceMemory(*cfg, featureCount), nil
	case FamilyFeedForward:
		return newFeedForward(*cfg, featureCount), nil
	default:
		return nil, fmt.Errorf("%q, %w", cfg.Family, ErrUnknownFamily)
	}
}

// Restore builds a model and loads previously serialized weights into it.
func Restore(cfg *Config, featureCount int, weights []byte) (Model, error) {
	m, err := Build(cfg, featureCount)
	if err != nil {
		return nil, err
	}
	if err := m.SetWeights(weights); err != nil {
		return nil, fmt.Errorf("unable to restore model weights, %w", err)
	}
	return m, nil
}

func checkPairs(x [][][]float64, y []float64, lookback, featureCount int) error {
	if len(x) == 0 {
		return ErrNoTrainingPairs
	}
	if y != nil && len(x) != len(y) {
		return ErrTargetLenMismatch
	}
	for _, win := range x {
		if len(win) != lookback {
			return ErrWindowShape
		}
		for _, vec := range win {
			if len(vec) != featureCount {
				return ErrWindowShape
			}
		}
	}
	return nil
}
