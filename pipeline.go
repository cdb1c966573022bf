// Package yearcaster trains small sequence models over annual tabular series
// and produces multi-year autoregressive forecasts with quality metrics.
package yearcaster

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/yearcast/go-yearcaster/dataset"
	"github.com/yearcast/go-yearcaster/models"
	"github.com/yearcast/go-yearcaster/scale"
	"github.com/yearcast/go-yearcaster/score"
	"github.com/yearcast/go-yearcaster/trainer"
	"github.com/yearcast/go-yearcaster/window"
)

var (
	ErrNoOptions          = errors.New("no options provided")
	ErrInsufficientData   = errors.New("insufficient rows to train")
	ErrUntrainedPipeline  = errors.New("pipeline has no trained model")
	ErrNonPositiveHorizon = errors.New("forecast horizon must be positive")
)

// Progress is the per-epoch report emitted during training.
type Progress struct {
	Epoch       int
	TotalEpochs int
	Log         trainer.EpochLog
	Config      models.Config
}

// Options configures the full pipeline from raw rows to a trained model.
type Options struct {
	Preparation *dataset.Options
	Model       *models.Config

	// CumulativeFeatures names features that grow roughly linearly (for
	// example a population column). During forecasting their next value is
	// extrapolated at the current window's constant rate instead of held.
	CumulativeFeatures []string

	// CarryForward overrides the default per-feature carry-forward policy
	// used to derive each next forecast window.
	CarryForward CarryForward

	// OnEpoch is invoked synchronously once per training epoch.
	OnEpoch func(Progress)

	// Logger, when set, is handed to the training loop for per-epoch debug
	// records.
	Logger *zap.Logger
}

// NewDefaultOptions returns pipeline options with a feed-forward model and an
// unset preparation section the caller must fill in.
func NewDefaultOptions() *Options {
	return &Options{
		Model: models.NewDefaultConfig(models.FamilyFeedForward),
	}
}

// Validate runs basic validation on the pipeline options.
func (o *Options) Validate() error {
	if o == nil {
		return ErrNoOptions
	}
	if o.Preparation == nil {
		return dataset.ErrNoYearKey
	}
	if err := o.Preparation.Validate(); err != nil {
		return err
	}
	if o.Model == nil {
		return models.ErrUnknownFamily
	}
	return o.Model.Validate()
}

// Result is returned from a successful training run. Issue and discarded
// counts are populated even on success since a run can silently discard a
// large share of its input.
type Result struct {
	Scores  *score.Scores    `json:"scores"`
	History *trainer.History `json:"history"`

	// Years and Actual form the historical denormalized target series.
	Years  []int     `json:"years"`
	Actual []float64 `json:"actual"`

	// FittedYears and Fitted are the denormalized training-fit predictions,
	// aligned to the rows following each full window.
	FittedYears []int     `json:"fitted_years"`
	Fitted      []float64 `json:"fitted"`

	Issues    []dataset.Issue `json:"issues"`
	Discarded int             `json:"discarded"`
	TotalRows int             `json:"total_rows"`

	Metadata *Metadata `json:"metadata"`
}

// Pipeline owns one training session: preparation, training, scoring, and the
// resulting model/metadata pair used for forecasting. A failed run leaves any
// previously trained state untouched.
type Pipeline struct {
	opt *Options

	model models.Model
	meta  *Metadata
}

// New creates a pipeline from the provided options.
func New(opt *Options) (*Pipeline, error) {
	if opt == nil {
		return nil, ErrNoOptions
	}
	if err := opt.Validate(); err != nil {
		return nil, err
	}
	return &Pipeline{opt: opt}, nil
}

// NewFromSaved reconstructs a forecast-ready pipeline from persisted metadata
// and serialized model weights. No retraining is needed.
func NewFromSaved(meta *Metadata, weights []byte) (*Pipeline, error) {
	if meta == nil {
		return nil, ErrUntrainedPipeline
	}
	m, err := models.Restore(&meta.Config, len(meta.Features), weights)
	if err != nil {
		return nil, fmt.Errorf("unable to restore saved model, %w", err)
	}

	opt := &Options{
		Preparation: &dataset.Options{
			YearKey:  meta.YearKey,
			Target:   meta.Target,
			Features: meta.Features,
		},
		Model:              &meta.Config,
		CumulativeFeatures: meta.CumulativeFeatures,
	}
	return &Pipeline{opt: opt, model: m, meta: meta}, nil
}

// Metadata returns the metadata of the last successful training, or nil.
func (p *Pipeline) Metadata() *Metadata {
	return p.meta
}

// ModelWeights serializes the trained model parameters for persistence.
func (p *Pipeline) ModelWeights() ([]byte, error) {
	if p.model == nil {
		return nil, ErrUntrainedPipeline
	}
	return p.model.Weights()
}

// PreparedData is a fully prepared training set: cleaned sorted rows, the
// shared normalization state, and the supervised window pairs. It is immutable
// once built and safe to reuse across training runs with the same lookback.
type PreparedData struct {
	Rows       []dataset.Row
	Normalized []dataset.Row
	Scaler     *scale.State
	Seqs       *window.Sequences

	Issues    []dataset.Issue
	Discarded int
	TotalRows int
}

// Prepare cleans, sorts, normalizes, and windows raw rows for the given
// lookback. Normalization state is computed once over the full cleaned set so
// every pair shares one consistent scale.
func Prepare(raw []map[string]any, prep *dataset.Options, lookback int) (*PreparedData, error) {
	cleaned, err := dataset.Clean(raw, prep)
	if err != nil {
		return nil, err
	}
	if len(cleaned.Rows) == 0 {
		return nil, fmt.Errorf("no rows survived cleaning of %d raw rows, %w", len(raw), ErrInsufficientData)
	}

	rows := dataset.SortByYear(cleaned.Rows, prep.YearKey)
	if len(rows) <= lookback {
		return nil, fmt.Errorf("%d cleaned rows with lookback %d, %w", len(rows), lookback, ErrInsufficientData)
	}

	scaleFields := make([]string, 0, len(prep.Features)+1)
	scaleFields = append(scaleFields, prep.Features...)
	if !featureListed(prep.Features, prep.Target) {
		scaleFields = append(scaleFields, prep.Target)
	}

	scaler, err := scale.Fit(rows, scaleFields)
	if err != nil {
		return nil, fmt.Errorf("unable to fit normalization state, %w", err)
	}
	normalized, err := scaler.Apply(rows, scaleFields)
	if err != nil {
		return nil, fmt.Errorf("unable to normalize rows, %w", err)
	}

	seqs, err := window.Build(normalized, lookback, prep.Features, prep.Target)
	if err != nil {
		if errors.Is(err, window.ErrNotEnoughRows) {
			return nil, fmt.Errorf("%v, %w", err, ErrInsufficientData)
		}
		return nil, err
	}

	return &PreparedData{
		Rows:       rows,
		Normalized: normalized,
		Scaler:     scaler,
		Seqs:       seqs,
		Issues:     cleaned.Issues,
		Discarded:  cleaned.Discarded,
		TotalRows:  len(raw),
	}, nil
}

// Fit prepares the raw rows and trains the configured model over them.
func (p *Pipeline) Fit(ctx context.Context, raw []map[string]any) (*Result, error) {
	prep, err := Prepare(raw, p.opt.Preparation, p.opt.Model.Lookback)
	if err != nil {
		return nil, err
	}
	return p.FitPrepared(ctx, prep)
}

// FitPrepared trains over an already prepared dataset. The prepared data must
// have been built with the same preparation options and lookback.
func (p *Pipeline) FitPrepared(ctx context.Context, prep *PreparedData) (*Result, error) {
	cfg := p.opt.Model
	model, err := models.Build(cfg, len(p.opt.Preparation.Features))
	if err != nil {
		return nil, err
	}

	trainOpts := &trainer.Options{
		Epochs:          cfg.Epochs,
		ValidationSplit: cfg.ValidationSplit,
		Split:           trainer.PolicyForFamily(cfg.Family),
		Seed:            cfg.Seed,
		Logger:          p.opt.Logger,
	}
	if p.opt.OnEpoch != nil {
		trainOpts.OnEpoch = func(log trainer.EpochLog) {
			p.opt.OnEpoch(Progress{
				Epoch:       log.Epoch,
				TotalEpochs: cfg.Epochs,
				Log:         log,
				Config:      *cfg,
			})
		}
	}

	history, err := trainer.Train(ctx, model, prep.Seqs.X, prep.Seqs.Y, trainOpts)
	if err != nil {
		return nil, fmt.Errorf("training run failed, %w", err)
	}

	res, err := p.assemble(model, prep, history)
	if err != nil {
		return nil, err
	}

	// only a fully successful run replaces the pipeline's trained state
	p.model = model
	p.meta = res.Metadata
	return res, nil
}

// assemble scores the training fit on denormalized values and builds the
// result and metadata of a successful run.
func (p *Pipeline) assemble(model models.Model, prep *PreparedData, history *trainer.History) (*Result, error) {
	opt := p.opt.Preparation
	lookback := p.opt.Model.Lookback

	normPreds, err := model.Predict(prep.Seqs.X)
	if err != nil {
		return nil, fmt.Errorf("unable to predict training fit, %w", err)
	}

	fitted := make([]float64, len(normPreds))
	for i, v := range normPreds {
		fitted[i] = prep.Scaler.Denormalize(opt.Target, v)
	}

	years := make([]int, len(prep.Rows))
	actual := make([]float64, len(prep.Rows))
	for i, row := range prep.Rows {
		years[i] = int(row[opt.YearKey])
		actual[i] = row[opt.Target]
	}

	scores, err := score.NewScores(actual[lookback:], fitted)
	if err != nil {
		return nil, fmt.Errorf("unable to score training fit, %w", err)
	}

	lastWindow := make([]dataset.Row, lookback)
	for i, row := range prep.Rows[len(prep.Rows)-lookback:] {
		lastWindow[i] = row.Copy()
	}

	meta := &Metadata{
		Family:             p.opt.Model.Family,
		Config:             *p.opt.Model,
		YearKey:            opt.YearKey,
		Target:             opt.Target,
		Features:           append([]string{}, opt.Features...),
		CumulativeFeatures: append([]string{}, p.opt.CumulativeFeatures...),
		Mins:               prep.Scaler.Mins,
		Maxs:               prep.Scaler.Maxs,
		LastYear:           years[len(years)-1],
		LastWindow:         lastWindow,
		Scores:             scores.Rounded(),
		TrainedAt:          time.Now().UTC(),
		Preparation: PreparationSummary{
			IssueCount: len(prep.Issues),
			Discarded:  prep.Discarded,
			TotalRows:  prep.TotalRows,
		},
	}

	return &Result{
		Scores:      scores,
		History:     history,
		Years:       years,
		Actual:      actual,
		FittedYears: years[lookback:],
		Fitted:      fitted,
		Issues:      prep.Issues,
		Discarded:   prep.Discarded,
		TotalRows:   prep.TotalRows,
		Metadata:    meta,
	}, nil
}

func featureListed(features []string, field string) bool {
	for _, f := range features {
		if f == field {
			return true
		}
	}
	return false
}
