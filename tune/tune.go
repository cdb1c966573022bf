// Package tune runs a small hyperparameter grid per model family, training
// each candidate independently and selecting the best run by accuracy with
// MAE as the tie-break.
package tune

import (
	"context"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	yearcaster "github.com/yearcast/go-yearcaster"
	"github.com/yearcast/go-yearcaster/models"
	"github.com/yearcast/go-yearcaster/score"
)

var (
	ErrEmptyGrid = errors.New("no candidate configurations in grid")
	ErrNoRuns    = errors.New("no candidate finished training")
)

// preparedCacheSize bounds the per-grid cache of prepared datasets keyed by
// lookback. Preparation is deterministic, so candidates sharing a lookback
// reuse one identical prepared set.
const preparedCacheSize = 8

// Run is one completed train-and-evaluate execution of a single candidate
// configuration. Runs are never mutated after insertion.
type Run struct {
	ID        string        `json:"id"`
	Config    models.Config `json:"config"`
	Scores    *score.Scores `json:"metrics"`
	TrainedAt time.Time     `json:"trained_at"`
}

// Result is the outcome of one grid search.
type Result struct {
	// Runs holds every finished run keyed by id; Order preserves first-seen
	// insertion order for stable tie-breaking.
	Runs      map[string]Run `json:"runs"`
	Order     []string       `json:"order"`
	BestRunID string         `json:"best_run_id"`
}

// BuildGrid returns a small fixed candidate set for the family around the
// given lookback, varying window size, width, dropout, and learning rate.
func BuildGrid(family models.Family, lookback int) ([]models.Config, error) {
	base := models.NewDefaultConfig(family)
	base.Lookback = lookback
	if err := base.Validate(); err != nil {
		return nil, err
	}

	wide := *base
	wide.Lookback = lookback + 1
	wide.Dropout = 0.1
	wide.LearningRate = base.LearningRate / 2
	switch family {
	case models.FamilySequenceMemory:
		wide.HiddenUnits = []int{32}
	default:
		wide.HiddenUnits = []int{32, 16}
	}

	narrow := *base
	narrow.Dropout = 0.2
	narrow.LearningRate = base.LearningRate * 2
	narrow.HiddenUnits = []int{8}

	return []models.Config{*base, wide, narrow}, nil
}

// Runner executes grids against one dataset preparation template.
type Runner struct {
	base   *yearcaster.Options
	logger *zap.Logger
}

// NewRunner creates a grid runner. The base options supply the preparation
// section and carry-forward configuration; each candidate substitutes its own
// model configuration.
func NewRunner(base *yearcaster.Options, logger *zap.Logger) (*Runner, error) {
	if base == nil || base.Preparation == nil {
		return nil, yearcaster.ErrNoOptions
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{base: base, logger: logger}, nil
}

// RunGrid prepares, trains, and evaluates every candidate independently.
// A candidate that fails is logged and skipped; cancellation aborts the whole
// grid. Preparation is memoized per lookback within this grid since cleaning
// and normalization are deterministic over the same raw rows.
func (r *Runner) RunGrid(ctx context.Context, raw []map[string]any, grid []models.Config) (*Result, error) {
	if len(grid) == 0 {
		return nil, ErrEmptyGrid
	}

	cache, err := lru.New[int, *yearcaster.PreparedData](preparedCacheSize)
	if err != nil {
		return nil, fmt.Errorf("unable to create prepared-data cache, %w", err)
	}

	res := &Result{
		Runs:  make(map[string]Run, len(grid)),
		Order: make([]string, 0, len(grid)),
	}

	for i := range grid {
		cfg := grid[i]
		id := fmt.Sprintf("%s-%03d", cfg.Family, i+1)

		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("grid canceled before %s, %w", id, err)
		}

		prep, ok := cache.Get(cfg.Lookback)
		if !ok {
			prep, err = yearcaster.Prepare(raw, r.base.Preparation, cfg.Lookback)
			if err != nil {
				r.logger.Warn("candidate preparation failed",
					zap.String("run_id", id),
					zap.Int("lookback", cfg.Lookback),
					zap.Error(err),
				)
				continue
			}
			cache.Add(cfg.Lookback, prep)
		}

		opt := &yearcaster.Options{
			Preparation:        r.base.Preparation,
			Model:              &cfg,
			CumulativeFeatures: r.base.CumulativeFeatures,
			CarryForward:       r.base.CarryForward,
			Logger:             r.logger,
		}
		pipeline, err := yearcaster.New(opt)
		if err != nil {
			r.logger.Warn("invalid candidate configuration",
				zap.String("run_id", id),
				zap.Error(err),
			)
			continue
		}

		fit, err := pipeline.FitPrepared(ctx, prep)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("grid canceled during %s, %w", id, ctx.Err())
			}
			r.logger.Warn("candidate training failed",
				zap.String("run_id", id),
				zap.Error(err),
			)
			continue
		}

		run := Run{
			ID:        id,
			Config:    cfg,
			Scores:    fit.Scores,
			TrainedAt: time.Now().UTC(),
		}
		res.Runs[id] = run
		res.Order = append(res.Order, id)

		r.logger.Info("candidate finished",
			zap.String("run_id", id),
			zap.Float64("accuracy", fit.Scores.Accuracy),
			zap.Float64("mae", fit.Scores.MAE),
		)
	}

	if len(res.Order) == 0 {
		return nil, ErrNoRuns
	}
	res.BestRunID = SelectBest(res.Order, res.Runs)
	return res, nil
}

// SelectBest returns the run id with the strictly highest accuracy. An exact
// accuracy tie goes to the lower MAE; any remaining tie keeps the first-seen
// run.
func SelectBest(order []string, runs map[string]Run) string {
	var bestID string
	for _, id := range order {
		run, ok := runs[id]
		if !ok {
			continue
		}
		if bestID == "" {
			bestID = id
			continue
		}
		best := runs[bestID]
		if run.Scores.Accuracy > best.Scores.Accuracy {
			bestID = id
			continue
		}
		if run.Scores.Accuracy == best.Scores.Accuracy && run.Scores.MAE < best.Scores.MAE {
			bestID = id
		}
	}
	return bestID
}
