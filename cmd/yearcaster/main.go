// Command yearcaster trains an annual forecasting model from a CSV file,
// reports its fit quality, renders fit/forecast charts, and persists the
// trained model for later forecasting.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/profile"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	yearcaster "github.com/yearcast/go-yearcaster"
	"github.com/yearcast/go-yearcaster/models"
	"github.com/yearcast/go-yearcaster/store"
	"github.com/yearcast/go-yearcaster/tune"
)

func main() {
	var (
		configPath  = flag.String("config", "yearcaster.yaml", "path to the YAML configuration")
		dataPath    = flag.String("data", "", "path to the CSV dataset")
		dbPath      = flag.String("db", "yearcaster.db", "path to the model store")
		modelName   = flag.String("name", "default", "name to save the trained model under")
		chartPath   = flag.String("chart", "", "write a fit/forecast chart HTML page to this path")
		runTuner    = flag.Bool("tune", false, "grid-search hyperparameters instead of a single run")
		profileRun  = flag.Bool("profile", false, "write a CPU profile for this run")
	)
	flag.Parse()

	if *profileRun {
		defer profile.Start(profile.ProfilePath(".")).Stop()
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	defer logger.Sync()

	if *dataPath == "" {
		logger.Fatal("no dataset provided, use -data")
	}
	raw, err := readCSV(*dataPath)
	if err != nil {
		logger.Fatal("unable to read dataset", zap.Error(err))
	}
	logger.Info("dataset loaded", zap.String("path", *dataPath), zap.Int("rows", len(raw)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, raw, logger, *runTuner, *dbPath, *modelName, *chartPath); err != nil {
		logger.Fatal("run failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *Config, raw []map[string]any, logger *zap.Logger, runTuner bool, dbPath, modelName, chartPath string) error {
	opt := cfg.pipelineOptions()
	opt.Logger = logger
	opt.OnEpoch = func(p yearcaster.Progress) {
		if p.Epoch == p.TotalEpochs || p.Epoch%50 == 0 {
			logger.Info("training progress",
				zap.Int("epoch", p.Epoch),
				zap.Int("total_epochs", p.TotalEpochs),
				zap.Float64("loss", p.Log.Loss),
			)
		}
	}

	if runTuner {
		best, err := tuneModel(ctx, opt, raw, logger)
		if err != nil {
			return err
		}
		opt.Model = best
	}

	pipeline, err := yearcaster.New(opt)
	if err != nil {
		return err
	}

	res, err := pipeline.Fit(ctx, raw)
	if err != nil {
		return err
	}

	scores := res.Scores.Rounded()
	logger.Info("training complete",
		zap.String("family", string(opt.Model.Family)),
		zap.Float64("mae", scores.MAE),
		zap.Float64("rmse", scores.RMSE),
		zap.Float64("mape", scores.MAPE),
		zap.Float64("r2", scores.R2),
		zap.Float64("accuracy", scores.Accuracy),
		zap.Int("issues", len(res.Issues)),
		zap.Int("discarded", res.Discarded),
		zap.Int("total_rows", res.TotalRows),
	)

	horizon := cfg.Forecast.Horizon
	if horizon <= 0 {
		horizon = 5
	}
	forecast, err := pipeline.Forecast(horizon)
	if err != nil {
		return err
	}
	for _, row := range forecast {
		logger.Info("forecast",
			zap.Int("year", row.Year),
			zap.Float64(cfg.Data.Target, row.Values[cfg.Data.Target]),
		)
	}

	if err := saveModel(pipeline, dbPath, modelName, logger); err != nil {
		return err
	}

	if chartPath != "" {
		if err := writeCharts(chartPath, cfg.Data.Target, res, forecast); err != nil {
			return err
		}
		logger.Info("chart written", zap.String("path", chartPath))
	}
	return nil
}

func tuneModel(ctx context.Context, opt *yearcaster.Options, raw []map[string]any, logger *zap.Logger) (*models.Config, error) {
	grid, err := tune.BuildGrid(opt.Model.Family, opt.Model.Lookback)
	if err != nil {
		return nil, err
	}

	runner, err := tune.NewRunner(opt, logger)
	if err != nil {
		return nil, err
	}

	res, err := runner.RunGrid(ctx, raw, grid)
	if err != nil {
		return nil, err
	}

	best := res.Runs[res.BestRunID]
	logger.Info("grid search complete",
		zap.String("best_run", res.BestRunID),
		zap.Float64("accuracy", best.Scores.Accuracy),
		zap.Float64("mae", best.Scores.MAE),
	)
	cfg := best.Config
	return &cfg, nil
}

func saveModel(pipeline *yearcaster.Pipeline, dbPath, name string, logger *zap.Logger) error {
	weights, err := pipeline.ModelWeights()
	if err != nil {
		return err
	}

	s, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Save(name, weights, pipeline.Metadata()); err != nil {
		return err
	}
	logger.Info("model saved", zap.String("name", name), zap.String("db", dbPath))
	return nil
}

func writeCharts(path, target string, res *yearcaster.Result, forecast []yearcaster.ForecastRow) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("unable to create chart file, %w", err)
	}
	defer file.Close()

	return yearcaster.WriteCharts(file,
		yearcaster.LineFit("Training Fit", res),
		yearcaster.LineForecast("Forecast", target, res, forecast),
	)
}

// readCSV loads a header-first CSV file into raw rows. Cell values stay as
// strings; the cleaning pass owns numeric coercion.
func readCSV(path string) ([]map[string]any, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open dataset, %w", err)
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("unable to parse dataset, %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("dataset %q has no data rows", path)
	}

	header := records[0]
	rows := make([]map[string]any, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make(map[string]any, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = record[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func newLogger(cfg *Config) *zap.Logger {
	level := zapcore.InfoLevel
	if cfg.Log.Level != "" {
		if parsed, err := zapcore.ParseLevel(cfg.Log.Level); err == nil {
			level = parsed
		}
	}

	consoleCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
		zapcore.Lock(os.Stdout),
		level,
	)
	if cfg.Log.Path == "" {
		return zap.New(consoleCore)
	}

	fileCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.Log.Path,
			MaxSize:    50, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}),
		level,
	)
	return zap.New(zapcore.NewTee(consoleCore, fileCore))
}
