package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	yearcaster "github.com/yearcast/go-yearcaster"
	"github.com/yearcast/go-yearcaster/dataset"
	"github.com/yearcast/go-yearcaster/models"
)

// Config is the YAML configuration of one run.
type Config struct {
	Data struct {
		YearKey        string             `yaml:"year_key"`
		Target         string             `yaml:"target"`
		Features       []string           `yaml:"features"`
		Defaults       map[string]float64 `yaml:"defaults"`
		RequiredFields []string           `yaml:"required_fields"`
		DropInvalid    bool               `yaml:"drop_invalid"`
		AllowNegative  []string           `yaml:"allow_negative"`
		Cumulative     []string           `yaml:"cumulative"`
	} `yaml:"data"`

	Model struct {
		Family          string  `yaml:"family"`
		Lookback        int     `yaml:"lookback"`
		HiddenUnits     []int   `yaml:"hidden_units"`
		Dropout         float64 `yaml:"dropout"`
		Activation      string  `yaml:"activation"`
		LearningRate    float64 `yaml:"learning_rate"`
		Epochs          int     `yaml:"epochs"`
		ValidationSplit float64 `yaml:"validation_split"`
		Seed            int64   `yaml:"seed"`
	} `yaml:"model"`

	Forecast struct {
		Horizon int `yaml:"horizon"`
	} `yaml:"forecast"`

	Log struct {
		Path  string `yaml:"path"`
		Level string `yaml:"level"`
	} `yaml:"log"`
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read config %q, %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unable to parse config %q, %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) modelConfig() *models.Config {
	family := models.Family(c.Model.Family)
	if family == "" {
		family = models.FamilyFeedForward
	}

	cfg := models.NewDefaultConfig(family)
	if c.Model.Lookback > 0 {
		cfg.Lookback = c.Model.Lookback
	}
	if len(c.Model.HiddenUnits) > 0 {
		cfg.HiddenUnits = c.Model.HiddenUnits
	}
	if c.Model.Dropout > 0 {
		cfg.Dropout = c.Model.Dropout
	}
	if c.Model.Activation != "" {
		cfg.Activation = c.Model.Activation
	}
	if c.Model.LearningRate > 0 {
		cfg.LearningRate = c.Model.LearningRate
	}
	if c.Model.Epochs > 0 {
		cfg.Epochs = c.Model.Epochs
	}
	if c.Model.ValidationSplit > 0 {
		cfg.ValidationSplit = c.Model.ValidationSplit
	}
	if c.Model.Seed != 0 {
		cfg.Seed = c.Model.Seed
	}
	return cfg
}

func (c *Config) pipelineOptions() *yearcaster.Options {
	return &yearcaster.Options{
		Preparation: &dataset.Options{
			YearKey:         c.Data.YearKey,
			Target:          c.Data.Target,
			Features:        c.Data.Features,
			FeatureDefaults: c.Data.Defaults,
			RequiredFields:  c.Data.RequiredFields,
			DropInvalid:     c.Data.DropInvalid,
			AllowNegative:   c.Data.AllowNegative,
		},
		Model:              c.modelConfig(),
		CumulativeFeatures: c.Data.Cumulative,
	}
}
