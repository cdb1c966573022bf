package yearcaster

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/yearcast/go-yearcaster/dataset"
	"github.com/yearcast/go-yearcaster/models"
	"github.com/yearcast/go-yearcaster/score"
)

// PreparationSummary records how the training input was cleaned. It is part
// of every result so silently discarded rows stay visible on success.
type PreparationSummary struct {
	IssueCount int `json:"issue_count"`
	Discarded  int `json:"discarded"`
	TotalRows  int `json:"total_rows"`
}

// Metadata is persisted alongside a trained model and is sufficient, together
// with the serialized weights, to reconstruct a forecast-ready pipeline. It is
// created once per successful training and never mutated.
type Metadata struct {
	Family             models.Family      `json:"family"`
	Config             models.Config      `json:"config"`
	YearKey            string             `json:"year_key"`
	Target             string             `json:"target"`
	Features           []string           `json:"features"`
	CumulativeFeatures []string           `json:"cumulative_features,omitempty"`
	Mins               map[string]float64 `json:"mins"`
	Maxs               map[string]float64 `json:"maxs"`
	LastYear           int                `json:"last_year"`
	LastWindow         []dataset.Row      `json:"last_window"`
	Scores             *score.Scores      `json:"metrics"`
	TrainedAt          time.Time          `json:"trained_at"`
	Preparation        PreparationSummary `json:"preparation"`
}

// Document serializes the metadata as the externally durable, human
// inspectable JSON artifact.
func (m *Metadata) Document() ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("unable to encode metadata document, %w", err)
	}
	return data, nil
}

// MetadataFromDocument parses a metadata JSON document.
func MetadataFromDocument(data []byte) (*Metadata, error) {
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unable to decode metadata document, %w", err)
	}
	return &m, nil
}
