// Package scale implements min-max normalization of row fields to [0,1] with
// an exact algebraic inverse for denormalizing predictions.
package scale

import (
	"errors"
	"fmt"

	"github.com/yearcast/go-yearcaster/dataset"
)

var (
	ErrNoRows       = errors.New("no rows to fit scale state")
	ErrNoFields     = errors.New("no fields to fit scale state")
	ErrUnknownField = errors.New("field not present in scale state")
)

// State holds the observed per-field minimum and maximum of one training run.
// It is computed once over the full cleaned dataset and treated as immutable
// afterwards so every window shares one consistent scale.
type State struct {
	Mins map[string]float64 `json:"mins"`
	Maxs map[string]float64 `json:"maxs"`
}

// Fit computes min/max for each field over all rows.
func Fit(rows []dataset.Row, fields []string) (*State, error) {
	if len(rows) == 0 {
		return nil, ErrNoRows
	}
	if len(fields) == 0 {
		return nil, ErrNoFields
	}

	s := &State{
		Mins: make(map[string]float64, len(fields)),
		Maxs: make(map[string]float64, len(fields)),
	}
	for _, field := range fields {
		min := rows[0][field]
		max := rows[0][field]
		for _, row := range rows[1:] {
			v := row[field]
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
		}
		s.Mins[field] = min
		s.Maxs[field] = max
	}
	return s, nil
}

// Normalize maps a raw value of the given field into [0,1]. A degenerate
// field where min equals max maps every value to 0.
func (s *State) Normalize(field string, v float64) float64 {
	min, max := s.Mins[field], s.Maxs[field]
	if max == min {
		return 0
	}
	return (v - min) / (max - min)
}

// Denormalize is the exact inverse of Normalize for non-degenerate fields.
func (s *State) Denormalize(field string, v float64) float64 {
	min, max := s.Mins[field], s.Maxs[field]
	return v*(max-min) + min
}

// Apply returns a normalized copy of the rows for the given fields. Fields
// outside the list are carried through unchanged.
func (s *State) Apply(rows []dataset.Row, fields []string) ([]dataset.Row, error) {
	for _, field := range fields {
		if _, ok := s.Mins[field]; !ok {
			return nil, fmt.Errorf("cannot normalize %q, %w", field, ErrUnknownField)
		}
	}

	out := make([]dataset.Row, len(rows))
	for i, row := range rows {
		normalized := row.Copy()
		for _, field := range fields {
			normalized[field] = s.Normalize(field, row[field])
		}
		out[i] = normalized
	}
	return out, nil
}
