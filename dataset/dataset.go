// Package dataset holds the year-keyed row representation along with the
// preparation options and cleaning pass that turn raw ingested rows into
// numeric rows safe for normalization and windowing.
package dataset

import (
	"errors"
	"sort"
)

var (
	ErrNoYearKey        = errors.New("no year key configured")
	ErrNoTarget         = errors.New("no target configured")
	ErrNoFeatures       = errors.New("no input features configured")
	ErrDuplicateFeature = errors.New("feature listed more than once")
)

// Row is a cleaned row mapping column names to numeric values. The year key
// is stored alongside the features and target.
type Row map[string]float64

// Copy returns a deep copy of the row.
func (r Row) Copy() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Options declares how raw rows are prepared: which column keys the series by
// year, which column is predicted, which columns feed the model, and how
// invalid values are handled.
type Options struct {
	// YearKey is the column holding the integer year of each row.
	YearKey string

	// Target is the column being predicted. It may also appear in Features.
	Target string

	// Features are the model input columns, in order.
	Features []string

	// FeatureDefaults substitutes invalid feature values when DropInvalid is
	// false. A field without an entry defaults to 0.
	FeatureDefaults map[string]float64

	// RequiredFields overrides the validated field set. When nil it defaults
	// to the year key, the features, and the target.
	RequiredFields []string

	// DropInvalid discards any row with at least one issue instead of
	// repairing it with FeatureDefaults.
	DropInvalid bool

	// AllowNegative lists fields where negative values are acceptable.
	AllowNegative []string
}

// Validate runs basic validation on preparation options.
func (o *Options) Validate() error {
	if o.YearKey == "" {
		return ErrNoYearKey
	}
	if o.Target == "" {
		return ErrNoTarget
	}
	if len(o.Features) == 0 {
		return ErrNoFeatures
	}
	seen := make(map[string]struct{}, len(o.Features))
	for _, f := range o.Features {
		if _, exists := seen[f]; exists {
			return ErrDuplicateFeature
		}
		seen[f] = struct{}{}
	}
	return nil
}

// Required returns the fields every row must carry as numbers. The year key
// and target are always included so downstream windowing can rely on them.
func (o *Options) Required() []string {
	if len(o.RequiredFields) > 0 {
		return o.RequiredFields
	}
	fields := make([]string, 0, len(o.Features)+2)
	fields = append(fields, o.YearKey)
	fields = append(fields, o.Features...)
	if !contains(o.Features, o.Target) && o.Target != o.YearKey {
		fields = append(fields, o.Target)
	}
	return fields
}

func contains(fields []string, field string) bool {
	for _, f := range fields {
		if f == field {
			return true
		}
	}
	return false
}

// SortByYear returns the rows sorted ascending by the year key. The sort is
// stable so equal years keep their input order.
func SortByYear(rows []Row, yearKey string) []Row {
	sorted := make([]Row, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i][yearKey] < sorted[j][yearKey]
	})
	return sorted
}
