package dataset

import (
	"math"
	"strconv"
	"strings"
)

// IssueType classifies a single per-field validation failure.
type IssueType string

const (
	IssueMissing            IssueType = "missing"
	IssueNonNumeric         IssueType = "non-numeric"
	IssueNegativeDisallowed IssueType = "negative-disallowed"
)

// Issue records one validation failure for one field of one raw row. Issues
// are accumulated in row-then-field order and never mutated.
type Issue struct {
	Row   int       `json:"row"`
	Field string    `json:"field"`
	Type  IssueType `json:"type"`
}

// Result is the outcome of a cleaning pass over raw rows.
type Result struct {
	Rows      []Row   `json:"rows"`
	Issues    []Issue `json:"issues"`
	Discarded int     `json:"discarded"`
}

// Clean validates every raw row against the preparation options. All issues
// for a row are enumerated, not just the first. With DropInvalid set, a row
// with any issue is discarded; otherwise invalid feature values are replaced
// with FeatureDefaults and the row is kept. A missing or non-numeric year key
// always discards the row since a repaired year would fabricate chronology.
// Clean itself never fails; an empty survivor set is the caller's
// insufficient-data condition.
func Clean(raw []map[string]any, opt *Options) (*Result, error) {
	if err := opt.Validate(); err != nil {
		return nil, err
	}

	required := opt.Required()
	allowNegative := make(map[string]struct{}, len(opt.AllowNegative))
	for _, f := range opt.AllowNegative {
		allowNegative[f] = struct{}{}
	}

	res := &Result{
		Rows: make([]Row, 0, len(raw)),
	}

	for i, rawRow := range raw {
		row := make(Row, len(required))
		var rowIssues []Issue
		yearValid := true

		for _, field := range required {
			v, present := rawRow[field]
			if !present || isEmpty(v) {
				rowIssues = append(rowIssues, Issue{Row: i, Field: field, Type: IssueMissing})
				if field == opt.YearKey {
					yearValid = false
				} else {
					row[field] = opt.defaultFor(field)
				}
				continue
			}

			num, ok := toFloat(v)
			if !ok {
				rowIssues = append(rowIssues, Issue{Row: i, Field: field, Type: IssueNonNumeric})
				if field == opt.YearKey {
					yearValid = false
				} else {
					row[field] = opt.defaultFor(field)
				}
				continue
			}

			if num < 0 && field != opt.YearKey {
				if _, allowed := allowNegative[field]; !allowed {
					rowIssues = append(rowIssues, Issue{Row: i, Field: field, Type: IssueNegativeDisallowed})
					row[field] = opt.defaultFor(field)
					continue
				}
			}

			row[field] = num
		}

		res.Issues = append(res.Issues, rowIssues...)

		if !yearValid || (opt.DropInvalid && len(rowIssues) > 0) {
			res.Discarded++
			continue
		}
		res.Rows = append(res.Rows, row)
	}

	return res, nil
}

func (o *Options) defaultFor(field string) float64 {
	if o.FeatureDefaults == nil {
		return 0
	}
	return o.FeatureDefaults[field]
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return 0, false
		}
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint64:
		return float64(val), true
	case string:
		num, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil || math.IsNaN(num) || math.IsInf(num, 0) {
			return 0, false
		}
		return num, true
	default:
		return 0, false
	}
}
