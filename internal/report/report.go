// Package report turns evaluation results into self-contained fairness
// reports, renders them and keeps them in a store.
package report

import (
	"errors"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/ricesearch/fairrank/internal/fairness"
)

// Report is the outcome of one evaluation.
type Report struct {
	ID          string          `json:"id"`
	Dataset     string          `json:"dataset"`
	Fingerprint string          `json:"fingerprint"`
	Items       int             `json:"items"`
	CreatedAt   time.Time       `json:"created_at"`
	Metrics     []string        `json:"metrics"`
	Features    []FeatureReport `json:"features"`
}

// FeatureReport holds every metric of one sensitive feature.
type FeatureReport struct {
	Name    string         `json:"name"`
	Groups  []string       `json:"groups"`
	Metrics []MetricReport `json:"metrics"`
}

// MetricReport holds one metric's per-group values and disparity summary.
// Ratio and Difference are nil when fewer than two groups exist or the value
// is undefined.
type MetricReport struct {
	Name       string       `json:"name"`
	ByGroup    []GroupValue `json:"by_group"`
	Min        *GroupValue  `json:"min,omitempty"`
	Max        *GroupValue  `json:"max,omitempty"`
	Ratio      *float64     `json:"ratio"`
	Difference *float64     `json:"difference"`
}

// GroupValue is one group's metric value.
type GroupValue struct {
	Group string  `json:"group"`
	Value float64 `json:"value"`
}

// Summary is the short listing form of a report.
type Summary struct {
	ID          string    `json:"id"`
	Dataset     string    `json:"dataset"`
	Fingerprint string    `json:"fingerprint"`
	CreatedAt   time.Time `json:"created_at"`
}

// Summary returns the listing form of the report.
func (r *Report) Summary() Summary {
	return Summary{ID: r.ID, Dataset: r.Dataset, Fingerprint: r.Fingerprint, CreatedAt: r.CreatedAt}
}

// Feature returns the report of one sensitive feature.
func (r *Report) Feature(name string) (*FeatureReport, bool) {
	for i := range r.Features {
		if r.Features[i].Name == name {
			return &r.Features[i], true
		}
	}
	return nil, false
}

// Metric returns the report of one metric.
func (f *FeatureReport) Metric(name string) (*MetricReport, bool) {
	for i := range f.Metrics {
		if f.Metrics[i].Name == name {
			return &f.Metrics[i], true
		}
	}
	return nil, false
}

// Build assembles a report from an evaluation result.
func Build(name, fingerprint string, items int, res *fairness.Result[string]) (*Report, error) {
	r := &Report{
		ID:          uuid.NewString(),
		Dataset:     name,
		Fingerprint: fingerprint,
		Items:       items,
		CreatedAt:   time.Now().UTC(),
		Metrics:     res.Metrics(),
	}

	for _, feature := range res.Features() {
		table, err := res.ByGroup(feature)
		if err != nil {
			return nil, err
		}

		ratios, err := optional(res.Ratio(feature))
		if err != nil {
			return nil, err
		}
		diffs, err := optional(res.Difference(feature))
		if err != nil {
			return nil, err
		}

		fr := FeatureReport{Name: feature, Groups: table.Groups()}
		for _, metric := range r.Metrics {
			column, _ := table.Column(metric)
			mr := MetricReport{Name: metric}
			for group, v := range column.All() {
				mr.ByGroup = append(mr.ByGroup, GroupValue{Group: group, Value: v})
			}
			if g, v, ok := column.Min(); ok && finite(v) {
				mr.Min = &GroupValue{Group: g, Value: v}
			}
			if g, v, ok := column.Max(); ok && finite(v) {
				mr.Max = &GroupValue{Group: g, Value: v}
			}
			mr.Ratio = pointer(ratios, metric)
			mr.Difference = pointer(diffs, metric)
			fr.Metrics = append(fr.Metrics, mr)
		}
		r.Features = append(r.Features, fr)
	}
	return r, nil
}

// optional turns "fewer than two groups" into a missing summary.
func optional(values map[string]float64, err error) (map[string]float64, error) {
	if errors.Is(err, fairness.ErrInsufficientGroups) {
		return nil, nil
	}
	return values, err
}

func pointer(values map[string]float64, metric string) *float64 {
	v, ok := values[metric]
	if !ok || !finite(v) {
		return nil
	}
	return &v
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
