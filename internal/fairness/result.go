package fairness

import (
	"fmt"
	"math"
	"slices"

	apperrors "github.com/ricesearch/fairrank/internal/pkg/errors"
)

// Result holds the group values of one evaluation: feature -> metric -> groups.
// It is never modified after Evaluate returns it.
type Result[L comparable] struct {
	features []string
	metrics  []string
	values   map[string]map[string]*GroupValues[L]
}

// Features returns the evaluated feature names in declaration order.
func (r *Result[L]) Features() []string { return slices.Clone(r.features) }

// Metrics returns the evaluated metric names in declaration order.
func (r *Result[L]) Metrics() []string { return slices.Clone(r.metrics) }

// Values returns the group values of one metric on one feature.
func (r *Result[L]) Values(feature, metric string) (*GroupValues[L], bool) {
	gv, ok := r.values[feature][metric]
	return gv, ok
}

func (r *Result[L]) feature(name string) (map[string]*GroupValues[L], error) {
	byMetric, ok := r.values[name]
	if !ok {
		return nil, unknownFeature(name)
	}
	return byMetric, nil
}

// ByGroup returns the metric-by-group table of a feature.
func (r *Result[L]) ByGroup(feature string) (*Table[L], error) {
	byMetric, err := r.feature(feature)
	if err != nil {
		return nil, err
	}

	t := &Table[L]{
		feature: feature,
		metrics: slices.Clone(r.metrics),
		columns: byMetric,
	}
	seen := make(map[L]bool)
	for _, m := range r.metrics {
		for label := range byMetric[m].All() {
			if !seen[label] {
				seen[label] = true
				t.groups = append(t.groups, label)
			}
		}
	}
	return t, nil
}

// Ratio returns, per metric, the smallest group value divided by the largest.
// 1 means parity. The ratio is NaN when undefined: the largest value is not
// positive or the smallest is negative. Fewer than two groups for any metric
// fails with ErrInsufficientGroups.
func (r *Result[L]) Ratio(feature string) (map[string]float64, error) {
	return r.compare(feature, true, groupRatio)
}

// Difference returns, per metric, the largest group value minus the smallest.
func (r *Result[L]) Difference(feature string) (map[string]float64, error) {
	return r.compare(feature, true, func(min, max float64) float64 { return max - min })
}

// GroupMin returns the smallest group value per metric.
func (r *Result[L]) GroupMin(feature string) (map[string]float64, error) {
	return r.compare(feature, false, func(min, _ float64) float64 { return min })
}

// GroupMax returns the largest group value per metric.
func (r *Result[L]) GroupMax(feature string) (map[string]float64, error) {
	return r.compare(feature, false, func(_, max float64) float64 { return max })
}

func (r *Result[L]) compare(feature string, needTwo bool, fn func(min, max float64) float64) (map[string]float64, error) {
	byMetric, err := r.feature(feature)
	if err != nil {
		return nil, err
	}

	out := make(map[string]float64, len(r.metrics))
	for _, m := range r.metrics {
		gv := byMetric[m]
		if needTwo && gv.Len() < 2 {
			return nil, apperrors.New(apperrors.CodeInsufficientGroups,
				fmt.Sprintf("metric %q on feature %q has %d group(s), need at least 2", m, feature, gv.Len())).
				WithDetail("metric", m).
				WithDetail("feature", feature)
		}
		_, lo, ok := gv.Min()
		if !ok {
			out[m] = math.NaN()
			continue
		}
		_, hi, _ := gv.Max()
		out[m] = fn(lo, hi)
	}
	return out, nil
}

func groupRatio(min, max float64) float64 {
	if math.IsNaN(min) || math.IsNaN(max) || max <= 0 || min < 0 {
		return math.NaN()
	}
	return min / max
}

// Table is the group-by-metric view of one feature, shaped for tabular consumers
// such as charting code: rows are groups, columns are metrics.
type Table[L comparable] struct {
	feature string
	metrics []string
	groups  []L
	columns map[string]*GroupValues[L]
}

// Row is one group's values aligned with Table.Metrics. A metric with no value
// for the group holds NaN.
type Row[L comparable] struct {
	Group  L
	Values []float64
}

// Feature returns the sensitive feature the table describes.
func (t *Table[L]) Feature() string { return t.feature }

// Metrics returns the column names.
func (t *Table[L]) Metrics() []string { return slices.Clone(t.metrics) }

// Groups returns the row labels in first-seen order.
func (t *Table[L]) Groups() []L { return slices.Clone(t.groups) }

// Column returns the group values of one metric.
func (t *Table[L]) Column(metric string) (*GroupValues[L], bool) {
	gv, ok := t.columns[metric]
	return gv, ok
}

// Value returns one cell.
func (t *Table[L]) Value(metric string, group L) (float64, bool) {
	gv, ok := t.columns[metric]
	if !ok {
		return 0, false
	}
	return gv.Get(group)
}

// Rows returns the table row by row.
func (t *Table[L]) Rows() []Row[L] {
	rows := make([]Row[L], len(t.groups))
	for i, g := range t.groups {
		values := make([]float64, len(t.metrics))
		for j, m := range t.metrics {
			v, ok := t.Value(m, g)
			if !ok {
				v = math.NaN()
			}
			values[j] = v
		}
		rows[i] = Row[L]{Group: g, Values: values}
	}
	return rows
}
