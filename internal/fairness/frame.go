package fairness

import (
	"fmt"
	"math"
	"slices"
	"sync"

	apperrors "github.com/ricesearch/fairrank/internal/pkg/errors"
)

// Feature is one sensitive-feature dimension: a group label per item.
type Feature[L comparable] struct {
	Name   string
	Labels []L
}

// Input is the data a Frame is built from. All slices are indexed by item.
type Input[L comparable] struct {
	Relevance []float64
	Ranking   []int
	Features  []Feature[L]
}

// Frame evaluates named metrics per sensitive feature over one ranking.
// Inputs are copied at construction and never change afterwards.
type Frame[L comparable] struct {
	relevance  []float64
	ranking    []int
	features   []string
	partitions map[string]*Partition[L]
	metrics    []NamedMetric[L]

	mu     sync.RWMutex
	result *Result[L]
}

// NewFrame validates the input and metric list and returns an unevaluated frame.
func NewFrame[L comparable](in Input[L], metrics []NamedMetric[L]) (*Frame[L], error) {
	if err := ValidateRanking(in.Ranking); err != nil {
		return nil, err
	}
	n := len(in.Ranking)
	if len(in.Relevance) != n {
		return nil, lengthMismatch("relevance", len(in.Relevance), n)
	}
	for i, r := range in.Relevance {
		if math.IsNaN(r) || math.IsInf(r, 0) {
			return nil, apperrors.ValidationError(fmt.Sprintf("relevance[%d] is not a finite number", i))
		}
	}

	if len(in.Features) == 0 {
		return nil, apperrors.ValidationError("at least one sensitive feature is required")
	}
	f := &Frame[L]{
		relevance:  slices.Clone(in.Relevance),
		ranking:    slices.Clone(in.Ranking),
		features:   make([]string, 0, len(in.Features)),
		partitions: make(map[string]*Partition[L], len(in.Features)),
	}
	for _, feat := range in.Features {
		if feat.Name == "" {
			return nil, apperrors.ValidationError("sensitive feature name must not be empty")
		}
		if _, dup := f.partitions[feat.Name]; dup {
			return nil, apperrors.ValidationError(fmt.Sprintf("sensitive feature %q declared twice", feat.Name))
		}
		if len(feat.Labels) != n {
			return nil, lengthMismatch(fmt.Sprintf("sensitive feature %q", feat.Name), len(feat.Labels), n).
				WithDetail("feature", feat.Name)
		}
		f.features = append(f.features, feat.Name)
		f.partitions[feat.Name] = NewPartition(feat.Labels)
	}

	if len(metrics) == 0 {
		return nil, apperrors.ValidationError("at least one metric is required")
	}
	seen := make(map[string]bool, len(metrics))
	for _, m := range metrics {
		switch {
		case m.Name == "":
			return nil, apperrors.ValidationError("metric name must not be empty")
		case seen[m.Name]:
			return nil, apperrors.ValidationError(fmt.Sprintf("metric %q declared twice", m.Name))
		case m.Metric == nil:
			return nil, apperrors.ValidationError(fmt.Sprintf("metric %q has no implementation", m.Name))
		}
		seen[m.Name] = true
	}
	f.metrics = slices.Clone(metrics)

	return f, nil
}

// Items returns the number of ranked items.
func (f *Frame[L]) Items() int { return len(f.ranking) }

// Features returns the sensitive feature names in declaration order.
func (f *Frame[L]) Features() []string { return slices.Clone(f.features) }

// MetricNames returns the metric names in declaration order.
func (f *Frame[L]) MetricNames() []string {
	names := make([]string, len(f.metrics))
	for i, m := range f.metrics {
		names[i] = m.Name
	}
	return names
}

// Evaluate computes every metric for every sensitive feature. The first failing
// metric aborts the call with ErrMetricComputation; the previously stored result,
// if any, stays in place.
func (f *Frame[L]) Evaluate() (*Result[L], error) {
	res := &Result[L]{
		features: slices.Clone(f.features),
		metrics:  f.MetricNames(),
		values:   make(map[string]map[string]*GroupValues[L], len(f.features)),
	}

	for _, feature := range f.features {
		p := f.partitions[feature]
		byMetric := make(map[string]*GroupValues[L], len(f.metrics))
		for _, m := range f.metrics {
			gv, err := f.compute(m.Metric, p)
			if err != nil {
				return nil, apperrors.Wrap(apperrors.CodeMetricComputation,
					fmt.Sprintf("metric %q on feature %q", m.Name, feature), err).
					WithDetail("metric", m.Name).
					WithDetail("feature", feature)
			}
			byMetric[m.Name] = gv
		}
		res.values[feature] = byMetric
	}

	f.mu.Lock()
	f.result = res
	f.mu.Unlock()

	return res, nil
}

// compute runs one metric on private copies of the inputs and turns a panic into an error.
func (f *Frame[L]) compute(m Metric[L], p *Partition[L]) (gv *GroupValues[L], err error) {
	defer func() {
		if r := recover(); r != nil {
			gv, err = nil, apperrors.InternalError(fmt.Sprintf("metric panicked: %v", r), nil)
		}
	}()

	gv, err = m.Compute(slices.Clone(f.relevance), slices.Clone(f.ranking), p)
	if err == nil && gv == nil {
		err = apperrors.InternalError("metric returned no group values", nil)
	}
	return gv, err
}

// Result returns the result of the last successful Evaluate.
func (f *Frame[L]) Result() (*Result[L], error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.result == nil {
		return nil, ErrNotEvaluated
	}
	return f.result, nil
}

// ByGroup returns the metric-by-group table of a feature from the last evaluation.
func (f *Frame[L]) ByGroup(feature string) (*Table[L], error) {
	res, err := f.Result()
	if err != nil {
		return nil, err
	}
	return res.ByGroup(feature)
}

// Ratio returns min/max across groups per metric from the last evaluation.
func (f *Frame[L]) Ratio(feature string) (map[string]float64, error) {
	res, err := f.Result()
	if err != nil {
		return nil, err
	}
	return res.Ratio(feature)
}

// Difference returns max-min across groups per metric from the last evaluation.
func (f *Frame[L]) Difference(feature string) (map[string]float64, error) {
	res, err := f.Result()
	if err != nil {
		return nil, err
	}
	return res.Difference(feature)
}
