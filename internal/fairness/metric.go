package fairness

import (
	"fmt"
	"strings"

	apperrors "github.com/ricesearch/fairrank/internal/pkg/errors"
)

// Metric computes one scalar per group from relevance, ranking and a partition
// of the items. Implementations must not retain or modify the slices.
type Metric[L comparable] interface {
	Compute(relevance []float64, ranking []int, groups *Partition[L]) (*GroupValues[L], error)
}

// MetricFunc adapts a plain function to Metric.
type MetricFunc[L comparable] func(relevance []float64, ranking []int, groups *Partition[L]) (*GroupValues[L], error)

// Compute calls f.
func (f MetricFunc[L]) Compute(relevance []float64, ranking []int, groups *Partition[L]) (*GroupValues[L], error) {
	return f(relevance, ranking, groups)
}

// Kind identifies a built-in metric.
type Kind int

// Built-in metrics.
const (
	KindExposure Kind = iota + 1
	KindUtility
	KindProportionalExposure
)

var kindNames = map[Kind]string{
	KindExposure:             "exposure",
	KindUtility:              "utility",
	KindProportionalExposure: "proportional_exposure",
}

// Kinds returns the built-in metric kinds in canonical order.
func Kinds() []Kind {
	return []Kind{KindExposure, KindUtility, KindProportionalExposure}
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind resolves a built-in metric by name. Hyphens, spaces and case are ignored.
func ParseKind(name string) (Kind, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	normalized = strings.NewReplacer("-", "_", " ", "_").Replace(normalized)
	for k, n := range kindNames {
		if n == normalized {
			return k, nil
		}
	}
	return 0, apperrors.ValidationError(fmt.Sprintf("unknown metric %q (must be exposure, utility, or proportional_exposure)", name))
}

type builtin[L comparable] struct {
	kind Kind
}

// Builtin returns the built-in metric of the given kind.
func Builtin[L comparable](k Kind) Metric[L] {
	return builtin[L]{kind: k}
}

func (b builtin[L]) Compute(relevance []float64, ranking []int, groups *Partition[L]) (*GroupValues[L], error) {
	switch b.kind {
	case KindExposure:
		return GroupExposure(ranking, groups)
	case KindUtility:
		return GroupUtility(relevance, groups)
	case KindProportionalExposure:
		return GroupProportionalExposure(relevance, ranking, groups)
	default:
		return nil, apperrors.ValidationError(fmt.Sprintf("unknown metric kind %d", int(b.kind)))
	}
}

// NamedMetric pairs a metric with the name it is reported under.
type NamedMetric[L comparable] struct {
	Name   string
	Metric Metric[L]
}

// DefaultMetrics returns the three built-in metrics under their canonical names.
func DefaultMetrics[L comparable]() []NamedMetric[L] {
	kinds := Kinds()
	metrics := make([]NamedMetric[L], len(kinds))
	for i, k := range kinds {
		metrics[i] = NamedMetric[L]{Name: k.String(), Metric: Builtin[L](k)}
	}
	return metrics
}
