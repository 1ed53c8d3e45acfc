package fairness

import (
	"fmt"

	apperrors "github.com/ricesearch/fairrank/internal/pkg/errors"
)

// GroupMean averages per-item values within every group of p.
func GroupMean[L comparable](values []float64, p *Partition[L]) (*GroupValues[L], error) {
	if len(values) != p.Items() {
		return nil, lengthMismatch("values", len(values), p.Items())
	}

	out := newGroupValues[L](p.Len())
	for label, members := range p.Groups() {
		sum := 0.0
		for _, i := range members {
			sum += values[i]
		}
		out.add(label, sum/float64(len(members)))
	}
	return out, nil
}

// GroupExposure returns the mean exposure per group.
func GroupExposure[L comparable](ranking []int, p *Partition[L]) (*GroupValues[L], error) {
	exposure, err := Exposure(ranking)
	if err != nil {
		return nil, err
	}
	return GroupMean(exposure, p)
}

// GroupUtility returns the mean relevance per group.
func GroupUtility[L comparable](relevance []float64, p *Partition[L]) (*GroupValues[L], error) {
	return GroupMean(relevance, p)
}

// GroupProportionalExposure returns exposure divided by utility per group.
// A group whose utility is exactly zero fails with ErrDivisionByZero.
func GroupProportionalExposure[L comparable](relevance []float64, ranking []int, p *Partition[L]) (*GroupValues[L], error) {
	exposure, err := GroupExposure(ranking, p)
	if err != nil {
		return nil, err
	}
	utility, err := GroupUtility(relevance, p)
	if err != nil {
		return nil, err
	}

	out := newGroupValues[L](p.Len())
	for label, e := range exposure.All() {
		u, _ := utility.Get(label)
		if u == 0 {
			return nil, apperrors.New(apperrors.CodeDivisionByZero,
				fmt.Sprintf("group %v has zero utility", label)).
				WithDetail("group", fmt.Sprint(label))
		}
		out.add(label, e/u)
	}
	return out, nil
}
