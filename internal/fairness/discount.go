package fairness

import (
	"fmt"
	"math"

	apperrors "github.com/ricesearch/fairrank/internal/pkg/errors"
)

// Discount returns the exposure weight 1/log2(1+j) of the 1-indexed rank position j.
// It decreases strictly with j; position 1 has weight 1.
func Discount(position int) (float64, error) {
	if position < 1 {
		return 0, apperrors.New(apperrors.CodeInvalidPosition,
			fmt.Sprintf("rank position %d is below 1", position)).
			WithDetail("position", fmt.Sprint(position))
	}
	return 1 / math.Log2(float64(1+position)), nil
}
