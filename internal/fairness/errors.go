package fairness

import (
	"fmt"

	apperrors "github.com/ricesearch/fairrank/internal/pkg/errors"
)

// Sentinel errors. Errors returned by this package carry extra details but
// match these with errors.Is.
var (
	ErrInvalidRanking     = apperrors.New(apperrors.CodeInvalidRanking, "invalid ranking")
	ErrInvalidPosition    = apperrors.New(apperrors.CodeInvalidPosition, "invalid rank position")
	ErrLengthMismatch     = apperrors.New(apperrors.CodeLengthMismatch, "length mismatch")
	ErrDivisionByZero     = apperrors.New(apperrors.CodeDivisionByZero, "division by zero")
	ErrInsufficientGroups = apperrors.New(apperrors.CodeInsufficientGroups, "insufficient groups")
	ErrMetricComputation  = apperrors.New(apperrors.CodeMetricComputation, "metric computation failed")
	ErrNotEvaluated       = apperrors.New(apperrors.CodeNotEvaluated, "frame has not been evaluated")
	ErrUnknownFeature     = apperrors.New(apperrors.CodeNotFound, "unknown sensitive feature")
)

func invalidRanking(format string, args ...any) *apperrors.AppError {
	return apperrors.New(apperrors.CodeInvalidRanking, fmt.Sprintf(format, args...))
}

func lengthMismatch(what string, got, want int) *apperrors.AppError {
	return apperrors.New(apperrors.CodeLengthMismatch,
		fmt.Sprintf("%s has %d entries, want %d", what, got, want)).
		WithDetail("got", fmt.Sprint(got)).
		WithDetail("want", fmt.Sprint(want))
}

func unknownFeature(name string) *apperrors.AppError {
	return apperrors.New(apperrors.CodeNotFound,
		fmt.Sprintf("sensitive feature %q not found", name)).
		WithDetail("feature", name)
}
