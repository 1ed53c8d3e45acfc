package security

import (
	"fmt"
	"unicode"
	"unicode/utf8"
)

// Validation limits.
const (
	// MaxNameLength bounds dataset, feature and metric names.
	MaxNameLength = 256

	// MaxLabelLength bounds a single group label.
	MaxLabelLength = 256
)

// ValidationError represents a field validation error.
type ValidationError struct {
	Field      string
	Value      any
	Constraint string
}

func (e *ValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("validation failed for %s: %s (got: %v)", e.Field, e.Constraint, e.Value)
	}
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Constraint)
}

// ValidateName validates a required display name: non-empty, valid UTF-8,
// at most MaxNameLength characters and free of control characters.
func ValidateName(field, name string) error {
	if name == "" {
		return &ValidationError{Field: field, Constraint: "required"}
	}
	return validateText(field, name, MaxNameLength)
}

// ValidateLabel validates a group label. Empty labels are allowed.
func ValidateLabel(field, label string) error {
	return validateText(field, label, MaxLabelLength)
}

func validateText(field, s string, maxLen int) error {
	if !utf8.ValidString(s) {
		return &ValidationError{Field: field, Constraint: "must be valid UTF-8"}
	}

	if n := utf8.RuneCountInString(s); n > maxLen {
		return &ValidationError{
			Field:      field,
			Value:      n,
			Constraint: fmt.Sprintf("maximum length is %d characters", maxLen),
		}
	}

	for _, r := range s {
		if unicode.IsControl(r) {
			return &ValidationError{
				Field:      field,
				Value:      SanitizeForLogWithLength(s, 40),
				Constraint: "must not contain control characters",
			}
		}
	}

	return nil
}
