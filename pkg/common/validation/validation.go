package validation

import (
	"time"

	tferrors "github.com/vnykmshr/tickflow/pkg/common/errors"
)

// ValidatePositive validates that an integer value is positive (> 0).
func ValidatePositive(module, field string, value int) error {
	if value <= 0 {
		return tferrors.NewValidationError(module, field, value, "must be positive").
			WithHint("value must be greater than 0")
	}
	return nil
}

// ValidatePositiveFloat validates that a float64 value is positive (> 0).
func ValidatePositiveFloat(module, field string, value float64) error {
	if value <= 0 {
		return tferrors.NewValidationError(module, field, value, "must be positive").
			WithHint("value must be greater than 0")
	}
	return nil
}

// ValidateNonNegativeDuration validates that a duration is >= 0.
// Zero is accepted and usually means "use the default".
func ValidateNonNegativeDuration(module, field string, value time.Duration) error {
	if value < 0 {
		return tferrors.NewValidationError(module, field, value, "cannot be negative").
			WithHint("use 0 for the default or a positive duration")
	}
	return nil
}

// ValidateNotNil validates that an interface value is not nil.
func ValidateNotNil(module, field string, value interface{}) error {
	if value == nil {
		return tferrors.NewValidationError(module, field, nil, "cannot be nil").
			WithHint("provide a valid " + field)
	}
	return nil
}

// ValidateNotEmpty validates that a string value is not empty.
func ValidateNotEmpty(module, field string, value string) error {
	if value == "" {
		return tferrors.NewValidationError(module, field, value, "cannot be empty").
			WithHint("provide a non-empty " + field)
	}
	return nil
}
