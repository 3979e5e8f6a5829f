package validation

import (
	"errors"
	"strings"
	"testing"
	"time"

	tferrors "github.com/vnykmshr/tickflow/pkg/common/errors"
)

func TestValidatePositive(t *testing.T) {
	tests := []struct {
		name      string
		value     int
		wantError bool
	}{
		{"positive value", 10, false},
		{"positive value 1", 1, false},
		{"zero value", 0, true},
		{"negative value", -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePositive("worker", "timing_window", tt.value)

			if tt.wantError {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !tferrors.IsValidationError(err) {
					t.Errorf("expected ValidationError, got %T", err)
				}
			} else if err != nil {
				t.Errorf("expected no error, got %v", err)
			}
		})
	}
}

func TestValidatePositiveFloat(t *testing.T) {
	tests := []struct {
		name      string
		value     float64
		wantError bool
	}{
		{"positive", 60, false},
		{"small positive", 0.5, false},
		{"zero", 0, true},
		{"negative", -30, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePositiveFloat("host", "target_fps", tt.value)
			if (err != nil) != tt.wantError {
				t.Errorf("ValidatePositiveFloat(%v) error = %v, wantError %v", tt.value, err, tt.wantError)
			}
		})
	}
}

func TestValidateNonNegativeDuration(t *testing.T) {
	tests := []struct {
		name      string
		value     time.Duration
		wantError bool
	}{
		{"zero", 0, false},
		{"positive", 500 * time.Millisecond, false},
		{"negative", -time.Millisecond, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateNonNegativeDuration("job", "timeout", tt.value)
			if (err != nil) != tt.wantError {
				t.Errorf("ValidateNonNegativeDuration(%v) error = %v, wantError %v", tt.value, err, tt.wantError)
			}
		})
	}
}

func TestValidateNotNil(t *testing.T) {
	if err := ValidateNotNil("job", "body", func() {}); err != nil {
		t.Errorf("expected no error, got %v", err)
	}

	err := ValidateNotNil("job", "body", nil)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "provide a valid body") {
		t.Errorf("error should carry hint, got %q", err.Error())
	}
}

func TestValidateNotEmpty(t *testing.T) {
	if err := ValidateNotEmpty("scheduler", "name", "CollectEntities"); err != nil {
		t.Errorf("expected no error, got %v", err)
	}

	err := ValidateNotEmpty("scheduler", "name", "")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !errors.Is(err, tferrors.ErrInvalidConfiguration) {
		t.Errorf("expected ErrInvalidConfiguration, got %v", err)
	}
}
