package forecast

import (
	"errors"
	"fmt"
)

// ErrRecursionLimit is returned when a decomposition step would exceed the
// guard's depth budget. Rejected before any work is scheduled, never
// truncated to "as deep as allowed".
var ErrRecursionLimit = errors.New("decomposition depth limit exceeded")

// ValidationError marks malformed or out-of-bound synthesizer input.
// Surfaced to the caller; the engine does not repair intent.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid input: %s", e.Reason)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Validationf builds a ValidationError for a field.
func Validationf(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// AggregationError means every contributing result failed or timed out:
// there is no usable signal to synthesize a forecast from. This is the one
// failure that must propagate as a hard error.
type AggregationError struct {
	Kind     QuestionKind
	Attempts int
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("aggregation failed: all %d %s sub-forecasts failed or timed out", e.Attempts, e.Kind)
}
