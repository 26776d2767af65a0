package forecast

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestValidationErrorMessage(t *testing.T) {
	err := Validationf("percentile", "point %d outside (0,1)", 3)
	if !strings.Contains(err.Error(), "invalid percentile") {
		t.Errorf("message %q missing field", err.Error())
	}
	if !strings.Contains(err.Error(), "point 3") {
		t.Errorf("message %q missing formatted reason", err.Error())
	}

	bare := &ValidationError{Reason: "no field"}
	if !strings.Contains(bare.Error(), "invalid input") {
		t.Errorf("fieldless message %q", bare.Error())
	}
}

func TestValidationErrorAs(t *testing.T) {
	var wrapped error = fmt.Errorf("elicitation: %w", Validationf("value", "negative"))

	var verr *ValidationError
	if !errors.As(wrapped, &verr) {
		t.Fatal("errors.As failed to unwrap ValidationError")
	}
	if verr.Field != "value" {
		t.Errorf("Field = %q, want value", verr.Field)
	}
}

func TestAggregationErrorMessage(t *testing.T) {
	err := &AggregationError{Kind: KindNumeric, Attempts: 4}
	msg := err.Error()
	if !strings.Contains(msg, "4") || !strings.Contains(msg, "numeric") {
		t.Errorf("message %q missing attempt count or kind", msg)
	}
}
