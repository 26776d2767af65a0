package forecast

import (
	"strings"
	"testing"
)

func TestQuestionKindValid(t *testing.T) {
	tests := []struct {
		kind QuestionKind
		want bool
	}{
		{KindBinary, true},
		{KindNumeric, true},
		{KindCategorical, true},
		{QuestionKind(""), false},
		{QuestionKind("continuous"), false},
	}

	for _, tt := range tests {
		if got := tt.kind.Valid(); got != tt.want {
			t.Errorf("Valid(%q) = %v, want %v", tt.kind, got, tt.want)
		}
	}
}

func TestNewBounds(t *testing.T) {
	b := NewBounds(0, 100)

	if b.Lower == nil || *b.Lower != 0 {
		t.Errorf("Lower = %v, want 0", b.Lower)
	}
	if b.Upper == nil || *b.Upper != 100 {
		t.Errorf("Upper = %v, want 100", b.Upper)
	}
	if b.LowerOpen || b.UpperOpen {
		t.Error("new bounds should be closed on both sides")
	}
	if b.Resolution() != DefaultOutcomeCount {
		t.Errorf("Resolution() = %d, want %d", b.Resolution(), DefaultOutcomeCount)
	}
}

func TestResolutionFallback(t *testing.T) {
	var b DistributionBounds
	if b.Resolution() != DefaultOutcomeCount {
		t.Errorf("zero-value Resolution() = %d, want %d", b.Resolution(), DefaultOutcomeCount)
	}

	b.OutcomeCount = 51
	if b.Resolution() != 51 {
		t.Errorf("Resolution() = %d, want 51", b.Resolution())
	}
}

func TestNewSubQuestionAssignsID(t *testing.T) {
	a := NewSubQuestion(KindBinary, "will it rain", 1.0, 1)
	b := NewSubQuestion(KindBinary, "will it rain", 1.0, 1)

	if a.ID == "" || b.ID == "" {
		t.Fatal("sub-question IDs must be non-empty")
	}
	if a.ID == b.ID {
		t.Errorf("IDs collide: %s", a.ID)
	}
	if !strings.HasPrefix(a.ID, "sub_") {
		t.Errorf("ID %q missing sub_ prefix", a.ID)
	}
}

func TestPartialResultUsable(t *testing.T) {
	p := 0.5
	tests := []struct {
		name   string
		result PartialResult
		want   bool
	}{
		{"ok", PartialResult{Status: StatusOk, Prob: &p}, true},
		{"timed out", PartialResult{Status: StatusTimedOut}, false},
		{"failed", PartialResult{Status: StatusFailed}, false},
		{"zero value", PartialResult{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.result.Usable(); got != tt.want {
				t.Errorf("Usable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRecursionGuard(t *testing.T) {
	g := RecursionGuard{MaxDepth: 2}
	if g.Exhausted() {
		t.Error("fresh guard with budget should not be exhausted")
	}

	child := g.Child()
	if child.CurrentDepth != 1 || child.MaxDepth != 2 {
		t.Errorf("Child() = %+v, want depth 1 of 2", child)
	}
	if child.Exhausted() {
		t.Error("depth 1 of 2 should not be exhausted")
	}

	grandchild := child.Child()
	if !grandchild.Exhausted() {
		t.Error("depth 2 of 2 must be exhausted")
	}

	// Child never mutates the parent.
	if g.CurrentDepth != 0 {
		t.Errorf("parent depth mutated to %d", g.CurrentDepth)
	}
}

func TestRecursionGuardZeroBudget(t *testing.T) {
	g := RecursionGuard{MaxDepth: 0}
	if !g.Exhausted() {
		t.Error("zero budget must be exhausted immediately")
	}
}
