package logging

import "testing"

func TestGetBeforeInitializeIsNop(t *testing.T) {
	// Must never panic or return nil before the root exists.
	l := Get(CategoryForecast)
	if l == nil {
		t.Fatal("Get returned nil")
	}
	l.Info("discarded")
}

func TestInitializeAndGet(t *testing.T) {
	if err := Initialize("debug"); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer Sync()

	a := Get(CategoryScheduler)
	b := Get(CategoryScheduler)
	if a != b {
		t.Error("category loggers should be cached")
	}
	if Get(CategoryAgent) == a {
		t.Error("distinct categories must get distinct loggers")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"debug", "debug"},
		{"warn", "warn"},
		{"warning", "warn"},
		{"error", "error"},
		{"info", "info"},
		{"bogus", "info"},
		{"", "info"},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.in).String(); got != tt.want {
			t.Errorf("parseLevel(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
