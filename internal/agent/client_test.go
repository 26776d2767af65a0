package agent

import (
	"context"
	"testing"

	"prognos/internal/scheduler"
)

func TestScheduledClientRoutesThroughExecutor(t *testing.T) {
	exec := scheduler.New(scheduler.Config{MaxConcurrent: 1})
	defer exec.Stop()

	inner := &scriptedClient{responses: []string{"first", "second"}}
	c := NewScheduledClient(exec, inner)

	out, err := c.Complete(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "first" {
		t.Errorf("out = %q", out)
	}

	out, err = c.CompleteWithSystem(context.Background(), "sys", "hello again")
	if err != nil {
		t.Fatalf("CompleteWithSystem: %v", err)
	}
	if out != "second" {
		t.Errorf("out = %q", out)
	}

	if m := exec.Snapshot(); m.TotalCalls != 2 {
		t.Errorf("TotalCalls = %d, want 2", m.TotalCalls)
	}
}

func TestScheduledClientCancelledContext(t *testing.T) {
	exec := scheduler.New(scheduler.Config{MaxConcurrent: 1})
	defer exec.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewScheduledClient(exec, &scriptedClient{responses: []string{"unused"}})
	if _, err := c.Complete(ctx, "hello"); err == nil {
		t.Fatal("expected context error")
	}
}
