// Package agent is the LLM boundary of the engine. It owns the prompts that
// elicit percentile estimates, probabilities, weights, and proposed
// sub-questions, and it validates every payload at the boundary so the
// numeric core never sees untyped data.
package agent

import (
	"context"

	"prognos/internal/scheduler"
)

// Client is the interface to an LLM provider.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// ScheduledClient routes every call through the rate-limited executor so all
// agent traffic shares the same slot pool. Implements Client, so it can be
// injected transparently.
type ScheduledClient struct {
	exec   *scheduler.Executor
	client Client
}

var _ Client = (*ScheduledClient)(nil)

// NewScheduledClient wraps client with exec.
func NewScheduledClient(exec *scheduler.Executor, client Client) *ScheduledClient {
	return &ScheduledClient{exec: exec, client: client}
}

// Complete makes a slot-limited call.
func (c *ScheduledClient) Complete(ctx context.Context, prompt string) (string, error) {
	var out string
	err := c.exec.Do(ctx, "llm.complete", func(ctx context.Context) error {
		var err error
		out, err = c.client.Complete(ctx, prompt)
		return err
	})
	return out, err
}

// CompleteWithSystem makes a slot-limited call with a system prompt.
func (c *ScheduledClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	var out string
	err := c.exec.Do(ctx, "llm.complete_with_system", func(ctx context.Context) error {
		var err error
		out, err = c.client.CompleteWithSystem(ctx, systemPrompt, userPrompt)
		return err
	})
	return out, err
}
