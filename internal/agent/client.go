// Package agent asks a language model for short reviewer notes on a
// reminder workflow stage.
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Request describes one stage: who is reviewing and what the task is.
type Request struct {
	Role           string
	Goal           string
	Backstory      string
	Task           string
	ExpectedOutput string
	// Output is the decision already made for the stage.
	Output string
}

func (r Request) prompt() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task:\n%s\n\n", r.Task)
	if r.ExpectedOutput != "" {
		fmt.Fprintf(&b, "Expected output:\n%s\n\n", r.ExpectedOutput)
	}
	fmt.Fprintf(&b, "Stage result:\n%s\n\nReply with at most three sentences of review notes.", r.Output)
	return b.String()
}

func (r Request) system() string {
	return fmt.Sprintf("You are the %s. Goal: %s. %s", r.Role, r.Goal, r.Backstory)
}

type Client interface {
	Review(ctx context.Context, req Request) (string, error)
}

type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// NewClient returns the client for provider. An empty provider or "none"
// returns a nil client.
func NewClient(provider string, cfg Config) (Client, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "", "none":
		return nil, nil
	case "mock":
		return NewMockClient(), nil
	case "gemini":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("gemini: api key is required")
		}
		return NewGeminiClient(cfg), nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", provider)
	}
}

type mockClient struct{}

func NewMockClient() Client {
	return mockClient{}
}

// Review returns a canned note so the pipeline can run offline.
func (mockClient) Review(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s: reviewed, no concerns.", req.Role), nil
}
