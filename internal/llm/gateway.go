// Package llm provides the stateless gateway the engine uses to talk to
// language-model providers, plus the typed provider errors the orchestrator's
// fallback logic keys on.
package llm

import (
	"context"
	"fmt"
	"time"
)

// Message is one chat turn sent to a provider.
type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// Request is a single provider call. The gateway is stateless: everything the
// provider needs is carried here.
type Request struct {
	Model        string
	SystemPrompt string
	Messages     []Message
	Temperature  float64
}

// Response carries the provider's text output.
type Response struct {
	Text string
}

// Gateway routes a call to a named provider.
type Gateway interface {
	Call(ctx context.Context, provider string, req Request) (Response, error)
}

// Client is one concrete provider implementation behind the gateway.
type Client interface {
	Name() string
	Complete(ctx context.Context, req Request) (Response, error)
}

// StubProviderName is the deterministic offline provider used as the
// not_configured fallback for non-admin callers.
const StubProviderName = "stub"

// Registry is a Gateway over a fixed set of named clients. An unknown provider
// name maps to a not_configured error so the orchestrator's fallback applies.
type Registry struct {
	clients map[string]Client
	timeout time.Duration
}

// NewRegistry builds a gateway over the given clients. callTimeout bounds each
// upstream call; zero means no per-call timeout.
func NewRegistry(callTimeout time.Duration, clients ...Client) *Registry {
	m := make(map[string]Client, len(clients))
	for _, c := range clients {
		m[c.Name()] = c
	}
	return &Registry{clients: m, timeout: callTimeout}
}

// Call dispatches to the named provider.
func (r *Registry) Call(ctx context.Context, provider string, req Request) (Response, error) {
	c, ok := r.clients[provider]
	if !ok {
		return Response{}, &ProviderError{
			Code:     CodeNotConfigured,
			Provider: provider,
			Message:  fmt.Sprintf("provider %q is not configured", provider),
		}
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	return c.Complete(ctx, req)
}
