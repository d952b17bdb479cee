package llm

import "context"

// Client is the interface the reasoning capability provider must implement.
type Client interface {
	// Chat sends a chat completion request and returns the response.
	Chat(ctx context.Context, req Request) (*ChatResponse, error)

	// ChatStream sends a streaming chat request. If callback is non-nil,
	// tokens and tool-call-start events are streamed to it.
	ChatStream(ctx context.Context, req Request, callback StreamCallback) (*ChatResponse, error)

	// Ping checks if the provider is reachable.
	Ping(ctx context.Context) error
}
