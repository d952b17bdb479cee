// Package llm provides the reasoning-capability client used by the
// orchestration engine.
package llm

import (
	"log/slog"
	"time"
)

// LevelTrace is below Debug, used for wire-level payload logging.
const LevelTrace = slog.Level(-8)

// Message represents a chat message for the LLM.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // For tool responses
}

// ToolCall represents a tool call from the model.
type ToolCall struct {
	ID       string `json:"id,omitempty"` // Provider-assigned ID, used for tool_result correlation
	Function struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"function"`
}

// Request is a provider-neutral chat completion request.
type Request struct {
	Model     string
	Messages  []Message
	Tools     []map[string]any
	MaxTokens int
}

// ChatResponse is the unified response from the provider. All fields use
// proper Go types; wire format conversion happens at the provider boundary.
type ChatResponse struct {
	Model     string
	CreatedAt time.Time
	Message   Message
	Done      bool

	// Token usage (provider-neutral)
	InputTokens  int
	OutputTokens int
}

// StreamEvent represents a single event in a streaming response.
// Consumers switch on Kind to determine what data is available.
type StreamEvent struct {
	Kind StreamEventKind

	// Token is set for KindToken events.
	Token string

	// ToolName is set for KindToolCallStart events.
	ToolName string
}

// StreamEventKind identifies the type of stream event.
type StreamEventKind int

const (
	// KindToken is an incremental text token from the model.
	KindToken StreamEventKind = iota

	// KindToolCallStart fires when the model begins a tool-use block.
	// Consumers that gate user-visible streaming suppress output once
	// this event is seen.
	KindToolCallStart
)

// StreamCallback receives streaming events.
type StreamCallback func(event StreamEvent)
