// Package tools defines the tool catalog available to the model and the
// executor that runs requested tool calls.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// Tier is a reasoning cost/capability class. The registry tags each
// tool with its visibility so cheap tiers carry a smaller catalog.
type Tier string

const (
	TierRoutine  Tier = "routine"
	TierStandard Tier = "standard"
	TierDeep     Tier = "deep"
)

// Tool represents a callable tool.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`

	// Routine marks the tool as part of the reduced routine-tier
	// catalog. Standard and deep tiers always see the full catalog.
	Routine bool `json:"-"`

	// BudgetRestricted tools count against the daily deep-tier budget
	// and are gated through the tracker before dispatch.
	BudgetRestricted bool `json:"-"`

	// RequiresUser tools operate on personal data and refuse to run
	// without a user identity on the context.
	RequiresUser bool `json:"-"`

	Handler func(ctx context.Context, args map[string]any) (string, error) `json:"-"`
}

// Registry holds the available tools. It is populated once at startup
// and read-only afterwards.
type Registry struct {
	tools []*Tool
	index map[string]*Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{index: make(map[string]*Tool)}
}

// Register adds a tool to the registry. Registration order is the
// catalog order presented to the model.
func (r *Registry) Register(t *Tool) {
	if _, dup := r.index[t.Name]; dup {
		panic(fmt.Sprintf("tools: duplicate registration of %q", t.Name))
	}
	r.tools = append(r.tools, t)
	r.index[t.Name] = t
}

// Get retrieves a tool by name, or nil.
func (r *Registry) Get(name string) *Tool {
	return r.index[name]
}

// Names returns all registered tool names in catalog order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for _, t := range r.tools {
		names = append(names, t.Name)
	}
	return names
}

// Definitions returns the tool catalog visible to a tier, formatted for
// the model API. The routine tier gets the reduced subset; other tiers
// get everything.
func (r *Registry) Definitions(tier Tier) []map[string]any {
	var result []map[string]any
	for _, t := range r.tools {
		if tier == TierRoutine && !t.Routine {
			continue
		}
		result = append(result, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			},
		})
	}
	return result
}

// Execute runs a tool by name with JSON-encoded arguments. Unknown
// tools and malformed arguments are returned as errors; the executor
// converts them to error results rather than letting them escape.
func (r *Registry) Execute(ctx context.Context, name string, argsJSON string) (string, error) {
	tool := r.index[name]
	if tool == nil {
		return "", &ErrToolUnavailable{ToolName: name}
	}

	var args map[string]any
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return "", fmt.Errorf("invalid arguments: %w", err)
		}
	}

	return tool.Handler(ctx, args)
}
