// This file defines sentinel error types for tool execution.
package tools

import (
	"errors"
	"fmt"
)

// ErrToolUnavailable is returned when a tool call targets a tool that
// is not present in the registry. This indicates a capability mismatch,
// not a transient execution failure.
type ErrToolUnavailable struct {
	ToolName string
}

// Error implements the error interface.
func (e *ErrToolUnavailable) Error() string {
	return fmt.Sprintf("tool %q is not available", e.ToolName)
}

// ErrBudgetExhausted is returned when a budget-restricted tool is
// requested after the daily deep-tier ceiling has been reached.
var ErrBudgetExhausted = errors.New("daily deep-analysis budget exhausted")

// ErrUserRequired is returned when a personal-data tool is invoked
// without a user identity on the context.
var ErrUserRequired = errors.New("no user context for personal-data tool")
