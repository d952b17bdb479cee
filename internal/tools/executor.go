package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/finsight-ai/finsight/internal/events"
	"github.com/finsight-ai/finsight/internal/llm"
)

// TruncationMarker is appended to capped tool output. The marker is
// fixed text so capping an already-capped result is a no-op.
const TruncationMarker = "\n\n[truncated, ask for specific sections if needed]"

// BudgetReserver gates budget-restricted tools. Implemented by the
// budget tracker.
type BudgetReserver interface {
	TryReserve() bool
}

// Result is one tool call's outcome, attributable to its call ID.
// Errors are data: IsError results are fed back to the model as
// error-shaped payloads, never raised to the caller.
type Result struct {
	CallID  string
	Content string
	IsError bool
}

// Executor runs one round's tool calls concurrently and collects a
// result per call. A call's failure never cancels its siblings.
type Executor struct {
	registry *Registry
	budget   BudgetReserver
	timeout  time.Duration
	maxChars int
	logger   *slog.Logger
	bus      *events.Bus
}

// NewExecutor creates a tool executor. timeout bounds each individual
// tool invocation; maxChars caps each result's size.
func NewExecutor(registry *Registry, budget BudgetReserver, timeout time.Duration, maxChars int, logger *slog.Logger, bus *events.Bus) *Executor {
	return &Executor{
		registry: registry,
		budget:   budget,
		timeout:  timeout,
		maxChars: maxChars,
		logger:   logger.With("component", "executor"),
		bus:      bus,
	}
}

// Execute dispatches all calls concurrently and waits for every result.
// The returned map contains exactly one entry per requested call ID.
// Cancelling ctx aborts in-flight invocations best-effort; each call
// still produces an (error) result.
func (e *Executor) Execute(ctx context.Context, turnID string, calls []llm.ToolCall) map[string]Result {
	results := make(map[string]Result, len(calls))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, call := range calls {
		wg.Add(1)
		go func(call llm.ToolCall) {
			defer wg.Done()
			res := e.executeOne(ctx, turnID, call)
			mu.Lock()
			results[call.ID] = res
			mu.Unlock()
		}(call)
	}
	wg.Wait()

	return results
}

func (e *Executor) executeOne(ctx context.Context, turnID string, call llm.ToolCall) Result {
	name := call.Function.Name
	start := time.Now()

	e.bus.Publish(events.Event{
		Timestamp: start,
		Source:    events.SourceTools,
		Kind:      events.KindToolCall,
		Data:      map[string]any{"turn_id": turnID, "tool": name},
	})

	content, err := e.invokeSafe(ctx, call)
	ok := err == nil

	e.bus.Publish(events.Event{
		Timestamp: time.Now(),
		Source:    events.SourceTools,
		Kind:      events.KindToolDone,
		Data: map[string]any{
			"turn_id":     turnID,
			"tool":        name,
			"ok":          ok,
			"duration_ms": time.Since(start).Milliseconds(),
		},
	})

	if err != nil {
		e.logger.Warn("tool call failed", "tool", name, "error", err)
		return Result{CallID: call.ID, Content: errorPayload(name, err), IsError: true}
	}

	return Result{CallID: call.ID, Content: CapResult(content, e.maxChars)}
}

// invokeSafe wraps invoke with a panic boundary. A handler panic is a
// tool failure like any other; it must never escape the worker
// goroutine.
func (e *Executor) invokeSafe(ctx context.Context, call llm.ToolCall) (content string, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("tool handler panicked",
				"tool", call.Function.Name,
				"panic", r,
			)
			err = fmt.Errorf("tool panicked: %v", r)
		}
	}()
	return e.invoke(ctx, call)
}

// invoke runs one call with gating checks and a per-call timeout. All
// failure modes surface as errors here; executeOne converts them to
// error results.
func (e *Executor) invoke(ctx context.Context, call llm.ToolCall) (string, error) {
	name := call.Function.Name
	tool := e.registry.Get(name)
	if tool == nil {
		return "", &ErrToolUnavailable{ToolName: name}
	}

	if tool.RequiresUser && UserIDFromContext(ctx) == "" {
		return "", ErrUserRequired
	}

	// Budget-restricted tools reserve before dispatch. A committed
	// reservation stands even if the call later fails or is cancelled.
	if tool.BudgetRestricted && e.budget != nil && !e.budget.TryReserve() {
		return "", ErrBudgetExhausted
	}

	argsJSON, err := json.Marshal(call.Function.Arguments)
	if err != nil {
		return "", fmt.Errorf("encode arguments: %w", err)
	}

	callCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	e.logger.Debug("tool call", "tool", name, "args", string(argsJSON))
	return e.registry.Execute(callCtx, name, string(argsJSON))
}

// errorPayload shapes a tool failure as data for the model.
func errorPayload(tool string, err error) string {
	b, _ := json.Marshal(map[string]string{
		"error": fmt.Sprintf("Tool '%s' failed: %s", tool, err),
	})
	return string(b)
}

// CapResult truncates oversized tool output, appending the truncation
// marker. Output at or under the cap passes through unchanged, and
// capping is idempotent. The cut lands on a rune boundary so the model
// never sees a split multibyte sequence.
func CapResult(s string, maxChars int) string {
	if maxChars <= 0 || len(s) <= maxChars || strings.HasSuffix(s, TruncationMarker) {
		return s
	}
	cut := maxChars
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + TruncationMarker
}
