package tools

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/finsight-ai/finsight/internal/llm"
)

// fixedBudget is a BudgetReserver with a fixed number of grants.
type fixedBudget struct {
	mu        sync.Mutex
	remaining int
}

func (b *fixedBudget) TryReserve() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.remaining <= 0 {
		return false
	}
	b.remaining--
	return true
}

func makeCall(id, name string, args map[string]any) llm.ToolCall {
	var tc llm.ToolCall
	tc.ID = id
	tc.Function.Name = name
	tc.Function.Arguments = args
	return tc
}

func testExecutor(t *testing.T, r *Registry, budget BudgetReserver) *Executor {
	t.Helper()
	return NewExecutor(r, budget, 5*time.Second, 100, slog.Default(), nil)
}

func TestExecuteResultPerCallID(t *testing.T) {
	r := newTestRegistry()
	e := testExecutor(t, r, nil)

	calls := []llm.ToolCall{
		makeCall("c1", "get_quote", map[string]any{"symbol": "AAPL"}),
		makeCall("c2", "get_fundamentals", map[string]any{"symbol": "AAPL"}),
		makeCall("c3", "get_weather", nil), // unknown tool
	}

	results := e.Execute(context.Background(), "t1", calls)

	// Exactly one result per submitted call ID, no missing, no extra.
	if len(results) != len(calls) {
		t.Fatalf("got %d results, want %d", len(results), len(calls))
	}
	for _, c := range calls {
		if _, ok := results[c.ID]; !ok {
			t.Errorf("missing result for call %s", c.ID)
		}
	}

	if results["c1"].IsError {
		t.Errorf("c1 errored: %s", results["c1"].Content)
	}
	if !results["c3"].IsError {
		t.Error("unknown tool did not produce an error result")
	}
}

func TestExecuteErrorIsData(t *testing.T) {
	r := NewRegistry()
	r.Register(&Tool{
		Name:       "flaky",
		Parameters: map[string]any{"type": "object"},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return "", errors.New("connection refused")
		},
	})
	e := testExecutor(t, r, nil)

	results := e.Execute(context.Background(), "t1", []llm.ToolCall{makeCall("c1", "flaky", nil)})

	res := results["c1"]
	if !res.IsError {
		t.Fatal("expected error result")
	}
	var payload map[string]string
	if err := json.Unmarshal([]byte(res.Content), &payload); err != nil {
		t.Fatalf("error result is not JSON: %v", err)
	}
	if !strings.Contains(payload["error"], "connection refused") {
		t.Errorf("error payload = %q", payload["error"])
	}
}

func TestExecutePanicIsData(t *testing.T) {
	r := NewRegistry()
	r.Register(&Tool{
		Name:       "broken",
		Parameters: map[string]any{"type": "object"},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			var s string
			_ = args["value"].(int) // deliberate bad assertion
			return s, nil
		},
	})
	r.Register(&Tool{
		Name:       "healthy",
		Parameters: map[string]any{"type": "object"},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return `{"ok":true}`, nil
		},
	})
	e := testExecutor(t, r, nil)

	results := e.Execute(context.Background(), "t1", []llm.ToolCall{
		makeCall("c1", "broken", map[string]any{"value": "not an int"}),
		makeCall("c2", "healthy", nil),
	})

	res := results["c1"]
	if !res.IsError {
		t.Fatal("panicking handler did not produce an error result")
	}
	if !strings.Contains(res.Content, "panicked") {
		t.Errorf("error payload = %q, want panic converted to data", res.Content)
	}
	if results["c2"].IsError {
		t.Errorf("sibling affected by panic: %s", results["c2"].Content)
	}
}

func TestExecuteFailureDoesNotCancelSiblings(t *testing.T) {
	r := NewRegistry()
	r.Register(&Tool{
		Name:       "fail",
		Parameters: map[string]any{"type": "object"},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return "", errors.New("boom")
		},
	})
	r.Register(&Tool{
		Name:       "slow_ok",
		Parameters: map[string]any{"type": "object"},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			select {
			case <-time.After(50 * time.Millisecond):
				return "ok", nil
			case <-ctx.Done():
				return "", ctx.Err()
			}
		},
	})
	e := testExecutor(t, r, nil)

	results := e.Execute(context.Background(), "t1", []llm.ToolCall{
		makeCall("c1", "fail", nil),
		makeCall("c2", "slow_ok", nil),
	})

	if !results["c1"].IsError {
		t.Error("fail tool did not produce an error result")
	}
	if results["c2"].IsError || results["c2"].Content != "ok" {
		t.Errorf("sibling was affected by failure: %+v", results["c2"])
	}
}

func TestExecuteTimeout(t *testing.T) {
	r := NewRegistry()
	r.Register(&Tool{
		Name:       "hang",
		Parameters: map[string]any{"type": "object"},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	})
	e := NewExecutor(r, nil, 20*time.Millisecond, 100, slog.Default(), nil)

	results := e.Execute(context.Background(), "t1", []llm.ToolCall{makeCall("c1", "hang", nil)})
	if !results["c1"].IsError {
		t.Error("timed-out tool did not produce an error result")
	}
}

func TestExecuteBudgetGating(t *testing.T) {
	r := NewRegistry()
	r.Register(&Tool{
		Name:             "get_earnings_transcript",
		Parameters:       map[string]any{"type": "object"},
		BudgetRestricted: true,
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return "transcript text", nil
		},
	})
	e := testExecutor(t, r, &fixedBudget{remaining: 1})

	first := e.Execute(context.Background(), "t1", []llm.ToolCall{makeCall("c1", "get_earnings_transcript", nil)})
	if first["c1"].IsError {
		t.Fatalf("first call errored: %s", first["c1"].Content)
	}

	second := e.Execute(context.Background(), "t2", []llm.ToolCall{makeCall("c2", "get_earnings_transcript", nil)})
	if !second["c2"].IsError {
		t.Fatal("second call did not short-circuit on exhausted budget")
	}
	if !strings.Contains(second["c2"].Content, "budget") {
		t.Errorf("error payload = %q, want budget mention", second["c2"].Content)
	}
}

func TestExecuteRequiresUser(t *testing.T) {
	r := newTestRegistry()
	e := testExecutor(t, r, nil)

	// No user identity on the context.
	noUser := e.Execute(context.Background(), "t1", []llm.ToolCall{makeCall("c1", "get_portfolio", nil)})
	if !noUser["c1"].IsError {
		t.Fatal("personal-data tool ran without user identity")
	}

	ctx := WithUserID(context.Background(), "u1")
	withUser := e.Execute(ctx, "t2", []llm.ToolCall{makeCall("c2", "get_portfolio", nil)})
	if withUser["c2"].IsError {
		t.Errorf("personal-data tool errored with user identity: %s", withUser["c2"].Content)
	}
}

func TestCapResult(t *testing.T) {
	const cap = 50

	short := strings.Repeat("a", cap)
	if got := CapResult(short, cap); got != short {
		t.Errorf("output at cap was modified")
	}

	long := strings.Repeat("b", cap+100)
	got := CapResult(long, cap)
	want := long[:cap] + TruncationMarker
	if got != want {
		t.Errorf("CapResult = %d chars, want cap plus marker", len(got))
	}

	// Idempotent: capping a capped result is a no-op.
	if again := CapResult(got, cap); again != got {
		t.Error("second truncation changed an already-capped result")
	}
}

func TestCapResultRuneBoundary(t *testing.T) {
	// Two-byte runes with an odd cap land the byte index mid-rune.
	long := strings.Repeat("é", 60)
	got := CapResult(long, 51)

	if !strings.HasSuffix(got, TruncationMarker) {
		t.Fatal("truncated result missing marker")
	}
	body := strings.TrimSuffix(got, TruncationMarker)
	if !utf8.ValidString(body) {
		t.Errorf("truncation split a rune: %q", body[len(body)-4:])
	}
	if len(body) > 51 {
		t.Errorf("body is %d bytes, want at most 51", len(body))
	}
}

func TestCapResultAppliedByExecutor(t *testing.T) {
	r := NewRegistry()
	r.Register(&Tool{
		Name:       "big",
		Parameters: map[string]any{"type": "object"},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return strings.Repeat("x", 500), nil
		},
	})
	e := NewExecutor(r, nil, time.Second, 100, slog.Default(), nil)

	results := e.Execute(context.Background(), "t1", []llm.ToolCall{makeCall("c1", "big", nil)})
	got := results["c1"].Content
	if len(got) != 100+len(TruncationMarker) {
		t.Errorf("result length = %d, want %d", len(got), 100+len(TruncationMarker))
	}
	if !strings.HasSuffix(got, TruncationMarker) {
		t.Error("capped result missing truncation marker")
	}
}
