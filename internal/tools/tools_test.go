package tools

import (
	"context"
	"errors"
	"testing"
)

func newTestRegistry() *Registry {
	r := NewRegistry()
	r.Register(&Tool{
		Name:        "get_quote",
		Description: "quote lookup",
		Parameters:  map[string]any{"type": "object"},
		Routine:     true,
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return `{"symbol":"AAPL","price":231.5}`, nil
		},
	})
	r.Register(&Tool{
		Name:        "get_fundamentals",
		Description: "fundamentals lookup",
		Parameters:  map[string]any{"type": "object"},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return `{}`, nil
		},
	})
	r.Register(&Tool{
		Name:         "get_portfolio",
		Description:  "portfolio lookup",
		Parameters:   map[string]any{"type": "object"},
		RequiresUser: true,
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return `{}`, nil
		},
	})
	return r
}

func TestDefinitionsRoutineSubset(t *testing.T) {
	r := newTestRegistry()

	routine := r.Definitions(TierRoutine)
	if len(routine) != 1 {
		t.Fatalf("routine catalog has %d tools, want 1", len(routine))
	}
	fn := routine[0]["function"].(map[string]any)
	if fn["name"] != "get_quote" {
		t.Errorf("routine tool = %v, want get_quote", fn["name"])
	}

	for _, tier := range []Tier{TierStandard, TierDeep} {
		if got := len(r.Definitions(tier)); got != 3 {
			t.Errorf("%s catalog has %d tools, want 3", tier, got)
		}
	}
}

func TestExecuteUnknownTool(t *testing.T) {
	r := newTestRegistry()

	_, err := r.Execute(context.Background(), "get_weather", "{}")
	if err == nil {
		t.Fatal("expected error for unknown tool")
	}
	var unavailable *ErrToolUnavailable
	if !errors.As(err, &unavailable) {
		t.Errorf("err = %T, want *ErrToolUnavailable", err)
	}
}

func TestExecuteInvalidArgs(t *testing.T) {
	r := newTestRegistry()

	_, err := r.Execute(context.Background(), "get_quote", "{not json")
	if err == nil {
		t.Fatal("expected error for malformed arguments")
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	r := newTestRegistry()
	defer func() {
		if recover() == nil {
			t.Error("duplicate Register did not panic")
		}
	}()
	r.Register(&Tool{Name: "get_quote"})
}
