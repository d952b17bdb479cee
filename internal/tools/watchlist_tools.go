package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/finsight-ai/finsight/internal/watchlist"
)

// RegisterWatchlistTools adds the watchlist tool set. Watched symbols
// have their live quotes injected into the system prompt each turn.
func RegisterWatchlistTools(r *Registry, store *watchlist.Store) {
	r.Register(&Tool{
		Name:        "get_watchlist",
		Description: "List the symbols on the user's watchlist.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		RequiresUser: true,
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			symbols, err := store.List(ctx, UserIDFromContext(ctx))
			if err != nil {
				return "", fmt.Errorf("list watchlist: %w", err)
			}
			return marshalResult(map[string]any{"symbols": symbols})
		},
	})

	r.Register(&Tool{
		Name:        "update_watchlist",
		Description: "Add a symbol to or remove a symbol from the user's watchlist. Watched symbols appear with live quotes in every conversation.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"action": map[string]any{
					"type": "string",
					"enum": []string{"add", "remove"},
				},
				"symbol": map[string]any{
					"type":        "string",
					"description": "Stock ticker symbol, e.g. AAPL",
				},
			},
			"required": []string{"action", "symbol"},
		},
		RequiresUser: true,
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			action, err := stringArg(args, "action")
			if err != nil {
				return "", err
			}
			symbol, err := stringArg(args, "symbol")
			if err != nil {
				return "", err
			}
			userID := UserIDFromContext(ctx)

			switch action {
			case "add":
				if err := store.Add(ctx, userID, symbol); err != nil {
					return "", fmt.Errorf("add to watchlist: %w", err)
				}
			case "remove":
				if err := store.Remove(ctx, userID, symbol); err != nil {
					return "", fmt.Errorf("remove from watchlist: %w", err)
				}
			default:
				return "", fmt.Errorf("unknown action %q (use add or remove)", action)
			}

			return marshalResult(map[string]any{
				"status": "ok",
				"action": action,
				"symbol": strings.ToUpper(symbol),
			})
		},
	})
}
