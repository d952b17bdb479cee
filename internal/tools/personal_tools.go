package tools

import (
	"context"
	"fmt"

	"github.com/finsight-ai/finsight/internal/notes"
	"github.com/finsight-ai/finsight/internal/portfolio"
)

// RegisterPersonalTools adds the personal-data tool set. All of these
// require a user identity on the context; the executor short-circuits
// them to an error result when it is absent.
func RegisterPersonalTools(r *Registry, noteStore *notes.Store, portfolioStore *portfolio.Store) {
	r.Register(&Tool{
		Name:        "save_note",
		Description: "Save a note about the user for cross-conversation memory. Use proactively when the user shares financial decisions, concerns, or when key insights emerge.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"content": map[string]any{
					"type":        "string",
					"description": "The note content. Be specific and include relevant numbers/dates",
				},
				"symbol": map[string]any{
					"type":        "string",
					"description": "Related stock ticker symbol (optional)",
				},
			},
			"required": []string{"content"},
		},
		RequiresUser: true,
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			content, err := stringArg(args, "content")
			if err != nil {
				return "", err
			}
			symbol, _ := args["symbol"].(string)
			id, err := noteStore.Add(ctx, notes.Note{
				UserID: UserIDFromContext(ctx),
				Symbol: symbol,
				Body:   content,
			})
			if err != nil {
				return "", err
			}
			return marshalResult(map[string]string{"status": "saved", "note_id": id})
		},
	})

	r.Register(&Tool{
		Name:        "get_user_notes",
		Description: "Retrieve the user's saved notes. Use when discussing topics or symbols the user has previously mentioned.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"symbol": map[string]any{
					"type":        "string",
					"description": "Filter by related symbol (optional)",
				},
				"query": map[string]any{
					"type":        "string",
					"description": "Search note content (optional)",
				},
			},
		},
		RequiresUser: true,
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			userID := UserIDFromContext(ctx)

			var (
				found []notes.Note
				err   error
			)
			switch {
			case args["query"] != nil:
				query, ok := args["query"].(string)
				if !ok {
					return "", fmt.Errorf("query must be a string")
				}
				found, err = noteStore.Search(ctx, userID, query)
			case args["symbol"] != nil:
				symbol, ok := args["symbol"].(string)
				if !ok {
					return "", fmt.Errorf("symbol must be a string")
				}
				found, err = noteStore.BySymbol(ctx, userID, symbol)
			default:
				found, err = noteStore.Recent(ctx, userID, 15)
			}
			if err != nil {
				return "", err
			}
			if len(found) == 0 {
				return marshalResult(map[string]string{"status": "no_notes"})
			}
			return marshalResult(found)
		},
	})

	r.Register(&Tool{
		Name:        "get_portfolio",
		Description: "Get the user's portfolio holdings including symbols, shares, and cost basis. Use when discussing portfolio value, allocation, or specific positions.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		RequiresUser: true,
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			holdings, err := portfolioStore.List(ctx, UserIDFromContext(ctx))
			if err != nil {
				return "", err
			}
			if len(holdings) == 0 {
				return marshalResult(map[string]string{"status": "no_holdings"})
			}
			return marshalResult(holdings)
		},
	})

	r.Register(&Tool{
		Name:        "update_portfolio",
		Description: "Add, update, or remove a position in the user's portfolio. Use when the user mentions buying, selling, or adjusting positions (e.g. 'I bought 100 AAPL at $185').",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"action": map[string]any{
					"type":        "string",
					"enum":        []string{"add", "remove"},
					"description": "Whether to add/update or remove the position",
				},
				"symbol": map[string]any{
					"type":        "string",
					"description": "Stock ticker symbol",
				},
				"shares": map[string]any{
					"type":        "number",
					"description": "Number of shares (for add/update)",
				},
				"cost_basis": map[string]any{
					"type":        "number",
					"description": "Cost per share (optional)",
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
			case "remove":
				if err := portfolioStore.Remove(ctx, userID, symbol); err != nil {
					return "", err
				}
				return marshalResult(map[string]string{"status": "removed", "symbol": symbol})
			case "add":
				shares, _ := args["shares"].(float64)
				costBasis, _ := args["cost_basis"].(float64)
				err := portfolioStore.Upsert(ctx, portfolio.Holding{
					UserID:    userID,
					Symbol:    symbol,
					Shares:    shares,
					CostBasis: costBasis,
				})
				if err != nil {
					return "", err
				}
				return marshalResult(map[string]any{"status": "updated", "symbol": symbol, "shares": shares})
			default:
				return "", fmt.Errorf("unknown action: %s", action)
			}
		},
	})
}
