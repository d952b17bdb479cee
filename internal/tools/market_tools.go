package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/finsight-ai/finsight/internal/market"
)

// RegisterMarketTools adds the market-data tool set. The routine tier
// sees only the cheapest, most frequently used lookups; transcripts are
// budget-restricted because they drive long deep-tier analyses.
func RegisterMarketTools(r *Registry, client *market.Client) {
	r.Register(&Tool{
		Name:        "get_quote",
		Description: "Get the current stock price quote for a ticker symbol. Returns price, change, change%, and volume.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"symbol": map[string]any{
					"type":        "string",
					"description": "Stock ticker symbol (e.g. AAPL, MSFT, GOOGL)",
				},
			},
			"required": []string{"symbol"},
		},
		Routine: true,
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			symbol, err := stringArg(args, "symbol")
			if err != nil {
				return "", err
			}
			q, err := client.Quote(ctx, symbol)
			if err != nil {
				return "", err
			}
			return marshalResult(q)
		},
	})

	r.Register(&Tool{
		Name:        "get_news",
		Description: "Get latest financial news headlines for a stock symbol.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"symbol": map[string]any{
					"type":        "string",
					"description": "Stock ticker symbol",
				},
				"limit": map[string]any{
					"type":        "integer",
					"description": "Maximum number of articles to return (default 5)",
				},
			},
			"required": []string{"symbol"},
		},
		Routine: true,
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			symbol, err := stringArg(args, "symbol")
			if err != nil {
				return "", err
			}
			limit := intArg(args, "limit", 5)
			items, err := client.News(ctx, symbol, limit)
			if err != nil {
				return "", err
			}
			return marshalResult(items)
		},
	})

	r.Register(&Tool{
		Name:        "get_sector_performance",
		Description: "Get performance data for all market sectors (Technology, Healthcare, Finance, etc.).",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		Routine: true,
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			sectors, err := client.SectorPerformance(ctx)
			if err != nil {
				return "", err
			}
			return marshalResult(sectors)
		},
	})

	r.Register(&Tool{
		Name:        "get_fundamentals",
		Description: "Get key financial metrics and ratios for a company: PE ratio, EPS, dividend yield, revenue, net income, debt-to-equity.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"symbol": map[string]any{
					"type":        "string",
					"description": "Stock ticker symbol",
				},
			},
			"required": []string{"symbol"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			symbol, err := stringArg(args, "symbol")
			if err != nil {
				return "", err
			}
			f, err := client.Fundamentals(ctx, symbol)
			if err != nil {
				return "", err
			}
			return marshalResult(f)
		},
	})

	r.Register(&Tool{
		Name:        "get_earnings",
		Description: "Get upcoming and recent earnings events for a company, including EPS estimates and actuals.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"symbol": map[string]any{
					"type":        "string",
					"description": "Stock ticker symbol",
				},
			},
			"required": []string{"symbol"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			symbol, err := stringArg(args, "symbol")
			if err != nil {
				return "", err
			}
			events, err := client.EarningsCalendar(ctx, symbol)
			if err != nil {
				return "", err
			}
			return marshalResult(events)
		},
	})

	r.Register(&Tool{
		Name:        "get_earnings_transcript",
		Description: "Get the earnings call transcript for a company. Transcripts are long; use only for deep analysis.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"symbol": map[string]any{
					"type":        "string",
					"description": "Stock ticker symbol",
				},
				"period": map[string]any{
					"type":        "string",
					"description": "Fiscal period (e.g. 'Q2 2026'). Omit for the most recent call.",
				},
			},
			"required": []string{"symbol"},
		},
		BudgetRestricted: true,
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			symbol, err := stringArg(args, "symbol")
			if err != nil {
				return "", err
			}
			period, _ := args["period"].(string)
			tr, err := client.Transcript(ctx, symbol, period)
			if err != nil {
				return "", err
			}
			return marshalResult(tr)
		},
	})
}

// stringArg extracts a required string argument.
func stringArg(args map[string]any, key string) (string, error) {
	v, _ := args[key].(string)
	if v == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return v, nil
}

// intArg extracts an optional integer argument. JSON numbers decode as
// float64.
func intArg(args map[string]any, key string, def int) int {
	if v, ok := args[key].(float64); ok {
		return int(v)
	}
	return def
}

func marshalResult(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	return string(b), nil
}
