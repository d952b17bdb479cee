package tools

import (
	"context"
	"fmt"

	"github.com/finsight-ai/finsight/internal/fetch"
)

// RegisterResearchTools adds the web research tool set. These are
// omitted from the routine catalog; quick quote lookups never need to
// pull a page.
func RegisterResearchTools(r *Registry, fetcher *fetch.Fetcher) {
	r.Register(&Tool{
		Name:        "fetch_page",
		Description: "Fetch a web page and return its readable text. Use for news articles, SEC filings, and company investor-relations pages.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url": map[string]any{
					"type":        "string",
					"description": "URL of the page to fetch.",
				},
				"max_chars": map[string]any{
					"type":        "integer",
					"description": fmt.Sprintf("Maximum characters of extracted text to return. Default: %d.", fetch.DefaultMaxChars),
				},
			},
			"required": []string{"url"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			url, err := stringArg(args, "url")
			if err != nil {
				return "", err
			}
			maxChars := 0
			if mc, ok := args["max_chars"].(float64); ok && mc > 0 {
				maxChars = int(mc)
			}
			page, err := fetcher.Fetch(ctx, url, maxChars)
			if err != nil {
				return "", err
			}
			return marshalResult(page)
		},
	})
}
