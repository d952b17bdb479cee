package watchlist

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/finsight-ai/finsight/internal/market"
)

// QuoteGetter abstracts the market data client for fetching quotes.
// Using an interface keeps the provider testable without a real
// provider endpoint.
type QuoteGetter interface {
	Quote(ctx context.Context, symbol string) (*market.Quote, error)
}

// Provider fetches live quotes for a user's watched symbols and formats
// them as a markdown block for system prompt injection.
type Provider struct {
	store  *Store
	quotes QuoteGetter
	logger *slog.Logger
}

// NewProvider creates a watchlist context provider.
func NewProvider(store *Store, quotes QuoteGetter, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		store:  store,
		quotes: quotes,
		logger: logger,
	}
}

// GetContext returns a formatted markdown block of watched symbol
// quotes for injection into the system prompt. Returns an empty string
// when the watchlist is empty.
func (p *Provider) GetContext(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", nil
	}
	symbols, err := p.store.List(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("list watched symbols: %w", err)
	}
	if len(symbols) == 0 {
		return "", nil
	}

	var sb strings.Builder
	sb.WriteString("### Watchlist\n\n")

	for _, sym := range symbols {
		q, err := p.quotes.Quote(ctx, sym)
		if err != nil {
			p.logger.Warn("failed to fetch watched symbol quote",
				"symbol", sym,
				"error", err,
			)
			fmt.Fprintf(&sb, "- **%s**: quote unavailable\n", sym)
			continue
		}
		fmt.Fprintf(&sb, "- **%s**: $%.2f (%+.2f%%)\n", q.Symbol, q.Price, q.ChangePercent)
	}

	return sb.String(), nil
}
