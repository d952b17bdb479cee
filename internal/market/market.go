// Package market provides a client for the market data provider API:
// quotes, company news, fundamentals, sector performance, earnings
// calendars, and call transcripts. All lookups are read-only GETs.
package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/finsight-ai/finsight/internal/config"
	"github.com/finsight-ai/finsight/internal/httpkit"
)

// ErrSymbolNotFound is returned when the provider does not recognize a
// ticker symbol.
var ErrSymbolNotFound = errors.New("market: symbol not found")

// Client talks to the market data provider.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a market data client from configuration.
func NewClient(cfg config.MarketDataConfig) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(15 * time.Second),
		),
	}
}

// Configured reports whether the client has a provider endpoint.
func (c *Client) Configured() bool {
	return c.baseURL != ""
}

// Quote is a real-time price snapshot for one symbol.
type Quote struct {
	Symbol        string  `json:"symbol"`
	Price         float64 `json:"price"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"change_percent"`
	Volume        int64   `json:"volume"`
	MarketCap     float64 `json:"market_cap,omitempty"`
	Timestamp     string  `json:"timestamp"`
}

// NewsItem is one company news headline.
type NewsItem struct {
	Headline  string `json:"headline"`
	Source    string `json:"source"`
	URL       string `json:"url"`
	Published string `json:"published"`
	Summary   string `json:"summary,omitempty"`
}

// Fundamentals holds key financial metrics for one company.
type Fundamentals struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	Sector        string  `json:"sector"`
	PERatio       float64 `json:"pe_ratio"`
	EPS           float64 `json:"eps"`
	DividendYield float64 `json:"dividend_yield"`
	Revenue       float64 `json:"revenue"`
	NetIncome     float64 `json:"net_income"`
	DebtToEquity  float64 `json:"debt_to_equity"`
}

// SectorPerf is one sector's aggregate daily move.
type SectorPerf struct {
	Sector        string  `json:"sector"`
	ChangePercent float64 `json:"change_percent"`
}

// EarningsEvent is one entry from the earnings calendar.
type EarningsEvent struct {
	Symbol       string  `json:"symbol"`
	Date         string  `json:"date"`
	FiscalPeriod string  `json:"fiscal_period"`
	EPSEstimate  float64 `json:"eps_estimate,omitempty"`
	EPSActual    float64 `json:"eps_actual,omitempty"`
}

// Transcript is an earnings call transcript.
type Transcript struct {
	Symbol       string `json:"symbol"`
	FiscalPeriod string `json:"fiscal_period"`
	Date         string `json:"date"`
	Text         string `json:"text"`
}

// Quote fetches the current quote for a symbol.
func (c *Client) Quote(ctx context.Context, symbol string) (*Quote, error) {
	var q Quote
	params := url.Values{"symbol": {symbol}}
	if err := c.getJSON(ctx, "/v1/quote", params, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

// News fetches up to limit recent headlines for a symbol. A limit of
// zero uses the provider default of 5.
func (c *Client) News(ctx context.Context, symbol string, limit int) ([]NewsItem, error) {
	if limit == 0 {
		limit = 5
	}
	params := url.Values{
		"symbol": {symbol},
		"limit":  {strconv.Itoa(limit)},
	}
	var out struct {
		Items []NewsItem `json:"items"`
	}
	if err := c.getJSON(ctx, "/v1/news", params, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// Fundamentals fetches financial metrics for a symbol.
func (c *Client) Fundamentals(ctx context.Context, symbol string) (*Fundamentals, error) {
	var f Fundamentals
	params := url.Values{"symbol": {symbol}}
	if err := c.getJSON(ctx, "/v1/fundamentals", params, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// SectorPerformance fetches today's per-sector moves.
func (c *Client) SectorPerformance(ctx context.Context) ([]SectorPerf, error) {
	var out struct {
		Sectors []SectorPerf `json:"sectors"`
	}
	if err := c.getJSON(ctx, "/v1/sectors/performance", nil, &out); err != nil {
		return nil, err
	}
	return out.Sectors, nil
}

// EarningsCalendar fetches upcoming and recent earnings events for a
// symbol.
func (c *Client) EarningsCalendar(ctx context.Context, symbol string) ([]EarningsEvent, error) {
	var out struct {
		Events []EarningsEvent `json:"events"`
	}
	params := url.Values{"symbol": {symbol}}
	if err := c.getJSON(ctx, "/v1/earnings", params, &out); err != nil {
		return nil, err
	}
	return out.Events, nil
}

// Transcript fetches an earnings call transcript. fiscalPeriod may be
// empty, in which case the provider returns the most recent call.
func (c *Client) Transcript(ctx context.Context, symbol, fiscalPeriod string) (*Transcript, error) {
	params := url.Values{"symbol": {symbol}}
	if fiscalPeriod != "" {
		params.Set("period", fiscalPeriod)
	}
	var tr Transcript
	if err := c.getJSON(ctx, "/v1/transcripts", params, &tr); err != nil {
		return nil, err
	}
	return &tr, nil
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	if !c.Configured() {
		return errors.New("market: no provider configured")
	}

	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("market: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("market: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		httpkit.DrainAndClose(resp.Body, 512)
		return ErrSymbolNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("market: HTTP %d: %s", resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 512))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("market: decode response: %w", err)
	}
	return nil
}
