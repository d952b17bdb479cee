package market

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/finsight-ai/finsight/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.MarketDataConfig{
		BaseURL: srv.URL,
		APIKey:  "test-key",
	})
}

func TestQuote(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/quote" {
			t.Errorf("path = %q, want /v1/quote", r.URL.Path)
		}
		if got := r.URL.Query().Get("symbol"); got != "AAPL" {
			t.Errorf("symbol = %q, want AAPL", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"symbol":"AAPL","price":231.5,"change":2.1,"change_percent":0.92,"volume":48211000}`))
	})

	q, err := c.Quote(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if q.Symbol != "AAPL" || q.Price != 231.5 {
		t.Errorf("got quote %+v", q)
	}
}

func TestQuoteSymbolNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown symbol", http.StatusNotFound)
	})

	_, err := c.Quote(context.Background(), "ZZZZZ")
	if !errors.Is(err, ErrSymbolNotFound) {
		t.Errorf("err = %v, want ErrSymbolNotFound", err)
	}
}

func TestQuoteServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	})

	_, err := c.Quote(context.Background(), "AAPL")
	if err == nil {
		t.Fatal("expected error on HTTP 502")
	}
}

func TestNewsDefaultLimit(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("limit"); got != "5" {
			t.Errorf("limit = %q, want 5", got)
		}
		w.Write([]byte(`{"items":[{"headline":"Apple beats estimates","source":"wire","published":"2026-08-30"}]}`))
	})

	items, err := c.News(context.Background(), "AAPL", 0)
	if err != nil {
		t.Fatalf("News: %v", err)
	}
	if len(items) != 1 || items[0].Headline != "Apple beats estimates" {
		t.Errorf("got items %+v", items)
	}
}

func TestSectorPerformance(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/sectors/performance" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`{"sectors":[{"sector":"Technology","change_percent":1.4},{"sector":"Energy","change_percent":-0.6}]}`))
	})

	sectors, err := c.SectorPerformance(context.Background())
	if err != nil {
		t.Fatalf("SectorPerformance: %v", err)
	}
	if len(sectors) != 2 || sectors[0].Sector != "Technology" {
		t.Errorf("got sectors %+v", sectors)
	}
}

func TestTranscriptPeriodParam(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("period"); got != "Q2 2026" {
			t.Errorf("period = %q, want %q", got, "Q2 2026")
		}
		w.Write([]byte(`{"symbol":"MSFT","fiscal_period":"Q2 2026","date":"2026-07-22","text":"Good afternoon..."}`))
	})

	tr, err := c.Transcript(context.Background(), "MSFT", "Q2 2026")
	if err != nil {
		t.Fatalf("Transcript: %v", err)
	}
	if tr.FiscalPeriod != "Q2 2026" {
		t.Errorf("got transcript %+v", tr)
	}
}

func TestUnconfigured(t *testing.T) {
	c := NewClient(config.MarketDataConfig{})
	if c.Configured() {
		t.Error("Configured() = true with empty base URL")
	}
	if _, err := c.Quote(context.Background(), "AAPL"); err == nil {
		t.Error("expected error from unconfigured client")
	}
}
