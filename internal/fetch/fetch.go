// Package fetch downloads web pages and reduces them to readable text.
// It backs the fetch_page research tool, which the model uses to pull
// news articles, filings, and investor-relations pages into a turn.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/finsight-ai/finsight/internal/httpkit"
)

const (
	// defaultTimeout bounds a single page download.
	defaultTimeout = 30 * time.Second

	// defaultMaxBytes caps the response body read (5 MB).
	defaultMaxBytes int64 = 5 * 1024 * 1024

	// DefaultMaxChars is the extracted-text limit when the caller
	// does not specify one.
	DefaultMaxChars = 40000
)

// Page is the fetched and extracted content of a URL.
type Page struct {
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	Text        string `json:"text"`
	ContentType string `json:"content_type,omitempty"`
	Truncated   bool   `json:"truncated,omitempty"`
	StatusCode  int    `json:"status_code"`
}

// Fetcher downloads pages and extracts their readable text.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
}

// New creates a Fetcher with default limits.
func New() *Fetcher {
	return &Fetcher{
		client:   httpkit.NewClient(httpkit.WithTimeout(defaultTimeout)),
		maxBytes: defaultMaxBytes,
	}
}

// Fetch downloads rawURL and returns its readable text, truncated to
// maxChars. A maxChars of zero means DefaultMaxChars. Non-text bodies
// are rejected rather than returned.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, maxChars int) (*Page, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, fmt.Errorf("fetch: url is required")
	}
	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: invalid url: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,text/plain;q=0.8,*/*;q=0.5")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("fetch: read body: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	page := &Page{
		URL:         rawURL,
		ContentType: contentType,
		StatusCode:  resp.StatusCode,
	}

	switch {
	case isHTML(contentType):
		page.Title, page.Text = ExtractText(string(body))
	case utf8.Valid(body):
		page.Text = strings.TrimSpace(string(body))
	default:
		return nil, fmt.Errorf("fetch: %s is not a text page (%s)", rawURL, contentType)
	}

	if len(page.Text) > maxChars {
		page.Text = cutUTF8(page.Text, maxChars)
		page.Truncated = true
	}
	return page, nil
}

func isHTML(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml")
}

// cutUTF8 shortens s to at most maxChars runes without splitting a
// multi-byte sequence.
func cutUTF8(s string, maxChars int) string {
	count := 0
	for i := range s {
		if count >= maxChars {
			return s[:i]
		}
		count++
	}
	return s
}
