package conversation

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/finsight-ai/finsight/internal/config"
	"github.com/finsight-ai/finsight/internal/events"
	"github.com/finsight-ai/finsight/internal/llm"
	"github.com/finsight-ai/finsight/internal/prompts"
)

// compactTimeout bounds one background summarization call.
const compactTimeout = 60 * time.Second

// Compactor watches conversation length and compresses old history
// into summaries using the cheapest model tier. Compaction runs in the
// background and never blocks or fails a user turn: errors are logged
// and dropped, and the uncompacted history remains valid input for the
// next turn.
type Compactor struct {
	store  *Store
	client llm.Client
	model  config.TierModel
	cfg    config.SummarizerConfig
	logger *slog.Logger
	bus    *events.Bus

	mu       sync.Mutex
	inFlight map[string]bool
	wg       sync.WaitGroup
}

// NewCompactor creates a compactor. model should be the routine-tier
// model; cfg controls when compaction fires and how much history
// survives it.
func NewCompactor(store *Store, client llm.Client, model config.TierModel, cfg config.SummarizerConfig, logger *slog.Logger, bus *events.Bus) *Compactor {
	return &Compactor{
		store:    store,
		client:   client,
		model:    model,
		cfg:      cfg,
		logger:   logger.With("component", "compactor"),
		bus:      bus,
		inFlight: make(map[string]bool),
	}
}

// MaybeCompact checks a conversation's length and, if it exceeds the
// trigger threshold, starts a background compaction. At most one
// compaction runs per conversation at a time; a second trigger while
// one is in flight is a no-op. Returns whether a compaction was
// started.
func (c *Compactor) MaybeCompact(conversationID string) bool {
	count, err := c.store.Count(context.Background(), conversationID)
	if err != nil {
		c.logger.Warn("compaction length check failed",
			"conversation", conversationID, "error", err)
		return false
	}
	if count <= c.cfg.TriggerMessages {
		return false
	}

	c.mu.Lock()
	if c.inFlight[conversationID] {
		c.mu.Unlock()
		return false
	}
	c.inFlight[conversationID] = true
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			c.mu.Lock()
			delete(c.inFlight, conversationID)
			c.mu.Unlock()
		}()
		c.compact(conversationID)
	}()
	return true
}

// Wait blocks until all in-flight compactions finish. Used during
// shutdown and in tests.
func (c *Compactor) Wait() {
	c.wg.Wait()
}

func (c *Compactor) compact(conversationID string) {
	ctx, cancel := context.WithTimeout(context.Background(), compactTimeout)
	defer cancel()

	old, err := c.store.Older(ctx, conversationID, c.cfg.KeepRecent)
	if err != nil {
		c.logger.Warn("compaction fetch failed",
			"conversation", conversationID, "error", err)
		return
	}
	if len(old) == 0 {
		return
	}

	c.bus.Publish(events.Event{
		Timestamp: time.Now(),
		Source:    events.SourceSummarizer,
		Kind:      events.KindSummarizeStart,
		Data: map[string]any{
			"conversation_id": conversationID,
			"messages":        len(old),
		},
	})

	resp, err := c.client.Chat(ctx, llm.Request{
		Model: c.model.Model,
		Messages: []llm.Message{
			{Role: "user", Content: prompts.SummaryPrompt(Transcript(old))},
		},
		MaxTokens: c.model.MaxTokens,
	})
	if err != nil {
		c.logger.Warn("summarization failed",
			"conversation", conversationID,
			"model", c.model.Model,
			"error", err)
		c.publishDone(conversationID, false, 0)
		return
	}

	summary := strings.TrimSpace(resp.Message.Content)
	if summary == "" {
		c.logger.Warn("summarization produced empty summary",
			"conversation", conversationID)
		c.publishDone(conversationID, false, 0)
		return
	}

	if err := c.store.Compact(ctx, conversationID, old, summary); err != nil {
		c.logger.Warn("compaction write failed",
			"conversation", conversationID, "error", err)
		c.publishDone(conversationID, false, 0)
		return
	}

	c.logger.Info("conversation compacted",
		"conversation", conversationID,
		"compacted", len(old),
		"kept", c.cfg.KeepRecent)
	c.publishDone(conversationID, true, len(old))
}

func (c *Compactor) publishDone(conversationID string, ok bool, compacted int) {
	c.bus.Publish(events.Event{
		Timestamp: time.Now(),
		Source:    events.SourceSummarizer,
		Kind:      events.KindSummarizeDone,
		Data: map[string]any{
			"conversation_id": conversationID,
			"ok":              ok,
			"compacted":       compacted,
		},
	})
}
