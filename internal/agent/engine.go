// Package agent implements the orchestration engine: one user turn is
// routed to a reasoning tier, run through a bounded model-call/tool-call
// loop, and streamed back to the caller as terminal text.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/finsight-ai/finsight/internal/budget"
	"github.com/finsight-ai/finsight/internal/config"
	"github.com/finsight-ai/finsight/internal/conversation"
	"github.com/finsight-ai/finsight/internal/events"
	"github.com/finsight-ai/finsight/internal/llm"
	"github.com/finsight-ai/finsight/internal/portfolio"
	"github.com/finsight-ai/finsight/internal/prompts"
	"github.com/finsight-ai/finsight/internal/router"
	"github.com/finsight-ai/finsight/internal/tools"
	"github.com/finsight-ai/finsight/internal/usage"
)

// retryBackoff is the pause before the single model-call retry.
const retryBackoff = 500 * time.Millisecond

// StreamFunc receives user-visible text chunks as the terminal answer
// is produced. Partial text from tool-calling rounds is never delivered.
type StreamFunc func(chunk string)

// ContextProvider contributes a block to the system prompt's user
// context. Provider failures degrade to an empty block, never abort a
// turn.
type ContextProvider interface {
	GetContext(ctx context.Context, userID string) (string, error)
}

// Config wires the engine's collaborators. Bus, Compactor, Usage and
// Portfolio may be nil; the engine degrades to no events, no compaction,
// no usage accounting and no portfolio context respectively.
type Config struct {
	Client        llm.Client
	Router        *router.Router
	Executor      *tools.Executor
	Budget        *budget.Tracker
	Conversations *conversation.Store
	Compactor     *conversation.Compactor
	Usage         *usage.Store
	Portfolio     *portfolio.Store
	Context       []ContextProvider
	Bus           *events.Bus
	Tiers         config.TiersConfig
	Engine        config.EngineConfig
	Pricing       map[string]config.PricingEntry
	Logger        *slog.Logger
}

// TurnResult is the outcome of one completed user turn.
type TurnResult struct {
	TurnID        string     `json:"turn_id"`
	Content       string     `json:"content"`
	Model         string     `json:"model"`
	Tier          tools.Tier `json:"tier"`
	Rounds        int        `json:"rounds"`
	InputTokens   int        `json:"input_tokens"`
	OutputTokens  int        `json:"output_tokens"`
	CostUSD       float64    `json:"cost_usd"`
	BudgetLimited bool       `json:"budget_limited,omitempty"`
}

// Engine runs user turns. A turn is routed once, then loops between
// model calls and concurrent tool execution until the model produces
// terminal text or the round ceiling forces one.
type Engine struct {
	logger        *slog.Logger
	client        llm.Client
	router        *router.Router
	executor      *tools.Executor
	budget        *budget.Tracker
	conversations *conversation.Store
	compactor     *conversation.Compactor
	usage         *usage.Store
	portfolio     *portfolio.Store
	providers     []ContextProvider
	bus           *events.Bus
	tiers         config.TiersConfig
	cfg           config.EngineConfig
	pricing       map[string]config.PricingEntry

	// Per-conversation locks serialize turns so no two turns mutate
	// the same conversation's history concurrently.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates an engine from its wired collaborators.
func New(c Config) *Engine {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		logger:        logger,
		client:        c.Client,
		router:        c.Router,
		executor:      c.Executor,
		budget:        c.Budget,
		conversations: c.Conversations,
		compactor:     c.Compactor,
		usage:         c.Usage,
		portfolio:     c.Portfolio,
		providers:     c.Context,
		bus:           c.Bus,
		tiers:         c.Tiers,
		cfg:           c.Engine,
		pricing:       c.Pricing,
		locks:         make(map[string]*sync.Mutex),
	}
}

// RunTurn executes one user turn. Terminal text is delivered
// incrementally via stream (which may be nil) and returned whole in the
// result. A model transport failure is retried once; a second failure
// is the only error surfaced to the caller.
func (e *Engine) RunTurn(ctx context.Context, conversationID, userID, message string, stream StreamFunc) (*TurnResult, error) {
	if strings.TrimSpace(message) == "" {
		return nil, fmt.Errorf("message is required")
	}
	if conversationID == "" {
		conversationID = "default"
	}

	lock := e.convLock(conversationID)
	lock.Lock()
	defer lock.Unlock()

	turnUUID, _ := uuid.NewV7()
	turnID := turnUUID.String()
	start := time.Now()

	ctx = tools.WithConversationID(ctx, conversationID)
	ctx = tools.WithUserID(ctx, userID)

	symbols := e.heldSymbols(ctx, userID)
	decision := e.router.Route(message, symbols)
	tier := decision.Tier
	budgetLimited := decision.BudgetLimited

	// Routing only reads the budget; the reservation happens here so
	// concurrent deep turns contend on a single atomic operation.
	if tier == tools.TierDeep && e.budget != nil && !e.budget.TryReserve() {
		tier = tools.TierStandard
		budgetLimited = true
	}
	if budgetLimited {
		e.publish(events.KindTierDowngrade, map[string]any{
			"turn_id":        turnID,
			"requested_tier": string(tools.TierDeep),
			"assigned_tier":  string(tier),
		})
	}

	model := e.tierModel(tier)

	e.publish(events.KindTurnStart, map[string]any{
		"turn_id":         turnID,
		"conversation_id": conversationID,
		"tier":            string(tier),
	})
	e.logger.Info("turn started",
		"turn_id", turnID,
		"conversation_id", conversationID,
		"tier", tier,
		"model", model.Model,
		"budget_limited", budgetLimited,
	)

	messages, err := e.assembleMessages(ctx, conversationID, userID, message, symbols, tier)
	if err != nil {
		return nil, fmt.Errorf("assemble history: %w", err)
	}

	st := &turnState{
		turnID:         turnID,
		conversationID: conversationID,
		tier:           tier,
		model:          model,
		toolDefs:       decision.Tools,
		messages:       messages,
		gate:           &streamGate{emit: stream},
	}

	content, err := e.runRounds(ctx, st)
	if err != nil {
		return nil, err
	}

	if err := e.persistTurn(ctx, conversationID, message, content); err != nil {
		e.logger.Error("failed to persist turn", "turn_id", turnID, "error", err)
	}
	if e.compactor != nil {
		e.compactor.MaybeCompact(conversationID)
	}

	elapsed := time.Since(start)
	e.publish(events.KindTurnComplete, map[string]any{
		"turn_id":          turnID,
		"model":            model.Model,
		"rounds":           st.rounds,
		"total_tokens_in":  st.inputTokens,
		"total_tokens_out": st.outputTokens,
		"total_cost_usd":   st.costUSD,
		"elapsed_ms":       elapsed.Milliseconds(),
	})
	e.logger.Info("turn completed",
		"turn_id", turnID,
		"conversation_id", conversationID,
		"rounds", st.rounds,
		"input_tokens", st.inputTokens,
		"output_tokens", st.outputTokens,
		"cost_usd", st.costUSD,
		"elapsed", elapsed.Round(time.Millisecond),
	)

	return &TurnResult{
		TurnID:        turnID,
		Content:       content,
		Model:         model.Model,
		Tier:          tier,
		Rounds:        st.rounds,
		InputTokens:   st.inputTokens,
		OutputTokens:  st.outputTokens,
		CostUSD:       st.costUSD,
		BudgetLimited: budgetLimited,
	}, nil
}

// turnState accumulates per-turn progress across rounds.
type turnState struct {
	turnID         string
	conversationID string
	tier           tools.Tier
	model          config.TierModel
	toolDefs       []map[string]any
	messages       []llm.Message
	gate           *streamGate

	rounds       int
	inputTokens  int
	outputTokens int
	costUSD      float64
}

// runRounds drives the model-call/tool-call loop until terminal text or
// the round ceiling. Tool failures are data fed back to the model; only
// a model transport failure after retry aborts the turn.
func (e *Engine) runRounds(ctx context.Context, st *turnState) (string, error) {
	maxRounds := e.cfg.MaxToolRounds
	if maxRounds <= 0 {
		maxRounds = 6
	}

	for range maxRounds {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("turn cancelled: %w", err)
		}

		st.gate.reset()
		resp, err := e.modelCall(ctx, st, st.toolDefs)
		if err != nil {
			return "", err
		}

		if len(resp.Message.ToolCalls) == 0 {
			return e.finishTurn(ctx, st, resp.Message.Content)
		}

		st.messages = append(st.messages, resp.Message)
		results := e.executor.Execute(ctx, st.turnID, resp.Message.ToolCalls)
		for _, tc := range resp.Message.ToolCalls {
			r := results[tc.ID]
			st.messages = append(st.messages, llm.Message{
				Role:       "tool",
				Content:    r.Content,
				ToolCallID: tc.ID,
			})
		}
	}

	// Round ceiling reached. Force terminal text with tools withheld.
	e.logger.Warn("round ceiling reached, forcing text response",
		"turn_id", st.turnID,
		"max_rounds", maxRounds,
	)
	st.gate.reset()
	resp, err := e.modelCall(ctx, st, nil)
	if err != nil || strings.TrimSpace(resp.Message.Content) == "" {
		if err != nil {
			e.logger.Warn("forced text response failed", "turn_id", st.turnID, "error", err)
		}
		st.gate.emitDirect(prompts.RoundLimitApology)
		return prompts.RoundLimitApology, nil
	}
	return e.finishText(st, resp.Message.Content), nil
}

// finishTurn resolves a terminal round. For a streaming caller the
// answer is re-issued as a dedicated call with tools withheld and
// streamed live, so text from tool-capable rounds never reaches the
// stream. Without a caller stream the round's content stands as is.
func (e *Engine) finishTurn(ctx context.Context, st *turnState, content string) (string, error) {
	if !st.gate.wantsStream() || strings.TrimSpace(content) == "" {
		return e.finishText(st, content), nil
	}

	st.gate.goLive()
	st.rounds++
	resp, err := e.chatOnce(ctx, st, st.rounds, nil)
	if err != nil || strings.TrimSpace(resp.Message.Content) == "" {
		if err != nil {
			e.logger.Warn("answer call failed, using buffered round",
				"turn_id", st.turnID,
				"error", err,
			)
		}
		st.gate.reset()
		st.gate.emitDirect(content)
		return content, nil
	}
	return resp.Message.Content, nil
}

// finishText resolves the terminal content, substituting the fallback
// for an empty model response. Content produced with the gate closed
// is delivered whole.
func (e *Engine) finishText(st *turnState, content string) string {
	if strings.TrimSpace(content) == "" {
		e.logger.Warn("model returned empty content", "turn_id", st.turnID)
		st.gate.emitDirect(prompts.EmptyResponseFallback)
		return prompts.EmptyResponseFallback
	}
	if !st.gate.isLive() {
		st.gate.emitDirect(content)
	}
	return content
}

// modelCall makes one model API call with the per-call timeout, retrying
// once with backoff on transport failure. Token usage is recorded per
// successful call.
func (e *Engine) modelCall(ctx context.Context, st *turnState, toolDefs []map[string]any) (*llm.ChatResponse, error) {
	st.rounds++
	round := st.rounds

	resp, err := e.chatOnce(ctx, st, round, toolDefs)
	if err == nil {
		return resp, nil
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("model call cancelled: %w", ctx.Err())
	}

	e.logger.Warn("model call failed, retrying",
		"turn_id", st.turnID,
		"round", round,
		"model", st.model.Model,
		"error", err,
	)
	select {
	case <-time.After(retryBackoff):
	case <-ctx.Done():
		return nil, fmt.Errorf("model call cancelled: %w", ctx.Err())
	}

	st.gate.reset()
	resp, err = e.chatOnce(ctx, st, round, toolDefs)
	if err != nil {
		return nil, fmt.Errorf("model call failed after retry (round %d): %w", round, err)
	}
	return resp, nil
}

// chatOnce performs a single streaming model call.
func (e *Engine) chatOnce(ctx context.Context, st *turnState, round int, toolDefs []map[string]any) (*llm.ChatResponse, error) {
	timeout := time.Duration(e.cfg.ModelTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	e.publish(events.KindModelCall, map[string]any{
		"turn_id": st.turnID,
		"round":   round,
		"model":   st.model.Model,
	})
	e.logger.Debug("model call",
		"turn_id", st.turnID,
		"round", round,
		"model", st.model.Model,
		"msgs", len(st.messages),
		"tools", len(toolDefs),
	)

	req := llm.Request{
		Model:     st.model.Model,
		Messages:  st.messages,
		Tools:     toolDefs,
		MaxTokens: st.model.MaxTokens,
	}
	resp, err := e.client.ChatStream(cctx, req, st.gate.handle)
	if err != nil {
		return nil, err
	}

	st.inputTokens += resp.InputTokens
	st.outputTokens += resp.OutputTokens
	cost := usage.ComputeCost(st.model.Model, resp.InputTokens, resp.OutputTokens, e.pricing)
	st.costUSD += cost

	e.publish(events.KindModelResponse, map[string]any{
		"turn_id":    st.turnID,
		"round":      round,
		"model":      st.model.Model,
		"tokens_in":  resp.InputTokens,
		"tokens_out": resp.OutputTokens,
		"cost_usd":   cost,
		"tool_calls": len(resp.Message.ToolCalls),
	})

	if e.usage != nil {
		rec := usage.Record{
			TurnID:         st.turnID,
			ConversationID: st.conversationID,
			Model:          st.model.Model,
			Tier:           string(st.tier),
			Round:          round,
			InputTokens:    resp.InputTokens,
			OutputTokens:   resp.OutputTokens,
			CostUSD:        cost,
		}
		if err := e.usage.Record(ctx, rec); err != nil {
			e.logger.Warn("failed to record usage", "turn_id", st.turnID, "error", err)
		}
	}

	return resp, nil
}

// assembleMessages builds the prompt: system message with user context,
// stored history (which carries any compacted summary), then the new
// user message.
func (e *Engine) assembleMessages(ctx context.Context, conversationID, userID, message string, symbols []string, tier tools.Tier) ([]llm.Message, error) {
	history, err := e.conversations.History(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	userContext := prompts.UserContext(symbols, "")
	for _, p := range e.providers {
		block, err := p.GetContext(ctx, userID)
		if err != nil {
			e.logger.Warn("context provider failed", "error", err)
			continue
		}
		if block == "" {
			continue
		}
		if userContext != "" {
			userContext += "\n\n"
		}
		userContext += block
	}
	system := prompts.SystemPrompt(userContext, "", tier == tools.TierDeep)

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: "system", Content: system})
	messages = append(messages, history...)
	messages = append(messages, llm.Message{Role: "user", Content: message})
	return messages, nil
}

// persistTurn appends the user and assistant messages. History is owned
// by the turn until this point; a failed turn persists nothing.
func (e *Engine) persistTurn(ctx context.Context, conversationID, userMessage, assistantContent string) error {
	if err := e.conversations.Append(ctx, conversationID, "user", userMessage); err != nil {
		return err
	}
	return e.conversations.Append(ctx, conversationID, "assistant", assistantContent)
}

// heldSymbols loads the user's portfolio symbols for routing and
// context injection. Lookup failures degrade to no portfolio context.
func (e *Engine) heldSymbols(ctx context.Context, userID string) []string {
	if e.portfolio == nil || userID == "" {
		return nil
	}
	symbols, err := e.portfolio.Symbols(ctx, userID)
	if err != nil {
		e.logger.Debug("portfolio lookup failed", "user_id", userID, "error", err)
		return nil
	}
	return symbols
}

func (e *Engine) tierModel(tier tools.Tier) config.TierModel {
	switch tier {
	case tools.TierRoutine:
		return e.tiers.Routine
	case tools.TierDeep:
		return e.tiers.Deep
	default:
		return e.tiers.Standard
	}
}

func (e *Engine) convLock(conversationID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[conversationID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[conversationID] = l
	}
	return l
}

func (e *Engine) publish(kind string, data map[string]any) {
	e.bus.Publish(events.Event{
		Timestamp: time.Now(),
		Source:    events.SourceEngine,
		Kind:      kind,
		Data:      data,
	})
}
