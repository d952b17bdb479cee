// Package api implements the HTTP surface: streaming chat, budget and
// usage introspection, the websocket event feed, and health endpoints.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/finsight-ai/finsight/internal/agent"
	"github.com/finsight-ai/finsight/internal/budget"
	"github.com/finsight-ai/finsight/internal/buildinfo"
	"github.com/finsight-ai/finsight/internal/conversation"
	"github.com/finsight-ai/finsight/internal/events"
	"github.com/finsight-ai/finsight/internal/usage"
)

// TurnRunner runs one user turn. Satisfied by *agent.Engine.
type TurnRunner interface {
	RunTurn(ctx context.Context, conversationID, userID, message string, stream agent.StreamFunc) (*agent.TurnResult, error)
}

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Server is the HTTP API server.
type Server struct {
	address       string
	port          int
	engine        TurnRunner
	budget        *budget.Tracker
	usage         *usage.Store
	conversations *conversation.Store
	bus           *events.Bus
	logger        *slog.Logger
	server        *http.Server
}

// NewServer creates an API server. Budget, usage, conversations and bus
// may be nil; their endpoints then return 503.
func NewServer(address string, port int, engine TurnRunner, tracker *budget.Tracker, usageStore *usage.Store, convs *conversation.Store, bus *events.Bus, logger *slog.Logger) *Server {
	return &Server{
		address:       address,
		port:          port,
		engine:        engine,
		budget:        tracker,
		usage:         usageStore,
		conversations: convs,
		bus:           bus,
		logger:        logger,
	}
}

// Handler builds the route mux. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("DELETE /api/conversations/{id}", s.handleConversationClear)

	mux.HandleFunc("GET /api/budget", s.handleBudget)
	mux.HandleFunc("GET /api/usage", s.handleUsage)

	mux.HandleFunc("GET /ws/events", s.handleEvents)

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /", s.handleRoot)

	return s.withLogging(mux)
}

// Start begins serving HTTP requests.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:     s.Handler(),
		ReadTimeout: 30 * time.Second,
		// Long write timeout for streaming turns.
		WriteTimeout: 300 * time.Second,
	}

	addr := s.address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"name":    "Finsight",
		"version": buildinfo.Version,
		"status":  "ok",
	}, s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, buildinfo.Info(), s.logger)
}

// ChatRequest is the /api/chat request body.
type ChatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
	UserID         string `json:"user_id,omitempty"`
	Stream         *bool  `json:"stream,omitempty"`
}

// ChatChunk is one NDJSON line of a streaming chat response. Chunk
// lines carry text; the final line has Done set plus turn stats.
type ChatChunk struct {
	Chunk          string  `json:"chunk,omitempty"`
	Done           bool    `json:"done"`
	Error          string  `json:"error,omitempty"`
	TurnID         string  `json:"turn_id,omitempty"`
	ConversationID string  `json:"conversation_id,omitempty"`
	Model          string  `json:"model,omitempty"`
	Tier           string  `json:"tier,omitempty"`
	Rounds         int     `json:"rounds,omitempty"`
	InputTokens    int     `json:"input_tokens,omitempty"`
	OutputTokens   int     `json:"output_tokens,omitempty"`
	CostUSD        float64 `json:"cost_usd,omitempty"`
	BudgetLimited  bool    `json:"budget_limited,omitempty"`
}

// ChatResponse is the non-streaming /api/chat response body.
type ChatResponse struct {
	Response       string  `json:"response"`
	TurnID         string  `json:"turn_id"`
	ConversationID string  `json:"conversation_id"`
	Model          string  `json:"model"`
	Tier           string  `json:"tier"`
	Rounds         int     `json:"rounds"`
	InputTokens    int     `json:"input_tokens"`
	OutputTokens   int     `json:"output_tokens"`
	CostUSD        float64 `json:"cost_usd"`
	BudgetLimited  bool    `json:"budget_limited,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		s.errorResponse(w, http.StatusBadRequest, "message is required")
		return
	}

	convID := req.ConversationID
	if convID == "" {
		convID = uuid.New().String()
	}

	stream := true
	if req.Stream != nil {
		stream = *req.Stream
	}
	if stream {
		s.handleStreamingChat(w, r, convID, req)
		return
	}

	res, err := s.engine.RunTurn(r.Context(), convID, req.UserID, req.Message, nil)
	if err != nil {
		s.logger.Error("turn failed", "conversation_id", convID, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "turn failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, ChatResponse{
		Response:       res.Content,
		TurnID:         res.TurnID,
		ConversationID: convID,
		Model:          res.Model,
		Tier:           string(res.Tier),
		Rounds:         res.Rounds,
		InputTokens:    res.InputTokens,
		OutputTokens:   res.OutputTokens,
		CostUSD:        res.CostUSD,
		BudgetLimited:  res.BudgetLimited,
	}, s.logger)
}

// handleStreamingChat delivers the turn as NDJSON chunks. Text arrives
// as it is produced; the final line carries turn stats.
func (s *Server) handleStreamingChat(w http.ResponseWriter, r *http.Request, convID string, req ChatRequest) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.errorResponse(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	writeChunk := func(c ChatChunk) {
		data, err := json.Marshal(c)
		if err != nil {
			s.logger.Debug("failed to marshal chat chunk", "error", err)
			return
		}
		fmt.Fprintf(w, "%s\n", data)
		flusher.Flush()
	}

	res, err := s.engine.RunTurn(r.Context(), convID, req.UserID, req.Message, func(chunk string) {
		writeChunk(ChatChunk{Chunk: chunk})
	})
	if err != nil {
		s.logger.Error("turn failed", "conversation_id", convID, "error", err)
		writeChunk(ChatChunk{
			Done:           true,
			Error:          "turn failed",
			ConversationID: convID,
		})
		return
	}

	writeChunk(ChatChunk{
		Done:           true,
		TurnID:         res.TurnID,
		ConversationID: convID,
		Model:          res.Model,
		Tier:           string(res.Tier),
		Rounds:         res.Rounds,
		InputTokens:    res.InputTokens,
		OutputTokens:   res.OutputTokens,
		CostUSD:        res.CostUSD,
		BudgetLimited:  res.BudgetLimited,
	})
}

func (s *Server) handleConversationClear(w http.ResponseWriter, r *http.Request) {
	if s.conversations == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "conversation store not configured")
		return
	}

	id := r.PathValue("id")
	cleared, err := s.conversations.Clear(r.Context(), id)
	if err != nil {
		s.logger.Error("conversation clear failed", "conversation_id", id, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "clear failed")
		return
	}

	s.logger.Info("conversation cleared via API", "conversation_id", id, "messages", cleared)
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{"conversation_id": id, "cleared": cleared}, s.logger)
}

func (s *Server) handleBudget(w http.ResponseWriter, r *http.Request) {
	if s.budget == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "budget tracker not configured")
		return
	}

	used, limit := s.budget.Usage()
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"used":      used,
		"limit":     limit,
		"day":       s.budget.Day(),
		"exhausted": s.budget.Exhausted(),
	}, s.logger)
}

// handleUsage returns aggregated usage for a time window (default: the
// current UTC day). Optional from/to are RFC3339; group=model|tier
// returns per-group totals.
func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if s.usage == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "usage store not configured")
		return
	}

	now := time.Now().UTC()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	if from := r.URL.Query().Get("from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			s.errorResponse(w, http.StatusBadRequest, "invalid from time: "+err.Error())
			return
		}
		start = t
	}
	if to := r.URL.Query().Get("to"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			s.errorResponse(w, http.StatusBadRequest, "invalid to time: "+err.Error())
			return
		}
		end = t
	}

	body := map[string]any{
		"from": start.Format(time.RFC3339),
		"to":   end.Format(time.RFC3339),
	}

	switch group := r.URL.Query().Get("group"); group {
	case "":
		sum, err := s.usage.Summary(start, end)
		if err != nil {
			s.errorResponse(w, http.StatusInternalServerError, "usage summary: "+err.Error())
			return
		}
		body["totals"] = sum
	case "model":
		byModel, err := s.usage.SummaryByModel(start, end)
		if err != nil {
			s.errorResponse(w, http.StatusInternalServerError, "usage summary: "+err.Error())
			return
		}
		body["by_model"] = byModel
	case "tier":
		byTier, err := s.usage.SummaryByTier(start, end)
		if err != nil {
			s.errorResponse(w, http.StatusInternalServerError, "usage summary: "+err.Error())
			return
		}
		body["by_tier"] = byTier
	default:
		s.errorResponse(w, http.StatusBadRequest, "unsupported group: "+group+" (use model or tier)")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, body, s.logger)
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    code,
		},
	}, s.logger)
}
