// Package router classifies incoming messages into reasoning tiers and
// selects the tool subset visible to each turn. Routing is a pure
// function of the message and user context, except for one read-only
// budget check that decides whether the deep tier is even offerable.
package router

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/finsight-ai/finsight/internal/tools"
)

// routinePatterns match cheap, single-lookup requests served by the
// routine tier.
var routinePatterns = compile(
	`^(what is|what's) the (price|quote) of`,
	`^get (quote|price)`,
	`^(show|list) (watchlist|alerts)`,
	`classify|categorize|label`,
	`sentiment score`,
	`show.*news|latest news`,
	`what.*(trending|hot)`,
	`any (updates|news)`,
	`how (is|are) .*doing`,
)

// deepPatterns match requests that warrant the deep tier.
var deepPatterns = compile(
	`deep (analysis|research|dive)`,
	`dcf|discounted cash flow`,
	`comprehensive (report|analysis)`,
	`compare .+ (vs|versus|and) .+`,
	`multi.*(document|report) analysis`,
	`investment thesis`,
	`risk assessment`,
	`synthesize|synthesis`,
	`deep dive`,
	`thorough analysis`,
	`in.depth`,
	`research.*report`,
	`detailed breakdown`,
)

// portfolioPatterns match decisions about the user's own positions.
// When the user holds a portfolio these floor the tier at standard.
var portfolioPatterns = compile(
	`should i (buy|sell|hold|add|trim)`,
	`(buy|sell|hold) more`,
	`rebalance`,
	`allocation`,
	`tax loss harvest`,
	`what('?s| is) my portfolio`,
	`position siz`,
	`(add to|reduce|exit|close) (my )?(position|holding)`,
	`portfolio (risk|exposure|concentration)`,
	`what if i (buy|sell|invest)`,
	`tax.*(implication|consequence|impact)`,
	`risk.*(reward|return) ratio`,
)

func compile(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

// BudgetReader is the read-only budget view the router consults before
// offering the deep tier.
type BudgetReader interface {
	Exhausted() bool
}

// Decision is the routing outcome for one turn. The tier and visible
// tool set are fixed for the remainder of the turn.
type Decision struct {
	Tier  tools.Tier
	Tools []map[string]any

	// BudgetLimited marks turns where the heuristic selected deep but
	// the daily budget forced a downgrade to standard.
	BudgetLimited bool
}

// Router selects a reasoning tier per message.
type Router struct {
	registry *tools.Registry
	budget   BudgetReader
	logger   *slog.Logger
}

// New creates a router over the given tool registry and budget view.
func New(registry *tools.Registry, budget BudgetReader, logger *slog.Logger) *Router {
	return &Router{
		registry: registry,
		budget:   budget,
		logger:   logger.With("component", "router"),
	}
}

// Route classifies a message. portfolioSymbols is the user's held
// symbol set; a non-empty set makes portfolio-decision questions floor
// at the standard tier. Unclassifiable messages default to standard.
func (r *Router) Route(message string, portfolioSymbols []string) Decision {
	tier, budgetLimited := r.classify(message, portfolioSymbols)
	d := Decision{
		Tier:          tier,
		Tools:         r.registry.Definitions(tier),
		BudgetLimited: budgetLimited,
	}

	r.logger.Debug("routed message",
		"tier", tier,
		"budget_limited", budgetLimited,
		"tools", len(d.Tools),
	)
	return d
}

func (r *Router) classify(message string, portfolioSymbols []string) (tools.Tier, bool) {
	lower := strings.ToLower(message)

	for _, pat := range deepPatterns {
		if pat.MatchString(lower) {
			if r.budget != nil && r.budget.Exhausted() {
				return tools.TierStandard, true
			}
			return tools.TierDeep, false
		}
	}

	if portfolioRelevant(message, lower, portfolioSymbols) {
		return tools.TierStandard, false
	}

	for _, pat := range routinePatterns {
		if pat.MatchString(lower) {
			return tools.TierRoutine, false
		}
	}

	return tools.TierStandard, false
}

// portfolioRelevant reports whether a message concerns the user's held
// positions: either a portfolio-decision phrase, or a direct mention of
// a held symbol. Users without holdings never trigger the floor.
func portfolioRelevant(message, lower string, portfolioSymbols []string) bool {
	if len(portfolioSymbols) == 0 {
		return false
	}
	for _, pat := range portfolioPatterns {
		if pat.MatchString(lower) {
			return true
		}
	}
	for _, sym := range MentionedSymbols(message) {
		for _, held := range portfolioSymbols {
			if sym == held {
				return true
			}
		}
	}
	return false
}

// symbolPattern matches candidate ticker symbols: 1-5 capital letters
// on word boundaries.
var symbolPattern = regexp.MustCompile(`\b([A-Z]{1,5})\b`)

// symbolNoise lists capitalized English words that are not tickers.
var symbolNoise = map[string]bool{
	"I": true, "A": true, "THE": true, "AND": true, "OR": true,
	"FOR": true, "IN": true, "ON": true, "AT": true, "TO": true,
	"IS": true, "IT": true, "AN": true, "OF": true, "MY": true,
	"AM": true, "DO": true, "IF": true, "SO": true, "NO": true,
	"UP": true, "VS": true,
}

// MentionedSymbols extracts candidate ticker symbols from a message,
// filtering common capitalized words.
func MentionedSymbols(message string) []string {
	var out []string
	for _, m := range symbolPattern.FindAllString(message, -1) {
		if !symbolNoise[m] {
			out = append(out, m)
		}
	}
	return out
}
