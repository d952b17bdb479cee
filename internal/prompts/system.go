package prompts

import (
	"fmt"
	"strings"
)

// baseSystemPrompt is the persona and tool-usage guidance sent as the
// system message on every turn.
const baseSystemPrompt = `You are Finsight, an AI financial analyst and market intelligence assistant. You operate like a Bloomberg terminal assistant: knowledgeable, precise, and data-driven.

## Your Personality
- Professional but approachable, like a senior analyst who is also easy to talk to
- Data-first: always back claims with numbers from your tools
- Balanced: present bull and bear cases, not just one side
- Honest about uncertainty. Say "I don't know" when you lack data rather than speculating.

## Guidelines
- Use your tools to fetch real data. Do not rely on training data for prices or recent events.
- Format numbers clearly: $1.23T, 15.2%, +2.3%
- For stocks, always mention the current price when relevant
- Keep responses concise. Use bullet points and formatting.
- If the user holds positions, prioritize those symbols in analysis`

// deepResearchSection is appended to the system prompt for deep-tier
// turns.
const deepResearchSection = `

## Deep Research Mode
You are performing an institutional-quality research analysis. Be thorough and structured:
1. Start with a thesis/summary
2. Cover fundamentals, technicals (from data), and sentiment
3. Include bull case and bear case
4. Provide a clear conclusion with specific metrics supporting your view
5. Cite your data sources (earnings transcript quotes, analyst targets)`

// SystemPrompt builds the system message for a turn. userContext is a
// short description of the user's holdings and preferences (may be
// empty); summary is the compacted history of earlier conversation (may
// be empty); deep enables the deep research section.
func SystemPrompt(userContext, summary string, deep bool) string {
	var sb strings.Builder
	sb.WriteString(baseSystemPrompt)
	if deep {
		sb.WriteString(deepResearchSection)
	}
	if userContext != "" {
		sb.WriteString("\n\n## User Context\n")
		sb.WriteString(userContext)
	}
	if summary != "" {
		sb.WriteString("\n\n## Earlier Conversation (summary)\n")
		sb.WriteString(summary)
	}
	return sb.String()
}

// UserContext formats portfolio symbols and risk tolerance into the
// system-prompt user context block. Returns "" when there is nothing to
// inject.
func UserContext(symbols []string, riskTolerance string) string {
	var parts []string
	if len(symbols) > 0 {
		parts = append(parts, fmt.Sprintf("Holds positions in: %s", strings.Join(symbols, ", ")))
	}
	if riskTolerance != "" {
		parts = append(parts, fmt.Sprintf("Risk tolerance: %s", riskTolerance))
	}
	return strings.Join(parts, "\n")
}
