package prompts

import "fmt"

// summaryTemplate is the prompt sent to the cheapest model tier to
// compress old conversation history. The single format verb is the
// transcript (role: content lines).
const summaryTemplate = `Summarize this conversation in 2-3 sentences, focusing on key topics, decisions, and any stocks or positions discussed:

%s`

// SummaryPrompt returns the interpolated compaction prompt for old
// conversation history.
func SummaryPrompt(transcript string) string {
	return fmt.Sprintf(summaryTemplate, transcript)
}

// SummaryPrefix marks a stored summary message so it is recognizable in
// the transcript.
const SummaryPrefix = "[Previous conversation summary] "
