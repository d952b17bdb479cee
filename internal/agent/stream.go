package agent

import "github.com/finsight-ai/finsight/internal/llm"

// streamGate sits between the model's token stream and the caller's
// StreamFunc. Loop rounds run with the gate closed so text from a call
// that may still request tools never reaches the caller; only the
// dedicated answer call (made with tools withheld) streams live.
type streamGate struct {
	emit StreamFunc
	live bool
}

// handle is the llm.StreamCallback for one model call.
func (g *streamGate) handle(ev llm.StreamEvent) {
	if g == nil || !g.live || g.emit == nil {
		return
	}
	if ev.Kind == llm.KindToken {
		g.emit(ev.Token)
	}
}

// wantsStream reports whether the caller asked for incremental output.
func (g *streamGate) wantsStream() bool {
	return g != nil && g.emit != nil
}

// goLive opens the gate. Only valid for calls that cannot produce tool
// calls.
func (g *streamGate) goLive() {
	if g != nil {
		g.live = true
	}
}

// isLive reports whether tokens are currently being delivered.
func (g *streamGate) isLive() bool {
	return g != nil && g.live
}

// emitDirect sends text as a single chunk, bypassing the gate. Used
// for synthesized messages and for answers produced with the gate
// closed.
func (g *streamGate) emitDirect(s string) {
	if g == nil || g.emit == nil {
		return
	}
	g.emit(s)
}

// reset closes the gate for the next model call.
func (g *streamGate) reset() {
	if g == nil {
		return
	}
	g.live = false
}
