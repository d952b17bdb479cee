// Package budget tracks daily deep-tier usage against a hard ceiling.
// The tracker is the single piece of long-lived mutable state shared by
// concurrent turns; all mutation goes through the serialized TryReserve.
package budget

import (
	"log/slog"
	"sync"
	"time"
)

// Tracker is a process-wide counter of deep-tier reservations per
// calendar day. Day rollover is detected lazily on access rather than
// via a background timer.
type Tracker struct {
	mu      sync.Mutex
	used    int
	day     string
	ceiling int
	logger  *slog.Logger

	now func() time.Time // test hook
}

// New creates a tracker with the given daily ceiling.
func New(ceiling int, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		ceiling: ceiling,
		logger:  logger.With("component", "budget"),
		now:     time.Now,
	}
}

// TryReserve atomically records one deep-tier reservation. It succeeds
// and increments iff today's usage is below the ceiling; otherwise it
// fails without mutating state. Reservations are never rolled back;
// the underlying call may already have been billed.
func (t *Tracker) TryReserve() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rollover()

	if t.used >= t.ceiling {
		t.logger.Warn("deep-tier reservation rejected",
			"used", t.used,
			"ceiling", t.ceiling,
			"day", t.day,
		)
		return false
	}

	t.used++
	t.logger.Debug("deep-tier reservation",
		"used", t.used,
		"ceiling", t.ceiling,
	)
	return true
}

// Usage returns (used, ceiling) for the current day.
func (t *Tracker) Usage() (int, int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rollover()
	return t.used, t.ceiling
}

// Exhausted reports whether today's ceiling has been reached. Read-only;
// intended for the router's advisory downgrade check.
func (t *Tracker) Exhausted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rollover()
	return t.used >= t.ceiling
}

// Day returns the calendar day the current counter applies to.
func (t *Tracker) Day() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rollover()
	return t.day
}

// rollover resets the counter when the calendar day has changed.
// Callers must hold t.mu.
func (t *Tracker) rollover() {
	today := t.now().Format("2006-01-02")
	if today != t.day {
		if t.day != "" && t.used > 0 {
			t.logger.Info("daily budget reset",
				"previous_day", t.day,
				"previous_used", t.used,
			)
		}
		t.used = 0
		t.day = today
	}
}
