package progress

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/JakeFAU/tibia-housing-crawler/internal/housing"
)

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Tracker counts completed tasks out of a known total. It is safe for
// concurrent use.
type Tracker struct {
	clock   housing.Clock
	total   int
	started time.Time

	mu        sync.Mutex
	completed int
}

// NewTracker starts tracking total tasks. A nil clock uses wall time.
func NewTracker(total int, clock housing.Clock) *Tracker {
	if clock == nil {
		clock = systemClock{}
	}
	return &Tracker{clock: clock, total: total, started: clock.Now()}
}

// Snapshot is a point-in-time view of a Tracker.
type Snapshot struct {
	Completed int
	Total     int
	Percent   int
	Elapsed   time.Duration
	// ETA is negative while no task has completed.
	ETA time.Duration
}

// Inc marks one task complete and returns the resulting snapshot.
func (t *Tracker) Inc() Snapshot {
	t.mu.Lock()
	t.completed++
	t.mu.Unlock()
	return t.Snapshot()
}

// Snapshot reports progress without changing it.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	completed := t.completed
	t.mu.Unlock()

	elapsed := t.clock.Now().Sub(t.started)
	s := Snapshot{Completed: completed, Total: t.total, Elapsed: elapsed, ETA: -1}
	if t.total > 0 {
		s.Percent = int(math.Round(float64(completed) / float64(t.total) * 100))
	}
	if completed > 0 {
		perTask := elapsed / time.Duration(completed)
		remaining := t.total - completed
		if remaining < 0 {
			remaining = 0
		}
		s.ETA = perTask * time.Duration(remaining)
	}
	return s
}

// Elapsed is the time since the tracker started.
func (t *Tracker) Elapsed() time.Duration {
	return t.clock.Now().Sub(t.started)
}

// String renders "(completed/total - pct% - ETA: Xm Ys)".
func (s Snapshot) String() string {
	eta := "unknown"
	if s.ETA >= 0 {
		eta = minutesSeconds(s.ETA)
	}
	return fmt.Sprintf("(%d/%d - %d%% - ETA: %s)", s.Completed, s.Total, s.Percent, eta)
}

func minutesSeconds(d time.Duration) string {
	minutes := int(d / time.Minute)
	seconds := int((d % time.Minute) / time.Second)
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}

// FormatElapsed renders a duration as "Xm Ys", or "Ys" under a minute.
func FormatElapsed(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d/time.Second))
	}
	return minutesSeconds(d)
}
