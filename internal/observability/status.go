package observability

import (
	"sync"
	"time"
)

// Status is a point-in-time view of the run counters.
type Status struct {
	Active        int       `json:"active_runs"`
	Completed     int       `json:"completed_runs"`
	Failed        int       `json:"failed_runs"`
	Cancelled     int       `json:"cancelled_runs"`
	LastRun       string    `json:"last_run,omitempty"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
	Uptime        string    `json:"uptime"`
}

// Tracker counts pipeline runs for the health endpoint and the heartbeat.
type Tracker struct {
	mu            sync.RWMutex
	started       time.Time
	active        int
	completed     int
	failed        int
	cancelled     int
	lastRun       string
	lastHeartbeat time.Time
}

func NewTracker() *Tracker {
	now := time.Now()
	return &Tracker{started: now, lastHeartbeat: now}
}

// RunStarted marks a run as in flight.
func (t *Tracker) RunStarted(runID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active++
	t.lastRun = runID
}

// RunFinished records the outcome of a run started with RunStarted.
func (t *Tracker) RunFinished(status string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active > 0 {
		t.active--
	}
	switch status {
	case "succeeded":
		t.completed++
	case "cancelled":
		t.cancelled++
	default:
		t.failed++
	}
}

// Heartbeat updates the last heartbeat time.
func (t *Tracker) Heartbeat() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastHeartbeat = time.Now()
}

// Snapshot retrieves a copy of the counters.
func (t *Tracker) Snapshot() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Status{
		Active:        t.active,
		Completed:     t.completed,
		Failed:        t.failed,
		Cancelled:     t.cancelled,
		LastRun:       t.lastRun,
		LastHeartbeat: t.lastHeartbeat,
		Uptime:        time.Since(t.started).Round(time.Second).String(),
	}
}
