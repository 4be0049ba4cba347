package agent

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rahul/archcopilot/internal/llm"
	"github.com/rahul/archcopilot/internal/observability"
)

const defaultHeartbeat = 30 * time.Second

// Scheduler emits a periodic heartbeat: it stamps the tracker, logs a
// heartbeat event and prints the status line.
type Scheduler struct {
	Tracker  *observability.Tracker
	Gate     *llm.Gate
	Logger   *observability.Logger
	Out      io.Writer
	Interval time.Duration
}

func NewScheduler(tracker *observability.Tracker, gate *llm.Gate, logger *observability.Logger, out io.Writer) *Scheduler {
	return &Scheduler{
		Tracker:  tracker,
		Gate:     gate,
		Logger:   logger,
		Out:      out,
		Interval: defaultHeartbeat,
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = defaultHeartbeat
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Beat()
		}
	}
}

// Beat records one heartbeat.
func (s *Scheduler) Beat() {
	if s.Tracker == nil {
		return
	}
	s.Tracker.Heartbeat()
	status := s.Tracker.Snapshot()
	if s.Logger != nil {
		s.Logger.LogHeartbeat(status)
	}
	if s.Out != nil {
		var inFlight, width int64
		if s.Gate != nil {
			inFlight, width = s.Gate.InFlight(), s.Gate.Width()
		}
		fmt.Fprintln(s.Out, observability.StatusLine(status, inFlight, width))
	}
}
