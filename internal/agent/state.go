package agent

import (
	"fmt"
	"time"

	"github.com/rahul/archcopilot/internal/design"
	"github.com/rahul/archcopilot/internal/failure"
)

// StepStatus is the lifecycle state of one step within a run.
type StepStatus string

const (
	StatusPending   StepStatus = "pending"
	StatusRunning   StepStatus = "running"
	StatusSucceeded StepStatus = "succeeded"
	StatusFailed    StepStatus = "failed"
	StatusSkipped   StepStatus = "skipped"
	StatusCancelled StepStatus = "cancelled"
)

// StepResult is what an executor reports back for one step.
type StepResult struct {
	Step     design.StepID
	Status   StepStatus
	Payload  design.Payload
	Kind     failure.Kind
	Err      error
	Attempts int
	Duration time.Duration
}

// PipelineState accumulates validated payloads for one run. Entries are
// never replaced once written. It is owned by the orchestrator goroutine;
// step goroutines only see Snapshots.
type PipelineState struct {
	payloads map[design.StepID]design.Payload
}

func NewPipelineState() *PipelineState {
	return &PipelineState{payloads: make(map[design.StepID]design.Payload)}
}

// Put records the payload for its step. Writing a step twice is an error.
func (s *PipelineState) Put(p design.Payload) error {
	if p == nil {
		return fmt.Errorf("nil payload")
	}
	if _, exists := s.payloads[p.Step()]; exists {
		return fmt.Errorf("step %q already recorded", p.Step())
	}
	s.payloads[p.Step()] = p
	return nil
}

// Snapshot returns an immutable copy of the current state.
func (s *PipelineState) Snapshot() Snapshot {
	m := make(map[design.StepID]design.Payload, len(s.payloads))
	for k, v := range s.payloads {
		m[k] = v
	}
	return Snapshot{payloads: m}
}

// Snapshot is a read-only view of a PipelineState.
type Snapshot struct {
	payloads map[design.StepID]design.Payload
}

// SnapshotOf builds a snapshot from payloads, later duplicates losing.
func SnapshotOf(payloads ...design.Payload) Snapshot {
	s := NewPipelineState()
	for _, p := range payloads {
		_ = s.Put(p)
	}
	return s.Snapshot()
}

func (s Snapshot) Get(step design.StepID) (design.Payload, bool) {
	p, ok := s.payloads[step]
	return p, ok
}

func (s Snapshot) Has(step design.StepID) bool {
	_, ok := s.payloads[step]
	return ok
}

func (s Snapshot) Len() int { return len(s.payloads) }

func (s Snapshot) Architecture() (design.ArchitecturePayload, bool) {
	p, ok := s.payloads[design.StepArchitecture].(design.ArchitecturePayload)
	return p, ok
}

func (s Snapshot) Sizing() (design.SizingPayload, bool) {
	p, ok := s.payloads[design.StepSizing].(design.SizingPayload)
	return p, ok
}

func (s Snapshot) TechStack() (design.TechStackPayload, bool) {
	p, ok := s.payloads[design.StepTechStack].(design.TechStackPayload)
	return p, ok
}

func (s Snapshot) APIDesign() (design.APIDesignPayload, bool) {
	p, ok := s.payloads[design.StepAPIDesign].(design.APIDesignPayload)
	return p, ok
}

func (s Snapshot) Performance() (design.PerformancePayload, bool) {
	p, ok := s.payloads[design.StepPerformance].(design.PerformancePayload)
	return p, ok
}

func (s Snapshot) Security() (design.SecurityPayload, bool) {
	p, ok := s.payloads[design.StepSecurity].(design.SecurityPayload)
	return p, ok
}

func (s Snapshot) Summary() (design.SummaryPayload, bool) {
	p, ok := s.payloads[design.StepSummary].(design.SummaryPayload)
	return p, ok
}
