// Package aggregator runs one synchronization pass over every enabled source.
//
// Per-source phase graph:
//
//	PENDING ──► FETCHING ──► NORMALIZING ──► UPSERTING ──► SUCCESS
//	                │              │              │    └──► PARTIAL
//	                └──────────────┴──────────────┴──► FAILED
//
// SUCCESS, PARTIAL and FAILED are terminal and map onto model.RunStatus.
package aggregator

import (
	"fmt"

	"jobmate/aggregator-service/internal/model"
)

// Phase is the processing state of one source within a run.
type Phase string

const (
	PhasePending     Phase = "PENDING"
	PhaseFetching    Phase = "FETCHING"
	PhaseNormalizing Phase = "NORMALIZING"
	PhaseUpserting   Phase = "UPSERTING"
	PhaseSuccess     Phase = "SUCCESS"
	PhasePartial     Phase = "PARTIAL"
	PhaseFailed      Phase = "FAILED"
)

// validTransitions lists every allowed (from → to) pair.
var validTransitions = map[Phase][]Phase{
	PhasePending:     {PhaseFetching},
	PhaseFetching:    {PhaseNormalizing, PhaseFailed},
	PhaseNormalizing: {PhaseUpserting, PhaseFailed},
	PhaseUpserting:   {PhaseSuccess, PhasePartial, PhaseFailed},
}

// IsTransitionAllowed reports whether moving from → to is permitted.
func IsTransitionAllowed(from, to Phase) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false // terminal
	}
	for _, p := range allowed {
		if p == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether p has no outgoing transitions.
func IsTerminal(p Phase) bool {
	_, ok := validTransitions[p]
	return !ok
}

// RunStatus maps a terminal phase onto the status stored in the registry.
// Non-terminal phases report failed: a source that stopped mid-way did not
// complete.
func (p Phase) RunStatus() model.RunStatus {
	switch p {
	case PhaseSuccess:
		return model.RunStatusSuccess
	case PhasePartial:
		return model.RunStatusPartial
	default:
		return model.RunStatusFailed
	}
}

// sourceRun tracks the phase of one source. Advancing along an edge that is
// not in the graph leaves the run FAILED with an error describing the edge.
type sourceRun struct {
	phase Phase
	err   error
}

func newSourceRun() *sourceRun { return &sourceRun{phase: PhasePending} }

func (r *sourceRun) advance(to Phase) bool {
	if !IsTransitionAllowed(r.phase, to) {
		if r.err == nil {
			r.err = fmt.Errorf("illegal phase transition %s → %s", r.phase, to)
		}
		r.phase = PhaseFailed
		return false
	}
	r.phase = to
	return true
}

// fail moves the run to FAILED with cause. Failing twice keeps the first cause.
func (r *sourceRun) fail(cause error) {
	if IsTerminal(r.phase) && r.phase != PhaseFailed {
		r.err = fmt.Errorf("illegal phase transition %s → %s: %w", r.phase, PhaseFailed, cause)
		r.phase = PhaseFailed
		return
	}
	if r.err == nil {
		r.err = cause
	}
	r.phase = PhaseFailed
}
