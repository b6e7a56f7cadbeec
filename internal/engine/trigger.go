package engine

import "time"

// State is the process-wide trigger state. It is owned by the Machine and,
// transitively, the Evaluator holding it; no other component mutates it.
type State struct {
	IsTriggered      bool
	Since            time.Time
	SamplesConfirmed int
}

// TriggerInputs are the per-evaluation facts the state machine decides on.
type TriggerInputs struct {
	Now              time.Time
	PhaseGapDeg      float64
	Clarity          float64
	Confirmed        bool
	SamplesConfirmed int
	Fresh            bool
}

// Machine is the hysteretic OPEN/CLOSING trigger.
//
// Entry (OPEN -> CLOSING) requires the gap within the enter threshold, the
// clarity metric at or above its threshold, a confirmed closing streak, and
// fresh data, all at once. Exit (CLOSING -> OPEN) requires the gap beyond
// the strictly larger exit threshold, or stale data, or clarity below its
// threshold for ConfirmSamples consecutive evaluations; the same persistence
// discipline as entry, so a single noisy clarity reading cannot flicker the
// state. The band between the two thresholds is sticky in both directions.
type Machine struct {
	params           Params
	state            State
	lowClarityStreak int
}

// NewMachine constructs the trigger in the given initial state, normally
// OPEN at first startup or the last persisted state on restart.
func NewMachine(p Params, initial State) *Machine {
	return &Machine{params: p, state: initial}
}

// State returns the current trigger state.
func (m *Machine) State() State {
	return m.state
}

// Evaluate applies one evaluation's inputs and returns the resulting state
// plus whether an alert fired. An alert is emitted exactly once per
// OPEN -> CLOSING transition; re-entry after a reset re-arms it.
func (m *Machine) Evaluate(in TriggerInputs) (State, bool) {
	m.state.SamplesConfirmed = in.SamplesConfirmed

	if !m.state.IsTriggered {
		m.lowClarityStreak = 0
		if in.Fresh &&
			absFloat(in.PhaseGapDeg) <= m.params.EnterThresholdDeg &&
			in.Clarity >= m.params.ClarityThreshold &&
			in.Confirmed {
			m.state.IsTriggered = true
			m.state.Since = in.Now
			return m.state, true
		}
		return m.state, false
	}

	if in.Clarity < m.params.ClarityThreshold {
		m.lowClarityStreak++
	} else {
		m.lowClarityStreak = 0
	}

	if absFloat(in.PhaseGapDeg) > m.params.ExitThresholdDeg ||
		!in.Fresh ||
		m.lowClarityStreak >= m.params.ConfirmSamples {
		m.state.IsTriggered = false
		m.state.Since = in.Now
		m.lowClarityStreak = 0
	}
	return m.state, false
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
