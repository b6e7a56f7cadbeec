package engine

import (
	"testing"
	"time"
)

func closingInputs(now time.Time) TriggerInputs {
	return TriggerInputs{
		Now:              now,
		PhaseGapDeg:      0.6,
		Clarity:          0.72,
		Confirmed:        true,
		SamplesConfirmed: 4,
		Fresh:            true,
	}
}

func TestTriggerEntryFiresOnce(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	m := NewMachine(DefaultParams(), State{})

	st, alerted := m.Evaluate(closingInputs(now))
	if !st.IsTriggered || !alerted {
		t.Fatalf("entry should trigger and alert, got triggered=%v alerted=%v", st.IsTriggered, alerted)
	}
	if !st.Since.Equal(now) {
		t.Fatalf("since %v, want %v", st.Since, now)
	}

	for i := 1; i <= 5; i++ {
		st, alerted = m.Evaluate(closingInputs(now.Add(time.Duration(i) * time.Hour)))
		if !st.IsTriggered {
			t.Fatalf("evaluation %d: state should hold", i)
		}
		if alerted {
			t.Fatalf("evaluation %d: alert must be one-shot", i)
		}
	}
}

func TestTriggerEntryRequiresEveryCondition(t *testing.T) {
	now := time.Now().UTC()
	cases := []struct {
		name   string
		mutate func(*TriggerInputs)
	}{
		{"stale", func(in *TriggerInputs) { in.Fresh = false }},
		{"gap too wide", func(in *TriggerInputs) { in.PhaseGapDeg = 1.2 }},
		{"clarity low", func(in *TriggerInputs) { in.Clarity = 0.5 }},
		{"not confirmed", func(in *TriggerInputs) { in.Confirmed = false }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := NewMachine(DefaultParams(), State{})
			in := closingInputs(now)
			tc.mutate(&in)
			st, alerted := m.Evaluate(in)
			if st.IsTriggered || alerted {
				t.Fatalf("must stay open: triggered=%v alerted=%v", st.IsTriggered, alerted)
			}
		})
	}
}

func TestTriggerHysteresisBand(t *testing.T) {
	now := time.Now().UTC()
	m := NewMachine(DefaultParams(), State{})

	if st, _ := m.Evaluate(closingInputs(now)); !st.IsTriggered {
		t.Fatal("setup: entry failed")
	}

	// Oscillation inside the (enter, exit] band must not reset.
	for i, gap := range []float64{1.2, 1.3, 1.2, 1.4, 1.3} {
		in := closingInputs(now.Add(time.Duration(i+1) * time.Hour))
		in.PhaseGapDeg = gap
		if st, _ := m.Evaluate(in); !st.IsTriggered {
			t.Fatalf("gap %.1f inside the band must hold the state", gap)
		}
	}

	in := closingInputs(now.Add(10 * time.Hour))
	in.PhaseGapDeg = 1.6
	if st, _ := m.Evaluate(in); st.IsTriggered {
		t.Fatal("gap beyond the exit threshold must reset")
	}

	// While open, a gap inside the band is not an entry either.
	in = closingInputs(now.Add(11 * time.Hour))
	in.PhaseGapDeg = 1.2
	if st, _ := m.Evaluate(in); st.IsTriggered {
		t.Fatal("gap above the enter threshold must not re-enter")
	}
}

func TestTriggerNegativeGapUsesMagnitude(t *testing.T) {
	now := time.Now().UTC()
	m := NewMachine(DefaultParams(), State{})

	in := closingInputs(now)
	in.PhaseGapDeg = -0.6
	if st, _ := m.Evaluate(in); !st.IsTriggered {
		t.Fatal("approach from below zero is still an entry")
	}

	in = closingInputs(now.Add(time.Hour))
	in.PhaseGapDeg = -1.6
	if st, _ := m.Evaluate(in); st.IsTriggered {
		t.Fatal("magnitude beyond exit must reset regardless of sign")
	}
}

func TestTriggerRearmsAfterReset(t *testing.T) {
	now := time.Now().UTC()
	m := NewMachine(DefaultParams(), State{})

	if _, alerted := m.Evaluate(closingInputs(now)); !alerted {
		t.Fatal("first entry should alert")
	}

	in := closingInputs(now.Add(time.Hour))
	in.PhaseGapDeg = 2.0
	if st, _ := m.Evaluate(in); st.IsTriggered {
		t.Fatal("setup: reset failed")
	}

	if _, alerted := m.Evaluate(closingInputs(now.Add(2 * time.Hour))); !alerted {
		t.Fatal("re-entry after a reset must alert again")
	}
}

func TestTriggerStaleDataResets(t *testing.T) {
	now := time.Now().UTC()
	m := NewMachine(DefaultParams(), State{})
	m.Evaluate(closingInputs(now))

	in := closingInputs(now.Add(time.Hour))
	in.Fresh = false
	if st, _ := m.Evaluate(in); st.IsTriggered {
		t.Fatal("stale data must reset immediately")
	}
}

func TestTriggerClarityDropNeedsPersistence(t *testing.T) {
	now := time.Now().UTC()
	m := NewMachine(DefaultParams(), State{})
	m.Evaluate(closingInputs(now))

	// Two low readings then a recovery: the state holds.
	for i := 1; i <= 2; i++ {
		in := closingInputs(now.Add(time.Duration(i) * time.Hour))
		in.Clarity = 0.5
		if st, _ := m.Evaluate(in); !st.IsTriggered {
			t.Fatalf("low clarity reading %d must not reset yet", i)
		}
	}
	if st, _ := m.Evaluate(closingInputs(now.Add(3 * time.Hour))); !st.IsTriggered {
		t.Fatal("recovered clarity must hold the state")
	}

	// Three consecutive low readings reset.
	for i := 4; i <= 6; i++ {
		in := closingInputs(now.Add(time.Duration(i) * time.Hour))
		in.Clarity = 0.5
		st, _ := m.Evaluate(in)
		if i < 6 && !st.IsTriggered {
			t.Fatalf("reading %d: reset too early", i)
		}
		if i == 6 && st.IsTriggered {
			t.Fatal("three sustained low readings must reset")
		}
	}
}

func TestTriggerRestoredStateHolds(t *testing.T) {
	// A restart restores a triggered state; the band behaviour continues as
	// if the process never stopped.
	now := time.Now().UTC()
	m := NewMachine(DefaultParams(), State{IsTriggered: true, Since: now.Add(-48 * time.Hour)})

	in := closingInputs(now)
	in.PhaseGapDeg = 1.3
	st, alerted := m.Evaluate(in)
	if !st.IsTriggered {
		t.Fatal("restored state must hold inside the band")
	}
	if alerted {
		t.Fatal("no alert without a fresh transition")
	}
}
