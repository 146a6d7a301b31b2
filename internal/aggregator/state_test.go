package aggregator

import (
	"errors"
	"strings"
	"testing"

	"jobmate/aggregator-service/internal/model"
)

var allPhases = []Phase{
	PhasePending, PhaseFetching, PhaseNormalizing, PhaseUpserting,
	PhaseSuccess, PhasePartial, PhaseFailed,
}

// ── IsTransitionAllowed: happy path ───────────────────────────────────────

func TestIsTransitionAllowed_Forward(t *testing.T) {
	cases := []struct{ from, to Phase }{
		{PhasePending, PhaseFetching},
		{PhaseFetching, PhaseNormalizing},
		{PhaseNormalizing, PhaseUpserting},
		{PhaseUpserting, PhaseSuccess},
		{PhaseUpserting, PhasePartial},
	}
	for _, c := range cases {
		if !IsTransitionAllowed(c.from, c.to) {
			t.Errorf("IsTransitionAllowed(%s → %s) should be true", c.from, c.to)
		}
	}
}

// ── IsTransitionAllowed: failure edges ────────────────────────────────────

func TestIsTransitionAllowed_ToFailed(t *testing.T) {
	for _, from := range []Phase{PhaseFetching, PhaseNormalizing, PhaseUpserting} {
		if !IsTransitionAllowed(from, PhaseFailed) {
			t.Errorf("IsTransitionAllowed(%s → FAILED) should be true", from)
		}
	}
	if IsTransitionAllowed(PhasePending, PhaseFailed) {
		t.Error("PENDING must go through FETCHING before failing")
	}
}

// ── IsTransitionAllowed: skips and backwards moves ────────────────────────

func TestIsTransitionAllowed_NoSkipping(t *testing.T) {
	cases := []struct{ from, to Phase }{
		{PhasePending, PhaseUpserting},
		{PhaseFetching, PhaseSuccess},
		{PhaseNormalizing, PhasePartial},
		{PhaseUpserting, PhaseFetching},
		{PhaseNormalizing, PhaseFetching},
	}
	for _, c := range cases {
		if IsTransitionAllowed(c.from, c.to) {
			t.Errorf("IsTransitionAllowed(%s → %s) should be false", c.from, c.to)
		}
	}
}

func TestIsTransitionAllowed_TerminalsHaveNoOutgoing(t *testing.T) {
	for _, from := range []Phase{PhaseSuccess, PhasePartial, PhaseFailed} {
		if !IsTerminal(from) {
			t.Errorf("IsTerminal(%s) should be true", from)
		}
		for _, to := range allPhases {
			if IsTransitionAllowed(from, to) {
				t.Errorf("IsTransitionAllowed(%s → %s) should be false", from, to)
			}
		}
	}
}

func TestIsTransitionAllowed_NoSelfLoops(t *testing.T) {
	for _, p := range allPhases {
		if IsTransitionAllowed(p, p) {
			t.Errorf("IsTransitionAllowed(%s → %s) self-loop should be false", p, p)
		}
	}
}

// ── RunStatus ──────────────────────────────────────────────────────────────

func TestPhaseRunStatus(t *testing.T) {
	want := map[Phase]model.RunStatus{
		PhaseSuccess:   model.RunStatusSuccess,
		PhasePartial:   model.RunStatusPartial,
		PhaseFailed:    model.RunStatusFailed,
		PhaseUpserting: model.RunStatusFailed,
		PhasePending:   model.RunStatusFailed,
	}
	for p, st := range want {
		if got := p.RunStatus(); got != st {
			t.Errorf("%s.RunStatus() = %s, want %s", p, got, st)
		}
	}
}

// ── sourceRun ──────────────────────────────────────────────────────────────

func TestSourceRun_IllegalAdvanceFails(t *testing.T) {
	r := newSourceRun()
	if r.advance(PhaseUpserting) {
		t.Fatal("advance(PENDING → UPSERTING) should be rejected")
	}
	if r.phase != PhaseFailed {
		t.Errorf("phase = %s, want FAILED", r.phase)
	}
	if r.err == nil || !strings.Contains(r.err.Error(), "PENDING → UPSERTING") {
		t.Errorf("err = %v, want illegal transition message", r.err)
	}
}

func TestSourceRun_FailKeepsFirstCause(t *testing.T) {
	first := errors.New("upstream down")
	r := newSourceRun()
	r.advance(PhaseFetching)
	r.fail(first)
	r.fail(errors.New("second"))
	if !errors.Is(r.err, first) {
		t.Errorf("err = %v, want %v", r.err, first)
	}
}

func TestSourceRun_FailAfterSuccessIsReported(t *testing.T) {
	r := newSourceRun()
	for _, p := range []Phase{PhaseFetching, PhaseNormalizing, PhaseUpserting, PhaseSuccess} {
		if !r.advance(p) {
			t.Fatalf("advance(%s) rejected", p)
		}
	}
	cause := errors.New("late")
	r.fail(cause)
	if r.phase != PhaseFailed || !errors.Is(r.err, cause) {
		t.Errorf("phase=%s err=%v", r.phase, r.err)
	}
}
