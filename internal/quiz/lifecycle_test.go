package quiz

import (
	"testing"
	"time"
)

var (
	tWindowOpen  = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	tWindowClose = time.Date(2025, 3, 1, 17, 0, 0, 0, time.UTC)
)

func windowQuiz() Quiz {
	return Quiz{
		ID:           "q1",
		Title:        "Midterm",
		StartAt:      tWindowOpen,
		EndAt:        tWindowClose,
		DurationMin:  30,
		MaxSuspicion: 3,
	}
}

func at(h, m int) time.Time {
	return time.Date(2025, 3, 1, h, m, 0, 0, time.UTC)
}

func startedAt(h, m int) *time.Time {
	t := at(h, m)
	return &t
}

func TestComputePhase(t *testing.T) {
	q := windowQuiz()

	cases := []struct {
		name    string
		attempt *Attempt
		now     time.Time
		want    Phase
	}{
		{"no attempt before window", nil, at(8, 0), PhaseUpcoming},
		{"attempt before window", &Attempt{Extra: "42"}, at(8, 0), PhaseUpcoming},
		{"no attempt window open", nil, at(10, 0), PhaseStarted},
		{"no attempt window closed", nil, at(18, 0), PhaseEndedNotTaken},
		{"unstarted attempt window closed", &Attempt{Extra: "42"}, at(18, 0), PhaseMissed},
		{"unstarted attempt no extra", &Attempt{}, at(10, 0), PhaseNeedsExtra},
		{"unstarted attempt with extra", &Attempt{Extra: "42"}, at(10, 0), PhaseFirstEntry},
		{"running attempt", &Attempt{Extra: "42", Started: startedAt(10, 0)}, at(10, 10), PhaseReentry},
		{"running attempt clock expired", &Attempt{Extra: "42", Started: startedAt(10, 0)}, at(10, 30), PhaseResultReady},
		{"completed attempt", &Attempt{Extra: "42", Started: startedAt(10, 0), Completed: startedAt(10, 20)}, at(10, 25), PhaseResultReady},
		{"completed attempt after window", &Attempt{Extra: "42", Started: startedAt(10, 0), Completed: startedAt(10, 20)}, at(18, 0), PhaseResultReady},
		// An attempt started inside the window keeps its full clock even
		// past the window close.
		{"running attempt straddles close", &Attempt{Extra: "42", Started: startedAt(16, 45)}, at(16, 55), PhaseReentry},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ComputePhase(q, tc.attempt, tc.now); got != tc.want {
				t.Fatalf("ComputePhase = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestComputePhaseExclusive(t *testing.T) {
	// Missed beats every later guard: an unstarted attempt after the window
	// close is missed even though the result-ready and needs-extra guards
	// would otherwise be reachable.
	q := windowQuiz()
	a := &Attempt{} // no extra, never started
	if got := ComputePhase(q, a, at(18, 0)); got != PhaseMissed {
		t.Fatalf("ComputePhase = %q, want %q", got, PhaseMissed)
	}
}

func TestHasEnded(t *testing.T) {
	q := windowQuiz()

	a := Attempt{Started: startedAt(10, 0)}
	if HasEnded(q, a, at(10, 29)) {
		t.Fatal("attempt within its clock reported ended")
	}
	if !HasEnded(q, a, at(10, 30)) {
		t.Fatal("attempt at deadline not reported ended")
	}

	done := Attempt{Started: startedAt(10, 0), Completed: startedAt(10, 5)}
	if !HasEnded(q, done, at(10, 6)) {
		t.Fatal("completed attempt not reported ended")
	}

	if HasEnded(q, Attempt{}, at(18, 0)) {
		t.Fatal("unstarted attempt reported ended")
	}
}

func TestTimeRemaining(t *testing.T) {
	q := windowQuiz()
	a := Attempt{Started: startedAt(10, 0)}

	if got := TimeRemaining(q, a, at(10, 10)); got != 20*60 {
		t.Fatalf("TimeRemaining = %d, want %d", got, 20*60)
	}
	if got := TimeRemaining(q, a, at(10, 31)); got != -60 {
		t.Fatalf("TimeRemaining past deadline = %d, want -60", got)
	}
	if got := TimeRemaining(q, Attempt{}, at(10, 0)); got != 0 {
		t.Fatalf("TimeRemaining unstarted = %d, want 0", got)
	}
}

func TestMaxReached(t *testing.T) {
	q := windowQuiz() // threshold 3
	if MaxReached(q, Attempt{SuspicionCount: 2}) {
		t.Fatal("below threshold reported reached")
	}
	if !MaxReached(q, Attempt{SuspicionCount: 3}) {
		t.Fatal("at threshold not reported reached")
	}
	q.MaxSuspicion = 0
	if MaxReached(q, Attempt{SuspicionCount: 100}) {
		t.Fatal("disabled threshold reported reached")
	}
}
