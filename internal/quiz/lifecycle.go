package quiz

import "time"

// Phase is the computed lifecycle state of a (quiz, attempt) pair at a given
// instant. It is derived from durable state on every request; nothing caches
// it across requests.
type Phase string

const (
	// PhaseMissed: an attempt exists but was never started and the quiz
	// window has closed.
	PhaseMissed Phase = "missed"
	// PhaseUpcoming: the quiz window has not opened yet.
	PhaseUpcoming Phase = "upcoming"
	// PhaseEndedNotTaken: the window has closed and the caller holds no
	// attempt at all.
	PhaseEndedNotTaken Phase = "ended_not_taken"
	// PhaseResultReady: the attempt is completed, or its own clock has run
	// out (the caller is expected to settle expiry before acting on this).
	PhaseResultReady Phase = "result_ready"
	// PhaseNeedsExtra: an attempt exists but the pre-start info (roll
	// number etc.) has not been captured.
	PhaseNeedsExtra Phase = "needs_extra"
	// PhaseFirstEntry: the attempt is ready to start; entering now sets the
	// started instant and materializes the response rows.
	PhaseFirstEntry Phase = "active_first_entry"
	// PhaseReentry: the attempt is running and has been entered before.
	// Each observation of this phase counts as a suspicious event.
	PhaseReentry Phase = "active_reentry"
	// PhaseStarted: the window is open but no attempt exists yet; the
	// caller must obtain one.
	PhaseStarted Phase = "started"
)

// ComputePhase evaluates the lifecycle guards in priority order, first match
// wins. It is a pure function: no side effects, total over all inputs, and
// exactly one phase applies to any (quiz, attempt, now).
//
// attempt may be nil (the caller holds no attempt for this quiz).
func ComputePhase(q Quiz, a *Attempt, now time.Time) Phase {
	switch {
	case a != nil && a.Started == nil && q.HasEnded(now):
		return PhaseMissed
	case !q.HasStarted(now):
		return PhaseUpcoming
	case a == nil && q.HasEnded(now):
		return PhaseEndedNotTaken
	case a != nil && (a.Completed != nil || (a.Started != nil && !now.Before(a.Deadline(q)))):
		return PhaseResultReady
	case a != nil && a.Started == nil && a.Extra == "":
		return PhaseNeedsExtra
	case a != nil && a.Started == nil:
		return PhaseFirstEntry
	case a != nil:
		return PhaseReentry
	default:
		return PhaseStarted
	}
}

// HasEnded reports whether the attempt is over at now, either by explicit
// completion or because its clock ran out. Unlike the settle operation this
// never writes anything.
func HasEnded(q Quiz, a Attempt, now time.Time) bool {
	if a.Completed != nil {
		return true
	}
	if a.Started == nil {
		return false
	}
	return !now.Before(a.Deadline(q))
}

// TimeRemaining is the number of whole seconds left on a running attempt.
// Negative once the deadline has passed.
func TimeRemaining(q Quiz, a Attempt, now time.Time) int64 {
	if a.Started == nil {
		return 0
	}
	return int64(a.Deadline(q).Sub(now) / time.Second)
}

// MaxReached reports whether the suspicion counter meets or exceeds the
// quiz threshold. A threshold of zero disables the check. Advisory:
// crossing it never forces completion here; the caller decides whether to
// force-submit.
func MaxReached(q Quiz, a Attempt) bool {
	return q.MaxSuspicion > 0 && a.SuspicionCount >= q.MaxSuspicion
}
