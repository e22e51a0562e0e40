package scheduler

import "time"

// PacingState tracks the consecutive-success streak that drives burst
// suppression. It is explicit state rather than ambient so the
// suppression rule can be exercised against a scripted clock.
type PacingState struct {
	// Streak counts successes no further apart than the burst window.
	Streak int

	// LastSuccess is the wall-clock time of the most recent success.
	// Zero when no success has been recorded since the last break.
	LastSuccess time.Time

	// AllowPause arms the forced pause. It is disarmed after a pause
	// fires and re-armed when the streak breaks, so one slip through a
	// window never triggers two pauses back to back.
	AllowPause bool
}

// NewPacingState returns a state with the pause armed and no streak.
func NewPacingState() PacingState {
	return PacingState{AllowPause: true}
}

// RecordSuccess notes a success at now and reports whether the streak
// reached threshold. A success within window of the previous one extends
// the streak; a later one starts a new streak of one and re-arms the
// pause.
func (p *PacingState) RecordSuccess(now time.Time, threshold int, window time.Duration) bool {
	if !p.LastSuccess.IsZero() && now.Sub(p.LastSuccess) <= window {
		p.Streak++
	} else {
		p.Streak = 1
		p.AllowPause = true
	}
	p.LastSuccess = now
	return p.Streak >= threshold
}
