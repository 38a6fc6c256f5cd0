// Package ratelimit suppresses repeated identical events within a
// configurable window, used to collapse recurring protocol-violation logs
// and error callbacks to at most one per window.
package ratelimit

import "github.com/openfieldbus/cciefb/pkg/timer"

// Limiter gates a stream of (tag, now) events: a call is accepted unless the
// window started by the previously accepted call is still open (its timer
// running and not yet expired), the period is non-zero, and the tag matches
// the previously accepted tag.
type Limiter struct {
	timer           timer.Timer
	periodUs        uint32
	previousTag     int
	numberOfCalls   uint32
	numberOfOutputs uint32
}

// New creates a limiter with the given suppression window.
func New(periodUs uint32) *Limiter {
	return &Limiter{periodUs: periodUs}
}

// ShouldRunNow reports whether the event tagged tag at time now should be
// let through. A change of tag always passes; an unchanged tag is
// suppressed while the window from the previous accepted call is still
// open.
func (l *Limiter) ShouldRunNow(tag int, now uint32) bool {
	windowOpen := l.timer.IsRunning() && !l.timer.IsExpired(now)
	l.numberOfCalls++

	if windowOpen && l.periodUs != 0 && tag == l.previousTag {
		return false
	}

	l.timer.Start(l.periodUs, now)
	l.numberOfOutputs++
	l.previousTag = tag
	return true
}

// Periodic stops the underlying timer once its window has elapsed, so a
// later call with a new tag is not accidentally compared against a stale
// running timer whose tag field is undefined.
func (l *Limiter) Periodic(now uint32) {
	if l.timer.IsExpired(now) {
		l.timer.Stop()
	}
}

// Stats returns the number of calls made and the number that were let
// through, for diagnostics.
func (l *Limiter) Stats() (calls, outputs uint32) {
	return l.numberOfCalls, l.numberOfOutputs
}
