// Package timer implements a wrap-safe elapsed-time comparison around a
// 32-bit microsecond clock supplied by the host on every call. It holds no
// wall-clock state of its own: "now" always comes in as an argument.
package timer

// MaxPeriodUs is the largest period that can be reliably measured before the
// wrap-detection heuristic in IsExpired starts rejecting valid deltas.
const MaxPeriodUs = 1<<31 - 1

type state uint8

const (
	stopped state = iota
	running
)

// Timer is a single-shot or manually-restarted interval timer measured
// against a caller-supplied microsecond clock. The zero value is a stopped
// timer.
type Timer struct {
	state    state
	periodUs uint32
	startUs  uint32
}

// Start arms the timer for periodUs starting at now, overwriting any
// previous period or start time.
func (t *Timer) Start(periodUs uint32, now uint32) {
	t.state = running
	t.periodUs = periodUs
	t.startUs = now
}

// StartIfNotRunning arms the timer only if it is currently stopped.
func (t *Timer) StartIfNotRunning(periodUs uint32, now uint32) {
	if t.state == running {
		return
	}
	t.Start(periodUs, now)
}

// Restart resets the start time to now, keeping the configured period. It is
// a no-op on a stopped timer.
func (t *Timer) Restart(now uint32) {
	if t.state == stopped {
		return
	}
	t.startUs = now
}

// Stop disarms the timer and clears its period and start time.
func (t *Timer) Stop() {
	t.state = stopped
	t.periodUs = 0
	t.startUs = 0
}

// IsRunning reports whether the timer is currently armed.
func (t *Timer) IsRunning() bool {
	return t.state == running
}

// IsExpired reports whether the timer has reached its period as of now. A
// stopped timer is never expired. The comparison is wrap-safe: the 32-bit
// delta is treated as negative (clock running backwards within the current
// scan) whenever it exceeds half the address space, in which case the timer
// is reported as not yet expired. The caller is responsible for stopping an
// expired timer.
func (t *Timer) IsExpired(now uint32) bool {
	if t.state == stopped {
		return false
	}
	delta := now - t.startUs
	if delta > MaxPeriodUs {
		return false
	}
	return delta >= t.periodUs
}
