package timer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfieldbus/cciefb/pkg/timer"
)

func TestStartAndExpiry(t *testing.T) {
	var tm timer.Timer
	tm.Start(100, 1000)
	require.True(t, tm.IsRunning())
	assert.False(t, tm.IsExpired(1099))
	assert.True(t, tm.IsExpired(1100))
}

func TestStoppedNeverExpires(t *testing.T) {
	var tm timer.Timer
	assert.False(t, tm.IsExpired(1_000_000))
}

func TestStartIfNotRunningIsNoop(t *testing.T) {
	var tm timer.Timer
	tm.Start(100, 0)
	tm.StartIfNotRunning(500, 50)
	assert.True(t, tm.IsExpired(100))
}

func TestRestartKeepsPeriod(t *testing.T) {
	var tm timer.Timer
	tm.Start(100, 0)
	tm.Restart(50)
	assert.False(t, tm.IsExpired(100))
	assert.True(t, tm.IsExpired(150))
}

func TestRestartOnStoppedIsNoop(t *testing.T) {
	var tm timer.Timer
	tm.Restart(50)
	assert.False(t, tm.IsRunning())
}

func TestStopClearsState(t *testing.T) {
	var tm timer.Timer
	tm.Start(100, 0)
	tm.Stop()
	assert.False(t, tm.IsRunning())
	assert.False(t, tm.IsExpired(1000))
}

func TestWrapAroundBoundary(t *testing.T) {
	var tm timer.Timer
	var start2 uint32 = 0xFFFFFFF0
	tm.Start(100, start2)
	// now wraps past 2^32
	now := uint32(84) // start2 + 100 wraps to 0xFFFFFFF0+100 = 0x100000054 mod 2^32 = 0x54 = 84
	assert.False(t, tm.IsExpired(now-1))
	assert.True(t, tm.IsExpired(now))
}

func TestNegativeDeltaTreatedAsNotExpired(t *testing.T) {
	var tm timer.Timer
	var start uint32 = 1000
	tm.Start(10, start)
	// now is "before" start by more than half the address space -> not expired
	assert.False(t, tm.IsExpired(start-timer.MaxPeriodUs-1))
}
