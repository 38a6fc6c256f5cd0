package ratelimit_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openfieldbus/cciefb/pkg/ratelimit"
)

func TestRepeatedTagSuppressed(t *testing.T) {
	const period = 1000
	l := ratelimit.New(period)

	assert.True(t, l.ShouldRunNow(7, 0))
	assert.False(t, l.ShouldRunNow(7, period/2))
	assert.True(t, l.ShouldRunNow(7, 2*period))
}

func TestTagChangeAlwaysPasses(t *testing.T) {
	const period = 1000
	l := ratelimit.New(period)

	assert.True(t, l.ShouldRunNow(1, 0))
	assert.True(t, l.ShouldRunNow(2, period/2))
	assert.True(t, l.ShouldRunNow(1, period))
}

func TestZeroPeriodNeverSuppresses(t *testing.T) {
	l := ratelimit.New(0)
	assert.True(t, l.ShouldRunNow(1, 0))
	assert.True(t, l.ShouldRunNow(1, 1))
	assert.True(t, l.ShouldRunNow(1, 2))
}

func TestPeriodicDoesNotCountAsCall(t *testing.T) {
	const period = 100
	l := ratelimit.New(period)
	l.ShouldRunNow(1, 0)
	l.Periodic(period)
	calls, outputs := l.Stats()
	assert.EqualValues(t, 1, calls)
	assert.EqualValues(t, 1, outputs)
}
