package slave_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfieldbus/cciefb/pkg/frame"
	"github.com/openfieldbus/cciefb/pkg/slave"
)

const (
	myIP     uint32 = 0xC0A80164 // 192.168.1.100
	masterIP uint32 = 0xC0A80101 // 192.168.1.1
)

func newTestSlave(t *testing.T, cb slave.Callbacks) *slave.Slave {
	t.Helper()
	s, err := slave.New(slave.Config{
		MyIP:                myIP,
		NumOccupiedStations: 1,
		VendorCode:          0x1234,
		ModelCode:           0xABCDEF01,
		EquipmentVer:        2,
		RateLimitWindowUs:   1_000_000,
	}, nil, cb)
	require.NoError(t, err)
	return s
}

// buildRequest builds a one-group, one-slave-occupying-one-station cyclic
// request whose only slave-ID slot holds myIP, so tests can also exercise
// "frame for another slave" paths by overwriting that slot.
func buildRequest(t *testing.T, frameSeqNo uint16, parameterNo uint16, groupNo uint8, transmissionOn bool) []byte {
	t.Helper()
	const occupied = 1
	buf := make([]byte, frame.CalculateRequestSize(occupied))
	req, err := frame.InitRequest(buf, occupied, frame.MaxProtocolVersion, frame.DefaultTimeoutMs, frame.DefaultTimeoutCount, masterIP, groupNo, parameterNo)
	require.NoError(t, err)

	state := uint16(0)
	if transmissionOn {
		state = frame.SetTransmissionBit(state, 1, true)
	}
	req.UpdateRequestHeaders(frameSeqNo, 12345, frame.MasterLocalUnitInfoRunning, state)
	req.SetSlaveID(0, myIP)
	return req.Bytes()
}

func TestSlaveAcquiresMasterOnFirstCyclicFrame(t *testing.T) {
	var connected []uint32
	s := newTestSlave(t, slave.Callbacks{
		Connect: func(masterID uint32, groupNo uint8, stationNo uint16) { connected = append(connected, masterID) },
	})
	s.Start(0)
	require.Equal(t, slave.StateMasterNone, s.State())

	// A master acquires a slave while the slave's transmission bit is off.
	reqBuf := buildRequest(t, 1, 7, 3, false)
	resp := s.HandleRequest(0, reqBuf, masterIP)

	require.NotNil(t, resp)
	assert.Equal(t, slave.StateMasterControl, s.State())
	require.Len(t, connected, 1)
	assert.Equal(t, masterIP, connected[0])

	parsed, err := frame.ParseResponse(resp)
	require.NoError(t, err)
	assert.Equal(t, frame.EndCodeSuccess, parsed.EndCode())
	assert.Equal(t, myIP, parsed.SlaveID())
	assert.Equal(t, uint8(3), parsed.GroupNo())
	assert.Equal(t, uint16(1), parsed.FrameSequenceNo())
}

func TestSlaveIgnoresFrameForAnotherGroupWhileUnacquired(t *testing.T) {
	s := newTestSlave(t, slave.Callbacks{})
	s.Start(0)

	buf := buildRequest(t, 1, 7, 3, true)
	// Overwrite the only slave-id entry so our IP is absent: this frame is
	// for a different group's slave list.
	req, err := frame.ParseRequest(buf, masterIP)
	require.NoError(t, err)
	_ = req
	other := make([]byte, len(buf))
	copy(other, buf)
	// slave id list starts right after the fixed headers (67 bytes).
	copy(other[67:71], []byte{9, 9, 9, 9})

	resp := s.HandleRequest(0, other, masterIP)
	assert.Nil(t, resp)
	assert.Equal(t, slave.StateMasterNone, s.State())
}

func TestSlaveStaysInMasterNoneOnDuplicateTransmissionBit(t *testing.T) {
	var errs []slave.ErrorKind
	s := newTestSlave(t, slave.Callbacks{
		Error: func(kind slave.ErrorKind, masterID uint32, extra uint32) { errs = append(errs, kind) },
	})
	s.Start(0)

	// Our bit is already on even though we have no master on record.
	reqBuf := buildRequest(t, 1, 7, 3, true)
	resp := s.HandleRequest(0, reqBuf, masterIP)

	assert.Nil(t, resp)
	assert.Equal(t, slave.StateMasterNone, s.State())
	require.Len(t, errs, 1)
	assert.Equal(t, slave.ErrorSlaveDuplication, errs[0])
}

func TestSlaveDetectsWrongOccupiedCount(t *testing.T) {
	var errs []slave.ErrorKind
	s, err := slave.New(slave.Config{
		MyIP:                myIP,
		NumOccupiedStations: 2, // we expect to occupy 2 stations
		RateLimitWindowUs:   1_000_000,
	}, nil, slave.Callbacks{
		Error: func(kind slave.ErrorKind, masterID uint32, extra uint32) { errs = append(errs, kind) },
	})
	require.NoError(t, err)
	s.Start(0)

	reqBuf := buildRequest(t, 1, 7, 3, true) // only 1 occupied station in this frame
	resp := s.HandleRequest(0, reqBuf, masterIP)

	require.NotNil(t, resp)
	parsed, perr := frame.ParseResponse(resp)
	require.NoError(t, perr)
	assert.Equal(t, frame.EndCodeWrongOccupiedCount, parsed.EndCode())
	require.Len(t, errs, 1)
	assert.Equal(t, slave.ErrorWrongStationCount, errs[0])
}

func TestSlaveDetectsMasterDuplication(t *testing.T) {
	var errs []uint32
	s := newTestSlave(t, slave.Callbacks{
		Error: func(kind slave.ErrorKind, masterID uint32, extra uint32) {
			if kind == slave.ErrorMasterDuplication {
				errs = append(errs, masterID)
			}
		},
	})
	s.Start(0)
	s.HandleRequest(0, buildRequest(t, 1, 7, 3, false), masterIP)
	require.Equal(t, slave.StateMasterControl, s.State())

	const otherMaster uint32 = 0xC0A80102
	buf := make([]byte, frame.CalculateRequestSize(1))
	req, err := frame.InitRequest(buf, 1, frame.MaxProtocolVersion, frame.DefaultTimeoutMs, frame.DefaultTimeoutCount, otherMaster, 3, 7)
	require.NoError(t, err)
	req.UpdateRequestHeaders(1, 0, 0, frame.SetTransmissionBit(0, 1, true))
	req.SetSlaveID(0, myIP)

	resp := s.HandleRequest(1000, req.Bytes(), otherMaster)
	require.NotNil(t, resp)
	parsed, perr := frame.ParseResponse(resp)
	require.NoError(t, perr)
	assert.Equal(t, frame.EndCodeMasterDuplication, parsed.EndCode())
	assert.Equal(t, slave.StateMasterControl, s.State(), "wrong-master frame must not change our state")
	require.Len(t, errs, 1)
	assert.Equal(t, otherMaster, errs[0])
}

func TestSlaveTimesOutMasterAfterSilence(t *testing.T) {
	var disconnected bool
	s := newTestSlave(t, slave.Callbacks{
		Disconnect: func() { disconnected = true },
	})
	s.Start(0)
	s.HandleRequest(0, buildRequest(t, 1, 7, 3, false), masterIP)
	require.Equal(t, slave.StateMasterControl, s.State())

	total := frame.TotalTimeoutUs(frame.DefaultTimeoutMs, frame.DefaultTimeoutCount)

	s.Periodic(uint32(total) - 1)
	assert.Equal(t, slave.StateMasterControl, s.State())
	assert.False(t, disconnected)

	s.Periodic(uint32(total))
	assert.Equal(t, slave.StateMasterNone, s.State())
	assert.True(t, disconnected)
}

func TestSlaveDisableWaitsBeforeGoingSilent(t *testing.T) {
	var stateChanges []slave.State
	s := newTestSlave(t, slave.Callbacks{
		StateChange: func(prev, next slave.State) { stateChanges = append(stateChanges, next) },
	})
	s.Start(0)
	s.HandleRequest(0, buildRequest(t, 1, 7, 3, false), masterIP)
	require.Equal(t, slave.StateMasterControl, s.State())

	s.Disable(1000, false)
	require.Equal(t, slave.StateWaitDisablingSlave, s.State())

	// Master keeps polling during the grace period with our bit still on:
	// it should get an error response, not silence.
	resp := s.HandleRequest(1100, buildRequest(t, 2, 7, 3, true), masterIP)
	require.NotNil(t, resp)
	parsed, err := frame.ParseResponse(resp)
	require.NoError(t, err)
	assert.Equal(t, frame.EndCodeSlaveRequestsDisconn, parsed.EndCode())

	s.Periodic(1000 + 2_500_000)
	assert.Equal(t, slave.StateSlaveDisabled, s.State())

	resp = s.HandleRequest(1000+2_500_000, buildRequest(t, 3, 7, 3, true), masterIP)
	assert.Nil(t, resp, "a disabled slave must not answer at all")

	s.Enable(1000 + 2_500_000)
	assert.Equal(t, slave.StateMasterNone, s.State())
}

func TestSlaveDisableFromMasterNoneGoesSilentImmediately(t *testing.T) {
	s := newTestSlave(t, slave.Callbacks{})
	s.Start(0)
	require.Equal(t, slave.StateMasterNone, s.State())

	// No master has ever acquired this slave: there is no transmission bit
	// to wait on, so disabling must skip the grace period entirely.
	s.Disable(0, false)
	assert.Equal(t, slave.StateSlaveDisabled, s.State())

	resp := s.HandleRequest(0, buildRequest(t, 1, 7, 3, true), masterIP)
	assert.Nil(t, resp, "a disabled slave must not answer at all")
}

func TestSlaveDisableWithErrorReportsSlaveError(t *testing.T) {
	s := newTestSlave(t, slave.Callbacks{})
	s.Start(0)
	s.HandleRequest(0, buildRequest(t, 1, 7, 3, false), masterIP)
	s.Disable(100, true)

	resp := s.HandleRequest(200, buildRequest(t, 2, 7, 3, true), masterIP)
	require.NotNil(t, resp)
	parsed, err := frame.ParseResponse(resp)
	require.NoError(t, err)
	assert.Equal(t, frame.EndCodeSlaveError, parsed.EndCode())
}

func TestSlaveSuppressesRepeatedErrorCallbackWithinRetriggerWindow(t *testing.T) {
	var errs []slave.ErrorKind
	s := newTestSlave(t, slave.Callbacks{
		Error: func(kind slave.ErrorKind, masterID uint32, extra uint32) { errs = append(errs, kind) },
	})
	s.Start(0)

	// Our bit is already on even though we have no master on record: fires
	// ErrorSlaveDuplication on every offending frame. A second identical
	// frame inside the 1s errorlimiter window must not fire the callback a
	// second time, independently of the (separately rate-limited) log line.
	reqBuf := buildRequest(t, 1, 7, 3, true)
	s.HandleRequest(0, reqBuf, masterIP)
	s.HandleRequest(500_000, reqBuf, masterIP)
	require.Len(t, errs, 1)

	// Once the window has elapsed, the callback fires again.
	s.Periodic(1_500_000)
	s.HandleRequest(1_500_001, reqBuf, masterIP)
	require.Len(t, errs, 2)
	assert.Equal(t, slave.ErrorSlaveDuplication, errs[1])
}

func TestSlaveRejectsRequestsWhenSlaveDown(t *testing.T) {
	s := newTestSlave(t, slave.Callbacks{})
	resp := s.HandleRequest(0, buildRequest(t, 1, 7, 3, true), masterIP)
	assert.Nil(t, resp)
	assert.Equal(t, slave.StateSlaveDown, s.State())
}

func TestSlaveCyclicDataRoundTrip(t *testing.T) {
	s := newTestSlave(t, slave.Callbacks{})
	s.Start(0)

	const occupied = 1
	buf := make([]byte, frame.CalculateRequestSize(occupied))
	req, err := frame.InitRequest(buf, occupied, frame.MaxProtocolVersion, frame.DefaultTimeoutMs, frame.DefaultTimeoutCount, masterIP, 1, 1)
	require.NoError(t, err)
	req.UpdateRequestHeaders(1, 0, 0, 0)
	req.SetSlaveID(0, myIP)
	copy(req.RWw(0), []byte{0xAA, 0xBB})
	req.RY(0)[0] = 0x01

	// The acquiring frame has our transmission bit off; the master's output
	// data is taken over once the bit is on.
	s.HandleRequest(0, req.Bytes(), masterIP)
	require.Equal(t, slave.StateMasterControl, s.State())
	req.UpdateRequestHeaders(2, 0, 0, frame.SetTransmissionBit(0, 1, true))
	s.HandleRequest(0, req.Bytes(), masterIP)

	assert.Equal(t, byte(0xAA), s.RWw(0)[0])
	assert.Equal(t, byte(0x01), s.RY(0)[0])

	copy(s.RWr(0), []byte{0x11, 0x22})
	s.RX(0)[0] = 0xFF

	req2, err := frame.InitRequest(buf, occupied, frame.MaxProtocolVersion, frame.DefaultTimeoutMs, frame.DefaultTimeoutCount, masterIP, 1, 1)
	require.NoError(t, err)
	req2.UpdateRequestHeaders(2, 0, 0, frame.SetTransmissionBit(0, 1, true))
	req2.SetSlaveID(0, myIP)

	resp := s.HandleRequest(1, req2.Bytes(), masterIP)
	require.NotNil(t, resp)
	parsed, perr := frame.ParseResponse(resp)
	require.NoError(t, perr)
	assert.Equal(t, byte(0x11), parsed.RWr(0)[0])
	assert.Equal(t, byte(0xFF), parsed.RX(0)[0])
}

func TestBumpSequenceNoWrapDoesNotRevisitZero(t *testing.T) {
	assert.Equal(t, uint16(1), frame.BumpSequenceNo(65535))
}
