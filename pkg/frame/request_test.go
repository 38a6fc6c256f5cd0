package frame_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfieldbus/cciefb/pkg/frame"
)

func buildSampleRequest(t *testing.T, occupied uint16, masterID uint32, groupNo uint8) *frame.RequestFrame {
	t.Helper()
	buf := make([]byte, frame.CalculateRequestSize(occupied))
	req, err := frame.InitRequest(buf, occupied, frame.MaxProtocolVersion, 500, 3, masterID, groupNo, 1)
	require.NoError(t, err)
	return req
}

func TestRequestBuildParseRoundTrip(t *testing.T) {
	const masterID = 0xC0A80101 // 192.168.1.1
	req := buildSampleRequest(t, 3, masterID, 5)

	req.SetSlaveID(0, 0xC0A80102)
	req.SetSlaveID(1, 0xC0A80103)
	req.SetSlaveID(2, 0xC0A80104)
	req.UpdateRequestHeaders(1, 123456789, 1, 0x0007)
	copy(req.RWw(1), []byte{0xAA, 0xBB})
	req.RY(1)[0] = 0x01

	view, err := frame.ParseRequest(req.Bytes(), masterID)
	require.NoError(t, err)

	assert.Equal(t, uint16(3), view.Occupied())
	assert.Equal(t, uint32(masterID), view.MasterID())
	assert.Equal(t, uint8(5), view.GroupNo())
	assert.Equal(t, uint16(1), view.FrameSequenceNo())
	assert.Equal(t, uint64(123456789), view.ClockInfoMs())
	assert.Equal(t, uint16(1), view.MasterLocalUnitInfo())
	assert.Equal(t, uint16(0x0007), view.CyclicTransmissionState())
	assert.Equal(t, uint32(0xC0A80103), view.SlaveID(1))
	assert.Equal(t, byte(0xAA), view.RWw(1)[0])
	assert.Equal(t, byte(0x01), view.RY(1)[0])
}

func TestParseRequestRejectsTooShort(t *testing.T) {
	_, err := frame.ParseRequest(make([]byte, 10), 1)
	require.Error(t, err)
	assert.Equal(t, frame.KindTooShort, err.(*frame.ParseError).Kind)
}

func TestParseRequestRejectsLengthMismatch(t *testing.T) {
	req := buildSampleRequest(t, 1, 0xC0A80101, 1)
	buf := append(req.Bytes(), 0x00) // one stray trailing byte
	_, err := frame.ParseRequest(buf, 0xC0A80101)
	require.Error(t, err)
	assert.Equal(t, frame.KindLengthMismatch, err.(*frame.ParseError).Kind)
}

func TestParseRequestRejectsMasterIDMismatch(t *testing.T) {
	req := buildSampleRequest(t, 1, 0xC0A80101, 1)
	_, err := frame.ParseRequest(req.Bytes(), 0xC0A80199)
	require.Error(t, err)
	assert.Equal(t, frame.KindBadMasterID, err.(*frame.ParseError).Kind)
}

func TestParseRequestRejectsZeroMasterID(t *testing.T) {
	buf := make([]byte, frame.CalculateRequestSize(1))
	req, err := frame.InitRequest(buf, 1, frame.MaxProtocolVersion, 500, 3, frame.IPAddrInvalid, 1, 1)
	require.NoError(t, err)
	_, err = frame.ParseRequest(req.Bytes(), frame.IPAddrInvalid)
	require.Error(t, err)
	assert.Equal(t, frame.KindBadMasterID, err.(*frame.ParseError).Kind)
}

func TestParseRequestRejectsBadGroupNo(t *testing.T) {
	buf := make([]byte, frame.CalculateRequestSize(1))
	req, err := frame.InitRequest(buf, 1, frame.MaxProtocolVersion, 500, 3, 0xC0A80101, 0, 1)
	require.NoError(t, err)
	_, err = frame.ParseRequest(req.Bytes(), 0xC0A80101)
	require.Error(t, err)
	assert.Equal(t, frame.KindBadGroupNo, err.(*frame.ParseError).Kind)
}

func TestRequestSizeBoundaries(t *testing.T) {
	assert.Equal(t, frame.ReqFixedHeadersSize+76, frame.CalculateRequestSize(1))
	assert.Equal(t, frame.ReqFixedHeadersSize+16*76, frame.CalculateRequestSize(16))
}
