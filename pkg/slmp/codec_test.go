package slmp_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfieldbus/cciefb/pkg/slmp"
)

var masterMAC = slmp.MAC{0x00, 0x1B, 0x19, 0x01, 0x02, 0x03}
var slaveMAC = slmp.MAC{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}

func TestNodeSearchRoundTrip(t *testing.T) {
	reqBuf := slmp.BuildNodeSearchRequest(7, masterMAC, 0xC0A80101)
	req, err := slmp.ParseNodeSearchRequest(reqBuf)
	require.NoError(t, err)
	assert.Equal(t, uint16(7), req.Serial)
	assert.Equal(t, masterMAC, req.MasterMAC)
	assert.Equal(t, uint32(0xC0A80101), req.MasterIP)

	respBuf := slmp.BuildNodeSearchResponse(slmp.NodeSearchResponse{
		Serial:       7,
		MasterMAC:    masterMAC,
		MasterIP:     0xC0A80101,
		SlaveMAC:     slaveMAC,
		SlaveIP:      0xC0A80102,
		SlaveNetmask: 0xFFFFFF00,
		VendorCode:   0x1234,
		ModelCode:    0xABCDEF01,
		EquipmentVer: 1,
		SlaveStatus:  0,
	})
	resp, err := slmp.ParseNodeSearchResponse(respBuf)
	require.NoError(t, err)
	assert.Equal(t, uint16(7), resp.Serial)
	assert.Equal(t, slaveMAC, resp.SlaveMAC)
	assert.Equal(t, uint32(0xC0A80102), resp.SlaveIP)
	assert.Equal(t, uint32(0xFFFFFF00), resp.SlaveNetmask)
	assert.Equal(t, uint16(0x1234), resp.VendorCode)
	assert.Equal(t, uint32(0xABCDEF01), resp.ModelCode)
}

func TestSetIPRoundTrip(t *testing.T) {
	reqBuf := slmp.BuildSetIPRequest(slmp.SetIPRequest{
		Serial:          3,
		MasterMAC:       masterMAC,
		MasterIP:        0xC0A80101,
		SlaveMAC:        slaveMAC,
		SlaveNewIP:      0xC0A80164,
		SlaveNewNetmask: 0xFFFFFF00,
	})
	req, err := slmp.ParseSetIPRequest(reqBuf)
	require.NoError(t, err)
	assert.Equal(t, uint16(3), req.Serial)
	assert.Equal(t, slaveMAC, req.SlaveMAC)
	assert.Equal(t, uint32(0xC0A80164), req.SlaveNewIP)

	respBuf := slmp.BuildSetIPResponse(3, slaveMAC)
	hdr, err := slmp.PeekResponseHeader(respBuf)
	require.NoError(t, err)
	assert.Equal(t, uint16(3), hdr.Serial)
	assert.Equal(t, slmp.EndCodeSuccess, hdr.EndCode)
	mac, err := slmp.ParseSetIPResponse(respBuf)
	require.NoError(t, err)
	assert.Equal(t, slaveMAC, mac)
}

func TestErrorResponseHeaderDecodesEndCode(t *testing.T) {
	buf := slmp.BuildErrorResponse(3, slmp.EndCodeCommandError, slmp.CommandSetIPAddress, slmp.SubCommandSetIP)
	hdr, err := slmp.PeekResponseHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, uint16(3), hdr.Serial)
	assert.Equal(t, slmp.EndCodeCommandError, hdr.EndCode)
}

func TestParseRejectsTooShort(t *testing.T) {
	_, err := slmp.ParseNodeSearchRequest(make([]byte, 4))
	require.Error(t, err)
	assert.Equal(t, slmp.KindTooShort, err.(*slmp.ParseError).Kind)
}

func TestParseRejectsWrongCommand(t *testing.T) {
	buf := slmp.BuildSetIPRequest(slmp.SetIPRequest{Serial: 1, SlaveMAC: slaveMAC})
	_, err := slmp.ParseNodeSearchRequest(buf)
	require.Error(t, err)
	assert.Equal(t, slmp.KindBadCommand, err.(*slmp.ParseError).Kind)
}
