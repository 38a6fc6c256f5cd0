package master_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfieldbus/cciefb/pkg/frame"
	"github.com/openfieldbus/cciefb/pkg/master"
)

func buildResponse(t *testing.T, frameSeqNo uint16, groupNo uint8, slaveID uint32) []byte {
	t.Helper()
	return buildResponseOccupied(t, frameSeqNo, groupNo, slaveID, 1)
}

func buildResponseOccupied(t *testing.T, frameSeqNo uint16, groupNo uint8, slaveID uint32, occupied uint16) []byte {
	t.Helper()
	buf := make([]byte, frame.CalculateResponseSize(occupied))
	resp, err := frame.InitResponse(buf, occupied, 0x1234, 0xABCDEF01, 2)
	require.NoError(t, err)
	resp.UpdateResponseHeaders(frame.EndCodeSuccess, slaveID, groupNo, frameSeqNo, 0, 0, 0)
	return resp.Bytes()
}

func oneDeviceGroup(t *testing.T) *master.Master {
	t.Helper()
	m, err := master.New(master.Config{
		ArbitrationTimeoutUs: 1000,
		Groups: []master.GroupConfig{
			{
				GroupNo:                 1,
				MasterID:                0xC0A80101,
				BroadcastIP:             0xC0A801FF,
				ProtocolVersion:         2,
				TimeoutMs:               500,
				ParallelOffTimeoutCount: 3,
				Devices: []master.DeviceConfig{
					{SlaveID: 0xC0A80164, NumOccupiedStations: 1},
				},
			},
		},
	}, nil, master.Callbacks{}, nil)
	require.NoError(t, err)
	return m
}

func TestMasterStartupReachesLinkScanAfterArbitration(t *testing.T) {
	m := oneDeviceGroup(t)
	g := m.Groups()[0]

	m.Start(0)
	assert.Equal(t, master.GroupStateMasterArbitration, g.State())

	m.Periodic(999)
	assert.Equal(t, master.GroupStateMasterArbitration, g.State(), "arbitration window not elapsed yet")

	m.Periodic(1000)
	assert.Equal(t, master.GroupStateMasterLinkScan, g.State())

	d := g.Devices()[0]
	assert.Equal(t, master.DeviceStateWaitTd, d.State())
}

func TestMasterLinkscanCompletesOnResponse(t *testing.T) {
	m := oneDeviceGroup(t)
	g := m.Groups()[0]
	m.Start(0)
	m.Periodic(1000)
	require.Equal(t, master.GroupStateMasterLinkScan, g.State())

	d := g.Devices()[0]
	require.Equal(t, master.DeviceStateWaitTd, d.State())

	m.HandleResponse(1100, buildResponse(t, 0, 1, 0xC0A80164), 0xC0A80164)
	assert.Equal(t, master.DeviceStateCyclicSent, d.State())

	m.Periodic(1100)
	// Variable (non-constant) link-scan timing cascades straight into the
	// next scan once every device has responded, so the group passes
	// through MasterLinkScanComp and is back in MasterLinkScan by the time
	// Periodic returns.
	assert.Equal(t, master.GroupStateMasterLinkScan, g.State())
	assert.Equal(t, master.DeviceStateCyclicSending, d.State())
}

func TestMasterDropsResponseWithWrongOccupiedCount(t *testing.T) {
	m := oneDeviceGroup(t)
	g := m.Groups()[0]
	m.Start(0)
	m.Periodic(1000)

	d := g.Devices()[0]
	require.Equal(t, master.DeviceStateWaitTd, d.State())

	m.HandleResponse(1100, buildResponseOccupied(t, 0, 1, 0xC0A80164, 2), 0xC0A80164)
	assert.Equal(t, master.DeviceStateWaitTd, d.State(), "wrong occupied count must be dropped, not acted on")
}

func TestMasterDetectsSlaveDuplicationOnRepeatedSequenceNo(t *testing.T) {
	var gotErr master.ErrorKind
	m, err := master.New(master.Config{
		ArbitrationTimeoutUs: 1000,
		Groups: []master.GroupConfig{
			{
				GroupNo:                 1,
				MasterID:                0xC0A80101,
				BroadcastIP:             0xC0A801FF,
				ProtocolVersion:         2,
				TimeoutMs:               500,
				ParallelOffTimeoutCount: 3,
				Devices: []master.DeviceConfig{
					{SlaveID: 0xC0A80164, NumOccupiedStations: 1},
				},
			},
		},
	}, nil, master.Callbacks{
		Error: func(groupNo uint8, kind master.ErrorKind, extra uint32) { gotErr = kind },
	}, nil)
	require.NoError(t, err)

	g := m.Groups()[0]
	m.Start(0)
	m.Periodic(1000)

	d := g.Devices()[0]
	m.HandleResponse(1100, buildResponse(t, 0, 1, 0xC0A80164), 0xC0A80164)
	require.Equal(t, master.DeviceStateCyclicSent, d.State())

	// Same frame sequence number again, outside Listen: a second device
	// claiming to be this slave ID.
	m.HandleResponse(1150, buildResponse(t, 0, 1, 0xC0A80164), 0xC0A80164)
	assert.Equal(t, master.DeviceStateListen, d.State())
	assert.Equal(t, master.ErrorSlaveDuplication, gotErr)
}

func TestMasterParameterNoIncrementsAndPersistsAcrossRestart(t *testing.T) {
	files := map[string][]byte{}
	readFile := func(name string) ([]byte, bool, error) {
		data, ok := files[name]
		return data, ok, nil
	}
	writeFile := func(name string, data []byte) error {
		files[name] = append([]byte(nil), data...)
		return nil
	}

	newMaster := func(t *testing.T) *master.Master {
		t.Helper()
		m, err := master.New(master.Config{
			ArbitrationTimeoutUs: 1000,
			Groups: []master.GroupConfig{
				{
					GroupNo: 1, MasterID: 0xC0A80101, BroadcastIP: 0xC0A801FF, TimeoutMs: 500, ParallelOffTimeoutCount: 3,
					ProtocolVersion: 2,
					Devices:         []master.DeviceConfig{{SlaveID: 0xC0A80164, NumOccupiedStations: 1}},
				},
			},
			ReadFile:  readFile,
			WriteFile: writeFile,
		}, nil, master.Callbacks{}, nil)
		require.NoError(t, err)
		return m
	}

	m1 := newMaster(t)
	m1.Start(0)
	firstParameterNo := frameParameterNo(t, m1.Groups()[0])
	assert.EqualValues(t, 1, firstParameterNo, "first-ever startup with nothing persisted starts at 1")

	// A fresh master restarted against the same persisted files must pick
	// up strictly after the previous run's value (I8).
	m2 := newMaster(t)
	m2.Start(0)
	secondParameterNo := frameParameterNo(t, m2.Groups()[0])
	assert.Greater(t, secondParameterNo, firstParameterNo)
}

func TestMasterReconfigureBumpsParameterNo(t *testing.T) {
	files := map[string][]byte{}
	readFile := func(name string) ([]byte, bool, error) {
		data, ok := files[name]
		return data, ok, nil
	}
	writeFile := func(name string, data []byte) error {
		files[name] = append([]byte(nil), data...)
		return nil
	}

	m, err := master.New(master.Config{
		ArbitrationTimeoutUs: 1000,
		Groups: []master.GroupConfig{
			{
				GroupNo: 1, MasterID: 0xC0A80101, BroadcastIP: 0xC0A801FF, TimeoutMs: 500, ParallelOffTimeoutCount: 3,
				ProtocolVersion: 2,
				Devices:         []master.DeviceConfig{{SlaveID: 0xC0A80164, NumOccupiedStations: 1}},
			},
		},
		ReadFile:  readFile,
		WriteFile: writeFile,
	}, nil, master.Callbacks{}, nil)
	require.NoError(t, err)

	m.Start(0)
	before := frameParameterNo(t, m.Groups()[0])

	m.Reconfigure(2000)
	after := frameParameterNo(t, m.Groups()[0])
	assert.Greater(t, after, before)
	assert.Equal(t, master.GroupStateMasterArbitration, m.Groups()[0].State())
}

// frameParameterNo extracts parameter_no from a group's outgoing request
// frame by parsing it the way a slave would off the wire.
func frameParameterNo(t *testing.T, g *master.Group) uint16 {
	t.Helper()
	req, err := frame.ParseRequest(g.RequestBytes(), 0xC0A80101)
	require.NoError(t, err)
	return req.ParameterNo()
}

func TestMasterLinkscanTimesOutWithNoResponse(t *testing.T) {
	m := oneDeviceGroup(t)
	g := m.Groups()[0]
	m.Start(0)
	m.Periodic(1000)
	require.Equal(t, master.GroupStateMasterLinkScan, g.State())

	total := uint32(500*1000*3) + 1000
	m.Periodic(total)
	// The default (non-constant-link-scan-time) config immediately cascades
	// a fresh LinkscanStart on timeout, so the group passes through
	// MasterLinkScanComp and lands back in MasterLinkScan with a new scan
	// already underway.
	assert.Equal(t, master.GroupStateMasterLinkScan, g.State())

	d := g.Devices()[0]
	assert.Equal(t, master.DeviceStateWaitTd, d.State())
}
