package master

import (
	"github.com/openfieldbus/cciefb/pkg/frame"
	"github.com/openfieldbus/cciefb/pkg/timer"
)

// GroupState is one of a scan group's five states.
type GroupState int

const (
	GroupStateMasterDown GroupState = iota
	GroupStateMasterListen
	GroupStateMasterArbitration
	GroupStateMasterLinkScanComp
	GroupStateMasterLinkScan
	numGroupStates
)

func (s GroupState) String() string {
	switch s {
	case GroupStateMasterDown:
		return "MasterDown"
	case GroupStateMasterListen:
		return "MasterListen"
	case GroupStateMasterArbitration:
		return "MasterArbitration"
	case GroupStateMasterLinkScanComp:
		return "MasterLinkScanComp"
	case GroupStateMasterLinkScan:
		return "MasterLinkScan"
	default:
		return "Unknown"
	}
}

// GroupEvent drives a group's FSM.
type GroupEvent int

const (
	GroupEventNone GroupEvent = iota
	GroupEventStartup
	GroupEventNewConfig
	GroupEventParameterChange
	GroupEventArbitrationDone
	GroupEventReqFromOther
	GroupEventLinkscanStart
	GroupEventLinkscanComplete
	GroupEventLinkscanTimeout
	GroupEventMasterduplAlarm
	numGroupEvents
)

// DeviceConfig is the static topology entry for one slave device within a
// group.
type DeviceConfig struct {
	SlaveID             uint32
	NumOccupiedStations uint16
	Reserved            bool // permanently excluded from scanning
}

// GroupConfig is the static configuration of one scan group.
type GroupConfig struct {
	GroupNo         uint8
	MasterID        uint32
	BroadcastIP     uint32
	ProtocolVersion uint16
	// ParameterNo seeds the group's request frame before Master.Start has
	// had a chance to load the persisted counter and overwrite it (I8);
	// it has no effect once the master is running.
	ParameterNo             uint16
	TimeoutMs               uint16
	ParallelOffTimeoutCount uint16
	UseConstantLinkScanTime bool
	Devices                 []DeviceConfig
}

// Group owns one CCIEFB scan group: its device FSMs, the persistent
// request frame sent to the broadcast address, and the memory areas the
// application reads/writes cyclic data through.
type Group struct {
	cfg        GroupConfig
	cb         Callbacks
	startArb   func(now uint32)
	triggerErr func(now uint32, groupNo uint8, kind ErrorKind, extra uint32)

	state GroupState

	devices []*Device

	frameSeqNo             uint16
	timestampLinkScanStart uint32

	responseWaitTimer     timer.Timer
	constantLinkscanTimer timer.Timer

	req *frame.RequestFrame

	totalOccupied uint16

	// rww/ry: application-written outputs, copied into req per device.
	// rwr/rx: most recently received inputs, indexed the same way.
	rww []byte
	ry  []byte
	rwr []byte
	rx  []byte

	latestConflictingMasterIP uint32

	pendingSend []byte
}

func newGroup(cfg GroupConfig, cb Callbacks, startArb func(uint32), triggerErr func(now uint32, groupNo uint8, kind ErrorKind, extra uint32)) (*Group, error) {
	var total uint16
	for _, dc := range cfg.Devices {
		total += dc.NumOccupiedStations
	}

	buf := make([]byte, frame.CalculateRequestSize(total))
	req, err := frame.InitRequest(buf, total, cfg.ProtocolVersion, cfg.TimeoutMs, cfg.ParallelOffTimeoutCount, cfg.MasterID, cfg.GroupNo, cfg.ParameterNo)
	if err != nil {
		return nil, err
	}

	g := &Group{
		cfg:           cfg,
		cb:            cb,
		startArb:      startArb,
		triggerErr:    triggerErr,
		req:           req,
		totalOccupied: total,
		rww:           make([]byte, int(total)*frame.RwwSize),
		ry:            make([]byte, int(total)*frame.RySize),
		rwr:           make([]byte, int(total)*frame.RwrSize),
		rx:            make([]byte, int(total)*frame.RxSize),
	}

	stationNo := uint16(1)
	for i, dc := range cfg.Devices {
		d := &Device{cfg: dc, DeviceIndex: uint16(i), StationNo: stationNo}
		g.devices = append(g.devices, d)
		stationNo += dc.NumOccupiedStations
	}

	for idx, dc := range cfg.Devices {
		pos := int(g.devices[idx].StationNo) - 1
		g.req.SetSlaveID(pos, dc.SlaveID)
		for j := 1; j < int(dc.NumOccupiedStations); j++ {
			g.req.SetSlaveID(pos+j, frame.MultistationIndicator)
		}
	}

	return g, nil
}

// State returns the group's current FSM state.
func (g *Group) State() GroupState { return g.state }

// Devices returns the group's devices in configuration order.
func (g *Group) Devices() []*Device { return g.devices }

// RequestBytes returns the group's outgoing cyclic request frame as it
// currently stands, including any headers already mutated for the next
// scan (e.g. parameter_no). Exposed for host-side diagnostics.
func (g *Group) RequestBytes() []byte { return g.req.Bytes() }

func (g *Group) deviceByIP(ip uint32) *Device {
	for _, d := range g.devices {
		if d.cfg.SlaveID == ip {
			return d
		}
	}
	return nil
}

// setParameterNo overwrites the group's request frame's parameter_no
// field, called by Master whenever it reloads the persisted counter.
func (g *Group) setParameterNo(parameterNo uint16) {
	g.cfg.ParameterNo = parameterNo
	g.req.SetParameterNo(parameterNo)
}

func (g *Group) updateSlaveID(d *Device, enable bool) {
	pos := int(d.StationNo) - 1
	if enable {
		g.req.SetSlaveID(pos, d.cfg.SlaveID)
	} else {
		g.req.SetSlaveID(pos, frame.IPAddrInvalid)
	}
}

func (g *Group) updateRequestCyclicData(d *Device, valid bool) {
	start := int(d.StationNo) - 1
	for i := 0; i < int(d.cfg.NumOccupiedStations); i++ {
		idx := start + i
		rww := g.req.RWw(idx)
		ry := g.req.RY(idx)
		if valid {
			copy(rww, g.rww[idx*frame.RwwSize:idx*frame.RwwSize+frame.RwwSize])
			copy(ry, g.ry[idx*frame.RySize:idx*frame.RySize+frame.RySize])
		} else {
			zeroBytes(rww)
			zeroBytes(ry)
		}
	}
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// RWw returns the mutable 32-byte output-register block the application
// writes for occupied-station index (0-based, global within the group).
func (g *Group) RWw(index int) []byte {
	off := index * frame.RwwSize
	return g.rww[off : off+frame.RwwSize]
}

// RY returns the mutable 8-byte output-bit block for occupied-station index.
func (g *Group) RY(index int) []byte {
	off := index * frame.RySize
	return g.ry[off : off+frame.RySize]
}

// RWr returns the most recently received 32-byte input-register block for
// occupied-station index.
func (g *Group) RWr(index int) []byte {
	off := index * frame.RwrSize
	return g.rwr[off : off+frame.RwrSize]
}

// RX returns the most recently received 8-byte input-bit block for
// occupied-station index.
func (g *Group) RX(index int) []byte {
	off := index * frame.RxSize
	return g.rx[off : off+frame.RxSize]
}

// haveReceivedFromAllDevices implements the group's "are we done waiting"
// predicate, grounded exactly on the reference algorithm: the first scan
// (frame_sequence_no == 0) waits for every enabled device to leave WaitTd;
// later scans wait for every device whose transmission bit is on to leave
// CyclicSending.
func (g *Group) haveReceivedFromAllDevices() bool {
	firstFrame := g.frameSeqNo == 0
	hasReceived := false

	if firstFrame {
		for _, d := range g.devices {
			if d.state == DeviceStateWaitTd {
				return false
			}
			if d.state == DeviceStateCyclicSent {
				hasReceived = true
			}
		}
		return hasReceived
	}

	for _, d := range g.devices {
		if d.TransmissionBit {
			hasReceived = true
		}
		if d.TransmissionBit && d.state == DeviceStateCyclicSending {
			return false
		}
	}
	return hasReceived
}

func (g *Group) fireDeviceAll(now uint32, event DeviceEvent) {
	for _, d := range g.devices {
		fireDevice(g, d, now, event)
	}
}

type groupActionFunc func(g *Group, now uint32) GroupEvent

type groupTransition struct {
	from   GroupState
	event  GroupEvent
	to     GroupState
	action groupActionFunc
}

var groupTransitions = []groupTransition{
	{GroupStateMasterDown, GroupEventStartup, GroupStateMasterListen, actionGroupInit},

	{GroupStateMasterListen, GroupEventNewConfig, GroupStateMasterArbitration, actionGroupNewConfig},
	{GroupStateMasterListen, GroupEventParameterChange, GroupStateMasterListen, nil},

	{GroupStateMasterArbitration, GroupEventParameterChange, GroupStateMasterListen, nil},
	{GroupStateMasterArbitration, GroupEventArbitrationDone, GroupStateMasterLinkScanComp, actionOnArbitrationDone},
	{GroupStateMasterArbitration, GroupEventReqFromOther, GroupStateMasterListen, actionOnArbitrationFailed},

	{GroupStateMasterLinkScanComp, GroupEventParameterChange, GroupStateMasterListen, nil},
	{GroupStateMasterLinkScanComp, GroupEventLinkscanStart, GroupStateMasterLinkScan, actionOnLinkscanStart},
	{GroupStateMasterLinkScanComp, GroupEventReqFromOther, GroupStateMasterLinkScanComp, nil},
	{GroupStateMasterLinkScanComp, GroupEventMasterduplAlarm, GroupStateMasterListen, nil},

	{GroupStateMasterLinkScan, GroupEventParameterChange, GroupStateMasterListen, nil},
	{GroupStateMasterLinkScan, GroupEventLinkscanComplete, GroupStateMasterLinkScanComp, actionOnLinkscanComplete},
	{GroupStateMasterLinkScan, GroupEventLinkscanTimeout, GroupStateMasterLinkScanComp, actionOnLinkscanTimeout},
	{GroupStateMasterLinkScan, GroupEventReqFromOther, GroupStateMasterLinkScan, nil},
	{GroupStateMasterLinkScan, GroupEventMasterduplAlarm, GroupStateMasterListen, nil},
}

var groupOnEntry = [numGroupStates]groupActionFunc{
	GroupStateMasterListen:       actionGroupOnEntryListen,
	GroupStateMasterArbitration:  actionGroupOnEntryArbitration,
	GroupStateMasterLinkScanComp: actionGroupOnEntryScanComplete,
}

var groupTransitionTable map[GroupState]map[GroupEvent]groupTransition

func init() {
	groupTransitionTable = make(map[GroupState]map[GroupEvent]groupTransition, numGroupStates)
	for _, t := range groupTransitions {
		if groupTransitionTable[t.from] == nil {
			groupTransitionTable[t.from] = make(map[GroupEvent]groupTransition)
		}
		groupTransitionTable[t.from][t.event] = t
	}
}

// fire dispatches event through the group's FSM. Like the device FSM, there
// is no on-exit hook, and on-entry's returned event is discarded: only a
// transition's own action cascades.
func (g *Group) fire(now uint32, event GroupEvent) {
	for event != GroupEventNone {
		t, ok := groupTransitionTable[g.state][event]
		if !ok {
			return
		}

		prev := g.state
		g.state = t.to

		next := GroupEventNone
		if t.action != nil {
			next = t.action(g, now)
		}

		if g.state != prev {
			if fn := groupOnEntry[g.state]; fn != nil {
				fn(g, now)
			}
		}

		event = next
	}
}
