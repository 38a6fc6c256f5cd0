// Package master implements the CCIEFB master-side state machines: one
// device FSM per slave device and one group FSM per scan group, driving
// cyclic request/response exchange and link-scan pacing.
package master

import "github.com/openfieldbus/cciefb/pkg/frame"

// DeviceState is one of a slave device's six states, tracked per group
// member.
type DeviceState int

const (
	DeviceStateMasterDown DeviceState = iota
	DeviceStateListen
	DeviceStateWaitTd
	DeviceStateCyclicSuspend
	DeviceStateCyclicSent
	DeviceStateCyclicSending
	numDeviceStates
)

func (s DeviceState) String() string {
	switch s {
	case DeviceStateMasterDown:
		return "MasterDown"
	case DeviceStateListen:
		return "Listen"
	case DeviceStateWaitTd:
		return "WaitTd"
	case DeviceStateCyclicSuspend:
		return "CyclicSuspend"
	case DeviceStateCyclicSent:
		return "CyclicSent"
	case DeviceStateCyclicSending:
		return "CyclicSending"
	default:
		return "Unknown"
	}
}

// DeviceEvent drives a single device's FSM.
type DeviceEvent int

const (
	DeviceEventNone DeviceEvent = iota
	DeviceEventGroupStartup
	DeviceEventGroupStandby
	DeviceEventScanStartDeviceStart
	DeviceEventScanStartDeviceStop
	DeviceEventSlaveDuplication
	DeviceEventReceiveOK
	DeviceEventReceiveError
	DeviceEventGroupTimeout
	DeviceEventGroupAllResponded
	DeviceEventTimeoutcounterFull
	DeviceEventTimeoutcounterNotFull
	numDeviceEvents
)

// DeviceStatistics mirrors the per-device counters a master keeps for
// diagnostics.
type DeviceStatistics struct {
	NumberOfConnects    uint32
	NumberOfDisconnects uint32
	NumberOfSentFrames  uint32
	NumberOfTimeouts    uint32
}

// Device is one slave device's runtime state within a group.
type Device struct {
	cfg DeviceConfig

	state DeviceState

	DeviceIndex          uint16
	StationNo            uint16 // 1-based, computed from preceding devices' occupation
	Enabled              bool
	TransmissionBit      bool
	ForceTransmissionBit bool
	TimeoutCount         uint16
	Stats                DeviceStatistics

	LastFrame FrameValues
}

// FrameValues is everything extracted from the most recent response header
// for this device.
type FrameValues struct {
	HasBeenReceived     bool
	ResponseTimeUs       uint32
	EndCode              frame.EndCode
	NumOccupiedStations  uint16
	ProtocolVer          uint16
	VendorCode           uint16
	ModelCode            uint32
	EquipmentVer         uint16
	SlaveLocalUnitInfo   uint16
	LocalManagementInfo  uint32
	SlaveErrCode         uint16
	SlaveID              uint32
	GroupNo              uint8
	FrameSequenceNo      uint16
}

// State returns the device's current FSM state.
func (d *Device) State() DeviceState { return d.state }

type deviceActionFunc func(g *Group, d *Device, now uint32) DeviceEvent

type deviceTransition struct {
	from   DeviceState
	event  DeviceEvent
	to     DeviceState
	action deviceActionFunc
}

var deviceTransitions = []deviceTransition{
	{DeviceStateMasterDown, DeviceEventGroupStartup, DeviceStateListen, actionDeviceInit},

	{DeviceStateListen, DeviceEventGroupStandby, DeviceStateListen, nil},
	{DeviceStateListen, DeviceEventScanStartDeviceStart, DeviceStateWaitTd, actionSetDataIP},
	{DeviceStateListen, DeviceEventScanStartDeviceStop, DeviceStateCyclicSuspend, actionSetDataIP},
	{DeviceStateListen, DeviceEventSlaveDuplication, DeviceStateListen, nil},

	{DeviceStateWaitTd, DeviceEventGroupStandby, DeviceStateListen, nil},
	{DeviceStateWaitTd, DeviceEventReceiveOK, DeviceStateCyclicSent, nil},
	{DeviceStateWaitTd, DeviceEventReceiveError, DeviceStateListen, nil},
	{DeviceStateWaitTd, DeviceEventGroupTimeout, DeviceStateListen, nil},
	{DeviceStateWaitTd, DeviceEventGroupAllResponded, DeviceStateListen, nil},
	{DeviceStateWaitTd, DeviceEventSlaveDuplication, DeviceStateListen, nil},

	{DeviceStateCyclicSuspend, DeviceEventGroupStandby, DeviceStateListen, nil},
	{DeviceStateCyclicSuspend, DeviceEventGroupTimeout, DeviceStateListen, nil},
	{DeviceStateCyclicSuspend, DeviceEventGroupAllResponded, DeviceStateListen, nil},
	{DeviceStateCyclicSuspend, DeviceEventSlaveDuplication, DeviceStateListen, nil},

	{DeviceStateCyclicSent, DeviceEventGroupStandby, DeviceStateListen, nil},
	{DeviceStateCyclicSent, DeviceEventScanStartDeviceStart, DeviceStateCyclicSending, actionSetDataIP},
	{DeviceStateCyclicSent, DeviceEventScanStartDeviceStop, DeviceStateCyclicSuspend, nil},
	{DeviceStateCyclicSent, DeviceEventSlaveDuplication, DeviceStateListen, nil},

	{DeviceStateCyclicSending, DeviceEventGroupStandby, DeviceStateListen, nil},
	{DeviceStateCyclicSending, DeviceEventReceiveOK, DeviceStateCyclicSent, actionResetTimeoutCount},
	{DeviceStateCyclicSending, DeviceEventReceiveError, DeviceStateListen, nil},
	{DeviceStateCyclicSending, DeviceEventGroupTimeout, DeviceStateCyclicSending, actionEvaluateTimeoutCounter},
	{DeviceStateCyclicSending, DeviceEventTimeoutcounterFull, DeviceStateListen, nil},
	{DeviceStateCyclicSending, DeviceEventTimeoutcounterNotFull, DeviceStateCyclicSent, nil},
	{DeviceStateCyclicSending, DeviceEventSlaveDuplication, DeviceStateListen, nil},
}

var deviceOnEntry = [numDeviceStates]deviceActionFunc{
	DeviceStateListen: actionResetTimeoutCount,
}

var deviceTransitionTable map[DeviceState]map[DeviceEvent]deviceTransition

func init() {
	deviceTransitionTable = make(map[DeviceState]map[DeviceEvent]deviceTransition, numDeviceStates)
	for _, t := range deviceTransitions {
		if deviceTransitionTable[t.from] == nil {
			deviceTransitionTable[t.from] = make(map[DeviceEvent]deviceTransition)
		}
		deviceTransitionTable[t.from][t.event] = t
	}
}

// fireDevice dispatches event through d's FSM. Unlike the slave FSM this
// layer has no on-exit hook and the on-entry hook's returned event is
// discarded, faithfully matching the reference master stack: only the
// transition's own action can cascade into a further event.
func fireDevice(g *Group, d *Device, now uint32, event DeviceEvent) {
	for event != DeviceEventNone {
		t, ok := deviceTransitionTable[d.state][event]
		if !ok {
			return
		}

		prev := d.state
		d.state = t.to

		next := DeviceEventNone
		if t.action != nil {
			next = t.action(g, d, now)
		}

		if d.state != prev {
			if fn := deviceOnEntry[d.state]; fn != nil {
				fn(g, d, now)
			}
		}

		event = next
	}
}
