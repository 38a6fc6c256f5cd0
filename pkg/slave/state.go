// Package slave implements the CCIEFB slave-side state machine (§4.4): a
// single device that is cyclically polled by one master at a time, replying
// with a normal or error response frame on every scan.
package slave

// State is one of the slave FSM's five states.
type State int

const (
	StateSlaveDown State = iota
	StateMasterNone
	StateMasterControl
	StateWaitDisablingSlave
	StateSlaveDisabled
	numStates
)

func (s State) String() string {
	switch s {
	case StateSlaveDown:
		return "SlaveDown"
	case StateMasterNone:
		return "MasterNone"
	case StateMasterControl:
		return "MasterControl"
	case StateWaitDisablingSlave:
		return "WaitDisablingSlave"
	case StateSlaveDisabled:
		return "SlaveDisabled"
	default:
		return "Unknown"
	}
}

// Event drives the slave FSM. EventNone means "stop, nothing more to do".
type Event int

const (
	EventNone Event = iota
	EventStartup
	EventCyclicNewMaster
	EventCyclicCorrectMaster
	EventCyclicWrongMaster
	EventCyclicWrongStationcount
	EventCyclicIncomingWhenDisabled
	EventTimeoutMaster
	EventReenableSlave
	EventDisableSlave
	EventDisableSlaveWaitEnded
	EventIpUpdated
	numEvents
)

func (e Event) String() string {
	switch e {
	case EventNone:
		return "None"
	case EventStartup:
		return "Startup"
	case EventCyclicNewMaster:
		return "CyclicNewMaster"
	case EventCyclicCorrectMaster:
		return "CyclicCorrectMaster"
	case EventCyclicWrongMaster:
		return "CyclicWrongMaster"
	case EventCyclicWrongStationcount:
		return "CyclicWrongStationcount"
	case EventCyclicIncomingWhenDisabled:
		return "CyclicIncomingWhenDisabled"
	case EventTimeoutMaster:
		return "TimeoutMaster"
	case EventReenableSlave:
		return "ReenableSlave"
	case EventDisableSlave:
		return "DisableSlave"
	case EventDisableSlaveWaitEnded:
		return "DisableSlaveWaitEnded"
	case EventIpUpdated:
		return "IpUpdated"
	default:
		return "Unknown"
	}
}
