package slave

import "github.com/openfieldbus/cciefb/pkg/frame"

// actionFunc is a transition's side-effecting body. It may return a
// non-EventNone event to immediately re-enter the dispatch loop (the
// cascading-event mechanism: e.g. CyclicNewMaster's action hands control
// straight to CyclicCorrectMaster's handler within the same fire() call).
// req is nil for internally-generated events (timeouts, Disable/Enable).
type actionFunc func(s *Slave, now uint32, req *frame.ParsedRequest) Event

type transition struct {
	from   State
	event  Event
	to     State
	action actionFunc
}

var transitions = []transition{
	{StateSlaveDown, EventStartup, StateMasterNone, actionSlaveInit},

	{StateMasterNone, EventCyclicNewMaster, StateMasterControl, actionHandleNewOrUpdatedMaster},
	{StateMasterNone, EventCyclicWrongStationcount, StateMasterNone, actionHandleWrongStationcount},
	{StateMasterNone, EventDisableSlave, StateSlaveDisabled, actionLogSlaveDisabled},

	{StateMasterControl, EventCyclicCorrectMaster, StateMasterControl, actionHandleCyclicEvent},
	{StateMasterControl, EventCyclicNewMaster, StateMasterControl, actionHandleNewOrUpdatedMaster},
	{StateMasterControl, EventCyclicWrongMaster, StateMasterControl, actionHandleWrongMaster},
	{StateMasterControl, EventCyclicWrongStationcount, StateMasterNone, actionHandleWrongStationcount},
	{StateMasterControl, EventTimeoutMaster, StateMasterNone, actionLogTimeoutMaster},
	{StateMasterControl, EventDisableSlave, StateWaitDisablingSlave, actionLogSlaveDisabled},
	{StateMasterControl, EventIpUpdated, StateMasterNone, actionLogIPAddrUpdated},

	{StateWaitDisablingSlave, EventCyclicIncomingWhenDisabled, StateWaitDisablingSlave, actionHandleIncomingWhenDisabled},
	{StateWaitDisablingSlave, EventDisableSlaveWaitEnded, StateSlaveDisabled, nil},
	{StateWaitDisablingSlave, EventReenableSlave, StateMasterNone, actionLogSlaveReenabled},
	{StateWaitDisablingSlave, EventIpUpdated, StateSlaveDisabled, actionLogIPAddrUpdated},

	{StateSlaveDisabled, EventReenableSlave, StateMasterNone, actionLogSlaveReenabled},
}

type onEntryExitFunc func(s *Slave, now uint32)

var onEntry = [numStates]onEntryExitFunc{
	StateMasterNone:         func(s *Slave, now uint32) { s.clearMasterInfo(now) },
	StateWaitDisablingSlave: onEntryWaitDisablingSlave,
	StateSlaveDisabled:      func(s *Slave, now uint32) { s.disableTimer.Stop() },
}

var onExit = [numStates]onEntryExitFunc{
	StateMasterControl: func(s *Slave, now uint32) {
		if s.cb.Disconnect != nil {
			s.cb.Disconnect()
		}
	},
}

func onEntryWaitDisablingSlave(s *Slave, now uint32) {
	s.clearMasterInfo(now)
	s.disableTimer.Start(waitTimeDisableSlaveUs, now)
}

var transitionTable map[State]map[Event]transition

func init() {
	transitionTable = make(map[State]map[Event]transition, numStates)
	for _, t := range transitions {
		if transitionTable[t.from] == nil {
			transitionTable[t.from] = make(map[Event]transition)
		}
		transitionTable[t.from][t.event] = t
	}
}

// fire runs the FSM dispatch loop for event, following the exact
// on_exit -> transition -> action -> on_entry -> state-change-callback
// ordering, cascading through any event an action hands back until one
// returns EventNone or no transition matches.
func (s *Slave) fire(now uint32, req *frame.ParsedRequest, event Event) {
	for event != EventNone {
		t, ok := transitionTable[s.state][event]
		if !ok {
			return
		}

		prev := s.state
		if t.to != prev {
			if fn := onExit[prev]; fn != nil {
				fn(s, now)
			}
		}

		s.state = t.to

		next := EventNone
		if t.action != nil {
			next = t.action(s, now, req)
		}

		if t.to != prev {
			if fn := onEntry[t.to]; fn != nil {
				fn(s, now)
			}
			if s.cb.StateChange != nil {
				s.cb.StateChange(prev, t.to)
			}
		}

		event = next
	}
}
