package slave

import "github.com/openfieldbus/cciefb/pkg/frame"

func actionSlaveInit(s *Slave, now uint32, req *frame.ParsedRequest) Event {
	s.recvTimer.Stop()
	s.disableTimer.Stop()
	s.master = masterRecord{}
	s.slaveApplStatus = frame.SlaveApplOperationStatusOperating
	s.endcodeSlaveDisabled = frame.EndCodeSlaveRequestsDisconn
	return EventNone
}

// clearMasterInfo is MasterNone's on-entry action: stop both timers, drop
// everything we knew about the previous master and tell the application it
// is no longer connected.
func (s *Slave) clearMasterInfo(now uint32) {
	s.recvTimer.Stop()
	s.disableTimer.Stop()
	s.master = masterRecord{}
	s.fireMasterStateCallback(false)
}

// triggerError fires Callbacks.Error, gated by errorRl independently of any
// log-line rate limiting at the call site: repeated errors of the same kind
// within errorCallbackRetriggerPeriodUs collapse to a single callback.
func (s *Slave) triggerError(now uint32, kind ErrorKind, masterID uint32, extra uint32) {
	if s.cb.Error == nil {
		return
	}
	if !s.errorRl.ShouldRunNow(int(kind), now) {
		return
	}
	s.cb.Error(kind, masterID, extra)
}

func (s *Slave) fireMasterStateCallback(connected bool) {
	if s.cb.MasterState == nil {
		return
	}
	if !connected {
		s.cb.MasterState(false, false, false, 0, 0)
		return
	}
	running := s.master.LocalUnitInfo&frame.MasterLocalUnitInfoRunning != 0
	stoppedByUser := s.master.ProtocolVer >= 2 && s.master.LocalUnitInfo&frame.MasterLocalUnitInfoStoppedByUser != 0
	s.cb.MasterState(true, running, stoppedByUser, s.master.ProtocolVer, s.master.LocalUnitInfo)
}

func actionHandleWrongMaster(s *Slave, now uint32, req *frame.ParsedRequest) Event {
	newMasterID := req.MasterID()
	if s.rl.ShouldRunNow(tagWrongMaster, now) {
		s.log.WithField("master_id", newMasterID).Warn("second master attempted to take control")
	}
	s.triggerError(now, ErrorMasterDuplication, newMasterID, 0)
	s.sendError(req, frame.EndCodeMasterDuplication)
	return EventNone
}

func actionHandleWrongStationcount(s *Slave, now uint32, req *frame.ParsedRequest) Event {
	s.sendError(req, frame.EndCodeWrongOccupiedCount)
	return EventNone
}

func actionHandleIncomingWhenDisabled(s *Slave, now uint32, req *frame.ParsedRequest) Event {
	s.sendError(req, s.endcodeSlaveDisabled)
	return EventNone
}

func actionHandleNewOrUpdatedMaster(s *Slave, now uint32, req *frame.ParsedRequest) Event {
	s.master.MasterID = req.MasterID()
	s.master.ParameterNo = req.ParameterNo()
	s.master.GroupNo = req.GroupNo()
	s.master.TimeoutMs = req.TimeoutMs()
	s.master.TimeoutCount = req.TimeoutCount()
	s.master.TotalOccupied = req.Occupied()
	s.master.ClockInfoMs = req.ClockInfoMs()
	s.master.ClockInfoValid = req.ClockInfoMs() != 0
	s.master.ProtocolVer = req.ProtocolVersion()
	s.master.LocalUnitInfo = req.MasterLocalUnitInfo()
	// StationNo was already resolved by searchSlaveParameters before this
	// event was fired.

	period := frame.TotalTimeoutUs(s.master.TimeoutMs, s.master.TimeoutCount)
	s.recvTimer.Start(uint32(period), now)

	if s.cb.Connect != nil {
		s.cb.Connect(s.master.MasterID, s.master.GroupNo, s.master.StationNo)
	}
	s.fireMasterStateCallback(true)
	return EventCyclicCorrectMaster
}

func actionHandleCyclicEvent(s *Slave, now uint32, req *frame.ParsedRequest) Event {
	s.copyCyclicDataFromRequest(req)
	s.master.ClockInfoMs = req.ClockInfoMs()
	s.master.ClockInfoValid = req.ClockInfoMs() != 0
	s.master.LocalUnitInfo = req.MasterLocalUnitInfo()
	s.fireMasterStateCallback(true)
	s.sendNormal(req)
	s.recvTimer.Restart(now)
	return EventNone
}

// copyCyclicDataFromRequest pulls RWw/RY for every station we occupy into
// our internal cyclic data area, only while our transmission bit is on. A
// master that has turned our bit off is actively withholding new output
// data, so the previous values are cleared rather than left stale.
func (s *Slave) copyCyclicDataFromRequest(req *frame.ParsedRequest) {
	on := frame.TransmissionBit(req.CyclicTransmissionState(), s.master.StationNo)
	base := int(s.master.StationNo) - 1
	for i := 0; i < int(s.cfg.NumOccupiedStations); i++ {
		rww := s.rww(i)
		ry := s.ry(i)
		if on {
			copy(rww, req.RWw(base+i))
			copy(ry, req.RY(base+i))
		} else {
			zero(rww)
			zero(ry)
		}
	}
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func actionLogTimeoutMaster(s *Slave, now uint32, req *frame.ParsedRequest) Event {
	s.log.WithField("master_id", s.master.MasterID).Warn("master timed out")
	return EventNone
}

func actionLogIPAddrUpdated(s *Slave, now uint32, req *frame.ParsedRequest) Event {
	s.log.Info("local IP address changed, dropping current master connection")
	return EventNone
}

func actionLogSlaveDisabled(s *Slave, now uint32, req *frame.ParsedRequest) Event {
	s.log.Info("slave disabled by application")
	return EventNone
}

func actionLogSlaveReenabled(s *Slave, now uint32, req *frame.ParsedRequest) Event {
	s.log.Info("slave re-enabled by application")
	return EventNone
}
