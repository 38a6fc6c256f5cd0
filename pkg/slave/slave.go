package slave

import (
	"github.com/sirupsen/logrus"

	"github.com/openfieldbus/cciefb/pkg/frame"
	"github.com/openfieldbus/cciefb/pkg/ratelimit"
	"github.com/openfieldbus/cciefb/pkg/timer"
)

// Config is the static identity and topology a slave is built with. Only
// MyIP changes for the lifetime of the Slave: NotifyIPChanged updates it
// when the slave is re-addressed (set-IP).
type Config struct {
	MyIP                uint32
	NumOccupiedStations uint16
	VendorCode          uint16
	ModelCode           uint32
	EquipmentVer        uint16
	RateLimitWindowUs   uint32
}

// Callbacks are the application hooks fired out of Periodic/HandleRequest.
// Any of them may be left nil.
type Callbacks struct {
	StateChange func(prev, next State)
	MasterState func(connected, running, stoppedByUser bool, protocolVer uint16, masterLocalUnitInfo uint16)
	Error       func(kind ErrorKind, masterID uint32, extra uint32)
	Connect     func(masterID uint32, groupNo uint8, stationNo uint16)
	Disconnect  func()
}

// masterRecord is everything learned from the master currently in control,
// cleared whenever we drop back to MasterNone.
type masterRecord struct {
	MasterID       uint32
	ParameterNo    uint16
	GroupNo        uint8
	TimeoutMs      uint16
	TimeoutCount   uint16
	TotalOccupied  uint16
	ClockInfoMs    uint64
	ClockInfoValid bool
	ProtocolVer    uint16
	LocalUnitInfo  uint16
	StationNo      uint16 // our 1-based station number within the group
}

// Slave is one CCIEFB slave device. It is single-threaded: HandleRequest
// and Periodic must both be called from the same goroutine, and neither
// blocks or starts one of its own.
type Slave struct {
	cfg Config
	log *logrus.Logger
	cb  Callbacks

	state   State
	rl      *ratelimit.Limiter
	errorRl *ratelimit.Limiter

	master masterRecord

	recvTimer    timer.Timer
	disableTimer timer.Timer

	endcodeSlaveDisabled frame.EndCode
	slaveApplStatus      uint16

	normalResp *frame.ResponseFrame
	errorResp  *frame.ResponseFrame

	rwwData []byte
	ryData  []byte

	pendingResponse []byte
}

// New builds a slave device in StateSlaveDown. Call Start to bring it up.
func New(cfg Config, log *logrus.Logger, cb Callbacks) (*Slave, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	normalBuf := make([]byte, frame.CalculateResponseSize(cfg.NumOccupiedStations))
	normalResp, err := frame.InitResponse(normalBuf, cfg.NumOccupiedStations, cfg.VendorCode, cfg.ModelCode, cfg.EquipmentVer)
	if err != nil {
		return nil, err
	}
	errorBuf := make([]byte, frame.CalculateResponseSize(cfg.NumOccupiedStations))
	errorResp, err := frame.InitResponse(errorBuf, cfg.NumOccupiedStations, cfg.VendorCode, cfg.ModelCode, cfg.EquipmentVer)
	if err != nil {
		return nil, err
	}

	s := &Slave{
		cfg:                  cfg,
		log:                  log,
		cb:                   cb,
		state:                StateSlaveDown,
		rl:                   ratelimit.New(cfg.RateLimitWindowUs),
		errorRl:              ratelimit.New(errorCallbackRetriggerPeriodUs),
		endcodeSlaveDisabled: frame.EndCodeSlaveRequestsDisconn,
		slaveApplStatus:      frame.SlaveApplOperationStatusOperating,
		normalResp:           normalResp,
		errorResp:            errorResp,
		rwwData:              make([]byte, int(cfg.NumOccupiedStations)*frame.RwwSize),
		ryData:               make([]byte, int(cfg.NumOccupiedStations)*frame.RySize),
	}
	return s, nil
}

// Start fires the Startup event, bringing the slave from SlaveDown into
// MasterNone.
func (s *Slave) Start(now uint32) { s.fire(now, nil, EventStartup) }

// State returns the slave's current FSM state.
func (s *Slave) State() State { return s.state }

// Disable asks the slave to stop answering cyclic requests once the
// current master has had a chance to see the transmission bit drop.
// isError selects the end code reported to a master that keeps polling
// during the grace period: SlaveError if the application is disabling
// itself due to a fault, SlaveRequestsDisconnect for a normal shutdown.
func (s *Slave) Disable(now uint32, isError bool) {
	if isError {
		s.endcodeSlaveDisabled = frame.EndCodeSlaveError
	} else {
		s.endcodeSlaveDisabled = frame.EndCodeSlaveRequestsDisconn
	}
	s.fire(now, nil, EventDisableSlave)
}

// Enable reverses Disable/SlaveDisabled, returning to MasterNone so a
// master can reacquire the slave.
func (s *Slave) Enable(now uint32) { s.fire(now, nil, EventReenableSlave) }

// NotifyIPChanged tells the slave its own IP address changed underneath
// it; any current master connection is abandoned.
func (s *Slave) NotifyIPChanged(now uint32, newIP uint32) {
	s.cfg.MyIP = newIP
	s.fire(now, nil, EventIpUpdated)
}

// HandleRequest parses and dispatches one received cyclic request. It
// returns the response frame to send back (normal or error), or nil if no
// reply is warranted (malformed frame, different group, or the device not
// currently participating).
func (s *Slave) HandleRequest(now uint32, buf []byte, remoteIP uint32) []byte {
	s.pendingResponse = nil

	req, err := frame.ParseRequest(buf, remoteIP)
	if err != nil {
		s.log.WithError(err).Debug("dropping malformed cyclic request")
		return nil
	}

	if s.cfg.MyIP == frame.IPAddrInvalid {
		return nil
	}
	if s.state == StateSlaveDown || s.state == StateSlaveDisabled {
		return nil
	}

	if s.state != StateMasterControl {
		s.searchSlaveParameters(now, req)
		return s.pendingResponse
	}

	if req.MasterID() != s.master.MasterID {
		s.fire(now, req, EventCyclicWrongMaster)
		return s.pendingResponse
	}
	if req.ParameterNo() != s.master.ParameterNo || req.FrameSequenceNo() == 0 {
		s.searchSlaveParameters(now, req)
		return s.pendingResponse
	}
	if req.GroupNo() != s.master.GroupNo {
		return nil
	}

	myID := req.SlaveID(int(s.master.StationNo) - 1)
	if myID == frame.IPAddrInvalid || myID != s.cfg.MyIP {
		return nil
	}

	s.fire(now, req, EventCyclicCorrectMaster)
	return s.pendingResponse
}

// searchSlaveParameters runs whenever we are not locked onto the current
// master's exact parameters: first acquisition, a changed parameter_no, a
// restarted sequence number, or a resync attempt from MasterControl.
func (s *Slave) searchSlaveParameters(now uint32, req *frame.ParsedRequest) {
	if s.state == StateSlaveDown || s.state == StateSlaveDisabled {
		return
	}

	found, stationNo, count, err := req.AnalyzeSlaveIDs(s.cfg.MyIP)
	if err != nil {
		s.log.WithError(err).Warn("malformed slave id list in cyclic request")
		return
	}
	if !found {
		return // frame addressed to a different group
	}

	if count != s.cfg.NumOccupiedStations {
		if s.rl.ShouldRunNow(tagWrongStationCount, now) {
			s.log.WithFields(logrus.Fields{"expected": s.cfg.NumOccupiedStations, "got": count}).
				Warn("master configured the wrong number of occupied stations for us")
		}
		s.triggerError(now, ErrorWrongStationCount, req.MasterID(), uint32(count))
		s.fire(now, req, EventCyclicWrongStationcount)
		return
	}

	bitOn := frame.TransmissionBit(req.CyclicTransmissionState(), stationNo)

	switch s.state {
	case StateWaitDisablingSlave:
		if bitOn {
			s.fire(now, req, EventCyclicIncomingWhenDisabled)
		}
	case StateMasterNone:
		if bitOn {
			// Our transmission bit is already set but we have no master on
			// record: either a duplicate slave on the wire, or the real
			// master hasn't timed out on its side yet. Either way we must
			// not pick this up as "our" master.
			s.triggerError(now, ErrorSlaveDuplication, req.MasterID(), 0)
			return
		}
		s.master.StationNo = stationNo
		s.fire(now, req, EventCyclicNewMaster)
	case StateMasterControl:
		if req.MasterID() != s.master.MasterID {
			return
		}
		if bitOn {
			// The master should have turned our bit off before changing
			// parameters; until it does, leave things as they are.
			return
		}
		s.master.StationNo = stationNo
		s.fire(now, req, EventCyclicNewMaster)
	}
}

// Periodic must be called regularly with a monotonically-advancing
// microsecond clock; it drives the receive-timeout and disable-grace
// timers and ages out the rate limiter.
func (s *Slave) Periodic(now uint32) {
	s.rl.Periodic(now)
	s.errorRl.Periodic(now)

	if s.state == StateMasterControl && s.recvTimer.IsExpired(now) {
		s.recvTimer.Stop()
		s.fire(now, nil, EventTimeoutMaster)
	}
	if s.state == StateWaitDisablingSlave && s.disableTimer.IsExpired(now) {
		s.fire(now, nil, EventDisableSlaveWaitEnded)
	}
}

func (s *Slave) sendNormal(req *frame.ParsedRequest) {
	s.normalResp.UpdateResponseHeaders(
		frame.EndCodeSuccess, s.cfg.MyIP, req.GroupNo(), req.FrameSequenceNo(),
		s.slaveApplStatus, 0, 0,
	)
	s.pendingResponse = s.normalResp.Bytes()
}

func (s *Slave) sendError(req *frame.ParsedRequest, code frame.EndCode) {
	s.errorResp.UpdateResponseHeaders(
		code, s.cfg.MyIP, req.GroupNo(), req.FrameSequenceNo(),
		s.slaveApplStatus, 0, 0,
	)
	s.pendingResponse = s.errorResp.Bytes()
}

func (s *Slave) rww(index int) []byte {
	off := index * frame.RwwSize
	return s.rwwData[off : off+frame.RwwSize]
}

func (s *Slave) ry(index int) []byte {
	off := index * frame.RySize
	return s.ryData[off : off+frame.RySize]
}

// RWw returns the 32-byte register block written by the master for our
// occupied-station index (0-based, < NumOccupiedStations).
func (s *Slave) RWw(index int) []byte { return s.rww(index) }

// RY returns the 8-byte bit block written by the master for our
// occupied-station index.
func (s *Slave) RY(index int) []byte { return s.ry(index) }

// RWr returns a mutable, zero-copy view of the input-register block the
// application should populate before the next response is sent.
func (s *Slave) RWr(index int) []byte { return s.normalResp.RWr(index) }

// RX returns a mutable, zero-copy view of the input-bit block the
// application should populate before the next response is sent.
func (s *Slave) RX(index int) []byte { return s.normalResp.RX(index) }

// SetApplicationStopped lets the application report itself as stopped
// (rather than operating) in the slave_local_unit_info field of every
// future response.
func (s *Slave) SetApplicationStopped(stopped bool) {
	if stopped {
		s.slaveApplStatus = frame.SlaveApplOperationStatusStopped
	} else {
		s.slaveApplStatus = frame.SlaveApplOperationStatusOperating
	}
}
