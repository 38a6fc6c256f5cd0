package master

import (
	"github.com/sirupsen/logrus"

	"github.com/openfieldbus/cciefb/pkg/frame"
	"github.com/openfieldbus/cciefb/pkg/ratelimit"
	"github.com/openfieldbus/cciefb/pkg/timer"
)

// errorCallbackRetriggerPeriodUs bounds how often Callbacks.Error may fire
// for the same kind, across all groups of the master: repeats within the
// window are suppressed, independently of any log line emitted at the same
// call site.
const errorCallbackRetriggerPeriodUs uint32 = 1_000_000

// MasterState reflects a group's externally visible scan lifecycle.
type MasterState int

const (
	MasterStateStandby MasterState = iota
	MasterStateArbitration
	MasterStateRunning
)

func (s MasterState) String() string {
	switch s {
	case MasterStateStandby:
		return "Standby"
	case MasterStateArbitration:
		return "Arbitration"
	case MasterStateRunning:
		return "Running"
	default:
		return "Unknown"
	}
}

// ErrorKind classifies an error callback's cause.
type ErrorKind int

const (
	ErrorArbitrationFailed ErrorKind = iota
	ErrorSlaveDuplication
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorArbitrationFailed:
		return "ArbitrationFailed"
	case ErrorSlaveDuplication:
		return "SlaveDuplication"
	default:
		return "Unknown"
	}
}

// Callbacks are the host-level notifications a Master fires while scanning.
// All are optional; nil entries are simply not called.
type Callbacks struct {
	Connect     func(groupNo uint8, stationNo uint16, slaveID uint32)
	Disconnect  func(groupNo uint8, stationNo uint16, slaveID uint32)
	LinkScan    func(groupNo uint8, allResponded bool, scanTimeUs uint32)
	MasterState func(groupNo uint8, state MasterState)
	Error       func(groupNo uint8, kind ErrorKind, extra uint32)
}

// SendFunc transmits a frame to the group's broadcast address.
type SendFunc func(groupNo uint8, broadcastIP uint32, payload []byte)

// Config is the static, whole-master configuration: the arbitration window
// shared by every group plus each group's own topology.
type Config struct {
	ArbitrationTimeoutUs uint32
	Groups               []GroupConfig

	// ReadFile and WriteFile back the persisted parameter_no counter (I8):
	// raw byte file I/O supplied by the host's platform.Platform, with the
	// magic/version/payload codec owned entirely by this package. Either
	// may be left nil, in which case the counter starts at 1 on every
	// startup instead of surviving a restart.
	ReadFile  func(name string) (data []byte, ok bool, err error)
	WriteFile func(name string, data []byte) error
}

// Master drives every configured scan group's FSM from a single periodic
// entry point. It owns no goroutines or sockets: Send and HandleResponse are
// the only points where bytes cross the boundary, both driven by the host.
type Master struct {
	cfg     Config
	log     *logrus.Logger
	cb      Callbacks
	snd     SendFunc
	errorRl *ratelimit.Limiter

	groups []*Group

	arbitrationTimer timer.Timer
}

// New builds a Master for cfg, one Group per configured group, wired to cb
// for notifications and send for outgoing frames.
func New(cfg Config, log *logrus.Logger, cb Callbacks, send SendFunc) (*Master, error) {
	if log == nil {
		log = logrus.New()
	}
	m := &Master{cfg: cfg, log: log, cb: cb, snd: send, errorRl: ratelimit.New(errorCallbackRetriggerPeriodUs)}

	for _, gc := range cfg.Groups {
		g, err := newGroup(gc, cb, m.requestArbitration, m.triggerError)
		if err != nil {
			return nil, err
		}
		m.groups = append(m.groups, g)
	}
	return m, nil
}

// triggerError fires Callbacks.Error, gated by errorRl independently of any
// log line emitted at the call site: repeated errors of the same kind
// within errorCallbackRetriggerPeriodUs collapse to a single callback.
func (m *Master) triggerError(now uint32, groupNo uint8, kind ErrorKind, extra uint32) {
	if m.cb.Error == nil {
		return
	}
	if !m.errorRl.ShouldRunNow(int(kind), now) {
		return
	}
	m.cb.Error(groupNo, kind, extra)
}

// Groups returns the configured groups in configuration order.
func (m *Master) Groups() []*Group { return m.groups }

// GroupByNo finds a group by its group number, or nil if unknown.
func (m *Master) GroupByNo(groupNo uint8) *Group {
	for _, g := range m.groups {
		if g.cfg.GroupNo == groupNo {
			return g
		}
	}
	return nil
}

// Start brings every group up from MasterDown to MasterListen and
// immediately requests a first arbitration pass, with every group's
// request frame carrying the freshly bumped, persisted parameter_no.
func (m *Master) Start(now uint32) {
	m.applyParameterNo(m.loadAndBumpParameterNo())

	for _, g := range m.groups {
		g.fire(now, GroupEventStartup)
	}
	for _, g := range m.groups {
		g.fire(now, GroupEventNewConfig)
	}
}

// Reconfigure re-bumps and persists the parameter_no counter and drives
// every group back through Listen into a fresh arbitration pass, the
// runtime equivalent of clm_iefb_handle_new_config: any already-running
// scan is abandoned and restarted under the new parameter_no.
func (m *Master) Reconfigure(now uint32) {
	m.applyParameterNo(m.loadAndBumpParameterNo())

	for _, g := range m.groups {
		g.fire(now, GroupEventParameterChange)
	}
	for _, g := range m.groups {
		g.fire(now, GroupEventNewConfig)
	}
}

func (m *Master) applyParameterNo(parameterNo uint16) {
	for _, g := range m.groups {
		g.setParameterNo(parameterNo)
	}
}

// loadAndBumpParameterNo implements I8: the persisted parameter_no counter
// is loaded, incremented, and written back on every call, so every startup
// or reconfiguration uses a value strictly greater than the last one any
// slave ever saw.
func (m *Master) loadAndBumpParameterNo() uint16 {
	var parameterNo uint16

	if m.cfg.ReadFile != nil {
		data, ok, err := m.cfg.ReadFile(parameterNoFileName)
		if err != nil {
			m.log.WithError(err).Warn("failed to read persisted parameter_no, restarting counter")
		} else if ok {
			decoded, derr := decodeParameterNoFile(data)
			if derr != nil {
				m.log.WithError(derr).Warn("discarding corrupt parameter_no file")
			} else {
				parameterNo = decoded
			}
		}
	}

	parameterNo++

	if m.cfg.WriteFile != nil {
		if err := m.cfg.WriteFile(parameterNoFileName, encodeParameterNoFile(parameterNo)); err != nil {
			m.log.WithError(err).Warn("failed to persist parameter_no")
		}
	}

	return parameterNo
}

// requestArbitration is passed to each Group as its startArb hook: the
// arbitration timer is shared across all groups at the Master level, so the
// first group to ask for it wins and later callers are no-ops until it
// expires.
func (m *Master) requestArbitration(now uint32) {
	m.arbitrationTimer.StartIfNotRunning(m.cfg.ArbitrationTimeoutUs, now)
}

// Periodic drives every timer-gated transition: the shared arbitration
// window, and each group's response-wait / constant-link-scan timers.
func (m *Master) Periodic(now uint32) {
	m.errorRl.Periodic(now)

	if m.arbitrationTimer.IsRunning() && m.arbitrationTimer.IsExpired(now) {
		m.arbitrationTimer.Stop()
		for _, g := range m.groups {
			if g.State() == GroupStateMasterArbitration {
				g.fire(now, GroupEventArbitrationDone)
			}
		}
	}

	for _, g := range m.groups {
		m.periodicGroup(g, now)
	}
}

func (m *Master) periodicGroup(g *Group, now uint32) {
	switch g.State() {
	case GroupStateMasterLinkScan:
		if g.responseWaitTimer.IsRunning() && g.haveReceivedFromAllDevices() {
			g.fire(now, GroupEventLinkscanComplete)
		} else if g.responseWaitTimer.IsRunning() && g.responseWaitTimer.IsExpired(now) {
			g.fire(now, GroupEventLinkscanTimeout)
		}
	case GroupStateMasterLinkScanComp:
		if g.cfg.UseConstantLinkScanTime && g.constantLinkscanTimer.IsRunning() && g.constantLinkscanTimer.IsExpired(now) {
			g.constantLinkscanTimer.Stop()
			g.fire(now, GroupEventLinkscanStart)
		}
	default:
		g.constantLinkscanTimer.Stop()
		return
	}

	if g.pendingSend != nil {
		if m.snd != nil {
			m.snd(g.cfg.GroupNo, g.cfg.BroadcastIP, g.pendingSend)
		}
		g.pendingSend = nil
	}
}

// HandleResponse parses an incoming UDP payload as a CCIEFB cyclic
// response, locates the owning group/device by group number and source IP,
// stores the response's cyclic data and header fields, and drives the
// device's FSM with the outcome.
func (m *Master) HandleResponse(now uint32, buf []byte, fromIP uint32) {
	parsed, err := frame.ParseResponse(buf)
	if err != nil {
		return
	}

	g := m.GroupByNo(parsed.GroupNo())
	if g == nil {
		return
	}
	d := g.deviceByIP(fromIP)
	if d == nil {
		return
	}
	if !d.Enabled {
		return
	}

	// A repeated frame sequence number from a device we've already heard
	// from this scan (outside Listen, where a first contact is expected)
	// means two devices are answering as the same slave ID.
	if d.LastFrame.HasBeenReceived &&
		parsed.FrameSequenceNo() == d.LastFrame.FrameSequenceNo &&
		d.state != DeviceStateListen {
		m.log.WithFields(logrus.Fields{"group": g.cfg.GroupNo, "ip": fromIP}).
			Warn("second device responded with the same slave ID")
		m.triggerError(now, g.cfg.GroupNo, ErrorSlaveDuplication, fromIP)
		fireDevice(g, d, now, DeviceEventSlaveDuplication)
		return
	}

	if parsed.Occupied() != d.cfg.NumOccupiedStations {
		// Wrong occupied-station count: drop the frame. The device will be
		// disconnected by the ordinary timeout path, not this one.
		m.log.WithFields(logrus.Fields{
			"group": g.cfg.GroupNo, "ip": fromIP,
			"expected": d.cfg.NumOccupiedStations, "got": parsed.Occupied(),
		}).Debug("dropping response with wrong occupied station count")
		return
	}

	if !frame.IsValidSlaveEndCode(parsed.EndCode()) {
		fireDevice(g, d, now, DeviceEventReceiveError)
		return
	}

	m.storeIncomingCyclicData(g, d, parsed)
	fireDevice(g, d, now, DeviceEventReceiveOK)
}

func (m *Master) storeIncomingCyclicData(g *Group, d *Device, parsed *frame.ParsedResponse) {
	start := int(d.StationNo) - 1
	for i := 0; i < int(d.cfg.NumOccupiedStations); i++ {
		idx := start + i
		copy(g.RWr(idx), parsed.RWr(i))
		copy(g.RX(idx), parsed.RX(i))
	}

	d.LastFrame = FrameValues{
		HasBeenReceived:     true,
		EndCode:             parsed.EndCode(),
		NumOccupiedStations: parsed.Occupied(),
		ProtocolVer:         parsed.ProtocolVersion(),
		VendorCode:          parsed.VendorCode(),
		ModelCode:           parsed.ModelCode(),
		EquipmentVer:        parsed.EquipmentVer(),
		SlaveLocalUnitInfo:  parsed.SlaveLocalUnitInfo(),
		LocalManagementInfo: parsed.LocalManagementInfo(),
		SlaveErrCode:        parsed.SlaveErrCode(),
		SlaveID:             parsed.SlaveID(),
		GroupNo:             parsed.GroupNo(),
		FrameSequenceNo:     parsed.FrameSequenceNo(),
	}
}
