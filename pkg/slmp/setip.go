package slmp

import "github.com/openfieldbus/cciefb/pkg/timer"

// SetIPStatus is the outcome reported to SetIPRequester's callback.
type SetIPStatus int

const (
	SetIPSuccess SetIPStatus = iota
	SetIPError
	SetIPTimeout
)

func (s SetIPStatus) String() string {
	switch s {
	case SetIPSuccess:
		return "Success"
	case SetIPError:
		return "Error"
	case SetIPTimeout:
		return "Timeout"
	default:
		return "Unknown"
	}
}

// SetIPResult is the terminal outcome of one set-IP operation.
type SetIPResult struct {
	Status  SetIPStatus
	EndCode uint16 // valid only when Status == SetIPError
}

// SetIPRequester drives the master side of set-IP (§4.7): send one request
// targeting a slave MAC, correlate the reply by serial, and report
// success/error/timeout. Independent from NodeSearcher's timer, as §4.7
// specifies.
type SetIPRequester struct {
	timeoutUs  uint32
	nextSerial uint16
	pending    int
	targetMAC  MAC
	tm         timer.Timer
	onDone     func(SetIPResult)
}

// NewSetIPRequester creates a requester bounded by timeoutUs. onDone is
// called synchronously from Periodic or HandleResponse, exactly once per
// Begin.
func NewSetIPRequester(timeoutUs uint32, onDone func(SetIPResult)) *SetIPRequester {
	return &SetIPRequester{timeoutUs: timeoutUs, pending: NoSerial, onDone: onDone}
}

// IsPending reports whether a set-IP operation is awaiting a reply.
func (s *SetIPRequester) IsPending() bool { return s.pending != NoSerial }

// Begin starts a new set-IP request and returns the wire bytes to send. It
// is a no-op returning nil if one is already pending.
func (s *SetIPRequester) Begin(nowUs uint32, masterMAC MAC, masterIP uint32, req SetIPRequest) []byte {
	if s.IsPending() {
		return nil
	}
	s.nextSerial++
	req.Serial = s.nextSerial
	req.MasterMAC = masterMAC
	req.MasterIP = masterIP
	s.pending = int(s.nextSerial)
	s.targetMAC = req.SlaveMAC
	s.tm.Start(s.timeoutUs, nowUs)
	return BuildSetIPRequest(req)
}

// HandleResponse processes one received response. Replies with a mismatched
// serial, or that bounced back from our own broadcast, are silently
// discarded.
func (s *SetIPRequester) HandleResponse(buf []byte, fromIP uint32, myIP uint32) error {
	if !s.IsPending() || fromIP == myIP {
		return nil
	}
	hdr, err := PeekResponseHeader(buf)
	if err != nil {
		return err
	}
	if int(hdr.Serial) != s.pending {
		return nil
	}

	result := SetIPResult{Status: SetIPSuccess}
	if hdr.EndCode != EndCodeSuccess {
		result = SetIPResult{Status: SetIPError, EndCode: hdr.EndCode}
	} else if _, err := ParseSetIPResponse(buf); err != nil {
		return err
	}

	s.clear()
	if s.onDone != nil {
		s.onDone(result)
	}
	return nil
}

// Periodic checks the timeout. Once it elapses without a matching reply,
// onDone fires with SetIPTimeout and the pending slot is cleared.
func (s *SetIPRequester) Periodic(nowUs uint32) {
	if !s.IsPending() {
		return
	}
	if !s.tm.IsExpired(nowUs) {
		return
	}
	s.clear()
	if s.onDone != nil {
		s.onDone(SetIPResult{Status: SetIPTimeout})
	}
}

func (s *SetIPRequester) clear() {
	s.pending = NoSerial
	s.tm.Stop()
}
