package slmp

import "github.com/openfieldbus/cciefb/pkg/timer"

// NodeSearcher drives the master side of node-search (§4.7): broadcast one
// request, collect replies keyed by request serial for a bounded window,
// then report the accumulated database. Only one search is pending at a
// time. Grounded on the teacher's pkg/lss request/response correlation
// shape, adapted from its blocking WaitForResponse to a polled Periodic.
type NodeSearcher struct {
	db         *Database
	windowUs   uint32
	nextSerial uint16
	pending    int // -1 (NoSerial) or the serial of the outstanding search
	tm         timer.Timer
	onDone     func(db *Database)
}

// NewNodeSearcher creates a searcher with the given result capacity and
// collection window. onDone is called synchronously from Periodic, once,
// when the window elapses.
func NewNodeSearcher(capacity int, windowUs uint32, onDone func(db *Database)) *NodeSearcher {
	return &NodeSearcher{
		db:       NewDatabase(capacity),
		windowUs: windowUs,
		pending:  NoSerial,
		onDone:   onDone,
	}
}

// IsPending reports whether a search's collection window is still open.
func (s *NodeSearcher) IsPending() bool { return s.pending != NoSerial }

// Begin starts a new search, discarding any previous (already-completed)
// results, and returns the broadcast request to send. It is a no-op
// returning nil if a search is already pending.
func (s *NodeSearcher) Begin(nowUs uint32, masterMAC MAC, masterIP uint32) []byte {
	if s.IsPending() {
		return nil
	}
	s.db.Reset()
	s.nextSerial++
	s.pending = int(s.nextSerial)
	s.tm.Start(s.windowUs, nowUs)
	return BuildNodeSearchRequest(s.nextSerial, masterMAC, masterIP)
}

// HandleResponse processes one received node-search response. Replies
// whose serial does not match the pending request, and replies that
// bounced back from our own broadcast (fromIP == myIP), are silently
// discarded, per §4.7.
func (s *NodeSearcher) HandleResponse(buf []byte, fromIP uint32, myIP uint32) error {
	if !s.IsPending() || fromIP == myIP {
		return nil
	}
	resp, err := ParseNodeSearchResponse(buf)
	if err != nil {
		return err
	}
	if int(resp.Serial) != s.pending {
		return nil
	}
	s.db.Add(Entry{
		MasterMAC:    resp.MasterMAC,
		MasterIP:     resp.MasterIP,
		SlaveMAC:     resp.SlaveMAC,
		SlaveIP:      resp.SlaveIP,
		SlaveNetmask: resp.SlaveNetmask,
		VendorCode:   resp.VendorCode,
		ModelCode:    resp.ModelCode,
		EquipmentVer: resp.EquipmentVer,
		SlaveStatus:  resp.SlaveStatus,
	})
	return nil
}

// Periodic checks the collection window. Once it elapses, onDone fires with
// the accumulated database and the pending slot is cleared, per §4.7 /
// the cancellation rule in §4.7 ("implicit... cleared when the callback
// fires").
func (s *NodeSearcher) Periodic(nowUs uint32) {
	if !s.IsPending() {
		return
	}
	if !s.tm.IsExpired(nowUs) {
		return
	}
	s.pending = NoSerial
	s.tm.Stop()
	if s.onDone != nil {
		s.onDone(s.db)
	}
}
