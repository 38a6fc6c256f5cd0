package frame

import "encoding/binary"

// RequestFrame is a persistent, in-place-mutated buffer holding one CCIEFB
// cyclic request. The master allocates one per group and never reallocates
// it; InitRequest zero-fills and lays the headers out once, and
// UpdateRequestHeaders/SetSlaveID/RWw/RY mutate fields in place on every
// subsequent scan.
type RequestFrame struct {
	buf      []byte
	occupied uint16

	slaveIDOff int
	rwwOff     int
	ryOff      int
}

// InitRequest zero-fills buf (which must be at least CalculateRequestSize
// (occupied) bytes long) and writes every header field that does not change
// per-scan. Fields mutated on every scan (frame_sequence_no,
// master_local_unit_info, clock_info, cyclic_transmission_state) are left
// at zero; call UpdateRequestHeaders before the first send.
func InitRequest(
	buf []byte,
	occupied uint16,
	protocolVer uint16,
	timeoutMs uint16,
	timeoutCount uint16,
	masterID uint32,
	groupNo uint8,
	parameterNo uint16,
) (*RequestFrame, error) {
	size := CalculateRequestSize(occupied)
	if len(buf) < size {
		return nil, newErr(KindTooShort, "request buffer too small for occupied count")
	}
	for i := range buf[:size] {
		buf[i] = 0
	}

	r := &RequestFrame{buf: buf[:size], occupied: occupied}

	// Request header (15 bytes), offset 0.
	binary.BigEndian.PutUint16(buf[0:2], ReqHeaderReserved1)
	buf[2] = ReqHeaderReserved2
	buf[3] = ReqHeaderReserved3
	binary.LittleEndian.PutUint16(buf[4:6], ReqHeaderReserved4)
	buf[6] = ReqHeaderReserved5
	binary.LittleEndian.PutUint16(buf[7:9], uint16(size-ReqHeaderDlOffset))
	binary.LittleEndian.PutUint16(buf[9:11], ReqHeaderReserved6)
	binary.LittleEndian.PutUint16(buf[11:13], CommandCciefbCyclic)
	binary.LittleEndian.PutUint16(buf[13:15], SubCommandCyclic)

	// Cyclic request header (20 bytes), offset 15.
	const cyc = 15
	binary.LittleEndian.PutUint16(buf[cyc:cyc+2], protocolVer)
	binary.LittleEndian.PutUint16(buf[cyc+2:cyc+4], CyclicReqHeaderReserved1)
	binary.LittleEndian.PutUint16(buf[cyc+4:cyc+6], CyclicReqCyclicOffset)
	// reserved2[14] already zero.

	// Master station notification (12 bytes), offset 35.
	const not = 35
	binary.LittleEndian.PutUint16(buf[not+2:not+4], MasterStationNotificationReserved)
	// master_local_unit_info and clock_info left at zero, set by UpdateRequestHeaders.

	// Cyclic data request header (20 bytes), offset 47.
	const dat = 47
	binary.LittleEndian.PutUint32(buf[dat:dat+4], masterID)
	buf[dat+4] = groupNo
	buf[dat+5] = ReqHeaderReserved2 // reserved3 = 0x00
	// frame_sequence_no left at 0.
	binary.LittleEndian.PutUint16(buf[dat+8:dat+10], timeoutMs)
	binary.LittleEndian.PutUint16(buf[dat+10:dat+12], timeoutCount)
	binary.LittleEndian.PutUint16(buf[dat+12:dat+14], parameterNo)
	binary.LittleEndian.PutUint16(buf[dat+14:dat+16], occupied)
	// cyclic_transmission_state left at 0.
	binary.LittleEndian.PutUint16(buf[dat+18:dat+20], CyclicReqDataHeaderReserved4)

	pos := ReqFixedHeadersSize
	r.slaveIDOff = pos
	pos += int(occupied) * SlaveIDSize
	r.rwwOff = pos
	pos += int(occupied) * RwwSize
	r.ryOff = pos
	pos += int(occupied) * RySize

	return r, nil
}

// UpdateRequestHeaders rewrites the per-scan mutable fields.
func (r *RequestFrame) UpdateRequestHeaders(frameSeqNo uint16, clockInfoMs uint64, masterLocalUnitInfo uint16, cyclicTransmissionState uint16) {
	const not = 35
	binary.LittleEndian.PutUint16(r.buf[not:not+2], masterLocalUnitInfo)
	binary.LittleEndian.PutUint64(r.buf[not+4:not+12], clockInfoMs)

	const dat = 47
	binary.LittleEndian.PutUint16(r.buf[dat+6:dat+8], frameSeqNo)
	binary.LittleEndian.PutUint16(r.buf[dat+16:dat+18], cyclicTransmissionState)
}

// Bytes returns the wire representation of the frame.
func (r *RequestFrame) Bytes() []byte { return r.buf }

// Occupied returns the number of occupied stations this frame was built for.
func (r *RequestFrame) Occupied() uint16 { return r.occupied }

// CyclicTransmissionState returns the current cyclic_transmission_state
// word.
func (r *RequestFrame) CyclicTransmissionState() uint16 {
	const dat = 47
	return binary.LittleEndian.Uint16(r.buf[dat+16 : dat+18])
}

// SetCyclicTransmissionState writes the cyclic_transmission_state word
// directly (used when flipping a single station's bit via
// frame.SetTransmissionBit).
func (r *RequestFrame) SetCyclicTransmissionState(state uint16) {
	const dat = 47
	binary.LittleEndian.PutUint16(r.buf[dat+16:dat+18], state)
}

// SetParameterNo rewrites the parameter_no header field, used whenever the
// master reloads its persisted, monotonically increasing configuration
// counter (at startup, and on any later reconfiguration).
func (r *RequestFrame) SetParameterNo(parameterNo uint16) {
	const dat = 47
	binary.LittleEndian.PutUint16(r.buf[dat+12:dat+14], parameterNo)
}

// SetSlaveID writes the 1-based station's slave-ID list entry. index is
// 0-based into the occupied-station list (not the station number).
func (r *RequestFrame) SetSlaveID(index int, ip uint32) {
	off := r.slaveIDOff + index*SlaveIDSize
	binary.LittleEndian.PutUint32(r.buf[off:off+4], ip)
}

// SlaveID reads back the slave-ID list entry at index.
func (r *RequestFrame) SlaveID(index int) uint32 {
	off := r.slaveIDOff + index*SlaveIDSize
	return binary.LittleEndian.Uint32(r.buf[off : off+4])
}

// RWw returns a mutable 32-byte view (16 little-endian uint16 registers) of
// the output-register block for occupied-station index.
func (r *RequestFrame) RWw(index int) []byte {
	off := r.rwwOff + index*RwwSize
	return r.buf[off : off+RwwSize]
}

// RY returns a mutable 8-byte view of the output-bit block for
// occupied-station index.
func (r *RequestFrame) RY(index int) []byte {
	off := r.ryOff + index*RySize
	return r.buf[off : off+RySize]
}
