package frame

import "encoding/binary"

// ResponseFrame is a persistent, in-place-mutated buffer holding one CCIEFB
// cyclic response. The slave keeps two of these (normal and error) so RX/RWr
// can be exposed to the application as a zero-copy slice into the buffer
// that is about to be sent.
type ResponseFrame struct {
	buf      []byte
	occupied uint16

	rwrOff int
	rxOff  int
}

// InitResponse zero-fills buf and writes every header field that does not
// change per-send, including the slave's static identity (vendor/model/
// equipment). end_code, slave_id, group_no and frame_sequence_no are left
// at zero/success; call UpdateResponseHeaders before each send.
func InitResponse(
	buf []byte,
	occupied uint16,
	vendorCode uint16,
	modelCode uint32,
	equipmentVer uint16,
) (*ResponseFrame, error) {
	size := CalculateResponseSize(occupied)
	if len(buf) < size {
		return nil, newErr(KindTooShort, "response buffer too small for occupied count")
	}
	for i := range buf[:size] {
		buf[i] = 0
	}

	r := &ResponseFrame{buf: buf[:size], occupied: occupied}

	// Response header (11 bytes), offset 0.
	binary.BigEndian.PutUint16(buf[0:2], RespHeaderReserved1)
	buf[2] = RespHeaderReserved2
	buf[3] = RespHeaderReserved3
	binary.LittleEndian.PutUint16(buf[4:6], RespHeaderReserved4)
	buf[6] = RespHeaderReserved5
	binary.LittleEndian.PutUint16(buf[7:9], uint16(size-RespHeaderDlOffset))
	binary.LittleEndian.PutUint16(buf[9:11], RespHeaderReserved6)

	// Cyclic response header (20 bytes), offset 11.
	const cyc = 11
	binary.LittleEndian.PutUint16(buf[cyc:cyc+2], MaxProtocolVersion)
	binary.LittleEndian.PutUint16(buf[cyc+2:cyc+4], uint16(EndCodeSuccess))
	binary.LittleEndian.PutUint16(buf[cyc+4:cyc+6], CyclicRespCyclicOffset)
	// reserved1[14] already zero.

	// Slave station notification (20 bytes), offset 31.
	const not = 31
	binary.LittleEndian.PutUint16(buf[not:not+2], vendorCode)
	binary.LittleEndian.PutUint16(buf[not+2:not+4], SlaveStationNotificationReserved1)
	binary.LittleEndian.PutUint32(buf[not+4:not+8], modelCode)
	binary.LittleEndian.PutUint16(buf[not+8:not+10], equipmentVer)
	binary.LittleEndian.PutUint16(buf[not+10:not+12], SlaveStationNotificationReserved2)
	binary.LittleEndian.PutUint16(buf[not+12:not+14], SlaveApplOperationStatusOperating)
	binary.LittleEndian.PutUint16(buf[not+14:not+16], SlaveStationNotificationDefaultSlaveErrCode)
	binary.LittleEndian.PutUint32(buf[not+16:not+20], SlaveStationNotificationDefaultLocalMgmtInfo)

	// Cyclic data response header (8 bytes), offset 51. slave_id stays 0.
	const dat = 51
	buf[dat+5] = CyclicRespDataHeaderReserved2

	pos := RespFixedHeadersSize
	r.rwrOff = pos
	pos += int(occupied) * RwrSize
	r.rxOff = pos
	pos += int(occupied) * RxSize

	return r, nil
}

// UpdateResponseHeaders rewrites the per-send mutable fields.
func (r *ResponseFrame) UpdateResponseHeaders(
	endCode EndCode,
	slaveID uint32,
	groupNo uint8,
	frameSeqNo uint16,
	slaveLocalUnitInfo uint16,
	slaveErrCode uint16,
	localManagementInfo uint32,
) {
	const cyc = 11
	binary.LittleEndian.PutUint16(r.buf[cyc+2:cyc+4], uint16(endCode))

	const not = 31
	binary.LittleEndian.PutUint16(r.buf[not+12:not+14], slaveLocalUnitInfo)
	binary.LittleEndian.PutUint16(r.buf[not+14:not+16], slaveErrCode)
	binary.LittleEndian.PutUint32(r.buf[not+16:not+20], localManagementInfo)

	const dat = 51
	binary.LittleEndian.PutUint32(r.buf[dat:dat+4], slaveID)
	r.buf[dat+4] = groupNo
	binary.LittleEndian.PutUint16(r.buf[dat+6:dat+8], frameSeqNo)
}

// Bytes returns the wire representation of the frame.
func (r *ResponseFrame) Bytes() []byte { return r.buf }

// Occupied returns the number of occupied stations this frame was built for.
func (r *ResponseFrame) Occupied() uint16 { return r.occupied }

// RWr returns a mutable 32-byte view (16 little-endian uint16 registers) of
// the input-register block for occupied-station index. The application
// writes through this slice directly; the next send carries whatever is
// there (zero-copy).
func (r *ResponseFrame) RWr(index int) []byte {
	off := r.rwrOff + index*RwrSize
	return r.buf[off : off+RwrSize]
}

// RX returns a mutable 8-byte view of the input-bit block for
// occupied-station index.
func (r *ResponseFrame) RX(index int) []byte {
	off := r.rxOff + index*RxSize
	return r.buf[off : off+RxSize]
}

// ZeroData clears RWr and RX for every occupied station (used to build the
// "error" response variant, which always reports zeroed cyclic data).
func (r *ResponseFrame) ZeroData() {
	for i := r.rwrOff; i < r.rxOff+int(r.occupied)*RxSize; i++ {
		r.buf[i] = 0
	}
}
