package frame

import "encoding/binary"

// ParsedRequest is a read-only view over a received cyclic request buffer,
// produced by ParseRequest once every structural check in §4.3 has passed.
type ParsedRequest struct {
	buf      []byte
	occupied uint16

	slaveIDOff int
	rwwOff     int
	ryOff      int
}

// ParseRequest parses and validates a complete cyclic request received from
// remoteIP. It performs every check from §4.3 in order: request header,
// cyclic header, master station notification, cyclic data header, then
// overall size consistency. On success it returns a read-only view; on any
// violation it returns a *ParseError identifying the first failing check.
func ParseRequest(buf []byte, remoteIP uint32) (*ParsedRequest, error) {
	if len(buf) < ReqFixedHeadersSize {
		return nil, newErr(KindTooShort, "request shorter than fixed headers")
	}

	dl := binary.LittleEndian.Uint16(buf[7:9])
	if int(dl)+ReqHeaderDlOffset != len(buf) {
		return nil, newErr(KindLengthMismatch, "dl does not match received length")
	}

	if binary.BigEndian.Uint16(buf[0:2]) != ReqHeaderReserved1 ||
		buf[2] != ReqHeaderReserved2 ||
		buf[3] != ReqHeaderReserved3 ||
		binary.LittleEndian.Uint16(buf[4:6]) != ReqHeaderReserved4 ||
		buf[6] != ReqHeaderReserved5 ||
		binary.LittleEndian.Uint16(buf[9:11]) != ReqHeaderReserved6 {
		return nil, newErr(KindReservedField, "request header reserved field mismatch")
	}

	command := binary.LittleEndian.Uint16(buf[11:13])
	subCommand := binary.LittleEndian.Uint16(buf[13:15])
	if command != CommandCciefbCyclic {
		return nil, newErr(KindBadCommand, "unexpected command")
	}
	if subCommand != SubCommandCyclic {
		return nil, newErr(KindBadSubCommand, "unexpected sub-command")
	}

	const cyc = 15
	protocolVer := binary.LittleEndian.Uint16(buf[cyc : cyc+2])
	if protocolVer < MinProtocolVersion || protocolVer > MaxProtocolVersion {
		return nil, newErr(KindBadProtocolVersion, "unsupported protocol version")
	}
	if binary.LittleEndian.Uint16(buf[cyc+4:cyc+6]) != CyclicReqCyclicOffset {
		return nil, newErr(KindBadCyclicOffset, "unexpected cyclic info offset")
	}
	if binary.LittleEndian.Uint16(buf[cyc+2:cyc+4]) != CyclicReqHeaderReserved1 {
		return nil, newErr(KindReservedField, "cyclic request header reserved field mismatch")
	}
	for _, b := range buf[cyc+6 : cyc+20] {
		if b != 0 {
			return nil, newErr(KindReservedField, "cyclic request header reserved2 mismatch")
		}
	}

	const not = 35
	masterLocalUnitInfo := binary.LittleEndian.Uint16(buf[not : not+2])
	var mask uint16
	switch protocolVer {
	case 1:
		mask = MasterStationNotificationMaskBitsVer1
	case 2:
		mask = MasterStationNotificationMaskBitsVer2
	}
	if masterLocalUnitInfo&mask != 0 {
		return nil, newErr(KindBadMasterNotification, "master_local_unit_info has reserved bits set")
	}
	if binary.LittleEndian.Uint16(buf[not+2:not+4]) != MasterStationNotificationReserved {
		return nil, newErr(KindReservedField, "master station notification reserved mismatch")
	}
	clockInfo := binary.LittleEndian.Uint64(buf[not+4 : not+12])
	_ = clockInfo

	const dat = 47
	masterID := binary.LittleEndian.Uint32(buf[dat : dat+4])
	groupNo := buf[dat+4]
	if groupNo < MinGroupNo || groupNo > MaxGroupNo {
		return nil, newErr(KindBadGroupNo, "group number out of range")
	}
	occupied := binary.LittleEndian.Uint16(buf[dat+14 : dat+16])
	if occupied < MinOccupiedStationsPerGroup || occupied > MaxOccupiedStationsPerGroup {
		return nil, newErr(KindBadOccupiedCount, "occupied station count out of range")
	}
	if buf[dat+5] != CyclicReqDataHeaderReserved3 ||
		binary.LittleEndian.Uint16(buf[dat+18:dat+20]) != CyclicReqDataHeaderReserved4 {
		return nil, newErr(KindReservedField, "cyclic data request header reserved mismatch")
	}
	if masterID == IPAddrInvalid || masterID != remoteIP {
		return nil, newErr(KindBadMasterID, "master id missing or does not match source address")
	}

	if len(buf) != CalculateRequestSize(occupied) {
		return nil, newErr(KindLengthMismatch, "total frame size inconsistent with occupied count")
	}

	return &ParsedRequest{
		buf:        buf,
		occupied:   occupied,
		slaveIDOff: ReqFixedHeadersSize,
		rwwOff:     ReqFixedHeadersSize + int(occupied)*SlaveIDSize,
		ryOff:      ReqFixedHeadersSize + int(occupied)*SlaveIDSize + int(occupied)*RwwSize,
	}, nil
}

func (p *ParsedRequest) ProtocolVersion() uint16 {
	return binary.LittleEndian.Uint16(p.buf[15:17])
}

func (p *ParsedRequest) MasterLocalUnitInfo() uint16 {
	return binary.LittleEndian.Uint16(p.buf[35:37])
}

func (p *ParsedRequest) ClockInfoMs() uint64 {
	return binary.LittleEndian.Uint64(p.buf[39:47])
}

func (p *ParsedRequest) MasterID() uint32 {
	return binary.LittleEndian.Uint32(p.buf[47:51])
}

func (p *ParsedRequest) GroupNo() uint8 { return p.buf[51] }

func (p *ParsedRequest) FrameSequenceNo() uint16 {
	return binary.LittleEndian.Uint16(p.buf[53:55])
}

func (p *ParsedRequest) TimeoutMs() uint16 {
	return binary.LittleEndian.Uint16(p.buf[55:57])
}

func (p *ParsedRequest) TimeoutCount() uint16 {
	return binary.LittleEndian.Uint16(p.buf[57:59])
}

func (p *ParsedRequest) ParameterNo() uint16 {
	return binary.LittleEndian.Uint16(p.buf[59:61])
}

func (p *ParsedRequest) Occupied() uint16 { return p.occupied }

func (p *ParsedRequest) CyclicTransmissionState() uint16 {
	return binary.LittleEndian.Uint16(p.buf[63:65])
}

// SlaveID returns the 0-based slave-ID list entry.
func (p *ParsedRequest) SlaveID(index int) uint32 {
	off := p.slaveIDOff + index*SlaveIDSize
	return binary.LittleEndian.Uint32(p.buf[off : off+4])
}

func (p *ParsedRequest) RWw(index int) []byte {
	off := p.rwwOff + index*RwwSize
	return p.buf[off : off+RwwSize]
}

func (p *ParsedRequest) RY(index int) []byte {
	off := p.ryOff + index*RySize
	return p.buf[off : off+RySize]
}

// AnalyzeSlaveIDs scans the occupied-entry slave-ID list for mySlaveID. It
// returns found=true, the 1-based station number of the first occurrence
// and the implied occupation count: 1 for that entry plus the number of
// contiguous all-ones "continuation" entries that follow it. A second,
// later occurrence of mySlaveID is a misconfiguration and returns a
// *ParseError of kind KindDuplicateSlaveID.
func (p *ParsedRequest) AnalyzeSlaveIDs(mySlaveID uint32) (found bool, stationNo uint16, count uint16, err error) {
	if mySlaveID == IPAddrInvalid {
		return false, 0, 0, nil
	}
	lookingForContinuation := false
	for station := uint16(1); station <= p.occupied; station++ {
		id := p.SlaveID(int(station - 1))
		switch {
		case id == mySlaveID:
			if found {
				return false, 0, 0, newErr(KindDuplicateSlaveID, "slave id appears twice in request")
			}
			found = true
			stationNo = station
			count = 1
			lookingForContinuation = true
		case lookingForContinuation && id == MultistationIndicator:
			count++
		default:
			lookingForContinuation = false
		}
	}
	return found, stationNo, count, nil
}

// ParsedResponse is a read-only view over a received cyclic response
// buffer, produced by ParseResponse.
type ParsedResponse struct {
	buf      []byte
	occupied uint16

	rwrOff int
	rxOff  int
}

// ParseResponse parses and validates a complete cyclic response. It mirrors
// ParseRequest's checks for the response-specific constants.
func ParseResponse(buf []byte) (*ParsedResponse, error) {
	if len(buf) < RespFixedHeadersSize {
		return nil, newErr(KindTooShort, "response shorter than fixed headers")
	}

	dl := binary.LittleEndian.Uint16(buf[7:9])
	if int(dl)+RespHeaderDlOffset != len(buf) {
		return nil, newErr(KindLengthMismatch, "dl does not match received length")
	}

	if binary.BigEndian.Uint16(buf[0:2]) != RespHeaderReserved1 ||
		buf[2] != RespHeaderReserved2 ||
		buf[3] != RespHeaderReserved3 ||
		binary.LittleEndian.Uint16(buf[4:6]) != RespHeaderReserved4 ||
		buf[6] != RespHeaderReserved5 ||
		binary.LittleEndian.Uint16(buf[9:11]) != RespHeaderReserved6 {
		return nil, newErr(KindReservedField, "response header reserved field mismatch")
	}

	const cyc = 11
	protocolVer := binary.LittleEndian.Uint16(buf[cyc : cyc+2])
	if protocolVer < MinProtocolVersion || protocolVer > MaxProtocolVersion {
		return nil, newErr(KindBadProtocolVersion, "unsupported protocol version")
	}
	endCode := EndCode(binary.LittleEndian.Uint16(buf[cyc+2 : cyc+4]))
	if !IsValidSlaveEndCode(endCode) {
		return nil, newErr(KindBadEndCode, "unrecognised slave end code")
	}
	if binary.LittleEndian.Uint16(buf[cyc+4:cyc+6]) != CyclicRespCyclicOffset {
		return nil, newErr(KindBadCyclicOffset, "unexpected cyclic info offset")
	}
	for _, b := range buf[cyc+6 : cyc+20] {
		if b != 0 {
			return nil, newErr(KindReservedField, "cyclic response header reserved mismatch")
		}
	}

	const dat = 51
	groupNo := buf[dat+4]
	if groupNo < MinGroupNo || groupNo > MaxGroupNo {
		return nil, newErr(KindBadGroupNo, "group number out of range")
	}

	occupied := CalculateOccupiedFromResponseSize(len(buf))
	if occupied == 0 {
		return nil, newErr(KindLengthMismatch, "response size does not correspond to a valid occupied count")
	}

	return &ParsedResponse{
		buf:      buf,
		occupied: occupied,
		rwrOff:   RespFixedHeadersSize,
		rxOff:    RespFixedHeadersSize + int(occupied)*RwrSize,
	}, nil
}

func (p *ParsedResponse) ProtocolVersion() uint16 {
	return binary.LittleEndian.Uint16(p.buf[11:13])
}

func (p *ParsedResponse) EndCode() EndCode {
	return EndCode(binary.LittleEndian.Uint16(p.buf[13:15]))
}

func (p *ParsedResponse) VendorCode() uint16 {
	return binary.LittleEndian.Uint16(p.buf[31:33])
}

func (p *ParsedResponse) ModelCode() uint32 {
	return binary.LittleEndian.Uint32(p.buf[35:39])
}

func (p *ParsedResponse) EquipmentVer() uint16 {
	return binary.LittleEndian.Uint16(p.buf[39:41])
}

func (p *ParsedResponse) SlaveLocalUnitInfo() uint16 {
	return binary.LittleEndian.Uint16(p.buf[43:45])
}

func (p *ParsedResponse) SlaveErrCode() uint16 {
	return binary.LittleEndian.Uint16(p.buf[45:47])
}

func (p *ParsedResponse) LocalManagementInfo() uint32 {
	return binary.LittleEndian.Uint32(p.buf[47:51])
}

func (p *ParsedResponse) SlaveID() uint32 {
	return binary.LittleEndian.Uint32(p.buf[51:55])
}

func (p *ParsedResponse) GroupNo() uint8 { return p.buf[55] }

func (p *ParsedResponse) FrameSequenceNo() uint16 {
	return binary.LittleEndian.Uint16(p.buf[57:59])
}

func (p *ParsedResponse) Occupied() uint16 { return p.occupied }

func (p *ParsedResponse) RWr(index int) []byte {
	off := p.rwrOff + index*RwrSize
	return p.buf[off : off+RwrSize]
}

func (p *ParsedResponse) RX(index int) []byte {
	off := p.rxOff + index*RxSize
	return p.buf[off : off+RxSize]
}

// BumpSequenceNo advances a frame sequence number following the wrap rule
// I9: starts at 0, increments by 1, and wraps 65535 -> 1 (never back to 0).
func BumpSequenceNo(current uint16) uint16 {
	if current == 65535 {
		return 1
	}
	return current + 1
}
