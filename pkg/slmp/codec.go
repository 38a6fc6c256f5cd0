package slmp

import (
	"encoding/binary"
	"fmt"

	"github.com/openfieldbus/cciefb/pkg/frame"
)

// Kind classifies an SLMP parse failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindTooShort
	KindLengthMismatch
	KindBadSub1
	KindBadCommand
	KindBadSubCommand
)

// ParseError is returned by every parse entry point in this package.
type ParseError struct {
	Kind Kind
	msg  string
}

func (e *ParseError) Error() string { return fmt.Sprintf("slmp: %s", e.msg) }

func newErr(kind Kind, msg string) *ParseError { return &ParseError{Kind: kind, msg: msg} }

func putReqHeader(buf []byte, serial uint16, command uint16, subCommand uint16, bodyLen int) {
	binary.BigEndian.PutUint16(buf[0:2], ReqHeaderSub1)
	binary.LittleEndian.PutUint16(buf[2:4], serial)
	binary.LittleEndian.PutUint16(buf[4:6], ReqHeaderSub2)
	buf[6] = HeaderNetworkNumber
	buf[7] = HeaderUnitNumber
	binary.LittleEndian.PutUint16(buf[8:10], HeaderIONumber)
	buf[10] = HeaderExtension
	binary.LittleEndian.PutUint16(buf[11:13], uint16(ReqHeaderSize-ReqHeaderLengthOffset+bodyLen))
	binary.LittleEndian.PutUint16(buf[13:15], ReqHeaderTimer)
	binary.LittleEndian.PutUint16(buf[15:17], command)
	binary.LittleEndian.PutUint16(buf[17:19], subCommand)
}

func parseReqHeader(buf []byte, wantCommand, wantSubCommand uint16) (serial uint16, err error) {
	if len(buf) < ReqHeaderSize {
		return 0, newErr(KindTooShort, "request shorter than header")
	}
	if binary.BigEndian.Uint16(buf[0:2]) != ReqHeaderSub1 {
		return 0, newErr(KindBadSub1, "unexpected sub1")
	}
	length := binary.LittleEndian.Uint16(buf[11:13])
	if int(length)+ReqHeaderLengthOffset != len(buf) {
		return 0, newErr(KindLengthMismatch, "length field does not match received size")
	}
	if binary.LittleEndian.Uint16(buf[15:17]) != wantCommand {
		return 0, newErr(KindBadCommand, "unexpected command")
	}
	if binary.LittleEndian.Uint16(buf[17:19]) != wantSubCommand {
		return 0, newErr(KindBadSubCommand, "unexpected sub-command")
	}
	return binary.LittleEndian.Uint16(buf[2:4]), nil
}

func putRespHeader(buf []byte, serial uint16, endCode uint16, bodyLen int) {
	binary.BigEndian.PutUint16(buf[0:2], RespHeaderSub1)
	binary.LittleEndian.PutUint16(buf[2:4], serial)
	binary.LittleEndian.PutUint16(buf[4:6], RespHeaderSub2)
	buf[6] = HeaderNetworkNumber
	buf[7] = HeaderUnitNumber
	binary.LittleEndian.PutUint16(buf[8:10], HeaderIONumber)
	buf[10] = HeaderExtension
	binary.LittleEndian.PutUint16(buf[11:13], uint16(RespHeaderSize-RespHeaderLengthOffset+bodyLen))
	binary.LittleEndian.PutUint16(buf[13:15], endCode)
}

func parseRespHeader(buf []byte) (serial uint16, endCode uint16, err error) {
	if len(buf) < RespHeaderSize {
		return 0, 0, newErr(KindTooShort, "response shorter than header")
	}
	if binary.BigEndian.Uint16(buf[0:2]) != RespHeaderSub1 {
		return 0, 0, newErr(KindBadSub1, "unexpected sub1")
	}
	length := binary.LittleEndian.Uint16(buf[11:13])
	if int(length)+RespHeaderLengthOffset != len(buf) {
		return 0, 0, newErr(KindLengthMismatch, "length field does not match received size")
	}
	serial = binary.LittleEndian.Uint16(buf[2:4])
	endCode = binary.LittleEndian.Uint16(buf[13:15])
	return serial, endCode, nil
}

// BuildNodeSearchRequest encodes a broadcast node-search request.
func BuildNodeSearchRequest(serial uint16, masterMAC MAC, masterIP uint32) []byte {
	buf := make([]byte, ReqHeaderSize+NodeSearchRequestBodySize)
	putReqHeader(buf, serial, CommandNodeSearch, SubCommandNodeSearch, NodeSearchRequestBodySize)
	b := buf[ReqHeaderSize:]
	putMACReversed(b[0:6], masterMAC)
	b[6] = IPAddrSize
	binary.LittleEndian.PutUint32(b[7:11], masterIP)
	return buf
}

// NodeSearchRequest is a parsed incoming node-search request (slave side).
type NodeSearchRequest struct {
	Serial    uint16
	MasterMAC MAC
	MasterIP  uint32
}

func ParseNodeSearchRequest(buf []byte) (*NodeSearchRequest, error) {
	serial, err := parseReqHeader(buf, CommandNodeSearch, SubCommandNodeSearch)
	if err != nil {
		return nil, err
	}
	if len(buf) != ReqHeaderSize+NodeSearchRequestBodySize {
		return nil, newErr(KindLengthMismatch, "node search request has wrong body size")
	}
	b := buf[ReqHeaderSize:]
	return &NodeSearchRequest{
		Serial:    serial,
		MasterMAC: macFromReversed(b[0:6]),
		MasterIP:  binary.LittleEndian.Uint32(b[7:11]),
	}, nil
}

// NodeSearchResponse is the slave identity reported back to a node-search.
type NodeSearchResponse struct {
	Serial         uint16
	MasterMAC      MAC
	MasterIP       uint32
	SlaveMAC       MAC
	SlaveIP        uint32
	SlaveNetmask   uint32
	VendorCode     uint16
	ModelCode      uint32
	EquipmentVer   uint16
	SlaveStatus    uint16
}

// BuildNodeSearchResponse encodes r as the wire reply to a node search.
func BuildNodeSearchResponse(r NodeSearchResponse) []byte {
	buf := make([]byte, RespHeaderSize+NodeSearchResponseBodySize)
	putRespHeader(buf, r.Serial, EndCodeSuccess, NodeSearchResponseBodySize)
	b := buf[RespHeaderSize:]
	putMACReversed(b[0:6], r.MasterMAC)
	b[6] = IPAddrSize
	binary.LittleEndian.PutUint32(b[7:11], r.MasterIP)
	putMACReversed(b[11:17], r.SlaveMAC)
	b[17] = IPAddrSize
	binary.LittleEndian.PutUint32(b[18:22], r.SlaveIP)
	binary.LittleEndian.PutUint32(b[22:26], r.SlaveNetmask)
	binary.LittleEndian.PutUint32(b[26:30], NodeSearchDefaultGateway)
	b[30] = NodeSearchSlaveHostnameSz
	binary.LittleEndian.PutUint16(b[31:33], r.VendorCode)
	binary.LittleEndian.PutUint32(b[33:37], r.ModelCode)
	binary.LittleEndian.PutUint16(b[37:39], r.EquipmentVer)
	b[39] = IPAddrSize
	binary.LittleEndian.PutUint32(b[40:44], NodeSearchTargetIPAddr)
	binary.LittleEndian.PutUint16(b[44:46], NodeSearchTargetPort)
	binary.LittleEndian.PutUint16(b[46:48], r.SlaveStatus)
	binary.LittleEndian.PutUint16(b[48:50], frame.CciefbPort)
	b[50] = ProtocolIdentifierUDP
	return buf
}

// ParseNodeSearchResponse decodes a slave's reply (master side).
func ParseNodeSearchResponse(buf []byte) (*NodeSearchResponse, error) {
	serial, endCode, err := parseRespHeader(buf)
	if err != nil {
		return nil, err
	}
	if endCode != EndCodeSuccess {
		return nil, newErr(KindBadCommand, "node search response carries a non-success end code")
	}
	if len(buf) != RespHeaderSize+NodeSearchResponseBodySize {
		return nil, newErr(KindLengthMismatch, "node search response has wrong body size")
	}
	b := buf[RespHeaderSize:]
	return &NodeSearchResponse{
		Serial:       serial,
		MasterMAC:    macFromReversed(b[0:6]),
		MasterIP:     binary.LittleEndian.Uint32(b[7:11]),
		SlaveMAC:     macFromReversed(b[11:17]),
		SlaveIP:      binary.LittleEndian.Uint32(b[18:22]),
		SlaveNetmask: binary.LittleEndian.Uint32(b[22:26]),
		VendorCode:   binary.LittleEndian.Uint16(b[31:33]),
		ModelCode:    binary.LittleEndian.Uint32(b[33:37]),
		EquipmentVer: binary.LittleEndian.Uint16(b[37:39]),
		SlaveStatus:  binary.LittleEndian.Uint16(b[46:48]),
	}, nil
}

// SetIPRequest is the master's remote-IP-assignment command, targeting one
// slave by MAC.
type SetIPRequest struct {
	Serial         uint16
	MasterMAC      MAC
	MasterIP       uint32
	SlaveMAC       MAC
	SlaveNewIP     uint32
	SlaveNewNetmask uint32
}

// BuildSetIPRequest encodes r as the wire request.
func BuildSetIPRequest(r SetIPRequest) []byte {
	buf := make([]byte, ReqHeaderSize+SetIPRequestBodySize)
	putReqHeader(buf, r.Serial, CommandSetIPAddress, SubCommandSetIP, SetIPRequestBodySize)
	b := buf[ReqHeaderSize:]
	putMACReversed(b[0:6], r.MasterMAC)
	b[6] = IPAddrSize
	binary.LittleEndian.PutUint32(b[7:11], r.MasterIP)
	putMACReversed(b[11:17], r.SlaveMAC)
	b[17] = IPAddrSize
	binary.LittleEndian.PutUint32(b[18:22], r.SlaveNewIP)
	binary.LittleEndian.PutUint32(b[22:26], r.SlaveNewNetmask)
	binary.LittleEndian.PutUint32(b[26:30], SetIPSlaveDefaultGateway)
	b[30] = SetIPSlaveHostnameSz
	b[31] = IPAddrSize
	binary.LittleEndian.PutUint32(b[32:36], SetIPTargetIPAddr)
	binary.LittleEndian.PutUint16(b[36:38], SetIPTargetPort)
	b[38] = ProtocolIdentifierUDP
	return buf
}

// ParseSetIPRequest decodes an incoming set-IP request (slave side).
func ParseSetIPRequest(buf []byte) (*SetIPRequest, error) {
	serial, err := parseReqHeader(buf, CommandSetIPAddress, SubCommandSetIP)
	if err != nil {
		return nil, err
	}
	if len(buf) != ReqHeaderSize+SetIPRequestBodySize {
		return nil, newErr(KindLengthMismatch, "set ip request has wrong body size")
	}
	b := buf[ReqHeaderSize:]
	return &SetIPRequest{
		Serial:          serial,
		MasterMAC:       macFromReversed(b[0:6]),
		MasterIP:        binary.LittleEndian.Uint32(b[7:11]),
		SlaveMAC:        macFromReversed(b[11:17]),
		SlaveNewIP:      binary.LittleEndian.Uint32(b[18:22]),
		SlaveNewNetmask: binary.LittleEndian.Uint32(b[22:26]),
	}, nil
}

// BuildSetIPResponse encodes the slave's success acknowledgement.
func BuildSetIPResponse(serial uint16, slaveMAC MAC) []byte {
	buf := make([]byte, RespHeaderSize+SetIPResponseBodySize)
	putRespHeader(buf, serial, EndCodeSuccess, SetIPResponseBodySize)
	putMACReversed(buf[RespHeaderSize:RespHeaderSize+6], slaveMAC)
	return buf
}

// BuildErrorResponse encodes a structured SLMP error PDU for a failed
// request (e.g. a set-IP addressed to a disabled or unknown slave).
func BuildErrorResponse(serial uint16, endCode uint16, command uint16, subCommand uint16) []byte {
	buf := make([]byte, RespHeaderSize+ErrorResponseBodySize)
	putRespHeader(buf, serial, endCode, ErrorResponseBodySize)
	b := buf[RespHeaderSize:]
	b[0] = HeaderNetworkNumber
	b[1] = HeaderUnitNumber
	binary.LittleEndian.PutUint16(b[2:4], HeaderIONumber)
	b[4] = HeaderExtension
	binary.LittleEndian.PutUint16(b[5:7], command)
	binary.LittleEndian.PutUint16(b[7:9], subCommand)
	return buf
}

// ResponseHeader is the minimal decode of any response frame, used to
// dispatch before knowing which concrete body follows.
type ResponseHeader struct {
	Serial  uint16
	EndCode uint16
}

// PeekResponseHeader decodes just the common response header, letting the
// caller branch on EndCode before parsing a success or error body.
func PeekResponseHeader(buf []byte) (ResponseHeader, error) {
	serial, endCode, err := parseRespHeader(buf)
	if err != nil {
		return ResponseHeader{}, err
	}
	return ResponseHeader{Serial: serial, EndCode: endCode}, nil
}

// ParseSetIPResponse decodes the slave's success acknowledgement (master
// side). Call only after PeekResponseHeader reports EndCodeSuccess.
func ParseSetIPResponse(buf []byte) (MAC, error) {
	if len(buf) != RespHeaderSize+SetIPResponseBodySize {
		return MAC{}, newErr(KindLengthMismatch, "set ip response has wrong body size")
	}
	return macFromReversed(buf[RespHeaderSize : RespHeaderSize+6]), nil
}
