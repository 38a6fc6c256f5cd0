// Package slmp implements the SLMP auxiliary protocol (§4.7): node-search
// discovery and remote set-IP, plus the master-side request/response
// correlation and the slave-side responder. The wire codec here is pure,
// like pkg/frame; request/response correlation state is cooperative and
// polled via Periodic, never goroutine-driven.
package slmp

// UDP port.
const Port = 61451

// Common SLMP header field values, fixed for every CCIEFB-profile frame.
const (
	ReqHeaderSub1   uint16 = 0x5400 // big-endian on the wire
	ReqHeaderSub2   uint16 = 0x0000
	ReqHeaderTimer  uint16 = 0x0000
	RespHeaderSub1  uint16 = 0xD400 // big-endian on the wire
	RespHeaderSub2  uint16 = 0x0000

	HeaderNetworkNumber uint8  = 0x00
	HeaderUnitNumber    uint8  = 0xFF
	HeaderIONumber      uint16 = 0x03FF
	HeaderExtension     uint8  = 0x00
)

// Commands and sub-commands.
const (
	CommandNodeSearch    uint16 = 0x0E30
	CommandSetIPAddress  uint16 = 0x0E31
	SubCommandNodeSearch uint16 = 0x0000
	SubCommandSetIP      uint16 = 0x0000
)

// End codes relevant to node-search/set-IP responses.
const (
	EndCodeSuccess      uint16 = 0x0000
	EndCodeCommandError uint16 = 0xC059
)

// Header sizes (octets).
const (
	ReqHeaderSize          = 19
	RespHeaderSize          = 15
	ReqHeaderLengthOffset   = 13 // bytes up to and including 'length'
	RespHeaderLengthOffset  = 13
)

// MAC/IP fixed field values.
const (
	IPAddrSize                 uint8  = 4
	NodeSearchSlaveHostnameSz  uint8  = 0x00
	NodeSearchDefaultGateway   uint32 = 0xFFFFFFFF
	NodeSearchTargetIPAddr     uint32 = 0xFFFFFFFF
	NodeSearchTargetPort       uint16 = 0xFFFF
	NodeSearchServerStatusOK   uint16 = 0x0000
	ProtocolIdentifierUDP      uint8  = 0x01

	SetIPSlaveDefaultGateway uint32 = 0xFFFFFFFF
	SetIPSlaveHostnameSz     uint8  = 0x00
	SetIPTargetIPAddr        uint32 = 0xFFFFFFFF
	SetIPTargetPort          uint16 = 0xFFFF
)

// Body sizes (octets), not including the common header.
const (
	NodeSearchRequestBodySize  = 11
	NodeSearchResponseBodySize = 51
	SetIPRequestBodySize       = 39
	SetIPResponseBodySize      = 6
	ErrorResponseBodySize      = 9
)

const NoSerial = -1

// DefaultCollectionWindowUs is the node-search collection window: the time
// the master waits after broadcasting before it reports whatever slaves
// answered.
const DefaultCollectionWindowUs = 2_000_000

// DefaultSetIPTimeoutUs bounds how long the master waits for a single
// set-IP response before declaring the operation timed out.
const DefaultSetIPTimeoutUs = 2_000_000
