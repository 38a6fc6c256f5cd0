// Package platform defines the host capability surface the CCIEFB engines
// are driven through: sockets, a monotonic microsecond clock, and
// persistence. It
// generalizes the teacher's CAN Bus interface (Send/Subscribe/Connect) to a
// UDP/Ethernet fieldbus host, keeping the core engines single-threaded and
// free of direct syscalls.
package platform

import "net"

// Socket is a non-blocking UDP endpoint. RecvFrom returning (0, nil, nil)
// means "no datagram pending" — callers poll it from their own periodic
// loop rather than blocking a goroutine on it.
type Socket interface {
	SendTo(payload []byte, addr net.IP, port int) error
	RecvFrom(buf []byte) (n int, from net.IP, err error)
	Close() error
}

// DrainDatagrams reads every datagram currently pending on sock — RecvFrom
// returning (0, nil, nil) signals the socket is empty — calling handle for
// each one. Both cmd/cciefb-master and cmd/cciefb-slave poll their sockets
// this way once per tick instead of blocking a goroutine on each one.
func DrainDatagrams(sock Socket, buf []byte, handle func(payload []byte, from net.IP)) error {
	for {
		n, from, err := sock.RecvFrom(buf)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		handle(buf[:n], from)
	}
}

// Platform is the capability set injected into a master/slave host binary.
// No package under pkg/master or pkg/slave imports this package directly;
// it exists purely for cmd/ wiring, keeping the engines free of sockets.
type Platform interface {
	// OpenSocket binds a UDP socket on port, optionally restricted to
	// localIface (empty binds to all interfaces) and with broadcast enabled.
	OpenSocket(localIface string, port int, broadcast bool) (Socket, error)

	// LocalIPv4 returns the IPv4 address bound to iface, or the first
	// non-loopback IPv4 address on the host if iface is empty.
	LocalIPv4(iface string) (net.IP, error)

	// LocalMAC returns the hardware address bound to iface.
	LocalMAC(iface string) (net.HardwareAddr, error)

	// NowMicros returns a monotonically increasing microsecond clock
	// reading, suitable for the Periodic(now) APIs in pkg/master/pkg/slave.
	NowMicros() uint32

	// ReadFile, WriteFile and ClearFile back named host-persisted state
	// files (currently: the master's parameter-id counter). The platform
	// only moves raw bytes; decoding/encoding the file's magic/version/
	// payload layout is the owning package's job (pkg/master). ok is false
	// from ReadFile when the file does not exist yet.
	ReadFile(name string) (data []byte, ok bool, err error)
	WriteFile(name string, data []byte) error
	ClearFile(name string) error
}
