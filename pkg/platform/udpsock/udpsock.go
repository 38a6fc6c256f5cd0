// Package udpsock implements pkg/platform.Platform over raw UDP sockets via
// golang.org/x/sys/unix, the same syscall layer the teacher's socketcan
// backend would have used had it targeted a userspace driver instead of the
// kernel SocketCAN stack.
package udpsock

import (
	"fmt"
	"net"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/openfieldbus/cciefb/pkg/platform"
)

// Host implements platform.Platform over plain UDP sockets, persisting
// counters as small files under stateDir.
type Host struct {
	stateDir string
}

// New returns a Host that persists counters under stateDir.
func New(stateDir string) *Host {
	return &Host{stateDir: stateDir}
}

// OpenSocket binds a non-blocking UDP socket via raw syscalls, matching the
// teacher's pattern of working directly against a kernel interface rather
// than net.ListenUDP.
func (h *Host) OpenSocket(localIface string, port int, broadcast bool) (platform.Socket, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, unix.IPPROTO_UDP)
	if err != nil {
		return nil, fmt.Errorf("udpsock: socket: %w", err)
	}

	if broadcast {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_BROADCAST, 1); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("udpsock: SO_BROADCAST: %w", err)
		}
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("udpsock: SO_REUSEADDR: %w", err)
	}

	if localIface != "" {
		if err := unix.SetsockoptString(fd, unix.SOL_SOCKET, unix.SO_BINDTODEVICE, localIface); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("udpsock: SO_BINDTODEVICE(%s): %w", localIface, err)
		}
	}

	addr := &unix.SockaddrInet4{Port: port}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("udpsock: bind :%d: %w", port, err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("udpsock: set nonblocking: %w", err)
	}

	return &socket{fd: fd}, nil
}

type socket struct {
	fd int
}

func (s *socket) SendTo(payload []byte, ip net.IP, port int) error {
	v4 := ip.To4()
	if v4 == nil {
		return fmt.Errorf("udpsock: %s is not an IPv4 address", ip)
	}
	addr := &unix.SockaddrInet4{Port: port}
	copy(addr.Addr[:], v4)
	return unix.Sendto(s.fd, payload, 0, addr)
}

func (s *socket) RecvFrom(buf []byte) (int, net.IP, error) {
	n, from, err := unix.Recvfrom(s.fd, buf, 0)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, nil, nil
		}
		return 0, nil, err
	}
	v4, ok := from.(*unix.SockaddrInet4)
	if !ok {
		return n, nil, fmt.Errorf("udpsock: unexpected sockaddr type %T", from)
	}
	return n, net.IPv4(v4.Addr[0], v4.Addr[1], v4.Addr[2], v4.Addr[3]), nil
}

func (s *socket) Close() error {
	return unix.Close(s.fd)
}

// LocalIPv4 returns iface's bound IPv4 address, or the first non-loopback
// IPv4 address on the host when iface is empty.
func (h *Host) LocalIPv4(iface string) (net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	for _, ifc := range ifaces {
		if iface != "" && ifc.Name != iface {
			continue
		}
		addrs, err := ifc.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			v4 := ipNet.IP.To4()
			if v4 == nil || v4.IsLoopback() {
				continue
			}
			return v4, nil
		}
	}
	return nil, fmt.Errorf("udpsock: no IPv4 address found for iface %q", iface)
}

// LocalMAC returns iface's hardware address.
func (h *Host) LocalMAC(iface string) (net.HardwareAddr, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	for _, ifc := range ifaces {
		if iface != "" && ifc.Name != iface {
			continue
		}
		if len(ifc.HardwareAddr) == 6 {
			return ifc.HardwareAddr, nil
		}
	}
	return nil, fmt.Errorf("udpsock: no MAC address found for iface %q", iface)
}

// NowMicros reads CLOCK_MONOTONIC directly, truncated to the wrap-safe
// 32-bit microsecond range pkg/timer expects.
func (h *Host) NowMicros() uint32 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return 0
	}
	return uint32(ts.Sec*1_000_000 + ts.Nsec/1000)
}

// ReadFile reads name's raw bytes from under the host's state directory.
// ok is false, with a nil error, when the file does not exist yet (e.g. a
// fresh installation with nothing persisted).
func (h *Host) ReadFile(name string) ([]byte, bool, error) {
	if h.stateDir == "" {
		return nil, false, nil
	}
	b, err := os.ReadFile(filepath.Join(h.stateDir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

// WriteFile writes data to name under the host's state directory,
// creating the directory and the file (or truncating it) as needed.
func (h *Host) WriteFile(name string, data []byte) error {
	if h.stateDir == "" {
		return nil
	}
	if err := os.MkdirAll(h.stateDir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(h.stateDir, name), data, 0o644)
}

// ClearFile removes name from under the host's state directory. It is not
// an error for the file to already be absent.
func (h *Host) ClearFile(name string) error {
	if h.stateDir == "" {
		return nil
	}
	err := os.Remove(filepath.Join(h.stateDir, name))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
