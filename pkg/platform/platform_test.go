package platform_test

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/openfieldbus/cciefb/pkg/platform"
)

// mockSocket is a testify/mock double for platform.Socket. The Platform
// capability set is wider and more varied (sockets, IP/MAC introspection,
// file persistence, clock) than the teacher's single-method CAN Bus
// interface, so a generic mock.Mock stands in for a hand-rolled fake here.
type mockSocket struct {
	mock.Mock
}

func (m *mockSocket) SendTo(payload []byte, addr net.IP, port int) error {
	args := m.Called(payload, addr, port)
	return args.Error(0)
}

func (m *mockSocket) RecvFrom(buf []byte) (int, net.IP, error) {
	args := m.Called(buf)
	return args.Int(0), args.Get(1).(net.IP), args.Error(2)
}

func (m *mockSocket) Close() error {
	return m.Called().Error(0)
}

func TestDrainDatagramsCallsHandleUntilSocketEmpty(t *testing.T) {
	sock := &mockSocket{}
	from := net.IPv4(192, 168, 1, 100)

	sock.On("RecvFrom", mock.Anything).Return(3, from, nil).Once()
	sock.On("RecvFrom", mock.Anything).Return(2, from, nil).Once()
	sock.On("RecvFrom", mock.Anything).Return(0, net.IP(nil), nil).Once()

	var received [][]byte
	buf := []byte{0xAA, 0xBB, 0xCC, 0xDD}
	err := platform.DrainDatagrams(sock, buf, func(payload []byte, from net.IP) {
		got := make([]byte, len(payload))
		copy(got, payload)
		received = append(received, got)
	})

	assert.NoError(t, err)
	assert.Equal(t, [][]byte{{0xAA, 0xBB, 0xCC}, {0xAA, 0xBB}}, received)
	sock.AssertNumberOfCalls(t, "RecvFrom", 3)
}

func TestDrainDatagramsStopsOnFirstError(t *testing.T) {
	sock := &mockSocket{}
	boom := assert.AnError

	sock.On("RecvFrom", mock.Anything).Return(0, net.IP(nil), boom).Once()

	called := false
	err := platform.DrainDatagrams(sock, make([]byte, 8), func([]byte, net.IP) {
		called = true
	})

	assert.ErrorIs(t, err, boom)
	assert.False(t, called)
}
