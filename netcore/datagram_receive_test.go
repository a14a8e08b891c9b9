package netcore

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDatagramReceiveDeliversPacketCallback(t *testing.T) {
	type received struct {
		addr uint32
		port uint16
		body []byte
	}
	got := make(chan received, 1)

	ep := NewEndpoint(nil, DefaultConfig())
	ok := ep.Open(nil, func(addr uint32, port uint16, body []byte) {
		cp := append([]byte(nil), body...)
		got <- received{addr, port, cp}
	}, Datagram, AddrANY, 0, 0)
	require.True(t, ok)
	defer ep.Close()

	external, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	require.NoError(t, err)
	defer external.Close()
	senderPort := uint16(external.LocalAddr().(*net.UDPAddr).Port)

	body := []byte{0x12, 0x34, 0x56, 0x78}
	_, err = external.WriteToUDP(body, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: int(ep.BoundPort())})
	require.NoError(t, err)

	select {
	case r := <-got:
		require.Equal(t, uint32(0x7F000001), r.addr)
		require.Equal(t, senderPort, r.port)
		require.Equal(t, body, r.body)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for PacketReceivedCb")
	}
}
