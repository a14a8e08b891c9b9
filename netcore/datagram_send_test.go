package netcore

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDatagramSendReachesExternalSocket(t *testing.T) {
	external, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	require.NoError(t, err)
	defer external.Close()
	externalPort := uint16(external.LocalAddr().(*net.UDPAddr).Port)

	ep := NewEndpoint(nil, DefaultConfig())
	ok := ep.Open(nil, nil, Datagram, AddrANY, 0, 0)
	require.True(t, ok)
	defer ep.Close()

	body := []byte{0x12, 0x34, 0x56, 0x78}
	ep.SendPacket(ipToUint32(net.IPv4(127, 0, 0, 1)), externalPort, body)

	buf := make([]byte, 16)
	require.NoError(t, external.SetReadDeadline(time.Now().Add(time.Second)))
	n, from, err := external.ReadFromUDP(buf)
	require.NoError(t, err)

	require.Equal(t, body, buf[:n])
	require.Equal(t, "127.0.0.1", from.IP.String())
	require.Equal(t, int(ep.BoundPort()), from.Port)
}
