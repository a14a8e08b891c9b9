package netcore

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/ipv4"

	"github.com/pkopriv2/netcore/internal/ifaceenum"
)

// loopbackEnumerator is a fake ifaceenum.Enumerator that only ever
// touches the loopback interface, so the multicast tests below don't
// depend on the host having a real multicast-capable NIC.
type loopbackEnumerator struct {
	iface *net.Interface
}

func newLoopbackEnumerator(t *testing.T) *loopbackEnumerator {
	ifaces, err := net.Interfaces()
	require.NoError(t, err)
	for i := range ifaces {
		if ifaces[i].Flags&net.FlagLoopback != 0 {
			return &loopbackEnumerator{iface: &ifaces[i]}
		}
	}
	t.Fatal("no loopback interface found")
	return nil
}

func (l *loopbackEnumerator) ActiveIPv4Addresses() ([]uint32, error) {
	return []uint32{ipToUint32(net.IPv4(127, 0, 0, 1))}, nil
}

func (l *loopbackEnumerator) JoinMulticastGroup(pc *ipv4.PacketConn, group uint32) error {
	return pc.JoinGroup(l.iface, &net.UDPAddr{IP: uint32ToIP(group)})
}

func (l *loopbackEnumerator) InterfaceForAddress(addr uint32) (*net.Interface, error) {
	return l.iface, nil
}

func TestMulticastSendDoesNotBindLocalAddress(t *testing.T) {
	ep := NewEndpoint(nil, DefaultConfig())
	ep.ifaceEnum = newLoopbackEnumerator(t)

	ok := ep.Open(nil, nil, MulticastSend, ipToUint32(net.IPv4(127, 0, 0, 1)), 0, 9999)
	require.True(t, ok)
	defer ep.Close()

	// A send socket picks its own ephemeral port; it must never end up
	// bound to the caller-supplied port argument (9999 above), since
	// that port only ever names the destination.
	require.NotEqual(t, uint16(9999), ep.BoundPort())
}

func TestMulticastSendAndReceiveRoundTrip(t *testing.T) {
	group := ipToUint32(net.IPv4(239, 1, 2, 3))

	recvEp := NewEndpoint(nil, DefaultConfig())
	recvEp.ifaceEnum = newLoopbackEnumerator(t)

	received := make(chan []byte, 1)
	packetCb := func(addr uint32, port uint16, body []byte) {
		received <- body
	}

	ok := recvEp.Open(nil, packetCb, MulticastReceive, AddrANY, group, 0)
	require.True(t, ok)
	defer recvEp.Close()

	sendEp := NewEndpoint(nil, DefaultConfig())
	sendEp.ifaceEnum = newLoopbackEnumerator(t)

	ok = sendEp.Open(nil, nil, MulticastSend, ipToUint32(net.IPv4(127, 0, 0, 1)), 0, 0)
	require.True(t, ok)
	defer sendEp.Close()

	body := []byte("multicast hello")
	sendEp.SendPacket(group, recvEp.BoundPort(), body)

	select {
	case got := <-received:
		require.Equal(t, body, got)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for multicast datagram")
	}
}
