// Package ifaceenum enumerates local IPv4 interface addresses and joins
// multicast groups on them, adapted from the interface-walking idiom in
// joshuafuller-beacon's internal/transport/udp.go (ipv4.PacketConn
// control) generalized here to join every up, multicast-capable
// interface rather than binding a single well-known mDNS group.
package ifaceenum

import (
	"encoding/binary"
	"net"

	"github.com/pkg/errors"
	"golang.org/x/net/ipv4"
)

// Enumerator lists local IPv4 addresses and joins multicast groups. It
// is an interface so Endpoint's MulticastReceive path can be tested
// without real multicast-capable NICs.
type Enumerator interface {
	// ActiveIPv4Addresses returns the host-order IPv4 addresses of every
	// up local interface.
	ActiveIPv4Addresses() ([]uint32, error)

	// JoinMulticastGroup joins group (host-order IPv4) on every up,
	// multicast-capable interface for the given packet connection.
	JoinMulticastGroup(pc *ipv4.PacketConn, group uint32) error

	// InterfaceForAddress finds the local interface owning addr
	// (host-order IPv4), used to set IP_MULTICAST_IF for
	// MulticastSend.
	InterfaceForAddress(addr uint32) (*net.Interface, error)
}

// System is the real Enumerator backed by net.Interfaces().
type System struct{}

// ActiveIPv4Addresses implements Enumerator.
func (System) ActiveIPv4Addresses() ([]uint32, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, errors.Wrap(err, "ifaceenum: list interfaces")
	}

	var out []uint32
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ip := addrIP(a)
			if ip == nil {
				continue
			}
			v4 := ip.To4()
			if v4 == nil {
				continue
			}
			out = append(out, binary.BigEndian.Uint32(v4))
		}
	}
	return out, nil
}

// JoinMulticastGroup implements Enumerator.
func (System) JoinMulticastGroup(pc *ipv4.PacketConn, group uint32) error {
	ifaces, err := net.Interfaces()
	if err != nil {
		return errors.Wrap(err, "ifaceenum: list interfaces")
	}

	groupIP := uint32ToIP(group)
	joined := 0
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagMulticast == 0 {
			continue
		}
		if err := pc.JoinGroup(&iface, &net.UDPAddr{IP: groupIP}); err == nil {
			joined++
		}
	}
	if joined == 0 {
		return errors.New("ifaceenum: no interface accepted multicast join")
	}
	return nil
}

// InterfaceForAddress implements Enumerator.
func (System) InterfaceForAddress(addr uint32) (*net.Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, errors.Wrap(err, "ifaceenum: list interfaces")
	}

	target := uint32ToIP(addr)
	for i := range ifaces {
		addrs, err := ifaces[i].Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ip := addrIP(a)
			if ip != nil && ip.To4() != nil && ip.To4().Equal(target) {
				return &ifaces[i], nil
			}
		}
	}
	return nil, errors.Errorf("ifaceenum: no interface owns address %s", target)
}

func addrIP(a net.Addr) net.IP {
	switch v := a.(type) {
	case *net.IPNet:
		return v.IP
	case *net.IPAddr:
		return v.IP
	default:
		return nil
	}
}

func uint32ToIP(v uint32) net.IP {
	ip := make(net.IP, 4)
	binary.BigEndian.PutUint32(ip, v)
	return ip
}
