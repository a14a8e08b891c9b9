package netcore

import (
	"encoding/binary"
	"fmt"
	"net"
)

// Addresses are host-order 32-bit integers at the netcore API boundary
// and converted to network order / net.IP only at the syscall boundary.

// AddrANY is the wildcard bind address (0.0.0.0).
const AddrANY uint32 = 0

// ipToUint32 converts a 4-byte IPv4 address to a host-order uint32.
func ipToUint32(ip net.IP) uint32 {
	v4 := ip.To4()
	if v4 == nil {
		return 0
	}
	return binary.BigEndian.Uint32(v4)
}

// uint32ToIP converts a host-order uint32 back to a net.IP.
func uint32ToIP(v uint32) net.IP {
	ip := make(net.IP, 4)
	binary.BigEndian.PutUint32(ip, v)
	return ip
}

func hostPort(addr uint32, port uint16) string {
	return fmt.Sprintf("%s:%d", uint32ToIP(addr).String(), port)
}

// splitUDPAddr decodes a *net.UDPAddr into netcore's (addr, port) pair.
func splitUDPAddr(a *net.UDPAddr) (uint32, uint16) {
	if a == nil {
		return 0, 0
	}
	return ipToUint32(a.IP), uint16(a.Port)
}

// splitTCPAddr decodes a *net.TCPAddr into netcore's (addr, port) pair.
func splitTCPAddr(a *net.TCPAddr) (uint32, uint16) {
	if a == nil {
		return 0, 0
	}
	return ipToUint32(a.IP), uint16(a.Port)
}
