package netcore

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIPToUint32RoundTrip(t *testing.T) {
	ip := net.IPv4(127, 0, 0, 1)
	v := ipToUint32(ip)
	assert.Equal(t, uint32(0x7F000001), v)
	assert.True(t, uint32ToIP(v).Equal(ip))
}

func TestIPToUint32RejectsNonV4(t *testing.T) {
	assert.Equal(t, uint32(0), ipToUint32(net.ParseIP("::1")))
}

func TestHostPortFormatsDotted(t *testing.T) {
	assert.Equal(t, "10.0.0.5:80", hostPort(0x0A000005, 80))
}

func TestSplitUDPAddrHandlesNil(t *testing.T) {
	addr, port := splitUDPAddr(nil)
	assert.Zero(t, addr)
	assert.Zero(t, port)
}

func TestSplitTCPAddrHandlesNil(t *testing.T) {
	addr, port := splitTCPAddr(nil)
	assert.Zero(t, addr)
	assert.Zero(t, port)
}
