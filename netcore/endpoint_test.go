package netcore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndpointOpenTwiceFails(t *testing.T) {
	ep := NewEndpoint(nil, DefaultConfig())
	require.True(t, ep.Open(nil, nil, Datagram, AddrANY, 0, 0))
	defer ep.Close()

	assert.False(t, ep.Open(nil, nil, Datagram, AddrANY, 0, 0))
}

func TestEndpointSendPacketWrongModeIsNoop(t *testing.T) {
	ep := NewEndpoint(nil, DefaultConfig())
	require.True(t, ep.Open(nil, nil, Connection, AddrANY, 0, 0))
	defer ep.Close()

	assert.NotPanics(t, func() {
		ep.SendPacket(AddrANY, 1234, []byte("nope"))
	})
}

func TestEndpointCloseIsIdempotent(t *testing.T) {
	ep := NewEndpoint(nil, DefaultConfig())
	require.True(t, ep.Open(nil, nil, Datagram, AddrANY, 0, 0))

	require.NoError(t, ep.Close())
	require.NoError(t, ep.Close())
	assert.False(t, ep.IsOpen())
}

func TestEndpointBoundPortIsEphemeral(t *testing.T) {
	ep := NewEndpoint(nil, DefaultConfig())
	require.True(t, ep.Open(nil, nil, Datagram, AddrANY, 0, 0))
	defer ep.Close()

	assert.NotZero(t, ep.BoundPort())
}
