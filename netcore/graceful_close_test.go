package netcore

import (
	"bytes"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGracefulCloseDrainsThenReportsBroken(t *testing.T) {
	ln, err := net.ListenTCP("tcp4", &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	require.NoError(t, err)
	defer ln.Close()

	dialed := make(chan net.Conn, 1)
	go func() {
		conn, err := net.DialTCP("tcp4", nil, ln.Addr().(*net.TCPAddr))
		if err == nil {
			dialed <- conn
		}
	}()

	accepted, err := ln.Accept()
	require.NoError(t, err)
	client := <-dialed
	defer client.Close()

	c := newFromAcceptedSocket(accepted, nil, DefaultConfig())

	broken := make(chan bool, 1)
	require.NoError(t, c.Process(func([]byte) {}, func(graceful bool) {
		broken <- graceful
	}))

	payload := bytes.Repeat([]byte{0xAB}, 100*1024)
	c.SendMessage(payload)
	require.NoError(t, c.Close(true))

	readDone := make(chan int, 1)
	go func() {
		total := 0
		buf := make([]byte, 65536)
		for total < len(payload) {
			n, err := client.Read(buf)
			total += n
			if err != nil {
				break
			}
		}
		readDone <- total
	}()

	select {
	case total := <-readDone:
		require.Equal(t, len(payload), total)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for peer to receive all bytes")
	}

	// Peer observes the orderly FIN, then closes its own side.
	buf := make([]byte, 1)
	_ = client.SetReadDeadline(time.Now().Add(time.Second))
	_, err = client.Read(buf)
	require.ErrorIs(t, err, io.EOF)
	_ = client.Close()

	select {
	case graceful := <-broken:
		require.False(t, graceful)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for BrokenCb")
	}

	require.True(t, c.outbound.Empty())
}
