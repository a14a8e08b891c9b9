// Command netcore-echo wires Endpoint, Connection, and DiagnosticsBus
// together into a minimal TCP echo server, the way the pack's own
// example programs (joshuafuller-beacon's examples/*/main.go) exercise
// a library's public API end to end rather than shipping unused.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkopriv2/netcore/diagnostics"
	"github.com/pkopriv2/netcore/netcore"
)

func main() {
	addr := flag.String("addr", "0.0.0.0", "address to bind")
	port := flag.Uint("port", 7, "port to bind")
	flag.Parse()

	bus := diagnostics.New("netcore-echo")
	reporter := diagnostics.NewStreamReporter(bus, os.Stdout, os.Stderr, diagnostics.LevelInfo)
	defer reporter.Close()

	localAddr, err := parseIPv4(*addr)
	if err != nil {
		bus.PublishFormatted(diagnostics.LevelError, "bad -addr %q: %v", *addr, err)
		os.Exit(1)
	}

	ep := netcore.NewEndpoint(bus, netcore.DefaultConfig())

	newConnCb := func(c *netcore.Connection) {
		peerAddr, peerPort := c.RemoteAddr()
		bus.PushContext(fmt.Sprintf("conn %s:%d", ipString(peerAddr), peerPort))

		recvCb := func(body []byte) {
			c.SendMessage(body)
		}
		brokenCb := func(graceful bool) {
			bus.PublishFormatted(diagnostics.LevelInfo, "closed (graceful=%v)", graceful)
			bus.PopContext()
		}

		bus.Publish(diagnostics.LevelInfo, "accepted")
		if err := c.Process(recvCb, brokenCb); err != nil {
			bus.PublishFormatted(diagnostics.LevelError, "process failed: %v", err)
			bus.PopContext()
		}
	}

	ok := ep.Open(newConnCb, nil, netcore.Connection, localAddr, 0, uint16(*port))
	if !ok {
		bus.Publish(diagnostics.LevelError, "failed to open listener")
		os.Exit(1)
	}
	bus.PublishFormatted(diagnostics.LevelInfo, "listening on %s:%d", ipString(ep.BoundAddr()), ep.BoundPort())

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	bus.Publish(diagnostics.LevelInfo, "shutting down")
	_ = ep.Close()
}

func parseIPv4(s string) (uint32, error) {
	ip := net.ParseIP(s)
	if ip == nil {
		return 0, fmt.Errorf("not an IPv4 address")
	}
	v4 := ip.To4()
	if v4 == nil {
		return 0, fmt.Errorf("not an IPv4 address")
	}
	return uint32(v4[0])<<24 | uint32(v4[1])<<16 | uint32(v4[2])<<8 | uint32(v4[3]), nil
}

func ipString(v uint32) string {
	return net.IPv4(byte(v>>24), byte(v>>16), byte(v>>8), byte(v)).String()
}
