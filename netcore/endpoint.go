package netcore

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/net/ipv4"

	"github.com/pkopriv2/netcore/diagnostics"
	"github.com/pkopriv2/netcore/internal/ifaceenum"
	"github.com/pkopriv2/netcore/internal/sockopt"
)

// Endpoint binds a local transport address in one of four Modes and runs
// a single background worker that surfaces either accepted Connections
// (Connection mode) or received datagrams (Datagram/MulticastReceive) to
// the owner via callbacks. Grounded on net/server.go's accept-loop
// goroutine (startListener), generalized here to also drive the
// datagram/multicast socket variants the teacher never needed.
type Endpoint struct {
	cfg       Config
	diag      *diagnostics.Bus
	ifaceEnum ifaceenum.Enumerator

	mu        sync.Mutex
	mode      Mode
	open      bool
	boundAddr uint32
	boundPort uint16
	groupAddr uint32

	tcpListener *net.TCPListener
	udpConn     *net.UDPConn

	newConnCb NewConnectionCb
	packetCb  PacketReceivedCb

	outbound *packetQueue
	wake     chan struct{}
	workerWG sync.WaitGroup
}

// NewEndpoint returns an idle Endpoint. Open must be called before it
// does anything.
func NewEndpoint(diag *diagnostics.Bus, cfg Config) *Endpoint {
	return &Endpoint{
		cfg:       cfg,
		diag:      diag,
		ifaceEnum: ifaceenum.System{},
		outbound:  newPacketQueue(),
		wake:      make(chan struct{}, 1),
	}
}

// Open binds the local port per mode and starts the worker. Returns
// false on any configuration failure (bad address, bind/listen failure,
// resource creation failure), having logged an error-level diagnostic
// and released any partially-acquired resources.
func (e *Endpoint) Open(newConnCb NewConnectionCb, packetCb PacketReceivedCb, mode Mode, localAddr uint32, groupAddr uint32, port uint16) bool {
	e.mu.Lock()

	if e.open {
		e.mu.Unlock()
		if e.diag != nil {
			e.diag.Publish(diagnostics.LevelError, ErrAlreadyOpen.Error())
		}
		return false
	}

	e.mode = mode
	e.groupAddr = groupAddr
	e.newConnCb = newConnCb
	e.packetCb = packetCb

	var err error
	switch mode {
	case Connection:
		err = e.openConnectionLocked(localAddr, port)
	case Datagram:
		err = e.openDatagramLocked(localAddr, port)
	case MulticastSend:
		err = e.openMulticastSendLocked(localAddr, port)
	case MulticastReceive:
		err = e.openMulticastReceiveLocked(port)
	default:
		err = errors.Errorf("unknown mode %v", mode)
	}

	if err != nil {
		if e.diag != nil {
			e.diag.PublishFormatted(diagnostics.LevelError, "open failed for mode %v: %v", mode, err)
		}
		e.closeSocketsLocked()
		e.mu.Unlock()
		return false
	}

	e.open = true
	e.workerWG.Add(1)
	e.mu.Unlock()

	go e.workerLoop()
	return true
}

func (e *Endpoint) openConnectionLocked(localAddr uint32, port uint16) error {
	// ListenBacklog is not applied: Go's net package does not expose a
	// portable way to override listen(2)'s backlog argument, so this
	// tunable is documented-but-inert for Connection mode (the OS
	// default, typically SOMAXCONN, is used instead — matching
	// net/tcp.go's ListenTcp, which never customized it either).
	l, err := net.ListenTCP("tcp4", &net.TCPAddr{IP: uint32ToIP(localAddr), Port: int(port)})
	if err != nil {
		return errors.Wrap(err, ErrBindFailed.Error())
	}
	e.tcpListener = l
	bound, _ := l.Addr().(*net.TCPAddr)
	e.boundAddr, e.boundPort = splitTCPAddr(bound)
	return nil
}

func (e *Endpoint) openDatagramLocked(localAddr uint32, port uint16) error {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: uint32ToIP(localAddr), Port: int(port)})
	if err != nil {
		return errors.Wrap(err, ErrBindFailed.Error())
	}
	e.udpConn = conn
	bound, _ := conn.LocalAddr().(*net.UDPAddr)
	e.boundAddr, e.boundPort = splitUDPAddr(bound)
	return nil
}

func (e *Endpoint) openMulticastSendLocked(localAddr uint32, port uint16) error {
	// Unlike the other three modes, a MulticastSend socket is never bound
	// to a caller-supplied address/port: localAddr only picks which
	// outbound interface carries the multicast traffic (IP_MULTICAST_IF),
	// and port is unused since sends always target the destination's own
	// port. The socket itself is bound to an OS-assigned ephemeral port
	// when it is created.
	conn, err := net.ListenUDP("udp4", nil)
	if err != nil {
		return errors.Wrap(err, ErrBindFailed.Error())
	}

	pc := ipv4.NewPacketConn(conn)
	if localAddr != AddrANY {
		iface, err := e.ifaceEnum.InterfaceForAddress(localAddr)
		if err != nil {
			_ = conn.Close()
			return errors.Wrap(err, ErrBindFailed.Error())
		}
		if err := pc.SetMulticastInterface(iface); err != nil {
			_ = conn.Close()
			return errors.Wrap(err, ErrBindFailed.Error())
		}
	}

	// The source unconditionally closed and failed here after setting
	// IP_MULTICAST_IF; that was treated as a bug, so this proceeds to
	// start the worker instead.
	e.udpConn = conn
	bound, _ := conn.LocalAddr().(*net.UDPAddr)
	e.boundAddr, e.boundPort = splitUDPAddr(bound)
	return nil
}

func (e *Endpoint) openMulticastReceiveLocked(port uint16) error {
	lc := sockopt.ReuseAddrListenConfig()
	pconn, err := lc.ListenPacket(context.Background(), "udp4", fmt.Sprintf(":%d", port))
	if err != nil {
		return errors.Wrap(err, ErrBindFailed.Error())
	}
	conn, ok := pconn.(*net.UDPConn)
	if !ok {
		_ = pconn.Close()
		return errors.Wrap(ErrBindFailed, "listen did not return a UDP socket")
	}

	pc := ipv4.NewPacketConn(conn)
	if err := e.ifaceEnum.JoinMulticastGroup(pc, e.groupAddr); err != nil {
		_ = conn.Close()
		return errors.Wrap(err, ErrBindFailed.Error())
	}

	e.udpConn = conn
	bound, _ := conn.LocalAddr().(*net.UDPAddr)
	e.boundAddr, e.boundPort = splitUDPAddr(bound)
	return nil
}

func (e *Endpoint) closeSocketsLocked() {
	if e.tcpListener != nil {
		_ = e.tcpListener.Close()
		e.tcpListener = nil
	}
	if e.udpConn != nil {
		_ = e.udpConn.Close()
		e.udpConn = nil
	}
}

// BoundPort returns the actual bound local port, which is the OS-chosen
// ephemeral port when the caller requested 0.
func (e *Endpoint) BoundPort() uint16 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.boundPort
}

// BoundAddr returns the bound local address.
func (e *Endpoint) BoundAddr() uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.boundAddr
}

// Mode returns the mode this endpoint was opened with.
func (e *Endpoint) Mode() Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

// IsOpen reports whether the endpoint is between a successful Open and
// Close.
func (e *Endpoint) IsOpen() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.open
}

// InterfaceAddresses returns the active IPv4 addresses of local
// adapters.
func (e *Endpoint) InterfaceAddresses() ([]uint32, error) {
	return e.ifaceEnum.ActiveIPv4Addresses()
}

// SendPacket enqueues body for delivery to (addr, port). Only meaningful
// for Datagram/MulticastSend endpoints; called on any other mode it logs
// a warning and is otherwise a no-op.
func (e *Endpoint) SendPacket(addr uint32, port uint16, body []byte) {
	e.mu.Lock()
	if e.mode != Datagram && e.mode != MulticastSend {
		e.mu.Unlock()
		if e.diag != nil {
			e.diag.Publish(diagnostics.LevelWarning, ErrWrongMode.Error())
		}
		return
	}

	cp := make([]byte, len(body))
	copy(cp, body)
	e.outbound.push(Packet{Addr: addr, Port: port, Body: cp})
	e.mu.Unlock()

	e.signalWake()
}

// Close is idempotent: it stops the worker, closes the socket, and
// discards any undelivered outbound packets.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	if !e.open {
		e.mu.Unlock()
		return nil
	}
	e.open = false
	e.outbound.reset()
	e.closeSocketsLocked()
	e.mu.Unlock()

	e.signalWake()
	e.workerWG.Wait()
	return nil
}

func (e *Endpoint) signalWake() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// workerLoop multiplexes the wake channel with socket readiness
// (rendered as a bounded accept/read/write deadline, per the same
// rationale as Connection.workerLoop) and drives the mode-specific
// per-wake-up algorithm: accept for Connection, receive for
// Datagram/MulticastReceive, drain the outbound queue for
// Datagram/MulticastSend.
func (e *Endpoint) workerLoop() {
	defer e.workerWG.Done()

	buf := make([]byte, e.cfg.ChunkSize)

	for {
		e.mu.Lock()
		if !e.open {
			e.mu.Unlock()
			return
		}
		mode := e.mode
		listener := e.tcpListener
		udpConn := e.udpConn
		e.mu.Unlock()

		wait := true
		didIO := false

		// Step 1: accept.
		if mode == Connection {
			_ = listener.SetDeadline(time.Now().Add(e.cfg.WakePollInterval))
			conn, err := listener.Accept()
			didIO = true
			switch {
			case err == nil:
				c := newFromAcceptedSocket(conn, e.diag, e.cfg)
				if e.newConnCb != nil {
					e.newConnCb(c)
				}
			case isTimeout(err):
				// would-block: nothing to accept right now.
			default:
				if e.IsOpen() && e.diag != nil {
					e.diag.PublishFormatted(diagnostics.LevelWarning, "accept error: %v", err)
				}
				// benign: log and keep looping.
			}
		}

		// Step 2: receive.
		if mode == Datagram || mode == MulticastReceive {
			_ = udpConn.SetReadDeadline(time.Now().Add(e.cfg.WakePollInterval))
			n, from, err := udpConn.ReadFromUDP(buf)
			didIO = true
			switch {
			case err == nil:
				addr, port := splitUDPAddr(from)
				if e.packetCb != nil {
					body := append([]byte(nil), buf[:n]...)
					e.packetCb(addr, port, body)
				}
			case isTimeout(err):
				// would-block.
			default:
				if e.diag != nil {
					e.diag.PublishFormatted(diagnostics.LevelError, "recvfrom error: %v", err)
				}
				go e.Close()
				return
			}
		}

		// Step 3: send.
		if mode == Datagram || mode == MulticastSend {
			e.mu.Lock()
			pkt, ok := e.outbound.front()
			e.mu.Unlock()

			if ok {
				_ = udpConn.SetWriteDeadline(time.Now().Add(e.cfg.WakePollInterval))
				n, err := udpConn.WriteToUDP(pkt.Body, &net.UDPAddr{IP: uint32ToIP(pkt.Addr), Port: int(pkt.Port)})
				didIO = true

				if isTimeout(err) {
					// would-block: retry the same head packet next wake.
				} else {
					if err != nil {
						if e.diag != nil {
							e.diag.PublishFormatted(diagnostics.LevelWarning, "sendto error: %v", err)
						}
					} else if n < len(pkt.Body) {
						if e.diag != nil {
							e.diag.PublishFormatted(diagnostics.LevelWarning, "partial datagram send: %d of %d bytes", n, len(pkt.Body))
						}
					}

					e.mu.Lock()
					e.outbound.popFront()
					more := !e.outbound.empty()
					e.mu.Unlock()
					if more {
						wait = false
					}
				}
			}
		}

		if wait {
			if didIO {
				select {
				case <-e.wake:
				default:
				}
			} else {
				select {
				case <-e.wake:
				case <-time.After(e.cfg.WakePollInterval):
				}
			}
		}
	}
}
