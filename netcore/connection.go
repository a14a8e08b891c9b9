package netcore

import (
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/pkopriv2/netcore/bytequeue"
	"github.com/pkopriv2/netcore/diagnostics"
)

// connState models a connection's lifecycle as a single mutually
// exclusive stage. Unlike the teacher's bitmask StateMachine
// (msg/state.go), the stages here never overlap, so a plain enum with
// guarded transitions under the processing lock is a closer fit than an
// independently-settable flag set.
type connState int

const (
	stateIdle connState = iota
	stateConnected
	stateProcessing
	stateClosing
	stateShutdownSent
	stateDrained
	stateDead
)

// halfCloser is implemented by *net.TCPConn; abstracted so tests can
// substitute an in-memory pipe that also supports a half-close.
type halfCloser interface {
	CloseWrite() error
}

// Connection owns one established stream socket and mediates full-duplex
// message exchange through its own background worker goroutine. A
// Connection accepted by an Endpoint is captured by that Endpoint's
// new-connection callback and, once Process is called, also referenced
// by its own worker's closure; Go's garbage collector keeps the object
// alive as long as either reference exists, which is the natural
// rendition of the source's shared_ptr-based reference counting: no
// manual refcounting is needed.
type Connection struct {
	cfg  Config
	diag *diagnostics.Bus

	mu           sync.Mutex
	conn         net.Conn
	boundAddr    uint32
	boundPort    uint16
	peerAddr     uint32
	peerPort     uint16
	state        connState
	peerClosed   bool
	closing      bool
	shutdownSent bool
	brokenFired  bool

	outbound *bytequeue.Queue
	recvCb   MessageReceivedCb
	brokenCb BrokenCb

	wake     chan struct{}
	workerWG sync.WaitGroup

	// inWorker is nonzero while the worker goroutine is synchronously
	// executing its receive/broken callback section, and also from the
	// worker's start until its first pass finishes that section. Close
	// consults it to decide whether it is being invoked reentrantly from
	// the worker (self-join hazard) and must detach rather than join.
	// This is a coarse, deliberately conservative heuristic: a genuinely
	// concurrent external Close that lands in one of those windows also
	// detaches instead of joining, so it returns without waiting for the
	// worker to exit; it never hangs.
	inWorker int32
}

// Connect creates an outbound TCP connection to (peerAddr, peerPort).
// The socket is bound to an ephemeral local port and SO_LINGER is set to
// force an RST on abrupt close instead of the usual lingering FIN.
func Connect(peerAddr uint32, peerPort uint16, diag *diagnostics.Bus, cfg Config) (*Connection, error) {
	tcpConn, err := net.DialTCP("tcp4", nil, &net.TCPAddr{IP: uint32ToIP(peerAddr), Port: int(peerPort)})
	if err != nil {
		if diag != nil {
			diag.PublishFormatted(diagnostics.LevelError, "connect to %s failed: %v", hostPort(peerAddr, peerPort), err)
		}
		return nil, errors.Wrap(err, ErrBindFailed.Error())
	}
	_ = tcpConn.SetLinger(0)

	local, _ := tcpConn.LocalAddr().(*net.TCPAddr)
	remote, _ := tcpConn.RemoteAddr().(*net.TCPAddr)
	ba, bp := splitTCPAddr(local)
	pa, pp := splitTCPAddr(remote)

	return newConnection(tcpConn, ba, bp, pa, pp, diag, cfg), nil
}

// newFromAcceptedSocket is Endpoint's entry point into Connection
// construction for a socket accepted on its listener, distinguished
// from the caller-facing Connect since the socket already exists; it
// applies the same SO_LINGER setting and address discovery to it.
func newFromAcceptedSocket(conn net.Conn, diag *diagnostics.Bus, cfg Config) *Connection {
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetLinger(0)
	}
	local, _ := conn.LocalAddr().(*net.TCPAddr)
	remote, _ := conn.RemoteAddr().(*net.TCPAddr)
	ba, bp := splitTCPAddr(local)
	pa, pp := splitTCPAddr(remote)

	return newConnection(conn, ba, bp, pa, pp, diag, cfg)
}

func newConnection(conn net.Conn, boundAddr uint32, boundPort uint16, peerAddr uint32, peerPort uint16, diag *diagnostics.Bus, cfg Config) *Connection {
	return &Connection{
		cfg:       cfg,
		diag:      diag,
		conn:      conn,
		boundAddr: boundAddr,
		boundPort: boundPort,
		peerAddr:  peerAddr,
		peerPort:  peerPort,
		state:     stateConnected,
		outbound:  bytequeue.New(),
		wake:      make(chan struct{}, 1),
	}
}

// LocalAddr returns the connection's bound local address and port.
func (c *Connection) LocalAddr() (uint32, uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.boundAddr, c.boundPort
}

// RemoteAddr returns the peer's address and port.
func (c *Connection) RemoteAddr() (uint32, uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peerAddr, c.peerPort
}

// IsConnected reports whether the connection currently owns a live
// socket, i.e. whether a subsequent SendMessage will enqueue for a
// worker that still has a chance to flush it — any state other than
// Idle/Drained/Dead.
func (c *Connection) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state != stateDrained && c.state != stateDead && c.state != stateIdle
}

// State returns the current connection state, mostly useful for tests
// and diagnostics.
func (c *Connection) State() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case stateIdle:
		return "Idle"
	case stateConnected:
		return "Connected"
	case stateProcessing:
		return "Processing"
	case stateClosing:
		return "Closing"
	case stateShutdownSent:
		return "ShutdownSent"
	case stateDrained:
		return "Drained"
	case stateDead:
		return "Dead"
	default:
		return "Unknown"
	}
}

// Process starts the connection's worker goroutine, binding recvCb and
// brokenCb as the callback surface for received bytes and eventual
// teardown. Calling Process before a successful Connect/accept is a
// programmer error; calling it a second time is a benign no-op.
func (c *Connection) Process(recvCb MessageReceivedCb, brokenCb BrokenCb) error {
	c.mu.Lock()

	if c.conn == nil {
		c.mu.Unlock()
		if c.diag != nil {
			c.diag.Publish(diagnostics.LevelError, "Process called before Connect")
		}
		return ErrProcessBeforeConnect
	}

	switch c.state {
	case stateProcessing, stateClosing, stateShutdownSent:
		c.mu.Unlock()
		if c.diag != nil {
			c.diag.Publish(diagnostics.LevelWarning, "Process called more than once")
		}
		return nil
	case stateConnected:
		// proceed below
	default:
		c.mu.Unlock()
		return ErrProcessBeforeConnect
	}

	c.recvCb = recvCb
	c.brokenCb = brokenCb
	c.state = stateProcessing
	c.workerWG.Add(1)
	c.mu.Unlock()

	go c.workerLoop()
	return nil
}

// SendMessage enqueues bytes for the worker to transmit in order.
// Enqueueing always succeeds even after the worker has exited (e.g.
// following an abrupt peer close) — from the caller's view this simply
// means the bytes will never be flushed, not that the call fails.
func (c *Connection) SendMessage(data []byte) {
	c.mu.Lock()
	c.outbound.EnqueueCopy(data)
	c.mu.Unlock()
	c.signalWake()
}

// Close tears the connection down. clean=false closes immediately,
// discarding any undelivered outbound data. clean=true drains the
// outbound queue, half-closes the send side, and waits for the peer's
// FIN before releasing the socket; it returns immediately, bounded only
// by the worker's own progress, not by peer responsiveness.
func (c *Connection) Close(clean bool) error {
	c.mu.Lock()

	if c.state == stateDead {
		c.mu.Unlock()
		return nil
	}

	calledFromWorker := atomic.LoadInt32(&c.inWorker) != 0

	if !clean || c.state != stateProcessing {
		c.immediateCloseLocked()
		fire := !c.brokenFired
		c.brokenFired = true
		c.mu.Unlock()

		c.joinOrDetach(calledFromWorker)
		if fire {
			c.dispatchBroken(false)
		}
		return nil
	}

	if c.closing {
		c.mu.Unlock()
		return nil
	}

	c.closing = true
	c.state = stateClosing
	c.mu.Unlock()
	c.signalWake()
	return nil
}

// immediateCloseLocked releases the socket and marks the connection
// dead. Caller must hold c.mu.
func (c *Connection) immediateCloseLocked() {
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.outbound.Reset()
	c.state = stateDead
}

func (c *Connection) joinOrDetach(calledFromWorker bool) {
	if calledFromWorker {
		// The worker handle is detached rather than joined: joining the
		// worker from itself would deadlock.
		return
	}
	c.workerWG.Wait()
}

func (c *Connection) signalWake() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Connection) dispatchBroken(graceful bool) {
	if c.brokenCb != nil {
		c.brokenCb(graceful)
	}
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

// workerLoop is the Connection's dedicated background worker. Two wake
// sources are multiplexed: the wake channel (state changes signaled by
// SendMessage/Close) and socket readiness, rendered here as a bounded
// read/write deadline so the blocking syscall itself periodically
// yields back to check the wake channel and stop condition, since Go's
// net package does not expose a second, independently-waitable
// readiness handle alongside its blocking calls.
func (c *Connection) workerLoop() {
	atomic.StoreInt32(&c.inWorker, 1)
	defer func() {
		atomic.StoreInt32(&c.inWorker, 0)
		c.workerWG.Done()
	}()

	buf := make([]byte, c.cfg.ChunkSize)

	for {
		c.mu.Lock()
		if c.state == stateDead {
			c.mu.Unlock()
			return
		}
		conn := c.conn
		attemptRecv := !c.peerClosed
		sendHead := c.outbound.Peek(c.cfg.ChunkSize)
		c.mu.Unlock()

		wait := true
		didIO := false
		var pendingRecv []byte
		var fireBroken bool
		var brokenGraceful bool
		exit := false

		// Step 1: receive. The socket call itself runs with the
		// processing lock released so a caller's SendMessage/Close is
		// never blocked behind a syscall; only the resulting state
		// mutation below is guarded.
		if attemptRecv {
			_ = conn.SetReadDeadline(time.Now().Add(c.cfg.WakePollInterval))
			n, err := conn.Read(buf)
			didIO = true

			c.mu.Lock()
			switch {
			case n > 0:
				pendingRecv = append([]byte(nil), buf[:n]...)
			case err == io.EOF:
				c.peerClosed = true
				// If we're already draining toward our own close, step 3
				// below owns the single broken(false) dispatch for this
				// case — firing broken(true) here would both fire twice
				// and report the wrong graceful value.
				if !c.closing && !c.brokenFired {
					c.brokenFired = true
					fireBroken = true
					brokenGraceful = true
				}
			case isTimeout(err):
				// would-block: nothing queued to receive right now.
			case err != nil:
				if c.diag != nil {
					c.diag.PublishFormatted(diagnostics.LevelError, "recv error: %v", err)
				}
				c.immediateCloseLocked()
				if !c.brokenFired {
					c.brokenFired = true
					fireBroken = true
					brokenGraceful = false
				}
				exit = true
			}
			c.mu.Unlock()
		}

		// Step 2: send.
		if !exit && len(sendHead) > 0 {
			_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WakePollInterval))
			n, err := conn.Write(sendHead)
			didIO = true

			c.mu.Lock()
			switch {
			case isTimeout(err):
				if n > 0 {
					// A write cut short by its deadline may still have sent
					// a prefix; drop it so the retry does not resend it.
					c.outbound.Drop(n)
				}
				if c.cfg.StrictSendWouldBlockCloses {
					// Bug-compatible with the source: treat WouldBlock on
					// send as fatal.
					if c.diag != nil {
						c.diag.Publish(diagnostics.LevelError, "send would-block treated as fatal (strict mode)")
					}
					c.immediateCloseLocked()
					if !c.brokenFired {
						c.brokenFired = true
						fireBroken = true
						brokenGraceful = false
					}
					exit = true
				}
				// else: corrected behavior — retry next iteration.
			case err != nil:
				if c.diag != nil {
					c.diag.PublishFormatted(diagnostics.LevelError, "send error: %v", err)
				}
				c.immediateCloseLocked()
				if !c.brokenFired {
					c.brokenFired = true
					fireBroken = true
					brokenGraceful = false
				}
				exit = true
			case n > 0:
				c.outbound.Drop(n)
				if n == len(sendHead) && !c.outbound.Empty() {
					wait = false
				}
			}
			c.mu.Unlock()
		}

		// Step 3: graceful-close drain completion.
		c.mu.Lock()
		if !exit && c.closing && c.outbound.Empty() {
			if !c.shutdownSent {
				if hc, ok := c.conn.(halfCloser); ok {
					_ = hc.CloseWrite()
				}
				c.shutdownSent = true
				c.state = stateShutdownSent
			}
			if c.peerClosed {
				c.immediateCloseLocked()
				if !c.brokenFired {
					c.brokenFired = true
					fireBroken = true
					brokenGraceful = false
				}
				exit = true
			}
		}
		c.mu.Unlock()

		atomic.StoreInt32(&c.inWorker, 1)
		if len(pendingRecv) > 0 && c.recvCb != nil {
			c.recvCb(pendingRecv)
		}
		if fireBroken {
			c.dispatchBroken(brokenGraceful)
		}
		atomic.StoreInt32(&c.inWorker, 0)
		if exit {
			return
		}

		if wait {
			if didIO {
				// The bounded read/write deadline above already yielded;
				// drain any pending wake signal without blocking so we
				// don't accumulate a stale one, then loop immediately to
				// re-check state.
				select {
				case <-c.wake:
				default:
				}
			} else {
				select {
				case <-c.wake:
				case <-time.After(c.cfg.WakePollInterval):
				}
			}
		}
	}
}
