package netcore

// NewConnectionCb is delivered on an internal Endpoint worker thread
// each time Connection mode accepts a peer. The callee is expected to
// retain c and call c.Process to begin receiving.
type NewConnectionCb func(c *Connection)

// PacketReceivedCb is delivered on the Endpoint worker thread for
// Datagram/MulticastReceive modes. addr and port identify the sender;
// body is a fresh copy of the datagram payload that the callee may
// retain.
type PacketReceivedCb func(addr uint32, port uint16, body []byte)

// MessageReceivedCb is delivered on a Connection's worker thread. bytes
// is the newest chunk read from the peer, not a framed message; netcore
// does no message framing of its own.
type MessageReceivedCb func(bytes []byte)

// BrokenCb fires at most once per Connection lifetime. graceful is true
// iff the peer's orderly FIN was observed while no local Close was in
// progress; false covers abrupt peer close and any locally-initiated
// close, including a graceful local close that later sees the peer's FIN.
type BrokenCb func(graceful bool)
