package netcore

// Mode selects what an Endpoint does with the local port it binds.
type Mode int

const (
	// Datagram binds a UDP socket for point-to-point send/receive.
	Datagram Mode = iota
	// Connection binds a TCP socket, listens, and accepts peers.
	Connection
	// MulticastSend binds a UDP socket for sending to a multicast group.
	MulticastSend
	// MulticastReceive binds a UDP socket and joins a multicast group on
	// every active interface.
	MulticastReceive
)

func (m Mode) String() string {
	switch m {
	case Datagram:
		return "Datagram"
	case Connection:
		return "Connection"
	case MulticastSend:
		return "MulticastSend"
	case MulticastReceive:
		return "MulticastReceive"
	default:
		return "Unknown"
	}
}
