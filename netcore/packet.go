package netcore

import "container/list"

// Packet is a queued outbound datagram. Unlike ByteQueue's elements,
// packets are never partially consumed: a datagram is sent whole or not
// at all, so the outbound queue here is a plain FIFO of whole packets
// rather than a byte-accurate deque.
type Packet struct {
	Addr uint32
	Port uint16
	Body []byte
}

type packetQueue struct {
	elems *list.List
}

func newPacketQueue() *packetQueue {
	return &packetQueue{elems: list.New()}
}

func (q *packetQueue) push(p Packet) {
	q.elems.PushBack(p)
}

func (q *packetQueue) front() (Packet, bool) {
	e := q.elems.Front()
	if e == nil {
		return Packet{}, false
	}
	return e.Value.(Packet), true
}

func (q *packetQueue) popFront() {
	if e := q.elems.Front(); e != nil {
		q.elems.Remove(e)
	}
}

func (q *packetQueue) empty() bool {
	return q.elems.Len() == 0
}

func (q *packetQueue) reset() {
	q.elems.Init()
}
