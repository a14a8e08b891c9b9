// Package bytequeue implements a FIFO of opaque byte buffers with
// per-element partial consumption, backing the outbound buffering used
// by netcore's Connection worker.
package bytequeue

import "container/list"

// element is a single enqueued buffer together with how much of it has
// already been consumed from the front.
type element struct {
	data     []byte
	consumed int
}

func (e *element) remaining() int {
	return len(e.data) - e.consumed
}

// Queue is a single-producer/single-consumer FIFO of byte buffers. It is
// not safe for concurrent use; callers (such as Connection) hold their
// own processing lock around every call.
type Queue struct {
	elems      *list.List
	totalBytes int
}

// New returns an empty Queue.
func New() *Queue {
	return &Queue{elems: list.New()}
}

// Enqueue appends buf to the tail of the queue. The queue takes
// ownership of buf; callers must not mutate it afterward.
func (q *Queue) Enqueue(buf []byte) {
	if len(buf) == 0 {
		return
	}
	q.elems.PushBack(&element{data: buf})
	q.totalBytes += len(buf)
}

// EnqueueCopy appends a copy of buf, leaving the caller free to reuse
// its own backing array immediately.
func (q *Queue) EnqueueCopy(buf []byte) {
	if len(buf) == 0 {
		return
	}
	cp := make([]byte, len(buf))
	copy(cp, buf)
	q.Enqueue(cp)
}

// Dequeue removes and returns up to n bytes from the head of the queue.
// Fewer bytes are returned if the queue holds less than n.
func (q *Queue) Dequeue(n int) []byte {
	return q.transfer(n, true, true)
}

// Peek returns up to n bytes from the head of the queue without
// removing them. peek(n) followed by Drop(n) is equivalent to
// Dequeue(n).
func (q *Queue) Peek(n int) []byte {
	return q.transfer(n, true, false)
}

// Drop removes up to n bytes from the head of the queue without
// returning them.
func (q *Queue) Drop(n int) {
	q.transfer(n, false, true)
}

// Front returns the unconsumed bytes of the head element without
// allocating a new slice, and whether the queue is non-empty. Callers
// that only need the single next-to-send buffer (rather than up to
// ChunkSize coalesced across buffers, as Peek does) can avoid Peek's
// copy this way.
func (q *Queue) Front() ([]byte, bool) {
	e := q.elems.Front()
	if e == nil {
		return nil, false
	}
	el := e.Value.(*element)
	return el.data[el.consumed:], true
}

// BuffersQueued returns the number of distinct buffers currently queued.
func (q *Queue) BuffersQueued() int {
	return q.elems.Len()
}

// BytesQueued returns the total number of unconsumed bytes across all
// queued buffers.
func (q *Queue) BytesQueued() int {
	return q.totalBytes
}

// Empty reports whether the queue currently holds no bytes.
func (q *Queue) Empty() bool {
	return q.totalBytes == 0
}

// Reset discards all queued buffers and zeroes the counters. Used when a
// Connection is closed uncleanly and any undelivered outbound data must
// be abandoned.
func (q *Queue) Reset() {
	q.elems.Init()
	q.totalBytes = 0
}

// transfer implements the unified peek/dequeue/drop routine described by
// the queue's design: a single pass over the head elements, parameterized
// by whether the caller wants the bytes back (returnData) and whether the
// bytes should be removed from the queue (removeData).
func (q *Queue) transfer(n int, returnData, removeData bool) []byte {
	if n <= 0 {
		return nil
	}
	if n > q.totalBytes {
		n = q.totalBytes
	}
	if n == 0 {
		return nil
	}

	// Fast path: a single dequeue that exactly drains the head element
	// from its start can hand back its backing array with no copy.
	if returnData && removeData {
		if head := q.elems.Front(); head != nil {
			el := head.Value.(*element)
			if el.consumed == 0 && n == len(el.data) {
				q.elems.Remove(head)
				q.totalBytes -= n
				return el.data
			}
		}
	}

	var out []byte
	if returnData {
		out = make([]byte, 0, n)
	}

	remaining := n
	for cur := q.elems.Front(); cur != nil && remaining > 0; {
		next := cur.Next()
		el := cur.Value.(*element)

		take := el.remaining()
		if take > remaining {
			take = remaining
		}

		if returnData {
			out = append(out, el.data[el.consumed:el.consumed+take]...)
		}

		if removeData {
			el.consumed += take
			q.totalBytes -= take
			if el.consumed >= len(el.data) {
				q.elems.Remove(cur)
			}
		}

		remaining -= take
		cur = next
	}

	return out
}
