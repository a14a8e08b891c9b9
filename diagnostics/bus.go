// Package diagnostics implements the DiagnosticsBus fan-out used
// uniformly by netcore's Endpoint and Connection to report state
// transitions and errors, along with a Context scope that prepends a
// label to every message published while the scope is live.
//
// Grounded on the teacher's common.Logger/formattedLogger prefixing
// idiom and the idempotent one-shot lifecycle pattern in
// common/control.go, generalized here from a single logger to a
// multi-subscriber publisher.
package diagnostics

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Level is the diagnostic severity scale used directly by the format
// rule a StreamReporter applies: level >= LevelError renders an
// "error: " prefix and routes to the error stream; level >= LevelWarning
// renders "warning: " and also routes to the error stream; anything
// below goes to the output stream with no prefix.
type Level int

const (
	LevelDebug   Level = 0
	LevelInfo    Level = 1
	LevelWarning Level = 5
	LevelError   Level = 10
)

// Delegate receives a published message. sender is the name of the bus
// that originated the message (preserved across Chain() forwarding).
type Delegate func(sender string, level Level, text string)

// Subscription is returned by Subscribe. Unsubscribe is idempotent.
type Subscription struct {
	bus     *Bus
	id      uuid.UUID
	minOnce sync.Once
}

// Unsubscribe detaches the subscription's delegate from the bus. Safe to
// call more than once and safe to call concurrently with Publish.
func (s *Subscription) Unsubscribe() {
	s.minOnce.Do(func() {
		s.bus.remove(s.id)
	})
}

type subscriber struct {
	id       uuid.UUID
	delegate Delegate
	minLevel Level
}

// Bus is a named publisher. Zero or more subscribers may attach with a
// minimum-level filter. Publication is safe for concurrent callers;
// delegates are always invoked with the bus's internal lock released so
// a delegate may re-enter the bus (e.g. Subscribe/Publish/Unsubscribe)
// without deadlocking.
type Bus struct {
	name string

	mu          sync.Mutex
	subscribers map[uuid.UUID]*subscriber

	ctxMu sync.Mutex
	ctx   []string
}

// New returns an empty Bus identified by name in every message it
// originates.
func New(name string) *Bus {
	return &Bus{
		name:        name,
		subscribers: make(map[uuid.UUID]*subscriber),
	}
}

// Name returns the bus's own sender name.
func (b *Bus) Name() string {
	return b.name
}

// Subscribe attaches delegate to the bus. delegate will be invoked for
// every subsequent Publish call whose level is >= minLevel. Messages
// published before Subscribe returns are never delivered to it.
func (b *Bus) Subscribe(minLevel Level, delegate Delegate) *Subscription {
	id := uuid.New()

	b.mu.Lock()
	b.subscribers[id] = &subscriber{id: id, delegate: delegate, minLevel: minLevel}
	b.mu.Unlock()

	return &Subscription{bus: b, id: id}
}

func (b *Bus) remove(id uuid.UUID) {
	b.mu.Lock()
	delete(b.subscribers, id)
	b.mu.Unlock()
}

// MinLevel returns the minimum level among all currently active
// subscriptions. Callers may use this to cheaply skip formatting a
// message nobody will receive. Returns LevelError+1 (i.e. "nothing
// passes") when there are no subscribers.
func (b *Bus) MinLevel() Level {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.subscribers) == 0 {
		return LevelError + 1
	}

	min := LevelError + 1
	for _, s := range b.subscribers {
		if s.minLevel < min {
			min = s.minLevel
		}
	}
	return min
}

// Publish fans level/text out to every subscriber whose minLevel <=
// level, prefixed with the joined context stack active at the moment of
// publication. The stack is bus-wide rather than per-goroutine, and
// guarded by ctxMu, matching PushContext/PopContext's ordered-sequence
// contract.
func (b *Bus) Publish(level Level, text string) {
	if level < b.MinLevel() {
		return
	}

	prefixed := b.applyContext(text)

	b.mu.Lock()
	targets := make([]*subscriber, 0, len(b.subscribers))
	for _, s := range b.subscribers {
		if level >= s.minLevel {
			targets = append(targets, s)
		}
	}
	b.mu.Unlock()

	for _, s := range targets {
		s.delegate(b.name, level, prefixed)
	}
}

// PublishFormatted is a convenience wrapper around Publish using
// fmt.Sprintf-style formatting.
func (b *Bus) PublishFormatted(level Level, format string, args ...interface{}) {
	b.Publish(level, fmt.Sprintf(format, args...))
}

// Chain returns a Delegate suitable for subscribing this bus to another
// bus, forwarding messages while preserving the original sender_name and
// level rather than substituting this bus's own name.
func (b *Bus) Chain() Delegate {
	return func(sender string, level Level, text string) {
		b.mu.Lock()
		targets := make([]*subscriber, 0, len(b.subscribers))
		for _, s := range b.subscribers {
			if level >= s.minLevel {
				targets = append(targets, s)
			}
		}
		b.mu.Unlock()

		for _, s := range targets {
			s.delegate(sender, level, text)
		}
	}
}

func (b *Bus) applyContext(text string) string {
	b.ctxMu.Lock()
	defer b.ctxMu.Unlock()

	if len(b.ctx) == 0 {
		return text
	}
	return strings.Join(b.ctx, ": ") + ": " + text
}

// PushContext appends label to the end of the active context stack.
// Prefer the Context scope helper (NewContext) over calling
// PushContext/PopContext directly, since the scope guarantees release
// on every exit path including panics.
func (b *Bus) PushContext(label string) {
	b.ctxMu.Lock()
	b.ctx = append(b.ctx, label)
	b.ctxMu.Unlock()
}

// PopContext removes the most recently pushed label. It is a
// programmer error to call PopContext without a matching PushContext;
// doing so on an empty stack is a silent no-op.
func (b *Bus) PopContext() {
	b.ctxMu.Lock()
	if n := len(b.ctx); n > 0 {
		b.ctx = b.ctx[:n-1]
	}
	b.ctxMu.Unlock()
}
