package diagnostics

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_DiscardedBeforeSubscribe(t *testing.T) {
	b := New("test")
	var got []string
	b.Publish(LevelInfo, "before subscribe")

	b.Subscribe(LevelInfo, func(sender string, level Level, text string) {
		got = append(got, text)
	})

	assert.Empty(t, got)
}

func TestBus_LevelFiltering(t *testing.T) {
	b := New("test")
	var got []string

	b.Subscribe(LevelWarning, func(sender string, level Level, text string) {
		got = append(got, text)
	})

	b.Publish(LevelDebug, "debug message")
	b.Publish(LevelWarning, "warning message")
	b.Publish(LevelError, "error message")

	require.Equal(t, []string{"warning message", "error message"}, got)
}

func TestBus_UnsubscribeStopsDelivery(t *testing.T) {
	b := New("test")
	var got []string

	sub := b.Subscribe(LevelDebug, func(sender string, level Level, text string) {
		got = append(got, text)
	})

	b.Publish(LevelInfo, "one")
	sub.Unsubscribe()
	b.Publish(LevelInfo, "two")

	assert.Equal(t, []string{"one"}, got)
}

func TestBus_UnsubscribeIdempotent(t *testing.T) {
	b := New("test")
	sub := b.Subscribe(LevelDebug, func(string, Level, string) {})
	sub.Unsubscribe()
	assert.NotPanics(t, func() { sub.Unsubscribe() })
}

func TestBus_MinLevel(t *testing.T) {
	b := New("test")
	assert.Equal(t, LevelError+1, b.MinLevel())

	b.Subscribe(LevelWarning, func(string, Level, string) {})
	b.Subscribe(LevelDebug, func(string, Level, string) {})
	assert.Equal(t, LevelDebug, b.MinLevel())
}

func TestContext_PrefixesActiveLabels(t *testing.T) {
	b := New("test")
	var got string
	b.Subscribe(LevelDebug, func(sender string, level Level, text string) {
		got = text
	})

	outer := NewContext(b, "A")
	inner := NewContext(b, "B")
	b.Publish(LevelInfo, "msg")
	inner.Close()
	outer.Close()

	assert.Equal(t, "A: B: msg", got)
}

func TestContext_ReleasedAfterScope(t *testing.T) {
	b := New("test")
	var got string
	b.Subscribe(LevelDebug, func(sender string, level Level, text string) {
		got = text
	})

	func() {
		scope := NewContext(b, "A")
		defer scope.Close()
	}()

	b.Publish(LevelInfo, "msg")
	assert.Equal(t, "msg", got)
}

func TestBus_ChainForwardsPreservingSenderAndLevel(t *testing.T) {
	upstream := New("upstream")
	downstream := New("downstream")

	var sender string
	var level Level
	downstream.Subscribe(LevelDebug, func(s string, l Level, text string) {
		sender = s
		level = l
	})

	upstream.Subscribe(LevelDebug, downstream.Chain())
	upstream.Publish(LevelWarning, "hi")

	assert.Equal(t, "upstream", sender)
	assert.Equal(t, LevelWarning, level)
}

func TestBus_ConcurrentPublishSafe(t *testing.T) {
	b := New("test")
	var mu sync.Mutex
	count := 0
	b.Subscribe(LevelDebug, func(string, Level, string) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Publish(LevelInfo, "concurrent")
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, count)
}
