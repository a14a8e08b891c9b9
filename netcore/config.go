package netcore

import "time"

// Config carries the tunables the source hardcodes. Values are
// defaulted via functional options, matching the teacher's
// ServerOptions/ServerOptionsFn pattern in net/server.go.
type Config struct {
	// ChunkSize bounds a single read or write syscall. The reference
	// value is 65536; exposed here so tests can shrink it to exercise
	// partial-send/partial-receive paths without pushing 64 KiB.
	ChunkSize int

	// ListenBacklog is not applied by Endpoint: Connection mode always
	// listens with the OS default backlog that Go's net package picks
	// (typically SOMAXCONN), whatever this field holds.
	ListenBacklog int

	// StrictSendWouldBlockCloses restores the source's documented-buggy
	// behavior: treating a WouldBlock on send as a fatal error that
	// immediately closes the connection. Default false applies the
	// corrected behavior (retry with wait=true).
	StrictSendWouldBlockCloses bool

	// WakePollInterval bounds how long a worker's blocking socket call
	// may run before it re-checks the wake channel and stop flag. Small
	// values keep Close()/SendMessage() latency low at the cost of more
	// wake-ups.
	WakePollInterval time.Duration
}

// Option mutates a Config being built by DefaultConfig.
type Option func(*Config)

// DefaultConfig returns the reference defaults with any options applied
// on top.
func DefaultConfig(opts ...Option) Config {
	c := Config{
		ChunkSize:                  65536,
		ListenBacklog:              0,
		StrictSendWouldBlockCloses: false,
		WakePollInterval:           100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithChunkSize overrides the read/write chunk size.
func WithChunkSize(n int) Option {
	return func(c *Config) { c.ChunkSize = n }
}

// WithStrictSendWouldBlockCloses opts into the source's documented-buggy
// send-WouldBlock behavior for callers that need bug-compatible parity.
func WithStrictSendWouldBlockCloses(strict bool) Option {
	return func(c *Config) { c.StrictSendWouldBlockCloses = strict }
}

// WithWakePollInterval overrides how often a worker re-checks its wake
// channel while blocked in a socket call.
func WithWakePollInterval(d time.Duration) Option {
	return func(c *Config) { c.WakePollInterval = d }
}
