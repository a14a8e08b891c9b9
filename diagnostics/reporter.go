package diagnostics

import (
	"fmt"
	"io"
	"time"
)

// StreamReporter is a subscriber that formats published lines as
//
//	[<seconds-since-reporter-start> <sender>:<level>] <prefix><message>
//
// where prefix is "error: " for level >= LevelError, "warning: " for
// level >= LevelWarning, and empty otherwise. Lines at LevelWarning or
// above are written to the error stream; everything else to the output
// stream.
type StreamReporter struct {
	out, errOut io.Writer
	start       time.Time
	sub         *Subscription
}

// NewStreamReporter subscribes to bus at minLevel and begins formatting
// published messages immediately.
func NewStreamReporter(bus *Bus, out, errOut io.Writer, minLevel Level) *StreamReporter {
	r := &StreamReporter{out: out, errOut: errOut, start: now()}
	r.sub = bus.Subscribe(minLevel, r.deliver)
	return r
}

// Close unsubscribes the reporter from its bus. Safe to call more than
// once.
func (r *StreamReporter) Close() {
	r.sub.Unsubscribe()
}

func (r *StreamReporter) deliver(sender string, level Level, text string) {
	prefix := ""
	dest := r.out
	switch {
	case level >= LevelError:
		prefix = "error: "
		dest = r.errOut
	case level >= LevelWarning:
		prefix = "warning: "
		dest = r.errOut
	}

	elapsed := now().Sub(r.start).Seconds()
	fmt.Fprintf(dest, "[%.3f %s:%d] %s%s\n", elapsed, sender, int(level), prefix, text)
}

// now is a seam for tests that need deterministic elapsed-time output.
var now = time.Now
