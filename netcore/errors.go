package netcore

import "github.com/pkg/errors"

// Sentinel errors covering the failure kinds a caller can distinguish
// programmatically. Configuration failures surface as a false return
// from Open, or an error from Connect, alongside an error-level
// diagnostic carrying the matching sentinel's text;
// ErrProcessBeforeConnect is returned directly since Process has an
// error return.
var (
	// ErrBindFailed covers socket creation, bind, listen, and
	// multicast-membership setup failures.
	ErrBindFailed = errors.New("netcore: bind failed")

	// ErrAlreadyOpen describes Open called on an Endpoint that is
	// already open.
	ErrAlreadyOpen = errors.New("netcore: already open")

	// ErrProcessBeforeConnect is the programmer-error case: a caller
	// invoked Process on a Connection that never successfully connected
	// or was constructed from an accepted socket.
	ErrProcessBeforeConnect = errors.New("netcore: process called before connect")

	// ErrWrongMode describes a mode-specific operation (e.g. SendPacket)
	// invoked on an Endpoint opened in an incompatible mode.
	ErrWrongMode = errors.New("netcore: operation not valid for this endpoint mode")
)
