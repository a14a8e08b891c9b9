// Package sockopt applies socket options needed before bind, namely
// SO_REUSEADDR for MulticastReceive. Split into platform files behind
// build tags, matching the platform-macro patchwork the pack's
// cross-platform networking repos (joshuafuller-beacon's
// internal/transport, Psiphon-tunnel-core's psiphon/net_windows.go) use
// for the same concern.
package sockopt

import "net"

// ReuseAddrListenConfig returns a net.ListenConfig whose Control hook
// sets SO_REUSEADDR on the socket before bind.
func ReuseAddrListenConfig() net.ListenConfig {
	return net.ListenConfig{Control: controlReuseAddr}
}
