package monitor

import "github.com/go-i2p/go-apitransport/lib/tunnel"

// Path is a kind of route API traffic can take.
type Path int

const (
	// PathDirect uses the operating system's network stack.
	PathDirect Path = iota
	// PathTunneled relays the request through the tunnel process.
	PathTunneled
)

func (p Path) String() string {
	switch p {
	case PathDirect:
		return "direct"
	case PathTunneled:
		return "tunneled"
	default:
		return "unknown"
	}
}

// DesiredPaths derives the ordered transport paths for a tunnel/device state
// pair. The tunnel state decides, except that a revoked device behind a
// connected tunnel must go through the tunnel's relay.
func DesiredPaths(ts tunnel.TunnelState, ds tunnel.DeviceState) []Path {
	switch ts {
	case tunnel.Connected:
		if ds == tunnel.Revoked {
			return []Path{PathTunneled}
		}
		return []Path{PathDirect}
	case tunnel.Connecting, tunnel.Reconnecting:
		return []Path{PathTunneled}
	default:
		// pendingReconnect, waitingForConnectivity, disconnecting, disconnected
		return []Path{PathDirect}
	}
}
