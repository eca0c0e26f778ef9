// Package monitor keeps the transport registry in line with the tunnel state.
package monitor

import (
	"sync"

	"github.com/go-i2p/go-apitransport/lib/transport"
	"github.com/go-i2p/go-apitransport/lib/tunnel"
	"github.com/go-i2p/logger"
)

var log = logger.GetGoI2PLogger()

var initialStatus = tunnel.Status{Tunnel: tunnel.Disconnected, Device: tunnel.LoggedOut}

// Compile-time check that Monitor observes tunnel state
var _ tunnel.Observer = (*Monitor)(nil)

// Monitor derives the registry contents from tunnel and device state and
// forwards request outcomes to the registry.
type Monitor struct {
	registry *transport.Registry
	source   tunnel.StatusSource
	subID    tunnel.SubscriptionID

	// candidates per path; a nil entry means the path is not configured
	direct   *transport.Candidate
	tunneled *transport.Candidate

	// mu serialises state changes so derived sets are applied in order
	mu     sync.Mutex
	status tunnel.Status
	closed bool
}

// New registers direct with reg and subscribes to source. When source
// already reports a state other than disconnected and logged out, the
// registry is brought in line with it before New returns. Either candidate
// may be nil when that path is unavailable in this process.
func New(reg *transport.Registry, source tunnel.StatusSource, direct, tunneled *transport.Candidate) *Monitor {
	m := &Monitor{
		registry: reg,
		source:   source,
		direct:   direct,
		tunneled: tunneled,
		subID:    tunnel.InvalidSubscription,
		status:   initialStatus,
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	reg.Register(direct)
	if source != nil {
		m.subID = source.Subscribe(m)
		m.status = source.Status()
		if m.status != initialStatus {
			m.apply("monitor.New")
		}
	}
	log.WithFields(logger.Fields{
		"at":       "monitor.New",
		"reason":   "initialization",
		"direct":   direct.String(),
		"tunneled": tunneled.String(),
	}).Debug("transport monitor started")
	return m
}

// Close unsubscribes from the status source. Calling it twice is harmless.
func (m *Monitor) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	if m.source != nil {
		m.source.Unsubscribe(m.subID)
	}
	log.WithFields(logger.Fields{
		"at":     "(Monitor) Close",
		"reason": "unsubscribed",
	}).Debug("transport monitor stopped")
}

// TunnelStatusChanged applies a new tunnel state.
func (m *Monitor) TunnelStatusChanged(state tunnel.TunnelState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status.Tunnel = state
	m.apply("(Monitor) TunnelStatusChanged")
}

// DeviceStateChanged applies a new device state.
func (m *Monitor) DeviceStateChanged(state tunnel.DeviceState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status.Device = state
	m.apply("(Monitor) DeviceStateChanged")
}

// Status returns the last applied state pair.
func (m *Monitor) Status() tunnel.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// GetTransport returns the registry's preferred candidate.
func (m *Monitor) GetTransport() *transport.Candidate {
	return m.registry.GetTransport()
}

// Transports returns the registry's ordered set.
func (m *Monitor) Transports() []*transport.Candidate {
	return m.registry.Transports()
}

// TimeoutCount returns the consecutive timeouts of the preferred candidate.
func (m *Monitor) TimeoutCount() int {
	return m.registry.TimeoutCount()
}

// TransportDidTimeout forwards a timeout report to the registry.
func (m *Monitor) TransportDidTimeout(c *transport.Candidate) {
	m.registry.TransportDidTimeout(c)
}

// TransportDidFinishLoad forwards a success report to the registry.
func (m *Monitor) TransportDidFinishLoad(c *transport.Candidate) {
	m.registry.TransportDidFinishLoad(c)
}

// Candidates maps paths to the configured candidates, skipping paths
// without one.
func (m *Monitor) Candidates(paths []Path) []*transport.Candidate {
	candidates := make([]*transport.Candidate, 0, len(paths))
	for _, p := range paths {
		c := m.candidateFor(p)
		if c == nil {
			log.WithFields(logger.Fields{
				"at":     "(Monitor) Candidates",
				"reason": "path_not_configured",
				"path":   p.String(),
				"impact": "requests needing this path have no transport",
			}).Warn("skipping unconfigured transport path")
			continue
		}
		candidates = append(candidates, c)
	}
	return candidates
}

func (m *Monitor) candidateFor(p Path) *transport.Candidate {
	switch p {
	case PathDirect:
		return m.direct
	case PathTunneled:
		return m.tunneled
	default:
		return nil
	}
}

// caller must hold mu
func (m *Monitor) apply(at string) {
	if m.closed {
		return
	}
	paths := DesiredPaths(m.status.Tunnel, m.status.Device)
	candidates := m.Candidates(paths)
	log.WithFields(logger.Fields{
		"at":           at,
		"reason":       "derived_transport_set",
		"tunnel_state": m.status.Tunnel.String(),
		"device_state": m.status.Device.String(),
		"paths":        paths,
		"transports":   len(candidates),
	}).Debug("applying transport set for tunnel state")
	m.registry.SetTransports(candidates)
}
