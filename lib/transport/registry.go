package transport

import (
	"sync"

	"github.com/go-i2p/logger"
)

var log = logger.GetGoI2PLogger()

// TimeoutThreshold is the number of consecutive timeouts the head transport
// may accumulate; the next one demotes it.
const TimeoutThreshold = 5

// Registry keeps the ordered set of candidates used for API requests.
// Index 0 is the preferred candidate. The ordered set and the timeout counter
// of the head are guarded together by mu.
type Registry struct {
	mu sync.Mutex

	// the registered candidates in order of most preferred to least
	transports []*Candidate

	// consecutive timeouts of transports[0]
	timeoutCount int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	log.WithFields(logger.Fields{
		"at":     "NewRegistry",
		"reason": "initialization",
	}).Debug("creating transport registry")
	return &Registry{}
}

// Register appends c unless a candidate with the same identity is present.
func (r *Registry) Register(c *Candidate) {
	if c == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.indexOf(c) >= 0 {
		log.WithFields(logger.Fields{
			"at":        "(Registry) Register",
			"reason":    "already_registered",
			"transport": c.String(),
		}).Debug("transport already registered")
		return
	}
	if len(r.transports) == 0 {
		r.timeoutCount = 0
	}
	r.transports = append(r.transports, c)
	registrySize.Inc()
	log.WithFields(logger.Fields{
		"at":        "(Registry) Register",
		"reason":    "registered",
		"transport": c.String(),
		"position":  len(r.transports) - 1,
	}).Debug("transport registered")
}

// Unregister removes c if present.
func (r *Registry) Unregister(c *Candidate) {
	if c == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(c)
	if i < 0 {
		return
	}
	r.transports = append(r.transports[:i], r.transports[i+1:]...)
	if i == 0 {
		r.timeoutCount = 0
	}
	registrySize.Dec()
	log.WithFields(logger.Fields{
		"at":        "(Registry) Unregister",
		"reason":    "unregistered",
		"transport": c.String(),
		"was_head":  i == 0,
		"remaining": len(r.transports),
	}).Debug("transport unregistered")
}

// SetTransports replaces the whole ordered set with cs. Nil entries and
// repeated identities are dropped, the first occurrence wins. The timeout
// counter is reset on every call, even when the head stays the same.
func (r *Registry) SetTransports(cs []*Candidate) {
	next := make([]*Candidate, 0, len(cs))
	for _, c := range cs {
		if c == nil || containsCandidate(next, c) {
			continue
		}
		next = append(next, c)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	previous := headOf(r.transports)
	registrySize.Add(float64(len(next) - len(r.transports)))
	r.transports = next
	r.timeoutCount = 0
	registrySetTotal.Inc()
	log.WithFields(logger.Fields{
		"at":            "(Registry) SetTransports",
		"reason":        "transport_set_replaced",
		"previous_head": previous.String(),
		"head":          headOf(next).String(),
		"count":         len(next),
	}).Debug("transport set replaced")
}

// GetTransport returns the preferred candidate, or nil when none is registered.
func (r *Registry) GetTransport() *Candidate {
	r.mu.Lock()
	defer r.mu.Unlock()
	return headOf(r.transports)
}

// TransportDidFinishLoad forgives accumulated timeouts when c is the head.
// Reports for any other candidate are stale and ignored.
func (r *Registry) TransportDidFinishLoad(c *Candidate) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isHead(c) {
		r.dropStale("(Registry) TransportDidFinishLoad", c)
		return
	}
	r.timeoutCount = 0
}

// TransportDidTimeout records a timeout of c when c is the head. Once more
// than TimeoutThreshold consecutive timeouts are recorded the head moves to
// the tail and the counter restarts for the new head. A sole candidate is
// never demoted and its counter keeps growing.
func (r *Registry) TransportDidTimeout(c *Candidate) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isHead(c) {
		r.dropStale("(Registry) TransportDidTimeout", c)
		return
	}

	r.timeoutCount++
	registryTimeoutsTotal.WithLabelValues(c.Name()).Inc()
	if r.timeoutCount <= TimeoutThreshold {
		log.WithFields(logger.Fields{
			"at":            "(Registry) TransportDidTimeout",
			"reason":        "timeout_recorded",
			"transport":     c.String(),
			"timeout_count": r.timeoutCount,
		}).Debug("transport timed out")
		return
	}

	if len(r.transports) == 1 {
		log.WithFields(logger.Fields{
			"at":            "(Registry) TransportDidTimeout",
			"reason":        "sole_transport_failing",
			"transport":     c.String(),
			"timeout_count": r.timeoutCount,
			"impact":        "no alternative transport to fail over to",
		}).Warn("only transport keeps timing out")
		return
	}

	head := r.transports[0]
	copy(r.transports, r.transports[1:])
	r.transports[len(r.transports)-1] = head
	r.timeoutCount = 0
	registryDemotionsTotal.WithLabelValues(head.Name()).Inc()
	log.WithFields(logger.Fields{
		"at":        "(Registry) TransportDidTimeout",
		"reason":    "transport_demoted",
		"demoted":   head.String(),
		"head":      r.transports[0].String(),
		"threshold": TimeoutThreshold,
	}).Warn("demoted transport after repeated timeouts")
}

// Transports returns a copy of the ordered set.
func (r *Registry) Transports() []*Candidate {
	r.mu.Lock()
	defer r.mu.Unlock()
	transports := make([]*Candidate, len(r.transports))
	copy(transports, r.transports)
	return transports
}

// TimeoutCount returns the consecutive timeouts of the current head.
func (r *Registry) TimeoutCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timeoutCount
}

// Len returns the number of registered candidates.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.transports)
}

// caller must hold mu
func (r *Registry) indexOf(c *Candidate) int {
	for i, t := range r.transports {
		if t.Is(c) {
			return i
		}
	}
	return -1
}

// caller must hold mu
func (r *Registry) isHead(c *Candidate) bool {
	return c != nil && len(r.transports) > 0 && r.transports[0].Is(c)
}

func (r *Registry) dropStale(at string, c *Candidate) {
	registryStaleReportsTotal.Inc()
	log.WithFields(logger.Fields{
		"at":        at,
		"reason":    "stale_report",
		"transport": c.String(),
		"head":      headOf(r.transports).String(),
	}).Debug("ignoring report for transport that is not preferred")
}

func headOf(transports []*Candidate) *Candidate {
	if len(transports) == 0 {
		return nil
	}
	return transports[0]
}

func containsCandidate(cs []*Candidate, c *Candidate) bool {
	for _, t := range cs {
		if t.Is(c) {
			return true
		}
	}
	return false
}
