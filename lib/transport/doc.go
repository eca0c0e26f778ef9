// Package transport implements transport selection and failover for API traffic.
//
// # Overview
//
// API requests can leave the process over several interchangeable transports:
//   - direct: the operating system HTTP stack (see lib/transport/direct)
//   - relay: the VPN tunnel process relays the request (see lib/transport/relay)
//
// # Registry
//
// The Registry holds an ordered set of Candidates. The candidate at index 0
// (the head) is handed out by GetTransport for every outgoing request:
//   - Register/Unregister change the set incrementally
//   - SetTransports replaces the set wholesale on tunnel state transitions
//   - TransportDidTimeout counts consecutive timeouts of the head and moves
//     it to the tail once TimeoutThreshold is exceeded
//   - TransportDidFinishLoad forgives the head after a successful request
//
// When only one candidate is registered the timeout counter is never reset by
// demotion, so a persistently broken sole transport keeps accumulating
// timeouts instead of being forgiven on every round.
//
// # Identity
//
// Candidates are compared by the opaque identifier assigned in NewCandidate,
// never by the contents of the wrapped Transport. Two candidates wrapping
// identically configured transports stay individually addressable.
//
// # Thread Safety
//
// All Registry methods are safe for concurrent use:
//   - The ordered set and the timeout counter share a single mutex
//   - No method performs I/O or blocks while holding it
//   - Outcome reports for a candidate that is no longer the head are dropped
//
// # Usage Example
//
//	reg := transport.NewRegistry()
//	c0 := transport.NewCandidate(direct.New(nil))
//	reg.Register(c0)
//
//	c := reg.GetTransport()
//	if c == nil {
//	    return transport.ErrNoTransportAvailable
//	}
//	resp, err := transport.Do(ctx, c, req)
//	switch {
//	case transport.IsTimeout(err):
//	    reg.TransportDidTimeout(c)
//	case err == nil:
//	    reg.TransportDidFinishLoad(c)
//	}
package transport
