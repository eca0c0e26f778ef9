// Package tunnel carries the tunnel daemon's state into the process.
//
// # Overview
//
// The tunnel daemon reports two independent states: the TunnelState of the
// VPN tunnel and the DeviceState of the account device. Observers learn
// about changes through a StatusSource.
//
// # Sources
//
// Broadcaster is an in-process StatusSource with an explicit subscription
// list. RemoteSource embeds a Broadcaster and feeds it from the daemon's
// tunnel_status notifications over JSON-RPC, resubscribing after the
// connection drops.
//
// # Ordering
//
// Observers are called in subscription order on the publishing goroutine,
// one change at a time. A status pair is delivered device state first.
package tunnel
