// Package tunnel models the VPN tunnel and device state reported by the
// tunnel daemon and distributes changes to observers.
package tunnel

import (
	"strings"

	"github.com/samber/oops"
)

// TunnelState is the lifecycle phase of the VPN connection.
type TunnelState int

const (
	Disconnected TunnelState = iota
	Connecting
	Connected
	Reconnecting
	Disconnecting
	PendingReconnect
	WaitingForConnectivity

	// UnknownTunnelState stands in for a state name this build does not
	// know. It is never produced by ParseTunnelState.
	UnknownTunnelState
)

var tunnelStateNames = map[TunnelState]string{
	Disconnected:           "disconnected",
	Connecting:             "connecting",
	Connected:              "connected",
	Reconnecting:           "reconnecting",
	Disconnecting:          "disconnecting",
	PendingReconnect:       "pending_reconnect",
	WaitingForConnectivity: "waiting_for_connectivity",
}

func (s TunnelState) String() string {
	if name, ok := tunnelStateNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalText encodes the state by name.
func (s TunnelState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *TunnelState) UnmarshalText(text []byte) error {
	parsed, err := ParseTunnelState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseTunnelState accepts snake_case, camelCase and kebab-case names.
func ParseTunnelState(name string) (TunnelState, error) {
	key := normalize(name)
	for state, n := range tunnelStateNames {
		if normalize(n) == key {
			return state, nil
		}
	}
	return Disconnected, oops.Errorf("unknown tunnel state %q", name)
}

// DeviceState is the validity of the local account credential.
type DeviceState int

const (
	LoggedOut DeviceState = iota
	LoggedIn
	Revoked
)

var deviceStateNames = map[DeviceState]string{
	LoggedOut: "logged_out",
	LoggedIn:  "logged_in",
	Revoked:   "revoked",
}

func (s DeviceState) String() string {
	if name, ok := deviceStateNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalText encodes the state by name.
func (s DeviceState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *DeviceState) UnmarshalText(text []byte) error {
	parsed, err := ParseDeviceState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseDeviceState accepts snake_case, camelCase and kebab-case names.
func ParseDeviceState(name string) (DeviceState, error) {
	key := normalize(name)
	for state, n := range deviceStateNames {
		if normalize(n) == key {
			return state, nil
		}
	}
	return LoggedOut, oops.Errorf("unknown device state %q", name)
}

// Status is the pair of states the transport selection depends on.
type Status struct {
	Tunnel TunnelState `json:"tunnel_state"`
	Device DeviceState `json:"device_state"`
}

func normalize(name string) string {
	r := strings.NewReplacer("_", "", "-", "", " ", "")
	return strings.ToLower(r.Replace(strings.TrimSpace(name)))
}
