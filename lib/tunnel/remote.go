package tunnel

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-i2p/go-apitransport/lib/jsonrpc"
	"github.com/go-i2p/logger"
)

const (
	// SubscribeMethod asks the daemon to push status notifications.
	SubscribeMethod = "subscribe_tunnel_status"
	// StatusNotification is the method name of pushed status frames.
	StatusNotification = "tunnel_status"
	// DefaultReconnectInterval is the pause between subscription attempts.
	DefaultReconnectInterval = 5 * time.Second
)

// statusParams is the payload of a tunnel_status notification. Either field
// may be omitted when only one of the states changed. The fields are decoded
// one by one so that a bad tunnel state does not hide a good device state.
type statusParams struct {
	TunnelState json.RawMessage `json:"tunnel_state,omitempty"`
	DeviceState json.RawMessage `json:"device_state,omitempty"`
}

// RemoteSource follows the tunnel daemon's status notifications and
// republishes them to local observers.
type RemoteSource struct {
	*Broadcaster
	client            *jsonrpc.Client
	reconnectInterval time.Duration
}

// NewRemoteSource creates a source subscribing through client.
func NewRemoteSource(client *jsonrpc.Client, reconnectInterval time.Duration) *RemoteSource {
	if reconnectInterval <= 0 {
		reconnectInterval = DefaultReconnectInterval
	}
	return &RemoteSource{
		Broadcaster:       NewBroadcaster(Status{Tunnel: Disconnected, Device: LoggedOut}),
		client:            client,
		reconnectInterval: reconnectInterval,
	}
}

// Run keeps a subscription open until ctx is done, reconnecting after
// failures. It returns ctx.Err().
func (r *RemoteSource) Run(ctx context.Context) error {
	for {
		err := r.follow(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.WithFields(logger.Fields{
			"at":           "(RemoteSource) Run",
			"reason":       "subscription_lost",
			"url":          r.client.URL(),
			"error":        err.Error(),
			"retry_in_sec": r.reconnectInterval.Seconds(),
		}).Warn("lost tunnel status subscription, reconnecting")

		timer := time.NewTimer(r.reconnectInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// follow runs one subscription until the connection breaks.
func (r *RemoteSource) follow(ctx context.Context) error {
	conn, err := r.client.Dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	var initial Status
	if err := conn.Call(ctx, SubscribeMethod, nil, &initial); err != nil {
		return err
	}
	log.WithFields(logger.Fields{
		"at":           "(RemoteSource) follow",
		"reason":       "subscribed",
		"tunnel_state": initial.Tunnel.String(),
		"device_state": initial.Device.String(),
	}).Debug("subscribed to tunnel status")
	r.Publish(initial)

	for {
		msg, err := conn.Next(ctx)
		if err != nil {
			return err
		}
		if msg.Method != StatusNotification {
			log.WithFields(logger.Fields{
				"at":     "(RemoteSource) follow",
				"reason": "unknown_notification",
				"method": msg.Method,
			}).Debug("ignoring notification")
			continue
		}
		r.apply(msg.Params)
	}
}

func (r *RemoteSource) apply(raw json.RawMessage) {
	var params statusParams
	if err := json.Unmarshal(raw, &params); err != nil {
		log.WithFields(logger.Fields{
			"at":     "(RemoteSource) apply",
			"reason": "malformed_notification",
			"error":  err.Error(),
		}).Warn("dropping malformed tunnel status notification")
		return
	}
	if len(params.DeviceState) > 0 {
		if state, ok := decodeDeviceState(params.DeviceState); ok {
			r.PublishDeviceState(state)
		}
	}
	if len(params.TunnelState) > 0 {
		r.PublishTunnelState(decodeTunnelState(params.TunnelState))
	}
}

// decodeTunnelState maps names this build does not know to
// UnknownTunnelState, which routes traffic directly.
func decodeTunnelState(raw json.RawMessage) TunnelState {
	var name string
	if err := json.Unmarshal(raw, &name); err != nil {
		log.WithFields(logger.Fields{
			"at":     "(RemoteSource) apply",
			"reason": "malformed_tunnel_state",
			"error":  err.Error(),
		}).Warn("treating undecodable tunnel state as unknown")
		return UnknownTunnelState
	}
	state, err := ParseTunnelState(name)
	if err != nil {
		log.WithFields(logger.Fields{
			"at":           "(RemoteSource) apply",
			"reason":       "unknown_tunnel_state",
			"tunnel_state": name,
		}).Warn("treating unrecognised tunnel state as unknown")
		return UnknownTunnelState
	}
	return state
}

// decodeDeviceState drops unknown device states; there is no safe default
// between logged in and revoked.
func decodeDeviceState(raw json.RawMessage) (DeviceState, bool) {
	var state DeviceState
	if err := json.Unmarshal(raw, &state); err != nil {
		log.WithFields(logger.Fields{
			"at":     "(RemoteSource) apply",
			"reason": "unknown_device_state",
			"error":  err.Error(),
		}).Warn("dropping unrecognised device state")
		return LoggedOut, false
	}
	return state, true
}
