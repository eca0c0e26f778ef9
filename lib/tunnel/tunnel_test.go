package tunnel

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/go-i2p/go-apitransport/lib/jsonrpc"
	"github.com/go-i2p/go-apitransport/lib/jsonrpc/jsonrpctest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingObserver captures every callback in order
type recordingObserver struct {
	mu     sync.Mutex
	events []string
}

func (o *recordingObserver) TunnelStatusChanged(state TunnelState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, "tunnel:"+state.String())
}

func (o *recordingObserver) DeviceStateChanged(state DeviceState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, "device:"+state.String())
}

func (o *recordingObserver) Events() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.events...)
}

type panickingObserver struct{}

func (panickingObserver) TunnelStatusChanged(TunnelState) { panic("boom") }
func (panickingObserver) DeviceStateChanged(DeviceState)  { panic("boom") }

// TestParseTunnelState tests name parsing for every spelling the daemon uses
func TestParseTunnelState(t *testing.T) {
	cases := map[string]TunnelState{
		"connected":                Connected,
		"Connecting":               Connecting,
		"pendingReconnect":         PendingReconnect,
		"pending_reconnect":        PendingReconnect,
		"waiting-for-connectivity": WaitingForConnectivity,
		"waitingForConnectivity":   WaitingForConnectivity,
		"disconnecting":            Disconnecting,
		"reconnecting":             Reconnecting,
		"disconnected":             Disconnected,
	}
	for name, want := range cases {
		got, err := ParseTunnelState(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := ParseTunnelState("error")
	assert.Error(t, err)
	assert.Equal(t, "unknown", TunnelState(99).String())
}

// TestParseDeviceState tests device state names
func TestParseDeviceState(t *testing.T) {
	for name, want := range map[string]DeviceState{"loggedIn": LoggedIn, "logged_out": LoggedOut, "REVOKED": Revoked} {
		got, err := ParseDeviceState(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got)
	}
	_, err := ParseDeviceState("")
	assert.Error(t, err)
}

// TestStatusJSON tests the wire encoding of a status pair
func TestStatusJSON(t *testing.T) {
	data, err := json.Marshal(Status{Tunnel: WaitingForConnectivity, Device: Revoked})
	require.NoError(t, err)
	assert.JSONEq(t, `{"tunnel_state":"waiting_for_connectivity","device_state":"revoked"}`, string(data))

	var decoded Status
	require.NoError(t, json.Unmarshal([]byte(`{"tunnel_state":"connected","device_state":"loggedIn"}`), &decoded))
	assert.Equal(t, Status{Tunnel: Connected, Device: LoggedIn}, decoded)

	assert.Error(t, json.Unmarshal([]byte(`{"tunnel_state":"bogus"}`), &decoded))
}

// TestBroadcasterSubscribeUnsubscribe tests explicit subscription management
func TestBroadcasterSubscribeUnsubscribe(t *testing.T) {
	b := NewBroadcaster(Status{})
	first := &recordingObserver{}
	second := &recordingObserver{}

	id1 := b.Subscribe(first)
	id2 := b.Subscribe(second)
	assert.NotEqual(t, id1, id2)
	assert.Equal(t, 2, b.Subscribers())
	assert.Equal(t, InvalidSubscription, b.Subscribe(nil))

	b.PublishTunnelState(Connecting)
	b.Unsubscribe(id1)
	b.Unsubscribe(id1)
	assert.Equal(t, 1, b.Subscribers())
	b.PublishDeviceState(Revoked)

	assert.Equal(t, []string{"tunnel:connecting"}, first.Events())
	assert.Equal(t, []string{"tunnel:connecting", "device:revoked"}, second.Events())
	assert.Equal(t, Status{Tunnel: Connecting, Device: Revoked}, b.Status())
}

// TestBroadcasterPublishOrder tests that Publish delivers the device state first
func TestBroadcasterPublishOrder(t *testing.T) {
	b := NewBroadcaster(Status{})
	o := &recordingObserver{}
	b.Subscribe(o)

	b.Publish(Status{Tunnel: Connected, Device: LoggedIn})

	assert.Equal(t, []string{"device:logged_in", "tunnel:connected"}, o.Events())
}

// TestBroadcasterRecoversObserverPanic tests that one bad observer does not starve others
func TestBroadcasterRecoversObserverPanic(t *testing.T) {
	b := NewBroadcaster(Status{})
	o := &recordingObserver{}
	b.Subscribe(panickingObserver{})
	b.Subscribe(o)

	assert.NotPanics(t, func() { b.PublishTunnelState(Reconnecting) })
	assert.Equal(t, []string{"tunnel:reconnecting"}, o.Events())
}

func newStatusDaemon(initial Status, subscribed chan<- struct{}) *jsonrpctest.Server {
	return jsonrpctest.NewServer(map[string]jsonrpctest.HandlerFunc{
		SubscribeMethod: func(ctx context.Context, params json.RawMessage) (interface{}, *jsonrpc.RPCError) {
			select {
			case subscribed <- struct{}{}:
			default:
			}
			return initial, nil
		},
	})
}

// TestRemoteSourceFollowsNotifications tests subscription and republishing
func TestRemoteSourceFollowsNotifications(t *testing.T) {
	subscribed := make(chan struct{}, 4)
	daemon := newStatusDaemon(Status{Tunnel: Connected, Device: LoggedIn}, subscribed)
	defer daemon.Close()

	client, err := jsonrpc.NewClient(daemon.URL)
	require.NoError(t, err)
	source := NewRemoteSource(client, 50*time.Millisecond)
	o := &recordingObserver{}
	source.Subscribe(o)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- source.Run(ctx) }()

	select {
	case <-subscribed:
	case <-time.After(5 * time.Second):
		t.Fatal("source never subscribed")
	}
	require.Eventually(t, func() bool {
		return source.Status() == Status{Tunnel: Connected, Device: LoggedIn}
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, daemon.Notify(ctx, StatusNotification, map[string]string{"device_state": "revoked"}))
	require.NoError(t, daemon.Notify(ctx, "unrelated", map[string]string{}))
	require.NoError(t, daemon.WriteRaw(ctx, []byte(`{"jsonrpc":"2.0","method":"tunnel_status","params":{"tunnel_state":"bogus"}}`)))
	require.NoError(t, daemon.Notify(ctx, StatusNotification, map[string]string{"tunnel_state": "reconnecting"}))

	require.Eventually(t, func() bool {
		return source.Status() == Status{Tunnel: Reconnecting, Device: Revoked}
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{
		"device:logged_in", "tunnel:connected",
		"device:revoked",
		"tunnel:unknown",
		"tunnel:reconnecting",
	}, o.Events())

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

// TestRemoteSourceUnknownTunnelStateKeepsDeviceState tests that one bad field
// does not discard the rest of a notification
func TestRemoteSourceUnknownTunnelStateKeepsDeviceState(t *testing.T) {
	source := NewRemoteSource(&jsonrpc.Client{}, time.Second)
	o := &recordingObserver{}
	source.Subscribe(o)

	source.apply(json.RawMessage(`{"tunnel_state":"error","device_state":"revoked"}`))
	source.apply(json.RawMessage(`{"tunnel_state":7}`))
	source.apply(json.RawMessage(`{"device_state":"suspended","tunnel_state":"connected"}`))
	source.apply(json.RawMessage(`[1,2]`))

	assert.Equal(t, []string{
		"device:revoked", "tunnel:unknown",
		"tunnel:unknown",
		"tunnel:connected",
	}, o.Events())
	assert.Equal(t, Status{Tunnel: Connected, Device: Revoked}, source.Status())
}

// TestRemoteSourceReconnects tests that a dropped subscription is re-established
func TestRemoteSourceReconnects(t *testing.T) {
	subscribed := make(chan struct{}, 4)
	daemon := newStatusDaemon(Status{Tunnel: Connecting, Device: LoggedIn}, subscribed)
	defer daemon.Close()

	client, err := jsonrpc.NewClient(daemon.URL)
	require.NoError(t, err)
	source := NewRemoteSource(client, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go source.Run(ctx)

	<-subscribed
	daemon.DropConnections()

	select {
	case <-subscribed:
	case <-time.After(5 * time.Second):
		t.Fatal("source did not resubscribe")
	}
	assert.GreaterOrEqual(t, daemon.Calls(SubscribeMethod), 2)
}
