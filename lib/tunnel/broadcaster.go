package tunnel

import (
	"sync"

	"github.com/go-i2p/logger"
)

var log = logger.GetGoI2PLogger()

// Observer is notified about tunnel and device state changes.
type Observer interface {
	TunnelStatusChanged(state TunnelState)
	DeviceStateChanged(state DeviceState)
}

// SubscriptionID identifies a subscription for Unsubscribe.
type SubscriptionID int

// InvalidSubscription is returned when subscribing a nil observer.
const InvalidSubscription SubscriptionID = -1

// StatusSource delivers state changes in the order they occurred.
type StatusSource interface {
	Status() Status
	Subscribe(o Observer) SubscriptionID
	Unsubscribe(id SubscriptionID)
}

// Compile-time check that Broadcaster implements StatusSource
var _ StatusSource = (*Broadcaster)(nil)

type subscription struct {
	id       SubscriptionID
	observer Observer
}

// Broadcaster holds the current Status and an explicit subscription list.
// Observers are called outside the lock, in subscription order, from the
// publishing goroutine.
type Broadcaster struct {
	mu     sync.RWMutex
	status Status
	subs   []subscription
	nextID SubscriptionID
	// serialises publishing so observers see changes in order
	publishMu sync.Mutex
}

// NewBroadcaster creates a broadcaster starting from initial.
func NewBroadcaster(initial Status) *Broadcaster {
	return &Broadcaster{status: initial}
}

// Status returns the last published pair.
func (b *Broadcaster) Status() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}

// Subscribe adds o to the subscription list. Nil observers are ignored.
func (b *Broadcaster) Subscribe(o Observer) SubscriptionID {
	if o == nil {
		return InvalidSubscription
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.subs = append(b.subs, subscription{id: id, observer: o})
	log.WithFields(logger.Fields{
		"at":          "(Broadcaster) Subscribe",
		"reason":      "subscribed",
		"id":          id,
		"subscribers": len(b.subs),
	}).Debug("observer subscribed")
	return id
}

// Unsubscribe removes the subscription with id. Unknown ids are ignored.
func (b *Broadcaster) Unsubscribe(id SubscriptionID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			log.WithFields(logger.Fields{
				"at":          "(Broadcaster) Unsubscribe",
				"reason":      "unsubscribed",
				"id":          id,
				"subscribers": len(b.subs),
			}).Debug("observer unsubscribed")
			return
		}
	}
}

// Subscribers returns the number of active subscriptions.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// PublishTunnelState records state and notifies every observer.
func (b *Broadcaster) PublishTunnelState(state TunnelState) {
	b.publishMu.Lock()
	defer b.publishMu.Unlock()

	b.mu.Lock()
	b.status.Tunnel = state
	snapshot := b.snapshot()
	b.mu.Unlock()

	log.WithFields(logger.Fields{
		"at":           "(Broadcaster) PublishTunnelState",
		"reason":       "tunnel_state_changed",
		"tunnel_state": state.String(),
		"subscribers":  len(snapshot),
	}).Debug("publishing tunnel state")
	for _, s := range snapshot {
		dispatch("tunnel_state", func() { s.observer.TunnelStatusChanged(state) })
	}
}

// PublishDeviceState records state and notifies every observer.
func (b *Broadcaster) PublishDeviceState(state DeviceState) {
	b.publishMu.Lock()
	defer b.publishMu.Unlock()

	b.mu.Lock()
	b.status.Device = state
	snapshot := b.snapshot()
	b.mu.Unlock()

	log.WithFields(logger.Fields{
		"at":           "(Broadcaster) PublishDeviceState",
		"reason":       "device_state_changed",
		"device_state": state.String(),
		"subscribers":  len(snapshot),
	}).Debug("publishing device state")
	for _, s := range snapshot {
		dispatch("device_state", func() { s.observer.DeviceStateChanged(state) })
	}
}

// Publish records both states. Observers get the device state first so that
// the tunnel notification is derived from the complete new pair.
func (b *Broadcaster) Publish(status Status) {
	b.PublishDeviceState(status.Device)
	b.PublishTunnelState(status.Tunnel)
}

// caller must hold mu
func (b *Broadcaster) snapshot() []subscription {
	snapshot := make([]subscription, len(b.subs))
	copy(snapshot, b.subs)
	return snapshot
}

func dispatch(kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.WithFields(logger.Fields{
				"at":     "(Broadcaster) dispatch",
				"reason": "observer_panicked",
				"kind":   kind,
				"panic":  r,
			}).Error("observer panicked while handling state change")
		}
	}()
	fn()
}
