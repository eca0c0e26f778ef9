// Package signals dispatches process signals to registered handlers.
//
// SIGHUP runs the reload handlers. SIGINT and SIGTERM run the pre-shutdown
// handlers, bounded by the graceful timeout, and then the interrupt handlers.
// Handlers run in registration order on the goroutine calling Handle and a
// panicking handler is logged without stopping the others.
package signals

import (
	"context"
	"os"
	"os/signal"
	"sync"

	"github.com/go-i2p/logger"
)

var log = logger.GetGoI2PLogger()

// Handler is a function called when a signal is received.
type Handler func()

// HandlerID identifies a registered handler for deregistration.
type HandlerID int

// InvalidHandler is returned when registering a nil handler.
const InvalidHandler HandlerID = -1

type registeredHandler struct {
	id HandlerID
	fn Handler
}

// handlerList is an ordered set of handlers of one kind.
type handlerList struct {
	kind     string
	mu       sync.RWMutex
	handlers []registeredHandler
}

var (
	idMu   sync.Mutex
	nextID HandlerID

	reloaders    = &handlerList{kind: "reload"}
	interrupters = &handlerList{kind: "interrupt"}
	preShutdown  = &handlerList{kind: "pre_shutdown"}
)

func allocateID() HandlerID {
	idMu.Lock()
	defer idMu.Unlock()
	id := nextID
	nextID++
	return id
}

func (l *handlerList) add(f Handler) HandlerID {
	if f == nil {
		return InvalidHandler
	}
	id := allocateID()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers = append(l.handlers, registeredHandler{id: id, fn: f})
	return id
}

func (l *handlerList) remove(id HandlerID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, h := range l.handlers {
		if h.id == id {
			l.handlers = append(l.handlers[:i], l.handlers[i+1:]...)
			return
		}
	}
}

func (l *handlerList) count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.handlers)
}

func (l *handlerList) snapshot() []registeredHandler {
	l.mu.RLock()
	defer l.mu.RUnlock()
	snapshot := make([]registeredHandler, len(l.handlers))
	copy(snapshot, l.handlers)
	return snapshot
}

// run calls every handler outside the lock so handlers may deregister.
func (l *handlerList) run() {
	for _, h := range l.snapshot() {
		l.call(h)
	}
}

func (l *handlerList) call(h registeredHandler) {
	defer func() {
		if r := recover(); r != nil {
			log.WithFields(logger.Fields{
				"at":      "signals.dispatch",
				"reason":  "handler_panicked",
				"kind":    l.kind,
				"handler": int(h.id),
				"panic":   r,
			}).Error("signal handler panicked")
		}
	}()
	h.fn()
}

// RegisterReloadHandler registers a handler called on SIGHUP.
func RegisterReloadHandler(f Handler) HandlerID {
	return reloaders.add(f)
}

// DeregisterReloadHandler removes a reload handler. Unknown ids are ignored.
func DeregisterReloadHandler(id HandlerID) {
	reloaders.remove(id)
}

// RegisterInterruptHandler registers a handler called on SIGINT/SIGTERM.
func RegisterInterruptHandler(f Handler) HandlerID {
	return interrupters.add(f)
}

// DeregisterInterruptHandler removes an interrupt handler. Unknown ids are ignored.
func DeregisterInterruptHandler(id HandlerID) {
	interrupters.remove(id)
}

// Handle waits for signals and dispatches them until ctx is done.
func Handle(ctx context.Context) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, notifySignals...)
	defer signal.Stop(sigChan)

	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigChan:
			dispatch(sig)
		}
	}
}

func dispatch(sig os.Signal) {
	log.WithFields(logger.Fields{
		"at":     "signals.Handle",
		"reason": "signal_received",
		"signal": sig.String(),
	}).Debug("dispatching signal")
	if isReload(sig) {
		reloaders.run()
		return
	}
	handlePreShutdown()
	interrupters.run()
}
