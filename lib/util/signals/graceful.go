package signals

import (
	"sync"
	"time"

	"github.com/go-i2p/logger"
)

// defaultGracefulTimeout bounds the pre-shutdown handlers.
const defaultGracefulTimeout = 30 * time.Second

var (
	timeoutMu       sync.RWMutex
	gracefulTimeout = defaultGracefulTimeout
)

// RegisterPreShutdownHandler registers a handler that runs before the
// interrupt handlers, such as detaching observers from a status source while
// the transports are still usable.
func RegisterPreShutdownHandler(f Handler) HandlerID {
	return preShutdown.add(f)
}

// DeregisterPreShutdownHandler removes a pre-shutdown handler.
func DeregisterPreShutdownHandler(id HandlerID) {
	preShutdown.remove(id)
}

// SetGracefulTimeout sets how long pre-shutdown handlers may run. Zero or
// negative restores the default of 30 seconds.
func SetGracefulTimeout(timeout time.Duration) {
	timeoutMu.Lock()
	defer timeoutMu.Unlock()
	if timeout <= 0 {
		gracefulTimeout = defaultGracefulTimeout
		return
	}
	gracefulTimeout = timeout
}

// handlePreShutdown runs the pre-shutdown handlers and reports whether they
// all finished within the graceful timeout. A hung handler is abandoned.
func handlePreShutdown() bool {
	if preShutdown.count() == 0 {
		return true
	}
	timeoutMu.RLock()
	timeout := gracefulTimeout
	timeoutMu.RUnlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		preShutdown.run()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		log.WithFields(logger.Fields{
			"at":          "signals.handlePreShutdown",
			"reason":      "graceful_timeout",
			"timeout_sec": timeout.Seconds(),
		}).Warn("pre-shutdown handlers did not finish in time")
		return false
	}
}
