//go:build windows

package signals

import "os"

var notifySignals = []os.Signal{os.Interrupt}

// no SIGHUP on windows
func isReload(os.Signal) bool {
	return false
}
