//go:build windows

package mainloop

import (
	"os"
	"os/signal"
	"syscall"
)

// notifyPlatformSignals additionally wires SIGBREAK, the one platform where
// it's defined.
func notifyPlatformSignals(sigChan chan<- os.Signal) {
	signal.Notify(sigChan, syscall.SIGBREAK)
}
