//go:build !windows

package mainloop

import "os"

// notifyPlatformSignals is a no-op on platforms without SIGBREAK.
func notifyPlatformSignals(sigChan chan<- os.Signal) {}
