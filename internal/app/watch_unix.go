//go:build !windows

package app

import (
	"fmt"
	"io"
	"os"
	"syscall"
)

// shutdownSignals are the OS signals that trigger graceful shutdown.
var shutdownSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}

// stopDaemon signals the daemon named in the PID file to finish its last
// training pass and exit.
func stopDaemon(out io.Writer) error {
	pid, err := readPID()
	if err != nil {
		return fmt.Errorf("no daemon running (could not read PID file: %v)", err)
	}

	if !processExists(pid) {
		_ = os.Remove(pidFilePath())
		return fmt.Errorf("no daemon running (PID %d is not active, cleaned up stale PID file)", pid)
	}

	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to stop daemon (PID %d): %w", pid, err)
	}

	_ = os.Remove(pidFilePath())
	fmt.Fprintf(out, "Stopped daemon (PID %d)\n", pid)
	return nil
}

// processExists reports whether pid is alive, probing with signal 0.
func processExists(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}
