//go:build !windows

package commands

import (
	"os"

	"golang.org/x/sys/unix"
)

// docker stops containers with SIGTERM
var stopSignals = []os.Signal{os.Interrupt, unix.SIGTERM}
