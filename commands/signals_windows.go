//go:build windows

package commands

import (
	"os"

	"golang.org/x/sys/windows"
)

var stopSignals = []os.Signal{os.Interrupt, windows.SIGTERM}
