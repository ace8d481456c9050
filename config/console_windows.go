//go:build windows

package config

import (
	"os"

	"golang.org/x/sys/windows"
)

// EnableColorOutput turns on VT100 sequence processing for console stream. Consoles which refuse
// it (before Windows 10) stay without colors.
func EnableColorOutput(stream *os.File) bool {

	if !colorTerminal(stream) {
		return false
	}

	h := windows.Handle(stream.Fd())
	var mode uint32
	if err := windows.GetConsoleMode(h, &mode); err != nil {
		return false
	}
	if mode&windows.ENABLE_VIRTUAL_TERMINAL_PROCESSING != 0 {
		return true
	}
	return windows.SetConsoleMode(h, mode|windows.ENABLE_VIRTUAL_TERMINAL_PROCESSING) == nil
}
