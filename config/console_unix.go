//go:build !windows

package config

import (
	"os"
)

// EnableColorOutput checks if colorized output is possible.
func EnableColorOutput(stream *os.File) bool {
	return colorTerminal(stream)
}
