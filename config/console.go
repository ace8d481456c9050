package config

import (
	"os"

	"golang.org/x/term"
)

// EnvNoColor disables colored console output when set to non-empty value. Service usually runs
// under docker or systemd which capture console into logs.
const EnvNoColor = "NO_COLOR"

// colorTerminal checks if stream is interactive terminal and colors were not turned off.
func colorTerminal(stream *os.File) bool {
	if len(os.Getenv(EnvNoColor)) > 0 {
		return false
	}
	return term.IsTerminal(int(stream.Fd()))
}
