//go:build windows

package config

import (
	"os"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// jncep provides OS specific part of default jncep executable name.
func jncep() string {
	return "jncep.exe"
}

// CleanFileName removes not allowed characters form file name.
func CleanFileName(in string) string {
	out := strings.Map(func(sym rune) rune {
		if strings.ContainsRune(`<>":/\|?*`+string(os.PathSeparator)+string(os.PathListSeparator), sym) {
			return -1
		}
		return sym
	}, norm.NFC.String(in))
	if len(out) == 0 {
		out = "_bad_file_name_"
	}
	return out
}
