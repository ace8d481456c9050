package jncep

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
)

// isEpubFile detects if file is epub by extension and content.
func isEpubFile(fname string) (bool, error) {

	if !strings.EqualFold(filepath.Ext(fname), ".epub") {
		return false, nil
	}

	file, err := os.Open(fname)
	if err != nil {
		return false, err
	}
	defer file.Close()

	header := make([]byte, 262)
	if count, err := io.ReadFull(file, header); err == io.ErrUnexpectedEOF || err == io.EOF {
		return false, nil
	} else if err != nil {
		return false, err
	} else if count < 262 {
		return false, nil
	}
	return filetype.Is(header, "epub"), nil
}
