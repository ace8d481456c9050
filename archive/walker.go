package archive

import (
	"archive/zip"
	"bytes"
	"strings"
)

// WalkFunc is the type of the function called for each file in archive
// visited by Walk. The file argument is the zip.File structure for file in
// archive which satisfies match condition. If an error is returned, processing stops.
type WalkFunc func(file *zip.File) error

// Walk walks all files in the archive whose names start with prefix,
// calling walkFn for each item.
func Walk(archive, prefix string, walkFn WalkFunc) error {

	r, err := zip.OpenReader(archive)
	if err != nil {
		return err
	}
	defer r.Close()

	return walk(&r.Reader, prefix, walkFn)
}

// WalkBytes is the same as Walk for in-memory archive.
func WalkBytes(data []byte, prefix string, walkFn WalkFunc) error {

	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return err
	}
	return walk(r, prefix, walkFn)
}

func walk(r *zip.Reader, prefix string, walkFn WalkFunc) error {
	for _, f := range r.File {
		if !f.FileInfo().IsDir() && strings.HasPrefix(f.FileHeader.Name, prefix) {
			if err := walkFn(f); err != nil {
				return err
			}
		}
	}
	return nil
}
