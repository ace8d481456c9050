// Package archive has zip helpers shared by packaging and debug reports.
package archive

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"time"
)

// AddReader stores content of src in the archive as compressed entry with specified name and modification time.
func AddReader(dst *zip.Writer, name string, t time.Time, src io.Reader) error {

	w, err := dst.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: t})
	if err != nil {
		return err
	}
	_, err = io.Copy(w, src)
	return err
}

// AddFile stores regular file in the archive under specified name, keeping file modification time.
func AddFile(dst *zip.Writer, name, path string) error {

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	return AddReader(dst, name, info.ModTime(), f)
}

// AddDir recursively stores all regular files under dir, entries are placed under name.
func AddDir(dst *zip.Writer, name, dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		// Get the path of the file relative to the source folder
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		// root entry under new name
		return AddFile(dst, filepath.ToSlash(filepath.Join(name, rel)), path)
	})
}
