package archive

import (
	"fmt"
	"os"

	fixzip "github.com/hidez8891/zip"
)

// RemoveDataDescriptors rewrites archive "from" into "to" with data descriptor flag cleared on every entry.
// Some readers (Kindle, older Adobe engines) refuse EPUBs produced with streaming zip writers.
func RemoveDataDescriptors(from, to string) (err error) {

	r, err := fixzip.OpenReader(from)
	if err != nil {
		return fmt.Errorf("unable to read archive %s: %w", from, err)
	}
	defer r.Close()

	out, err := os.Create(to)
	if err != nil {
		return fmt.Errorf("unable to create archive %s: %w", to, err)
	}
	defer func() {
		if cerr := out.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	w := fixzip.NewWriter(out)
	for _, file := range r.File {
		// unset data descriptor flag.
		file.Flags &= ^fixzip.FlagDataDescriptor

		// copy zip entry
		if err := w.CopyFile(file); err != nil {
			w.Close()
			return fmt.Errorf("unable to copy %s: %w", file.Name, err)
		}
	}
	return w.Close()
}

// FixInPlace removes data descriptors from the archive replacing original file.
func FixInPlace(path string) error {

	tmp := path + ".tmp"
	if err := RemoveDataDescriptors(path, tmp); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
