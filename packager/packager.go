// Package packager turns directory with generated books into single downloadable payload.
package packager

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/h2non/filetype"

	"jncweb/archive"
)

// VolumeSeparator separates series title from volume number in generated file names.
const VolumeSeparator = "_Volume_"

var (
	// ErrNoOutput is returned when directory has no generated books.
	ErrNoOutput = errors.New("generation produced no output")
	// ErrArchiveName is returned when archive name could not be derived from book names.
	ErrArchiveName = errors.New("unable to derive archive name")
)

// Payload is complete in-memory result ready to be sent.
type Payload struct {
	Name    string
	Kind    Kind
	Data    []byte
	ModTime time.Time
}

// Reader returns new reader positioned at the beginning of the payload.
func (p *Payload) Reader() io.ReadSeeker {
	return bytes.NewReader(p.Data)
}

// Size returns payload length in bytes.
func (p *Payload) Size() int64 {
	return int64(len(p.Data))
}

// ContentType returns MIME type of the payload.
func (p *Payload) ContentType() string {
	if t := filetype.GetType(p.Kind.String()); t != filetype.Unknown {
		return t.MIME.Value
	}
	return "application/octet-stream"
}

// ListBooks returns generated books in directory enumeration order.
func ListBooks(dir string) ([]string, error) {

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("unable to read output directory: %w", err)
	}

	var books []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.EqualFold(filepath.Ext(e.Name()), KindEpub.Ext()) {
			books = append(books, filepath.Join(dir, e.Name()))
		}
	}
	return books, nil
}

// Collect reads everything generated in dir into memory. Single book is returned as is, several books are
// put into zip archive named after the series. Result does not depend on dir after return.
func Collect(dir string) (*Payload, error) {

	books, err := ListBooks(dir)
	if err != nil {
		return nil, err
	}

	switch len(books) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrNoOutput, dir)
	case 1:
		return single(books[0])
	default:
		return bundle(books)
	}
}

// ArchiveName derives name for the archive from the name of the first book: "Series_Volume_1.epub" becomes "Series.zip".
func ArchiveName(book string) (string, error) {

	base := filepath.Base(book)
	title, _, found := strings.Cut(strings.TrimSuffix(base, filepath.Ext(base)), VolumeSeparator)
	if !found {
		return "", fmt.Errorf("%w: no %q in %q", ErrArchiveName, VolumeSeparator, base)
	}
	if len(strings.TrimSpace(title)) == 0 {
		return "", fmt.Errorf("%w: empty series title in %q", ErrArchiveName, base)
	}
	return title + KindZip.Ext(), nil
}

func single(book string) (*Payload, error) {

	data, err := os.ReadFile(book)
	if err != nil {
		return nil, fmt.Errorf("unable to read book: %w", err)
	}
	info, err := os.Stat(book)
	if err != nil {
		return nil, fmt.Errorf("unable to read book: %w", err)
	}
	return &Payload{
		Name:    filepath.Base(book),
		Kind:    KindEpub,
		Data:    data,
		ModTime: info.ModTime(),
	}, nil
}

func bundle(books []string) (*Payload, error) {

	name, err := ArchiveName(books[0])
	if err != nil {
		return nil, err
	}

	var (
		buf    bytes.Buffer
		latest time.Time
	)
	arc := zip.NewWriter(&buf)
	for _, book := range books {
		info, err := os.Stat(book)
		if err != nil {
			return nil, fmt.Errorf("unable to archive book: %w", err)
		}
		if info.ModTime().After(latest) {
			latest = info.ModTime()
		}
		if err := archive.AddFile(arc, filepath.Base(book), book); err != nil {
			return nil, fmt.Errorf("unable to archive book %s: %w", filepath.Base(book), err)
		}
	}
	if err := arc.Close(); err != nil {
		return nil, fmt.Errorf("unable to finalize archive: %w", err)
	}

	return &Payload{
		Name:    name,
		Kind:    KindZip,
		Data:    buf.Bytes(),
		ModTime: latest,
	}, nil
}
