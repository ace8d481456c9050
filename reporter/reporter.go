// Package reporter collects artifacts of a single run into debug report archive.
package reporter

import (
	"archive/zip"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"jncweb/archive"
)

// ReportName is preferred name of the report in the current directory.
const ReportName = "jncweb-report.zip"

// Report accumulates information necessary to prepare debug report.
type Report struct {
	// NOTE: not to be used concurrently!
	paths map[string]string
	file  *os.File
	// snapshots to be removed after report is written
	tmps []string
}

// NewReporter creates initialized empty reporter.
func NewReporter() (*Report, error) {

	r := &Report{paths: make(map[string]string)}

	if f, err := os.Create(ReportName); err == nil {
		r.file = f
	} else if f, err = os.CreateTemp("", "jncweb-report.*.zip"); err == nil {
		r.file = f
	} else {
		return nil, fmt.Errorf("unable to create report: %w", err)
	}
	return r, nil
}

// Close finalizes debug report.
func (r *Report) Close() error {

	if r == nil || r.file == nil {
		return nil
	}
	defer r.file.Close()
	defer func() {
		for _, d := range r.tmps {
			os.RemoveAll(d)
		}
	}()

	return r.finalize()
}

// Name returns name of underlying file.
func (r *Report) Name() string {

	if r == nil || r.file == nil {
		return ""
	}
	if n, err := filepath.Abs(r.file.Name()); err == nil {
		return n
	}
	return r.file.Name()
}

// Store saves path to file or directory to be put in the final archive later.
func (r *Report) Store(name, path string) {

	if r == nil {
		// Ignore uninitialized cases to avoid checking in many places. This means no report has been requested.
		return
	}
	if old, exists := r.paths[name]; exists && old != path {
		panic(fmt.Sprintf("Attempt to overwrite file in the report for [%s]: was %s, now %s", name, old, path))
	}
	if p, err := filepath.Abs(path); err == nil {
		r.paths[name] = p
	} else {
		r.paths[name] = path
	}
}

// Snapshot copies content of directory into the report right away - for directories which will not survive until Close.
func (r *Report) Snapshot(name, dir string) error {

	if r == nil {
		return nil
	}
	tmp, err := os.MkdirTemp("", "jncweb-snapshot-*")
	if err != nil {
		return err
	}
	if err := os.CopyFS(tmp, os.DirFS(dir)); err != nil {
		os.RemoveAll(tmp)
		return err
	}
	r.tmps = append(r.tmps, tmp)
	r.Store(name, tmp)
	return nil
}

func (r *Report) finalize() error {

	arc := zip.NewWriter(r.file)
	defer arc.Close()

	names, manifest := prepareManifest(r.paths)
	if err := archive.AddReader(arc, "MANIFEST", time.Now(), manifest); err != nil {
		return err
	}

	// in the same order as in manifest
	for _, name := range names {
		path := r.paths[name]
		// ignoring absent files
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		switch {
		case info.Mode().IsRegular():
			err = archive.AddFile(arc, name, path)
		case info.IsDir():
			err = archive.AddDir(arc, name, path)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func prepareManifest(paths map[string]string) ([]string, *bytes.Buffer) {

	buf := new(bytes.Buffer)
	if len(paths) == 0 {
		return nil, buf
	}

	keys := make([]string, 0, len(paths))
	for k := range paths {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		fmt.Fprintf(buf, "%s\t%s\n", k, paths[k])
	}
	return keys, buf
}
