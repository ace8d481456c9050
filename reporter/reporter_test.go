package reporter

import (
	"archive/zip"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNilReport(t *testing.T) {
	var r *Report
	r.Store("x", "y")
	if err := r.Snapshot("x", t.TempDir()); err != nil {
		t.Errorf("Unexpected error %v", err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("Unexpected error %v", err)
	}
	if r.Name() != "" {
		t.Errorf("Unexpected name %q", r.Name())
	}
}

func TestReport(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	work := t.TempDir()
	if err := os.Chdir(work); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)

	src := t.TempDir()
	log := filepath.Join(src, "jncweb.log")
	if err := os.WriteFile(log, []byte("log line"), 0644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(src, "out")
	if err := os.MkdirAll(out, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(out, "A_Volume_1.epub"), []byte("book"), 0644); err != nil {
		t.Fatal(err)
	}

	r, err := NewReporter()
	if err != nil {
		t.Fatal(err)
	}
	r.Store("file.log", log)
	r.Store("missing", filepath.Join(src, "nothing"))
	if err := r.Snapshot("jncep-output", out); err != nil {
		t.Fatal(err)
	}
	// directory is gone before report is written
	if err := os.RemoveAll(out); err != nil {
		t.Fatal(err)
	}
	tmps := append([]string(nil), r.tmps...)
	if err := r.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	for _, d := range tmps {
		if _, err := os.Stat(d); !os.IsNotExist(err) {
			t.Errorf("Snapshot %s left behind", d)
		}
	}

	if filepath.Base(r.Name()) != ReportName {
		t.Errorf("Unexpected report name %s", r.Name())
	}
	zr, err := zip.OpenReader(r.Name())
	if err != nil {
		t.Fatal(err)
	}
	defer zr.Close()

	names := make(map[string]bool)
	for _, f := range zr.File {
		names[f.Name] = true
	}
	for _, want := range []string{"MANIFEST", "file.log", "jncep-output/A_Volume_1.epub"} {
		if !names[want] {
			t.Errorf("Report does not have %s: %v", want, names)
		}
	}
	if names["missing"] {
		t.Error("Absent files should be skipped")
	}
}

func TestManifest(t *testing.T) {
	names, buf := prepareManifest(map[string]string{"b": "/tmp/b", "a": "/tmp/a"})
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("Unexpected order %v", names)
	}
	if !strings.HasPrefix(buf.String(), "a\t/tmp/a\n") {
		t.Errorf("Unexpected manifest %q", buf.String())
	}
}
