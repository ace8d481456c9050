package packager

import (
	"archive/zip"
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"

	"jncweb/archive"
)

func writeBooks(t *testing.T, dir string, books map[string]string) {
	t.Helper()
	// fixed modification time keeps archives reproducible between runs
	mt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for name, content := range books {
		fname := filepath.Join(dir, name)
		if err := os.WriteFile(fname, []byte(content), 0644); err != nil {
			t.Fatalf("Unable to write %s: %v", name, err)
		}
		if err := os.Chtimes(fname, mt, mt); err != nil {
			t.Fatalf("Unable to set time on %s: %v", name, err)
		}
	}
}

func unzip(t *testing.T, data []byte) ([]string, map[string]string) {
	t.Helper()
	var names []string
	contents := make(map[string]string)
	err := archive.WalkBytes(data, "", func(f *zip.File) error {
		r, err := f.Open()
		if err != nil {
			return err
		}
		defer r.Close()
		b, err := io.ReadAll(r)
		if err != nil {
			return err
		}
		names = append(names, f.Name)
		contents[f.Name] = string(b)
		return nil
	})
	if err != nil {
		t.Fatalf("Unable to read archive: %v", err)
	}
	return names, contents
}

func TestCollectSingleBook(t *testing.T) {
	dir := t.TempDir()
	writeBooks(t, dir, map[string]string{"MySeries_Volume_1.epub": "volume one"})

	p, err := Collect(dir)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if p.Name != "MySeries_Volume_1.epub" {
		t.Errorf("Bad name: %q", p.Name)
	}
	if p.Kind != KindEpub {
		t.Errorf("Bad kind: %s", p.Kind)
	}
	if string(p.Data) != "volume one" {
		t.Errorf("Bad content: %q", p.Data)
	}
	if ct := p.ContentType(); ct != "application/epub+zip" {
		t.Errorf("Bad content type: %q", ct)
	}
}

func TestCollectSeveralBooks(t *testing.T) {
	dir := t.TempDir()
	writeBooks(t, dir, map[string]string{
		"MySeries_Volume_1.epub": "volume one",
		"MySeries_Volume_2.epub": "volume two",
	})

	p, err := Collect(dir)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if p.Name != "MySeries.zip" {
		t.Errorf("Bad name: %q", p.Name)
	}
	if p.Kind != KindZip {
		t.Errorf("Bad kind: %s", p.Kind)
	}
	if ct := p.ContentType(); ct != "application/zip" {
		t.Errorf("Bad content type: %q", ct)
	}

	names, contents := unzip(t, p.Data)
	if len(names) != 2 || names[0] != "MySeries_Volume_1.epub" || names[1] != "MySeries_Volume_2.epub" {
		t.Fatalf("Bad archive entries: %s", spew.Sdump(names))
	}
	if contents["MySeries_Volume_1.epub"] != "volume one" || contents["MySeries_Volume_2.epub"] != "volume two" {
		t.Errorf("Bad archive content: %s", spew.Sdump(contents))
	}
}

func TestCollectEmptyDirectory(t *testing.T) {
	p, err := Collect(t.TempDir())
	if !errors.Is(err, ErrNoOutput) {
		t.Fatalf("Expected ErrNoOutput, got %v", err)
	}
	if p != nil {
		t.Errorf("Unexpected payload: %s", spew.Sdump(p))
	}
}

func TestCollectIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	writeBooks(t, dir, map[string]string{
		"MySeries_Volume_3.EPUB": "volume three",
		"jncep.log":              "noise",
		"cover.jpg":              "noise",
	})
	if err := os.Mkdir(filepath.Join(dir, "images.epub"), 0755); err != nil {
		t.Fatal(err)
	}

	p, err := Collect(dir)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if p.Kind != KindEpub || p.Name != "MySeries_Volume_3.EPUB" {
		t.Errorf("Bad payload: %s %q", p.Kind, p.Name)
	}
}

func TestCollectMissingSeparator(t *testing.T) {
	dir := t.TempDir()
	writeBooks(t, dir, map[string]string{
		"Alpha.epub":             "a",
		"MySeries_Volume_2.epub": "b",
	})

	p, err := Collect(dir)
	if !errors.Is(err, ErrArchiveName) {
		t.Fatalf("Expected ErrArchiveName, got %v", err)
	}
	if p != nil {
		t.Errorf("Unexpected payload: %s", spew.Sdump(p))
	}
}

func TestCollectIsReproducible(t *testing.T) {
	dir := t.TempDir()
	writeBooks(t, dir, map[string]string{
		"Series_Volume_1.epub": "one",
		"Series_Volume_2.epub": "two",
		"Series_Volume_3.epub": "three",
	})

	first, err := Collect(dir)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	second, err := Collect(dir)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if !bytes.Equal(first.Data, second.Data) {
		t.Error("Payloads differ for unmodified directory")
	}
}

func TestCollectSurvivesDirectoryRemoval(t *testing.T) {
	dir := t.TempDir()
	writeBooks(t, dir, map[string]string{
		"S_Volume_1.epub": "one",
		"S_Volume_2.epub": "two",
	})

	p, err := Collect(dir)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if err := os.RemoveAll(dir); err != nil {
		t.Fatal(err)
	}
	got, err := io.ReadAll(p.Reader())
	if err != nil {
		t.Fatalf("Unable to read payload: %v", err)
	}
	if names, _ := unzip(t, got); len(names) != 2 {
		t.Errorf("Bad archive after directory removal: %s", spew.Sdump(names))
	}
}

func TestArchiveName(t *testing.T) {
	cases := []struct {
		in   string
		out  string
		fail bool
	}{
		{in: "MySeries_Volume_1.epub", out: "MySeries.zip"},
		{in: "/tmp/out/Ascendance_of_a_Bookworm_Part_5_Volume_12.epub", out: "Ascendance_of_a_Bookworm_Part_5.zip"},
		{in: "My_Series_Volume_2_Part_3.epub", out: "My_Series.zip"},
		{in: "MySeries_Volume_1_Volume_2.epub", out: "MySeries.zip"},
		{in: "Re:Zero_Volume_1.epub", out: "Re:Zero.zip"},
		{in: ".hack_Volume_1.epub", out: ".hack.zip"},
		{in: "MySeries.epub", fail: true},
		{in: "_Volume_1.epub", fail: true},
		{in: "MySeries-Volume-1.epub", fail: true},
	}

	for i, c := range cases {
		got, err := ArchiveName(c.in)
		if c.fail {
			if !errors.Is(err, ErrArchiveName) {
				t.Errorf("Case %d (%s): expected ErrArchiveName, got %q, %v", i, c.in, got, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("Case %d (%s): unexpected error %v", i, c.in, err)
			continue
		}
		if got != c.out {
			t.Errorf("Case %d (%s): expected %q, got %q", i, c.in, c.out, got)
		}
	}
}
