// Package static has runtime resources for various commands.
package static

import (
	"embed"
	"io/fs"
	"os"
	"path"
	"path/filepath"
)

//go:embed configuration.toml templates
var content embed.FS

// DirTemplates is where html templates live.
const DirTemplates = "templates"

// Asset loads and returns the asset for the given name.
func Asset(name string) ([]byte, error) {
	return content.ReadFile(name)
}

// AssetDir returns the file names below a certain directory. AssetDir("") returns top level names.
func AssetDir(name string) ([]string, error) {

	name = path.Clean(filepath.ToSlash(name))

	dirEntries, err := content.ReadDir(name)
	if err != nil {
		return nil, err
	}

	var entries []string
	for _, de := range dirEntries {
		entries = append(entries, de.Name())
	}
	return entries, nil
}

// Templates returns file system with built-in html templates.
func Templates() fs.FS {
	sub, err := fs.Sub(content, DirTemplates)
	if err != nil {
		// directory is embedded, this could not happen
		panic(err)
	}
	return sub
}

func restoreFile(dir, name string) error {

	data, err := content.ReadFile(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Join(dir, filepath.Dir(name)), os.FileMode(0755)); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, os.FileMode(0644)); err != nil {
		return err
	}
	return nil
}

// RestoreAssets restores an asset under the given directory recursively.
func RestoreAssets(dir, name string) error {

	dir, name = path.Clean(filepath.ToSlash(dir)), path.Clean(filepath.ToSlash(name))

	dirEntries, err := content.ReadDir(name)
	if err != nil {
		return restoreFile(dir, name)
	}

	for _, de := range dirEntries {
		err := RestoreAssets(dir, path.Join(name, de.Name()))
		if err != nil {
			return err
		}
	}
	return nil
}
