// Package workdir manages request scoped directories for generated output.
package workdir

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"go.uber.org/zap"
)

const (
	anonymous     = "anonymous"
	mkdirAttempts = 100
)

// Dir is uniquely named directory for a single request: <root>/<requestor>/<token>.
type Dir struct {
	root  string
	group string
	path  string
}

// New creates directory for requestor under root. Requestor is usually remote address of the caller
// and is only used as a readable namespace, uniqueness comes from the random token.
func New(root, requestor string) (*Dir, error) {

	u, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("unable to generate UUID: %w", err)
	}

	d := &Dir{root: root, group: Namespace(requestor)}
	d.path = filepath.Join(root, d.group, u.String())
	// namespace directory may disappear under us when last request from the same address finishes
	for attempt := 1; ; attempt++ {
		err = os.MkdirAll(d.path, 0700)
		if err == nil {
			return d, nil
		}
		if !errors.Is(err, os.ErrNotExist) || attempt == mkdirAttempts {
			return nil, fmt.Errorf("unable to create working directory: %w", err)
		}
	}
}

// Path returns directory location.
func (d *Dir) Path() string {
	return d.path
}

// Remove deletes directory tree, also removing requestor namespace when it becomes empty.
// Failures are logged and never returned, payload is expected to be in memory by now.
func (d *Dir) Remove(log *zap.Logger) {

	if d == nil {
		return
	}
	if err := os.RemoveAll(d.path); err != nil {
		log.Warn("Unable to remove working directory", zap.String("location", d.path), zap.Error(err))
		return
	}
	log.Debug("Working directory removed", zap.String("location", d.path))

	// other requests from the same address may still be using it
	group := filepath.Join(d.root, d.group)
	if err := os.Remove(group); err != nil && !errors.Is(err, os.ErrNotExist) && !errors.Is(err, syscall.ENOTEMPTY) && !errors.Is(err, syscall.EEXIST) {
		log.Debug("Unable to remove namespace directory", zap.String("location", group), zap.Error(err))
	}
}

// Namespace converts requestor address into a safe directory name.
func Namespace(requestor string) string {

	host := strings.TrimSpace(requestor)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	// slug drops colons of IPv6 addresses, keep them distinguishable
	host = strings.ReplaceAll(host, ":", "-")
	if s := slug.Make(host); len(s) > 0 {
		return s
	}
	return anonymous
}
