// Package jncep drives external J-Novel Club epub generator.
package jncep

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"jncweb/archive"
	"jncweb/config"
	"jncweb/packager"
)

var (
	// ErrBadURL is returned when generator does not recognize URL as J-Novel Club resource.
	ErrBadURL = errors.New("not a valid J-Novel Club URL")
	// ErrPaymentRequired is returned when requested content is not owned by the account.
	ErrPaymentRequired = errors.New("payment required")
	// ErrUnauthorized is returned when J-Novel Club rejects credentials.
	ErrUnauthorized = errors.New("J-Novel Club rejected credentials")
	// ErrGeneration is returned for any other generator failure.
	ErrGeneration = errors.New("epub generation failed")
)

// Credentials are J-Novel Club account email and password.
type Credentials struct {
	Email    string
	Password string
}

// Request describes what to generate.
type Request struct {
	URL         string
	Parts       string
	Credentials Credentials
}

// Generator produces epub files for request in directory dir.
type Generator interface {
	Generate(req Request, dir string) error
}

// Options is fixed set of generation options, same for every request.
type Options struct {
	ByVolume       bool
	ExtractImages  bool
	ExtractContent bool
	NoReplaceChars bool
	Stylesheet     string
	FixZip         bool
}

// NewOptions builds generation options from configuration.
func NewOptions(cfg *config.Config) Options {
	opts := Options{
		ByVolume:       cfg.Jncep.ByVolume,
		ExtractImages:  cfg.Jncep.ExtractImages,
		ExtractContent: cfg.Jncep.ExtractContent,
		NoReplaceChars: cfg.Jncep.NoReplaceChars,
		FixZip:         cfg.Jncep.FixZip,
	}
	if len(cfg.Jncep.Stylesheet) > 0 {
		opts.Stylesheet = cfg.ResolvePath(cfg.Jncep.Stylesheet)
	}
	return opts
}

// Runner runs jncep executable.
type Runner struct {
	path string
	opts Options
	log  *zap.Logger
}

// NewRunner returns generator which runs jncep located at path.
func NewRunner(path string, opts Options, log *zap.Logger) *Runner {
	return &Runner{path: path, opts: opts, log: log}
}

// Args prepares jncep command line for request.
func (r *Runner) Args(req Request, dir string) []string {

	args := make([]string, 0, 16)
	args = append(args, "epub", req.URL)
	args = append(args, "--email", req.Credentials.Email, "--password", req.Credentials.Password)
	if len(req.Parts) > 0 {
		args = append(args, "--parts", req.Parts)
	}
	args = append(args, "--output", dir)
	if r.opts.ByVolume {
		args = append(args, "--byvolume")
	}
	if r.opts.ExtractImages {
		args = append(args, "--images")
	}
	if r.opts.ExtractContent {
		args = append(args, "--content")
	}
	if r.opts.NoReplaceChars {
		args = append(args, "--no-replace")
	}
	if len(r.opts.Stylesheet) > 0 {
		args = append(args, "--css", r.opts.Stylesheet)
	}
	return args
}

// Generate runs jncep and waits for it to finish.
func (r *Runner) Generate(req Request, dir string) error {

	args := r.Args(req, dir)
	cmd := exec.Command(r.path, args...)
	// jncep reads credentials from environment as well, make sure stale ones do not leak in
	cmd.Env = filterEnv(os.Environ(), config.EnvEmail, config.EnvPassword)

	r.log.Debug("jncep starting", zap.String("url", req.URL), zap.String("parts", req.Parts))
	defer func(start time.Time) {
		r.log.Debug("jncep done",
			zap.Duration("elapsed", time.Since(start)),
			zap.String("path", cmd.Path),
			zap.Strings("args", maskArgs(args)),
		)
	}(time.Now())

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("unable to redirect jncep stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("unable to redirect jncep stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: unable to start jncep: %v", ErrGeneration, err)
	}

	// jncep reports errors in its regular output, keep everything for classification
	var (
		out bytes.Buffer
		mu  sync.Mutex
		wg  sync.WaitGroup
	)
	pump := func(rd io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(rd)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		scanner.Split(scanOutputLines)
		for scanner.Scan() {
			line := scanner.Text()
			if len(line) == 0 {
				continue
			}
			r.log.Debug("jncep", zap.String("out", line))
			mu.Lock()
			out.WriteString(line)
			out.WriteByte('\n')
			mu.Unlock()
		}
		if err := scanner.Err(); err != nil {
			r.log.Debug("jncep output is not readable, discarding the rest", zap.Error(err))
		}
		// child must never block on a full pipe
		_, _ = io.Copy(io.Discard, rd)
	}
	wg.Add(2)
	go pump(stdout)
	go pump(stderr)
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		return Classify(out.String(), err)
	}
	if cause := Classify(out.String(), nil); cause != nil {
		// some failures are only reported, exit code stays 0
		return cause
	}

	if r.opts.FixZip {
		return r.fixBooks(dir)
	}
	return nil
}

// maxLineSize limits single line of jncep output kept for classification.
const maxLineSize = 1024 * 1024

// scanOutputLines is bufio.ScanLines which also treats carriage return as line end, progress
// indicators redraw the same line without ever sending a new line.
func scanOutputLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func (r *Runner) fixBooks(dir string) error {

	books, err := packager.ListBooks(dir)
	if err != nil {
		return err
	}
	for _, book := range books {
		ok, err := isEpubFile(book)
		if err != nil {
			return fmt.Errorf("unable to check book type: %w", err)
		}
		if !ok {
			r.log.Warn("Generated file was not recognized as epub, leaving it as is", zap.String("file", book))
			continue
		}
		if err := archive.FixInPlace(book); err != nil {
			return fmt.Errorf("unable to fix zip format of %s: %w", book, err)
		}
	}
	return nil
}

// Classify maps jncep output and exit status to one of package errors. It returns nil when
// output has no known failure and exit status is nil.
func Classify(output string, exitErr error) error {

	reason := lastLine(output)
	switch {
	case strings.Contains(output, "BadWebURLError"),
		strings.Contains(output, "Invalid URL"),
		strings.Contains(output, "Not a valid J-Novel Club URL"):
		return fmt.Errorf("%w: %s", ErrBadURL, reason)
	case strings.Contains(output, "Payment Required"):
		return fmt.Errorf("%w: %s", ErrPaymentRequired, reason)
	case strings.Contains(output, "401 Unauthorized"),
		strings.Contains(output, "Invalid credentials"),
		strings.Contains(output, "Login failed"):
		return fmt.Errorf("%w: %s", ErrUnauthorized, reason)
	}
	if exitErr != nil {
		if len(reason) == 0 {
			reason = exitErr.Error()
		}
		return fmt.Errorf("%w: %s", ErrGeneration, reason)
	}
	return nil
}

func lastLine(output string) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

func maskArgs(args []string) []string {
	masked := make([]string, len(args))
	copy(masked, args)
	for i := 0; i < len(masked)-1; i++ {
		if masked[i] == "--password" {
			masked[i+1] = "********"
		}
	}
	return masked
}

func filterEnv(env []string, names ...string) []string {
	out := env[:0:0]
	for _, kv := range env {
		drop := false
		for _, n := range names {
			if strings.HasPrefix(kv, n+"=") {
				drop = true
				break
			}
		}
		if !drop {
			out = append(out, kv)
		}
	}
	return out
}
