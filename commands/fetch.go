package commands

import (
	"archive/zip"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"jncweb/archive"
	"jncweb/config"
	"jncweb/download"
	"jncweb/jncep"
	"jncweb/packager"
	"jncweb/state"
)

// Fetch is "fetch" command body.
func Fetch(ctx *cli.Context) (err error) {

	const (
		errPrefix = "fetch: "
		errCode   = 1
	)

	env := ctx.Generic(state.FlagName).(*state.LocalEnv)

	src := ctx.Args().Get(0)
	if len(src) == 0 {
		return cli.Exit(errors.New(errPrefix+"no J-Novel Club URL has been specified"), errCode)
	}

	dst := ctx.Args().Get(1)
	if len(dst) == 0 {
		if dst, err = os.Getwd(); err != nil {
			return cli.Exit(fmt.Errorf("%sunable to get working directory", errPrefix), errCode)
		}
	} else {
		if dst, err = filepath.Abs(dst); err != nil {
			return cli.Exit(fmt.Errorf("%snormalizing destination path failed", errPrefix), errCode)
		}
		if ctx.Args().Len() > 2 {
			env.Log.Warn("Mailformed command line, too many destinations", zap.Strings("ignoring", ctx.Args().Slice()[2:]))
		}
	}
	if err := os.MkdirAll(dst, 0755); err != nil {
		return cli.Exit(fmt.Errorf("%sunable to create destination directory: %w", errPrefix, err), errCode)
	}

	var opts []download.Option
	if env.Rpt != nil {
		opts = append(opts, download.WithInspector(func(dir string) error {
			return env.Rpt.Snapshot("jncep-output", dir)
		}))
	}
	svc, err := newService(env, opts...)
	if err != nil {
		return cli.Exit(fmt.Errorf("%sunable to prepare download service: %w", errPrefix, err), errCode)
	}

	stk := ctx.Bool("stk")
	if stk && !svc.CanSendToKindle() {
		env.Log.Warn("Configuration for Send To Kindle is incorrect, ignoring --stk")
	}

	env.Log.Info("Fetch starting", zap.String("from", src), zap.String("to", dst))
	defer func(start time.Time) {
		env.Log.Info("Fetch completed", zap.Duration("elapsed", time.Since(start)))
	}(time.Now())

	p, err := svc.Download(ctx.Context, download.Request{
		URL:       src,
		Parts:     ctx.String("parts"),
		Requestor: "local",
		Credentials: jncep.Credentials{
			Email:    ctx.String("email"),
			Password: ctx.String("password"),
		},
		SendToKindle: stk,
	})
	if err != nil {
		return cli.Exit(fmt.Errorf("%s%w", errPrefix, err), errCode)
	}

	// series titles may have characters local file system does not accept
	fname := filepath.Join(dst, config.CleanFileName(p.Name))
	if _, err := os.Stat(fname); err == nil && !ctx.Bool("ow") {
		return cli.Exit(fmt.Errorf("%sdestination file already exists: %s", errPrefix, fname), errCode)
	}
	if err := os.WriteFile(fname, p.Data, 0644); err != nil {
		return cli.Exit(fmt.Errorf("%sunable to write result: %w", errPrefix, err), errCode)
	}
	if !p.ModTime.IsZero() {
		_ = os.Chtimes(fname, p.ModTime, p.ModTime)
	}
	env.Rpt.Store(filepath.Join("result", p.Name), fname)

	if p.Kind == packager.KindZip {
		err = archive.Walk(fname, "", func(f *zip.File) error {
			env.Log.Info("Archived", zap.String("book", f.Name), zap.Uint64("size", f.UncompressedSize64))
			return nil
		})
		if err != nil {
			return cli.Exit(fmt.Errorf("%sunable to read result: %w", errPrefix, err), errCode)
		}
	}
	env.Log.Info("Result stored", zap.String("file", fname), zap.Stringer("kind", p.Kind), zap.Int64("size", p.Size()))
	return nil
}
