package commands

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"jncweb/server"
	"jncweb/state"
)

const lockName = ".jncweb.lock"

// Serve is "serve" command body.
func Serve(ctx *cli.Context) error {

	const (
		errPrefix = "serve: "
		errCode   = 1
	)

	env := ctx.Generic(state.FlagName).(*state.LocalEnv)

	if l := ctx.String("listen"); len(l) > 0 {
		env.Cfg.Server.Listen = l
	}

	if err := os.MkdirAll(env.Cfg.Jncep.Output, 0755); err != nil {
		return cli.Exit(fmt.Errorf("%sunable to create output directory: %w", errPrefix, err), errCode)
	}

	// labs API pacing and namespace cleanup only know about requests of this process, one server per output root
	lockPath := filepath.Join(env.Cfg.Jncep.Output, lockName)
	lock := flock.New(lockPath)
	if ok, err := lock.TryLock(); err != nil {
		return cli.Exit(fmt.Errorf("%sunable to lock output directory: %w", errPrefix, err), errCode)
	} else if !ok {
		return cli.Exit(fmt.Errorf("%sanother instance is already using output directory %s", errPrefix, env.Cfg.Jncep.Output), errCode)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			env.Log.Warn("Unable to release output directory lock", zap.String("lock", lockPath), zap.Error(err))
		}
	}()

	svc, err := newService(env)
	if err != nil {
		return cli.Exit(fmt.Errorf("%sunable to prepare download service: %w", errPrefix, err), errCode)
	}
	srv, err := server.New(env.Cfg, svc, env.Log)
	if err != nil {
		return cli.Exit(fmt.Errorf("%s%w", errPrefix, err), errCode)
	}

	sctx, stop := signal.NotifyContext(ctx.Context, stopSignals...)
	defer stop()

	start := time.Now()
	env.Log.Info("Serving starting", zap.String("output", env.Cfg.Jncep.Output))
	defer func() {
		env.Log.Info("Serving completed", zap.Duration("elapsed", time.Since(start)))
	}()

	if err := srv.Run(sctx); err != nil {
		return cli.Exit(fmt.Errorf("%s%w", errPrefix, err), errCode)
	}
	return nil
}
