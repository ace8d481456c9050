package commands

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"jncweb/config"
	"jncweb/state"
)

// DumpConfig is "dumpconfig" command body. Output format follows destination extension so the result
// could be passed back with --config.
func DumpConfig(ctx *cli.Context) error {

	const (
		errPrefix = "dumpconfig: "
		errCode   = 1
	)

	env := ctx.Generic(state.FlagName).(*state.LocalEnv)

	fname := ctx.Args().Get(0)

	// layered sources before defaults were applied are only interesting when debugging
	get := env.Cfg.GetActualBytes
	if env.Debug {
		get = env.Cfg.GetBytes
	}
	data, err := get()
	if err != nil {
		return cli.Exit(fmt.Errorf("%sunable to get configuration: %w", errPrefix, err), errCode)
	}
	if data, err = config.Convert(data, fname); err != nil {
		return cli.Exit(fmt.Errorf("%sunable to encode configuration: %w", errPrefix, err), errCode)
	}

	if len(fname) == 0 {
		_, err = os.Stdout.Write(data)
	} else {
		env.Log.Info("Dumping configuration", zap.String("file", fname), zap.Bool("raw", env.Debug))
		err = os.WriteFile(fname, data, 0644)
	}
	if err != nil {
		return cli.Exit(fmt.Errorf("%sunable to write configuration: %w", errPrefix, err), errCode)
	}
	return nil
}
