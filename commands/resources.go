package commands

import (
	"errors"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"jncweb/state"
	"jncweb/static"
)

// ExportResources is "export" command body.
func ExportResources(ctx *cli.Context) error {

	const (
		errPrefix = "export: "
		errCode   = 1
	)

	env := ctx.Generic(state.FlagName).(*state.LocalEnv)

	fname := ctx.Args().Get(0)
	if len(fname) == 0 {
		return cli.Exit(errors.New(errPrefix+"destination directory has not been specified"), errCode)
	}
	if info, err := os.Stat(fname); err != nil && !os.IsNotExist(err) {
		return cli.Exit(errors.New(errPrefix+"unable to access destination directory"), errCode)
	} else if err != nil {
		return cli.Exit(errors.New(errPrefix+"destination directory does not exits"), errCode)
	} else if !info.IsDir() {
		return cli.Exit(errors.New(errPrefix+"destination is not a directory"), errCode)
	}

	dir, err := static.AssetDir("")
	if err != nil {
		return cli.Exit(errors.New(errPrefix+"unable to list resources"), errCode)
	}
	for _, a := range dir {
		if err := static.RestoreAssets(fname, a); err != nil {
			return cli.Exit(errors.New(errPrefix+"unable to store resources"), errCode)
		}
		env.Log.Debug("Resource exported", zap.String("name", a), zap.String("to", fname))
	}
	return nil
}
