package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/pkg/profile"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"jncweb/commands"
	"jncweb/config"
	"jncweb/misc"
	"jncweb/reporter"
	"jncweb/state"
)

type appWrapper struct {
	log           *zap.Logger
	rpt           *reporter.Report
	stdlogRestore func()
	prof          interface{ Stop() }
	inCommand     bool
}

func (w *appWrapper) beforeAppRun(c *cli.Context) error {

	if c.NArg() == 0 {
		return nil
	}

	const (
		errPrefix = "\n*** ERROR ***\n\npreparing: "
		errCode   = 1
	)
	var err error

	// Process global options

	env := c.Generic(state.FlagName).(*state.LocalEnv)
	env.Debug = c.Bool("debug")

	// Prepare configuration
	fconfig := c.StringSlice("config")
	if env.Cfg, err = config.BuildConfig(fconfig...); err != nil {
		return cli.Exit(fmt.Errorf("%sunable to build configuration: %w", errPrefix, err), errCode)
	}

	// We may want to do some profiling
	if p := c.String("cpuprofile"); len(p) > 0 {
		w.prof = profile.Start(profile.CPUProfile, profile.ProfilePath(p))
	} else if p := c.String("memprofile"); len(p) > 0 {
		w.prof = profile.Start(profile.MemProfile, profile.ProfilePath(p))
	} else if p := c.String("blkprofile"); len(p) > 0 {
		w.prof = profile.Start(profile.BlockProfile, profile.ProfilePath(p))
	} else if p := c.String("traceprofile"); len(p) > 0 {
		w.prof = profile.Start(profile.TraceProfile, profile.ProfilePath(p))
	} else if p := c.String("mutexprofile"); len(p) > 0 {
		w.prof = profile.Start(profile.MutexProfile, profile.ProfilePath(p))
	}

	return nil
}

func (w *appWrapper) beforeCommandRun(c *cli.Context) error {

	const (
		errPrefix = "\n*** ERROR ***\n\npreparing: "
		errCode   = 1
	)
	var err error

	env := c.Generic(state.FlagName).(*state.LocalEnv)

	// Debug report collects everything we may need to look at the problem later
	if env.Debug {
		if env.Rpt, err = reporter.NewReporter(); err != nil {
			return cli.Exit(fmt.Errorf("%sunable to create report: %w", errPrefix, err), errCode)
		}
		w.rpt = env.Rpt
		for i, fname := range c.StringSlice("config") {
			if fname != "-" {
				env.Rpt.Store(fmt.Sprintf("config-%d%s", i, filepath.Ext(fname)), fname)
			}
		}
	}

	// Prepare logs
	env.Log, err = env.Cfg.PrepareLog(env.Rpt)
	if err != nil {
		return cli.Exit(fmt.Errorf("%sunable to create logs: %w", errPrefix, err), errCode)
	}

	w.log = env.Log
	w.stdlogRestore = zap.RedirectStdLog(env.Log)

	// Log errors rather then print them
	w.inCommand = true

	w.log.Debug("Program started", zap.Strings("args", os.Args), zap.String("ver", misc.GetVersion()+" ("+runtime.Version()+") : "+misc.GetGitHash()))
	if len(c.StringSlice("config")) == 0 {
		w.log.Info("Using defaults (no configuration file)")
	}

	return nil
}

func (w *appWrapper) errorHandler(context *cli.Context, err error) {

	if !w.inCommand {
		cli.HandleExitCoder(err)
		return
	}

	if err == nil {
		return
	}

	// we are in command run, log is fully prepared
	if exitErr, ok := err.(cli.ExitCoder); ok {
		if err.Error() != "" {
			var msg string
			if _, ok := exitErr.(cli.ErrorFormatter); ok {
				msg = fmt.Sprintf("%+v\n", err)
			} else {
				msg = err.Error()
			}
			w.log.Error("Command ended with error", zap.Int("code", exitErr.ExitCode()), zap.String("error", msg))
		}
		cli.OsExiter(exitErr.ExitCode())
	}
}

func (w *appWrapper) afterCommandRun(c *cli.Context) error {
	w.inCommand = false
	return nil
}

func (w *appWrapper) afterAppRun(c *cli.Context) error {

	if w.prof != nil {
		w.prof.Stop()
	}

	if w.log != nil {

		w.log.Debug("Program ended", zap.Strings("parsed args", c.Args().Slice()))

		w.stdlogRestore()
		_ = w.log.Sync()
	}

	// report is written last so it has complete log
	if w.rpt != nil {
		if err := w.rpt.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "\n*** ERROR ***\n\nunable to write report: %v\n", err)
		} else {
			fmt.Fprintf(os.Stderr, "\nDebug report: %s\n", w.rpt.Name())
		}
	}
	return nil
}

func main() {

	cli.OsExiter = func(int) { /* do nothing, we want afterRun to execute */ }

	app := cli.NewApp()

	app.Name = "jncweb"
	app.Usage = "J-Novel Club EPUB downloads over the web"
	app.Version = misc.GetVersion() + " (" + runtime.Version() + ") : " + misc.GetGitHash()

	var wrap appWrapper
	app.Before = wrap.beforeAppRun
	app.After = wrap.afterAppRun
	app.ExitErrHandler = wrap.errorHandler

	app.Flags = []cli.Flag{
		// only one profile could be enables at a time - this is enforced by beforeRun
		&cli.StringFlag{Name: "cpuprofile", Hidden: true, Usage: "write cpu profile to `PATH`"},
		&cli.StringFlag{Name: "memprofile", Hidden: true, Usage: "write memory profile to `PATH`"},
		&cli.StringFlag{Name: "blkprofile", Hidden: true, Usage: "write block profile to `PATH`"},
		&cli.StringFlag{Name: "traceprofile", Hidden: true, Usage: "write trace profile to `PATH`"},
		&cli.StringFlag{Name: "mutexprofile", Hidden: true, Usage: "write mutex profile to `PATH`"},

		&cli.GenericFlag{Name: state.FlagName, Hidden: true, Usage: "--internal--", Value: state.NewLocalEnv()},

		&cli.StringSliceFlag{Name: "config", Aliases: []string{"c"}, Usage: "load configuration from `FILE` (YAML, TOML, HCL or JSON). if FILE is \"-\" JSON will be expected from STDIN"},
		&cli.BoolFlag{Name: "debug", Aliases: []string{"d"}, Usage: "produce debug report with logs, configuration and generated files"},
	}

	app.Commands = []*cli.Command{
		{
			Name:   "serve",
			Usage:  "Runs web front-end",
			Action: commands.Serve,
			Before: wrap.beforeCommandRun,
			After:  wrap.afterCommandRun,
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "listen", Aliases: []string{"l"}, Usage: "listen on `ADDRESS` instead of configured one"},
			},
			CustomHelpTemplate: fmt.Sprintf(`%s
Serves request form on "/" and downloads on "/" (POST) and "/epub" (GET or POST) until interrupted.
Form fields: jnovelclub_url (required), prepub_parts (optional, everything when empty), send_to_kindle.
`, cli.CommandHelpTemplate),
		},
		{
			Name:   "fetch",
			Usage:  "Downloads J-Novel Club volumes or parts as EPUB",
			Action: commands.Fetch,
			Before: wrap.beforeCommandRun,
			After:  wrap.afterCommandRun,
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "parts", Aliases: []string{"p"}, Usage: "part `SPECIFICATION` (1, 2.3, 1:3, 2.1:3.4), everything when absent"},
				&cli.StringFlag{Name: "email", Usage: "J-Novel Club account `EMAIL`, overrides configuration"},
				&cli.StringFlag{Name: "password", Usage: "J-Novel Club account `PASSWORD`, overrides configuration"},
				&cli.BoolFlag{Name: "stk", Usage: "send result to kindle"},
				&cli.BoolFlag{Name: "ow", Usage: "continue even if destination exits, overwrite files"},
			},
			ArgsUsage: "URL [DESTINATION]",
			CustomHelpTemplate: fmt.Sprintf(`%sURL:
    J-Novel Club series, volume or part address

DESTINATION:
    always a path, output file name will be derived from generated books
    if absent - current working directory

Single generated book is stored as is, several books are stored in a zip archive named after the series.
`, cli.CommandHelpTemplate),
		},
		{
			Name:      "dumpconfig",
			Usage:     "Dumps active configuration (JSON)",
			Action:    commands.DumpConfig,
			Before:    wrap.beforeCommandRun,
			After:     wrap.afterCommandRun,
			ArgsUsage: "DESTINATION",
			CustomHelpTemplate: fmt.Sprintf(`%s
DESTINATION:
	file name to write configuration to, if absent - STDOUT

Produces file with actual configuration values to be used by the program. To see configuration after parsing but before anything else use --debug option.
`, cli.CommandHelpTemplate),
		},
		{
			Name:      "export",
			Usage:     "Exports built-in resources for customization",
			Action:    commands.ExportResources,
			Before:    wrap.beforeCommandRun,
			After:     wrap.afterCommandRun,
			ArgsUsage: "DESTINATION",
			CustomHelpTemplate: fmt.Sprintf(`%s
DESTINATION:
	existing path to export resources to, must be present

Exports built-in resources (example configuration, homepage template) for customization.
`, cli.CommandHelpTemplate),
		},
	}

	if err := app.Run(os.Args); err != nil {
		if wrap.log != nil {
			_ = wrap.log.Sync()
		}
		os.Exit(1)
	}
}
