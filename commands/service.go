// Package commands has top level command drivers.
package commands

import (
	"errors"

	"go.uber.org/zap"

	"jncweb/download"
	"jncweb/jncep"
	"jncweb/labs"
	"jncweb/mailer"
	"jncweb/state"
)

// newService wires download pipeline from configuration.
func newService(env *state.LocalEnv, opts ...download.Option) (*download.Service, error) {

	path, err := env.Cfg.GetJncepPath()
	if err != nil {
		return nil, err
	}
	env.Log.Debug("Using jncep", zap.String("path", path))

	gen := jncep.NewRunner(path, jncep.NewOptions(env.Cfg), env.Log)

	if env.Cfg.Purchase.Enabled {
		client := labs.New(env.Cfg.Purchase.API, nil)
		opts = append(opts, download.WithPurchaser(download.NewBuyer(env.Cfg.Purchase, client, env.Log)))
		env.Log.Info("Automatic purchase enabled", zap.String("api", env.Cfg.Purchase.API), zap.Int("delay", env.Cfg.Purchase.Delay))
	}

	m, err := mailer.New(env.Cfg.SMTPConfig, nil)
	switch {
	case err == nil:
		opts = append(opts, download.WithMailer(m))
	case errors.Is(err, mailer.ErrNotConfigured):
		env.Log.Debug("Send to kindle is not configured")
	default:
		return nil, err
	}

	return download.New(env.Cfg, gen, env.Log, opts...), nil
}
