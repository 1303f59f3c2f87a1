package config

import (
	"context"
	"errors"
	"io/fs"
	"os"
)

// LoadOptions control where configuration is read from.
type LoadOptions struct {
	// Path of the Lua config. Empty means SEAPACK_CONFIG or seapack.lua.
	Path string
	// Getenv overrides os.Getenv.
	Getenv func(string) string
}

// Load resolves configuration from defaults, the optional Lua file and the
// environment, in that order. A missing default config file is not an error;
// a missing file that was asked for explicitly is.
func (p *Parser) Load(ctx context.Context, opts LoadOptions) (*Config, error) {
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	path := opts.Path
	explicit := path != ""
	if !explicit {
		if env := getenv(EnvConfigFile); env != "" {
			path, explicit = env, true
		} else {
			path = DefaultConfigFile
		}
	}

	cfg, err := p.ParseFile(ctx, path)
	switch {
	case err == nil:
		p.logger.Debug("loaded config", "path", path)
	case !explicit && errors.Is(err, fs.ErrNotExist):
		p.logger.Debug("no config file, using defaults", "path", path)
		cfg = Default()
	default:
		return nil, err
	}

	ApplyEnv(cfg, getenv)
	return cfg, nil
}
