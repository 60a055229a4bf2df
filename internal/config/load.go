package config

import (
	"os"

	"github.com/spf13/pflag"
)

// Options tells Load where to look. Zero values mean: no config file, the
// .env file in the working directory if present, no flags and the process
// environment.
type Options struct {
	ConfigFile string
	EnvFile    string
	Flags      *pflag.FlagSet
	LookupEnv  func(key string) (string, bool)
}

// Load builds a Config from defaults, then the config file, the
// environment and finally the flags, and validates the result.
func Load(o Options) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	configFile, envFile := o.ConfigFile, o.EnvFile
	envRequired := envFile != ""
	if o.Flags != nil {
		if f := o.Flags.Lookup(FlagConfig); f != nil && f.Changed {
			configFile = f.Value.String()
		}
		if f := o.Flags.Lookup(FlagEnvFile); f != nil {
			envFile = f.Value.String()
			envRequired = f.Changed
		}
	}
	if envFile == "" {
		envFile = ".env"
	}

	if configFile != "" {
		if err := parseFile(cfg, configFile); err != nil {
			return nil, err
		}
	}

	lookup := o.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	lookup, err := withDotEnv(lookup, envFile, envRequired)
	if err != nil {
		return nil, err
	}
	if err := parseEnv(cfg, lookup); err != nil {
		return nil, err
	}

	if o.Flags != nil {
		if err := cfg.ApplyFlags(o.Flags); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
