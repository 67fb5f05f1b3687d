package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

const (
	defaultConfigFile = "odmctl.yaml"
	defaultDatabase   = "gogoose"
	defaultLogLevel   = "warn"
)

const (
	engineMemory   = "memory"
	enginePostgres = "postgres"
	engineMongo    = "mongo"
)

const (
	flagConfig   = "config"
	flagEngine   = "engine"
	flagDSN      = "dsn"
	flagURI      = "uri"
	flagDatabase = "database"
	flagLogLevel = "log-level"
)

var (
	ErrUnknownEngine   = errors.New("unknown engine")
	ErrMissingDSN      = errors.New("the postgres engine needs a dsn")
	ErrMissingURI      = errors.New("the mongo engine needs a uri")
	ErrReadingConfig   = errors.New("reading config file failed")
	ErrInvalidLogLevel = errors.New("invalid log level")
)

// config is the content of odmctl.yaml. Command line flags override file values.
type config struct {
	Engine   string `yaml:"engine"`
	DSN      string `yaml:"dsn"`
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
	LogLevel string `yaml:"log_level"`
}

func defaultConfig() config {
	return config{
		Engine:   engineMemory,
		Database: defaultDatabase,
		LogLevel: defaultLogLevel,
	}
}

// loadConfig reads path on top of the defaults. A missing file is only an error when the
// path was given explicitly.
func loadConfig(path string, explicit bool) (config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return cfg, nil
		}

		return config{}, errors.Join(ErrReadingConfig, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return config{}, errors.Join(ErrReadingConfig, err)
	}

	return cfg, nil
}

// applyFlags overrides cfg with every connection flag set on the command line.
func applyFlags(cfg config, flags *pflag.FlagSet) config {
	overrides := map[string]*string{
		flagEngine:   &cfg.Engine,
		flagDSN:      &cfg.DSN,
		flagURI:      &cfg.URI,
		flagDatabase: &cfg.Database,
		flagLogLevel: &cfg.LogLevel,
	}

	for name, target := range overrides {
		if !flags.Changed(name) {
			continue
		}

		if value, err := flags.GetString(name); err == nil {
			*target = value
		}
	}

	return cfg
}

func (c config) validate() error {
	switch c.Engine {
	case engineMemory:
	case enginePostgres:
		if c.DSN == "" {
			return ErrMissingDSN
		}
	case engineMongo:
		if c.URI == "" {
			return ErrMissingURI
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEngine, c.Engine)
	}

	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return errors.Join(ErrInvalidLogLevel, err)
	}

	return nil
}
