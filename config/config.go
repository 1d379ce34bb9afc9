// Package config resolves the tracker's runtime settings from command
// line flags and an INI config file, mirroring args.c/parameters.c:
// flags are parsed first, the config file only fills whatever flags
// left untouched, and anything still missing falls back to a default.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/pflag"
	"gopkg.in/ini.v1"

	"github.com/Xpolo29/torrent/dispatcher"
	"github.com/Xpolo29/torrent/pkg/log"
)

// unset marks a field untouched by either the command line or the
// config file (the original's port/thread_pool_size/time_to_live -1
// sentinel). Verbose uses the same sentinel rather than reusing LevelError
// as its "unset" value the way the C enum does, since that aliasing is
// what makes a second bare -v after an explicit "-v 0" behave like the
// first one.
const unset = -1

// Defaults applied to any field still unset once the command line and
// the config file have both been consulted.
const (
	DefaultPort       = 9009
	DefaultMaxConn    = 16
	DefaultCacheTime  = 3600
	DefaultConfigPath = "config.ini"
)

// DefaultVerbose is the starting verbosity (the original's log_level =
// WARNING).
const DefaultVerbose = log.LevelWarning

// ErrHelpRequested is returned by ParseArgs when -h/--help was given;
// callers should print usage and exit 0 rather than treat it as failure.
var ErrHelpRequested = errors.New("config: help requested")

// Config holds everything the tracker needs to start.
type Config struct {
	Port       int
	Verbose    int // resolves to a log.Level; unset until Resolve runs
	MaxConn    int
	CacheTime  int64
	ConfigPath string
}

// New returns a Config with every field at its unset sentinel, ready for
// ParseArgs and LoadFile to fill in.
func New() *Config {
	return &Config{
		Port:       unset,
		Verbose:    unset,
		MaxConn:    unset,
		CacheTime:  unset,
		ConfigPath: DefaultConfigPath,
	}
}

const usage = `Usage: tracker [OPTION...] [OPTION VALUE]

  -v, --verbose [0-4]      0=ERROR 1=WARNING(default) 2=LOG 3=DEBUG 4=NONE;
                           bare flag steps the level up by one
  -h, --help               show this message
  -c, --config <path>      path to config.ini
  -m, --max-conn [1-%d]    number of simultaneous task workers
  -p, --port [1-65535]     listening port
  -t, --cache-time <secs>  time to live of a registry entry
`

// ParseArgs parses a tracker's command line flags into a fresh Config.
// It returns ErrHelpRequested when -h/--help is present.
func ParseArgs(args []string) (*Config, error) {
	cfg := New()

	fs := pflag.NewFlagSet("tracker", pflag.ContinueOnError)
	fs.Usage = func() { fmt.Fprintf(os.Stderr, usage, dispatcher.MaxWorkers) }

	help := fs.BoolP("help", "h", false, "show this message")
	verbose := fs.StringArrayP("verbose", "v", nil, "log verbosity 0-4")
	fs.Lookup("verbose").NoOptDefVal = "toggle"
	port := fs.IntP("port", "p", unset, "listening port")
	configPath := fs.StringP("config", "c", DefaultConfigPath, "path to config.ini")
	maxConn := fs.IntP("max-conn", "m", unset, "worker pool size")
	cacheTime := fs.IntP("cache-time", "t", unset, "registry TTL in seconds")

	// pflag never takes a separate value token for a flag with NoOptDefVal,
	// so "-v 3" is joined into "-v=3" whenever the next token starts with a
	// digit, the way args.c peeks at argv[i+1].
	joined := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		a := args[i]
		if (a == "-v" || a == "--verbose") && i+1 < len(args) && args[i+1] != "" && args[i+1][0] >= '0' && args[i+1][0] <= '9' {
			a += "=" + args[i+1]
			i++
		}
		joined = append(joined, a)
	}

	if err := fs.Parse(joined); err != nil {
		return nil, err
	}
	if *help {
		return nil, ErrHelpRequested
	}

	// Every -v occurrence is applied in command line order, so a bare -v
	// steps up from whatever an earlier -v set.
	for _, raw := range *verbose {
		if err := applyVerbose(cfg, raw); err != nil {
			return nil, err
		}
	}
	if fs.Changed("port") {
		cfg.Port = *port
		log.Info("config: port updated", log.Fields{"port": cfg.Port})
	}
	if fs.Changed("config") {
		log.Info("config: config path updated", log.Fields{"path": *configPath})
	}
	cfg.ConfigPath = *configPath

	if fs.Changed("max-conn") {
		if *maxConn < 1 || *maxConn > dispatcher.MaxWorkers {
			log.Warn("config: -m value is outside of bounds, using default", log.Fields{
				"min": 1, "max": dispatcher.MaxWorkers, "got": *maxConn,
			})
		} else {
			cfg.MaxConn = *maxConn
			log.Info("config: max connections updated", log.Fields{"max_conn": cfg.MaxConn})
		}
	}
	if fs.Changed("cache-time") {
		cfg.CacheTime = int64(*cacheTime)
		log.Info("config: cache lifespan updated", log.Fields{"cache_time": cfg.CacheTime})
	}

	return cfg, nil
}

// applyVerbose implements the bare-flag-toggles-upward rule: "-v" alone
// steps the level up by one (starting at LOG if nothing was set yet),
// while "-v <n>" sets it to n modulo NONE+1.
func applyVerbose(cfg *Config, raw string) error {
	if raw == "toggle" {
		if cfg.Verbose == unset {
			cfg.Verbose = int(log.LevelLog)
		} else {
			cfg.Verbose = (cfg.Verbose + 1) % (int(log.LevelNone) + 1)
		}
		return nil
	}

	n, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("config: invalid -v value %q", raw)
	}
	cfg.Verbose = n % (int(log.LevelNone) + 1)
	return nil
}

// LoadFile ingests cfg.ConfigPath, filling only the fields the command
// line left unset (apply_parameter's precedence: config never overrides
// an already-set value). Recognized keys live in the file's default
// section: port, verbose, max-conn, cache-time.
func (cfg *Config) LoadFile() error {
	raw, err := ini.Load(cfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("config: opening %s: %w", cfg.ConfigPath, err)
	}

	section := raw.Section("")

	if cfg.Port == unset && section.HasKey("port") {
		if v, err := section.Key("port").Int(); err == nil {
			log.Debug("config: loading parameter from file", log.Fields{"key": "port", "value": v})
			cfg.Port = v
		}
	}
	if cfg.Verbose == unset && section.HasKey("verbose") {
		if v, err := section.Key("verbose").Int(); err == nil {
			log.Debug("config: loading parameter from file", log.Fields{"key": "verbose", "value": v})
			cfg.Verbose = v % (int(log.LevelNone) + 1)
		}
	}
	if cfg.MaxConn == unset && section.HasKey("max-conn") {
		if v, err := section.Key("max-conn").Int(); err == nil {
			log.Debug("config: loading parameter from file", log.Fields{"key": "max-conn", "value": v})
			cfg.MaxConn = v
		}
	}
	if cfg.CacheTime == unset && section.HasKey("cache-time") {
		if v, err := section.Key("cache-time").Int64(); err == nil {
			log.Debug("config: loading parameter from file", log.Fields{"key": "cache-time", "value": v})
			cfg.CacheTime = v
		}
	}

	return nil
}

// Resolve fills any field still unset after flag and file parsing with
// its default, and clamps MaxConn back into [1, dispatcher.MaxWorkers]
// in case the config file supplied an out-of-range value directly.
func (cfg *Config) Resolve() {
	if cfg.Port == unset {
		cfg.Port = DefaultPort
	}
	if cfg.Verbose == unset {
		cfg.Verbose = int(DefaultVerbose)
	}
	if cfg.MaxConn == unset || cfg.MaxConn < 1 || cfg.MaxConn > dispatcher.MaxWorkers {
		if cfg.MaxConn != unset {
			log.Warn("config: max-conn value is outside of bounds, using default", log.Fields{
				"min": 1, "max": dispatcher.MaxWorkers, "got": cfg.MaxConn,
			})
		}
		cfg.MaxConn = DefaultMaxConn
	}
	if cfg.CacheTime == unset {
		cfg.CacheTime = DefaultCacheTime
	}
}

// LogLevel returns the resolved verbosity as a log.Level.
func (cfg *Config) LogLevel() log.Level {
	return log.Level(cfg.Verbose)
}

// Usage writes the CLI help text to stderr.
func Usage() {
	fmt.Fprintf(os.Stderr, usage, dispatcher.MaxWorkers)
}
