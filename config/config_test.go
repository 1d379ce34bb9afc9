package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Xpolo29/torrent/pkg/log"
)

func TestParseArgsDefaults(t *testing.T) {
	cfg, err := ParseArgs(nil)
	if err != nil {
		t.Fatalf("ParseArgs: %s", err)
	}
	cfg.Resolve()

	if cfg.Port != DefaultPort {
		t.Fatalf("port = %d, want default %d", cfg.Port, DefaultPort)
	}
	if cfg.MaxConn != DefaultMaxConn {
		t.Fatalf("max-conn = %d, want default %d", cfg.MaxConn, DefaultMaxConn)
	}
	if cfg.LogLevel() != DefaultVerbose {
		t.Fatalf("verbose = %d, want default %d", cfg.Verbose, DefaultVerbose)
	}
}

func TestParseArgsExplicitValues(t *testing.T) {
	cfg, err := ParseArgs([]string{"-p", "4545", "-m", "8", "-t", "60"})
	if err != nil {
		t.Fatalf("ParseArgs: %s", err)
	}
	cfg.Resolve()

	if cfg.Port != 4545 {
		t.Fatalf("port = %d, want 4545", cfg.Port)
	}
	if cfg.MaxConn != 8 {
		t.Fatalf("max-conn = %d, want 8", cfg.MaxConn)
	}
	if cfg.CacheTime != 60 {
		t.Fatalf("cache-time = %d, want 60", cfg.CacheTime)
	}
}

func TestParseArgsVerboseBareTogglesFromUnset(t *testing.T) {
	cfg, err := ParseArgs([]string{"-v"})
	if err != nil {
		t.Fatalf("ParseArgs: %s", err)
	}
	if cfg.LogLevel() != log.LevelLog {
		t.Fatalf("verbose = %d, want LevelLog (first bare toggle from unset)", cfg.Verbose)
	}
}

func TestParseArgsVerboseExplicitThenBareToggles(t *testing.T) {
	// Each -v occurrence is applied in order, so the trailing bare -v
	// steps up from the WARNING level the explicit "-v 1" set.
	cfg, err := ParseArgs([]string{"-v", "1", "-v"})
	if err != nil {
		t.Fatalf("ParseArgs: %s", err)
	}
	if cfg.LogLevel() != log.LevelLog {
		t.Fatalf("verbose = %d, want LevelLog", cfg.Verbose)
	}
}

func TestParseArgsVerboseExplicitWraps(t *testing.T) {
	cfg, err := ParseArgs([]string{"-v", "9"})
	if err != nil {
		t.Fatalf("ParseArgs: %s", err)
	}
	if cfg.Verbose != 9%(int(log.LevelNone)+1) {
		t.Fatalf("verbose = %d, want 9 mod 5", cfg.Verbose)
	}
}

func TestParseArgsMaxConnOutOfBoundsFallsBack(t *testing.T) {
	cfg, err := ParseArgs([]string{"-m", "200"})
	if err != nil {
		t.Fatalf("ParseArgs: %s", err)
	}
	cfg.Resolve()

	if cfg.MaxConn != DefaultMaxConn {
		t.Fatalf("max-conn = %d, want fallback to default %d", cfg.MaxConn, DefaultMaxConn)
	}
}

func TestParseArgsHelp(t *testing.T) {
	_, err := ParseArgs([]string{"-h"})
	if err != ErrHelpRequested {
		t.Fatalf("err = %v, want ErrHelpRequested", err)
	}
}

func TestLoadFileFillsOnlyUnsetFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.ini")
	contents := "port = 7000\nverbose = 3\nmax-conn = 12\ncache-time = 120\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %s", err)
	}

	cfg, err := ParseArgs([]string{"-p", "4545", "-c", path})
	if err != nil {
		t.Fatalf("ParseArgs: %s", err)
	}
	if err := cfg.LoadFile(); err != nil {
		t.Fatalf("LoadFile: %s", err)
	}
	cfg.Resolve()

	if cfg.Port != 4545 {
		t.Fatalf("port = %d, want CLI value 4545 to win over config file", cfg.Port)
	}
	if cfg.MaxConn != 12 {
		t.Fatalf("max-conn = %d, want 12 from config file", cfg.MaxConn)
	}
	if cfg.CacheTime != 120 {
		t.Fatalf("cache-time = %d, want 120 from config file", cfg.CacheTime)
	}
	if cfg.LogLevel() != log.LevelDebug {
		t.Fatalf("verbose = %d, want LevelDebug from config file", cfg.Verbose)
	}
}
