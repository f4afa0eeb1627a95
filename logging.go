package zframe

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Environment variables read by ConfigureLogging.
const (
	EnvLogLevel   = "ZFRAME_LOG_LEVEL"
	EnvLogNoColor = "ZFRAME_LOG_NOCOLOR"
)

var (
	loggerMu sync.RWMutex
	logger   = zerolog.New(os.Stderr).With().Timestamp().Str("component", "zframe").Logger()
)

// Logger returns the package logger. Bounds violations, argument count
// mismatches and relay failures are reported through it.
func Logger() zerolog.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return logger
}

// SetLogger replaces the package logger.
func SetLogger(l zerolog.Logger) {
	loggerMu.Lock()
	logger = l
	loggerMu.Unlock()
}

// LogConfig controls ConfigureLogging.
type LogConfig struct {
	Level   string `toml:"level"`
	Console bool   `toml:"console"`
	NoColor bool   `toml:"no_color"`
}

// ConfigureLogging installs a logger built from cfg, with ZFRAME_LOG_LEVEL
// and ZFRAME_LOG_NOCOLOR taking precedence over the config values.
func ConfigureLogging(cfg LogConfig) zerolog.Logger {
	applyLogEnvOverrides(&cfg)

	level, ok := parseLevel(cfg.Level)
	if !ok {
		level = zerolog.InfoLevel
	}

	var l zerolog.Logger
	if cfg.Console {
		output := zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
			NoColor:    cfg.NoColor,
		}
		l = zerolog.New(output)
	} else {
		l = zerolog.New(os.Stderr)
	}
	l = l.Level(level).With().Timestamp().Str("component", "zframe").Logger()
	SetLogger(l)
	return l
}

func applyLogEnvOverrides(cfg *LogConfig) {
	if raw := os.Getenv(EnvLogLevel); raw != "" {
		cfg.Level = raw
	}
	if v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(EnvLogNoColor))); err == nil {
		cfg.NoColor = v
	}
}

func parseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "off", "disabled":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}
