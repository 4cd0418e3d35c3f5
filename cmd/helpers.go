package cmd

import (
	"os"
	"strings"

	"agentauth/internal/config"
	"agentauth/internal/runtime"
	"agentauth/pkg/logging"
)

// loadRuntime loads configuration, initializes logging accordingly and
// builds the runtime. Every subcommand goes through here so flag
// handling stays in one place.
func loadRuntime() (*runtime.Runtime, error) {
	path := configPath
	if path == "" {
		path = config.GetDefaultConfigPathOrPanic()
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	initLogging(cfg)

	return runtime.New(cfg)
}

func initLogging(cfg config.Config) {
	level := parseLogLevel(cfg.Logging.Level)
	if debug {
		level = logging.LevelDebug
	}
	logging.Init(cfg.Logging.Format, level, os.Stderr)
}

func parseLogLevel(raw string) logging.LogLevel {
	switch strings.ToLower(raw) {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}
