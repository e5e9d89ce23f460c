package internal

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hyperterse/widgetquery/core/logger"
	"github.com/hyperterse/widgetquery/core/parser"
)

// LoadConfig resolves filePath to an absolute path and loads the configuration
// it points at. A directory is resolved to its widgetquery.yaml.
func LoadConfig(filePath string) (*parser.Config, error) {
	if filePath == "" {
		return nil, fmt.Errorf("no configuration file given")
	}
	if info, err := os.Stat(filePath); err == nil && info.IsDir() {
		filePath = filepath.Join(filePath, "widgetquery.yaml")
	}
	abs, err := filepath.Abs(filePath)
	if err != nil {
		return nil, fmt.Errorf("invalid config path %q: %w", filePath, err)
	}
	cfg, err := parser.LoadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	return cfg, nil
}

// ResolvePort resolves the port from CLI flag, config file, env var, or default
func ResolvePort(cliPort string, cfg *parser.Config) string {
	if cliPort != "" {
		return cliPort
	}
	if port := os.Getenv("PORT"); port != "" {
		return port
	}
	if cfg != nil && cfg.Server.Port != "" {
		return cfg.Server.Port
	}
	return parser.DefaultPort
}

// ResolveLogLevel resolves the log level from verbose flag, CLI flag, config file, or default
func ResolveLogLevel(verbose bool, cliLogLevel int, cfg *parser.Config) int {
	if verbose {
		return logger.LogLevelDebug
	}
	if cliLogLevel > 0 {
		return cliLogLevel
	}
	if cfg != nil && cfg.Server.LogLevel > 0 {
		return cfg.Server.LogLevel
	}
	return logger.LogLevelInfo
}
