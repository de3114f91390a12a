// Package logging builds the application's zap logger.
package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/term"

	"automd/pkg/version"
)

// New returns the logger every front-end hands to the pipeline. Verbose
// selects the development config at debug level; otherwise the
// production config with info level and JSON output.
func New(verbose bool) (*zap.Logger, error) {
	var cfg zap.Config
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.InitialFields = map[string]interface{}{
		"appName":    "automd",
		"appVersion": version.Version,
	}
	return cfg.Build()
}

// Sync flushes the logger's buffer. Syncing stderr fails with EINVAL on
// some platforms when it is neither a terminal nor a regular file, so
// the flush runs only when it can succeed and that specific failure is
// swallowed.
func Sync(logger *zap.Logger) {
	if !term.IsTerminal(int(os.Stderr.Fd())) && !isRegularFile(os.Stderr) {
		return
	}
	if err := logger.Sync(); err != nil {
		if !strings.Contains(strings.ToLower(err.Error()), "invalid argument") {
			logger.Warn("Logger sync failed", zap.Error(err))
		}
	}
}

func isRegularFile(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}
