package app

import (
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// NewLogger returns a logger writing structured JSON lines to path. The TUI
// owns stdout, so diagnostics always go to a file.
func NewLogger(path string) (zerolog.Logger, error) {
	if path == "" {
		path = DefaultLogPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return zerolog.Nop(), err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return zerolog.Nop(), err
	}
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(f).With().
		Timestamp().
		Str("service", "driftwatch").
		Logger()
	return logger, nil
}

func DefaultLogPath() string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "driftwatch", "driftwatch.log")
}
