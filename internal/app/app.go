package app

import (
	"github.com/rs/zerolog"
)

// Application wires config, logging, the backend and the tracker together for
// the TUI and the CLI commands.
type Application struct {
	Config  Config
	Logger  zerolog.Logger
	Backend Backend
	Tracker *Tracker
}

// NewApplication builds the app. With mockMode set (or no server configured)
// the tracker runs against the in-process mock backend instead of HTTP.
func NewApplication(cfg Config, mockMode bool) (*Application, error) {
	logger, err := NewLogger(cfg.LogPath)
	if err != nil {
		return nil, err
	}

	var backend Backend
	if mockMode || cfg.ServerURL == "" {
		backend = NewMockBackend()
		logger.Info().Msg("using mock backend")
	} else {
		backend = NewClient(cfg.ServerURL)
	}

	return &Application{
		Config:  cfg,
		Logger:  logger,
		Backend: backend,
		Tracker: NewTracker(backend, logger, cfg.TrackerOptions()),
	}, nil
}
