package feed

import (
	"context"
	"fmt"

	"volflow/config"
	"volflow/models"
)

// Source delivers one trading session's raw options tape in a single shot.
// Acquisition either returns the full day or fails; there is no partial
// delivery. A failed fetch is fatal to the run.
type Source interface {
	Fetch(ctx context.Context) ([]models.Trade, error)
}

// NewSource builds the tape source selected by feed.kind.
func NewSource(cfg *config.Config) (Source, error) {
	switch cfg.Feed.Kind {
	case "csv":
		return newCSVSource(cfg), nil
	case "rest":
		return newRESTSource(cfg), nil
	case "replay":
		return newReplaySource(cfg), nil
	default:
		return nil, fmt.Errorf("unknown feed kind %q", cfg.Feed.Kind)
	}
}
