package writer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	appconfig "volflow/config"
	"volflow/logger"
	"volflow/models"
)

// seriesDocument is the session-level JSON artifact consumed by the surface
// renderer. The grids and raw points are stored once per bucket; the views
// list tells the renderer which layer combinations to offer.
type seriesDocument struct {
	Ticker      string                `json:"ticker"`
	Date        string                `json:"date"`
	RunID       string                `json:"run_id"`
	GeneratedAt time.Time             `json:"generated_at"`
	Views       []string              `json:"views"`
	Entries     []models.SurfaceEntry `json:"entries"`
}

// renderViews are the layer combinations the renderer supports: the fitted
// surface alone, the surface with the raw OTM prints overlaid, the prints
// alone, and the surface as a wireframe mesh.
var renderViews = []string{"surface", "surface_points", "points", "wireframe"}

// DatasetWriter persists the completed surface series as one JSON document
// per run.
type DatasetWriter struct {
	dir   string
	runID string
	log   *logger.Log
}

func NewDatasetWriter(cfg *appconfig.Config, runID string) *DatasetWriter {
	dir := cfg.Writer.Formats.JSON.Dir
	if dir == "" {
		dir = "output"
	}
	return &DatasetWriter{
		dir:   dir,
		runID: runID,
		log:   logger.GetLogger(),
	}
}

// WriteSeries writes the session document atomically and returns its path.
func (w *DatasetWriter) WriteSeries(series models.SurfaceSeries) (string, error) {
	log := w.log.WithComponent("dataset_writer").WithFields(logger.Fields{
		"ticker":   series.Ticker,
		"date":     series.Date,
		"surfaces": len(series.Entries),
	})

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	doc := seriesDocument{
		Ticker:      series.Ticker,
		Date:        series.Date,
		RunID:       w.runID,
		GeneratedAt: time.Now().UTC(),
		Views:       renderViews,
		Entries:     series.Entries,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal series document: %w", err)
	}

	path := filepath.Join(w.dir, fmt.Sprintf("%s_%s_series.json", series.Ticker, series.Date))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write series document: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("finalize series document: %w", err)
	}

	logger.IncrementArtifactWrite(int64(len(data)))
	log.WithFields(logger.Fields{"path": path, "bytes": len(data)}).Info("series document written")
	return path, nil
}
