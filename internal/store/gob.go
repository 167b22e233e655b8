package store

import (
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"TrafficSentry/internal/model"
)

func init() {
	// Passthrough fields decoded from JSON hold these container types.
	gob.Register([]interface{}{})
	gob.Register(map[string]interface{}{})
}

const (
	sourcesFile     = "sources.dat"
	summaryFile     = "summary.json"
	assessmentsFile = "assessments.dat"
)

// RunSummary is the human-readable companion of a stored clustering run.
type RunSummary struct {
	RunID             string                 `json:"run_id"`
	Method            string                 `json:"method"`
	RequestedClusters int                    `json:"requested_clusters"`
	TotalSources      int                    `json:"total_sources"`
	DangerousClusters int                    `json:"dangerous_clusters"`
	Clusters          []model.ClusterSummary `json:"clusters"`
	StartedAt         time.Time              `json:"started_at"`
	FinishedAt        time.Time              `json:"finished_at"`
	Timestamp         string                 `json:"timestamp"`
}

// GobWriter writes clustering runs and threat assessments to disk. A run is stored under
// <root>/<timestamp>/<run id>/ as gob-encoded sources plus a JSON summary.
// It implements the model.Writer interface.
type GobWriter struct {
	rootPath string
	interval time.Duration
}

// NewGobWriter creates a new on-disk writer.
func NewGobWriter(rootPath string, interval time.Duration) *GobWriter {
	return &GobWriter{rootPath: rootPath, interval: interval}
}

// GetInterval returns the configured snapshot interval for this writer.
func (w *GobWriter) GetInterval() time.Duration {
	return w.interval
}

// Write persists a model.ClusterRun or a []model.ThreatAssessment.
func (w *GobWriter) Write(payload interface{}, timestamp string) error {
	switch p := payload.(type) {
	case model.ClusterRun:
		return w.writeRun(p, timestamp)
	case []model.ThreatAssessment:
		return w.writeAssessments(p, timestamp)
	default:
		return fmt.Errorf("invalid payload type for GobWriter: %T", payload)
	}
}

func (w *GobWriter) writeRun(run model.ClusterRun, timestamp string) error {
	if len(run.Sources) == 0 {
		return nil
	}

	runDir := filepath.Join(w.rootPath, timestamp, run.RunID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	if err := writeGob(filepath.Join(runDir, sourcesFile), run.Sources); err != nil {
		return err
	}

	dangerous := 0
	for _, c := range run.Clusters {
		if c.IsDangerous {
			dangerous++
		}
	}
	summary := RunSummary{
		RunID:             run.RunID,
		Method:            run.Method,
		RequestedClusters: run.Requested,
		TotalSources:      len(run.Sources),
		DangerousClusters: dangerous,
		Clusters:          run.Clusters,
		StartedAt:         run.StartedAt,
		FinishedAt:        run.FinishedAt,
		Timestamp:         time.Now().UTC().Format(time.RFC3339),
	}

	summaryFile, err := os.Create(filepath.Join(runDir, summaryFile))
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	defer summaryFile.Close()

	jsonEncoder := json.NewEncoder(summaryFile)
	jsonEncoder.SetIndent("", "  ")
	if err := jsonEncoder.Encode(summary); err != nil {
		return fmt.Errorf("failed to encode summary to json: %w", err)
	}

	log.Debug().Str("run_id", run.RunID).Str("dir", runDir).Int("sources", len(run.Sources)).Msg("Wrote clustering run")
	return nil
}

func (w *GobWriter) writeAssessments(assessments []model.ThreatAssessment, timestamp string) error {
	if len(assessments) == 0 {
		return nil
	}
	dir := filepath.Join(w.rootPath, timestamp)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	return writeGob(filepath.Join(dir, assessmentsFile), assessments)
}

func writeGob(path string, v any) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create snapshot file '%s': %w", path, err)
	}
	defer file.Close()

	if err := gob.NewEncoder(file).Encode(v); err != nil {
		return fmt.Errorf("failed to encode gob for file '%s': %w", path, err)
	}
	return nil
}

// ReadSources loads the sources of a stored run from its sources.dat file, or from the
// run directory containing it.
func ReadSources(path string) ([]model.SourceRecord, error) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, sourcesFile)
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot file: %w", err)
	}
	defer file.Close()

	var sources []model.SourceRecord
	if err := gob.NewDecoder(file).Decode(&sources); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot file '%s': %w", path, err)
	}
	return sources, nil
}

// ReadAssessments loads the assessments stored for one timestamp directory.
func ReadAssessments(dir string) ([]model.ThreatAssessment, error) {
	file, err := os.Open(filepath.Join(dir, assessmentsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to open assessments file: %w", err)
	}
	defer file.Close()

	var out []model.ThreatAssessment
	if err := gob.NewDecoder(file).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode assessments: %w", err)
	}
	return out, nil
}
