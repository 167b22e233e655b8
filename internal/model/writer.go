package model

import "time"

// Writer defines a generic interface for writing engine output to a persistent store.
type Writer interface {
	// Write takes a data payload and persists it. Payloads are either a ClusterRun or a
	// []ThreatAssessment; implementations skip payload types they do not store.
	Write(payload interface{}, timestamp string) error

	// GetInterval returns the configured snapshot interval for this writer.
	GetInterval() time.Duration
}
