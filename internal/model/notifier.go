package model

import "context"

// Notifier defines a generic interface for sending notifications.
type Notifier interface {
	Send(subject, body string) error
}

// Analyzer produces a free-text analysis of an alert summary.
type Analyzer interface {
	AnalyzeTraffic(ctx context.Context, input string) (string, error)
}
