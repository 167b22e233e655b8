package query

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"TrafficSentry/internal/cluster"
	"TrafficSentry/internal/config"
	"TrafficSentry/internal/model"
	"TrafficSentry/internal/store"
)

// ErrNoRuns is returned when no clustering run has been stored yet.
var ErrNoRuns = errors.New("no clustering runs stored")

// Querier defines the interface for querying stored clustering runs. An empty run ID
// selects the latest run.
type Querier interface {
	LatestRun(ctx context.Context) (string, error)
	SourceMetrics(ctx context.Context, runID string) ([]model.SourceRecord, error)
	ClusterInfo(ctx context.Context, runID string) ([]model.ClusterSummary, error)
	ClusterSources(ctx context.Context, runID string, clusterID int) ([]model.SourceRecord, error)
}

// clickhouseQuerier implements the Querier interface for ClickHouse.
type clickhouseQuerier struct {
	conn driver.Conn
}

// NewClickHouseQuerier creates a new querier for ClickHouse.
func NewClickHouseQuerier(cfg config.ClickHouseConfig) (Querier, error) {
	conn, err := store.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}
	return &clickhouseQuerier{conn: conn}, nil
}

const selectSources = `
	SELECT
		SourceIP, PacketsPerSecond, PacketCount, AveragePacketSize, UniquePorts,
		TotalBytes, Duration, Protocols, Extra, ClusterID, ClusterName, IsDangerous, DangerScore
	FROM source_clusters
	WHERE RunID = ?`

// LatestRun returns the ID of the most recently stored run.
func (q *clickhouseQuerier) LatestRun(ctx context.Context) (string, error) {
	var runID string
	row := q.conn.QueryRow(ctx, `SELECT RunID FROM source_clusters ORDER BY Timestamp DESC LIMIT 1`)
	if err := row.Scan(&runID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNoRuns
		}
		return "", fmt.Errorf("failed to query latest run: %w", err)
	}
	return runID, nil
}

func (q *clickhouseQuerier) resolve(ctx context.Context, runID string) (string, error) {
	if runID != "" {
		return runID, nil
	}
	return q.LatestRun(ctx)
}

// SourceMetrics returns every source of a run ordered by cluster and address.
func (q *clickhouseQuerier) SourceMetrics(ctx context.Context, runID string) ([]model.SourceRecord, error) {
	runID, err := q.resolve(ctx, runID)
	if err != nil {
		return nil, err
	}
	return q.sources(ctx, selectSources+" ORDER BY ClusterID, SourceIP", runID)
}

// ClusterInfo returns one summary per cluster of a run, most dangerous first.
func (q *clickhouseQuerier) ClusterInfo(ctx context.Context, runID string) ([]model.ClusterSummary, error) {
	sources, err := q.SourceMetrics(ctx, runID)
	if err != nil {
		return nil, err
	}
	return cluster.Summarize(sources), nil
}

// ClusterSources returns the members of one cluster of a run.
func (q *clickhouseQuerier) ClusterSources(ctx context.Context, runID string, clusterID int) ([]model.SourceRecord, error) {
	runID, err := q.resolve(ctx, runID)
	if err != nil {
		return nil, err
	}
	return q.sources(ctx, selectSources+" AND ClusterID = ? ORDER BY SourceIP", runID, uint32(clusterID))
}

func (q *clickhouseQuerier) sources(ctx context.Context, query string, args ...interface{}) ([]model.SourceRecord, error) {
	rows, err := q.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var out []model.SourceRecord
	for rows.Next() {
		var (
			r                       model.SourceRecord
			packetCount, totalBytes uint64
			uniquePorts, clusterID  uint32
			extra                   string
		)
		if err := rows.Scan(
			&r.SourceIP, &r.PacketsPerSecond, &packetCount, &r.AveragePacketSize, &uniquePorts,
			&totalBytes, &r.Duration, &r.Protocols, &extra, &clusterID, &r.ClusterName, &r.IsDangerous, &r.DangerScore,
		); err != nil {
			return nil, fmt.Errorf("failed to scan source row: %w", err)
		}
		r.PacketCount = int(packetCount)
		r.TotalBytes = int64(totalBytes)
		r.UniquePorts = int(uniquePorts)
		r.ClusterID = int(clusterID)
		if extra != "" {
			if err := json.Unmarshal([]byte(extra), &r.Extra); err != nil {
				return nil, fmt.Errorf("failed to decode passthrough fields of %s: %w", r.SourceIP, err)
			}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read source rows: %w", err)
	}
	return out, nil
}
