package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/rs/zerolog/log"

	"TrafficSentry/internal/config"
	"TrafficSentry/internal/model"
)

// TimestampLayout is the layout of the snapshot timestamps handed to writers.
const TimestampLayout = "2006-01-02_15-04-05"

const createSourcesTable = `
CREATE TABLE IF NOT EXISTS source_clusters (
    Timestamp         DateTime,
    RunID             String,
    Method            LowCardinality(String),
    SourceIP          String,
    PacketsPerSecond  Float64,
    PacketCount       UInt64,
    AveragePacketSize Float64,
    UniquePorts       UInt32,
    TotalBytes        UInt64,
    Duration          Float64,
    Protocols         Array(String),
    Extra             String,
    ClusterID         UInt32,
    ClusterName       String,
    IsDangerous       Bool,
    DangerScore       Float64
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(Timestamp)
ORDER BY (Timestamp, RunID, ClusterID);
`

const createThreatsTable = `
CREATE TABLE IF NOT EXISTS packet_threats (
    Timestamp   DateTime,
    PacketID    String,
    ThreatScore Float64,
    ThreatLevel LowCardinality(String),
    IsMalicious Bool,
    Reasons     Array(String),
    ScoredAt    DateTime64(3)
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(Timestamp)
ORDER BY (Timestamp, ThreatLevel);
`

// ClickHouseWriter implements the model.Writer interface for ClickHouse.
type ClickHouseWriter struct {
	conn     driver.Conn
	interval time.Duration
}

// NewClickHouseWriter connects to ClickHouse and makes sure both tables exist.
func NewClickHouseWriter(cfg config.ClickHouseConfig, interval time.Duration) (*ClickHouseWriter, error) {
	conn, err := Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	for _, stmt := range []string{createSourcesTable, createThreatsTable} {
		if err := conn.Exec(context.Background(), stmt); err != nil {
			return nil, fmt.Errorf("failed to create table: %w", err)
		}
	}
	log.Info().Str("host", cfg.Host).Int("port", cfg.Port).Msg("Connected to ClickHouse and ensured tables exist")

	return &ClickHouseWriter{conn: conn, interval: interval}, nil
}

// Connect opens and pings a ClickHouse connection.
func Connect(cfg config.ClickHouseConfig) (driver.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}
	return conn, nil
}

// GetInterval returns the configured snapshot interval for this writer.
func (w *ClickHouseWriter) GetInterval() time.Duration {
	return w.interval
}

// Write inserts a model.ClusterRun into source_clusters or a []model.ThreatAssessment into
// packet_threats.
func (w *ClickHouseWriter) Write(payload interface{}, timestamp string) error {
	snapshotTime, err := time.Parse(TimestampLayout, timestamp)
	if err != nil {
		snapshotTime = time.Now().UTC()
	}

	switch p := payload.(type) {
	case model.ClusterRun:
		return w.writeRun(p, snapshotTime)
	case []model.ThreatAssessment:
		return w.writeAssessments(p, snapshotTime)
	default:
		return fmt.Errorf("invalid payload type for ClickHouse Writer: %T", payload)
	}
}

func (w *ClickHouseWriter) writeRun(run model.ClusterRun, at time.Time) error {
	if len(run.Sources) == 0 {
		return nil
	}

	batch, err := w.conn.PrepareBatch(context.Background(), "INSERT INTO source_clusters")
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, s := range run.Sources {
		extra, err := encodeExtra(s.Extra)
		if err != nil {
			batch.Abort()
			return fmt.Errorf("source %s: %w", s.SourceIP, err)
		}
		protocols := s.Protocols
		if protocols == nil {
			protocols = []string{}
		}
		err = batch.Append(
			at,
			run.RunID,
			run.Method,
			s.SourceIP,
			s.PacketsPerSecond,
			uint64(max(s.PacketCount, 0)),
			s.AveragePacketSize,
			uint32(max(s.UniquePorts, 0)),
			uint64(max(s.TotalBytes, 0)),
			s.Duration,
			protocols,
			extra,
			uint32(max(s.ClusterID, 0)),
			s.ClusterName,
			s.IsDangerous,
			s.DangerScore,
		)
		if err != nil {
			batch.Abort()
			return fmt.Errorf("failed to append source to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	log.Info().Str("run_id", run.RunID).Int("sources", len(run.Sources)).Msg("Wrote clustering run to ClickHouse")
	return nil
}

func (w *ClickHouseWriter) writeAssessments(assessments []model.ThreatAssessment, at time.Time) error {
	if len(assessments) == 0 {
		return nil
	}

	batch, err := w.conn.PrepareBatch(context.Background(), "INSERT INTO packet_threats")
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, a := range assessments {
		reasons := a.Reasons
		if reasons == nil {
			reasons = []string{}
		}
		scoredAt := a.ScoredAt
		if scoredAt.IsZero() {
			scoredAt = at
		}
		if err := batch.Append(at, a.PacketID, a.ThreatScore, string(a.ThreatLevel), a.IsMalicious, reasons, scoredAt); err != nil {
			batch.Abort()
			return fmt.Errorf("failed to append assessment to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	log.Debug().Int("assessments", len(assessments)).Msg("Wrote threat assessments to ClickHouse")
	return nil
}

func encodeExtra(extra map[string]any) (string, error) {
	if len(extra) == 0 {
		return "", nil
	}
	data, err := json.Marshal(extra)
	if err != nil {
		return "", fmt.Errorf("failed to encode passthrough fields: %w", err)
	}
	return string(data), nil
}
