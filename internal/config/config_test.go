package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_AppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte("{}"))
	require.NoError(t, err)

	assert.Equal(t, "kmeans", cfg.Clustering.Method)
	assert.Equal(t, 3, cfg.Clustering.Clusters)
	assert.Equal(t, time.Minute, cfg.ClusteringPeriod())
	assert.Equal(t, 2, cfg.Clustering.MinPacketsPerSource)
	assert.Equal(t, 4, cfg.Engine.NumWorkers)
	assert.Equal(t, "sentry.packets", cfg.NATS.PacketSubject)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, 0.6, cfg.Alerter.MinDangerScore)
	assert.Equal(t, 60*time.Second, cfg.AITimeout())
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestParse_WriterDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
clustering:
  period: 30s
writers:
  - type: gob
    enabled: true
  - type: clickhouse
    enabled: true
    snapshot_interval: 10s
    clickhouse:
      host: ch
`))
	require.NoError(t, err)
	require.Len(t, cfg.Writers, 2)

	assert.Equal(t, "30s", cfg.Writers[0].SnapshotInterval)
	assert.Equal(t, "./data/snapshots", cfg.Writers[0].Gob.RootPath)

	ch, ok := cfg.ClickHouse()
	require.True(t, ok)
	assert.Equal(t, "ch", ch.Host)
	assert.Equal(t, 9000, ch.Port)

	d, err := cfg.Writers[1].Interval()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, d)
}

func TestParse_ValidationErrors(t *testing.T) {
	cases := map[string]struct {
		yaml string
		want error
	}{
		"negative period":  {"clustering:\n  period: -5s\n", ErrInvalidPeriod},
		"unknown writer":   {"writers:\n  - type: s3\n", ErrUnknownWriter},
		"zero interval":    {"writers:\n  - type: gob\n    enabled: true\n    snapshot_interval: 0s\n", ErrInvalidInterval},
		"danger too large": {"alerter:\n  min_danger_score: 1.5\n", ErrInvalidDanger},
		"bad log level":    {"logging:\n  level: verbose\n", ErrInvalidLogLevel},
		"smtp without to":  {"smtp:\n  host: mail.local\n", ErrMissingSMTPTarget},
		"negative workers": {"engine:\n  num_workers: -1\n", ErrInvalidWorkers},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestParse_DisabledWriterIntervalIsNotChecked(t *testing.T) {
	_, err := Parse([]byte("writers:\n  - type: gob\n    enabled: false\n    snapshot_interval: nonsense\n"))
	assert.NoError(t, err)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("clustering:\n  method: dbscan\n  clusters: 5\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "dbscan", cfg.Clustering.Method)
	assert.Equal(t, 5, cfg.Clustering.Clusters)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadConfig_ShippedFile(t *testing.T) {
	cfg, err := LoadConfig("../../configs/config.yaml")
	require.NoError(t, err)
	_, ok := cfg.ClickHouse()
	assert.False(t, ok)
}

func TestDefault(t *testing.T) {
	assert.NoError(t, Default().Validate())
}
