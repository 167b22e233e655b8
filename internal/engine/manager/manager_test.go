package manager

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TrafficSentry/internal/config"
	"TrafficSentry/internal/factory"
	"TrafficSentry/internal/metrics"
	"TrafficSentry/internal/model"
)

var epoch = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type memWriter struct {
	mu          sync.Mutex
	interval    time.Duration
	runs        []model.ClusterRun
	assessments []model.ThreatAssessment
	timestamps  []string
}

func (w *memWriter) Write(payload interface{}, timestamp string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch p := payload.(type) {
	case model.ClusterRun:
		w.runs = append(w.runs, p)
	case []model.ThreatAssessment:
		w.assessments = append(w.assessments, p...)
	default:
		return fmt.Errorf("unexpected payload %T", payload)
	}
	w.timestamps = append(w.timestamps, timestamp)
	return nil
}

func (w *memWriter) GetInterval() time.Duration { return w.interval }

type recordingEvaluator struct {
	mu   sync.Mutex
	runs []model.ClusterRun
}

func (e *recordingEvaluator) Evaluate(_ context.Context, run model.ClusterRun) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.runs = append(e.runs, run)
	return false, nil
}

type recordingPublisher struct {
	mu          sync.Mutex
	assessments []model.ThreatAssessment
}

func (p *recordingPublisher) PublishAssessment(a model.ThreatAssessment) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.assessments = append(p.assessments, a)
	return nil
}

type fixture struct {
	m         *Manager
	writer    *memWriter
	evaluator *recordingEvaluator
	publisher *recordingPublisher
	registry  *prometheus.Registry
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	cfg := config.Default()
	cfg.Clustering.Period = "1h"
	cfg.Engine.NumWorkers = 2

	f := fixture{
		writer:    &memWriter{interval: time.Hour},
		evaluator: &recordingEvaluator{},
		publisher: &recordingPublisher{},
		registry:  prometheus.NewRegistry(),
	}
	m, err := NewManager(cfg,
		WithOutputs([]factory.Output{{Type: "mem", Writer: f.writer}}),
		WithEvaluator(f.evaluator),
		WithPublisher(f.publisher),
		WithMetrics(metrics.New("test", f.registry)),
		WithClock(func() time.Time { return epoch }),
	)
	require.NoError(t, err)
	f.m = m
	return f
}

func pkt(id, src string, offset time.Duration, port, length int, proto string) model.Packet {
	return model.Packet{ID: id, SourceIP: src, Timestamp: epoch.Add(offset), Port: port, Length: length, Protocol: proto}
}

func TestNewManager_InvalidPeriod(t *testing.T) {
	cfg := config.Default()
	cfg.Clustering.Period = "soon"
	_, err := NewManager(cfg, WithOutputs([]factory.Output{}), WithEvaluator(nil))
	assert.ErrorIs(t, err, config.ErrInvalidPeriod)
}

func TestProcess_ScoresAndBuffers(t *testing.T) {
	f := newFixture(t)

	a := f.m.process(pkt("1", "10.0.0.5", 0, 23, 40, "TELNET"))
	assert.Equal(t, "1", a.PacketID)
	assert.True(t, a.IsMalicious)
	assert.Equal(t, epoch, a.ScoredAt)

	require.Len(t, f.publisher.assessments, 1)
	assert.Equal(t, 1, f.m.aggregator.Len())
	assert.Len(t, f.m.sinks[0].assessments, 1)
}

func TestProcess_UsesClusterMembership(t *testing.T) {
	f := newFixture(t)
	f.m.membership.Store(&map[string]model.SourceRecord{
		"10.0.0.9": {SourceIP: "10.0.0.9", IsDangerous: true, DangerScore: 0.8, ClusterID: 2},
	})

	a := f.m.process(pkt("1", "10.0.0.9", 0, 8080, 500, "TCP"))
	assert.Contains(t, a.Reasons, "Belongs to dangerous cluster (score: 0.80)")

	b := f.m.process(pkt("2", "10.0.0.10", 0, 8080, 500, "TCP"))
	assert.NotContains(t, b.Reasons, "Belongs to dangerous cluster (score: 0.80)")
}

func TestRunOnce(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		f.m.process(pkt(fmt.Sprint(i), "10.0.0.1", time.Duration(i)*time.Second, 80, 500, "TCP"))
	}
	for i := 0; i < 2; i++ {
		f.m.process(pkt(fmt.Sprint(10+i), "10.0.0.2", time.Duration(i)*time.Millisecond, 1000+i, 60, "UDP"))
	}
	f.m.process(pkt("20", "10.0.0.3", 0, 22, 60, "SSH"))

	run, ok := f.m.RunOnce(context.Background())
	require.True(t, ok)
	assert.NotEmpty(t, run.RunID)
	assert.Equal(t, "kmeans", run.Method)
	assert.Equal(t, 3, run.Requested)
	require.Len(t, run.Sources, 2, "single-packet sources are skipped")
	assert.Equal(t, "10.0.0.1", run.Sources[0].SourceIP)
	assert.NotEmpty(t, run.Clusters)

	assert.Zero(t, f.m.aggregator.Len(), "window is reset")
	members := *f.m.membership.Load()
	assert.Contains(t, members, "10.0.0.1")
	assert.Contains(t, members, "10.0.0.2")

	require.Len(t, f.evaluator.runs, 1)
	assert.Equal(t, run.RunID, f.evaluator.runs[0].RunID)
	n, err := testutil.GatherAndCount(f.registry, "test_clustering_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRunOnce_EmptyWindow(t *testing.T) {
	f := newFixture(t)
	_, ok := f.m.RunOnce(context.Background())
	assert.False(t, ok)
	assert.Empty(t, f.evaluator.runs)
}

func TestFlush(t *testing.T) {
	f := newFixture(t)
	f.m.process(pkt("1", "10.0.0.1", 0, 80, 500, "TCP"))
	f.m.process(pkt("2", "10.0.0.1", time.Second, 80, 500, "TCP"))
	_, ok := f.m.RunOnce(context.Background())
	require.True(t, ok)

	f.m.flush(f.m.sinks[0])
	assert.Len(t, f.writer.runs, 1)
	assert.Len(t, f.writer.assessments, 2)
	assert.Equal(t, []string{"2024-06-01_12-00-00", "2024-06-01_12-00-00"}, f.writer.timestamps)

	f.m.flush(f.m.sinks[0])
	assert.Len(t, f.writer.timestamps, 2, "nothing buffered, nothing written")
}

func TestStartStop_DrainsAndFlushes(t *testing.T) {
	f := newFixture(t)
	f.m.Start()

	in := f.m.InputChannel()
	for i := 0; i < 50; i++ {
		src := fmt.Sprintf("10.0.2.%d", i%5)
		in <- pkt(fmt.Sprint(i), src, time.Duration(i)*time.Millisecond, 1000+i, 100, "TCP")
	}
	f.m.Stop()

	assert.Len(t, f.publisher.assessments, 50)
	assert.Len(t, f.writer.assessments, 50)
	require.Len(t, f.writer.runs, 1)
	assert.Len(t, f.writer.runs[0].Sources, 5)
	require.Len(t, f.evaluator.runs, 1)
}

func TestSubmit_FullQueue(t *testing.T) {
	cfg := config.Default()
	cfg.Engine.SizeOfPacketChannel = 1
	m, err := NewManager(cfg, WithOutputs(nil), WithEvaluator(nil))
	require.NoError(t, err)

	assert.True(t, m.Submit(pkt("1", "a", 0, 80, 100, "TCP")))
	assert.False(t, m.Submit(pkt("2", "a", 0, 80, 100, "TCP")))
}

func TestSubmit_ConcurrentWithStop(t *testing.T) {
	f := newFixture(t)
	f.m.Start()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 2000; i++ {
				f.m.Submit(pkt(fmt.Sprint(i), fmt.Sprintf("10.0.3.%d", w), time.Duration(i)*time.Millisecond, 443, 100, "TCP"))
			}
		}(w)
	}
	f.m.Stop()
	wg.Wait()

	assert.False(t, f.m.Submit(pkt("late", "10.0.3.9", 0, 443, 100, "TCP")))
	assert.NotPanics(t, f.m.Stop)
}
