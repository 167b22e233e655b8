package manager

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"TrafficSentry/internal/aggregate"
	"TrafficSentry/internal/ai"
	"TrafficSentry/internal/alerter"
	"TrafficSentry/internal/cluster"
	"TrafficSentry/internal/config"
	"TrafficSentry/internal/factory"
	"TrafficSentry/internal/metrics"
	"TrafficSentry/internal/model"
	"TrafficSentry/internal/notification"
	"TrafficSentry/internal/store" // Registers the gob and clickhouse writers
	"TrafficSentry/internal/threat"
)

// AssessmentPublisher forwards threat assessments to downstream consumers.
type AssessmentPublisher interface {
	PublishAssessment(a model.ThreatAssessment) error
}

// RunEvaluator inspects a finished clustering run, typically to raise alerts.
type RunEvaluator interface {
	Evaluate(ctx context.Context, run model.ClusterRun) (bool, error)
}

// Option customises a Manager.
type Option func(*Manager)

// WithOutputs replaces the writers built from the configuration.
func WithOutputs(outputs []factory.Output) Option {
	return func(m *Manager) {
		m.outputs = outputs
		m.outputsSet = true
	}
}

// WithPublisher publishes every assessment produced by the workers.
func WithPublisher(p AssessmentPublisher) Option {
	return func(m *Manager) { m.publisher = p }
}

// WithEvaluator replaces the alerter built from the configuration. A nil evaluator disables alerting.
func WithEvaluator(e RunEvaluator) Option {
	return func(m *Manager) {
		m.evaluator = e
		m.evaluatorSet = true
	}
}

// WithMetrics records engine activity.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// sink buffers the runs and assessments a writer has not flushed yet.
type sink struct {
	output      factory.Output
	mu          sync.Mutex
	runs        []model.ClusterRun
	assessments []model.ThreatAssessment
}

func (s *sink) take() ([]model.ClusterRun, []model.ThreatAssessment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	runs, assessments := s.runs, s.assessments
	s.runs, s.assessments = nil, nil
	return runs, assessments
}

// Manager scores incoming packets, clusters their sources once per period, and hands the
// results to its writers.
type Manager struct {
	method     cluster.Method
	minPackets int
	period     time.Duration

	aggregator *aggregate.Aggregator
	scorer     threat.Scorer
	membership atomic.Pointer[map[string]model.SourceRecord]

	outputs      []factory.Output
	outputsSet   bool
	sinks        []*sink
	publisher    AssessmentPublisher
	evaluator    RunEvaluator
	evaluatorSet bool
	metrics      *metrics.Metrics
	now          func() time.Time

	// Worker pool for concurrent packet processing
	packetChannel chan model.Packet
	numWorkers    int
	workerWg      sync.WaitGroup

	// inputMu guards stopped and the close of packetChannel against Submit.
	inputMu sync.RWMutex
	stopped bool

	done          chan struct{}
	clustererWg   sync.WaitGroup
	snapshotterWg sync.WaitGroup
	runMu         sync.Mutex
}

// NewManager creates a new Manager from the configuration.
func NewManager(cfg *config.Config, opts ...Option) (*Manager, error) {
	period := cfg.ClusteringPeriod()
	if period <= 0 {
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidPeriod, cfg.Clustering.Period)
	}

	m := &Manager{
		method:        cluster.ParseMethod(cfg.Clustering.Method, cfg.Clustering.Clusters),
		minPackets:    cfg.Clustering.MinPacketsPerSource,
		period:        period,
		aggregator:    aggregate.New(cfg.Engine.NumShards),
		now:           time.Now,
		done:          make(chan struct{}),
		packetChannel: make(chan model.Packet, cfg.Engine.SizeOfPacketChannel),
		numWorkers:    cfg.Engine.NumWorkers,
	}
	m.membership.Store(&map[string]model.SourceRecord{})

	for _, opt := range opts {
		opt(m)
	}

	if !m.outputsSet {
		outputs, err := factory.CreateWriters(cfg)
		if err != nil {
			return nil, err
		}
		m.outputs = outputs
	}
	if !m.evaluatorSet {
		m.evaluator = newAlerter(cfg)
	}

	for _, out := range m.outputs {
		m.sinks = append(m.sinks, &sink{output: out})
	}
	m.scorer = threat.Scorer{Now: m.now}
	return m, nil
}

// newAlerter builds the email alerter, or returns nil when alerting is off or has nowhere to send.
func newAlerter(cfg *config.Config) RunEvaluator {
	if !cfg.Alerter.Enabled {
		return nil
	}
	if cfg.SMTP.Host == "" {
		log.Warn().Msg("Alerter is enabled in config, but no notifiers are configured. Alerter will not run.")
		return nil
	}

	var analyzer model.Analyzer
	if cfg.Alerter.AI.Enabled {
		a, err := ai.NewAlerterAnalyzer(cfg.Alerter.AI)
		if err != nil {
			log.Warn().Err(err).Msg("AI analysis disabled")
		} else {
			analyzer = a
		}
	}

	log.Info().Float64("min_danger_score", cfg.Alerter.MinDangerScore).Bool("ai", analyzer != nil).Msg("Alerter enabled")
	return alerter.NewAlerter(cfg.Alerter, cfg.AITimeout(), notification.NewEmailNotifier(cfg.SMTP), analyzer)
}

// Start begins the packet workers, the clusterer, and one snapshotter per writer.
func (m *Manager) Start() {
	for _, s := range m.sinks {
		m.snapshotterWg.Add(1)
		go m.runSnapshotter(s)
		log.Info().Str("writer", s.output.Type).Dur("interval", s.output.Writer.GetInterval()).Msg("Started snapshotter")
	}

	m.clustererWg.Add(1)
	go m.runClusterer()
	log.Info().Dur("period", m.period).Str("method", m.method.String()).Msg("Started clusterer")

	m.workerWg.Add(m.numWorkers)
	for i := 0; i < m.numWorkers; i++ {
		go m.worker()
	}
	log.Info().Int("workers", m.numWorkers).Msg("Manager started")
}

// InputChannel returns the channel packets are fed into. Senders on it must finish before
// Stop is called; concurrent producers should use Submit instead.
func (m *Manager) InputChannel() chan<- model.Packet {
	return m.packetChannel
}

// Submit enqueues a packet without blocking. It reports false when the queue is full or the
// manager is stopping. It is safe to call concurrently with Stop.
func (m *Manager) Submit(p model.Packet) bool {
	m.inputMu.RLock()
	defer m.inputMu.RUnlock()
	if m.stopped {
		return false
	}

	select {
	case m.packetChannel <- p:
		return true
	default:
		if m.metrics != nil {
			m.metrics.RecordDrop()
		}
		return false
	}
}

func (m *Manager) worker() {
	defer m.workerWg.Done()
	for p := range m.packetChannel {
		m.process(p)
	}
}

// process observes one packet and scores it against its source's latest verdict.
func (m *Manager) process(p model.Packet) model.ThreatAssessment {
	m.aggregator.Observe(p)

	var src *model.SourceRecord
	if rec, ok := (*m.membership.Load())[p.SourceIP]; ok {
		src = &rec
	} else if rec, ok := m.aggregator.Lookup(p.SourceIP); ok {
		src = &rec
	}

	a := m.scorer.Score(threat.FromPacket(p, src))
	if a.IsMalicious {
		log.Debug().Str("packet", p.ID).Str("source", p.SourceIP).Float64("score", a.ThreatScore).Strs("reasons", a.Reasons).Msg("Malicious packet")
	}

	if m.publisher != nil {
		if err := m.publisher.PublishAssessment(a); err != nil {
			log.Warn().Err(err).Str("packet", p.ID).Msg("Failed to publish assessment")
		}
	}
	if m.metrics != nil {
		m.metrics.RecordPacket(a)
		m.metrics.SetQueueSize(len(m.packetChannel))
	}
	for _, s := range m.sinks {
		s.mu.Lock()
		s.assessments = append(s.assessments, a)
		s.mu.Unlock()
	}
	return a
}

func (m *Manager) runClusterer() {
	defer m.clustererWg.Done()
	ticker := time.NewTicker(m.period)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.RunOnce(context.Background())
		case <-m.done:
			return
		}
	}
}

// RunOnce clusters the sources of the current window, publishes the new membership, hands
// the run to the writers and the alerter, and starts a new window. It returns false when the
// window held no source with enough packets.
func (m *Manager) RunOnce(ctx context.Context) (model.ClusterRun, bool) {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	started := m.now()
	sources := m.aggregator.Drain(m.minPackets)
	if len(sources) == 0 {
		log.Debug().Msg("No sources in window, skipping clustering run")
		return model.ClusterRun{}, false
	}

	result := cluster.Analyze(sources, m.method)
	run := model.ClusterRun{
		RunID:      uuid.NewString(),
		Method:     m.method.Name(),
		Requested:  m.method.Clusters(),
		StartedAt:  started,
		FinishedAt: m.now(),
		Sources:    result.Sources,
		Clusters:   result.Summaries(),
	}

	members := make(map[string]model.SourceRecord, len(run.Sources))
	for _, s := range run.Sources {
		members[s.SourceIP] = s
	}
	m.membership.Store(&members)

	log.Info().
		Str("run_id", run.RunID).
		Int("sources", len(run.Sources)).
		Int("clusters", len(run.Clusters)).
		Int("dangerous", len(result.Dangerous())).
		Msg("Clustering run completed")

	if m.metrics != nil {
		m.metrics.RecordRun(run, run.FinishedAt.Sub(started))
	}
	for _, s := range m.sinks {
		s.mu.Lock()
		s.runs = append(s.runs, run)
		s.mu.Unlock()
	}
	if m.evaluator != nil {
		if _, err := m.evaluator.Evaluate(ctx, run); err != nil {
			log.Error().Err(err).Str("run_id", run.RunID).Msg("Alert evaluation failed")
		}
	}
	return run, true
}

// runSnapshotter runs a dedicated flush loop for a single writer.
func (m *Manager) runSnapshotter(s *sink) {
	defer m.snapshotterWg.Done()
	interval := s.output.Writer.GetInterval()
	if interval <= 0 {
		log.Warn().Str("writer", s.output.Type).Dur("interval", interval).Msg("Invalid interval for writer, snapshotter will not run")
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.flush(s)
		case <-m.done:
			return
		}
	}
}

// flush writes everything a writer has buffered since its last flush.
func (m *Manager) flush(s *sink) {
	runs, assessments := s.take()
	if len(runs) == 0 && len(assessments) == 0 {
		return
	}
	timestamp := m.now().Format(store.TimestampLayout)

	for _, run := range runs {
		if err := s.output.Writer.Write(run, timestamp); err != nil {
			m.writeFailed(s, err)
		}
	}
	if len(assessments) > 0 {
		if err := s.output.Writer.Write(assessments, timestamp); err != nil {
			m.writeFailed(s, err)
		}
	}
	log.Debug().Str("writer", s.output.Type).Int("runs", len(runs)).Int("assessments", len(assessments)).Msg("Flushed writer")
}

func (m *Manager) writeFailed(s *sink, err error) {
	log.Error().Err(err).Str("writer", s.output.Type).Msg("Error writing snapshot")
	if m.metrics != nil {
		m.metrics.RecordWriterError(s.output.Type)
	}
}

// Stop gracefully shuts down the manager: buffered packets are processed, a final run is
// clustered and every writer is flushed. Later calls are no-ops.
func (m *Manager) Stop() {
	m.inputMu.Lock()
	if m.stopped {
		m.inputMu.Unlock()
		return
	}
	m.stopped = true
	close(m.packetChannel)
	m.inputMu.Unlock()

	log.Info().Msg("Manager stopping...")
	m.workerWg.Wait()

	close(m.done)
	m.clustererWg.Wait()
	m.snapshotterWg.Wait()

	m.RunOnce(context.Background())
	for _, s := range m.sinks {
		m.flush(s)
	}
	log.Info().Msg("Manager stopped")
}
