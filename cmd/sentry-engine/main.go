package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"TrafficSentry/internal/config"
	"TrafficSentry/internal/engine/manager"
	"TrafficSentry/internal/logging"
	"TrafficSentry/internal/metrics"
	"TrafficSentry/internal/model"
	"TrafficSentry/internal/probe"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file.")
	flag.Parse()

	// 1. Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	logging.Setup(cfg.Logging)
	log.Info().Str("config", *configPath).Msg("Starting sentry-engine")

	// 2. Metrics and assessment publishing
	opts := []manager.Option{}
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(cfg.Metrics.Namespace, prometheus.NewRegistry())
		m.StartServer(cfg.Metrics)
		opts = append(opts, manager.WithMetrics(m))
	}

	pub, err := probe.NewPublisher(cfg.NATS)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create assessment publisher")
	}
	opts = append(opts, manager.WithPublisher(pub))

	// 3. Start the manager
	mgr, err := manager.NewManager(cfg, opts...)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create manager")
	}
	mgr.Start()

	// 4. Feed packets from NATS into the manager
	sub, err := probe.NewSubscriber(cfg.NATS)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create subscriber")
	}
	if err := sub.Start(func(p model.Packet) {
		if !mgr.Submit(p) {
			log.Debug().Str("source", p.SourceIP).Msg("Packet queue full, dropping packet")
		}
	}); err != nil {
		log.Fatal().Err(err).Msg("Subscriber failed to start")
	}

	// 5. Wait for a shutdown signal for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("Shutdown signal received, stopping engine...")
	// Draining waits for in-flight callbacks, so nothing submits once Stop runs.
	sub.Close()
	mgr.Stop()
	pub.Close()
	if m != nil {
		if err := m.StopServer(); err != nil {
			log.Warn().Err(err).Msg("Failed to stop metrics server")
		}
	}
	log.Info().Msg("Shutdown complete")
}
