package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"TrafficSentry/internal/config"
	"TrafficSentry/internal/ingest"
	"TrafficSentry/internal/logging"
	"TrafficSentry/internal/model"
	"TrafficSentry/internal/probe"
	"TrafficSentry/pkg/pcap"
)

func main() {
	// --- Command-Line Flag Parsing ---
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file.")
	mode := flag.String("mode", "pub", "Operating mode: 'pub' to replay a file into NATS, 'sub' to print assessments.")
	file := flag.String("file", "", "pcap, pcapng or Wireshark CSV file to replay (required for pub mode).")
	rate := flag.Int("rate", 0, "Packets per second to publish; 0 publishes as fast as possible.")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	logging.Setup(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Mode Dispatch ---
	switch *mode {
	case "pub":
		err = runProbe(ctx, cfg.NATS, *file, *rate)
	case "sub":
		err = runSubscriber(ctx, cfg.NATS)
	default:
		fmt.Fprintf(os.Stderr, "Invalid mode: %s\n", *mode)
		flag.Usage()
		os.Exit(1)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("sentry-probe failed")
	}
}

// runProbe replays the packets of a file into NATS.
func runProbe(ctx context.Context, cfg config.NATSConfig, file string, rate int) error {
	if file == "" {
		flag.Usage()
		return fmt.Errorf("-file flag is required for pub mode")
	}
	log.Info().Str("file", file).Int("rate", rate).Msg("Starting sentry-probe in PROBE mode")

	pub, err := probe.NewPublisher(cfg)
	if err != nil {
		return err
	}
	defer pub.Close()

	packets := make(chan model.Packet, 1024)
	errc := make(chan error, 1)
	go func() { errc <- readFile(ctx, file, packets) }()

	var tick <-chan time.Time
	if rate > 0 {
		ticker := time.NewTicker(time.Second / time.Duration(rate))
		defer ticker.Stop()
		tick = ticker.C
	}

	published := 0
	for p := range packets {
		if tick != nil {
			select {
			case <-tick:
			case <-ctx.Done():
			}
		}
		if ctx.Err() != nil {
			break
		}
		if err := pub.Publish(p); err != nil {
			log.Warn().Err(err).Msg("Failed to publish packet")
			continue
		}
		published++
		if published%1000 == 0 {
			log.Info().Int("published", published).Msg("Packets published")
		}
	}
	log.Info().Int("published", published).Msg("Replay finished")
	if err := <-errc; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// readFile streams the packets of a capture or CSV export into out and closes it.
func readFile(ctx context.Context, file string, out chan<- model.Packet) error {
	if strings.EqualFold(filepath.Ext(file), ".csv") {
		defer close(out)
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		packets, err := ingest.ParseWiresharkCSV(f)
		if err != nil {
			return err
		}
		for _, p := range packets {
			select {
			case out <- p:
			case <-ctx.Done():
				return nil
			}
		}
		return nil
	}

	r, err := pcap.NewReader(file)
	if err != nil {
		close(out)
		return err
	}
	defer r.Close()
	return r.ReadPackets(ctx, out)
}

// runSubscriber prints the assessments published by the engine.
func runSubscriber(ctx context.Context, cfg config.NATSConfig) error {
	log.Info().Msg("Starting sentry-probe in SUBSCRIBER mode")

	sub, err := probe.NewSubscriber(cfg)
	if err != nil {
		return err
	}
	defer sub.Close()

	err = sub.StartAssessments(func(a model.ThreatAssessment) {
		event := log.Info()
		if a.IsMalicious {
			event = log.Warn()
		}
		event.Str("packet", a.PacketID).
			Float64("score", a.ThreatScore).
			Str("level", string(a.ThreatLevel)).
			Strs("reasons", a.Reasons).
			Msg("Assessment received")
	})
	if err != nil {
		return err
	}

	<-ctx.Done()
	log.Info().Msg("Shutdown signal received, cleaning up...")
	return nil
}
