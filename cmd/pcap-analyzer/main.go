package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"TrafficSentry/internal/config"
	"TrafficSentry/internal/engine/manager"
	"TrafficSentry/internal/logging"
	"TrafficSentry/internal/model"
	"TrafficSentry/pkg/pcap"
)

// pcap-analyzer pushes one capture file through the engine and its writers, producing a
// single clustering run for the whole capture.
func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file.")
	flag.Parse()

	// 1. Get pcap file path from command-line arguments
	if flag.NArg() < 1 {
		fmt.Println("Usage: pcap-analyzer [-config path] <path_to_pcap_file>")
		os.Exit(1)
	}
	pcapFilePath := flag.Arg(0)

	// 2. Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	logging.Setup(cfg.Logging)

	// 3. Initialize modules
	mgr, err := manager.NewManager(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create manager")
	}

	reader, err := pcap.NewReader(pcapFilePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open pcap file")
	}
	defer reader.Close()
	log.Info().Str("file", pcapFilePath).Msg("Reading packets")

	// 4. Start the processing pipeline
	mgr.Start()

	// 5. Feed packets to the manager. ReadPackets closes its channel, so it gets its own.
	packets := make(chan model.Packet, 1024)
	errc := make(chan error, 1)
	go func() { errc <- reader.ReadPackets(context.Background(), packets) }()

	in := mgr.InputChannel()
	count := 0
	for p := range packets {
		in <- p
		count++
	}
	if err := <-errc; err != nil {
		log.Error().Err(err).Msg("Capture file ended with an error")
	}
	log.Info().Int("packets", count).Msg("Finished reading all packets from pcap file")

	// 6. Graceful shutdown clusters the whole capture and flushes every writer
	mgr.Stop()
	log.Info().Msg("Shutdown complete")
}
