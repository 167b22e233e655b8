package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"google.golang.org/protobuf/types/known/structpb"

	"TrafficSentry/internal/aggregate"
	"TrafficSentry/internal/cluster"
	"TrafficSentry/internal/codec"
	"TrafficSentry/internal/ingest"
	"TrafficSentry/internal/model"
	"TrafficSentry/internal/store"
	"TrafficSentry/internal/threat"
	"TrafficSentry/pkg/pcap"
)

// detectFormat resolves "auto" from the file extension.
func detectFormat(path, format string) string {
	format = strings.ToLower(strings.TrimSpace(format))
	if format != "" && format != "auto" {
		if format == "pcapng" {
			return "pcap"
		}
		return format
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return "csv"
	case ".pcap", ".pcapng", ".cap":
		return "pcap"
	case ".dat":
		return "dat"
	default:
		return "json"
	}
}

func openInput(path string) (io.ReadCloser, error) {
	if path == "" || path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	return f, nil
}

// readPackets loads packets from a Wireshark CSV export or a capture file.
func readPackets(ctx context.Context, path, format string) ([]model.Packet, error) {
	switch format {
	case "csv":
		in, err := openInput(path)
		if err != nil {
			return nil, err
		}
		defer in.Close()
		return ingest.ParseWiresharkCSV(in)
	case "pcap":
		return pcap.ReadFile(ctx, path)
	default:
		return nil, fmt.Errorf("format %q does not carry packets", format)
	}
}

// readJSONList decodes a JSON array, or an object holding the array under key.
func readJSONList(path, key string) (*structpb.ListValue, error) {
	in, err := openInput(path)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	data, err := io.ReadAll(in)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	v, err := codec.DecodeJSON(data)
	if err != nil {
		return nil, err
	}
	if list := v.GetListValue(); list != nil {
		return list, nil
	}
	if s := v.GetStructValue(); s != nil {
		if list := s.GetFields()[key].GetListValue(); list != nil {
			return list, nil
		}
		return &structpb.ListValue{Values: []*structpb.Value{v}}, nil
	}
	return nil, fmt.Errorf("input must be a JSON array or object")
}

// loadSources reads source records from any supported input.
func loadSources(ctx context.Context, path, format string, minPackets int) ([]model.SourceRecord, error) {
	switch format = detectFormat(path, format); format {
	case "json":
		list, err := readJSONList(path, "sources")
		if err != nil {
			return nil, err
		}
		sources, skipped := codec.SourceRecords(list)
		if len(skipped) > 0 {
			log.Warn().Ints("indexes", skipped).Msg("Skipping elements that are not objects")
		}
		return sources, nil
	case "dat":
		return store.ReadSources(path)
	case "csv", "pcap":
		packets, err := readPackets(ctx, path, format)
		if err != nil {
			return nil, err
		}
		log.Info().Int("packets", len(packets)).Str("format", format).Msg("Loaded packets")
		return aggregate.Summarize(packets, minPackets), nil
	default:
		return nil, fmt.Errorf("unsupported input format %q", format)
	}
}

// loadThreatRecords reads scorer inputs. Packets from captures and CSV exports are paired
// with the clustered metrics of their source.
func loadThreatRecords(ctx context.Context, path, format string, minPackets int, method cluster.Method) ([]model.PacketThreatRecord, error) {
	switch format = detectFormat(path, format); format {
	case "json":
		list, err := readJSONList(path, "packets")
		if err != nil {
			return nil, err
		}
		records, skipped := codec.PacketThreatRecords(list)
		if len(skipped) > 0 {
			log.Warn().Ints("indexes", skipped).Msg("Skipping elements that are not objects")
		}
		return records, nil
	case "csv", "pcap":
		packets, err := readPackets(ctx, path, format)
		if err != nil {
			return nil, err
		}
		return packetRecords(packets, minPackets, method), nil
	default:
		return nil, fmt.Errorf("unsupported input format %q for scoring", format)
	}
}

// packetRecords clusters the sources of packets and builds one scorer input per packet.
func packetRecords(packets []model.Packet, minPackets int, method cluster.Method) []model.PacketThreatRecord {
	sources := cluster.Cluster(aggregate.Summarize(packets, minPackets), method)
	bySource := make(map[string]*model.SourceRecord, len(sources))
	for i := range sources {
		bySource[sources[i].SourceIP] = &sources[i]
	}

	records := make([]model.PacketThreatRecord, len(packets))
	for i, p := range packets {
		records[i] = threat.FromPacket(p, bySource[p.SourceIP])
	}
	return records
}

func newRun(sources []model.SourceRecord, method cluster.Method) model.ClusterRun {
	started := time.Now()
	result := cluster.Analyze(sources, method)
	return model.ClusterRun{
		RunID:      uuid.NewString(),
		Method:     method.Name(),
		Requested:  method.Clusters(),
		StartedAt:  started,
		FinishedAt: time.Now(),
		Sources:    result.Sources,
		Clusters:   result.Summaries(),
	}
}
