// Package ingest turns exported capture files into packet records.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"TrafficSentry/internal/model"
)

// ErrMissingColumn is returned when the CSV header has no Source column.
var ErrMissingColumn = errors.New("missing required column")

// Wireshark "Export Packet Dissections > As CSV" column names.
const (
	colNumber      = "no."
	colTime        = "time"
	colSource      = "source"
	colDestination = "destination"
	colProtocol    = "protocol"
	colLength      = "length"
	colInfo        = "info"
)

var (
	arrowPortRe = regexp.MustCompile(`(\d+)\s*>\s*(\d+)`)
	colonPortRe = regexp.MustCompile(`:(\d+)`)
)

// ParseWiresharkCSV reads packets from a Wireshark CSV export. The Time column holds
// seconds relative to the start of the capture and is mapped onto the Unix epoch.
// Rows whose numeric columns cannot be parsed are skipped with a warning.
func ParseWiresharkCSV(r io.Reader) ([]model.Packet, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		columns[name] = i
	}
	if _, ok := columns[colSource]; !ok {
		return nil, fmt.Errorf("%w: Source", ErrMissingColumn)
	}

	var packets []model.Packet
	for row := 1; ; row++ {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Warn().Int("row", row).Err(err).Msg("Skipping unreadable CSV row")
			continue
		}

		p, err := parseRow(fields, columns)
		if err != nil {
			log.Warn().Int("row", row).Err(err).Msg("Skipping malformed CSV row")
			continue
		}
		packets = append(packets, p)
	}

	log.Debug().Int("packets", len(packets)).Msg("Parsed Wireshark CSV")
	return packets, nil
}

func parseRow(fields []string, columns map[string]int) (model.Packet, error) {
	get := func(name string) string {
		i, ok := columns[name]
		if !ok || i >= len(fields) {
			return ""
		}
		return strings.TrimSpace(fields[i])
	}

	seconds, err := parseFloat(get(colTime))
	if err != nil {
		return model.Packet{}, fmt.Errorf("bad time: %w", err)
	}
	length, err := parseInt(get(colLength))
	if err != nil {
		return model.Packet{}, fmt.Errorf("bad length: %w", err)
	}
	if _, err := parseInt(get(colNumber)); err != nil {
		return model.Packet{}, fmt.Errorf("bad packet number: %w", err)
	}

	info := get(colInfo)
	return model.Packet{
		ID:            get(colNumber),
		Timestamp:     time.Unix(0, 0).UTC().Add(time.Duration(seconds * float64(time.Second))),
		SourceIP:      get(colSource),
		DestinationIP: get(colDestination),
		Port:          ExtractPort(info),
		Protocol:      get(colProtocol),
		Length:        length,
		Info:          info,
	}, nil
}

// ExtractPort finds the destination port in a Wireshark Info column: the right-hand side
// of "src > dst", else the first ":port", else 0.
func ExtractPort(info string) int {
	if m := arrowPortRe.FindStringSubmatch(info); m != nil {
		if port, err := strconv.Atoi(m[2]); err == nil {
			return port
		}
	}
	if m := colonPortRe.FindStringSubmatch(info); m != nil {
		if port, err := strconv.Atoi(m[1]); err == nil {
			return port
		}
	}
	return 0
}

func parseFloat(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

func parseInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}
