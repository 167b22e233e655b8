package pcap

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcapgo"
	"github.com/rs/zerolog/log"

	"TrafficSentry/internal/engine/protocol"
	"TrafficSentry/internal/model"
)

// Reader reads packets from a pcap or pcapng file.
type Reader struct {
	file   *os.File
	source *gopacket.PacketSource
}

// NewReader opens a capture file. Both the classic pcap and the pcapng formats are accepted.
func NewReader(filePath string) (*Reader, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture file: %w", err)
	}

	source, err := packetSource(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Reader{file: f, source: source}, nil
}

func packetSource(f *os.File) (*gopacket.PacketSource, error) {
	if r, err := pcapgo.NewReader(bufio.NewReader(f)); err == nil {
		return gopacket.NewPacketSource(r, r.LinkType()), nil
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind capture file: %w", err)
	}
	r, err := pcapgo.NewNgReader(bufio.NewReader(f), pcapgo.DefaultNgReaderOptions)
	if err != nil {
		return nil, fmt.Errorf("not a pcap or pcapng file: %w", err)
	}
	return gopacket.NewPacketSource(r, r.LinkType()), nil
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}

// ReadPackets parses every packet in the file and sends it to out, numbering packets from 1
// in file order. Packets the parser does not support are skipped. out is closed on return.
func (r *Reader) ReadPackets(ctx context.Context, out chan<- model.Packet) error {
	defer close(out)

	number, skipped := 0, 0
	for {
		packet, err := r.source.NextPacket()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read packet: %w", err)
		}
		number++

		info, err := protocol.ParsePacket(packet)
		if err != nil {
			skipped++
			log.Debug().Int("packet", number).Err(err).Msg("Skipping packet")
			continue
		}
		info.ID = strconv.Itoa(number)

		select {
		case out <- info:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	log.Debug().Int("packets", number).Int("skipped", skipped).Msg("Finished reading capture file")
	return nil
}

// ReadFile returns every supported packet of a capture file.
func ReadFile(ctx context.Context, filePath string) ([]model.Packet, error) {
	r, err := NewReader(filePath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	out := make(chan model.Packet, 256)
	errc := make(chan error, 1)
	go func() { errc <- r.ReadPackets(ctx, out) }()

	var packets []model.Packet
	for p := range out {
		packets = append(packets, p)
	}
	return packets, <-errc
}
