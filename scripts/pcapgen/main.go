package main

import (
	"flag"
	"math/rand/v2"
	"net"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// profile describes the traffic of one synthetic source.
type profile struct {
	name    string
	src     net.IP
	packets int
	spacing time.Duration
	size    func(r *rand.Rand) int
	port    func(r *rand.Rand, i int) layers.TCPPort
}

var (
	srcMAC = net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	dstMAC = net.HardwareAddr{0x00, 0x66, 0x77, 0x88, 0x99, 0xAA}
	target = net.IP{10, 0, 0, 1}
)

func profiles(clients int) []profile {
	var out []profile
	for i := 0; i < clients; i++ {
		out = append(out, profile{
			name:    "client",
			src:     net.IP{192, 168, 1, byte(10 + i)},
			packets: 40,
			spacing: 250 * time.Millisecond,
			size:    func(r *rand.Rand) int { return 200 + r.IntN(800) },
			port: func(r *rand.Rand, _ int) layers.TCPPort {
				if r.IntN(2) == 0 {
					return 80
				}
				return 443
			},
		})
	}
	return append(out,
		profile{
			name:    "scanner",
			src:     net.IP{172, 16, 0, 9},
			packets: 400,
			spacing: time.Millisecond,
			size:    func(*rand.Rand) int { return 0 },
			port:    func(_ *rand.Rand, i int) layers.TCPPort { return layers.TCPPort(1 + i) },
		},
		profile{
			name:    "flooder",
			src:     net.IP{203, 0, 113, 66},
			packets: 2000,
			spacing: 500 * time.Microsecond,
			size:    func(*rand.Rand) int { return 1400 },
			port:    func(*rand.Rand, int) layers.TCPPort { return 80 },
		},
		profile{
			name:    "telnet",
			src:     net.IP{198, 51, 100, 23},
			packets: 60,
			spacing: 100 * time.Millisecond,
			size:    func(r *rand.Rand) int { return r.IntN(20) },
			port:    func(*rand.Rand, int) layers.TCPPort { return 23 },
		},
	)
}

func main() {
	outputFile := flag.String("o", "test.pcap", "Output pcap file path")
	clients := flag.Int("clients", 8, "Number of benign client sources")
	seed := flag.Uint64("seed", 1, "Random seed")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})

	f, err := os.Create(*outputFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create output file")
	}
	defer f.Close()

	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		log.Fatal().Err(err).Msg("Failed to write pcap header")
	}

	r := rand.New(rand.NewPCG(*seed, *seed))
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	total := 0

	// Sources are written one after another; their timestamps overlap in the same window.
	for _, p := range profiles(*clients) {
		for i := 0; i < p.packets; i++ {
			data, err := serialize(r, p, i)
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to serialize layers")
			}
			ci := gopacket.CaptureInfo{
				Timestamp:     start.Add(time.Duration(i) * p.spacing),
				CaptureLength: len(data),
				Length:        len(data),
			}
			if err := w.WritePacket(ci, data); err != nil {
				log.Fatal().Err(err).Msg("Failed to write packet")
			}
		}
		total += p.packets
		log.Info().Str("profile", p.name).Str("source", p.src.String()).Int("packets", p.packets).Msg("Generated source")
	}

	log.Info().Int("packets", total).Str("file", *outputFile).Msg("Capture written")
}

func serialize(r *rand.Rand, p profile, i int) ([]byte, error) {
	eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeIPv4}
	ip := &layers.IPv4{SrcIP: p.src, DstIP: target, Version: 4, TTL: 64, Protocol: layers.IPProtocolTCP}
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(40000 + r.IntN(20000)),
		DstPort: p.port(r, i),
		Seq:     r.Uint32(),
		SYN:     true,
		Window:  14600,
	}
	if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
		return nil, err
	}

	payload := make([]byte, p.size(r))
	for j := range payload {
		payload[j] = byte(r.IntN(256))
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, tcp, gopacket.Payload(payload)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
