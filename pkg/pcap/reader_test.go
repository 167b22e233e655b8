package pcap

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TrafficSentry/internal/model"
)

func tcpFrame(t *testing.T, dstPort layers.TCPPort) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 5},
		DstMAC:       net.HardwareAddr{6, 7, 8, 9, 10, 11},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{Version: 4, TTL: 64, Protocol: layers.IPProtocolTCP,
		SrcIP: net.IPv4(172, 16, 0, 9), DstIP: net.IPv4(10, 0, 0, 1)}
	tcp := &layers.TCP{SrcPort: 40000, DstPort: dstPort, SYN: true}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	require.NoError(t, gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}, eth, ip, tcp))
	return buf.Bytes()
}

func writeCapture(t *testing.T, frames ...[]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.pcap")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))
	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	for i, frame := range frames {
		ci := gopacket.CaptureInfo{
			Timestamp:     start.Add(time.Duration(i) * 100 * time.Millisecond),
			CaptureLength: len(frame),
			Length:        len(frame),
		}
		require.NoError(t, w.WritePacket(ci, frame))
	}
	return path
}

func TestReadFile(t *testing.T) {
	path := writeCapture(t, tcpFrame(t, 22), []byte{0xde, 0xad}, tcpFrame(t, 3389))

	packets, err := ReadFile(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, packets, 2)

	assert.Equal(t, "1", packets[0].ID)
	assert.Equal(t, "SSH", packets[0].Protocol)
	assert.Equal(t, "172.16.0.9", packets[0].SourceIP)
	assert.Equal(t, "3", packets[1].ID)
	assert.Equal(t, 3389, packets[1].Port)
	assert.Equal(t, 200*time.Millisecond, packets[1].Timestamp.Sub(packets[0].Timestamp))
}

func TestReader_ClosesChannel(t *testing.T) {
	r, err := NewReader(writeCapture(t, tcpFrame(t, 80)))
	require.NoError(t, err)
	defer r.Close()

	out := make(chan model.Packet)
	go func() { _ = r.ReadPackets(context.Background(), out) }()

	count := 0
	for range out {
		count++
	}
	assert.Equal(t, 1, count)
}

func TestNewReader_RejectsOtherFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("definitely not a capture file"), 0o644))

	_, err := NewReader(path)
	assert.Error(t, err)

	_, err = NewReader(filepath.Join(t.TempDir(), "missing.pcap"))
	assert.Error(t, err)
}
