package protocol

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"TrafficSentry/internal/model"
)

// ErrUnsupported is returned for frames that carry no IPv4 or IPv6 payload.
var ErrUnsupported = errors.New("unsupported packet")

// wellKnownPorts upgrades a transport protocol name to the application protocol that
// conventionally runs on the port.
var wellKnownPorts = map[int]string{
	21:  "FTP",
	22:  "SSH",
	23:  "TELNET",
	53:  "DNS",
	69:  "TFTP",
	80:  "HTTP",
	443: "HTTPS",
}

// ParsePacket extracts the addresses, destination port, protocol name and length of a
// decoded packet.
func ParsePacket(packet gopacket.Packet) (model.Packet, error) {
	info := model.Packet{
		Timestamp: time.Now(),
		Length:    len(packet.Data()),
	}
	if meta := packet.Metadata(); meta != nil {
		if !meta.Timestamp.IsZero() {
			info.Timestamp = meta.Timestamp
		}
		if meta.Length > 0 {
			info.Length = meta.Length
		}
	}

	var src, dst net.IP
	if l := packet.Layer(layers.LayerTypeIPv4); l != nil {
		ip := l.(*layers.IPv4)
		src, dst = ip.SrcIP, ip.DstIP
		info.Protocol = ip.Protocol.String()
	} else if l := packet.Layer(layers.LayerTypeIPv6); l != nil {
		ip := l.(*layers.IPv6)
		src, dst = ip.SrcIP, ip.DstIP
		info.Protocol = ip.NextHeader.String()
	} else {
		return model.Packet{}, fmt.Errorf("%w: no IP layer", ErrUnsupported)
	}
	info.SourceIP = src.String()
	info.DestinationIP = dst.String()

	srcPort := 0
	switch {
	case packet.Layer(layers.LayerTypeTCP) != nil:
		tcp := packet.Layer(layers.LayerTypeTCP).(*layers.TCP)
		info.Protocol = "TCP"
		srcPort, info.Port = int(tcp.SrcPort), int(tcp.DstPort)
	case packet.Layer(layers.LayerTypeUDP) != nil:
		udp := packet.Layer(layers.LayerTypeUDP).(*layers.UDP)
		info.Protocol = "UDP"
		srcPort, info.Port = int(udp.SrcPort), int(udp.DstPort)
	case packet.Layer(layers.LayerTypeICMPv4) != nil, packet.Layer(layers.LayerTypeICMPv6) != nil:
		info.Protocol = "ICMP"
	}

	if name, ok := wellKnownPorts[info.Port]; ok {
		info.Protocol = name
	} else if name, ok := wellKnownPorts[srcPort]; ok {
		info.Protocol = name
	}
	return info, nil
}

// Decode parses raw Ethernet frame bytes.
func Decode(data []byte, ci gopacket.CaptureInfo) (model.Packet, error) {
	packet := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.Default)
	md := packet.Metadata()
	md.CaptureInfo = ci
	return ParsePacket(packet)
}
