package codec

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"

	"TrafficSentry/internal/model"
)

// PacketStruct writes a packet.
func PacketStruct(p model.Packet) *structpb.Struct {
	fields := map[string]*structpb.Value{
		"sourceIP":      structpb.NewStringValue(p.SourceIP),
		"destinationIP": structpb.NewStringValue(p.DestinationIP),
		"port":          structpb.NewNumberValue(float64(p.Port)),
		"protocol":      structpb.NewStringValue(p.Protocol),
		"length":        structpb.NewNumberValue(float64(p.Length)),
	}
	if p.ID != "" {
		fields["id"] = structpb.NewStringValue(p.ID)
	}
	if !p.Timestamp.IsZero() {
		fields["timestamp"] = structpb.NewStringValue(formatTime(p.Timestamp))
	}
	if p.Info != "" {
		fields["info"] = structpb.NewStringValue(p.Info)
	}
	return &structpb.Struct{Fields: fields}
}

// Packet reads a packet from a Struct.
func Packet(s *structpb.Struct) model.Packet {
	var p model.Packet
	f := indexFields(s)
	if v, ok := f.take("id"); ok {
		p.ID = toString(v)
	}
	if v, ok := f.take("timestamp", "time"); ok {
		p.Timestamp = parseTime(toString(v))
	}
	if v, ok := f.take("sourceip", "source", "src"); ok {
		p.SourceIP = toString(v)
	}
	if v, ok := f.take("destinationip", "destination", "dst"); ok {
		p.DestinationIP = toString(v)
	}
	if v, ok := f.take("port", "dstport"); ok {
		p.Port = toInt(v)
	}
	if v, ok := f.take("protocol"); ok {
		p.Protocol = toString(v)
	}
	if v, ok := f.take("length", "size", "packetsize"); ok {
		p.Length = toInt(v)
	}
	if v, ok := f.take("info"); ok {
		p.Info = toString(v)
	}
	return p
}

// MarshalPacket encodes a packet in protobuf binary form for the message bus.
func MarshalPacket(p model.Packet) ([]byte, error) {
	data, err := proto.Marshal(PacketStruct(p))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal packet: %w", err)
	}
	return data, nil
}

// UnmarshalPacket decodes a packet written by MarshalPacket.
func UnmarshalPacket(data []byte) (model.Packet, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return model.Packet{}, fmt.Errorf("failed to unmarshal packet: %w", err)
	}
	return Packet(&s), nil
}

// MarshalAssessment encodes an assessment in protobuf binary form for the message bus.
func MarshalAssessment(a model.ThreatAssessment) ([]byte, error) {
	data, err := proto.Marshal(AssessmentStruct(a))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal assessment: %w", err)
	}
	return data, nil
}

// UnmarshalAssessment decodes an assessment written by MarshalAssessment.
func UnmarshalAssessment(data []byte) (model.ThreatAssessment, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return model.ThreatAssessment{}, fmt.Errorf("failed to unmarshal assessment: %w", err)
	}
	return Assessment(&s), nil
}

// DecodeJSON parses any JSON document into a Value.
func DecodeJSON(data []byte) (*structpb.Value, error) {
	var v structpb.Value
	if err := protojson.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("failed to decode JSON: %w", err)
	}
	return &v, nil
}

// EncodeJSON renders a message as JSON.
func EncodeJSON(m proto.Message) ([]byte, error) {
	data, err := protojson.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode JSON: %w", err)
	}
	return data, nil
}

// formatTime renders t in the canonical protobuf JSON form of a Timestamp.
func formatTime(t time.Time) string {
	data, err := protojson.Marshal(timestamppb.New(t))
	if err != nil {
		return t.UTC().Format(time.RFC3339Nano)
	}
	return strings.Trim(string(data), `"`)
}

func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	var ts timestamppb.Timestamp
	if err := protojson.Unmarshal([]byte(strconv.Quote(s)), &ts); err == nil {
		return ts.AsTime()
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		whole := int64(secs)
		return time.Unix(whole, int64((secs-float64(whole))*1e9)).UTC()
	}
	return time.Time{}
}
