package codec

import (
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"TrafficSentry/internal/model"
)

// sourceFields lists the normalized names SourceRecordStruct writes. Passthrough keys that
// fold to one of them are not inlined.
var sourceFields = map[string]bool{
	"sourceip": true, "packetspersecond": true, "packetcount": true,
	"averagepacketsize": true, "uniqueports": true, "totalbytes": true,
	"duration": true, "protocols": true,
	"clusterid": true, "isdangerous": true, "dangerscore": true, "clustername": true,
}

// SourceRecord reads a source record from a Struct. The canonical key of a field takes
// precedence over its aliases, and an alias that loses stays in the passthrough map.
// Cluster fields are discarded so that re-submitted results do not leak into Extra.
func SourceRecord(s *structpb.Struct) model.SourceRecord {
	var r model.SourceRecord
	f := indexFields(s)
	if v, ok := f.take("sourceip", "source", "ip"); ok {
		r.SourceIP = toString(v)
	}
	if v, ok := f.take("packetspersecond", "pps"); ok {
		r.PacketsPerSecond = toFloat(v)
	}
	if v, ok := f.take("packetcount"); ok {
		r.PacketCount = toInt(v)
	}
	if v, ok := f.take("averagepacketsize", "avgpacketsize"); ok {
		r.AveragePacketSize = toFloat(v)
	}
	if v, ok := f.take("uniqueports"); ok {
		r.UniquePorts = toInt(v)
	}
	if v, ok := f.take("totalbytes"); ok {
		r.TotalBytes = toInt64(v)
	}
	if v, ok := f.take("duration"); ok {
		r.Duration = toFloat(v)
	}
	if v, ok := f.take("protocols"); ok {
		r.Protocols = toStrings(v)
	}
	f.drop("clusterid", "isdangerous", "dangerscore", "clustername")
	r.Extra = f.rest()
	return r
}

// SourceRecordStruct writes a source record, with its passthrough fields inlined.
// Passthrough keys never override record fields.
func SourceRecordStruct(r model.SourceRecord) (*structpb.Struct, error) {
	fields := make(map[string]*structpb.Value, 12+len(r.Extra))
	for k, v := range r.Extra {
		if sourceFields[normalizeKey(k)] {
			continue
		}
		pv, err := structpb.NewValue(v)
		if err != nil {
			return nil, fmt.Errorf("passthrough field '%s': %w", k, err)
		}
		fields[k] = pv
	}

	fields["sourceIP"] = structpb.NewStringValue(r.SourceIP)
	fields["packetsPerSecond"] = structpb.NewNumberValue(r.PacketsPerSecond)
	fields["packetCount"] = structpb.NewNumberValue(float64(r.PacketCount))
	fields["averagePacketSize"] = structpb.NewNumberValue(r.AveragePacketSize)
	fields["uniquePorts"] = structpb.NewNumberValue(float64(r.UniquePorts))
	if r.TotalBytes != 0 {
		fields["totalBytes"] = structpb.NewNumberValue(float64(r.TotalBytes))
	}
	if r.Duration != 0 {
		fields["duration"] = structpb.NewNumberValue(r.Duration)
	}
	if len(r.Protocols) > 0 {
		fields["protocols"] = stringList(r.Protocols)
	}
	if r.ClusterID != 0 {
		fields["clusterId"] = structpb.NewNumberValue(float64(r.ClusterID))
		fields["isDangerous"] = structpb.NewBoolValue(r.IsDangerous)
		fields["dangerScore"] = structpb.NewNumberValue(r.DangerScore)
		fields["clusterName"] = structpb.NewStringValue(r.ClusterName)
	}
	return &structpb.Struct{Fields: fields}, nil
}

// SourceRecords reads every object element of a list. Elements that are not objects are
// returned as skipped indexes.
func SourceRecords(list *structpb.ListValue) ([]model.SourceRecord, []int) {
	out := make([]model.SourceRecord, 0, len(list.GetValues()))
	var skipped []int
	for i, v := range list.GetValues() {
		s := v.GetStructValue()
		if s == nil {
			skipped = append(skipped, i)
			continue
		}
		out = append(out, SourceRecord(s))
	}
	return out, skipped
}

// SourceRecordList writes records as a list of Structs.
func SourceRecordList(records []model.SourceRecord) (*structpb.ListValue, error) {
	values := make([]*structpb.Value, len(records))
	for i, r := range records {
		s, err := SourceRecordStruct(r)
		if err != nil {
			return nil, fmt.Errorf("source %d: %w", i, err)
		}
		values[i] = structpb.NewStructValue(s)
	}
	return &structpb.ListValue{Values: values}, nil
}

// PacketThreatRecord reads a scorer input from a Struct. Unknown keys are ignored.
func PacketThreatRecord(s *structpb.Struct) model.PacketThreatRecord {
	var r model.PacketThreatRecord
	f := indexFields(s)
	if v, ok := f.take("id", "packetid"); ok {
		r.ID = toString(v)
	}
	if v, ok := f.take("port", "dstport", "destinationport"); ok {
		r.Port = toInt(v)
	}
	if v, ok := f.take("packetsize", "size", "length"); ok {
		r.PacketSize = toInt(v)
	}
	if v, ok := f.take("protocol"); ok {
		r.Protocol = toString(v)
	}
	if v, ok := f.take("packetspersecond", "pps"); ok {
		r.PacketsPerSecond = toFloat(v)
	}
	if v, ok := f.take("uniqueports"); ok {
		r.UniquePorts = toInt(v)
	}
	if v, ok := f.take("isdangerous"); ok {
		r.IsDangerous = toBool(v)
	}
	if v, ok := f.take("dangerscore"); ok {
		r.DangerScore = toFloat(v)
	}
	return r
}

// PacketThreatRecords reads every object element of a list. Elements that are not objects
// are returned as skipped indexes.
func PacketThreatRecords(list *structpb.ListValue) ([]model.PacketThreatRecord, []int) {
	out := make([]model.PacketThreatRecord, 0, len(list.GetValues()))
	var skipped []int
	for i, v := range list.GetValues() {
		s := v.GetStructValue()
		if s == nil {
			skipped = append(skipped, i)
			continue
		}
		out = append(out, PacketThreatRecord(s))
	}
	return out, skipped
}

// AssessmentStruct writes a threat assessment.
func AssessmentStruct(a model.ThreatAssessment) *structpb.Struct {
	fields := map[string]*structpb.Value{
		"threatScore": structpb.NewNumberValue(a.ThreatScore),
		"threatLevel": structpb.NewStringValue(string(a.ThreatLevel)),
		"isMalicious": structpb.NewBoolValue(a.IsMalicious),
		"reasons":     stringList(a.Reasons),
	}
	if a.PacketID != "" {
		fields["packetId"] = structpb.NewStringValue(a.PacketID)
	}
	if !a.ScoredAt.IsZero() {
		fields["scoredAt"] = structpb.NewStringValue(formatTime(a.ScoredAt))
	}
	return &structpb.Struct{Fields: fields}
}

// Assessment reads a threat assessment back from a Struct.
func Assessment(s *structpb.Struct) model.ThreatAssessment {
	var a model.ThreatAssessment
	f := indexFields(s)
	if v, ok := f.take("packetid"); ok {
		a.PacketID = toString(v)
	}
	if v, ok := f.take("threatscore"); ok {
		a.ThreatScore = toFloat(v)
	}
	if v, ok := f.take("threatlevel"); ok {
		a.ThreatLevel = model.ThreatLevel(toString(v))
	}
	if v, ok := f.take("ismalicious"); ok {
		a.IsMalicious = toBool(v)
	}
	if v, ok := f.take("reasons"); ok {
		a.Reasons = toStrings(v)
	}
	if v, ok := f.take("scoredat"); ok {
		a.ScoredAt = parseTime(toString(v))
	}
	return a
}

// AssessmentList writes assessments as a list of Structs.
func AssessmentList(assessments []model.ThreatAssessment) *structpb.ListValue {
	values := make([]*structpb.Value, len(assessments))
	for i, a := range assessments {
		values[i] = structpb.NewStructValue(AssessmentStruct(a))
	}
	return &structpb.ListValue{Values: values}
}

// ClusterSummaryStruct writes one cluster summary.
func ClusterSummaryStruct(c model.ClusterSummary) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"clusterId":         structpb.NewNumberValue(float64(c.ClusterID)),
		"clusterName":       structpb.NewStringValue(c.ClusterName),
		"isDangerous":       structpb.NewBoolValue(c.IsDangerous),
		"dangerScore":       structpb.NewNumberValue(c.DangerScore),
		"sourceCount":       structpb.NewNumberValue(float64(c.SourceCount)),
		"averageSpeed":      structpb.NewNumberValue(c.AverageSpeed),
		"maxSpeed":          structpb.NewNumberValue(c.MaxSpeed),
		"meanPortDiversity": structpb.NewNumberValue(c.MeanPortDiversity),
	}}
}

// ClusterSummaryList writes summaries as a list of Structs.
func ClusterSummaryList(summaries []model.ClusterSummary) *structpb.ListValue {
	values := make([]*structpb.Value, len(summaries))
	for i, c := range summaries {
		values[i] = structpb.NewStructValue(ClusterSummaryStruct(c))
	}
	return &structpb.ListValue{Values: values}
}

// ClusterRunStruct writes a full clustering run.
func ClusterRunStruct(run model.ClusterRun) (*structpb.Struct, error) {
	sources, err := SourceRecordList(run.Sources)
	if err != nil {
		return nil, err
	}
	fields := map[string]*structpb.Value{
		"runId":             structpb.NewStringValue(run.RunID),
		"method":            structpb.NewStringValue(run.Method),
		"requestedClusters": structpb.NewNumberValue(float64(run.Requested)),
		"sources":           structpb.NewListValue(sources),
		"clusters":          structpb.NewListValue(ClusterSummaryList(run.Clusters)),
	}
	if !run.StartedAt.IsZero() {
		fields["startedAt"] = structpb.NewStringValue(formatTime(run.StartedAt))
	}
	if !run.FinishedAt.IsZero() {
		fields["finishedAt"] = structpb.NewStringValue(formatTime(run.FinishedAt))
	}
	return &structpb.Struct{Fields: fields}, nil
}
