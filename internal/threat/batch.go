package threat

import "TrafficSentry/internal/model"

// ScoreBatch scores every record independently. The output has the same length and order
// as the input and each assessment carries the ID of the record it came from.
func (s Scorer) ScoreBatch(records []model.PacketThreatRecord) []model.ThreatAssessment {
	out := make([]model.ThreatAssessment, len(records))
	for i, r := range records {
		out[i] = s.Score(r)
	}
	return out
}

// ScoreBatch scores records with the default Scorer.
func ScoreBatch(records []model.PacketThreatRecord) []model.ThreatAssessment {
	return Scorer{}.ScoreBatch(records)
}

// FromPacket builds a scorer input for a packet. When src is non-nil its observed rate,
// port diversity and cluster verdict are used as behavioural context.
func FromPacket(p model.Packet, src *model.SourceRecord) model.PacketThreatRecord {
	r := model.PacketThreatRecord{
		ID:         p.ID,
		Port:       p.Port,
		PacketSize: p.Length,
		Protocol:   p.Protocol,
	}
	if src != nil {
		r.PacketsPerSecond = src.PacketsPerSecond
		r.UniquePorts = src.UniquePorts
		r.IsDangerous = src.IsDangerous
		r.DangerScore = src.DangerScore
	}
	return r
}
