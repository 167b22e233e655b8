package cluster

import (
	"fmt"

	"TrafficSentry/internal/model"
)

// Danger score weights and thresholds.
const (
	rateWeight      = 0.5
	diversityWeight = 0.3
	sizeWeight      = 0.2

	DangerThreshold   = 0.6
	criticalThreshold = 0.8
	mediumThreshold   = 0.4
)

// ScoreClusters computes the statistics and danger score of every cluster. ids[i] is the
// cluster ID of records[i]. Rates and port diversities are normalized by their maximum over
// the whole batch, floored at 1.0 when every value is zero.
func ScoreClusters(records []model.SourceRecord, ids []int) map[int]model.ClusterStats {
	stats := collectStats(records, ids)

	maxSpeed, maxDiversity := 0.0, 0.0
	for i, r := range records {
		if i >= len(ids) {
			break
		}
		maxSpeed = max(maxSpeed, nonNegative(r.PacketsPerSecond))
		maxDiversity = max(maxDiversity, nonNegative(float64(r.UniquePorts)))
	}
	if maxSpeed <= 0 {
		maxSpeed = 1.0
	}
	if maxDiversity <= 0 {
		maxDiversity = 1.0
	}

	total := float64(min(len(records), len(ids)))
	out := make(map[int]model.ClusterStats, len(stats))
	for id, s := range stats {
		score := rateWeight*(s.MaxRate/maxSpeed) +
			diversityWeight*(s.MeanPortDiversity/maxDiversity) +
			sizeWeight*(float64(s.Members)/total)
		score = clamp01(score)

		s.DangerScore = score
		s.IsDangerous = score > DangerThreshold
		s.Name = ClusterName(id, score)
		out[id] = *s
	}
	return out
}

// ClusterName derives the display name of a cluster from its danger score.
func ClusterName(id int, score float64) string {
	switch {
	case score > criticalThreshold:
		return fmt.Sprintf("Critical Cluster %d", id)
	case score > DangerThreshold:
		return fmt.Sprintf("High Risk Cluster %d", id)
	case score > mediumThreshold:
		return fmt.Sprintf("Medium Risk Cluster %d", id)
	default:
		return fmt.Sprintf("Low Risk Cluster %d", id)
	}
}

// collectStats groups raw metrics by cluster ID. Scores and names are left empty.
func collectStats(records []model.SourceRecord, ids []int) map[int]*model.ClusterStats {
	stats := make(map[int]*model.ClusterStats)
	sumRate := make(map[int]float64)
	sumPorts := make(map[int]float64)

	for i, r := range records {
		if i >= len(ids) {
			break
		}
		id := ids[i]
		s, ok := stats[id]
		if !ok {
			s = &model.ClusterStats{ID: id}
			stats[id] = s
		}
		rate := nonNegative(r.PacketsPerSecond)
		s.Members++
		s.MaxRate = max(s.MaxRate, rate)
		sumRate[id] += rate
		sumPorts[id] += nonNegative(float64(r.UniquePorts))
	}

	for id, s := range stats {
		s.MeanRate = sumRate[id] / float64(s.Members)
		s.MeanPortDiversity = sumPorts[id] / float64(s.Members)
	}
	return stats
}

func clamp01(v float64) float64 {
	switch {
	case v != v || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
