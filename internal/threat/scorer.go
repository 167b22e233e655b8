// Package threat scores individual packet-like records with fixed heuristics.
package threat

import (
	"fmt"
	"strings"
	"time"

	"TrafficSentry/internal/model"
)

// Sub-score weights. They sum to 1.0.
const (
	portWeight     = 0.30
	sizeWeight     = 0.20
	protocolWeight = 0.15
	behaviorWeight = 0.25
	clusterWeight  = 0.10
)

const (
	criticalThreshold  = 0.8
	maliciousThreshold = 0.6
	mediumThreshold    = 0.4
)

var highRiskPorts = map[int]bool{23: true, 3389: true, 5900: true}

var suspiciousPorts = map[int]bool{23: true, 135: true, 139: true, 445: true, 3389: true, 5900: true, 21: true, 22: true}

var dangerousProtocols = map[string]bool{"TELNET": true, "FTP": true, "TFTP": true}

// Scorer turns packet records into threat assessments. The zero value is ready to use.
type Scorer struct {
	// Now stamps ScoredAt. It defaults to time.Now.
	Now func() time.Time
}

// Score evaluates a single record. Reasons are listed in evaluation order: port, size,
// protocol, source behaviour, cluster membership.
func (s Scorer) Score(r model.PacketThreatRecord) model.ThreatAssessment {
	var reasons []string
	total := 0.0

	sub, why := portRisk(r.Port)
	total += portWeight * sub
	reasons = append(reasons, why...)

	sub, why = sizeRisk(r.PacketSize)
	total += sizeWeight * sub
	reasons = append(reasons, why...)

	sub, why = protocolRisk(r.Protocol)
	total += protocolWeight * sub
	reasons = append(reasons, why...)

	sub, why = behaviorRisk(r.PacketsPerSecond, r.UniquePorts)
	total += behaviorWeight * sub
	reasons = append(reasons, why...)

	sub, why = clusterRisk(r.IsDangerous, r.DangerScore)
	total += clusterWeight * sub
	reasons = append(reasons, why...)

	if reasons == nil {
		reasons = []string{}
	}
	return model.ThreatAssessment{
		PacketID:    r.ID,
		ThreatScore: min(total, 1.0),
		ThreatLevel: Level(total),
		IsMalicious: total >= maliciousThreshold,
		Reasons:     reasons,
		ScoredAt:    s.now(),
	}
}

func (s Scorer) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Score evaluates a record with the default Scorer.
func Score(r model.PacketThreatRecord) model.ThreatAssessment {
	return Scorer{}.Score(r)
}

// Level maps an accumulated score onto a threat level.
func Level(score float64) model.ThreatLevel {
	switch {
	case score >= criticalThreshold:
		return model.ThreatLevelCritical
	case score >= maliciousThreshold:
		return model.ThreatLevelHigh
	case score >= mediumThreshold:
		return model.ThreatLevelMedium
	default:
		return model.ThreatLevelLow
	}
}

func portRisk(port int) (float64, []string) {
	switch {
	case highRiskPorts[port]:
		return 1.0, []string{fmt.Sprintf("High risk port: %d", port)}
	case suspiciousPorts[port]:
		return 0.7, []string{fmt.Sprintf("Suspicious port: %d", port)}
	case port < 1024:
		return 0.3, []string{fmt.Sprintf("System port: %d", port)}
	default:
		return 0, nil
	}
}

func sizeRisk(size int) (float64, []string) {
	switch {
	case size > 8000:
		return 1.0, []string{fmt.Sprintf("Very large packet: %d bytes", size)}
	case size > 1500:
		return 0.6, []string{fmt.Sprintf("Large packet: %d bytes", size)}
	case size < 60:
		return 0.3, []string{fmt.Sprintf("Tiny packet: %d bytes (possible scan)", size)}
	default:
		return 0, nil
	}
}

func protocolRisk(protocol string) (float64, []string) {
	p := strings.ToUpper(strings.TrimSpace(protocol))
	switch {
	case dangerousProtocols[p]:
		return 1.0, []string{fmt.Sprintf("Dangerous protocol: %s", protocol)}
	case p == "ICMP":
		return 0.5, []string{"ICMP traffic (possible reconnaissance)"}
	default:
		return 0, nil
	}
}

// behaviorRisk adds the highest matching rate tier to the highest matching port tier.
// Every heuristic contributes at most one reason, so when both tiers fire their findings
// are joined with "; " into one string, rate first. Consumers splitting reasons per finding
// must split on "; ".
func behaviorRisk(rate float64, uniquePorts int) (float64, []string) {
	score := 0.0
	var reasons []string

	switch {
	case rate > 1000:
		score += 1.0
		reasons = append(reasons, fmt.Sprintf("Very high packet rate: %.1f pkt/s", rate))
	case rate > 500:
		score += 0.7
		reasons = append(reasons, fmt.Sprintf("High packet rate: %.1f pkt/s", rate))
	case rate > 100:
		score += 0.3
		reasons = append(reasons, fmt.Sprintf("Elevated packet rate: %.1f pkt/s", rate))
	}

	switch {
	case uniquePorts > 50:
		score += 0.8
		reasons = append(reasons, fmt.Sprintf("Port scanning detected: %d unique ports", uniquePorts))
	case uniquePorts > 20:
		score += 0.4
		reasons = append(reasons, fmt.Sprintf("Multiple ports accessed: %d", uniquePorts))
	}

	if len(reasons) == 0 {
		return 0, nil
	}
	return min(score, 1.0), []string{strings.Join(reasons, "; ")}
}

func clusterRisk(dangerous bool, dangerScore float64) (float64, []string) {
	if !dangerous {
		return 0, nil
	}
	score := dangerScore
	if score != score || score < 0 {
		score = 0
	}
	score = min(score, 1.0)
	return score, []string{fmt.Sprintf("Belongs to dangerous cluster (score: %.2f)", score)}
}
