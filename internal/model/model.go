package model

import (
	"time"
)

// Packet holds the metadata extracted from a single captured or exported packet.
type Packet struct {
	ID            string
	Timestamp     time.Time
	SourceIP      string
	DestinationIP string
	Port          int // destination port, 0 when unknown
	Protocol      string
	Length        int
	Info          string
}

// SourceRecord is the aggregated behaviour of one source address over an observation window.
// The cluster fields are zero until the record has been through the clustering pipeline.
type SourceRecord struct {
	SourceIP          string   `json:"sourceIP"`
	PacketsPerSecond  float64  `json:"packetsPerSecond"`
	PacketCount       int      `json:"packetCount"`
	AveragePacketSize float64  `json:"averagePacketSize"`
	UniquePorts       int      `json:"uniquePorts"`
	TotalBytes        int64    `json:"totalBytes"`
	Duration          float64  `json:"duration"`
	Protocols         []string `json:"protocols,omitempty"`

	// Extra carries fields the pipeline does not interpret. They are passed through untouched.
	Extra map[string]any `json:"extra,omitempty"`

	ClusterID   int     `json:"clusterId"`
	IsDangerous bool    `json:"isDangerous"`
	DangerScore float64 `json:"dangerScore"`
	ClusterName string  `json:"clusterName"`
}

// ClusterStats aggregates the raw metrics of every member of one remapped cluster.
type ClusterStats struct {
	ID                int
	Members           int
	MeanRate          float64
	MaxRate           float64
	MeanPortDiversity float64
	DangerScore       float64
	IsDangerous       bool
	Name              string
}

// ClusterSummary is the per-cluster view handed to callers that render or alert on clusters.
type ClusterSummary struct {
	ClusterID         int     `json:"clusterId"`
	ClusterName       string  `json:"clusterName"`
	IsDangerous       bool    `json:"isDangerous"`
	DangerScore       float64 `json:"dangerScore"`
	SourceCount       int     `json:"sourceCount"`
	AverageSpeed      float64 `json:"averageSpeed"`
	MaxSpeed          float64 `json:"maxSpeed"`
	MeanPortDiversity float64 `json:"meanPortDiversity"`
}

// ClusterRun is the outcome of one clustering pass over a window of sources.
type ClusterRun struct {
	RunID      string           `json:"runId"`
	Method     string           `json:"method"`
	Requested  int              `json:"requestedClusters"`
	StartedAt  time.Time        `json:"startedAt"`
	FinishedAt time.Time        `json:"finishedAt"`
	Sources    []SourceRecord   `json:"sources"`
	Clusters   []ClusterSummary `json:"clusters"`
}

// PacketThreatRecord is the input of the packet threat scorer. The behavioural and cluster
// fields are optional; their zero values contribute nothing to the score.
type PacketThreatRecord struct {
	ID               string
	Port             int
	PacketSize       int
	Protocol         string
	PacketsPerSecond float64
	UniquePorts      int
	IsDangerous      bool
	DangerScore      float64
}

// ThreatLevel is the qualitative severity of a ThreatAssessment.
type ThreatLevel string

const (
	ThreatLevelLow      ThreatLevel = "Low"
	ThreatLevelMedium   ThreatLevel = "Medium"
	ThreatLevelHigh     ThreatLevel = "High"
	ThreatLevelCritical ThreatLevel = "Critical"
)

// ThreatAssessment is the result of scoring one PacketThreatRecord.
type ThreatAssessment struct {
	PacketID    string      `json:"packetId,omitempty"`
	ThreatScore float64     `json:"threatScore"`
	ThreatLevel ThreatLevel `json:"threatLevel"`
	IsMalicious bool        `json:"isMalicious"`
	Reasons     []string    `json:"reasons"`
	ScoredAt    time.Time   `json:"scoredAt,omitempty"`
}
