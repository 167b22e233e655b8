package cluster

import (
	"slices"

	"github.com/rs/zerolog/log"

	"TrafficSentry/internal/model"
)

const fallbackClusterName = "Cluster 1"

// Result is the outcome of one clustering call.
type Result struct {
	// Sources are the input records, in input order, with their cluster fields set.
	Sources []model.SourceRecord
	// Stats holds the statistics of every cluster, keyed by cluster ID.
	Stats map[int]model.ClusterStats
	// Assignment is nil when the single-cluster fallback was used.
	Assignment *Assignment
}

// Cluster groups the records with the given method and returns them annotated with their
// cluster ID, danger flag, danger score and cluster name. The input slice is not modified.
func Cluster(records []model.SourceRecord, method Method) []model.SourceRecord {
	return Analyze(records, method).Sources
}

// Analyze runs normalization, clustering and danger scoring over one batch of records.
// Batches with fewer than two records, or whose features are all zero, are placed in a
// single harmless cluster.
func Analyze(records []model.SourceRecord, method Method) Result {
	features := Features(records)

	if len(records) < 2 {
		log.Debug().Int("sources", len(records)).Msg("Fewer than 2 sources, using a single cluster")
		return fallback(records)
	}
	if AllZero(features) {
		log.Debug().Int("sources", len(records)).Msg("All features are zero, using a single cluster")
		return fallback(records)
	}

	normalized := Normalize(features)
	raw := method.labels(normalized)
	assignment := Remap(raw)
	stats := ScoreClusters(records, assignment.IDs)

	log.Debug().
		Str("method", method.String()).
		Int("sources", len(records)).
		Int("clusters", assignment.K).
		Ints("raw_labels", raw).
		Msg("Clustered sources")

	out := make([]model.SourceRecord, len(records))
	for i, r := range records {
		s := stats[assignment.IDs[i]]
		out[i] = annotate(r, s.ID, s.IsDangerous, s.DangerScore, s.Name)
	}
	return Result{Sources: out, Stats: stats, Assignment: &assignment}
}

func fallback(records []model.SourceRecord) Result {
	ids := make([]int, len(records))
	out := make([]model.SourceRecord, len(records))
	for i, r := range records {
		ids[i] = 1
		out[i] = annotate(r, 1, false, 0, fallbackClusterName)
	}

	stats := make(map[int]model.ClusterStats)
	for id, s := range collectStats(records, ids) {
		s.Name = fallbackClusterName
		stats[id] = *s
	}
	return Result{Sources: out, Stats: stats}
}

func annotate(r model.SourceRecord, id int, dangerous bool, score float64, name string) model.SourceRecord {
	r.Protocols = slices.Clone(r.Protocols)
	if r.Extra != nil {
		extra := make(map[string]any, len(r.Extra))
		for k, v := range r.Extra {
			extra[k] = v
		}
		r.Extra = extra
	}
	r.ClusterID = id
	r.IsDangerous = dangerous
	r.DangerScore = score
	r.ClusterName = name
	return r
}
