package cluster

import (
	"cmp"
	"slices"

	"TrafficSentry/internal/model"
)

// Summaries returns one summary per cluster, most dangerous first and then by cluster ID.
func (r Result) Summaries() []model.ClusterSummary {
	out := make([]model.ClusterSummary, 0, len(r.Stats))
	for _, s := range r.Stats {
		out = append(out, model.ClusterSummary{
			ClusterID:         s.ID,
			ClusterName:       s.Name,
			IsDangerous:       s.IsDangerous,
			DangerScore:       s.DangerScore,
			SourceCount:       s.Members,
			AverageSpeed:      s.MeanRate,
			MaxSpeed:          s.MaxRate,
			MeanPortDiversity: s.MeanPortDiversity,
		})
	}
	slices.SortFunc(out, func(a, b model.ClusterSummary) int {
		if c := cmp.Compare(b.DangerScore, a.DangerScore); c != 0 {
			return c
		}
		return cmp.Compare(a.ClusterID, b.ClusterID)
	})
	return out
}

// Dangerous returns the summaries of the dangerous clusters only.
func (r Result) Dangerous() []model.ClusterSummary {
	var out []model.ClusterSummary
	for _, s := range r.Summaries() {
		if s.IsDangerous {
			out = append(out, s)
		}
	}
	return out
}

// Members returns the annotated sources that belong to a cluster, in input order.
func (r Result) Members(clusterID int) []model.SourceRecord {
	var out []model.SourceRecord
	for _, s := range r.Sources {
		if s.ClusterID == clusterID {
			out = append(out, s)
		}
	}
	return out
}

// Summarize rebuilds cluster summaries from records that already carry their cluster
// fields, such as records loaded back from storage. Name, score and danger flag are taken
// from the first member of each cluster.
func Summarize(sources []model.SourceRecord) []model.ClusterSummary {
	ids := make([]int, len(sources))
	for i, s := range sources {
		ids[i] = s.ClusterID
	}

	stats := make(map[int]model.ClusterStats)
	for id, s := range collectStats(sources, ids) {
		stats[id] = *s
	}
	for _, s := range sources {
		st := stats[s.ClusterID]
		if st.Name == "" {
			st.Name = s.ClusterName
			st.DangerScore = s.DangerScore
			st.IsDangerous = s.IsDangerous
			stats[s.ClusterID] = st
		}
	}
	return Result{Stats: stats}.Summaries()
}
