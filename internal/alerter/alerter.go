package alerter

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/parser"
	"github.com/rs/zerolog/log"

	"TrafficSentry/internal/config"
	"TrafficSentry/internal/model"
)

// Alerter evaluates finished clustering runs and notifies when dangerous clusters show up.
type Alerter struct {
	minDangerScore float64
	topSources     int
	notifier       model.Notifier
	analyzer       model.Analyzer
	aiTimeout      time.Duration
}

// NewAlerter creates a new Alerter. analyzer may be nil, in which case no AI analysis is
// attached to notifications.
func NewAlerter(cfg config.AlerterConfig, aiTimeout time.Duration, notifier model.Notifier, analyzer model.Analyzer) *Alerter {
	return &Alerter{
		minDangerScore: cfg.MinDangerScore,
		topSources:     cfg.TopSources,
		notifier:       notifier,
		analyzer:       analyzer,
		aiTimeout:      aiTimeout,
	}
}

// Flagged returns the dangerous clusters of a run whose score reaches the alerting threshold.
func (a *Alerter) Flagged(run model.ClusterRun) []model.ClusterSummary {
	var out []model.ClusterSummary
	for _, c := range run.Clusters {
		if c.IsDangerous && c.DangerScore >= a.minDangerScore {
			out = append(out, c)
		}
	}
	return out
}

// Evaluate checks a run and sends one consolidated notification when any cluster is flagged.
// It reports whether a notification was sent.
func (a *Alerter) Evaluate(ctx context.Context, run model.ClusterRun) (bool, error) {
	flagged := a.Flagged(run)
	if len(flagged) == 0 {
		return false, nil
	}
	log.Info().Str("run_id", run.RunID).Int("clusters", len(flagged)).Msg("Dangerous clusters detected")

	summary := a.Compose(run, flagged)
	body := string(render(summary))

	analysis, err := a.analyze(ctx, summary)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to get AI analysis")
	} else if analysis != "" {
		body += "<hr><h2>AI-Powered Analysis</h2>" + string(render(analysis))
	}

	if a.notifier == nil {
		return false, nil
	}
	subject := fmt.Sprintf("TrafficSentry Alert: %d dangerous cluster(s) in run %s", len(flagged), run.RunID)
	if err := a.notifier.Send(subject, body); err != nil {
		return false, fmt.Errorf("failed to send alert notification: %w", err)
	}
	log.Info().Str("run_id", run.RunID).Msg("Alert notification sent")
	return true, nil
}

// Compose builds the markdown summary of the flagged clusters and their busiest sources.
func (a *Alerter) Compose(run model.ClusterRun, flagged []model.ClusterSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# TrafficSentry Alert Summary\n\n")
	fmt.Fprintf(&b, "Run `%s` clustered %d sources with %s at %s.\n\n",
		run.RunID, len(run.Sources), run.Method, run.FinishedAt.UTC().Format(time.RFC3339))

	b.WriteString("| Cluster | Name | Danger score | Sources | Avg pkt/s | Max pkt/s | Mean ports |\n")
	b.WriteString("|---|---|---|---|---|---|---|\n")
	for _, c := range flagged {
		fmt.Fprintf(&b, "| %d | %s | %.2f | %d | %.2f | %.2f | %.2f |\n",
			c.ClusterID, c.ClusterName, c.DangerScore, c.SourceCount, c.AverageSpeed, c.MaxSpeed, c.MeanPortDiversity)
	}

	for _, c := range flagged {
		members := a.topMembers(run.Sources, c.ClusterID)
		if len(members) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n## %s\n\n", c.ClusterName)
		b.WriteString("| Source | Pkt/s | Packets | Unique ports | Avg size |\n")
		b.WriteString("|---|---|---|---|---|\n")
		for _, s := range members {
			fmt.Fprintf(&b, "| %s | %.2f | %d | %d | %.1f |\n",
				s.SourceIP, s.PacketsPerSecond, s.PacketCount, s.UniquePorts, s.AveragePacketSize)
		}
	}
	return b.String()
}

// topMembers returns the fastest sources of a cluster, capped at the configured count.
func (a *Alerter) topMembers(sources []model.SourceRecord, clusterID int) []model.SourceRecord {
	var members []model.SourceRecord
	for _, s := range sources {
		if s.ClusterID == clusterID {
			members = append(members, s)
		}
	}
	slices.SortStableFunc(members, func(x, y model.SourceRecord) int {
		return cmp.Compare(y.PacketsPerSecond, x.PacketsPerSecond)
	})
	if a.topSources > 0 && len(members) > a.topSources {
		members = members[:a.topSources]
	}
	return members
}

func (a *Alerter) analyze(ctx context.Context, summary string) (string, error) {
	if a.analyzer == nil {
		return "", nil
	}
	log.Debug().Msg("Requesting AI analysis for alert summary")
	if a.aiTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.aiTimeout)
		defer cancel()
	}
	return a.analyzer.AnalyzeTraffic(ctx, summary)
}

func render(md string) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions)
	return markdown.ToHTML([]byte(md), p, nil)
}
