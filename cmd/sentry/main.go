package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"TrafficSentry/internal/cluster"
	"TrafficSentry/internal/codec"
	"TrafficSentry/internal/config"
	"TrafficSentry/internal/logging"
	"TrafficSentry/internal/threat"
)

var (
	cfgFile    string
	inputPath  string
	inputFmt   string
	outputPath string
	pretty     bool

	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "sentry",
	Short: "Cluster traffic sources and score packet threats",
	Long: `TrafficSentry groups traffic sources by behaviour, rates how dangerous each
group is, and scores individual packets against fixed threat heuristics.

Inputs:
  - JSON arrays of source or packet records
  - Wireshark CSV exports (No., Time, Source, Destination, Protocol, Length, Info)
  - pcap / pcapng captures
  - sources.dat snapshots written by the gob writer`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logging.Setup(config.LoggingConfig{
			Level:   viper.GetString("logging.level"),
			Console: true,
		})
		return nil
	},
}

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Cluster traffic sources and rate each cluster",
	Long: `Cluster the sources of the input and print the run as JSON.

Examples:
  sentry cluster --input sources.json --method kmeans --clusters 4
  sentry cluster --input capture.pcap --method dbscan
  sentry cluster --input export.csv --min-packets 5`,
	RunE: runCluster,
}

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score packets against the threat heuristics",
	Long: `Score every packet record of the input and print the assessments as JSON.
Packets read from captures or CSV exports are scored with the behaviour and cluster
verdict of their source.

Examples:
  sentry score --input packets.json
  sentry score --input capture.pcap --method kmeans --clusters 3`,
	RunE: runScore,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("TrafficSentry %s\n", Version)
		fmt.Printf("Commit:  %s\n", Commit)
		fmt.Printf("Built:   %s\n", BuildTime)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./configs/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&inputPath, "input", "i", "", "input file ('-' for stdin)")
	rootCmd.PersistentFlags().StringVarP(&inputFmt, "format", "f", "auto", "input format: auto, json, csv, pcap, dat")
	rootCmd.PersistentFlags().StringVarP(&outputPath, "output", "o", "", "write JSON to this file instead of stdout")
	rootCmd.PersistentFlags().BoolVar(&pretty, "pretty", false, "indent the JSON output")
	rootCmd.PersistentFlags().String("method", "kmeans", "clustering method: kmeans or dbscan")
	rootCmd.PersistentFlags().IntP("clusters", "k", 3, "number of clusters for kmeans")
	rootCmd.PersistentFlags().Int("min-packets", 2, "minimum packets for a source to be clustered")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")

	viper.BindPFlag("clustering.method", rootCmd.PersistentFlags().Lookup("method"))
	viper.BindPFlag("clustering.clusters", rootCmd.PersistentFlags().Lookup("clusters"))
	viper.BindPFlag("clustering.min_packets_per_source", rootCmd.PersistentFlags().Lookup("min-packets"))
	viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(clusterCmd)
	rootCmd.AddCommand(scoreCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath(".")
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn().Err(err).Msg("Error reading config file")
		}
	}

	viper.SetEnvPrefix("SENTRY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

// clusteringConfig reads the clustering settings from flags, environment and config file.
func clusteringConfig() config.ClusteringConfig {
	return config.ClusteringConfig{
		Method:              viper.GetString("clustering.method"),
		Clusters:            viper.GetInt("clustering.clusters"),
		MinPacketsPerSource: viper.GetInt("clustering.min_packets_per_source"),
	}
}

func runCluster(cmd *cobra.Command, args []string) error {
	cc := clusteringConfig()
	method := cluster.ParseMethod(cc.Method, cc.Clusters)

	sources, err := loadSources(cmd.Context(), inputPath, inputFmt, cc.MinPacketsPerSource)
	if err != nil {
		return err
	}
	log.Info().Int("sources", len(sources)).Str("method", method.String()).Msg("Clustering sources")

	run := newRun(sources, method)
	msg, err := codec.ClusterRunStruct(run)
	if err != nil {
		return err
	}
	data, err := codec.EncodeJSON(msg)
	if err != nil {
		return err
	}
	return writeOutput(data)
}

func runScore(cmd *cobra.Command, args []string) error {
	cc := clusteringConfig()
	method := cluster.ParseMethod(cc.Method, cc.Clusters)

	records, err := loadThreatRecords(cmd.Context(), inputPath, inputFmt, cc.MinPacketsPerSource, method)
	if err != nil {
		return err
	}

	assessments := threat.ScoreBatch(records)
	malicious := 0
	for _, a := range assessments {
		if a.IsMalicious {
			malicious++
		}
	}
	log.Info().Int("packets", len(assessments)).Int("malicious", malicious).Msg("Scored packets")

	data, err := codec.EncodeJSON(codec.AssessmentList(assessments))
	if err != nil {
		return err
	}
	return writeOutput(data)
}

func writeOutput(data []byte) error {
	if pretty {
		var buf bytes.Buffer
		if err := json.Indent(&buf, data, "", "  "); err != nil {
			return fmt.Errorf("failed to indent output: %w", err)
		}
		data = buf.Bytes()
	}

	var out io.Writer = os.Stdout
	if outputPath != "" {
		f, err := os.Create(outputPath)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}
	if _, err := out.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
