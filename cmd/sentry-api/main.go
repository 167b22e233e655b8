package main

import (
	"context"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"TrafficSentry/internal/api"
	"TrafficSentry/internal/config"
	"TrafficSentry/internal/logging"
	"TrafficSentry/internal/metrics"
	"TrafficSentry/internal/query"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file.")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Setup(cfg.Logging)

	// The stored-run routes need the first enabled ClickHouse writer
	var querier query.Querier
	if chCfg, ok := cfg.ClickHouse(); ok {
		querier, err = query.NewClickHouseQuerier(chCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create querier")
		}
		log.Info().Str("host", chCfg.Host).Msg("Serving stored runs from ClickHouse")
	} else {
		log.Warn().Msg("No enabled ClickHouse writer found in config, stored-run routes will answer 503")
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(cfg.Metrics.Namespace, prometheus.NewRegistry())
		m.StartServer(cfg.Metrics)
	}

	// Run gRPC health server
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	lis, err := net.Listen("tcp", cfg.API.GRPCListenAddr)
	if err != nil {
		log.Fatal().Err(err).Str("addr", cfg.API.GRPCListenAddr).Msg("Failed to listen")
	}
	go func() {
		log.Info().Str("addr", cfg.API.GRPCListenAddr).Msg("gRPC health server starting")
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatal().Err(err).Msg("Failed to serve gRPC")
		}
	}()

	// Run HTTP API server
	server := &http.Server{
		Addr:              cfg.API.ListenAddr,
		Handler:           api.NewHandler(querier, m).Router(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		log.Info().Str("addr", server.Addr).Msg("API server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Str("addr", server.Addr).Msg("Could not listen")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Servers shutting down...")

	healthServer.Shutdown()
	grpcServer.GracefulStop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if m != nil {
		if err := m.StopServer(); err != nil {
			log.Warn().Err(err).Msg("Failed to stop metrics server")
		}
	}
	log.Info().Msg("All servers exited")
}
