package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"

	"clusterfs/pkg/attachment"
	"clusterfs/pkg/backend"
	"clusterfs/pkg/cluster"
	"clusterfs/pkg/config"
	"clusterfs/pkg/interpolate"
	"clusterfs/pkg/log"
	"clusterfs/pkg/metrics"
	"clusterfs/pkg/server"
)

//go:embed VERSION
var Version string

func main() {
	// Initialize logger first
	_ = log.Logger

	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		log.Fatal().Err(err).Msg("clusterd failed")
	}

	os.Exit(0)
}

func run(args []string) error {
	flagSet := pflag.NewFlagSet("clusterd", pflag.ContinueOnError)
	configPath := flagSet.StringP("config", "c", os.Getenv(config.EnvConfigPath), "path to the YAML configuration file")
	listen := flagSet.StringP("listen", "l", "", "listen address, overrides the configuration")
	debug := flagSet.BoolP("debug", "d", false, "enable debug logging")
	showVersion := flagSet.Bool("version", false, "print the version and exit")

	if err := flagSet.Parse(args); err != nil {
		return err
	}

	version := strings.TrimSpace(Version)
	if *showVersion {
		fmt.Println("clusterd", version)
		return nil
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *listen != "" {
		cfg.Listen = *listen
	}

	if err := log.SetLevel(cfg.LogLevel); err != nil {
		return err
	}
	if *debug {
		log.SetDebugMode()
	}

	backends, err := backend.Open(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := backends.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("Failed to close backends")
		}
	}()

	var (
		m        *metrics.Metrics
		gatherer prometheus.Gatherer
	)
	if cfg.Metrics {
		registry := prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		m = metrics.New(registry)
		gatherer = registry
	}

	allocator := cluster.NewAllocator(backends.States, cluster.WithMetrics(m))
	pipeline := attachment.NewPipeline(allocator, interpolate.New(cfg.Root), cfg.Storage, attachment.WithMetrics(m))

	log.Info().
		Str("root", cfg.Root).
		Str("config", *configPath).
		Str("state_backend", cfg.State.Backend).
		Bool("metrics", cfg.Metrics).
		Msg("Configuration loaded")

	srv := server.NewServer(version, backends.Documents, allocator, pipeline, gatherer)
	return srv.Start(cfg.Listen)
}
