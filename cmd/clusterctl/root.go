package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"clusterfs/pkg/backend"
	"clusterfs/pkg/config"
	"clusterfs/pkg/log"
)

const defaultServerURL = "http://localhost:8080"

var (
	rootCmd = &cobra.Command{
		Use:   "clusterctl",
		Short: "Inspect and drive clusterfs storage",
		Long: `clusterctl allocates cluster directories, inspects and seeds bucket counters,
resolves path templates and uploads files to a running clusterd.`,
		SilenceUsage:      true,
		PersistentPreRunE: setupLogging,
	}
	configPath string
	serverURL  string
	debug      bool
)

// Execute runs the root command.
func Execute() error {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv(config.EnvConfigPath), "path to the YAML configuration file")
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", defaultServerURL, "clusterd base URL for remote commands")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug logging")
}

func setupLogging(_ *cobra.Command, _ []string) error {
	if debug {
		log.SetDebugMode()
	}
	return nil
}

// loadConfig reads the configuration named by --config, or the defaults.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if !debug {
		if err := log.SetLevel(cfg.LogLevel); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// openBackends loads the configuration and opens its stores.
func openBackends(ctx context.Context) (*config.Config, *backend.Backends, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	backends, err := backend.Open(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	if cfg.State.Backend == config.BackendMemory {
		log.Warn().Msg("Memory backend: changes made by this command are discarded on exit")
	}
	return cfg, backends, nil
}

func closeBackends(backends *backend.Backends) {
	if err := backends.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close backends")
	}
}

func printJSON(cmd *cobra.Command, value any) error {
	encoded, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
	return err
}
