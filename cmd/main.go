package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"bartwatch.dev/relay"
	"bartwatch.dev/relay/bart"
	"bartwatch.dev/relay/config"
	"bartwatch.dev/relay/storage"
)

var rootCmd = &cobra.Command{
	Use:          "relay",
	Short:        "BART relay service",
	Long:         "Serves reshaped real-time BART data and rolling aggregates",
	SilenceUsage: true,
}

var configPath string

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yml", "configuration file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func loadConfig() (*config.AppConfig, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func openStorage(cfg *config.AppConfig) (storage.Storage, error) {
	switch cfg.Storage.Driver {
	case "sqlite":
		return storage.NewSQLiteStorage(cfg.SQLitePath())
	case "postgres":
		return storage.NewPSQLStorage(cfg.Storage.DSN, false)
	case "memory":
		return storage.NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver '%s'", cfg.Storage.Driver)
	}
}

func buildService(cfg *config.AppConfig) (*relay.Service, storage.Storage, error) {
	store, err := openStorage(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("opening storage: %w", err)
	}

	feed := bart.NewClient(cfg.Upstream.BaseURL, cfg.Upstream.Key, cfg.Upstream.Timeout())

	service := relay.NewService(feed, store)
	service.PersistDepartures = cfg.Persist()

	return service, store, nil
}
