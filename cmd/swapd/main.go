// Command swapd runs and operates the custodial swap engine.
//
// Usage:
//
//	swapd serve [--config swapd.yaml] [--listen :8080] [--storage.driver postgres]
//	swapd migrate [--status]
//	swapd derive --state <key> [--variant multi|single]
//	swapd simulate [--server http://host:8080] [--swaps 3]
//	swapd watch --server http://host:8080 [--state <key>]
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"sai-swap/internal/config"
	"sai-swap/internal/logging"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "swapd",
	Short: "swapd - custodial asset swap engine",
	Long: `swapd holds tradable assets in program-controlled vaults and sells them
for a settlement asset at an owner-set price. It serves instructions and
reads over HTTP and streams applied instructions over a websocket.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "configuration file path (yaml, json or toml)")
	flags.String("program_id", "", "program identity vault addresses are derived under")
	flags.String("log.level", "", "log level (trace|debug|info|warn|error)")
	flags.String("log.format", "", "log format (text|json)")
	flags.String("log.file", "", "also write JSON logs to this rotating file")
	flags.String("storage.driver", "", "ledger backend (memory|postgres)")
	flags.String("storage.postgres_dsn", "", "PostgreSQL connection string")
	flags.String("storage.clickhouse_dsn", "", "ClickHouse connection string for the event journal")

	rootCmd.AddCommand(serveCmd, migrateCmd, deriveCmd, simulateCmd, watchCmd)
}

// loadConfig resolves configuration for cmd and configures logging.
// The returned closer flushes the log file.
func loadConfig(cmd *cobra.Command) (*config.Config, io.Closer, error) {
	cfg, err := config.LoadWithFlags(configFile, cmd.Flags())
	if err != nil {
		return nil, nil, err
	}

	closer, err := logging.Setup(logging.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("setup logging: %w", err)
	}
	return cfg, closer, nil
}
