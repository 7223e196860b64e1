package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"sai-swap/internal/config"
	"sai-swap/internal/storage/migrations"
)

var migrateStatus bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply PostgreSQL and ClickHouse migrations",
	Long: `Applies the embedded ledger schema to PostgreSQL (when storage.driver is
postgres) and the journal schema to ClickHouse (when storage.clickhouse_dsn is set).`,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateStatus, "status", false, "list applied PostgreSQL migrations and exit")
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, logCloser, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if cfg.Storage.Driver != config.DriverPostgres && cfg.Storage.ClickhouseDSN == "" {
		return errors.New("nothing to migrate: set storage.driver=postgres or storage.clickhouse_dsn")
	}

	if cfg.Storage.Driver == config.DriverPostgres {
		pool, err := openPool(ctx, cfg)
		if err != nil {
			return err
		}
		defer pool.Close()

		if migrateStatus {
			versions, err := migrations.AppliedPostgres(ctx, pool)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "postgres: %d applied\n", len(versions))
			for _, v := range versions {
				fmt.Fprintf(out, "  %s\n", v)
			}
			return nil
		}

		applied, err := migrations.RunPostgresMigrations(ctx, pool)
		if err != nil {
			return err
		}
		if len(applied) == 0 {
			fmt.Fprintln(out, "postgres: up to date")
		} else {
			fmt.Fprintf(out, "postgres: applied %s\n", strings.Join(applied, ", "))
		}
	}

	if cfg.Storage.ClickhouseDSN != "" && !migrateStatus {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Storage.ClickhouseDSN)
		if err != nil {
			return err
		}
		conn.Close()
		fmt.Fprintln(out, "clickhouse: schema applied")
	}
	return nil
}
