package migrations

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	chstore "sai-swap/internal/storage/clickhouse"
)

// RunClickhouseMigrations creates the journal database named in dsn and
// applies every embedded migration, returning a connection to it.
//
// ClickHouse DDL is not transactional, so there is no version table:
// migrations are written as CREATE ... IF NOT EXISTS and re-applied each run.
func RunClickhouseMigrations(ctx context.Context, dsn string) (*chstore.Conn, error) {
	dbName, err := chstore.DatabaseFromDSN(dsn)
	if err != nil {
		return nil, err
	}
	if err := ensureDatabase(ctx, dsn, dbName); err != nil {
		return nil, err
	}

	conn, err := chstore.NewConn(ctx, dsn)
	if err != nil {
		return nil, err
	}

	all, err := Clickhouse()
	if err != nil {
		conn.Close()
		return nil, err
	}
	for _, m := range all {
		n, err := conn.ExecScript(ctx, m.SQL)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("apply migration %s: %w", m.Version, err)
		}
		log.WithFields(log.Fields{
			"module":     logModule,
			"database":   "clickhouse",
			"version":    m.Version,
			"statements": n,
		}).Info("migration applied")
	}
	return conn, nil
}

func ensureDatabase(ctx context.Context, dsn, name string) error {
	admin, err := chstore.NewConnWithDatabase(ctx, dsn, "")
	if err != nil {
		return fmt.Errorf("connect clickhouse admin: %w", err)
	}
	defer admin.Close()

	if err := admin.Exec(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", name)); err != nil {
		return fmt.Errorf("create database %s: %w", name, err)
	}
	return nil
}
