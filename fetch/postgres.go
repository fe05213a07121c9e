package fetch

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/event"
	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/polling"
)

// Postgres reads snapshots straight from PostgreSQL tables
type Postgres struct {
	pool   *pgxpool.Pool
	tables TableResolver
}

// OpenPostgres creates a pool and verifies connectivity
func OpenPostgres(ctx context.Context, dsn string, tables TableResolver) (*Postgres, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if tables == nil {
		tables = DefaultTables
	}
	return &Postgres{pool: pool, tables: tables}, nil
}

func (p *Postgres) Fetcher(entity event.Entity) polling.Fetcher {
	table := p.tables(entity)
	return func(ctx context.Context) ([]event.Record, error) {
		query, err := snapshotQuery("postgres", table)
		if err != nil {
			return nil, err
		}
		rows, err := p.pool.Query(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", table, err)
		}
		maps, err := pgx.CollectRows(rows, pgx.RowToMap)
		if err != nil {
			return nil, fmt.Errorf("collect %s: %w", table, err)
		}
		out := make([]event.Record, len(maps))
		for i, m := range maps {
			out[i] = normalizeRecord(m)
		}
		return out, nil
	}
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
