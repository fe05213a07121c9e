package fetch

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"

	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/event"
	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/polling"
)

// SQL reads snapshots through database/sql; driver is "sqlite3" or "mysql"
type SQL struct {
	db      *sql.DB
	dialect string
	tables  TableResolver
}

// OpenSQL opens the database and verifies connectivity
func OpenSQL(ctx context.Context, driver, dsn string, tables TableResolver) (*SQL, error) {
	if driver == "sqlite" {
		driver = "sqlite3"
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	if tables == nil {
		tables = DefaultTables
	}
	return &SQL{db: db, dialect: driver, tables: tables}, nil
}

func (s *SQL) Fetcher(entity event.Entity) polling.Fetcher {
	table := s.tables(entity)
	return func(ctx context.Context) ([]event.Record, error) {
		query, err := snapshotQuery(s.dialect, table)
		if err != nil {
			return nil, err
		}
		rows, err := s.db.QueryContext(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", table, err)
		}
		defer rows.Close()

		cols, err := rows.Columns()
		if err != nil {
			return nil, err
		}

		var out []event.Record
		for rows.Next() {
			values := make([]any, len(cols))
			ptrs := make([]any, len(cols))
			for i := range values {
				ptrs[i] = &values[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				return nil, fmt.Errorf("scan %s: %w", table, err)
			}
			rec := make(event.Record, len(cols))
			for i, c := range cols {
				rec[c] = normalize(values[i])
			}
			out = append(out, rec)
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate %s: %w", table, err)
		}
		return out, nil
	}
}

func (s *SQL) Close() error {
	return s.db.Close()
}
