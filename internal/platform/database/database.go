// Package database opens the session store and keeps its schema current.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Driver string
	DSN    string
	// Attempts is how many times to try reaching the database before
	// giving up. Values below 1 mean one attempt.
	Attempts int
	Backoff  time.Duration
}

// Open connects to the database, waiting for it to come up.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	dsn := cfg.DSN
	switch cfg.Driver {
	case DriverPostgres:
	case DriverSQLite:
		dsn = sqliteDSN(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, err
	}
	if cfg.Driver == DriverSQLite {
		// one writer; also keeps in-memory databases alive
		db.SetMaxOpenConns(1)
	}

	attempts := max(cfg.Attempts, 1)
	for i := 1; ; i++ {
		err = db.PingContext(ctx)
		if err == nil {
			return db, nil
		}
		if i >= attempts {
			break
		}
		log.Printf("Waiting for DB... (%d/%d): %v", i, attempts, err)
		select {
		case <-ctx.Done():
			db.Close()
			return nil, ctx.Err()
		case <-time.After(cfg.Backoff):
		}
	}
	db.Close()
	return nil, fmt.Errorf("connect to %s: %w", cfg.Driver, err)
}

func sqliteDSN(dsn string) string {
	if dsn == "" {
		dsn = "triage.db"
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"
}
