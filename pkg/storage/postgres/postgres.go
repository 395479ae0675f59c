// Package postgres stores threads in PostgreSQL through the pgx driver.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	_ "github.com/jackc/pgx/v5/stdlib"

	entdriver "github.com/papercomputeco/threads/pkg/storage/ent/driver"
)

const (
	maxOpenConns    = 16
	maxIdleConns    = 4
	connMaxIdleTime = 5 * time.Minute
)

// Driver implements storage.Driver on PostgreSQL. Appends to one stream are
// serialized by a row lock on the stream head.
type Driver struct {
	*entdriver.EntDriver
}

// NewDriver connects with dsn, either key=value pairs or a postgres:// URI,
// and migrates the schema.
func NewDriver(ctx context.Context, dsn string) (*Driver, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres database: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	ed, err := entdriver.Open(ctx, dialect.Postgres, db)
	if err != nil {
		return nil, err
	}
	return &Driver{EntDriver: ed}, nil
}
