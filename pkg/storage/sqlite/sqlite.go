// Package sqlite stores threads in a single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"entgo.io/ent/dialect"
	_ "github.com/mattn/go-sqlite3"

	entdriver "github.com/papercomputeco/threads/pkg/storage/ent/driver"
)

var pragmas = []string{
	"PRAGMA foreign_keys = ON",
	"PRAGMA busy_timeout = 5000",
	"PRAGMA journal_mode = WAL",
}

// Driver implements storage.Driver on SQLite.
type Driver struct {
	*entdriver.EntDriver
}

// NewDriver opens dbPath, a file path or ":memory:", and migrates it.
func NewDriver(ctx context.Context, dbPath string) (*Driver, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	// One connection serializes writers, so appends to a stream never race
	// for the next entry ID. It also keeps ":memory:" to one database.
	db.SetMaxOpenConns(1)

	ed, err := entdriver.Open(ctx, dialect.SQLite, db, pragmas...)
	if err != nil {
		return nil, err
	}
	return &Driver{EntDriver: ed}, nil
}
