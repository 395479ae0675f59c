// Package entdriver implements storage.Driver on top of ent's SQL dialect
// layer. It is database-agnostic and is embedded by the sqlite and postgres
// drivers, which only differ in how the connection is opened.
package entdriver

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/papercomputeco/threads/pkg/storage/ent/migrate"
)

// EntDriver provides storage operations using an ent SQL driver.
type EntDriver struct {
	Driver *entsql.Driver

	// Now is the time source used to assign entry IDs.
	Now func() time.Time
}

// New wraps drv and runs the schema migration.
func New(ctx context.Context, drv *entsql.Driver) (*EntDriver, error) {
	if err := migrate.Create(ctx, drv); err != nil {
		return nil, err
	}

	return &EntDriver{
		Driver: drv,
		Now:    time.Now,
	}, nil
}

// Open wraps db for the named dialect, runs setup statements and migrates.
// db is closed when any step fails.
func Open(ctx context.Context, dialectName string, db *sql.DB, setup ...string) (*EntDriver, error) {
	for _, stmt := range setup {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("running %q: %w", stmt, err)
		}
	}

	drv := entsql.OpenDB(dialectName, db)
	ed, err := New(ctx, drv)
	if err != nil {
		drv.Close()
		return nil, err
	}
	return ed, nil
}

// Close closes the database connection.
func (ed *EntDriver) Close() error {
	return ed.Driver.Close()
}

func (ed *EntDriver) builder() *entsql.DialectBuilder {
	return entsql.Dialect(ed.Driver.Dialect())
}

func (ed *EntDriver) withTx(ctx context.Context, fn func(tx dialect.Tx) error) error {
	tx, err := ed.Driver.Tx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// exec runs a statement and returns the number of affected rows.
func exec(ctx context.Context, q dialect.ExecQuerier, b entsql.Querier) (int64, error) {
	query, args := b.Query()

	var res sql.Result
	if err := q.Exec(ctx, query, args, &res); err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// scan runs a query and calls fn once per row.
func scan(ctx context.Context, q dialect.ExecQuerier, b entsql.Querier, fn func(rows *entsql.Rows) error) error {
	query, args := b.Query()

	rows := &entsql.Rows{}
	if err := q.Query(ctx, query, args, rows); err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

func msOf(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func timeOf(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// insertID runs an insert and returns the generated "id" column. Postgres
// reports it through RETURNING, other dialects through LastInsertId.
func (ed *EntDriver) insertID(ctx context.Context, q dialect.ExecQuerier, ins *entsql.InsertBuilder) (int64, error) {
	if ed.Driver.Dialect() == dialect.Postgres {
		var id int64
		err := scan(ctx, q, ins.Returning("id"), func(rows *entsql.Rows) error {
			return rows.Scan(&id)
		})
		return id, err
	}

	query, args := ins.Query()
	var res sql.Result
	if err := q.Exec(ctx, query, args, &res); err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Truncate deletes every row from every table. Used to isolate tests that
// share a database.
func (ed *EntDriver) Truncate(ctx context.Context) error {
	for _, t := range migrate.Tables {
		if _, err := exec(ctx, ed.Driver, ed.builder().Delete(t.Name)); err != nil {
			return fmt.Errorf("failed to truncate %s: %w", t.Name, err)
		}
	}
	return nil
}
