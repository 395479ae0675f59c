// Package sqlitevec provides a SQLite-backed vector driver using sqlite-vec.
package sqlitevec

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/papercomputeco/threads/pkg/vector"
)

// SQLiteVecDriver implements vector.Driver using SQLite with sqlite-vec.
// Each namespace is a vec0 partition so KNN queries only scan one stream.
type SQLiteVecDriver struct {
	db         *sql.DB
	dimensions int
	logger     *slog.Logger
}

// Config holds configuration for the SQLite vec driver.
type Config struct {
	// DBPath is the path to the SQLite database file.
	// Use ":memory:" for an in-memory database.
	DBPath string

	// Dimensions is the number of dimensions for the embedding vectors.
	Dimensions uint
}

// NewSQLiteVecDriver creates a new SQLite vector driver backed by sqlite-vec.
func NewSQLiteVecDriver(c Config, logger *slog.Logger) (*SQLiteVecDriver, error) {
	// enable connection to have sqlite-vec extension
	sqlite_vec.Auto()

	if c.DBPath == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if c.Dimensions == 0 {
		return nil, fmt.Errorf("sqlite-vec embedding dimensions cannot be 0, must be configured")
	}

	db, err := sql.Open("sqlite3", c.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// One connection keeps ":memory:" databases intact across queries.
	db.SetMaxOpenConns(1)

	var vecVersion string
	if err := db.QueryRow("SELECT vec_version()").Scan(&vecVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite-vec not available: %w", err)
	}

	// vec0 virtual tables use integer rowids, so string document IDs are
	// mapped to rowids here.
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS vec_documents (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			namespace TEXT NOT NULL,
			doc_id TEXT NOT NULL,
			tags TEXT NOT NULL DEFAULT '[]',
			UNIQUE(namespace, doc_id)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating documents table: %w", err)
	}

	createVec := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS vec_embeddings USING vec0(namespace text partition key, embedding float[%d] distance_metric=cosine)`,
		c.Dimensions,
	)
	if _, err := db.Exec(createVec); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating vec0 table: %w", err)
	}

	logger.Info("sqlite-vec vector driver initialized",
		"db_path", c.DBPath,
		"dimensions", c.Dimensions,
		"vec_version", vecVersion,
	)

	return &SQLiteVecDriver{
		db:         db,
		dimensions: int(c.Dimensions),
		logger:     logger,
	}, nil
}

// serializeFloat32 converts a float32 slice to a little-endian byte slice
// suitable for sqlite-vec BLOB format.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func (d *SQLiteVecDriver) checkDimensions(v []float32) error {
	if len(v) != d.dimensions {
		return fmt.Errorf("%w: expected %d, got %d", vector.ErrDimensions, d.dimensions, len(v))
	}
	return nil
}

// Add stores documents with their embeddings.
// If a document with the same namespace and ID already exists, it is updated.
func (d *SQLiteVecDriver) Add(ctx context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, doc := range docs {
		if err := d.checkDimensions(doc.Embedding); err != nil {
			return fmt.Errorf("doc %s: %w", doc.ID, err)
		}

		tags, err := json.Marshal(nonNil(doc.Tags))
		if err != nil {
			return fmt.Errorf("encoding tags for doc %s: %w", doc.ID, err)
		}

		var rowID int64
		err = tx.QueryRowContext(ctx,
			`SELECT rowid FROM vec_documents WHERE namespace = ? AND doc_id = ?`, doc.Namespace, doc.ID,
		).Scan(&rowID)

		switch {
		case err == nil:
			if _, err := tx.ExecContext(ctx,
				`UPDATE vec_documents SET tags = ? WHERE rowid = ?`, string(tags), rowID,
			); err != nil {
				return fmt.Errorf("updating document %s: %w", doc.ID, err)
			}

			// vec0 does not support UPDATE
			if _, err := tx.ExecContext(ctx, `DELETE FROM vec_embeddings WHERE rowid = ?`, rowID); err != nil {
				return fmt.Errorf("deleting old embedding for doc %s: %w", doc.ID, err)
			}

		case errors.Is(err, sql.ErrNoRows):
			result, err := tx.ExecContext(ctx,
				`INSERT INTO vec_documents(namespace, doc_id, tags) VALUES (?, ?, ?)`,
				doc.Namespace, doc.ID, string(tags),
			)
			if err != nil {
				return fmt.Errorf("inserting document %s: %w", doc.ID, err)
			}

			rowID, err = result.LastInsertId()
			if err != nil {
				return fmt.Errorf("getting rowid for doc %s: %w", doc.ID, err)
			}

		default:
			return fmt.Errorf("checking for existing document %s: %w", doc.ID, err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO vec_embeddings(rowid, namespace, embedding) VALUES (?, ?, ?)`,
			rowID, doc.Namespace, serializeFloat32(doc.Embedding),
		); err != nil {
			return fmt.Errorf("inserting embedding for doc %s: %w", doc.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	d.logger.Debug("added documents to sqlite-vec", "count", len(docs))

	return nil
}

// Query finds the TopK most similar documents of a namespace.
//
// Untagged queries use the vec0 KNN index restricted to the namespace
// partition. Tag filtered queries compute exact distances over the tagged
// documents of the namespace instead, so the filter can never starve the
// result set.
func (d *SQLiteVecDriver) Query(ctx context.Context, q vector.Query) ([]vector.QueryResult, error) {
	topK := q.TopK
	if topK <= 0 {
		topK = vector.DefaultTopK
	}
	if err := d.checkDimensions(q.Embedding); err != nil {
		return nil, err
	}

	blob := serializeFloat32(q.Embedding)

	var (
		rows *sql.Rows
		err  error
	)
	if q.Tag == "" {
		rows, err = d.db.QueryContext(ctx, `
			SELECT d.doc_id, d.tags, ve.distance
			FROM vec_embeddings ve
			INNER JOIN vec_documents d ON d.rowid = ve.rowid
			WHERE ve.embedding MATCH ?
				AND ve.k = ?
				AND ve.namespace = ?
			ORDER BY ve.distance
		`, blob, topK, q.Namespace)
	} else {
		rows, err = d.db.QueryContext(ctx, `
			SELECT d.doc_id, d.tags, vec_distance_cosine(ve.embedding, ?) AS distance
			FROM vec_documents d
			INNER JOIN vec_embeddings ve ON ve.rowid = d.rowid
			WHERE d.namespace = ?
				AND EXISTS (SELECT 1 FROM json_each(d.tags) WHERE json_each.value = ?)
			ORDER BY distance
			LIMIT ?
		`, blob, q.Namespace, q.Tag, topK)
	}
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	var results []vector.QueryResult
	for rows.Next() {
		var (
			docID, tags string
			distance    float64
		)
		if err := rows.Scan(&docID, &tags, &distance); err != nil {
			return nil, fmt.Errorf("scanning query result: %w", err)
		}

		doc := vector.Document{ID: docID, Namespace: q.Namespace}
		if err := json.Unmarshal([]byte(tags), &doc.Tags); err != nil {
			return nil, fmt.Errorf("decoding tags of doc %s: %w", docID, err)
		}

		results = append(results, vector.QueryResult{
			Document: doc,
			// cosine distance is in [0, 2]
			Score: float32(1 - distance),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating query results: %w", err)
	}

	d.logger.Debug("queried sqlite-vec",
		"namespace", q.Namespace,
		"tag", q.Tag,
		"results", len(results),
	)

	return results, nil
}

// Delete removes documents of a namespace by ID.
func (d *SQLiteVecDriver) Delete(ctx context.Context, namespace string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	placeholders := make([]string, len(ids))
	args := make([]any, 0, len(ids)+1)
	args = append(args, namespace)
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}
	where := fmt.Sprintf(`namespace = ? AND doc_id IN (%s)`, strings.Join(placeholders, ","))

	rows, err := tx.QueryContext(ctx, `SELECT rowid FROM vec_documents WHERE `+where, args...)
	if err != nil {
		return fmt.Errorf("querying rowids for deletion: %w", err)
	}

	var rowIDs []int64
	for rows.Next() {
		var rowID int64
		if err := rows.Scan(&rowID); err != nil {
			rows.Close()
			return fmt.Errorf("scanning rowid: %w", err)
		}
		rowIDs = append(rowIDs, rowID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating rowids: %w", err)
	}

	for _, rowID := range rowIDs {
		if _, err := tx.ExecContext(ctx, `DELETE FROM vec_embeddings WHERE rowid = ?`, rowID); err != nil {
			return fmt.Errorf("deleting embedding rowid %d: %w", rowID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM vec_documents WHERE `+where, args...); err != nil {
		return fmt.Errorf("deleting documents: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	d.logger.Debug("deleted documents from sqlite-vec", "count", len(rowIDs))

	return nil
}

// Close closes the database connection.
func (d *SQLiteVecDriver) Close() error {
	return d.db.Close()
}

func nonNil(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
