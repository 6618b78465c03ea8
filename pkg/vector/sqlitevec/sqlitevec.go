// Package sqlitevec provides a SQLite-backed vector driver using sqlite-vec.
package sqlitevec

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/reveriehq/reverie/pkg/vector"
)

// overFetchMultiplier widens KNN queries so that filtering by chat and set
// after the MATCH still yields topK rows. vec0 tables hold every chat's
// vectors; the engine serves one chat at a time so the multiplier is small.
const overFetchMultiplier = 8

// SQLiteVecDriver implements vector.Driver using SQLite with sqlite-vec.
type SQLiteVecDriver struct {
	db     *sql.DB
	logger *zap.Logger
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
func NewSQLiteVecDriver(c Config, logger *zap.Logger) (*SQLiteVecDriver, error) {
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

	// Verify sqlite-vec is loaded
	var vecVersion string
	if err := db.QueryRow("SELECT vec_version()").Scan(&vecVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite-vec not available: %w", err)
	}

	// vec0 virtual tables use integer rowids, so we keep a mapping table from
	// (chat, set, doc_id) to rowid, which also carries the floor used for
	// cascading deletes.
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS vec_documents (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id TEXT NOT NULL,
			vec_set TEXT NOT NULL,
			doc_id TEXT NOT NULL,
			floor INTEGER NOT NULL DEFAULT 0,
			UNIQUE(chat_id, vec_set, doc_id)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating documents table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS vec_fingerprints (
			chat_id TEXT PRIMARY KEY,
			fingerprint TEXT NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating fingerprints table: %w", err)
	}

	// Create the vec0 virtual table for vector storage and KNN queries.
	createVec := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS vec_embeddings USING vec0(embedding float[%d])`,
		c.Dimensions,
	)
	if _, err := db.Exec(createVec); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating vec0 table: %w", err)
	}

	logger.Info("sqlite-vec vector driver initialized",
		zap.String("db_path", c.DBPath),
		zap.Uint("dimensions", c.Dimensions),
		zap.String("vec_version", vecVersion),
	)

	return &SQLiteVecDriver{
		db:     db,
		logger: logger,
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

// deserializeFloat32 converts a little-endian byte slice back to a float32 slice.
func deserializeFloat32(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding blob length %d: must be divisible by 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

// Add stores documents with their embeddings into a set.
// If a document with the same ID already exists, it is updated.
func (d *SQLiteVecDriver) Add(ctx context.Context, chatID string, set vector.Set, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, doc := range docs {
		embBlob := serializeFloat32(doc.Embedding)

		var existingRowID int64
		err = tx.QueryRowContext(ctx,
			`SELECT rowid FROM vec_documents WHERE chat_id = ? AND vec_set = ? AND doc_id = ?`,
			chatID, string(set), doc.ID,
		).Scan(&existingRowID)

		switch err {
		case nil:
			if _, err := tx.ExecContext(ctx,
				`UPDATE vec_documents SET floor = ? WHERE rowid = ?`,
				doc.Floor, existingRowID,
			); err != nil {
				return fmt.Errorf("updating document %s: %w", doc.ID, err)
			}

			// vec0 does not support UPDATE, replace via DELETE + INSERT
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM vec_embeddings WHERE rowid = ?`, existingRowID,
			); err != nil {
				return fmt.Errorf("deleting old embedding for doc %s: %w", doc.ID, err)
			}

			if _, err := tx.ExecContext(ctx,
				`INSERT INTO vec_embeddings(rowid, embedding) VALUES (?, ?)`,
				existingRowID, embBlob,
			); err != nil {
				return fmt.Errorf("re-inserting embedding for doc %s: %w", doc.ID, err)
			}
		case sql.ErrNoRows:
			// New document — insert into mapping table first to get the rowid
			result, err := tx.ExecContext(ctx,
				`INSERT INTO vec_documents(chat_id, vec_set, doc_id, floor) VALUES (?, ?, ?, ?)`,
				chatID, string(set), doc.ID, doc.Floor,
			)
			if err != nil {
				return fmt.Errorf("inserting document %s: %w", doc.ID, err)
			}

			rowID, err := result.LastInsertId()
			if err != nil {
				return fmt.Errorf("getting rowid for doc %s: %w", doc.ID, err)
			}

			if _, err := tx.ExecContext(ctx,
				`INSERT INTO vec_embeddings(rowid, embedding) VALUES (?, ?)`,
				rowID, embBlob,
			); err != nil {
				return fmt.Errorf("inserting embedding for doc %s: %w", doc.ID, err)
			}
		default:
			return fmt.Errorf("checking for existing document %s: %w", doc.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	d.logger.Debug("added documents to sqlite-vec",
		zap.String("chat_id", chatID),
		zap.String("set", string(set)),
		zap.Int("count", len(docs)),
	)

	return nil
}

// Query finds the topK most similar documents to the given embedding.
func (d *SQLiteVecDriver) Query(ctx context.Context, chatID string, set vector.Set, embedding []float32, topK int) ([]vector.QueryResult, error) {
	if topK <= 0 {
		topK = 10
	}

	queryBlob := serializeFloat32(embedding)

	// KNN via vec0 MATCH, over-fetched so the chat/set filter in the JOIN
	// still yields topK rows.
	rows, err := d.db.QueryContext(ctx, `
		SELECT
			m.doc_id,
			m.floor,
			ve.distance
		FROM vec_embeddings ve
		INNER JOIN vec_documents m ON m.rowid = ve.rowid
		WHERE ve.embedding MATCH ?
			AND ve.k = ?
			AND m.chat_id = ?
			AND m.vec_set = ?
		ORDER BY ve.distance
		LIMIT ?
	`, queryBlob, topK*overFetchMultiplier, chatID, string(set), topK)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	var results []vector.QueryResult
	for rows.Next() {
		var docID string
		var floor int
		var distance float64
		if err := rows.Scan(&docID, &floor, &distance); err != nil {
			return nil, fmt.Errorf("scanning query result: %w", err)
		}

		results = append(results, vector.QueryResult{
			Document: vector.Document{
				ID:    docID,
				Floor: floor,
			},
			// Convert distance to similarity score: lower distance = higher similarity
			Score: float32(1.0 / (1.0 + distance)),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating query results: %w", err)
	}

	d.logger.Debug("queried sqlite-vec",
		zap.String("chat_id", chatID),
		zap.String("set", string(set)),
		zap.Int("results", len(results)),
	)

	return results, nil
}

// All returns every document of a set with its embedding, ID ascending.
func (d *SQLiteVecDriver) All(ctx context.Context, chatID string, set vector.Set) ([]vector.Document, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT m.doc_id, m.floor, m.rowid
		FROM vec_documents m
		WHERE m.chat_id = ? AND m.vec_set = ?
		ORDER BY m.doc_id
	`, chatID, string(set))
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	// Collect rows first so the cursor is closed before issuing additional
	// queries (SQLite uses a single connection).
	type docRow struct {
		docID string
		floor int
		rowID int64
	}
	var docRows []docRow

	for rows.Next() {
		var dr docRow
		if err := rows.Scan(&dr.docID, &dr.floor, &dr.rowID); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		docRows = append(docRows, dr)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	rows.Close()

	docs := make([]vector.Document, 0, len(docRows))
	for _, dr := range docRows {
		doc := vector.Document{
			ID:    dr.docID,
			Floor: dr.floor,
		}

		var embBlob []byte
		err := d.db.QueryRowContext(ctx,
			`SELECT embedding FROM vec_embeddings WHERE rowid = ?`, dr.rowID,
		).Scan(&embBlob)
		if err == nil && len(embBlob) > 0 {
			doc.Embedding, err = deserializeFloat32(embBlob)
			if err != nil {
				return nil, fmt.Errorf("deserializing embedding for doc %s: %w", dr.docID, err)
			}
		}

		docs = append(docs, doc)
	}

	return docs, nil
}

// Count returns the number of documents in a set.
func (d *SQLiteVecDriver) Count(ctx context.Context, chatID string, set vector.Set) (int, error) {
	var count int
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM vec_documents WHERE chat_id = ? AND vec_set = ?`,
		chatID, string(set),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return count, nil
}

// Delete removes documents by their IDs.
func (d *SQLiteVecDriver) Delete(ctx context.Context, chatID string, set vector.Set, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := make([]string, len(ids))
	args := []any{chatID, string(set)}
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}

	where := fmt.Sprintf(
		`chat_id = ? AND vec_set = ? AND doc_id IN (%s)`,
		strings.Join(placeholders, ","),
	)

	return d.deleteWhere(ctx, where, args, len(ids))
}

// DeleteFloorsFrom removes documents with floor >= floor from a set.
func (d *SQLiteVecDriver) DeleteFloorsFrom(ctx context.Context, chatID string, set vector.Set, floor int) error {
	return d.deleteWhere(ctx,
		`chat_id = ? AND vec_set = ? AND floor >= ?`,
		[]any{chatID, string(set), floor}, -1)
}

// DeleteFloorAt removes documents at exactly the given floor from a set.
func (d *SQLiteVecDriver) DeleteFloorAt(ctx context.Context, chatID string, set vector.Set, floor int) error {
	return d.deleteWhere(ctx,
		`chat_id = ? AND vec_set = ? AND floor = ?`,
		[]any{chatID, string(set), floor}, -1)
}

// deleteWhere removes mapping rows matching the WHERE clause together with
// their vec0 embeddings, in one transaction.
func (d *SQLiteVecDriver) deleteWhere(ctx context.Context, where string, args []any, count int) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		fmt.Sprintf(`SELECT rowid FROM vec_documents WHERE %s`, where), args...)
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
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM vec_embeddings WHERE rowid = ?`, rowID,
		); err != nil {
			return fmt.Errorf("deleting embedding rowid %d: %w", rowID, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM vec_documents WHERE %s`, where), args...,
	); err != nil {
		return fmt.Errorf("deleting documents: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	if count < 0 {
		count = len(rowIDs)
	}
	d.logger.Debug("deleted documents from sqlite-vec",
		zap.Int("count", count),
	)

	return nil
}

// Fingerprint returns the embedding fingerprint recorded for the chat.
func (d *SQLiteVecDriver) Fingerprint(ctx context.Context, chatID string) (string, error) {
	var fp string
	err := d.db.QueryRowContext(ctx,
		`SELECT fingerprint FROM vec_fingerprints WHERE chat_id = ?`, chatID,
	).Scan(&fp)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("querying fingerprint: %w", err)
	}
	return fp, nil
}

// SetFingerprint records the embedding fingerprint for the chat.
func (d *SQLiteVecDriver) SetFingerprint(ctx context.Context, chatID string, fingerprint string) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO vec_fingerprints(chat_id, fingerprint) VALUES (?, ?)`,
		chatID, fingerprint,
	)
	if err != nil {
		return fmt.Errorf("recording fingerprint: %w", err)
	}
	return nil
}

// DropChat removes all vector state for the chat, fingerprint included.
func (d *SQLiteVecDriver) DropChat(ctx context.Context, chatID string) error {
	if err := d.deleteWhere(ctx, `chat_id = ?`, []any{chatID}, -1); err != nil {
		return err
	}

	if _, err := d.db.ExecContext(ctx,
		`DELETE FROM vec_fingerprints WHERE chat_id = ?`, chatID,
	); err != nil {
		return fmt.Errorf("deleting fingerprint: %w", err)
	}

	return nil
}

// Close releases resources held by the driver.
func (d *SQLiteVecDriver) Close() error {
	return d.db.Close()
}

// Ensure SQLiteVecDriver implements vector.Driver
var _ vector.Driver = (*SQLiteVecDriver)(nil)
