// Package sqlite provides a SQLite-backed implementation of store.Driver.
// Atoms, chunks and checkpoints are stored as rows for range queries; the
// merged summary state and the fact list are stored as single JSON documents
// per chat so that PutSummaryState/PutFacts stay atomic whole-structure swaps.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/reveriehq/reverie/pkg/model"
	"github.com/reveriehq/reverie/pkg/store"
)

// Driver implements store.Driver on SQLite.
type Driver struct {
	db     *sql.DB
	logger *zap.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS atoms (
	chat_id TEXT NOT NULL,
	atom_id TEXT NOT NULL,
	floor   INTEGER NOT NULL,
	payload TEXT NOT NULL,
	PRIMARY KEY (chat_id, atom_id)
);
CREATE INDEX IF NOT EXISTS idx_atoms_floor ON atoms (chat_id, floor);

CREATE TABLE IF NOT EXISTS chunks (
	chat_id   TEXT NOT NULL,
	chunk_id  TEXT NOT NULL,
	floor     INTEGER NOT NULL,
	chunk_idx INTEGER NOT NULL,
	payload   TEXT NOT NULL,
	PRIMARY KEY (chat_id, chunk_id)
);
CREATE INDEX IF NOT EXISTS idx_chunks_floor ON chunks (chat_id, floor, chunk_idx);

CREATE TABLE IF NOT EXISTS summary_state (
	chat_id TEXT PRIMARY KEY,
	payload TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS facts (
	chat_id TEXT PRIMARY KEY,
	payload TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS chat_meta (
	chat_id               TEXT PRIMARY KEY,
	last_summarized_floor INTEGER NOT NULL,
	vector_fingerprint    TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS checkpoints (
	chat_id    TEXT NOT NULL,
	end_floor  INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_checkpoints ON checkpoints (chat_id, end_floor);
`

// NewDriver opens (or creates) the database at dbPath. Use ":memory:" for an
// in-memory database.
func NewDriver(dbPath string, logger *zap.Logger) (*Driver, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: opening database: %v", store.ErrConnection, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("sqlite memory store initialized", zap.String("db_path", dbPath))

	return &Driver{db: db, logger: logger}, nil
}

// PutAtoms inserts or replaces atoms by atom id.
func (d *Driver) PutAtoms(ctx context.Context, chatID string, atoms []model.Atom) error {
	if len(atoms) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, a := range atoms {
		payload, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("marshaling atom %s: %w", a.AtomID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO atoms (chat_id, atom_id, floor, payload) VALUES (?, ?, ?, ?)`,
			chatID, a.AtomID, a.Floor, string(payload),
		); err != nil {
			return fmt.Errorf("inserting atom %s: %w", a.AtomID, err)
		}
	}

	return tx.Commit()
}

// Atoms returns all atoms for the chat, floor ascending.
func (d *Driver) Atoms(ctx context.Context, chatID string) ([]model.Atom, error) {
	return d.queryAtoms(ctx,
		`SELECT payload FROM atoms WHERE chat_id = ? ORDER BY floor, atom_id`, chatID)
}

// AtomsInRange returns atoms with from <= floor <= to, floor ascending.
func (d *Driver) AtomsInRange(ctx context.Context, chatID string, from, to int) ([]model.Atom, error) {
	return d.queryAtoms(ctx,
		`SELECT payload FROM atoms WHERE chat_id = ? AND floor BETWEEN ? AND ? ORDER BY floor, atom_id`,
		chatID, from, to)
}

func (d *Driver) queryAtoms(ctx context.Context, query string, args ...any) ([]model.Atom, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying atoms: %w", err)
	}
	defer rows.Close()

	var atoms []model.Atom
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scanning atom: %w", err)
		}
		var a model.Atom
		if err := json.Unmarshal([]byte(payload), &a); err != nil {
			return nil, fmt.Errorf("unmarshaling atom: %w", err)
		}
		atoms = append(atoms, a)
	}
	return atoms, rows.Err()
}

// DeleteAtomsFrom removes atoms with floor >= floor.
func (d *Driver) DeleteAtomsFrom(ctx context.Context, chatID string, floor int) error {
	_, err := d.db.ExecContext(ctx,
		`DELETE FROM atoms WHERE chat_id = ? AND floor >= ?`, chatID, floor)
	if err != nil {
		return fmt.Errorf("deleting atoms: %w", err)
	}
	return nil
}

// DeleteAtomsAt removes atoms at exactly the given floor.
func (d *Driver) DeleteAtomsAt(ctx context.Context, chatID string, floor int) error {
	_, err := d.db.ExecContext(ctx,
		`DELETE FROM atoms WHERE chat_id = ? AND floor = ?`, chatID, floor)
	if err != nil {
		return fmt.Errorf("deleting atoms: %w", err)
	}
	return nil
}

// PutChunks inserts or replaces chunks by chunk id.
func (d *Driver) PutChunks(ctx context.Context, chatID string, chunks []model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, c := range chunks {
		payload, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("marshaling chunk %s: %w", c.ChunkID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO chunks (chat_id, chunk_id, floor, chunk_idx, payload) VALUES (?, ?, ?, ?, ?)`,
			chatID, c.ChunkID, c.Floor, c.ChunkIdx, string(payload),
		); err != nil {
			return fmt.Errorf("inserting chunk %s: %w", c.ChunkID, err)
		}
	}

	return tx.Commit()
}

// Chunks returns all chunks, floor then chunk index ascending.
func (d *Driver) Chunks(ctx context.Context, chatID string) ([]model.Chunk, error) {
	return d.queryChunks(ctx,
		`SELECT payload FROM chunks WHERE chat_id = ? ORDER BY floor, chunk_idx`, chatID)
}

// ChunksAt returns the chunks of one floor, chunk index ascending.
func (d *Driver) ChunksAt(ctx context.Context, chatID string, floor int) ([]model.Chunk, error) {
	return d.queryChunks(ctx,
		`SELECT payload FROM chunks WHERE chat_id = ? AND floor = ? ORDER BY chunk_idx`,
		chatID, floor)
}

func (d *Driver) queryChunks(ctx context.Context, query string, args ...any) ([]model.Chunk, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var chunks []model.Chunk
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		var c model.Chunk
		if err := json.Unmarshal([]byte(payload), &c); err != nil {
			return nil, fmt.Errorf("unmarshaling chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// DeleteChunksFrom removes chunks with floor >= floor.
func (d *Driver) DeleteChunksFrom(ctx context.Context, chatID string, floor int) error {
	_, err := d.db.ExecContext(ctx,
		`DELETE FROM chunks WHERE chat_id = ? AND floor >= ?`, chatID, floor)
	if err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}
	return nil
}

// DeleteChunksAt removes chunks at exactly the given floor.
func (d *Driver) DeleteChunksAt(ctx context.Context, chatID string, floor int) error {
	_, err := d.db.ExecContext(ctx,
		`DELETE FROM chunks WHERE chat_id = ? AND floor = ?`, chatID, floor)
	if err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}
	return nil
}

// SummaryState returns the merged summary state.
func (d *Driver) SummaryState(ctx context.Context, chatID string) (model.SummaryState, error) {
	var payload string
	err := d.db.QueryRowContext(ctx,
		`SELECT payload FROM summary_state WHERE chat_id = ?`, chatID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return model.SummaryState{}, nil
	}
	if err != nil {
		return model.SummaryState{}, fmt.Errorf("querying summary state: %w", err)
	}

	var state model.SummaryState
	if err := json.Unmarshal([]byte(payload), &state); err != nil {
		return model.SummaryState{}, fmt.Errorf("unmarshaling summary state: %w", err)
	}
	return state, nil
}

// PutSummaryState replaces the summary state wholesale.
func (d *Driver) PutSummaryState(ctx context.Context, chatID string, state model.SummaryState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshaling summary state: %w", err)
	}
	_, err = d.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO summary_state (chat_id, payload) VALUES (?, ?)`,
		chatID, string(payload))
	if err != nil {
		return fmt.Errorf("writing summary state: %w", err)
	}
	return nil
}

// Facts returns the current fact list.
func (d *Driver) Facts(ctx context.Context, chatID string) ([]model.Fact, error) {
	var payload string
	err := d.db.QueryRowContext(ctx,
		`SELECT payload FROM facts WHERE chat_id = ?`, chatID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying facts: %w", err)
	}

	var facts []model.Fact
	if err := json.Unmarshal([]byte(payload), &facts); err != nil {
		return nil, fmt.Errorf("unmarshaling facts: %w", err)
	}
	return facts, nil
}

// PutFacts replaces the fact list wholesale.
func (d *Driver) PutFacts(ctx context.Context, chatID string, facts []model.Fact) error {
	if facts == nil {
		facts = []model.Fact{}
	}
	payload, err := json.Marshal(facts)
	if err != nil {
		return fmt.Errorf("marshaling facts: %w", err)
	}
	_, err = d.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO facts (chat_id, payload) VALUES (?, ?)`,
		chatID, string(payload))
	if err != nil {
		return fmt.Errorf("writing facts: %w", err)
	}
	return nil
}

// Meta returns the per-chat metadata.
func (d *Driver) Meta(ctx context.Context, chatID string) (model.ChatMeta, error) {
	var meta model.ChatMeta
	err := d.db.QueryRowContext(ctx,
		`SELECT last_summarized_floor, vector_fingerprint FROM chat_meta WHERE chat_id = ?`,
		chatID).Scan(&meta.LastSummarizedFloor, &meta.VectorFingerprint)
	if errors.Is(err, sql.ErrNoRows) {
		return store.EmptyMeta(), nil
	}
	if err != nil {
		return model.ChatMeta{}, fmt.Errorf("querying meta: %w", err)
	}
	return meta, nil
}

// PutMeta replaces the per-chat metadata.
func (d *Driver) PutMeta(ctx context.Context, chatID string, meta model.ChatMeta) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO chat_meta (chat_id, last_summarized_floor, vector_fingerprint) VALUES (?, ?, ?)`,
		chatID, meta.LastSummarizedFloor, meta.VectorFingerprint)
	if err != nil {
		return fmt.Errorf("writing meta: %w", err)
	}
	return nil
}

// Checkpoints returns the summarization history, oldest first.
func (d *Driver) Checkpoints(ctx context.Context, chatID string) ([]model.Checkpoint, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT end_floor, created_at FROM checkpoints WHERE chat_id = ? ORDER BY end_floor`,
		chatID)
	if err != nil {
		return nil, fmt.Errorf("querying checkpoints: %w", err)
	}
	defer rows.Close()

	var cps []model.Checkpoint
	for rows.Next() {
		var cp model.Checkpoint
		if err := rows.Scan(&cp.EndFloor, &cp.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning checkpoint: %w", err)
		}
		cps = append(cps, cp)
	}
	return cps, rows.Err()
}

// AppendCheckpoint records a completed summarization run.
func (d *Driver) AppendCheckpoint(ctx context.Context, chatID string, cp model.Checkpoint) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO checkpoints (chat_id, end_floor, created_at) VALUES (?, ?, ?)`,
		chatID, cp.EndFloor, cp.CreatedAt)
	if err != nil {
		return fmt.Errorf("appending checkpoint: %w", err)
	}
	return nil
}

// TruncateCheckpoints drops checkpoints with EndFloor > maxEndFloor.
func (d *Driver) TruncateCheckpoints(ctx context.Context, chatID string, maxEndFloor int) error {
	_, err := d.db.ExecContext(ctx,
		`DELETE FROM checkpoints WHERE chat_id = ? AND end_floor > ?`, chatID, maxEndFloor)
	if err != nil {
		return fmt.Errorf("truncating checkpoints: %w", err)
	}
	return nil
}

// Reset drops all memory state for the chat.
func (d *Driver) Reset(ctx context.Context, chatID string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"atoms", "chunks", "summary_state", "facts", "chat_meta", "checkpoints"} {
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE chat_id = ?`, table), chatID); err != nil {
			return fmt.Errorf("resetting %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing reset: %w", err)
	}

	d.logger.Debug("chat memory reset", zap.String("chat_id", chatID))
	return nil
}

// Close releases the database handle.
func (d *Driver) Close() error {
	return d.db.Close()
}

var _ store.Driver = (*Driver)(nil)
