// Package vector provides interfaces and implementations for vector storage.
package vector

import "context"

// Set names one of the fixed vector sets the engine maintains per chat.
type Set string

const (
	// SetAtomSemantic holds one embedding per atom's scene digest.
	SetAtomSemantic Set = "atom_semantic"

	// SetAtomRelation holds the relation-aggregate embedding per atom
	// (concatenated edge labels, capped length).
	SetAtomRelation Set = "atom_relation"

	// SetChunk holds one embedding per raw-text chunk.
	SetChunk Set = "chunk"

	// SetEvent holds one embedding per event (title + summary).
	SetEvent Set = "event"
)

// Sets lists every vector set in a stable order.
var Sets = []Set{SetAtomSemantic, SetAtomRelation, SetChunk, SetEvent}

// Document represents a stored item with its embedding.
type Document struct {
	// ID is the unique identifier within its set (atom id, chunk id or
	// event id).
	ID string

	// Floor is the transcript floor the document belongs to. Event
	// documents carry the end floor of their range. Used for cascading
	// deletes under rollback.
	Floor int

	// Embedding is the vector representation of the document content.
	Embedding []float32
}

// QueryResult represents a search result with similarity score.
type QueryResult struct {
	Document

	// Score is the similarity score (higher = more similar).
	Score float32
}

// Driver handles storage and retrieval of vector embeddings, partitioned by
// chat and vector set. All vectors of one chat share a single embedding
// fingerprint; a mismatch with the active embedder invalidates the whole
// vector state for that chat.
type Driver interface {
	// Add stores documents with their embeddings into a set. Documents with
	// existing IDs are updated. A batch is committed atomically.
	Add(ctx context.Context, chatID string, set Set, docs []Document) error

	// Query finds the topK most similar documents to the embedding.
	Query(ctx context.Context, chatID string, set Set, embedding []float32, topK int) ([]QueryResult, error)

	// All returns every document of a set with its embedding, ID ascending.
	All(ctx context.Context, chatID string, set Set) ([]Document, error)

	// Count returns the number of documents in a set.
	Count(ctx context.Context, chatID string, set Set) (int, error)

	// Delete removes documents by their IDs.
	Delete(ctx context.Context, chatID string, set Set, ids []string) error

	// DeleteFloorsFrom removes documents with floor >= floor from a set.
	DeleteFloorsFrom(ctx context.Context, chatID string, set Set, floor int) error

	// DeleteFloorAt removes documents at exactly the given floor from a set.
	DeleteFloorAt(ctx context.Context, chatID string, set Set, floor int) error

	// Fingerprint returns the embedding fingerprint recorded for the chat,
	// or "" when no vectors exist yet.
	Fingerprint(ctx context.Context, chatID string) (string, error)

	// SetFingerprint records the embedding fingerprint for the chat.
	SetFingerprint(ctx context.Context, chatID string, fingerprint string) error

	// DropChat removes all vector state for the chat, fingerprint included.
	DropChat(ctx context.Context, chatID string) error

	// Close releases any resources held by the driver.
	Close() error
}
