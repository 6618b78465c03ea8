// Package store defines the persistence interface for the tiered memory
// model. Drivers hold Atoms, Chunks, the merged summary state (Events, Arcs,
// characters, keywords), Facts, per-chat metadata, and the append-only
// checkpoint history, all keyed by chat identity.
//
// Writes of merged structures (summary state, facts) replace the whole
// structure: callers compute the new value with the pure merge functions in
// pkg/model and swap it in. Concurrent readers may observe the prior
// snapshot, never a partially merged one.
package store

import (
	"context"

	"github.com/reveriehq/reverie/pkg/model"
)

// Driver persists the memory tiers for any number of chats. Implementations
// must be safe for concurrent use; the engine serializes writers per chat.
type Driver interface {
	// PutAtoms inserts or replaces atoms by atom id.
	PutAtoms(ctx context.Context, chatID string, atoms []model.Atom) error

	// Atoms returns all atoms for the chat, floor ascending.
	Atoms(ctx context.Context, chatID string) ([]model.Atom, error)

	// AtomsInRange returns atoms with from <= floor <= to, floor ascending.
	AtomsInRange(ctx context.Context, chatID string, from, to int) ([]model.Atom, error)

	// DeleteAtomsFrom removes atoms with floor >= floor.
	DeleteAtomsFrom(ctx context.Context, chatID string, floor int) error

	// DeleteAtomsAt removes atoms at exactly the given floor.
	DeleteAtomsAt(ctx context.Context, chatID string, floor int) error

	// PutChunks inserts or replaces chunks by chunk id.
	PutChunks(ctx context.Context, chatID string, chunks []model.Chunk) error

	// Chunks returns all chunks for the chat, floor then chunk index ascending.
	Chunks(ctx context.Context, chatID string) ([]model.Chunk, error)

	// ChunksAt returns the chunks of one floor, chunk index ascending.
	ChunksAt(ctx context.Context, chatID string, floor int) ([]model.Chunk, error)

	// DeleteChunksFrom removes chunks with floor >= floor.
	DeleteChunksFrom(ctx context.Context, chatID string, floor int) error

	// DeleteChunksAt removes chunks at exactly the given floor.
	DeleteChunksAt(ctx context.Context, chatID string, floor int) error

	// SummaryState returns the merged summary state, or a zero state when
	// the chat has never been summarized.
	SummaryState(ctx context.Context, chatID string) (model.SummaryState, error)

	// PutSummaryState replaces the summary state wholesale.
	PutSummaryState(ctx context.Context, chatID string, state model.SummaryState) error

	// Facts returns the current fact list.
	Facts(ctx context.Context, chatID string) ([]model.Fact, error)

	// PutFacts replaces the fact list wholesale.
	PutFacts(ctx context.Context, chatID string, facts []model.Fact) error

	// Meta returns the per-chat metadata, zero-valued for unknown chats
	// (LastSummarizedFloor is -1 in the zero state).
	Meta(ctx context.Context, chatID string) (model.ChatMeta, error)

	// PutMeta replaces the per-chat metadata.
	PutMeta(ctx context.Context, chatID string, meta model.ChatMeta) error

	// Checkpoints returns the summarization history, oldest first.
	Checkpoints(ctx context.Context, chatID string) ([]model.Checkpoint, error)

	// AppendCheckpoint records a completed summarization run.
	AppendCheckpoint(ctx context.Context, chatID string, cp model.Checkpoint) error

	// TruncateCheckpoints drops checkpoints with EndFloor > maxEndFloor.
	TruncateCheckpoints(ctx context.Context, chatID string, maxEndFloor int) error

	// Reset drops all memory state for the chat.
	Reset(ctx context.Context, chatID string) error

	// Close releases driver resources.
	Close() error
}

// EmptyMeta is the metadata of a chat that has never been summarized.
func EmptyMeta() model.ChatMeta {
	return model.ChatMeta{LastSummarizedFloor: -1}
}
