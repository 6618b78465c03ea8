package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/reveriehq/reverie/pkg/guard"
	"github.com/reveriehq/reverie/pkg/model"
	"github.com/reveriehq/reverie/pkg/vector"
	"github.com/reveriehq/reverie/pkg/worker"
)

// floorSets are the vector sets keyed by floor-local derivations.
func floorSets() []vector.Set {
	return []vector.Set{vector.SetAtomSemantic, vector.SetAtomRelation, vector.SetChunk}
}

// Message is one floor's worth of transcript handed to Ingest: the raw text
// plus the atoms extracted for the round, if any.
type Message struct {
	Floor   int
	Speaker string
	IsUser  bool
	Text    string
	Atoms   []model.Atom
}

// Ingest syncs one floor into the memory tiers: the text is packed into
// chunks, the floor's previous derivations are replaced wholesale, and the
// new items are queued for vectorization. Refused while a full vector
// rebuild holds the vector-generation guard.
func (e *MemoryEngine) Ingest(ctx context.Context, chatID string, msg Message) error {
	if e.guards.Running(guard.ClassVectorGeneration) {
		return fmt.Errorf("floor sync during vector rebuild: %w", guard.ErrBusy)
	}

	chunks := PackChunks(msg.Floor, msg.Speaker, msg.IsUser, msg.Text)

	if err := e.store.DeleteChunksAt(ctx, chatID, msg.Floor); err != nil {
		return fmt.Errorf("clearing floor %d chunks: %w", msg.Floor, err)
	}
	if len(chunks) > 0 {
		if err := e.store.PutChunks(ctx, chatID, chunks); err != nil {
			return fmt.Errorf("storing floor %d chunks: %w", msg.Floor, err)
		}
	}

	if len(msg.Atoms) > 0 {
		if err := e.store.DeleteAtomsAt(ctx, chatID, msg.Floor); err != nil {
			return fmt.Errorf("clearing floor %d atoms: %w", msg.Floor, err)
		}
		if err := e.store.PutAtoms(ctx, chatID, msg.Atoms); err != nil {
			return fmt.Errorf("storing floor %d atoms: %w", msg.Floor, err)
		}
	}

	if e.pool != nil {
		if e.vectors != nil {
			// The floor's stale vectors go first so a re-ingested floor
			// cannot keep orphaned chunk vectors.
			for _, set := range floorSets() {
				if err := e.vectors.DeleteFloorAt(ctx, chatID, set, msg.Floor); err != nil {
					return fmt.Errorf("clearing floor %d vectors: %w", msg.Floor, err)
				}
			}
		}
		e.pool.Enqueue(worker.Job{ChatID: chatID, Atoms: msg.Atoms, Chunks: chunks})
	}

	e.logger.Debug("floor ingested",
		zap.String("chat_id", chatID),
		zap.Int("floor", msg.Floor),
		zap.Int("chunks", len(chunks)),
		zap.Int("atoms", len(msg.Atoms)),
	)

	return nil
}
