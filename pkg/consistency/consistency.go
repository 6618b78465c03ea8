// Package consistency reconciles the memory store when the host chat
// mutates: deletions and below-boundary edits roll back to the latest
// usable checkpoint, swipes drop just the touched floor's derived data.
package consistency

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/reveriehq/reverie/pkg/model"
	"github.com/reveriehq/reverie/pkg/store"
	"github.com/reveriehq/reverie/pkg/vector"
)

// MessageKind is a host-reported transcript mutation.
type MessageKind string

const (
	KindSent        MessageKind = "message-sent"
	KindReceived    MessageKind = "message-received"
	KindDeleted     MessageKind = "message-deleted"
	KindSwiped      MessageKind = "message-swiped"
	KindEdited      MessageKind = "message-edited"
	KindChatChanged MessageKind = "chat-changed"
)

// Manager applies host mutation events to the store and vector state.
type Manager struct {
	store   store.Driver
	vectors vector.Driver
	logger  *zap.Logger
}

// New creates a Manager. The vectors driver may be nil when the engine runs
// without vector recall.
func New(s store.Driver, v vector.Driver, logger *zap.Logger) *Manager {
	return &Manager{store: s, vectors: v, logger: logger}
}

// OnMessage dispatches one host mutation event. Sent and received messages
// are ingestion concerns and are no-ops here; chat-changed carries no
// stored state to reconcile.
func (m *Manager) OnMessage(ctx context.Context, chatID string, kind MessageKind, floor int) error {
	switch kind {
	case KindDeleted:
		return m.Rollback(ctx, chatID, floor)

	case KindSwiped:
		return m.dropFloor(ctx, chatID, floor)

	case KindEdited:
		meta, err := m.store.Meta(ctx, chatID)
		if err != nil {
			return fmt.Errorf("loading chat meta: %w", err)
		}
		if floor <= meta.LastSummarizedFloor {
			// Below-boundary edits are not incrementally patchable.
			return m.Rollback(ctx, chatID, floor)
		}
		return m.dropFloor(ctx, chatID, floor)

	case KindSent, KindReceived, KindChatChanged:
		return nil

	default:
		return fmt.Errorf("unknown message kind %q", kind)
	}
}

// Rollback restores the store to the latest checkpoint with endFloor <
// floor, or to the empty state when no such checkpoint exists. It is
// idempotent: re-applying the same floor yields the same store state.
func (m *Manager) Rollback(ctx context.Context, chatID string, floor int) error {
	checkpoints, err := m.store.Checkpoints(ctx, chatID)
	if err != nil {
		return fmt.Errorf("loading checkpoints: %w", err)
	}

	boundary := -1
	for _, cp := range checkpoints {
		if cp.EndFloor < floor && cp.EndFloor > boundary {
			boundary = cp.EndFloor
		}
	}

	if boundary < 0 {
		m.logger.Warn("no rollback target, resetting memory state",
			zap.String("chat_id", chatID),
			zap.Int("floor", floor),
		)
		if err := m.store.Reset(ctx, chatID); err != nil {
			return fmt.Errorf("resetting store: %w", err)
		}
		if m.vectors != nil {
			if err := m.vectors.DropChat(ctx, chatID); err != nil {
				return fmt.Errorf("dropping vectors: %w", err)
			}
		}
		return nil
	}

	state, err := m.store.SummaryState(ctx, chatID)
	if err != nil {
		return fmt.Errorf("loading summary state: %w", err)
	}

	var keptEvents []model.Event
	var droppedEventIDs []string
	for _, evt := range state.Events {
		if r, ok := model.ParseFloorRange(evt.Summary); ok && r.End <= boundary {
			keptEvents = append(keptEvents, evt)
			continue
		}
		droppedEventIDs = append(droppedEventIDs, evt.ID)
	}
	state.Events = keptEvents

	var keptArcs []model.Arc
	for _, arc := range state.Arcs {
		var moments []model.ArcMoment
		for _, moment := range arc.Moments {
			if moment.AddedAt <= boundary {
				moments = append(moments, moment)
			}
		}
		if len(moments) == 0 && len(arc.Moments) > 0 {
			continue
		}
		arc.Moments = moments
		keptArcs = append(keptArcs, arc)
	}
	state.Arcs = keptArcs

	facts, err := m.store.Facts(ctx, chatID)
	if err != nil {
		return fmt.Errorf("loading facts: %w", err)
	}
	var keptFacts []model.Fact
	for _, fact := range facts {
		if fact.AddedAt <= boundary {
			keptFacts = append(keptFacts, fact)
		}
	}

	if err := m.store.PutSummaryState(ctx, chatID, state); err != nil {
		return fmt.Errorf("storing rolled-back summary state: %w", err)
	}
	if err := m.store.PutFacts(ctx, chatID, keptFacts); err != nil {
		return fmt.Errorf("storing rolled-back facts: %w", err)
	}

	if err := m.store.DeleteAtomsFrom(ctx, chatID, boundary+1); err != nil {
		return fmt.Errorf("deleting atoms: %w", err)
	}
	if err := m.store.DeleteChunksFrom(ctx, chatID, floor); err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}

	if m.vectors != nil {
		for _, set := range []vector.Set{vector.SetAtomSemantic, vector.SetAtomRelation} {
			if err := m.vectors.DeleteFloorsFrom(ctx, chatID, set, boundary+1); err != nil {
				return fmt.Errorf("deleting %s vectors: %w", set, err)
			}
		}
		if err := m.vectors.DeleteFloorsFrom(ctx, chatID, vector.SetChunk, floor); err != nil {
			return fmt.Errorf("deleting chunk vectors: %w", err)
		}
		if len(droppedEventIDs) > 0 {
			if err := m.vectors.Delete(ctx, chatID, vector.SetEvent, droppedEventIDs); err != nil {
				return fmt.Errorf("deleting event vectors: %w", err)
			}
		}
	}

	if err := m.store.TruncateCheckpoints(ctx, chatID, boundary); err != nil {
		return fmt.Errorf("truncating checkpoints: %w", err)
	}

	meta, err := m.store.Meta(ctx, chatID)
	if err != nil {
		return fmt.Errorf("loading chat meta: %w", err)
	}
	meta.LastSummarizedFloor = boundary
	if err := m.store.PutMeta(ctx, chatID, meta); err != nil {
		return fmt.Errorf("storing chat meta: %w", err)
	}

	m.logger.Info("rolled memory back to checkpoint",
		zap.String("chat_id", chatID),
		zap.Int("floor", floor),
		zap.Int("boundary", boundary),
		zap.Int("dropped_events", len(droppedEventIDs)),
	)

	return nil
}

// dropFloor removes one floor's derived data (atoms, chunks and their
// vectors); re-extraction is deferred to the next ingestion pass.
func (m *Manager) dropFloor(ctx context.Context, chatID string, floor int) error {
	if err := m.store.DeleteAtomsAt(ctx, chatID, floor); err != nil {
		return fmt.Errorf("deleting atoms at floor %d: %w", floor, err)
	}
	if err := m.store.DeleteChunksAt(ctx, chatID, floor); err != nil {
		return fmt.Errorf("deleting chunks at floor %d: %w", floor, err)
	}

	if m.vectors != nil {
		for _, set := range []vector.Set{vector.SetAtomSemantic, vector.SetAtomRelation, vector.SetChunk} {
			if err := m.vectors.DeleteFloorAt(ctx, chatID, set, floor); err != nil {
				return fmt.Errorf("deleting %s vectors at floor %d: %w", set, floor, err)
			}
		}
	}

	m.logger.Debug("dropped floor derivations",
		zap.String("chat_id", chatID),
		zap.Int("floor", floor),
	)

	return nil
}
