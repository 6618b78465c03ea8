package eventstream

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeSummaryCommitted is emitted after a summarization run merges
	// its delta and advances the boundary floor.
	EventTypeSummaryCommitted = "reverie.summary.committed"

	// EventTypeMemoryRolledBack is emitted after a rollback restores the
	// store to an earlier checkpoint.
	EventTypeMemoryRolledBack = "reverie.memory.rolledback"

	// EventTypeVectorsRebuilt is emitted after a full vector rebuild.
	EventTypeVectorsRebuilt = "reverie.vectors.rebuilt"
)

// MemoryEvent is a transport-neutral event payload for a memory lifecycle
// transition. Exactly one of Summary, Rollback and Rebuild is set, matching
// EventType.
type MemoryEvent struct {
	SchemaVersion int           `json:"schema_version"`
	EventType     string        `json:"event_type"`
	EventID       string        `json:"event_id"`
	EmittedAt     time.Time     `json:"emitted_at"`
	ChatID        string        `json:"chat_id"`
	Summary       *SummaryMeta  `json:"summary,omitempty"`
	Rollback      *RollbackMeta `json:"rollback,omitempty"`
	Rebuild       *RebuildMeta  `json:"rebuild,omitempty"`
}

// SummaryMeta captures what a committed summarization run produced.
type SummaryMeta struct {
	StartFloor  int `json:"start_floor"`
	EndFloor    int `json:"end_floor"`
	NewEvents   int `json:"new_events"`
	FactUpdates int `json:"fact_updates"`
}

// RollbackMeta captures where a rollback landed.
type RollbackMeta struct {
	Floor         int `json:"floor"`
	BoundaryFloor int `json:"boundary_floor"`
}

// RebuildMeta captures the outcome of a full vector rebuild.
type RebuildMeta struct {
	Fingerprint string `json:"fingerprint"`
	Documents   int    `json:"documents"`
}

func newEvent(eventType, chatID string) *MemoryEvent {
	return &MemoryEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     eventType,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		ChatID:        chatID,
	}
}

// NewSummaryCommitted builds a summary-committed event.
func NewSummaryCommitted(chatID string, meta SummaryMeta) *MemoryEvent {
	event := newEvent(EventTypeSummaryCommitted, chatID)
	event.Summary = &meta
	return event
}

// NewMemoryRolledBack builds a rollback event.
func NewMemoryRolledBack(chatID string, meta RollbackMeta) *MemoryEvent {
	event := newEvent(EventTypeMemoryRolledBack, chatID)
	event.Rollback = &meta
	return event
}

// NewVectorsRebuilt builds a vectors-rebuilt event.
func NewVectorsRebuilt(chatID string, meta RebuildMeta) *MemoryEvent {
	event := newEvent(EventTypeVectorsRebuilt, chatID)
	event.Rebuild = &meta
	return event
}
