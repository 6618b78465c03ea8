package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/reveriehq/reverie/pkg/guard"
)

// Status is a point-in-time snapshot of one chat's memory state.
type Status struct {
	ChatID        string               `json:"chat_id"`
	Mode          Mode                 `json:"mode"`
	BoundaryFloor int                  `json:"boundary_floor"`
	Atoms         int                  `json:"atoms"`
	Chunks        int                  `json:"chunks"`
	Events        int                  `json:"events"`
	Facts         int                  `json:"facts"`
	Checkpoints   int                  `json:"checkpoints"`
	Fingerprint   string               `json:"fingerprint,omitempty"`
	VectorsStale  bool                 `json:"vectors_stale"`
	Guards        map[guard.Class]bool `json:"guards"`
}

// Status reports tier counts, the summarization boundary, the vector
// fingerprint state and which task guards are held.
func (e *MemoryEngine) Status(ctx context.Context, chatID string) (Status, error) {
	meta, err := e.store.Meta(ctx, chatID)
	if err != nil {
		return Status{}, fmt.Errorf("loading chat meta: %w", err)
	}
	atoms, err := e.store.Atoms(ctx, chatID)
	if err != nil {
		return Status{}, fmt.Errorf("loading atoms: %w", err)
	}
	chunks, err := e.store.Chunks(ctx, chatID)
	if err != nil {
		return Status{}, fmt.Errorf("loading chunks: %w", err)
	}
	state, err := e.store.SummaryState(ctx, chatID)
	if err != nil {
		return Status{}, fmt.Errorf("loading summary state: %w", err)
	}
	facts, err := e.store.Facts(ctx, chatID)
	if err != nil {
		return Status{}, fmt.Errorf("loading facts: %w", err)
	}
	checkpoints, err := e.store.Checkpoints(ctx, chatID)
	if err != nil {
		return Status{}, fmt.Errorf("loading checkpoints: %w", err)
	}

	status := Status{
		ChatID:        chatID,
		Mode:          e.mode,
		BoundaryFloor: meta.LastSummarizedFloor,
		Atoms:         len(atoms),
		Chunks:        len(chunks),
		Events:        len(state.Events),
		Facts:         len(facts),
		Checkpoints:   len(checkpoints),
		Guards: map[guard.Class]bool{
			guard.ClassSummary:          e.guards.Running(guard.ClassSummary),
			guard.ClassVectorGeneration: e.guards.Running(guard.ClassVectorGeneration),
			guard.ClassAnchorExtraction: e.guards.Running(guard.ClassAnchorExtraction),
		},
	}

	if e.mode == ModeVector {
		fp, err := e.vectors.Fingerprint(ctx, chatID)
		if err != nil {
			return Status{}, fmt.Errorf("reading vector fingerprint: %w", err)
		}
		status.Fingerprint = fp
		status.VectorsStale = errors.Is(e.VerifyVectors(ctx, chatID), ErrFingerprintMismatch)
	}

	return status, nil
}
