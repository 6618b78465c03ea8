// Package summarizer turns unsummarized dialogue slices into structured
// deltas via an LLM call and merges them into the memory store.
package summarizer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/reveriehq/reverie/pkg/llm"
	"github.com/reveriehq/reverie/pkg/model"
	"github.com/reveriehq/reverie/pkg/store"
)

// ErrMalformedDelta is returned when the LLM reply cannot be decoded into a
// valid delta after all retries.
var ErrMalformedDelta = errors.New("malformed summarization delta")

const (
	// DefaultMaxFloorsPerRun bounds how many floors one summarization run
	// consumes.
	DefaultMaxFloorsPerRun = 30

	// deltaRetries is how many times one slice is retried after the first
	// attempt. Both transport failures and malformed replies count against it.
	deltaRetries = 3
)

// Config holds configuration for the summarizer.
type Config struct {
	// MaxFloorsPerRun caps the slice length of one run.
	// Defaults to DefaultMaxFloorsPerRun if zero.
	MaxFloorsPerRun int

	// RetryDelay is the pause between delta attempts. Defaults to 1 second;
	// overridable for tests.
	RetryDelay time.Duration
}

// Result reports one summarization run.
type Result struct {
	// NoOp is true when there was nothing to summarize.
	NoOp bool

	// StartFloor and EndFloor bound the consumed slice (inclusive).
	StartFloor int
	EndFloor   int

	// Events and FactUpdates are the sanitized delta that was merged.
	Events      []model.Event
	FactUpdates []model.FactUpdate
}

// Summarizer drives incremental summarization for chats in a store.
type Summarizer struct {
	store  store.Driver
	call   llm.CallFunc
	cfg    Config
	logger *zap.Logger
}

// New creates a Summarizer.
func New(s store.Driver, call llm.CallFunc, cfg Config, logger *zap.Logger) *Summarizer {
	if cfg.MaxFloorsPerRun <= 0 {
		cfg.MaxFloorsPerRun = DefaultMaxFloorsPerRun
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	return &Summarizer{
		store:  s,
		call:   call,
		cfg:    cfg,
		logger: logger,
	}
}

// Run summarizes the slice [lastSummarized+1, min(targetFloor,
// lastSummarized+MaxFloorsPerRun)] for the chat. An empty slice is a no-op
// success. On success the delta is merged into the store, a checkpoint is
// recorded and the summarization boundary advances to the slice end.
func (s *Summarizer) Run(ctx context.Context, chatID string, targetFloor int) (Result, error) {
	meta, err := s.store.Meta(ctx, chatID)
	if err != nil {
		return Result{}, fmt.Errorf("loading chat meta: %w", err)
	}

	startFloor := meta.LastSummarizedFloor + 1
	endFloor := targetFloor
	if max := meta.LastSummarizedFloor + s.cfg.MaxFloorsPerRun; endFloor > max {
		endFloor = max
	}

	if startFloor > endFloor {
		return Result{NoOp: true, StartFloor: startFloor, EndFloor: meta.LastSummarizedFloor}, nil
	}

	dialogue, err := s.dialogueSlice(ctx, chatID, startFloor, endFloor)
	if err != nil {
		return Result{}, err
	}
	if dialogue == "" {
		// No chunks in range yet; ingestion has not caught up.
		return Result{NoOp: true, StartFloor: startFloor, EndFloor: meta.LastSummarizedFloor}, nil
	}

	state, err := s.store.SummaryState(ctx, chatID)
	if err != nil {
		return Result{}, fmt.Errorf("loading summary state: %w", err)
	}

	facts, err := s.store.Facts(ctx, chatID)
	if err != nil {
		return Result{}, fmt.Errorf("loading facts: %w", err)
	}

	nextEventID := model.NextEventID(state.Events)
	prompt := buildPrompt(state, facts, dialogue, startFloor, endFloor, nextEventID)

	delta, err := s.generateDelta(ctx, prompt)
	if err != nil {
		return Result{}, err
	}

	existingIDs := make(map[string]bool, len(state.Events))
	for _, evt := range state.Events {
		existingIDs[evt.ID] = true
	}
	delta = model.SanitizeDelta(delta, existingIDs)

	merged := model.MergeEventDelta(state, delta, endFloor)
	mergedFacts := model.MergeFacts(facts, delta.FactUpdates, endFloor)

	if err := s.store.PutSummaryState(ctx, chatID, merged); err != nil {
		return Result{}, fmt.Errorf("storing summary state: %w", err)
	}
	if err := s.store.PutFacts(ctx, chatID, mergedFacts); err != nil {
		return Result{}, fmt.Errorf("storing facts: %w", err)
	}
	if err := s.store.AppendCheckpoint(ctx, chatID, model.Checkpoint{
		EndFloor:  endFloor,
		CreatedAt: time.Now().Unix(),
	}); err != nil {
		return Result{}, fmt.Errorf("recording checkpoint: %w", err)
	}

	meta.LastSummarizedFloor = endFloor
	if err := s.store.PutMeta(ctx, chatID, meta); err != nil {
		return Result{}, fmt.Errorf("advancing summarization boundary: %w", err)
	}

	s.logger.Info("summarization run committed",
		zap.String("chat_id", chatID),
		zap.Int("start_floor", startFloor),
		zap.Int("end_floor", endFloor),
		zap.Int("new_events", len(delta.Events)),
		zap.Int("fact_updates", len(delta.FactUpdates)),
	)

	return Result{
		StartFloor:  startFloor,
		EndFloor:    endFloor,
		Events:      delta.Events,
		FactUpdates: delta.FactUpdates,
	}, nil
}

// generateDelta calls the LLM and decodes the reply, retrying the whole
// slice on transport failure or malformed output.
func (s *Summarizer) generateDelta(ctx context.Context, prompt string) (model.Delta, error) {
	var lastErr error
	for attempt := 1; attempt <= 1+deltaRetries; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return model.Delta{}, ctx.Err()
			case <-time.After(s.cfg.RetryDelay):
			}
		}

		raw, err := s.call(ctx, prompt)
		if err != nil {
			lastErr = err
			s.logger.Warn("summarization call failed",
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			continue
		}

		delta, err := DecodeDelta(raw)
		if err != nil {
			lastErr = err
			s.logger.Warn("summarization delta rejected",
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			continue
		}

		return delta, nil
	}

	return model.Delta{}, fmt.Errorf("%w: %v", ErrMalformedDelta, lastErr)
}

// dialogueSlice concatenates the chunk texts of the floors in [start, end].
func (s *Summarizer) dialogueSlice(ctx context.Context, chatID string, start, end int) (string, error) {
	var b promptBuilder
	for floor := start; floor <= end; floor++ {
		chunks, err := s.store.ChunksAt(ctx, chatID, floor)
		if err != nil {
			return "", fmt.Errorf("loading chunks for floor %d: %w", floor, err)
		}
		for _, chunk := range chunks {
			b.dialogueLine(floor, chunk.Speaker, chunk.IsUser, chunk.Text)
		}
	}
	return b.String(), nil
}
