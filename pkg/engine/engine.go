// Package engine wires the memory tiers together behind one façade: ingestion,
// summarization, recall, assembly, consistency and vector lifecycle, with
// named task guards serializing the long-running classes.
package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/reveriehq/reverie/pkg/assemble"
	"github.com/reveriehq/reverie/pkg/consistency"
	"github.com/reveriehq/reverie/pkg/embeddings"
	"github.com/reveriehq/reverie/pkg/eventstream"
	"github.com/reveriehq/reverie/pkg/eventstream/nop"
	"github.com/reveriehq/reverie/pkg/guard"
	"github.com/reveriehq/reverie/pkg/llm"
	"github.com/reveriehq/reverie/pkg/recall"
	"github.com/reveriehq/reverie/pkg/store"
	"github.com/reveriehq/reverie/pkg/summarizer"
	"github.com/reveriehq/reverie/pkg/vector"
	"github.com/reveriehq/reverie/pkg/worker"
)

// ErrFingerprintMismatch is returned by VerifyVectors when the stored
// vectors were produced by a different embedder than the active one.
var ErrFingerprintMismatch = errors.New("vector fingerprint mismatch")

// Mode selects the engine variant at construction time.
type Mode string

const (
	// ModeVector runs with a vector driver and embedder; recall ranks by
	// similarity.
	ModeVector Mode = "vector"

	// ModeText runs without vectors; recall always takes the degraded path.
	ModeText Mode = "text"
)

// Config holds the collaborators and tuning for a MemoryEngine.
type Config struct {
	// Store is the memory store. Required.
	Store store.Driver

	// Vectors and Embedder enable vector mode. Both nil selects text mode.
	Vectors  vector.Driver
	Embedder embeddings.Embedder

	// Call is the LLM collaborator for summarization and anchor extraction.
	Call llm.CallFunc

	// Publisher receives lifecycle events. Defaults to the nop publisher.
	Publisher eventstream.Publisher

	// Guards is the task guard table, shareable when the host embeds
	// several surfaces over one engine. Defaults to a fresh table.
	Guards *guard.Table

	Summarizer summarizer.Config
	Recall     recall.Config
	Budget     assemble.Budget
	Worker     worker.Config

	// Logger is the provided zap logger
	Logger *zap.Logger
}

// MemoryEngine is the façade over the memory tiers of any number of chats.
type MemoryEngine struct {
	mode        Mode
	guards      *guard.Table
	store       store.Driver
	vectors     vector.Driver
	embedder    embeddings.Embedder
	call        llm.CallFunc
	summarizer  *summarizer.Summarizer
	recall      *recall.Engine
	consistency *consistency.Manager
	pool        *worker.Pool
	publisher   eventstream.Publisher
	budget      assemble.Budget
	logger      *zap.Logger
}

// New creates a MemoryEngine. Vector mode requires both a vector driver and
// an embedder; providing only one is a configuration error.
func New(cfg Config) (*MemoryEngine, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("engine requires a store driver")
	}
	if (cfg.Vectors == nil) != (cfg.Embedder == nil) {
		return nil, fmt.Errorf("vector mode requires both a vector driver and an embedder")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Publisher == nil {
		cfg.Publisher = nop.NewPublisher()
	}
	if cfg.Budget == (assemble.Budget{}) {
		cfg.Budget = assemble.DefaultBudget()
	}
	if cfg.Guards == nil {
		cfg.Guards = guard.NewTable()
	}

	mode := ModeText
	var pool *worker.Pool
	if cfg.Vectors != nil {
		mode = ModeVector

		wc := cfg.Worker
		wc.VectorDriver = cfg.Vectors
		wc.Embedder = cfg.Embedder
		wc.Logger = cfg.Logger
		p, err := worker.NewPool(&wc)
		if err != nil {
			return nil, fmt.Errorf("starting vectorization pool: %w", err)
		}
		pool = p
	}

	return &MemoryEngine{
		mode:        mode,
		guards:      cfg.Guards,
		store:       cfg.Store,
		vectors:     cfg.Vectors,
		embedder:    cfg.Embedder,
		call:        cfg.Call,
		summarizer:  summarizer.New(cfg.Store, cfg.Call, cfg.Summarizer, cfg.Logger),
		recall:      recall.New(cfg.Store, cfg.Vectors, cfg.Embedder, cfg.Recall, cfg.Logger),
		consistency: consistency.New(cfg.Store, cfg.Vectors, cfg.Logger),
		pool:        pool,
		publisher:   cfg.Publisher,
		budget:      cfg.Budget,
		logger:      cfg.Logger,
	}, nil
}

// Mode reports the construction-time engine variant.
func (e *MemoryEngine) Mode() Mode {
	return e.mode
}

// Summarize runs one summarization slice toward targetFloor. The summary
// guard rejects a second concurrent run.
func (e *MemoryEngine) Summarize(ctx context.Context, chatID string, targetFloor int) (summarizer.Result, error) {
	release, err := e.guards.TryAcquire(guard.ClassSummary)
	if err != nil {
		return summarizer.Result{}, fmt.Errorf("summarization: %w", err)
	}
	defer release()

	result, err := e.summarizer.Run(ctx, chatID, targetFloor)
	if err != nil {
		return summarizer.Result{}, err
	}
	if result.NoOp {
		return result, nil
	}

	if e.pool != nil && len(result.Events) > 0 {
		e.pool.Enqueue(worker.Job{ChatID: chatID, Events: result.Events})
	}

	e.publish(ctx, eventstream.NewSummaryCommitted(chatID, eventstream.SummaryMeta{
		StartFloor:  result.StartFloor,
		EndFloor:    result.EndFloor,
		NewEvents:   len(result.Events),
		FactUpdates: len(result.FactUpdates),
	}))

	return result, nil
}

// Recall ranks stored memory against the query.
func (e *MemoryEngine) Recall(ctx context.Context, chatID, query string, focus recall.Focus) (recall.Result, error) {
	return e.recall.Recall(ctx, chatID, query, focus)
}

// BuildMemory recalls against the query and assembles the token-budgeted
// memory block for the host's next prompt.
func (e *MemoryEngine) BuildMemory(ctx context.Context, chatID, query string, focus recall.Focus) (assemble.Output, error) {
	recalled, err := e.recall.Recall(ctx, chatID, query, focus)
	if err != nil {
		return assemble.Output{}, err
	}

	state, err := e.store.SummaryState(ctx, chatID)
	if err != nil {
		return assemble.Output{}, fmt.Errorf("loading summary state: %w", err)
	}
	facts, err := e.store.Facts(ctx, chatID)
	if err != nil {
		return assemble.Output{}, fmt.Errorf("loading facts: %w", err)
	}

	return assemble.Assemble(assemble.Input{
		Recall:          recalled,
		Facts:           facts,
		Arcs:            state.Arcs,
		Focus:           focus,
		KnownCharacters: state.Characters,
	}, e.budget), nil
}

// OnMessage applies one host mutation event and publishes a rollback
// lifecycle event when the mutation forced one.
func (e *MemoryEngine) OnMessage(ctx context.Context, chatID string, kind consistency.MessageKind, floor int) error {
	meta, err := e.store.Meta(ctx, chatID)
	if err != nil {
		return fmt.Errorf("loading chat meta: %w", err)
	}
	rollsBack := kind == consistency.KindDeleted ||
		(kind == consistency.KindEdited && floor <= meta.LastSummarizedFloor)

	if err := e.consistency.OnMessage(ctx, chatID, kind, floor); err != nil {
		return err
	}

	if rollsBack {
		after, err := e.store.Meta(ctx, chatID)
		if err != nil {
			return fmt.Errorf("loading chat meta: %w", err)
		}
		e.publish(ctx, eventstream.NewMemoryRolledBack(chatID, eventstream.RollbackMeta{
			Floor:         floor,
			BoundaryFloor: after.LastSummarizedFloor,
		}))
	}

	return nil
}

// VerifyVectors reports whether the chat's stored vectors match the active
// embedder. An empty fingerprint (no vectors yet) verifies clean.
func (e *MemoryEngine) VerifyVectors(ctx context.Context, chatID string) error {
	if e.mode != ModeVector {
		return nil
	}
	fp, err := e.vectors.Fingerprint(ctx, chatID)
	if err != nil {
		return fmt.Errorf("reading vector fingerprint: %w", err)
	}
	if fp == "" || fp == e.embedder.Fingerprint() {
		return nil
	}
	return fmt.Errorf("%w: stored %q, active %q", ErrFingerprintMismatch, fp, e.embedder.Fingerprint())
}

// RebuildVectors drops and re-embeds every vector of the chat. It holds the
// vector-generation guard for the whole rebuild; ingestion refuses to sync
// floors while it runs.
func (e *MemoryEngine) RebuildVectors(ctx context.Context, chatID string) error {
	if e.mode != ModeVector {
		return fmt.Errorf("vector rebuild requires vector mode")
	}

	release, err := e.guards.TryAcquire(guard.ClassVectorGeneration)
	if err != nil {
		return fmt.Errorf("vector rebuild: %w", err)
	}
	defer release()

	if err := e.vectors.DropChat(ctx, chatID); err != nil {
		return fmt.Errorf("dropping stale vectors: %w", err)
	}

	atoms, err := e.store.Atoms(ctx, chatID)
	if err != nil {
		return fmt.Errorf("loading atoms: %w", err)
	}
	chunks, err := e.store.Chunks(ctx, chatID)
	if err != nil {
		return fmt.Errorf("loading chunks: %w", err)
	}
	state, err := e.store.SummaryState(ctx, chatID)
	if err != nil {
		return fmt.Errorf("loading summary state: %w", err)
	}

	if err := e.pool.ProcessJob(ctx, worker.Job{
		ChatID: chatID,
		Atoms:  atoms,
		Chunks: chunks,
		Events: state.Events,
	}); err != nil {
		return fmt.Errorf("re-embedding chat: %w", err)
	}

	docs := 0
	for _, set := range vector.Sets {
		n, err := e.vectors.Count(ctx, chatID, set)
		if err != nil {
			return fmt.Errorf("counting %s vectors: %w", set, err)
		}
		docs += n
	}

	e.publish(ctx, eventstream.NewVectorsRebuilt(chatID, eventstream.RebuildMeta{
		Fingerprint: e.embedder.Fingerprint(),
		Documents:   docs,
	}))

	e.logger.Info("vector rebuild completed",
		zap.String("chat_id", chatID),
		zap.Int("documents", docs),
	)

	return nil
}

// publish forwards one lifecycle event; failures are logged, never fatal.
func (e *MemoryEngine) publish(ctx context.Context, event *eventstream.MemoryEvent) {
	if err := e.publisher.Publish(ctx, event); err != nil {
		e.logger.Warn("publishing lifecycle event failed",
			zap.String("event_type", event.EventType),
			zap.Error(err),
		)
	}
}

// Close releases the engine's owned resources: the worker pool, the
// publisher, the vector driver, the embedder and the store.
func (e *MemoryEngine) Close() error {
	if e.pool != nil {
		e.pool.Close()
	}

	var errs []error
	if err := e.publisher.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing publisher: %w", err))
	}
	if e.embedder != nil {
		if err := e.embedder.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing embedder: %w", err))
		}
	}
	if e.vectors != nil {
		if err := e.vectors.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing vector driver: %w", err))
		}
	}
	if err := e.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing store: %w", err))
	}
	return errors.Join(errs...)
}
