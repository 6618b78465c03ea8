// Package worker provides an asynchronous worker pool that embeds newly
// ingested atoms, chunks and events and commits their vectors.
//
// The pool decouples embedding calls from the ingestion hot path. Batches
// are committed atomically per batch: cancellation mid-job leaves a shorter
// committed prefix, never a partially written batch.
package worker

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/reveriehq/reverie/pkg/embeddings"
	"github.com/reveriehq/reverie/pkg/model"
	"github.com/reveriehq/reverie/pkg/vector"
)

var (
	defaultNumWorkers   uint = 2
	defaultJobQueueSize uint = 256
)

const (
	// DefaultBatchSize bounds how many texts one embedding call carries.
	DefaultBatchSize = 20

	// DefaultRetryBackoff is the fixed pause before retrying a failed
	// batch. Not exponential.
	DefaultRetryBackoff = 60 * time.Second

	batchAttempts = 3

	// maxRelationTextLen caps the relation-aggregate embedding text.
	maxRelationTextLen = 512
)

// Job is a unit of vectorization work: the new memory items of one chat.
type Job struct {
	ChatID string
	Atoms  []model.Atom
	Chunks []model.Chunk
	Events []model.Event
}

// Config is the configuration options for the worker pool.
type Config struct {
	// VectorDriver receives the committed vectors.
	VectorDriver vector.Driver

	// Embedder generates the embeddings.
	Embedder embeddings.Embedder

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// BatchSize bounds one embedding call. Defaults to DefaultBatchSize.
	BatchSize int

	// RetryBackoff is the fixed pause between batch attempts. Defaults to
	// DefaultRetryBackoff; overridable for tests.
	RetryBackoff time.Duration

	// Logger is the provided zap logger
	Logger *zap.Logger
}

// Pool processes vectorization jobs asynchronously via a worker pool.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}

	if c.RetryBackoff <= 0 {
		c.RetryBackoff = DefaultRetryBackoff
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	ctx, cancel := context.WithCancel(context.Background())
	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		ctx:    ctx,
		cancel: cancel,
		logger: c.Logger,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full, resulting in the job being dropped
func (p *Pool) Enqueue(job Job) bool {
	select {
	case p.queue <- job:
		p.logger.Debug("vectorization job queued",
			zap.String("chat_id", job.ChatID),
			zap.Int("atoms", len(job.Atoms)),
			zap.Int("chunks", len(job.Chunks)),
			zap.Int("events", len(job.Events)),
		)
		return true
	default:
		p.logger.Error("vectorization job dropped, queue full",
			zap.String("chat_id", job.ChatID),
		)
		return false
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain.
func (p *Pool) Close() {
	close(p.queue)
	p.wg.Wait()
	p.cancel()
}

// Cancel aborts in-flight embedding calls. Batches already committed stay
// committed; the rest of the job is abandoned.
func (p *Pool) Cancel() {
	p.cancel()
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("vectorization worker started", zap.Uint("worker_id", id))

	for job := range p.queue {
		if err := p.ProcessJob(p.ctx, job); err != nil {
			p.logger.Error("vectorization job failed",
				zap.String("chat_id", job.ChatID),
				zap.Error(err),
			)
		}
	}

	p.logger.Debug("vectorization worker stopped", zap.Uint("worker_id", id))
}

// item is one pending embedding with its destination set.
type item struct {
	set   vector.Set
	id    string
	floor int
	text  string
}

// ProcessJob embeds and commits one job synchronously. Exposed so callers
// that need committed-before-return semantics (full rebuilds) can bypass
// the queue.
func (p *Pool) ProcessJob(ctx context.Context, job Job) error {
	items := collectItems(job)
	if len(items) == 0 {
		return nil
	}

	for start := 0; start < len(items); start += p.config.BatchSize {
		end := start + p.config.BatchSize
		if end > len(items) {
			end = len(items)
		}
		if err := p.processBatch(ctx, job.ChatID, items[start:end]); err != nil {
			return fmt.Errorf("batch at %d: %w", start, err)
		}
	}

	if err := p.config.VectorDriver.SetFingerprint(ctx, job.ChatID, p.config.Embedder.Fingerprint()); err != nil {
		return fmt.Errorf("recording fingerprint: %w", err)
	}

	p.logger.Info("vectorization job committed",
		zap.String("chat_id", job.ChatID),
		zap.Int("items", len(items)),
	)

	return nil
}

// processBatch embeds one batch and commits it atomically, retrying with a
// fixed backoff.
func (p *Pool) processBatch(ctx context.Context, chatID string, batch []item) error {
	texts := make([]string, len(batch))
	for i, it := range batch {
		texts[i] = it.text
	}

	var lastErr error
	for attempt := 1; attempt <= batchAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.config.RetryBackoff):
			}
		}

		embs, err := p.config.Embedder.Embed(ctx, texts)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			p.logger.Warn("embedding batch failed",
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			continue
		}
		if len(embs) != len(batch) {
			lastErr = fmt.Errorf("got %d embeddings for %d texts", len(embs), len(batch))
			continue
		}

		// Group by set so each Add call is one atomic commit.
		docsBySet := make(map[vector.Set][]vector.Document)
		for i, it := range batch {
			docsBySet[it.set] = append(docsBySet[it.set], vector.Document{
				ID:        it.id,
				Floor:     it.floor,
				Embedding: embs[i],
			})
		}
		for set, docs := range docsBySet {
			if err := p.config.VectorDriver.Add(ctx, chatID, set, docs); err != nil {
				return fmt.Errorf("committing %s vectors: %w", set, err)
			}
		}
		return nil
	}

	return lastErr
}

// collectItems flattens a job into embedding items.
func collectItems(job Job) []item {
	var items []item

	for _, atom := range job.Atoms {
		if atom.Semantic != "" {
			items = append(items, item{
				set:   vector.SetAtomSemantic,
				id:    atom.AtomID,
				floor: atom.Floor,
				text:  atom.Semantic,
			})
		}
		if rel := RelationAggregate(atom.Edges); rel != "" {
			items = append(items, item{
				set:   vector.SetAtomRelation,
				id:    atom.AtomID,
				floor: atom.Floor,
				text:  rel,
			})
		}
	}

	for _, chunk := range job.Chunks {
		if chunk.Text == "" {
			continue
		}
		items = append(items, item{
			set:   vector.SetChunk,
			id:    chunk.ChunkID,
			floor: chunk.Floor,
			text:  chunk.Text,
		})
	}

	for _, evt := range job.Events {
		floor := 0
		if r, ok := model.ParseFloorRange(evt.Summary); ok {
			floor = r.End
		}
		items = append(items, item{
			set:   vector.SetEvent,
			id:    evt.ID,
			floor: floor,
			text:  evt.Title + " " + evt.Summary,
		})
	}

	return items
}

// RelationAggregate concatenates an atom's edge labels into one embedding
// text, capped in length.
func RelationAggregate(edges []model.Edge) string {
	if len(edges) == 0 {
		return ""
	}
	parts := make([]string, 0, len(edges))
	for _, edge := range edges {
		parts = append(parts, edge.S+" "+edge.R+" "+edge.T)
	}
	text := strings.Join(parts, "; ")
	runes := []rune(text)
	if len(runes) > maxRelationTextLen {
		text = string(runes[:maxRelationTextLen])
	}
	return text
}
