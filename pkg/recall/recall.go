// Package recall ranks memory against a query context: events by vector
// similarity split into direct and related classes, per-floor evidence
// groups with deduplicated chunk pairs, causal chains, and residual atom
// pools for evidence outside any selected event.
package recall

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/reveriehq/reverie/pkg/embeddings"
	"github.com/reveriehq/reverie/pkg/model"
	"github.com/reveriehq/reverie/pkg/store"
	"github.com/reveriehq/reverie/pkg/vector"
)

const (
	// DefaultDirectThreshold splits direct from related event candidates.
	DefaultDirectThreshold = 0.62

	defaultTopKEvents = 12
	defaultTopKAtoms  = 24
	defaultTopKChunks = 40

	// defaultKeepVisible excludes the newest floors from the recent pool;
	// the host still has them verbatim in context.
	defaultKeepVisible = 2

	// defaultTopUnfiltered is how many residual atoms bypass the
	// focus-entity filter purely on similarity.
	defaultTopUnfiltered = 3
)

// Config holds configuration for the recall engine.
type Config struct {
	// DirectThreshold is the similarity score above which an event candidate
	// counts as a direct hit. Defaults to DefaultDirectThreshold if zero.
	DirectThreshold float64

	TopKEvents int
	TopKAtoms  int
	TopKChunks int

	// KeepVisible excludes the newest floors from the recent residual pool.
	KeepVisible int

	// TopUnfiltered is how many residual atoms are kept on similarity alone,
	// regardless of the focus-entity filter.
	TopUnfiltered int
}

func (c *Config) applyDefaults() {
	if c.DirectThreshold <= 0 {
		c.DirectThreshold = DefaultDirectThreshold
	}
	if c.TopKEvents <= 0 {
		c.TopKEvents = defaultTopKEvents
	}
	if c.TopKAtoms <= 0 {
		c.TopKAtoms = defaultTopKAtoms
	}
	if c.TopKChunks <= 0 {
		c.TopKChunks = defaultTopKChunks
	}
	if c.KeepVisible <= 0 {
		c.KeepVisible = defaultKeepVisible
	}
	if c.TopUnfiltered <= 0 {
		c.TopUnfiltered = defaultTopUnfiltered
	}
}

// Focus names the entities the upcoming turn revolves around. Residual
// evidence is filtered against it.
type Focus struct {
	Entities []string
}

func (f Focus) has(name string) bool {
	for _, e := range f.Entities {
		if e == name {
			return true
		}
	}
	return false
}

// EvidenceGroup bundles the atoms of one floor under a selected event with
// at most one chunk pair for that floor.
type EvidenceGroup struct {
	Floor     int
	Atoms     []model.Atom
	UserChunk *model.Chunk
	AIChunk   *model.Chunk
}

// RankedEvent is one selected event with its score and evidence.
type RankedEvent struct {
	Event    model.Event
	Score    float32
	Evidence []EvidenceGroup
}

// CausalEntry is one antecedent event surfaced by causal-chain expansion.
// Depth is the distance from the selected event (1 = direct cause).
type CausalEntry struct {
	Event model.Event
	Depth int
}

// ResidualAtom is an atom not consumed by any selected event, scored for
// the residual evidence pools.
type ResidualAtom struct {
	Atom  model.Atom
	Score float32
}

// Result is the ranked recall output consumed by the assembler. Direct and
// Related are in rank order; Distant and Recent are in selection order (the
// assembler re-sorts admitted items chronologically).
type Result struct {
	Direct  []RankedEvent
	Related []RankedEvent
	Causal  []CausalEntry
	Distant []ResidualAtom
	Recent  []ResidualAtom

	// Degraded is true when the chat's vectors are missing or carry a stale
	// fingerprint; recall then proceeds without similarity ranking.
	Degraded bool
}

// Engine ranks stored memory against queries.
type Engine struct {
	store    store.Driver
	vectors  vector.Driver
	embedder embeddings.Embedder
	cfg      Config
	logger   *zap.Logger
}

// New creates a recall Engine. A nil vectors driver or embedder puts every
// recall on the degraded path.
func New(s store.Driver, v vector.Driver, e embeddings.Embedder, cfg Config, logger *zap.Logger) *Engine {
	cfg.applyDefaults()
	return &Engine{
		store:    s,
		vectors:  v,
		embedder: e,
		cfg:      cfg,
		logger:   logger,
	}
}

// Recall ranks the chat's memory against the query.
func (e *Engine) Recall(ctx context.Context, chatID, query string, focus Focus) (Result, error) {
	meta, err := e.store.Meta(ctx, chatID)
	if err != nil {
		return Result{}, fmt.Errorf("loading chat meta: %w", err)
	}

	state, err := e.store.SummaryState(ctx, chatID)
	if err != nil {
		return Result{}, fmt.Errorf("loading summary state: %w", err)
	}

	atoms, err := e.store.Atoms(ctx, chatID)
	if err != nil {
		return Result{}, fmt.Errorf("loading atoms: %w", err)
	}

	if !e.vectorsUsable(ctx, chatID) {
		return e.degradedRecall(meta, atoms, focus), nil
	}

	embs, err := e.embedder.Embed(ctx, []string{query})
	if err != nil || len(embs) != 1 {
		e.logger.Warn("query embedding failed, degrading recall", zap.Error(err))
		return e.degradedRecall(meta, atoms, focus), nil
	}
	queryVec := embs[0]

	eventScores, err := e.scores(ctx, chatID, vector.SetEvent, queryVec, e.cfg.TopKEvents)
	if err != nil {
		return Result{}, err
	}
	chunkScores, err := e.scores(ctx, chatID, vector.SetChunk, queryVec, e.cfg.TopKChunks)
	if err != nil {
		return Result{}, err
	}
	atomScores, err := e.scores(ctx, chatID, vector.SetAtomSemantic, queryVec, e.cfg.TopKAtoms)
	if err != nil {
		return Result{}, err
	}
	relScores, err := e.scores(ctx, chatID, vector.SetAtomRelation, queryVec, e.cfg.TopKAtoms)
	if err != nil {
		return Result{}, err
	}
	// An atom's score is the better of its semantic and relation-aggregate
	// similarity.
	for id, s := range relScores {
		if s > atomScores[id] {
			atomScores[id] = s
		}
	}

	eventsByID := make(map[string]model.Event, len(state.Events))
	for _, evt := range state.Events {
		eventsByID[evt.ID] = evt
	}

	direct, related := e.rankEvents(state.Events, eventScores)

	consumed := make(map[string]bool)
	attachEvidence(direct, atoms, e.chunkLookup(ctx, chatID), chunkScores, consumed)
	attachEvidence(related, atoms, e.chunkLookup(ctx, chatID), chunkScores, consumed)

	causal := expandCausal(append(append([]RankedEvent{}, direct...), related...), eventsByID)

	distant, recent := e.residualPools(atoms, atomScores, consumed, meta.LastSummarizedFloor, focus)

	e.logger.Debug("recall completed",
		zap.String("chat_id", chatID),
		zap.Int("direct", len(direct)),
		zap.Int("related", len(related)),
		zap.Int("causal", len(causal)),
		zap.Int("distant", len(distant)),
		zap.Int("recent", len(recent)),
	)

	return Result{
		Direct:  direct,
		Related: related,
		Causal:  causal,
		Distant: distant,
		Recent:  recent,
	}, nil
}

// vectorsUsable reports whether the chat's vectors carry the active
// embedder's fingerprint.
func (e *Engine) vectorsUsable(ctx context.Context, chatID string) bool {
	if e.vectors == nil || e.embedder == nil {
		return false
	}
	fp, err := e.vectors.Fingerprint(ctx, chatID)
	if err != nil {
		e.logger.Warn("reading vector fingerprint failed", zap.Error(err))
		return false
	}
	if fp == "" {
		return false
	}
	if fp != e.embedder.Fingerprint() {
		e.logger.Warn("vector fingerprint mismatch, vectors are stale",
			zap.String("chat_id", chatID),
			zap.String("stored", fp),
			zap.String("active", e.embedder.Fingerprint()),
		)
		return false
	}
	return true
}

func (e *Engine) scores(ctx context.Context, chatID string, set vector.Set, queryVec []float32, topK int) (map[string]float32, error) {
	results, err := e.vectors.Query(ctx, chatID, set, queryVec, topK)
	if err != nil {
		return nil, fmt.Errorf("querying %s vectors: %w", set, err)
	}
	scores := make(map[string]float32, len(results))
	for _, r := range results {
		scores[r.ID] = r.Score
	}
	return scores, nil
}

// rankEvents splits scored events into direct and related classes, each
// sorted by score descending with stable order.
func (e *Engine) rankEvents(events []model.Event, scores map[string]float32) (direct, related []RankedEvent) {
	for _, evt := range events {
		score, ok := scores[evt.ID]
		if !ok {
			continue
		}
		ranked := RankedEvent{Event: evt, Score: score}
		if float64(score) >= e.cfg.DirectThreshold {
			direct = append(direct, ranked)
		} else {
			related = append(related, ranked)
		}
	}
	sort.SliceStable(direct, func(i, j int) bool { return direct[i].Score > direct[j].Score })
	sort.SliceStable(related, func(i, j int) bool { return related[i].Score > related[j].Score })
	return direct, related
}

// chunkLookup returns the chunks of one floor, tolerating store errors as
// an empty result (evidence chunks are an enrichment, not a requirement).
func (e *Engine) chunkLookup(ctx context.Context, chatID string) func(floor int) []model.Chunk {
	return func(floor int) []model.Chunk {
		chunks, err := e.store.ChunksAt(ctx, chatID, floor)
		if err != nil {
			e.logger.Warn("loading evidence chunks failed",
				zap.Int("floor", floor),
				zap.Error(err),
			)
			return nil
		}
		return chunks
	}
}

// attachEvidence gathers, for each ranked event in order, the unconsumed
// atoms inside its floor range grouped per floor, attaching at most one
// chunk pair per floor. Atoms consumed here are excluded from later events
// and from the residual pools.
func attachEvidence(events []RankedEvent, atoms []model.Atom, chunksAt func(int) []model.Chunk, chunkScores map[string]float32, consumed map[string]bool) {
	for i := range events {
		r, ok := model.ParseFloorRange(events[i].Event.Summary)
		if !ok {
			continue
		}

		groups := make(map[int]*EvidenceGroup)
		var floors []int
		for _, atom := range atoms {
			if consumed[atom.AtomID] || !r.Contains(atom.Floor) {
				continue
			}
			consumed[atom.AtomID] = true
			g, ok := groups[atom.Floor]
			if !ok {
				g = &EvidenceGroup{Floor: atom.Floor}
				groups[atom.Floor] = g
				floors = append(floors, atom.Floor)
			}
			g.Atoms = append(g.Atoms, atom)
		}

		sort.Ints(floors)
		for _, floor := range floors {
			g := groups[floor]
			g.UserChunk, g.AIChunk = bestChunkPair(chunksAt(floor), chunkScores)
			events[i].Evidence = append(events[i].Evidence, *g)
		}
	}
}

// bestChunkPair picks the highest-scoring user-side and AI-side chunk of a
// floor, falling back to chunk order on ties or missing scores.
func bestChunkPair(chunks []model.Chunk, scores map[string]float32) (user, ai *model.Chunk) {
	var userScore, aiScore float32 = -1, -1
	for i := range chunks {
		c := chunks[i]
		score := scores[c.ChunkID]
		if c.IsUser {
			if score > userScore {
				user, userScore = &chunks[i], score
			}
		} else {
			if score > aiScore {
				ai, aiScore = &chunks[i], score
			}
		}
	}
	return user, ai
}

// expandCausal walks causedBy links of the selected events, surfacing each
// antecedent once at its shallowest depth. Selected events themselves are
// not repeated as causal context.
func expandCausal(selected []RankedEvent, eventsByID map[string]model.Event) []CausalEntry {
	visited := make(map[string]bool, len(selected))
	for _, r := range selected {
		visited[r.Event.ID] = true
	}

	var entries []CausalEntry
	type frame struct {
		id    string
		depth int
	}

	for _, r := range selected {
		queue := make([]frame, 0, len(r.Event.CausedBy))
		for _, id := range r.Event.CausedBy {
			queue = append(queue, frame{id: id, depth: 1})
		}
		for len(queue) > 0 {
			f := queue[0]
			queue = queue[1:]
			if visited[f.id] {
				continue
			}
			visited[f.id] = true
			evt, ok := eventsByID[f.id]
			if !ok {
				continue
			}
			entries = append(entries, CausalEntry{Event: evt, Depth: f.depth})
			for _, id := range evt.CausedBy {
				queue = append(queue, frame{id: id, depth: f.depth + 1})
			}
		}
	}
	return entries
}

// residualPools splits unconsumed atoms into distant (at or below the
// summarization boundary) and recent (beyond it, excluding the newest
// KeepVisible floors) pools. Distant is in selection order score descending
// then floor ascending; recent is in selection order floor descending.
func (e *Engine) residualPools(atoms []model.Atom, scores map[string]float32, consumed map[string]bool, boundary int, focus Focus) (distant, recent []ResidualAtom) {
	maxFloor := -1
	for _, atom := range atoms {
		if atom.Floor > maxFloor {
			maxFloor = atom.Floor
		}
	}
	recentCutoff := maxFloor - e.cfg.KeepVisible

	var residual []ResidualAtom
	for _, atom := range atoms {
		if consumed[atom.AtomID] {
			continue
		}
		residual = append(residual, ResidualAtom{Atom: atom, Score: scores[atom.AtomID]})
	}

	// The top-similarity residual atoms bypass the focus filter.
	bySim := append([]ResidualAtom{}, residual...)
	sort.SliceStable(bySim, func(i, j int) bool { return bySim[i].Score > bySim[j].Score })
	unfiltered := make(map[string]bool)
	for i := 0; i < len(bySim) && i < e.cfg.TopUnfiltered; i++ {
		if bySim[i].Score > 0 {
			unfiltered[bySim[i].Atom.AtomID] = true
		}
	}

	for _, ra := range residual {
		if !unfiltered[ra.Atom.AtomID] && !atomMatchesFocus(ra.Atom, focus) {
			continue
		}
		if ra.Atom.Floor <= boundary {
			distant = append(distant, ra)
		} else if ra.Atom.Floor <= recentCutoff {
			recent = append(recent, ra)
		}
	}

	sort.SliceStable(distant, func(i, j int) bool {
		if distant[i].Score != distant[j].Score {
			return distant[i].Score > distant[j].Score
		}
		return distant[i].Atom.Floor < distant[j].Atom.Floor
	})
	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].Atom.Floor > recent[j].Atom.Floor
	})

	return distant, recent
}

// atomMatchesFocus reports whether the atom shares an entity with the focus
// set through its edges. An empty focus set keeps everything.
func atomMatchesFocus(atom model.Atom, focus Focus) bool {
	if len(focus.Entities) == 0 {
		return true
	}
	for _, edge := range atom.Edges {
		if focus.has(edge.S) || focus.has(edge.T) {
			return true
		}
	}
	return false
}

// degradedRecall builds a similarity-free result: no direct or related
// events, only the residual recent pool ordered by recency. The distant
// pool carries no signal without scores and stays empty.
func (e *Engine) degradedRecall(meta model.ChatMeta, atoms []model.Atom, focus Focus) Result {
	_, recent := e.residualPools(atoms, nil, make(map[string]bool), meta.LastSummarizedFloor, focus)
	return Result{
		Recent:   recent,
		Degraded: true,
	}
}
