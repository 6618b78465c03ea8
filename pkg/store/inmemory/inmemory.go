// Package inmemory provides an in-process implementation of store.Driver.
// All structures are copied on the way in and out, so callers can never
// observe a partially merged state. Used for tests and ephemeral chats.
package inmemory

import (
	"context"
	"sort"
	"sync"

	"github.com/reveriehq/reverie/pkg/model"
	"github.com/reveriehq/reverie/pkg/store"
)

type chatState struct {
	atoms       []model.Atom
	chunks      []model.Chunk
	summary     model.SummaryState
	facts       []model.Fact
	meta        model.ChatMeta
	checkpoints []model.Checkpoint
}

// Driver implements store.Driver with mutex-guarded in-process maps.
type Driver struct {
	mu    sync.RWMutex
	chats map[string]*chatState
}

// NewDriver creates an empty in-memory store.
func NewDriver() *Driver {
	return &Driver{chats: make(map[string]*chatState)}
}

func (d *Driver) chat(chatID string) *chatState {
	c, ok := d.chats[chatID]
	if !ok {
		c = &chatState{meta: store.EmptyMeta()}
		d.chats[chatID] = c
	}
	return c
}

// PutAtoms inserts or replaces atoms by atom id, keeping floor order.
func (d *Driver) PutAtoms(_ context.Context, chatID string, atoms []model.Atom) error {
	if len(atoms) == 0 {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	c := d.chat(chatID)

	byID := make(map[string]int, len(c.atoms))
	for i, a := range c.atoms {
		byID[a.AtomID] = i
	}
	for _, a := range atoms {
		a.Edges = append([]model.Edge(nil), a.Edges...)
		if i, ok := byID[a.AtomID]; ok {
			c.atoms[i] = a
			continue
		}
		byID[a.AtomID] = len(c.atoms)
		c.atoms = append(c.atoms, a)
	}
	sort.SliceStable(c.atoms, func(i, j int) bool { return c.atoms[i].Floor < c.atoms[j].Floor })

	return nil
}

// Atoms returns all atoms for the chat, floor ascending.
func (d *Driver) Atoms(_ context.Context, chatID string) ([]model.Atom, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	c, ok := d.chats[chatID]
	if !ok {
		return nil, nil
	}
	return copyAtoms(c.atoms), nil
}

// AtomsInRange returns atoms with from <= floor <= to, floor ascending.
func (d *Driver) AtomsInRange(_ context.Context, chatID string, from, to int) ([]model.Atom, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	c, ok := d.chats[chatID]
	if !ok {
		return nil, nil
	}

	var out []model.Atom
	for _, a := range c.atoms {
		if a.Floor >= from && a.Floor <= to {
			out = append(out, copyAtom(a))
		}
	}
	return out, nil
}

// DeleteAtomsFrom removes atoms with floor >= floor.
func (d *Driver) DeleteAtomsFrom(_ context.Context, chatID string, floor int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	c, ok := d.chats[chatID]
	if !ok {
		return nil
	}
	c.atoms = filterAtoms(c.atoms, func(a model.Atom) bool { return a.Floor < floor })
	return nil
}

// DeleteAtomsAt removes atoms at exactly the given floor.
func (d *Driver) DeleteAtomsAt(_ context.Context, chatID string, floor int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	c, ok := d.chats[chatID]
	if !ok {
		return nil
	}
	c.atoms = filterAtoms(c.atoms, func(a model.Atom) bool { return a.Floor != floor })
	return nil
}

// PutChunks inserts or replaces chunks by chunk id, keeping floor/idx order.
func (d *Driver) PutChunks(_ context.Context, chatID string, chunks []model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	c := d.chat(chatID)

	byID := make(map[string]int, len(c.chunks))
	for i, ch := range c.chunks {
		byID[ch.ChunkID] = i
	}
	for _, ch := range chunks {
		if i, ok := byID[ch.ChunkID]; ok {
			c.chunks[i] = ch
			continue
		}
		byID[ch.ChunkID] = len(c.chunks)
		c.chunks = append(c.chunks, ch)
	}
	sort.SliceStable(c.chunks, func(i, j int) bool {
		if c.chunks[i].Floor != c.chunks[j].Floor {
			return c.chunks[i].Floor < c.chunks[j].Floor
		}
		return c.chunks[i].ChunkIdx < c.chunks[j].ChunkIdx
	})

	return nil
}

// Chunks returns all chunks, floor then chunk index ascending.
func (d *Driver) Chunks(_ context.Context, chatID string) ([]model.Chunk, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	c, ok := d.chats[chatID]
	if !ok {
		return nil, nil
	}
	out := make([]model.Chunk, len(c.chunks))
	copy(out, c.chunks)
	return out, nil
}

// ChunksAt returns the chunks of one floor, chunk index ascending.
func (d *Driver) ChunksAt(_ context.Context, chatID string, floor int) ([]model.Chunk, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	c, ok := d.chats[chatID]
	if !ok {
		return nil, nil
	}
	var out []model.Chunk
	for _, ch := range c.chunks {
		if ch.Floor == floor {
			out = append(out, ch)
		}
	}
	return out, nil
}

// DeleteChunksFrom removes chunks with floor >= floor.
func (d *Driver) DeleteChunksFrom(_ context.Context, chatID string, floor int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	c, ok := d.chats[chatID]
	if !ok {
		return nil
	}
	c.chunks = filterChunks(c.chunks, func(ch model.Chunk) bool { return ch.Floor < floor })
	return nil
}

// DeleteChunksAt removes chunks at exactly the given floor.
func (d *Driver) DeleteChunksAt(_ context.Context, chatID string, floor int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	c, ok := d.chats[chatID]
	if !ok {
		return nil
	}
	c.chunks = filterChunks(c.chunks, func(ch model.Chunk) bool { return ch.Floor != floor })
	return nil
}

// SummaryState returns a copy of the merged summary state.
func (d *Driver) SummaryState(_ context.Context, chatID string) (model.SummaryState, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	c, ok := d.chats[chatID]
	if !ok {
		return model.SummaryState{}, nil
	}
	return copySummary(c.summary), nil
}

// PutSummaryState replaces the summary state wholesale.
func (d *Driver) PutSummaryState(_ context.Context, chatID string, state model.SummaryState) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.chat(chatID).summary = copySummary(state)
	return nil
}

// Facts returns a copy of the current fact list.
func (d *Driver) Facts(_ context.Context, chatID string) ([]model.Fact, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	c, ok := d.chats[chatID]
	if !ok {
		return nil, nil
	}
	out := make([]model.Fact, len(c.facts))
	copy(out, c.facts)
	return out, nil
}

// PutFacts replaces the fact list wholesale.
func (d *Driver) PutFacts(_ context.Context, chatID string, facts []model.Fact) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	next := make([]model.Fact, len(facts))
	copy(next, facts)
	d.chat(chatID).facts = next
	return nil
}

// Meta returns the per-chat metadata.
func (d *Driver) Meta(_ context.Context, chatID string) (model.ChatMeta, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	c, ok := d.chats[chatID]
	if !ok {
		return store.EmptyMeta(), nil
	}
	return c.meta, nil
}

// PutMeta replaces the per-chat metadata.
func (d *Driver) PutMeta(_ context.Context, chatID string, meta model.ChatMeta) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.chat(chatID).meta = meta
	return nil
}

// Checkpoints returns the summarization history, oldest first.
func (d *Driver) Checkpoints(_ context.Context, chatID string) ([]model.Checkpoint, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	c, ok := d.chats[chatID]
	if !ok {
		return nil, nil
	}
	out := make([]model.Checkpoint, len(c.checkpoints))
	copy(out, c.checkpoints)
	return out, nil
}

// AppendCheckpoint records a completed summarization run.
func (d *Driver) AppendCheckpoint(_ context.Context, chatID string, cp model.Checkpoint) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	c := d.chat(chatID)
	c.checkpoints = append(c.checkpoints, cp)
	return nil
}

// TruncateCheckpoints drops checkpoints with EndFloor > maxEndFloor.
func (d *Driver) TruncateCheckpoints(_ context.Context, chatID string, maxEndFloor int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	c, ok := d.chats[chatID]
	if !ok {
		return nil
	}
	kept := c.checkpoints[:0]
	for _, cp := range c.checkpoints {
		if cp.EndFloor <= maxEndFloor {
			kept = append(kept, cp)
		}
	}
	c.checkpoints = kept
	return nil
}

// Reset drops all memory state for the chat.
func (d *Driver) Reset(_ context.Context, chatID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.chats, chatID)
	return nil
}

// Close is a no-op for the in-memory driver.
func (d *Driver) Close() error {
	return nil
}

func copyAtom(a model.Atom) model.Atom {
	a.Edges = append([]model.Edge(nil), a.Edges...)
	return a
}

func copyAtoms(atoms []model.Atom) []model.Atom {
	out := make([]model.Atom, len(atoms))
	for i, a := range atoms {
		out[i] = copyAtom(a)
	}
	return out
}

func copySummary(s model.SummaryState) model.SummaryState {
	out := model.SummaryState{
		Events:     append([]model.Event(nil), s.Events...),
		Characters: append([]string(nil), s.Characters...),
		Arcs:       make([]model.Arc, len(s.Arcs)),
		Keywords:   append([]string(nil), s.Keywords...),
	}
	for i, e := range s.Events {
		out.Events[i].CausedBy = append([]string(nil), e.CausedBy...)
		out.Events[i].Participants = append([]string(nil), e.Participants...)
	}
	for i, a := range s.Arcs {
		out.Arcs[i] = a
		out.Arcs[i].Moments = append([]model.ArcMoment(nil), a.Moments...)
	}
	return out
}

func filterAtoms(atoms []model.Atom, keep func(model.Atom) bool) []model.Atom {
	kept := atoms[:0]
	for _, a := range atoms {
		if keep(a) {
			kept = append(kept, a)
		}
	}
	return kept
}

func filterChunks(chunks []model.Chunk, keep func(model.Chunk) bool) []model.Chunk {
	kept := chunks[:0]
	for _, ch := range chunks {
		if keep(ch) {
			kept = append(kept, ch)
		}
	}
	return kept
}

var _ store.Driver = (*Driver)(nil)
