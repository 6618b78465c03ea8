// Package guard provides named mutual-exclusion guards for the engine's
// long-running task classes. A second acquisition of a running class is
// rejected rather than queued.
package guard

import (
	"errors"
	"sync"
)

// ErrBusy is returned when a task class is already running.
var ErrBusy = errors.New("task already running")

// Class names one guarded task class.
type Class string

const (
	ClassSummary          Class = "summary"
	ClassVectorGeneration Class = "vector-generation"
	ClassAnchorExtraction Class = "anchor-extraction"
)

// Table tracks which task classes are currently running.
type Table struct {
	mu      sync.Mutex
	running map[Class]bool
}

// NewTable creates an empty guard table.
func NewTable() *Table {
	return &Table{running: make(map[Class]bool)}
}

// TryAcquire marks the class as running and returns a release func. It
// returns ErrBusy when the class is already held; it never blocks.
func (t *Table) TryAcquire(class Class) (func(), error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running[class] {
		return nil, ErrBusy
	}
	t.running[class] = true

	var once sync.Once
	release := func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			delete(t.running, class)
		})
	}
	return release, nil
}

// Running reports whether the class is currently held.
func (t *Table) Running(class Class) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running[class]
}
