package model

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// MaxFactsPerSubject caps non-state facts per subject. When a merge pushes a
// subject over the cap, the oldest facts by AddedAt are pruned first. State
// facts (IsState) never count against the cap and are never pruned.
const MaxFactsPerSubject = 10

// MergeFacts applies fact updates to an existing fact list and returns a new
// list. The inputs are never mutated.
//
// Updates are keyed by (subject, predicate): an update with an existing key
// overwrites that fact's value in place, a Retracted update deletes the key,
// and an unknown key appends a new fact. New and overwritten facts record
// AddedAt = floor; Since comes from the update when set, else the floor.
func MergeFacts(existing []Fact, updates []FactUpdate, floor int) []Fact {
	merged := make([]Fact, len(existing))
	copy(merged, existing)

	index := make(map[string]int, len(merged))
	for i, f := range merged {
		index[f.Key()] = i
	}

	nextID := nextFactID(merged)

	for _, u := range updates {
		key := u.S + "\x00" + u.P

		if u.Retracted {
			i, ok := index[key]
			if !ok {
				continue
			}
			merged = append(merged[:i], merged[i+1:]...)
			delete(index, key)
			for k, j := range index {
				if j > i {
					index[k] = j - 1
				}
			}
			continue
		}

		since := u.Since
		if since <= 0 {
			since = floor
		}

		if i, ok := index[key]; ok {
			merged[i].O = u.O
			merged[i].Since = since
			merged[i].AddedAt = floor
			merged[i].IsState = u.IsState
			merged[i].Trend = u.Trend
			continue
		}

		merged = append(merged, Fact{
			ID:      fmt.Sprintf("f-%d", nextID),
			S:       u.S,
			P:       u.P,
			O:       u.O,
			Since:   since,
			AddedAt: floor,
			IsState: u.IsState,
			Trend:   u.Trend,
		})
		index[key] = len(merged) - 1
		nextID++
	}

	return pruneFacts(merged)
}

// pruneFacts enforces MaxFactsPerSubject over non-state facts, dropping the
// oldest by AddedAt first. Relative order of survivors is preserved.
func pruneFacts(facts []Fact) []Fact {
	perSubject := make(map[string][]int)
	for i, f := range facts {
		if f.IsState {
			continue
		}
		perSubject[f.S] = append(perSubject[f.S], i)
	}

	drop := make(map[int]bool)
	for _, idxs := range perSubject {
		if len(idxs) <= MaxFactsPerSubject {
			continue
		}
		// Oldest AddedAt first; earlier position breaks ties.
		sorted := make([]int, len(idxs))
		copy(sorted, idxs)
		sort.SliceStable(sorted, func(a, b int) bool {
			return facts[sorted[a]].AddedAt < facts[sorted[b]].AddedAt
		})
		for _, i := range sorted[:len(idxs)-MaxFactsPerSubject] {
			drop[i] = true
		}
	}

	if len(drop) == 0 {
		return facts
	}

	kept := make([]Fact, 0, len(facts)-len(drop))
	for i, f := range facts {
		if !drop[i] {
			kept = append(kept, f)
		}
	}
	return kept
}

func nextFactID(facts []Fact) int {
	next := 1
	for _, f := range facts {
		n, ok := parseNumericID(f.ID, "f-")
		if ok && n >= next {
			next = n + 1
		}
	}
	return next
}

// NextEventID returns the id number the next summarized event should use,
// one past the highest existing "evt-N".
func NextEventID(events []Event) int {
	next := 1
	for _, e := range events {
		n, ok := parseNumericID(e.ID, "evt-")
		if ok && n >= next {
			next = n + 1
		}
	}
	return next
}

func parseNumericID(id, prefix string) (int, bool) {
	rest, ok := strings.CutPrefix(id, prefix)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// MergeEventDelta folds a sanitized summarizer delta into the summary state
// and returns a new state. The inputs are never mutated.
//
// Events append, new character names dedup by exact string, arcs merge by
// name (create or update: replace trajectory and progress, append the
// moment), and a non-nil keyword list replaces the old one wholesale.
func MergeEventDelta(old SummaryState, delta Delta, endFloor int) SummaryState {
	merged := SummaryState{
		Events:     make([]Event, 0, len(old.Events)+len(delta.Events)),
		Characters: make([]string, len(old.Characters)),
		Arcs:       make([]Arc, len(old.Arcs)),
		Keywords:   old.Keywords,
	}
	merged.Events = append(merged.Events, old.Events...)
	merged.Events = append(merged.Events, delta.Events...)
	copy(merged.Characters, old.Characters)
	for i, a := range old.Arcs {
		merged.Arcs[i] = a
		merged.Arcs[i].Moments = append([]ArcMoment(nil), a.Moments...)
	}

	known := make(map[string]bool, len(merged.Characters))
	for _, name := range merged.Characters {
		known[name] = true
	}
	for _, name := range delta.NewCharacters {
		if name == "" || known[name] {
			continue
		}
		merged.Characters = append(merged.Characters, name)
		known[name] = true
	}

	for _, u := range delta.ArcUpdates {
		if u.Name == "" {
			continue
		}
		i := findArc(merged.Arcs, u.Name)
		if i < 0 {
			merged.Arcs = append(merged.Arcs, Arc{Name: u.Name})
			i = len(merged.Arcs) - 1
		}
		if u.Trajectory != "" {
			merged.Arcs[i].Trajectory = u.Trajectory
			merged.Arcs[i].Progress = clampProgress(u.Progress)
		} else if u.Progress > 0 {
			merged.Arcs[i].Progress = clampProgress(u.Progress)
		}
		if u.Moment != "" {
			merged.Arcs[i].Moments = append(merged.Arcs[i].Moments, ArcMoment{
				Text:    u.Moment,
				AddedAt: endFloor,
			})
		}
	}

	if delta.Keywords != nil {
		merged.Keywords = append([]string(nil), delta.Keywords...)
	}

	return merged
}

func findArc(arcs []Arc, name string) int {
	for i, a := range arcs {
		if a.Name == name {
			return i
		}
	}
	return -1
}

func clampProgress(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
