// Package model defines the four-tier conversational memory data model and
// the pure merge functions over it.
//
// The tiers, smallest to largest:
//
//   - Atom (L0): one scene digest plus entity-relation edges, per floor.
//   - Chunk (L1): a token-bounded slice of one message's raw text.
//   - Event (L2): a narratively significant incident spanning a floor range,
//     with causal links to earlier events.
//   - Fact (L3): a subject-predicate-object triple with key-value overwrite
//     semantics on (subject, predicate).
//
// A "floor" is the index of a single message in the chat transcript. All
// merge functions in this package are pure: they never mutate their inputs
// and always return freshly allocated structures, so callers can swap whole
// states atomically and snapshot for undo.
package model
