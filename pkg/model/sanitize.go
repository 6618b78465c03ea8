package model

import (
	"regexp"
	"strings"
)

const (
	// RelationPredicatePrefix marks relationship facts ("toward-X").
	RelationPredicatePrefix = "toward-"

	// MaxCausedBy caps how many causal antecedents one event may carry.
	MaxCausedBy = 2
)

var eventIDPattern = regexp.MustCompile(`^evt-\d+$`)

// IsRelationPredicate reports whether the predicate names a relationship
// toward another entity.
func IsRelationPredicate(p string) bool {
	return strings.HasPrefix(p, RelationPredicatePrefix) &&
		len(p) > len(RelationPredicatePrefix)
}

// RelationTarget returns the entity a relationship predicate points at,
// or "" when the predicate is not a relation.
func RelationTarget(p string) string {
	if !IsRelationPredicate(p) {
		return ""
	}
	return p[len(RelationPredicatePrefix):]
}

// SanitizeDelta validates and repairs a decoded summarizer delta in a new
// copy, dropping entries the merge layer must never see:
//
//   - fact updates with an empty subject or predicate;
//   - relation predicates that do not fit the "toward-X" pattern, and trends
//     outside the fixed scale (the trend is cleared, the fact survives);
//   - events whose id does not match "evt-N";
//   - causedBy entries that are malformed, self-referencing, or resolve to
//     neither a pre-existing event nor an event of the same batch.
//
// CausedBy lists are deduplicated and capped at MaxCausedBy. Acyclicity
// beyond the self-reference check is deliberately not enforced.
func SanitizeDelta(delta Delta, existingEventIDs map[string]bool) Delta {
	out := Delta{
		Events:        make([]Event, 0, len(delta.Events)),
		FactUpdates:   make([]FactUpdate, 0, len(delta.FactUpdates)),
		ArcUpdates:    make([]ArcUpdate, 0, len(delta.ArcUpdates)),
		NewCharacters: make([]string, 0, len(delta.NewCharacters)),
		Keywords:      delta.Keywords,
	}

	batch := make(map[string]bool, len(delta.Events))

	for _, e := range delta.Events {
		if !eventIDPattern.MatchString(e.ID) || batch[e.ID] || existingEventIDs[e.ID] {
			continue
		}
		if e.Title == "" && e.Summary == "" {
			continue
		}
		if !EventTypes[e.Type] {
			e.Type = EventTypeDaily
		}
		if !EventWeights[e.Weight] {
			e.Weight = EventWeightAtmosphere
		}

		batch[e.ID] = true
		out.Events = append(out.Events, e)
	}

	// causedBy may point forward within the batch, so it is only sanitized
	// once the whole batch is known.
	for i := range out.Events {
		out.Events[i].CausedBy = sanitizeCausedBy(out.Events[i].ID, out.Events[i].CausedBy, existingEventIDs, batch)
	}

	for _, u := range delta.FactUpdates {
		u.S = strings.TrimSpace(u.S)
		u.P = strings.TrimSpace(u.P)
		if u.S == "" || u.P == "" {
			continue
		}
		if strings.HasPrefix(u.P, RelationPredicatePrefix) && !IsRelationPredicate(u.P) {
			continue
		}
		if u.Trend != "" {
			if _, ok := TrendRank[u.Trend]; !ok {
				u.Trend = ""
			}
		}
		// A trend only makes sense on a relationship fact.
		if u.Trend != "" && !IsRelationPredicate(u.P) {
			u.Trend = ""
		}
		out.FactUpdates = append(out.FactUpdates, u)
	}

	for _, a := range delta.ArcUpdates {
		if strings.TrimSpace(a.Name) == "" {
			continue
		}
		out.ArcUpdates = append(out.ArcUpdates, a)
	}

	for _, name := range delta.NewCharacters {
		if strings.TrimSpace(name) == "" {
			continue
		}
		out.NewCharacters = append(out.NewCharacters, name)
	}

	return out
}

// sanitizeCausedBy keeps causal ids that match the id pattern, are not the
// event itself, and resolve to a pre-existing event or an event of the same
// batch. Duplicates are dropped and the result capped at MaxCausedBy.
func sanitizeCausedBy(self string, causedBy []string, existing, batch map[string]bool) []string {
	if len(causedBy) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(causedBy))
	kept := make([]string, 0, MaxCausedBy)
	for _, id := range causedBy {
		if len(kept) == MaxCausedBy {
			break
		}
		if !eventIDPattern.MatchString(id) || id == self || seen[id] {
			continue
		}
		if !existing[id] && !batch[id] {
			continue
		}
		seen[id] = true
		kept = append(kept, id)
	}

	if len(kept) == 0 {
		return nil
	}
	return kept
}
