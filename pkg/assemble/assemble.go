// Package assemble renders ranked recall output into a token-budgeted
// memory block. Sections fill in fixed priority order against a shared
// budget plus per-section sub-pools; running out of budget degrades the
// output, it never fails.
package assemble

import (
	"fmt"
	"sort"
	"strings"

	"github.com/reveriehq/reverie/pkg/model"
	"github.com/reveriehq/reverie/pkg/recall"
)

// MinDepth keeps the memory block from sitting directly adjacent to the
// newest turn when the host splices it into the prompt.
const MinDepth = 2

// Budget caps the assembled output. Total is shared by constraints, events
// and arcs; the distant and recent evidence pools are independent.
type Budget struct {
	Total           int
	Constraints     int
	DirectEvents    int
	RelatedEvents   int
	DistantEvidence int
	RecentEvidence  int
	Arcs            int
}

// DefaultBudget returns the standard allocation.
func DefaultBudget() Budget {
	return Budget{
		Total:           1600,
		Constraints:     400,
		DirectEvents:    500,
		RelatedEvents:   300,
		DistantEvidence: 200,
		RecentEvidence:  200,
		Arcs:            200,
	}
}

// Input is everything the assembler renders from.
type Input struct {
	Recall          recall.Result
	Facts           []model.Fact
	Arcs            []model.Arc
	Focus           recall.Focus
	KnownCharacters []string
}

// Output is the assembled memory block. Depth is the distance from the
// bottom of the prompt at which the host should splice it in.
type Output struct {
	Text  string `json:"text"`
	Depth int    `json:"depth"`
}

const (
	framingHeader = "以下是经过整理的长期记忆。【约束】中是已确认的既成事实;" +
		"事件与片段是过往经历的摘录,可能不完整;请以此为背景,不要逐字复述。"

	headerConstraints = "【约束】"
	headerDirect      = "【相关事件】"
	headerRelated     = "【可能相关的事件】"
	headerCausal      = "【前因】"
	headerDistant     = "【较远的记忆片段】"
	headerRecent      = "【最近的记忆片段】"
	headerArcs        = "【进行中的情节线】"
)

// pool tracks one sub-budget nested inside the shared budget.
type pool struct {
	shared *int
	left   int
}

func newPool(shared *int, size int) *pool {
	return &pool{shared: shared, left: size}
}

// admit charges the item against both the sub-pool and the shared pool,
// reporting whether it fits. A failed admit charges nothing.
func (p *pool) admit(cost int) bool {
	if cost > p.left {
		return false
	}
	if p.shared != nil && cost > *p.shared {
		return false
	}
	p.left -= cost
	if p.shared != nil {
		*p.shared -= cost
	}
	return true
}

// Assemble renders the memory block. It is purely functional over its
// inputs.
func Assemble(in Input, budget Budget) Output {
	shared := budget.Total

	var sections []string

	if s := renderConstraints(in, newPool(&shared, budget.Constraints)); s != "" {
		sections = append(sections, s)
	}

	// The first evidence attachment that fails to fit turns every later
	// event summary-only, keeping degradation monotonic.
	evidenceAllowed := true

	if s := renderEvents(headerDirect, in.Recall.Direct, newPool(&shared, budget.DirectEvents), &evidenceAllowed); s != "" {
		sections = append(sections, s)
	}
	if s := renderEvents(headerRelated, in.Recall.Related, newPool(&shared, budget.RelatedEvents), &evidenceAllowed); s != "" {
		sections = append(sections, s)
	}
	if s := renderCausal(in.Recall.Causal); s != "" {
		sections = append(sections, s)
	}
	if s := renderResidual(headerDistant, in.Recall.Distant, budget.DistantEvidence); s != "" {
		sections = append(sections, s)
	}
	if s := renderResidual(headerRecent, in.Recall.Recent, budget.RecentEvidence); s != "" {
		sections = append(sections, s)
	}
	if s := renderArcs(in.Arcs, newPool(&shared, budget.Arcs)); s != "" {
		sections = append(sections, s)
	}

	if len(sections) == 0 {
		return Output{Depth: MinDepth}
	}

	text := framingHeader + "\n\n" + strings.Join(sections, "\n\n")
	return Output{Text: text, Depth: MinDepth}
}

// renderConstraints filters facts by relevance, splits them into people and
// world buckets and fills each most-recent-since-first.
func renderConstraints(in Input, p *pool) string {
	known := make(map[string]bool, len(in.KnownCharacters))
	for _, name := range in.KnownCharacters {
		known[name] = true
	}
	focus := make(map[string]bool, len(in.Focus.Entities))
	for _, name := range in.Focus.Entities {
		focus[name] = true
	}

	var people, world []model.Fact
	for _, fact := range in.Facts {
		if !factRelevant(fact, known, focus) {
			continue
		}
		if focus[fact.S] || known[fact.S] {
			people = append(people, fact)
		} else {
			world = append(world, fact)
		}
	}

	byRecency := func(facts []model.Fact) {
		sort.SliceStable(facts, func(i, j int) bool { return facts[i].Since > facts[j].Since })
	}
	byRecency(people)
	byRecency(world)

	var lines []string
	for _, fact := range append(people, world...) {
		line := renderFact(fact)
		if !p.admit(EstimateTokens(line)) {
			continue
		}
		lines = append(lines, line)
	}

	if len(lines) == 0 {
		return ""
	}
	return headerConstraints + "\n" + strings.Join(lines, "\n")
}

// factRelevant applies the constraint filter: state facts always pass;
// relationship facts need a focus endpoint; otherwise non-character
// subjects pass as world facts and character subjects must be in focus.
func factRelevant(fact model.Fact, known, focus map[string]bool) bool {
	if fact.IsState {
		return true
	}
	if model.IsRelationPredicate(fact.P) {
		return focus[fact.S] || focus[model.RelationTarget(fact.P)]
	}
	if !known[fact.S] {
		return true
	}
	return focus[fact.S]
}

func renderFact(fact model.Fact) string {
	if fact.Trend != "" {
		return fmt.Sprintf("- %s %s %s(%s)", fact.S, fact.P, fact.O, fact.Trend)
	}
	return fmt.Sprintf("- %s %s %s", fact.S, fact.P, fact.O)
}

// renderEvents admits ranked events in order, trying the with-evidence
// rendering first and falling back to summary-only. A summary that does
// not fit stops the class; no later event outranks an earlier one.
func renderEvents(header string, events []recall.RankedEvent, p *pool, evidenceAllowed *bool) string {
	var lines []string

	for _, ranked := range events {
		if *evidenceAllowed && len(ranked.Evidence) > 0 {
			full := renderEvent(ranked.Event, ranked.Evidence)
			if p.admit(EstimateTokens(full)) {
				lines = append(lines, full)
				continue
			}
			*evidenceAllowed = false
		}

		bare := renderEvent(ranked.Event, nil)
		if !p.admit(EstimateTokens(bare)) {
			break
		}
		lines = append(lines, bare)
	}

	if len(lines) == 0 {
		return ""
	}
	return header + "\n" + strings.Join(lines, "\n")
}

func renderEvent(evt model.Event, evidence []recall.EvidenceGroup) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "- [%s·%s] %s:%s", evt.Type, evt.Weight, evt.Title, evt.Summary)
	if evt.TimeLabel != "" {
		fmt.Fprintf(&sb, "(%s)", evt.TimeLabel)
	}

	for _, g := range evidence {
		for _, atom := range g.Atoms {
			fmt.Fprintf(&sb, "\n  · #%d %s", atom.Floor, atom.Semantic)
		}
		if g.UserChunk != nil {
			fmt.Fprintf(&sb, "\n  「%s」", g.UserChunk.Text)
		}
		if g.AIChunk != nil {
			fmt.Fprintf(&sb, "\n  「%s」", g.AIChunk.Text)
		}
	}
	return sb.String()
}

// renderCausal renders antecedent events as read-only context, indented by
// causal depth. It is not charged against the shared budget.
func renderCausal(entries []recall.CausalEntry) string {
	if len(entries) == 0 {
		return ""
	}
	var lines []string
	for _, entry := range entries {
		indent := strings.Repeat("  ", entry.Depth)
		lines = append(lines, fmt.Sprintf("%s↳ %s:%s", indent, entry.Event.Title, entry.Event.Summary))
	}
	return headerCausal + "\n" + strings.Join(lines, "\n")
}

// renderResidual fills an independent evidence pool in selection order and
// emits the admitted atoms chronologically.
func renderResidual(header string, atoms []recall.ResidualAtom, size int) string {
	p := newPool(nil, size)

	var admitted []recall.ResidualAtom
	for _, ra := range atoms {
		line := renderAtom(ra.Atom)
		if !p.admit(EstimateTokens(line)) {
			continue
		}
		admitted = append(admitted, ra)
	}
	if len(admitted) == 0 {
		return ""
	}

	sort.SliceStable(admitted, func(i, j int) bool { return admitted[i].Atom.Floor < admitted[j].Atom.Floor })

	lines := make([]string, len(admitted))
	for i, ra := range admitted {
		lines[i] = renderAtom(ra.Atom)
	}
	return header + "\n" + strings.Join(lines, "\n")
}

func renderAtom(atom model.Atom) string {
	return fmt.Sprintf("- #%d %s", atom.Floor, atom.Semantic)
}

func renderArcs(arcs []model.Arc, p *pool) string {
	var lines []string
	for _, arc := range arcs {
		line := fmt.Sprintf("- %s(进度 %.0f%%):%s", arc.Name, arc.Progress*100, arc.Trajectory)
		if len(arc.Moments) > 0 {
			line += fmt.Sprintf(" 最近:%s", arc.Moments[len(arc.Moments)-1].Text)
		}
		if !p.admit(EstimateTokens(line)) {
			continue
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return ""
	}
	return headerArcs + "\n" + strings.Join(lines, "\n")
}
