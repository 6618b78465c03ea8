package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/reveriehq/reverie/pkg/guard"
	"github.com/reveriehq/reverie/pkg/model"
)

var anchorFencePattern = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")

// anchorDelta is the raw extraction reply.
type anchorDelta struct {
	Atoms []struct {
		Semantic string       `json:"semantic"`
		Edges    []model.Edge `json:"edges"`
	} `json:"atoms"`
}

// ExtractAnchors derives the atoms of one AI-message round (the AI reply
// paired with its preceding user message) via the LLM. The
// anchor-extraction guard rejects a second concurrent run.
func (e *MemoryEngine) ExtractAnchors(ctx context.Context, chatID string, floor int, userText, aiText string) ([]model.Atom, error) {
	if e.call == nil {
		return nil, fmt.Errorf("anchor extraction requires an llm caller")
	}

	release, err := e.guards.TryAcquire(guard.ClassAnchorExtraction)
	if err != nil {
		return nil, fmt.Errorf("anchor extraction: %w", err)
	}
	defer release()

	raw, err := e.call(ctx, buildAnchorPrompt(floor, userText, aiText))
	if err != nil {
		return nil, fmt.Errorf("anchor extraction call: %w", err)
	}

	trimmed := strings.TrimSpace(raw)
	if m := anchorFencePattern.FindStringSubmatch(trimmed); m != nil {
		trimmed = m[1]
	}

	var delta anchorDelta
	if err := json.Unmarshal([]byte(trimmed), &delta); err != nil {
		return nil, fmt.Errorf("decoding anchor reply: %w", err)
	}

	var atoms []model.Atom
	for i, a := range delta.Atoms {
		semantic := strings.TrimSpace(a.Semantic)
		if semantic == "" {
			continue
		}
		var edges []model.Edge
		for _, edge := range a.Edges {
			if edge.S == "" || edge.R == "" || edge.T == "" {
				continue
			}
			edges = append(edges, edge)
		}
		atoms = append(atoms, model.Atom{
			AtomID:   fmt.Sprintf("a-%d-%d", floor, i),
			Floor:    floor,
			Semantic: semantic,
			Edges:    edges,
		})
	}

	return atoms, nil
}

func buildAnchorPrompt(floor int, userText, aiText string) string {
	var sb strings.Builder
	sb.WriteString("从下面这一轮对话中提取记忆锚点。每个锚点包含一句简短的场景摘要 semantic,")
	sb.WriteString("以及其中出现的实体关系三元组 edges(主体 s、关系 r、客体 t)。\n")
	sb.WriteString("只输出一个 JSON 对象,格式:{\"atoms\":[{\"semantic\":\"...\",\"edges\":[{\"s\":\"...\",\"r\":\"...\",\"t\":\"...\"}]}]}。\n\n")
	fmt.Fprintf(&sb, "[#%d][用户] %s\n", floor, userText)
	fmt.Fprintf(&sb, "[#%d][AI] %s\n", floor, aiText)
	return sb.String()
}
