package summarizer

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/reveriehq/reverie/pkg/model"
)

var (
	codeFencePattern     = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
)

// DecodeDelta decodes a raw LLM reply into a Delta. The decode is strict;
// the only leniency is an explicit pre-pass that strips a surrounding code
// fence and trims trailing commas, applied before a second attempt.
func DecodeDelta(raw string) (model.Delta, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return model.Delta{}, fmt.Errorf("empty reply")
	}

	delta, err := decodeStrict(trimmed)
	if err == nil {
		return delta, nil
	}

	relaxed := trailingCommaPattern.ReplaceAllString(stripCodeFence(trimmed), "$1")
	delta, err2 := decodeStrict(relaxed)
	if err2 == nil {
		return delta, nil
	}

	return model.Delta{}, fmt.Errorf("decoding delta: %w", err)
}

func decodeStrict(raw string) (model.Delta, error) {
	var delta model.Delta
	dec := json.NewDecoder(strings.NewReader(raw))
	if err := dec.Decode(&delta); err != nil {
		return model.Delta{}, err
	}

	// Reject replies with trailing non-whitespace after the object.
	var trailing json.RawMessage
	if err := dec.Decode(&trailing); err != io.EOF {
		return model.Delta{}, fmt.Errorf("trailing content after delta object")
	}

	for i, evt := range delta.Events {
		if evt.ID == "" || evt.Summary == "" {
			return model.Delta{}, fmt.Errorf("event %d missing id or summary", i)
		}
	}

	return delta, nil
}

func stripCodeFence(raw string) string {
	if m := codeFencePattern.FindStringSubmatch(raw); m != nil {
		return m[1]
	}
	return raw
}
