package testutils

import (
	"context"
	"fmt"
)

// MockEmbedder is a test embedder that returns predictable embeddings
type MockEmbedder struct {
	// Embeddings maps text to its embedding; unmapped texts get Default.
	Embeddings map[string][]float32

	// Default is returned for unmapped texts.
	Default []float32

	// FingerprintValue is returned by Fingerprint.
	FingerprintValue string

	// FailOn causes Embed to return an error when any input text matches
	FailOn string

	// Calls accumulates every batch passed to Embed.
	Calls [][]string
}

func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{
		Embeddings:       make(map[string][]float32),
		Default:          []float32{0.1, 0.2, 0.3},
		FingerprintValue: "mock/test/3",
	}
}

func (m *MockEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	m.Calls = append(m.Calls, texts)

	out := make([][]float32, len(texts))
	for i, text := range texts {
		if m.FailOn != "" && text == m.FailOn {
			return nil, fmt.Errorf("mock embedding failure for: %s", text)
		}
		if emb, ok := m.Embeddings[text]; ok {
			out[i] = emb
			continue
		}
		out[i] = m.Default
	}
	return out, nil
}

func (m *MockEmbedder) Fingerprint() string {
	return m.FingerprintValue
}

func (m *MockEmbedder) Close() error {
	return nil
}
