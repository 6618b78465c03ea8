package testutils

import (
	"context"
	"sort"

	"github.com/reveriehq/reverie/pkg/vector"
)

// MockVectorDriver is a test vector driver. Documents are stored per chat
// and set; Results, when populated, override Query output per set.
type MockVectorDriver struct {
	// Results maps a set to canned query results, returned for any chat.
	Results map[vector.Set][]vector.QueryResult

	// Fingerprints maps chat ids to their recorded fingerprint.
	Fingerprints map[string]string

	docs map[string]map[vector.Set][]vector.Document
}

func NewMockVectorDriver() *MockVectorDriver {
	return &MockVectorDriver{
		Results:      make(map[vector.Set][]vector.QueryResult),
		Fingerprints: make(map[string]string),
		docs:         make(map[string]map[vector.Set][]vector.Document),
	}
}

func (m *MockVectorDriver) setDocs(chatID string, set vector.Set) []vector.Document {
	if m.docs[chatID] == nil {
		return nil
	}
	return m.docs[chatID][set]
}

func (m *MockVectorDriver) Add(_ context.Context, chatID string, set vector.Set, docs []vector.Document) error {
	if m.docs[chatID] == nil {
		m.docs[chatID] = make(map[vector.Set][]vector.Document)
	}
	for _, doc := range docs {
		existing := m.docs[chatID][set]
		replaced := false
		for i := range existing {
			if existing[i].ID == doc.ID {
				existing[i] = doc
				replaced = true
				break
			}
		}
		if !replaced {
			m.docs[chatID][set] = append(existing, doc)
		}
	}
	return nil
}

func (m *MockVectorDriver) Query(_ context.Context, _ string, set vector.Set, _ []float32, topK int) ([]vector.QueryResult, error) {
	results := m.Results[set]
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (m *MockVectorDriver) All(_ context.Context, chatID string, set vector.Set) ([]vector.Document, error) {
	docs := append([]vector.Document{}, m.setDocs(chatID, set)...)
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

func (m *MockVectorDriver) Count(_ context.Context, chatID string, set vector.Set) (int, error) {
	return len(m.setDocs(chatID, set)), nil
}

func (m *MockVectorDriver) Delete(_ context.Context, chatID string, set vector.Set, ids []string) error {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	return m.filter(chatID, set, func(doc vector.Document) bool { return !drop[doc.ID] })
}

func (m *MockVectorDriver) DeleteFloorsFrom(_ context.Context, chatID string, set vector.Set, floor int) error {
	return m.filter(chatID, set, func(doc vector.Document) bool { return doc.Floor < floor })
}

func (m *MockVectorDriver) DeleteFloorAt(_ context.Context, chatID string, set vector.Set, floor int) error {
	return m.filter(chatID, set, func(doc vector.Document) bool { return doc.Floor != floor })
}

func (m *MockVectorDriver) filter(chatID string, set vector.Set, keep func(vector.Document) bool) error {
	if m.docs[chatID] == nil {
		return nil
	}
	var kept []vector.Document
	for _, doc := range m.docs[chatID][set] {
		if keep(doc) {
			kept = append(kept, doc)
		}
	}
	m.docs[chatID][set] = kept
	return nil
}

func (m *MockVectorDriver) Fingerprint(_ context.Context, chatID string) (string, error) {
	return m.Fingerprints[chatID], nil
}

func (m *MockVectorDriver) SetFingerprint(_ context.Context, chatID string, fingerprint string) error {
	m.Fingerprints[chatID] = fingerprint
	return nil
}

func (m *MockVectorDriver) DropChat(_ context.Context, chatID string) error {
	delete(m.docs, chatID)
	delete(m.Fingerprints, chatID)
	return nil
}

func (m *MockVectorDriver) Close() error {
	return nil
}

// Ensure MockVectorDriver implements vector.Driver
var _ vector.Driver = (*MockVectorDriver)(nil)
