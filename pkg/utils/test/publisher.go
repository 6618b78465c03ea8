package testutils

import (
	"context"

	"github.com/reveriehq/reverie/pkg/eventstream"
)

// MockPublisher records every published lifecycle event.
type MockPublisher struct {
	// Events accumulates published events in order.
	Events []*eventstream.MemoryEvent

	// Err, when set, is returned by Publish.
	Err error
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) Publish(_ context.Context, event *eventstream.MemoryEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}
	if m.Err != nil {
		return m.Err
	}
	m.Events = append(m.Events, event)
	return nil
}

// ByType returns the recorded events of one type.
func (m *MockPublisher) ByType(eventType string) []*eventstream.MemoryEvent {
	var out []*eventstream.MemoryEvent
	for _, event := range m.Events {
		if event.EventType == eventType {
			out = append(out, event)
		}
	}
	return out
}

func (m *MockPublisher) Close() error {
	return nil
}

var _ eventstream.Publisher = (*MockPublisher)(nil)
