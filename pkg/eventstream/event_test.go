package eventstream_test

import (
	"encoding/json"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/reveriehq/reverie/pkg/eventstream"
)

func TestEventstream(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Eventstream Suite")
}

var _ = Describe("Event", func() {
	It("marshals a summary-committed event with expected top-level keys", func() {
		event := eventstream.NewSummaryCommitted("chat-1", eventstream.SummaryMeta{
			StartFloor:  13,
			EndFloor:    24,
			NewEvents:   2,
			FactUpdates: 3,
		})

		payload, err := json.Marshal(event)
		Expect(err).NotTo(HaveOccurred())

		var got map[string]any
		Expect(json.Unmarshal(payload, &got)).To(Succeed())

		Expect(got).To(HaveKey("schema_version"))
		Expect(got).To(HaveKey("event_type"))
		Expect(got).To(HaveKey("event_id"))
		Expect(got).To(HaveKey("emitted_at"))
		Expect(got).To(HaveKey("chat_id"))
		Expect(got).To(HaveKey("summary"))
		Expect(got).NotTo(HaveKey("rollback"))
		Expect(got).NotTo(HaveKey("rebuild"))
	})

	It("assigns unique event ids", func() {
		a := eventstream.NewMemoryRolledBack("chat-1", eventstream.RollbackMeta{Floor: 20, BoundaryFloor: 12})
		b := eventstream.NewMemoryRolledBack("chat-1", eventstream.RollbackMeta{Floor: 20, BoundaryFloor: 12})
		Expect(a.EventID).NotTo(Equal(b.EventID))
	})

	It("defines stable event constants", func() {
		Expect(eventstream.SchemaVersionV1).To(BeNumerically(">", 0))
		Expect(eventstream.EventTypeSummaryCommitted).To(Equal("reverie.summary.committed"))
		Expect(eventstream.EventTypeMemoryRolledBack).To(Equal("reverie.memory.rolledback"))
		Expect(eventstream.EventTypeVectorsRebuilt).To(Equal("reverie.vectors.rebuilt"))
	})

	It("provides ErrNilEvent for nil payload validation", func() {
		Expect(eventstream.ErrNilEvent).To(MatchError("nil memory event"))
	})
})
