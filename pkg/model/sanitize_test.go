package model_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/reveriehq/reverie/pkg/model"
)

var _ = Describe("SanitizeDelta", func() {
	var existing map[string]bool

	BeforeEach(func() {
		existing = map[string]bool{"evt-1": true, "evt-2": true}
	})

	Describe("fact updates", func() {
		It("drops updates with empty subject or predicate", func() {
			out := model.SanitizeDelta(model.Delta{
				FactUpdates: []model.FactUpdate{
					{S: "", P: "position", O: "x"},
					{S: "Alice", P: "  ", O: "x"},
					{S: "Alice", P: "position", O: "tavern"},
				},
			}, existing)
			Expect(out.FactUpdates).To(HaveLen(1))
			Expect(out.FactUpdates[0].O).To(Equal("tavern"))
		})

		It("drops a bare toward- predicate with no target", func() {
			out := model.SanitizeDelta(model.Delta{
				FactUpdates: []model.FactUpdate{
					{S: "Alice", P: "toward-", O: "x"},
					{S: "Alice", P: "toward-Bob", O: "x", Trend: model.TrendRapport},
				},
			}, existing)
			Expect(out.FactUpdates).To(HaveLen(1))
			Expect(out.FactUpdates[0].P).To(Equal("toward-Bob"))
		})

		It("clears trends outside the fixed scale", func() {
			out := model.SanitizeDelta(model.Delta{
				FactUpdates: []model.FactUpdate{
					{S: "Alice", P: "toward-Bob", O: "x", Trend: "敌人"},
				},
			}, existing)
			Expect(out.FactUpdates[0].Trend).To(BeEmpty())
		})

		It("clears a trend on a non-relation predicate", func() {
			out := model.SanitizeDelta(model.Delta{
				FactUpdates: []model.FactUpdate{
					{S: "Alice", P: "position", O: "tavern", Trend: model.TrendIntimate},
				},
			}, existing)
			Expect(out.FactUpdates[0].Trend).To(BeEmpty())
		})
	})

	Describe("events", func() {
		It("drops events with malformed ids", func() {
			out := model.SanitizeDelta(model.Delta{
				Events: []model.Event{
					{ID: "event-3", Title: "t", Summary: "s (#1-2)"},
					{ID: "evt-3", Title: "t", Summary: "s (#1-2)"},
				},
			}, existing)
			Expect(out.Events).To(HaveLen(1))
			Expect(out.Events[0].ID).To(Equal("evt-3"))
		})

		It("drops events whose id collides with an existing event", func() {
			out := model.SanitizeDelta(model.Delta{
				Events: []model.Event{
					{ID: "evt-1", Title: "dup", Summary: "s (#1-2)"},
				},
			}, existing)
			Expect(out.Events).To(BeEmpty())
		})

		It("defaults unknown type and weight", func() {
			out := model.SanitizeDelta(model.Delta{
				Events: []model.Event{
					{ID: "evt-3", Title: "t", Summary: "s (#1-2)", Type: "奇怪", Weight: "超重"},
				},
			}, existing)
			Expect(out.Events[0].Type).To(Equal(model.EventTypeDaily))
			Expect(out.Events[0].Weight).To(Equal(model.EventWeightAtmosphere))
		})

		Describe("causedBy", func() {
			It("drops self-references", func() {
				out := model.SanitizeDelta(model.Delta{
					Events: []model.Event{
						{ID: "evt-3", Title: "t", Summary: "s", CausedBy: []string{"evt-3", "evt-1"}},
					},
				}, existing)
				Expect(out.Events[0].CausedBy).To(Equal([]string{"evt-1"}))
			})

			It("drops ids that resolve to neither existing nor same-batch events", func() {
				out := model.SanitizeDelta(model.Delta{
					Events: []model.Event{
						{ID: "evt-3", Title: "t", Summary: "s", CausedBy: []string{"evt-99"}},
					},
				}, existing)
				Expect(out.Events[0].CausedBy).To(BeNil())
			})

			It("accepts same-batch antecedents declared earlier in the batch", func() {
				out := model.SanitizeDelta(model.Delta{
					Events: []model.Event{
						{ID: "evt-3", Title: "a", Summary: "s"},
						{ID: "evt-4", Title: "b", Summary: "s", CausedBy: []string{"evt-3"}},
					},
				}, existing)
				Expect(out.Events[1].CausedBy).To(Equal([]string{"evt-3"}))
			})

			It("accepts same-batch antecedents declared later in the batch", func() {
				out := model.SanitizeDelta(model.Delta{
					Events: []model.Event{
						{ID: "evt-3", Title: "a", Summary: "s", CausedBy: []string{"evt-4"}},
						{ID: "evt-4", Title: "b", Summary: "s"},
					},
				}, existing)
				Expect(out.Events[0].CausedBy).To(Equal([]string{"evt-4"}))
			})

			It("does not resolve forward references to events dropped from the batch", func() {
				out := model.SanitizeDelta(model.Delta{
					Events: []model.Event{
						{ID: "evt-3", Title: "a", Summary: "s", CausedBy: []string{"evt-4"}},
						{ID: "evt-4", Title: "", Summary: ""},
					},
				}, existing)
				Expect(out.Events).To(HaveLen(1))
				Expect(out.Events[0].CausedBy).To(BeNil())
			})

			It("dedupes and caps at two entries", func() {
				out := model.SanitizeDelta(model.Delta{
					Events: []model.Event{
						{ID: "evt-3", Title: "t", Summary: "s", CausedBy: []string{"evt-1", "evt-1", "evt-2", "evt-2"}},
					},
				}, existing)
				Expect(out.Events[0].CausedBy).To(Equal([]string{"evt-1", "evt-2"}))
			})
		})
	})

	It("drops blank arc names and character names", func() {
		out := model.SanitizeDelta(model.Delta{
			ArcUpdates:    []model.ArcUpdate{{Name: " "}, {Name: "复仇", Moment: "m"}},
			NewCharacters: []string{"", "Bob"},
		}, existing)
		Expect(out.ArcUpdates).To(HaveLen(1))
		Expect(out.NewCharacters).To(Equal([]string{"Bob"}))
	})
})

var _ = Describe("ParseFloorRange", func() {
	It("extracts the marker from a summary", func() {
		r, ok := model.ParseFloorRange("两人在酒馆争执 (#12-15)，不欢而散")
		Expect(ok).To(BeTrue())
		Expect(r.Start).To(Equal(12))
		Expect(r.End).To(Equal(15))
		Expect(r.Contains(13)).To(BeTrue())
		Expect(r.Contains(16)).To(BeFalse())
	})

	It("rejects summaries without a marker", func() {
		_, ok := model.ParseFloorRange("没有标记的摘要")
		Expect(ok).To(BeFalse())
	})

	It("rejects a degenerate range", func() {
		_, ok := model.ParseFloorRange("(#9-3)")
		Expect(ok).To(BeFalse())
	})

	It("round-trips through FormatFloorRange", func() {
		r, ok := model.ParseFloorRange("x " + model.FormatFloorRange(4, 8))
		Expect(ok).To(BeTrue())
		Expect(r).To(Equal(model.FloorRange{Start: 4, End: 8}))
	})
})
