package model_test

import (
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/reveriehq/reverie/pkg/model"
)

var _ = Describe("MergeFacts", func() {
	It("appends a fact with an unseen key", func() {
		facts := model.MergeFacts(nil, []model.FactUpdate{
			{S: "Alice", P: "position", O: "tavern"},
		}, 10)

		Expect(facts).To(HaveLen(1))
		Expect(facts[0].S).To(Equal("Alice"))
		Expect(facts[0].P).To(Equal("position"))
		Expect(facts[0].O).To(Equal("tavern"))
		Expect(facts[0].Since).To(Equal(10))
		Expect(facts[0].AddedAt).To(Equal(10))
		Expect(facts[0].ID).To(Equal("f-1"))
	})

	It("overwrites the value for an existing (s,p) key", func() {
		base := model.MergeFacts(nil, []model.FactUpdate{
			{S: "Alice", P: "position", O: "tavern"},
		}, 10)

		merged := model.MergeFacts(base, []model.FactUpdate{
			{S: "Alice", P: "position", O: "forest"},
		}, 20)

		Expect(merged).To(HaveLen(1))
		Expect(merged[0].O).To(Equal("forest"))
		Expect(merged[0].Since).To(Equal(20))
		Expect(merged[0].AddedAt).To(Equal(20))
	})

	It("is idempotent on latest: A then B equals B alone for the same key", func() {
		a := model.FactUpdate{S: "Alice", P: "mood", O: "wary"}
		b := model.FactUpdate{S: "Alice", P: "mood", O: "calm"}

		viaBoth := model.MergeFacts(model.MergeFacts(nil, []model.FactUpdate{a}, 5), []model.FactUpdate{b}, 6)
		viaLatest := model.MergeFacts(nil, []model.FactUpdate{b}, 6)

		Expect(viaBoth).To(HaveLen(1))
		Expect(viaBoth[0].O).To(Equal(viaLatest[0].O))
		Expect(viaBoth[0].Since).To(Equal(viaLatest[0].Since))
	})

	It("deletes the key on a retracted update", func() {
		base := model.MergeFacts(nil, []model.FactUpdate{
			{S: "Alice", P: "position", O: "tavern"},
			{S: "Bob", P: "position", O: "gate"},
		}, 3)

		merged := model.MergeFacts(base, []model.FactUpdate{
			{S: "Alice", P: "position", Retracted: true},
		}, 4)

		Expect(merged).To(HaveLen(1))
		Expect(merged[0].S).To(Equal("Bob"))
	})

	It("ignores a retraction for an unknown key", func() {
		merged := model.MergeFacts(nil, []model.FactUpdate{
			{S: "Nobody", P: "nothing", Retracted: true},
		}, 1)
		Expect(merged).To(BeEmpty())
	})

	It("does not mutate its inputs", func() {
		base := model.MergeFacts(nil, []model.FactUpdate{
			{S: "Alice", P: "position", O: "tavern"},
		}, 10)

		_ = model.MergeFacts(base, []model.FactUpdate{
			{S: "Alice", P: "position", O: "forest"},
		}, 20)

		Expect(base[0].O).To(Equal("tavern"))
		Expect(base[0].AddedAt).To(Equal(10))
	})

	It("respects an explicit since on the update", func() {
		facts := model.MergeFacts(nil, []model.FactUpdate{
			{S: "Alice", P: "title", O: "knight", Since: 7},
		}, 12)
		Expect(facts[0].Since).To(Equal(7))
		Expect(facts[0].AddedAt).To(Equal(12))
	})

	Describe("capacity pruning", func() {
		It("keeps exactly the 10 most recently added non-state facts per subject", func() {
			var facts []model.Fact
			for i := 1; i <= 11; i++ {
				facts = model.MergeFacts(facts, []model.FactUpdate{
					{S: "Bob", P: fmt.Sprintf("p%d", i), O: "v"},
				}, i)
			}

			Expect(facts).To(HaveLen(10))
			for _, f := range facts {
				Expect(f.AddedAt).To(BeNumerically(">=", 2), "oldest fact (addedAt=1) must be pruned")
			}
		})

		It("exempts state facts from pruning", func() {
			facts := model.MergeFacts(nil, []model.FactUpdate{
				{S: "Bob", P: "p0", O: "v", IsState: true},
			}, 1)
			for i := 2; i <= 12; i++ {
				facts = model.MergeFacts(facts, []model.FactUpdate{
					{S: "Bob", P: fmt.Sprintf("p%d", i), O: "v"},
				}, i)
			}

			var state, nonState int
			for _, f := range facts {
				if f.IsState {
					state++
				} else {
					nonState++
				}
			}
			Expect(state).To(Equal(1))
			Expect(nonState).To(Equal(10))
		})

		It("prunes per subject independently", func() {
			var facts []model.Fact
			for i := 1; i <= 11; i++ {
				facts = model.MergeFacts(facts, []model.FactUpdate{
					{S: "Bob", P: fmt.Sprintf("p%d", i), O: "v"},
					{S: "Carol", P: fmt.Sprintf("p%d", i), O: "v"},
				}, i)
			}

			perSubject := map[string]int{}
			for _, f := range facts {
				perSubject[f.S]++
			}
			Expect(perSubject["Bob"]).To(Equal(10))
			Expect(perSubject["Carol"]).To(Equal(10))
		})
	})
})

var _ = Describe("MergeEventDelta", func() {
	var old model.SummaryState

	BeforeEach(func() {
		old = model.SummaryState{
			Events: []model.Event{
				{ID: "evt-1", Title: "初遇", Summary: "雨夜的相遇 (#0-3)", Type: model.EventTypeEncounter, Weight: model.EventWeightCore},
			},
			Characters: []string{"Alice"},
			Arcs: []model.Arc{
				{Name: "复仇", Trajectory: "初现端倪", Progress: 0.2, Moments: []model.ArcMoment{{Text: "誓言", AddedAt: 3}}},
			},
			Keywords: []string{"雨夜"},
		}
	})

	It("appends delta events after existing ones", func() {
		merged := model.MergeEventDelta(old, model.Delta{
			Events: []model.Event{
				{ID: "evt-2", Title: "冲突", Summary: "酒馆争执 (#4-6)", Type: model.EventTypeConflict, Weight: model.EventWeightMainline},
			},
		}, 6)

		Expect(merged.Events).To(HaveLen(2))
		Expect(merged.Events[1].ID).To(Equal("evt-2"))
	})

	It("dedups new character names by exact string", func() {
		merged := model.MergeEventDelta(old, model.Delta{
			NewCharacters: []string{"Alice", "Bob", "Bob"},
		}, 6)
		Expect(merged.Characters).To(Equal([]string{"Alice", "Bob"}))
	})

	It("updates an existing arc by name and appends the moment", func() {
		merged := model.MergeEventDelta(old, model.Delta{
			ArcUpdates: []model.ArcUpdate{
				{Name: "复仇", Trajectory: "逐渐明朗", Progress: 0.5, Moment: "线索浮现"},
			},
		}, 6)

		Expect(merged.Arcs).To(HaveLen(1))
		Expect(merged.Arcs[0].Trajectory).To(Equal("逐渐明朗"))
		Expect(merged.Arcs[0].Progress).To(Equal(0.5))
		Expect(merged.Arcs[0].Moments).To(HaveLen(2))
		Expect(merged.Arcs[0].Moments[1].AddedAt).To(Equal(6))
	})

	It("creates an arc for an unknown name", func() {
		merged := model.MergeEventDelta(old, model.Delta{
			ArcUpdates: []model.ArcUpdate{
				{Name: "救赎", Trajectory: "萌芽", Progress: 0.1, Moment: "转念"},
			},
		}, 8)

		Expect(merged.Arcs).To(HaveLen(2))
		Expect(merged.Arcs[1].Name).To(Equal("救赎"))
	})

	It("clamps arc progress into [0,1]", func() {
		merged := model.MergeEventDelta(old, model.Delta{
			ArcUpdates: []model.ArcUpdate{
				{Name: "复仇", Trajectory: "失控", Progress: 1.7},
			},
		}, 9)
		Expect(merged.Arcs[0].Progress).To(Equal(1.0))
	})

	It("replaces the keyword list wholesale", func() {
		merged := model.MergeEventDelta(old, model.Delta{
			Keywords: []string{"酒馆", "争执"},
		}, 6)
		Expect(merged.Keywords).To(Equal([]string{"酒馆", "争执"}))
	})

	It("keeps old keywords when the delta carries none", func() {
		merged := model.MergeEventDelta(old, model.Delta{}, 6)
		Expect(merged.Keywords).To(Equal([]string{"雨夜"}))
	})

	It("does not mutate the old state", func() {
		_ = model.MergeEventDelta(old, model.Delta{
			Events:        []model.Event{{ID: "evt-2", Title: "x", Summary: "y (#4-5)"}},
			ArcUpdates:    []model.ArcUpdate{{Name: "复仇", Moment: "新时刻"}},
			NewCharacters: []string{"Bob"},
			Keywords:      []string{"new"},
		}, 6)

		Expect(old.Events).To(HaveLen(1))
		Expect(old.Characters).To(Equal([]string{"Alice"}))
		Expect(old.Arcs[0].Moments).To(HaveLen(1))
		Expect(old.Keywords).To(Equal([]string{"雨夜"}))
	})
})

var _ = Describe("NextEventID", func() {
	It("returns one past the highest evt-N", func() {
		events := []model.Event{{ID: "evt-3"}, {ID: "evt-7"}, {ID: "bogus"}}
		Expect(model.NextEventID(events)).To(Equal(8))
	})

	It("starts at 1 for an empty list", func() {
		Expect(model.NextEventID(nil)).To(Equal(1))
	})
})
