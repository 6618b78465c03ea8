package inmemory_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/reveriehq/reverie/pkg/model"
	"github.com/reveriehq/reverie/pkg/store/inmemory"
)

var _ = Describe("Driver", func() {
	var (
		d   *inmemory.Driver
		ctx context.Context
	)

	const chat = "chat-1"

	BeforeEach(func() {
		d = inmemory.NewDriver()
		ctx = context.Background()
	})

	Describe("atoms", func() {
		BeforeEach(func() {
			Expect(d.PutAtoms(ctx, chat, []model.Atom{
				{AtomID: "a-3", Floor: 3, Semantic: "three"},
				{AtomID: "a-1", Floor: 1, Semantic: "one"},
				{AtomID: "a-2", Floor: 2, Semantic: "two"},
			})).To(Succeed())
		})

		It("returns atoms floor ascending", func() {
			atoms, err := d.Atoms(ctx, chat)
			Expect(err).NotTo(HaveOccurred())
			Expect(atoms).To(HaveLen(3))
			Expect(atoms[0].Floor).To(Equal(1))
			Expect(atoms[2].Floor).To(Equal(3))
		})

		It("queries a floor range inclusively", func() {
			atoms, err := d.AtomsInRange(ctx, chat, 2, 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(atoms).To(HaveLen(2))
		})

		It("replaces an atom with the same id", func() {
			Expect(d.PutAtoms(ctx, chat, []model.Atom{
				{AtomID: "a-1", Floor: 1, Semantic: "updated"},
			})).To(Succeed())

			atoms, err := d.Atoms(ctx, chat)
			Expect(err).NotTo(HaveOccurred())
			Expect(atoms).To(HaveLen(3))
			Expect(atoms[0].Semantic).To(Equal("updated"))
		})

		It("deletes atoms from a floor boundary", func() {
			Expect(d.DeleteAtomsFrom(ctx, chat, 2)).To(Succeed())
			atoms, err := d.Atoms(ctx, chat)
			Expect(err).NotTo(HaveOccurred())
			Expect(atoms).To(HaveLen(1))
			Expect(atoms[0].Floor).To(Equal(1))
		})

		It("deletes atoms at exactly one floor", func() {
			Expect(d.DeleteAtomsAt(ctx, chat, 2)).To(Succeed())
			atoms, err := d.Atoms(ctx, chat)
			Expect(err).NotTo(HaveOccurred())
			Expect(atoms).To(HaveLen(2))
		})

		It("isolates chats", func() {
			atoms, err := d.Atoms(ctx, "other")
			Expect(err).NotTo(HaveOccurred())
			Expect(atoms).To(BeEmpty())
		})
	})

	Describe("chunks", func() {
		BeforeEach(func() {
			Expect(d.PutChunks(ctx, chat, []model.Chunk{
				{ChunkID: "c-2-0", Floor: 2, ChunkIdx: 0, IsUser: true, Text: "u"},
				{ChunkID: "c-2-1", Floor: 2, ChunkIdx: 1, Text: "a"},
				{ChunkID: "c-1-0", Floor: 1, ChunkIdx: 0, Text: "x"},
			})).To(Succeed())
		})

		It("orders by floor then chunk index", func() {
			chunks, err := d.Chunks(ctx, chat)
			Expect(err).NotTo(HaveOccurred())
			Expect(chunks[0].ChunkID).To(Equal("c-1-0"))
			Expect(chunks[1].ChunkID).To(Equal("c-2-0"))
			Expect(chunks[2].ChunkID).To(Equal("c-2-1"))
		})

		It("returns one floor's chunks", func() {
			chunks, err := d.ChunksAt(ctx, chat, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(chunks).To(HaveLen(2))
		})

		It("deletes one floor's chunks", func() {
			Expect(d.DeleteChunksAt(ctx, chat, 2)).To(Succeed())
			chunks, err := d.Chunks(ctx, chat)
			Expect(err).NotTo(HaveOccurred())
			Expect(chunks).To(HaveLen(1))
		})
	})

	Describe("summary state and facts", func() {
		It("round-trips the summary state", func() {
			state := model.SummaryState{
				Events:     []model.Event{{ID: "evt-1", Title: "t", Summary: "s (#0-2)"}},
				Characters: []string{"Alice"},
			}
			Expect(d.PutSummaryState(ctx, chat, state)).To(Succeed())

			got, err := d.SummaryState(ctx, chat)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Events).To(HaveLen(1))
			Expect(got.Characters).To(Equal([]string{"Alice"}))
		})

		It("snapshots state against later caller mutation", func() {
			state := model.SummaryState{Characters: []string{"Alice"}}
			Expect(d.PutSummaryState(ctx, chat, state)).To(Succeed())
			state.Characters[0] = "Mallory"

			got, err := d.SummaryState(ctx, chat)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Characters[0]).To(Equal("Alice"))
		})

		It("replaces facts wholesale", func() {
			Expect(d.PutFacts(ctx, chat, []model.Fact{{ID: "f-1", S: "a", P: "b", O: "c"}})).To(Succeed())
			Expect(d.PutFacts(ctx, chat, []model.Fact{{ID: "f-2", S: "x", P: "y", O: "z"}})).To(Succeed())

			facts, err := d.Facts(ctx, chat)
			Expect(err).NotTo(HaveOccurred())
			Expect(facts).To(HaveLen(1))
			Expect(facts[0].ID).To(Equal("f-2"))
		})
	})

	Describe("meta and checkpoints", func() {
		It("returns the never-summarized zero meta for unknown chats", func() {
			meta, err := d.Meta(ctx, "unknown")
			Expect(err).NotTo(HaveOccurred())
			Expect(meta.LastSummarizedFloor).To(Equal(-1))
		})

		It("round-trips meta", func() {
			Expect(d.PutMeta(ctx, chat, model.ChatMeta{LastSummarizedFloor: 24, VectorFingerprint: "fp"})).To(Succeed())
			meta, err := d.Meta(ctx, chat)
			Expect(err).NotTo(HaveOccurred())
			Expect(meta.LastSummarizedFloor).To(Equal(24))
			Expect(meta.VectorFingerprint).To(Equal("fp"))
		})

		It("appends and truncates checkpoints", func() {
			Expect(d.AppendCheckpoint(ctx, chat, model.Checkpoint{EndFloor: 10})).To(Succeed())
			Expect(d.AppendCheckpoint(ctx, chat, model.Checkpoint{EndFloor: 24})).To(Succeed())
			Expect(d.AppendCheckpoint(ctx, chat, model.Checkpoint{EndFloor: 30})).To(Succeed())

			Expect(d.TruncateCheckpoints(ctx, chat, 24)).To(Succeed())

			cps, err := d.Checkpoints(ctx, chat)
			Expect(err).NotTo(HaveOccurred())
			Expect(cps).To(HaveLen(2))
			Expect(cps[1].EndFloor).To(Equal(24))
		})
	})

	Describe("Reset", func() {
		It("drops all state for the chat", func() {
			Expect(d.PutAtoms(ctx, chat, []model.Atom{{AtomID: "a", Floor: 0}})).To(Succeed())
			Expect(d.PutMeta(ctx, chat, model.ChatMeta{LastSummarizedFloor: 5})).To(Succeed())

			Expect(d.Reset(ctx, chat)).To(Succeed())

			atoms, err := d.Atoms(ctx, chat)
			Expect(err).NotTo(HaveOccurred())
			Expect(atoms).To(BeEmpty())

			meta, err := d.Meta(ctx, chat)
			Expect(err).NotTo(HaveOccurred())
			Expect(meta.LastSummarizedFloor).To(Equal(-1))
		})
	})
})
