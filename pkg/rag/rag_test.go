package rag_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/folio/pkg/rag"
)

var _ = Describe("CandidateSet", func() {
	It("sorts by similarity descending and keeps store order for ties", func() {
		cs := rag.CandidateSet{
			{ID: "a", SimilarityScore: 0.5},
			{ID: "b", SimilarityScore: 0.9},
			{ID: "c", SimilarityScore: 0.5},
			{ID: "d", SimilarityScore: 0.7},
			{ID: "e", SimilarityScore: 0.5},
		}
		cs.SortBySimilarity()
		Expect(cs.IDs()).To(Equal([]string{"b", "d", "a", "c", "e"}))
	})

	It("returns the top n without going out of range", func() {
		cs := rag.CandidateSet{{ID: "a"}, {ID: "b"}}
		Expect(cs.Top(1).IDs()).To(Equal([]string{"a"}))
		Expect(cs.Top(5).IDs()).To(Equal([]string{"a", "b"}))
		Expect(cs.Top(0)).To(BeEmpty())
	})

	It("resolves a selection in selection order and skips unknown ids", func() {
		cs := rag.CandidateSet{{ID: "a"}, {ID: "b"}, {ID: "c"}}
		sel := rag.Selection{ChunkIDs: []string{"c", "zzz", "a"}}
		Expect(sel.Chunks(cs).IDs()).To(Equal([]string{"c", "a"}))
	})
})

var _ = Describe("History", func() {
	It("clones without sharing the backing array", func() {
		h := rag.History{{Role: rag.RoleUser, Content: "hi"}}
		c := h.Clone()
		c[0].Content = "changed"
		Expect(h[0].Content).To(Equal("hi"))
	})

	It("fingerprints only the trailing window", func() {
		a := rag.History{
			{Role: rag.RoleUser, Content: "old question"},
			{Role: rag.RoleAssistant, Content: "old answer"},
			{Role: rag.RoleUser, Content: "recent"},
		}
		b := rag.History{
			{Role: rag.RoleUser, Content: "something else"},
			{Role: rag.RoleAssistant, Content: "old answer"},
			{Role: rag.RoleUser, Content: "recent"},
		}
		Expect(a.Fingerprint(2)).To(Equal(b.Fingerprint(2)))
		Expect(a.Fingerprint(3)).NotTo(Equal(b.Fingerprint(3)))
	})

	It("ignores case and spacing differences", func() {
		a := rag.History{{Role: rag.RoleUser, Content: "Qual  o preço?"}}
		b := rag.History{{Role: rag.RoleUser, Content: "qual o preço? "}}
		Expect(a.Fingerprint(4)).To(Equal(b.Fingerprint(4)))
	})
})

var _ = Describe("NormalizeText", func() {
	It("lowercases and collapses whitespace", func() {
		Expect(rag.NormalizeText("  Qual O\tPreço  ")).To(Equal("qual o preço"))
	})
})
