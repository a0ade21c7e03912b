package rerank_test

import (
	"context"
	"errors"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/folio/pkg/rag"
	"github.com/papercomputeco/folio/pkg/rerank"
	testutils "github.com/papercomputeco/folio/pkg/utils/test"
)

var _ = Describe("Reranker", func() {
	var (
		judge      *testutils.ScriptedLLM
		reranker   *rerank.Reranker
		candidates rag.CandidateSet
		ctx        context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		judge = testutils.NewScriptedLLM(`{"selected": [3, 1], "justification": "Page 3 has the chicken burger price."}`)
		candidates = rag.CandidateSet{
			{ID: "c1", DocumentName: "cardapio.pdf", PageNumber: 1, SimilarityScore: 0.91, Content: "Hambúrgueres"},
			{ID: "c2", DocumentName: "cardapio.pdf", PageNumber: 2, SimilarityScore: 0.88, Content: strings.Repeat("a", 400)},
			{ID: "c3", DocumentName: "cardapio.pdf", PageNumber: 3, SimilarityScore: 0.80, Content: "Hambúrguer de frango R$ 22,00", ImageURL: "https://img/3.png"},
		}

		var err error
		reranker, err = rerank.New(rerank.Config{Call: judge.Call})
		Expect(err).NotTo(HaveOccurred())
	})

	It("requires a judge", func() {
		_, err := rerank.New(rerank.Config{})
		Expect(err).To(HaveOccurred())
	})

	It("returns the judge's selection in judge order", func() {
		sel := reranker.Rerank(ctx, "Qual o preço do hambúrguer de frango?", candidates, 2)

		Expect(sel.ChunkIDs).To(Equal([]string{"c3", "c1"}))
		Expect(sel.Justification).To(Equal("Page 3 has the chicken burger price."))
	})

	It("shows every candidate with a bounded preview", func() {
		reranker.Rerank(ctx, "preço", candidates, 2)

		reqs := judge.Requests()
		Expect(reqs).To(HaveLen(1))
		Expect(reqs[0].JSON).To(BeTrue())

		prompt := reqs[0].Prompt
		Expect(prompt).To(ContainSubstring("CANDIDATE 1: cardapio.pdf, page 1"))
		Expect(prompt).To(ContainSubstring("CANDIDATE 3: cardapio.pdf, page 3"))
		Expect(prompt).To(ContainSubstring("Similarity: 0.9100"))
		Expect(prompt).To(ContainSubstring("Page image: https://img/3.png"))
		Expect(prompt).To(ContainSubstring(strings.Repeat("a", 300) + "..."))
		Expect(prompt).NotTo(ContainSubstring(strings.Repeat("a", 301)))
		Expect(prompt).To(ContainSubstring("at most 2"))
	})

	It("cuts selections beyond the maximum", func() {
		judge.Outputs = []string{`{"selected": [2, 3, 1], "justification": "all"}`}

		sel := reranker.Rerank(ctx, "preço", candidates, 2)
		Expect(sel.ChunkIDs).To(Equal([]string{"c2", "c3"}))
	})

	It("falls back to the top candidates on garbage output", func() {
		judge.Outputs = []string{"I cannot decide."}

		sel := reranker.Rerank(ctx, "preço", candidates, 2)
		Expect(sel.ChunkIDs).To(Equal([]string{"c1", "c2"}))
		Expect(sel.Justification).To(Equal(rerank.FallbackJustification))
	})

	It("falls back when the judge fails", func() {
		judge.Err = errors.New("status 500")

		sel := reranker.Rerank(ctx, "preço", candidates, 2)
		Expect(sel.ChunkIDs).To(Equal([]string{"c1", "c2"}))
		Expect(sel.Justification).To(Equal(rerank.FallbackJustification))
	})

	It("selects a lone candidate without a model call", func() {
		sel := reranker.Rerank(ctx, "preço", candidates[:1], 2)

		Expect(sel.ChunkIDs).To(Equal([]string{"c1"}))
		Expect(sel.Justification).To(ContainSubstring("cardapio.pdf"))
		Expect(judge.Calls()).To(BeZero())
	})

	It("returns an empty selection for no candidates", func() {
		sel := reranker.Rerank(ctx, "preço", rag.CandidateSet{}, 2)

		Expect(sel.Len()).To(BeZero())
		Expect(judge.Calls()).To(BeZero())
	})

	It("always selects a subset of the candidates", func() {
		judge.Outputs = []string{`{"selected": [1, 2, 3, 4, 5], "justification": "x"}`}

		sel := reranker.Rerank(ctx, "preço", candidates, 3)
		Expect(sel.Len()).To(BeNumerically("<=", 3))
		for _, id := range sel.ChunkIDs {
			_, ok := candidates.Lookup(id)
			Expect(ok).To(BeTrue())
		}
	})
})
