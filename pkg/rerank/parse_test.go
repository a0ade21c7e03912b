package rerank_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/folio/pkg/rerank"
)

var _ = Describe("Parse", func() {
	DescribeTable("accepts judge output",
		func(output string, indices []int, justification string) {
			res := rerank.Parse(output, 4)
			Expect(res).To(BeAssignableToTypeOf(rerank.Parsed{}))

			parsed := res.(rerank.Parsed)
			Expect(parsed.Indices).To(Equal(indices))
			Expect(parsed.Justification).To(Equal(justification))
		},
		Entry("json object",
			`{"selected": [2, 1], "justification": "Page 2 lists the price."}`,
			[]int{1, 0}, "Page 2 lists the price."),
		Entry("json in a markdown fence",
			"```json\n{\"selected\": [3], \"justification\": \"menu\"}\n```",
			[]int{2}, "menu"),
		Entry("json with string numbers",
			`{"Selected": ["1", "4"], "justification": "both"}`,
			[]int{0, 3}, "both"),
		Entry("json with a portuguese key",
			`{"páginas_selecionadas": "2, 3", "justificativa": "preço e combo"}`,
			[]int{1, 2}, "preço e combo"),
		Entry("labelled lines",
			"Selected: 2, 4\nJustification: price table",
			[]int{1, 3}, "price table"),
		Entry("portuguese labelled lines",
			"Páginas_Selecionadas: [1, 3]\nJustificativa: contém o preço",
			[]int{0, 2}, "contém o preço"),
		Entry("drops duplicates and out of range numbers",
			`{"selected": [2, 2, 0, 9, 4]}`,
			[]int{1, 3}, "No justification provided."),
	)

	DescribeTable("rejects unusable output",
		func(output string) {
			Expect(rerank.Parse(output, 4)).To(BeAssignableToTypeOf(rerank.ParseFailed{}))
		},
		Entry("empty", "   "),
		Entry("prose", "I think the second page is best."),
		Entry("json without a selection", `{"answer": "page 2"}`),
		Entry("only invalid numbers", `{"selected": [0, 7]}`),
		Entry("empty selection", "selected: none"),
	)

	It("explains failures", func() {
		res := rerank.Parse("garbage", 2)
		failed, ok := res.(rerank.ParseFailed)
		Expect(ok).To(BeTrue())
		Expect(failed.Reason).NotTo(BeEmpty())
	})
})
