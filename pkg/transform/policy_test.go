package transform_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/folio/pkg/rag"
	"github.com/papercomputeco/folio/pkg/transform"
)

var _ = Describe("Policy", func() {
	var (
		policy  transform.Policy
		history rag.History
	)

	BeforeEach(func() {
		policy = transform.DefaultPolicy()
		history = rag.History{
			{Role: rag.RoleUser, Content: "Qual o preço do X-Burger?"},
			{Role: rag.RoleAssistant, Content: "O X-Burger custa R$ 25,00."},
		}
	})

	It("never rewrites without history", func() {
		Expect(policy.NeedsRewrite("e isso?", nil)).To(BeFalse())
		Expect(policy.NeedsRewrite("it", rag.History{})).To(BeFalse())
	})

	DescribeTable("classifies follow-ups",
		func(text string, expected bool) {
			Expect(policy.NeedsRewrite(text, history)).To(Equal(expected))
		},
		Entry("marker word", "Quanto custa isso no combo?", true),
		Entry("accented marker ignores case", "E QUANTO AO DELE, tem bacon?", true),
		Entry("english marker", "Does it come with fries?", true),
		Entry("follow-up prefix", "e o de frango vem com salada", true),
		Entry("accented follow-up prefix", "Também servem sobremesa aos domingos?", true),
		Entry("unaccented follow-up prefix", "tambem servem sobremesa aos domingos?", true),
		Entry("english prefix", "What about the vegan option today?", true),
		Entry("short elliptical query", "preço?", true),
		Entry("self-contained question", "Qual o preço do hambúrguer de frango?", false),
		Entry("marker only as a substring", "Which items contain elastic packaging material?", false),
		Entry("self-contained english question", "What is the warranty period for the blender?", false),
		Entry("verb é is not a follow-up", "É possível pedir o hambúrguer de frango sem cebola?", false),
		Entry("leading é with a marker-free question", "É vegano o hambúrguer de frango do cardápio?", false),
	)

	It("treats punctuation-only text as self-contained", func() {
		Expect(policy.NeedsRewrite("???", history)).To(BeFalse())
	})

	It("honors a custom policy", func() {
		custom := transform.Policy{Markers: []string{"ditto"}}
		Expect(custom.NeedsRewrite("ditto for the second page", history)).To(BeTrue())
		Expect(custom.NeedsRewrite("is it", history)).To(BeFalse())
	})
})
