package transform_test

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/folio/pkg/llm"
	"github.com/papercomputeco/folio/pkg/rag"
	"github.com/papercomputeco/folio/pkg/transform"
	testutils "github.com/papercomputeco/folio/pkg/utils/test"
)

var _ = Describe("Transformer", func() {
	var (
		model   *testutils.ScriptedLLM
		tr      *transform.Transformer
		history rag.History
		ctx     context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		model = testutils.NewScriptedLLM("Qual o preço do X-Burger no combo?")
		history = rag.History{
			{Role: rag.RoleUser, Content: "Qual o preço do X-Burger?"},
			{Role: rag.RoleAssistant, Content: "O X-Burger custa R$ 25,00."},
		}

		var err error
		tr, err = transform.New(transform.Config{Call: model.Call})
		Expect(err).NotTo(HaveOccurred())
	})

	It("requires a model caller", func() {
		_, err := transform.New(transform.Config{})
		Expect(err).To(HaveOccurred())
	})

	It("returns the raw text without history and makes no model call", func() {
		q := tr.Transform(ctx, "e no combo?", nil)

		Expect(q.Text).To(Equal("e no combo?"))
		Expect(q.WasRewritten).To(BeFalse())
		Expect(model.Calls()).To(BeZero())
	})

	It("skips self-contained queries", func() {
		q := tr.Transform(ctx, "Qual o preço do hambúrguer de frango?", history)

		Expect(q.WasRewritten).To(BeFalse())
		Expect(model.Calls()).To(BeZero())
	})

	It("rewrites follow-ups with the recent conversation", func() {
		q := tr.Transform(ctx, "e no combo?", history)

		Expect(q.Text).To(Equal("Qual o preço do X-Burger no combo?"))
		Expect(q.WasRewritten).To(BeTrue())

		reqs := model.Requests()
		Expect(reqs).To(HaveLen(1))
		Expect(reqs[0].Prompt).To(ContainSubstring("User: Qual o preço do X-Burger?"))
		Expect(reqs[0].Prompt).To(ContainSubstring("Assistant: O X-Burger custa R$ 25,00."))
		Expect(reqs[0].Prompt).To(ContainSubstring("Message: e no combo?"))
	})

	It("sends only the configured window with truncated turns", func() {
		tr, err := transform.New(transform.Config{Call: model.Call, HistoryWindow: 1, TurnChars: 5})
		Expect(err).NotTo(HaveOccurred())

		tr.Transform(ctx, "e isso?", history)

		prompt := model.Requests()[0].Prompt
		Expect(prompt).NotTo(ContainSubstring("User:"))
		Expect(prompt).To(ContainSubstring("Assistant: O X-B\n"))
	})

	DescribeTable("cleans labelled model output",
		func(output, expected string) {
			model.Outputs = []string{output}
			Expect(tr.Transform(ctx, "e isso?", history).Text).To(Equal(expected))
		},
		Entry("rag query label", "RAG Query: preço do combo", "preço do combo"),
		Entry("pergunta label", "Pergunta: preço do combo", "preço do combo"),
		Entry("wrapping quotes", `"preço do combo"`, "preço do combo"),
		Entry("label and quotes", `question: "combo price"`, "combo price"),
	)

	It("falls back to the raw text on model errors", func() {
		model.Err = llm.ErrGeneration

		q := tr.Transform(ctx, "e isso?", history)
		Expect(q.Text).To(Equal("e isso?"))
		Expect(q.WasRewritten).To(BeFalse())
	})

	It("falls back to the raw text on empty output", func() {
		model.Outputs = []string{`  ""  `}

		q := tr.Transform(ctx, "e isso?", history)
		Expect(q.Text).To(Equal("e isso?"))
		Expect(q.WasRewritten).To(BeFalse())
		Expect(tr.MemoLen()).To(BeZero())
	})

	It("falls back when the model times out", func() {
		model.Respond = func(llm.Request) (string, error) {
			return "", context.DeadlineExceeded
		}

		q := tr.Transform(ctx, "e isso?", history)
		Expect(q.WasRewritten).To(BeFalse())
	})

	It("memoizes successful rewrites per history", func() {
		first := tr.Transform(ctx, "e no combo?", history)
		second := tr.Transform(ctx, "  E no   combo? ", history)

		Expect(second).To(Equal(first))
		Expect(model.Calls()).To(Equal(1))
		Expect(tr.MemoLen()).To(Equal(1))

		other := append(history.Clone(), rag.Turn{Role: rag.RoleUser, Content: "e o de frango?"})
		tr.Transform(ctx, "e no combo?", other)
		Expect(model.Calls()).To(Equal(2))
	})

	It("does not memoize failures", func() {
		model.Err = errors.New("boom")
		tr.Transform(ctx, "e isso?", history)

		model.Err = nil
		q := tr.Transform(ctx, "e isso?", history)
		Expect(q.WasRewritten).To(BeTrue())
		Expect(model.Calls()).To(Equal(2))
	})

	It("does not modify the caller's history", func() {
		snapshot := history.Clone()
		tr.Transform(ctx, "e isso?", history)
		Expect(history).To(Equal(snapshot))
	})

	Describe("TransformBatch", func() {
		It("preserves fragment order and skips self-contained fragments", func() {
			model.Respond = func(req llm.Request) (string, error) {
				msg := req.Prompt[strings.LastIndex(req.Prompt, "Message: ")+len("Message: "):]
				msg = strings.TrimSuffix(msg, "\n\nRewritten question:")
				return "standalone " + msg, nil
			}

			fragments := []string{"e isso?", "Qual o preço do hambúrguer de frango?", "e o combo?"}
			out := tr.TransformBatch(ctx, fragments, history)

			Expect(out).To(HaveLen(3))
			Expect(out[0]).To(Equal(rag.StandaloneQuery{Text: "standalone e isso?", WasRewritten: true}))
			Expect(out[1]).To(Equal(rag.StandaloneQuery{Text: fragments[1], WasRewritten: false}))
			Expect(out[2]).To(Equal(rag.StandaloneQuery{Text: "standalone e o combo?", WasRewritten: true}))
			Expect(model.Calls()).To(Equal(2))
		})

		It("bounds concurrency", func() {
			var inflight, peak atomic.Int32
			model.Respond = func(llm.Request) (string, error) {
				n := inflight.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				inflight.Add(-1)
				return "rewritten", nil
			}

			tr, err := transform.New(transform.Config{Call: model.Call, Concurrency: 2})
			Expect(err).NotTo(HaveOccurred())

			fragments := []string{"e isso?", "e aquilo?", "e ele?", "e ela?", "e eles?"}
			out := tr.TransformBatch(ctx, fragments, history)

			Expect(out).To(HaveLen(5))
			Expect(peak.Load()).To(BeNumerically("<=", 2))
		})
	})
})
