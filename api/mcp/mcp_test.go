package mcp_test

import (
	"context"
	"encoding/json"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/folio/api/mcp"
	"github.com/papercomputeco/folio/pkg/logger"
	"github.com/papercomputeco/folio/pkg/memory"
	"github.com/papercomputeco/folio/pkg/memory/local"
	"github.com/papercomputeco/folio/pkg/pipeline"
	"github.com/papercomputeco/folio/pkg/rag"
	testutils "github.com/papercomputeco/folio/pkg/utils/test"
)

// connect wires an in-memory client session to server.
func connect(ctx context.Context, server *mcp.Server) *sdk.ClientSession {
	clientTransport, serverTransport := sdk.NewInMemoryTransports()

	ss, err := server.MCPServer().Connect(ctx, serverTransport, nil)
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(ss.Close)

	client := sdk.NewClient(&sdk.Implementation{Name: "folio-test", Version: "v0.0.0"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(cs.Close)
	return cs
}

func textOf(res *sdk.CallToolResult) string {
	Expect(res.Content).NotTo(BeEmpty())
	text, ok := res.Content[0].(*sdk.TextContent)
	Expect(ok).To(BeTrue())
	return text.Text
}

var _ = Describe("MCP Server", func() {
	var (
		answerer    *testutils.StubAnswerer
		transformer *testutils.StubTransformer
		mem         *local.Driver
		cfg         mcp.Config
		ctx         context.Context
	)

	BeforeEach(func() {
		answerer = testutils.NewStubAnswerer("A pizza de calabresa custa R$ 42,00.")
		transformer = &testutils.StubTransformer{Prefix: "standalone: "}
		mem = local.NewDriver(memory.Limits{})
		cfg = mcp.Config{
			Answerer:    answerer,
			Transformer: transformer,
			Memory:      mem,
			Logger:      logger.Nop(),
		}
		ctx = context.Background()
	})

	Describe("NewServer", func() {
		It("returns an error when answerer is nil", func() {
			cfg.Answerer = nil
			_, err := mcp.NewServer(cfg)
			Expect(err).To(MatchError(ContainSubstring("answerer is required")))
		})

		It("returns an error when transformer is nil", func() {
			cfg.Transformer = nil
			_, err := mcp.NewServer(cfg)
			Expect(err).To(MatchError(ContainSubstring("transformer is required")))
		})

		It("returns an error when logger is nil", func() {
			cfg.Logger = nil
			_, err := mcp.NewServer(cfg)
			Expect(err).To(MatchError(ContainSubstring("logger is required")))
		})

		It("returns an HTTP handler", func() {
			server, err := mcp.NewServer(cfg)
			Expect(err).NotTo(HaveOccurred())
			Expect(server.Handler()).NotTo(BeNil())
		})

		It("builds an empty server in noop mode", func() {
			server, err := mcp.NewServer(mcp.Config{Noop: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(server.Handler()).NotTo(BeNil())
		})
	})

	Describe("tools", func() {
		var session *sdk.ClientSession

		JustBeforeEach(func() {
			server, err := mcp.NewServer(cfg)
			Expect(err).NotTo(HaveOccurred())
			session = connect(ctx, server)
		})

		It("lists the answer, transform and session_history tools", func() {
			res, err := session.ListTools(ctx, nil)
			Expect(err).NotTo(HaveOccurred())

			names := make([]string, 0, len(res.Tools))
			for _, t := range res.Tools {
				names = append(names, t.Name)
			}
			Expect(names).To(ConsistOf("answer", "transform", "session_history"))
		})

		Context("without memory", func() {
			BeforeEach(func() {
				cfg.Memory = nil
			})

			It("omits session_history", func() {
				res, err := session.ListTools(ctx, nil)
				Expect(err).NotTo(HaveOccurred())
				Expect(res.Tools).To(HaveLen(2))
			})
		})

		Describe("answer", func() {
			It("answers and cites pages", func() {
				res, err := session.CallTool(ctx, &sdk.CallToolParams{
					Name:      "answer",
					Arguments: map[string]any{"query": "Quanto custa a pizza de calabresa?"},
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(res.IsError).To(BeFalse())

				var out mcp.AnswerOutput
				Expect(json.Unmarshal([]byte(textOf(res)), &out)).To(Succeed())
				Expect(out.Answer).To(ContainSubstring("R$ 42,00"))
				Expect(out.Pages).To(ConsistOf(rag.Page{DocumentName: "cardapio.pdf", PageNumber: 3}))
				Expect(out.StandaloneQuery).To(Equal("Quanto custa a pizza de calabresa?"))
			})

			It("uses and extends the session history", func() {
				Expect(memory.Record(ctx, mem, "s1", "Tem pizza?", "Sim.")).To(Succeed())

				res, err := session.CallTool(ctx, &sdk.CallToolParams{
					Name:      "answer",
					Arguments: map[string]any{"query": "E a de calabresa?", "session_id": "s1"},
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(res.IsError).To(BeFalse())

				Expect(answerer.Requests()[0].History).To(HaveLen(2))

				h, err := mem.History(ctx, "s1")
				Expect(err).NotTo(HaveOccurred())
				Expect(h).To(HaveLen(4))
			})

			It("reports an empty query as a tool error", func() {
				res, err := session.CallTool(ctx, &sdk.CallToolParams{
					Name:      "answer",
					Arguments: map[string]any{"query": "  "},
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(res.IsError).To(BeTrue())
				Expect(textOf(res)).To(Equal("query is required"))
				Expect(answerer.Requests()).To(BeEmpty())
			})

			It("reports pipeline failures with their kind and stage", func() {
				answerer.Err = &pipeline.Error{
					Stage: pipeline.StateSearching,
					Kind:  pipeline.KindRetrievalUnavailable,
					Err:   rag.ErrRetrievalUnavailable,
				}

				res, err := session.CallTool(ctx, &sdk.CallToolParams{
					Name:      "answer",
					Arguments: map[string]any{"query": "Qual o horário?"},
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(res.IsError).To(BeTrue())
				Expect(textOf(res)).To(ContainSubstring("retrieval_unavailable failed during searching"))
			})

			It("reports synthesis failures as tool errors", func() {
				answerer.Err = &pipeline.Error{
					Stage: pipeline.StateSynthesizing,
					Kind:  pipeline.KindSynthesisFailed,
					Err:   rag.ErrSynthesisFailed,
				}

				res, err := session.CallTool(ctx, &sdk.CallToolParams{
					Name:      "answer",
					Arguments: map[string]any{"query": "Qual o horário?"},
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(res.IsError).To(BeTrue())
				Expect(textOf(res)).To(ContainSubstring("synthesis_failed failed during synthesizing"))
			})
		})

		Describe("transform", func() {
			It("rewrites each fragment in order", func() {
				res, err := session.CallTool(ctx, &sdk.CallToolParams{
					Name: "transform",
					Arguments: map[string]any{
						"fragments": []string{"e a de frango?", "e a bebida?"},
						"history": []map[string]string{
							{"role": "user", "content": "Quanto custa a pizza de calabresa?"},
						},
					},
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(res.IsError).To(BeFalse())

				var out mcp.TransformOutput
				Expect(json.Unmarshal([]byte(textOf(res)), &out)).To(Succeed())
				Expect(out.Queries).To(Equal([]rag.StandaloneQuery{
					{Text: "standalone: e a de frango?", WasRewritten: true},
					{Text: "standalone: e a bebida?", WasRewritten: true},
				}))
				Expect(transformer.Histories()[0]).To(HaveLen(1))
			})

			It("rejects blank fragments", func() {
				res, err := session.CallTool(ctx, &sdk.CallToolParams{
					Name:      "transform",
					Arguments: map[string]any{"fragments": []string{"ok", " "}},
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(res.IsError).To(BeTrue())
				Expect(textOf(res)).To(Equal("fragment 1 is empty"))
			})
		})

		Describe("session_history", func() {
			It("returns the stored turns", func() {
				Expect(memory.Record(ctx, mem, "s1", "Tem pizza?", "Sim.")).To(Succeed())

				res, err := session.CallTool(ctx, &sdk.CallToolParams{
					Name:      "session_history",
					Arguments: map[string]any{"session_id": "s1"},
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(res.IsError).To(BeFalse())

				var out mcp.SessionHistoryOutput
				Expect(json.Unmarshal([]byte(textOf(res)), &out)).To(Succeed())
				Expect(out.Turns).To(Equal([]rag.Turn{
					{Role: rag.RoleUser, Content: "Tem pizza?"},
					{Role: rag.RoleAssistant, Content: "Sim."},
				}))
			})

			It("reports a missing session_id as a tool error", func() {
				res, err := session.CallTool(ctx, &sdk.CallToolParams{
					Name:      "session_history",
					Arguments: map[string]any{"session_id": ""},
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(res.IsError).To(BeTrue())
				Expect(textOf(res)).To(Equal("session_id is required"))
			})
		})
	})
})
