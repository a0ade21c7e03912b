package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gofiber/fiber/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/folio/pkg/logger"
	"github.com/papercomputeco/folio/pkg/memory"
	"github.com/papercomputeco/folio/pkg/memory/local"
	"github.com/papercomputeco/folio/pkg/pipeline"
	"github.com/papercomputeco/folio/pkg/rag"
	testutils "github.com/papercomputeco/folio/pkg/utils/test"
)

func jsonRequest(method, path string, body any) *http.Request {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		Expect(err).NotTo(HaveOccurred())
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, path, reader)
	Expect(err).NotTo(HaveOccurred())
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decode[T any](resp *http.Response) T {
	var out T
	body, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	Expect(json.Unmarshal(body, &out)).To(Succeed(), string(body))
	return out
}

var _ = Describe("Server", func() {
	var (
		answerer    *testutils.StubAnswerer
		transformer *testutils.StubTransformer
		mem         *local.Driver
		cfg         Config
	)

	BeforeEach(func() {
		answerer = testutils.NewStubAnswerer("O hambúrguer de frango custa R$ 25,90.")
		transformer = &testutils.StubTransformer{Prefix: "standalone: "}
		mem = local.NewDriver(memory.Limits{})
		cfg = Config{
			ListenAddr:  ":0",
			Answerer:    answerer,
			Transformer: transformer,
			Memory:      mem,
			Logger:      logger.Nop(),
		}
	})

	newServer := func() *Server {
		s, err := NewServer(cfg)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(s.Shutdown)
		return s
	}

	Describe("NewServer", func() {
		It("requires an answerer", func() {
			cfg.Answerer = nil
			_, err := NewServer(cfg)
			Expect(err).To(MatchError("answerer is required"))
		})

		It("requires a transformer", func() {
			cfg.Transformer = nil
			_, err := NewServer(cfg)
			Expect(err).To(MatchError("transformer is required"))
		})

		It("requires a logger", func() {
			cfg.Logger = nil
			_, err := NewServer(cfg)
			Expect(err).To(MatchError("logger is required"))
		})
	})

	Describe("GET /ping", func() {
		It("returns pong", func() {
			resp, err := newServer().app.Test(jsonRequest(http.MethodGet, "/ping", nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			Expect(decode[string](resp)).To(Equal("pong"))
		})
	})

	Describe("GET /health", func() {
		It("returns 200 when healthy or degraded", func() {
			s := newServer()
			for _, status := range []string{pipeline.StatusHealthy, pipeline.StatusDegraded} {
				answerer.Status = status
				resp, err := s.app.Test(jsonRequest(http.MethodGet, "/health", nil))
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
				Expect(decode[pipeline.Health](resp).Status).To(Equal(status))
			}
		})

		It("returns 503 when unhealthy", func() {
			answerer.Status = pipeline.StatusUnhealthy
			resp, err := newServer().app.Test(jsonRequest(http.MethodGet, "/health", nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusServiceUnavailable))
		})
	})

	Describe("GET /v1/stats", func() {
		It("returns the pipeline config", func() {
			resp, err := newServer().app.Test(jsonRequest(http.MethodGet, "/v1/stats", nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			stats := decode[pipeline.Stats](resp)
			Expect(stats.Config.MaxSelected).To(Equal(2))
		})
	})

	Describe("POST /v1/answer", func() {
		It("returns the answer with its cited pages", func() {
			resp, err := newServer().app.Test(jsonRequest(http.MethodPost, "/v1/answer", AnswerRequest{
				Query: "  Qual o preço do hambúrguer de frango?  ",
			}))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			out := decode[AnswerResponse](resp)
			Expect(out.AnswerText).To(ContainSubstring("R$ 25,90"))
			Expect(out.SelectedPages).To(HaveLen(1))
			Expect(out.SelectedPages[0].PageNumber).To(Equal(3))

			reqs := answerer.Requests()
			Expect(reqs).To(HaveLen(1))
			Expect(reqs[0].Query).To(Equal("Qual o preço do hambúrguer de frango?"))
			Expect(reqs[0].Config).To(BeNil())
		})

		It("rejects an empty query", func() {
			resp, err := newServer().app.Test(jsonRequest(http.MethodPost, "/v1/answer", AnswerRequest{Query: "   "}))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))

			body := decode[ErrorResponse](resp)
			Expect(body.Error).To(Equal("query is required"))
			Expect(body.Kind).To(Equal(string(pipeline.KindInvalidRequest)))
			Expect(answerer.Requests()).To(BeEmpty())
		})

		It("rejects turns with unknown roles", func() {
			resp, err := newServer().app.Test(jsonRequest(http.MethodPost, "/v1/answer", AnswerRequest{
				Query:   "e o de carne?",
				History: []rag.Turn{{Role: "system", Content: "x"}},
			}))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
			Expect(decode[ErrorResponse](resp).Error).To(ContainSubstring("role must be one of"))
		})

		It("rejects malformed bodies", func() {
			req, err := http.NewRequest(http.MethodPost, "/v1/answer", bytes.NewReader([]byte("{not json")))
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Content-Type", "application/json")

			resp, err := newServer().app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})

		It("applies per request options over the current config", func() {
			maxSelected := 1
			rerank := false
			resp, err := newServer().app.Test(jsonRequest(http.MethodPost, "/v1/answer", AnswerRequest{
				Query:   "Qual o preço?",
				Options: &Options{MaxSelected: &maxSelected, EnableReranking: &rerank},
			}))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			reqs := answerer.Requests()
			Expect(reqs[0].Config).NotTo(BeNil())
			Expect(reqs[0].Config.MaxSelected).To(Equal(1))
			Expect(reqs[0].Config.EnableReranking).To(BeFalse())
			Expect(reqs[0].Config.MaxCandidates).To(Equal(10))
		})

		Context("with a session", func() {
			It("loads the session history and records the new turn pair", func() {
				ctx := context.Background()
				Expect(memory.Record(ctx, mem, "s1", "Vocês têm hambúrguer?", "Sim, três opções.")).To(Succeed())

				resp, err := newServer().app.Test(jsonRequest(http.MethodPost, "/v1/answer", AnswerRequest{
					Query:     "Quanto custa o de frango?",
					SessionID: "s1",
				}))
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
				Expect(decode[AnswerResponse](resp).SessionID).To(Equal("s1"))

				reqs := answerer.Requests()
				Expect(reqs[0].History).To(HaveLen(2))
				Expect(reqs[0].SessionID).To(Equal("s1"))

				h, err := mem.History(ctx, "s1")
				Expect(err).NotTo(HaveOccurred())
				Expect(h).To(HaveLen(4))
				Expect(h[2]).To(Equal(rag.Turn{Role: rag.RoleUser, Content: "Quanto custa o de frango?"}))
				Expect(h[3].Role).To(Equal(rag.RoleAssistant))
			})

			It("prefers an explicit history over the stored one", func() {
				ctx := context.Background()
				Expect(memory.Record(ctx, mem, "s1", "old", "old answer")).To(Succeed())

				explicit := []rag.Turn{{Role: rag.RoleUser, Content: "Tem pizza?"}}
				_, err := newServer().app.Test(jsonRequest(http.MethodPost, "/v1/answer", AnswerRequest{
					Query:     "E a de calabresa?",
					History:   explicit,
					SessionID: "s1",
				}))
				Expect(err).NotTo(HaveOccurred())
				Expect(answerer.Requests()[0].History).To(Equal(rag.History(explicit)))
			})

			It("does not record failed answers", func() {
				answerer.Err = &pipeline.Error{
					Stage: pipeline.StateSearching,
					Kind:  pipeline.KindRetrievalUnavailable,
					Err:   rag.ErrRetrievalUnavailable,
				}

				_, err := newServer().app.Test(jsonRequest(http.MethodPost, "/v1/answer", AnswerRequest{
					Query:     "Qual o preço?",
					SessionID: "s2",
				}))
				Expect(err).NotTo(HaveOccurred())

				h, err := mem.History(context.Background(), "s2")
				Expect(err).NotTo(HaveOccurred())
				Expect(h).To(BeEmpty())
			})
		})

		DescribeTable("maps pipeline failures to status codes",
			func(kind pipeline.Kind, stage pipeline.State, status int) {
				answerer.Err = &pipeline.Error{Stage: stage, Kind: kind, Err: errors.New("boom")}

				resp, err := newServer().app.Test(jsonRequest(http.MethodPost, "/v1/answer", AnswerRequest{Query: "q"}))
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(status))

				body := decode[ErrorResponse](resp)
				Expect(body.Kind).To(Equal(string(kind)))
				Expect(body.Stage).To(Equal(string(stage)))
				Expect(body.Error).To(Equal("boom"))
			},
			Entry("retrieval", pipeline.KindRetrievalUnavailable, pipeline.StateSearching, fiber.StatusServiceUnavailable),
			Entry("synthesis", pipeline.KindSynthesisFailed, pipeline.StateSynthesizing, fiber.StatusBadGateway),
			Entry("cancelled", pipeline.KindCancelled, pipeline.StateReranking, fiber.StatusGatewayTimeout),
			Entry("invalid", pipeline.KindInvalidRequest, pipeline.StateIdle, fiber.StatusBadRequest),
		)

		It("reports unclassified errors as internal", func() {
			answerer.Err = errors.New("unexpected")

			resp, err := newServer().app.Test(jsonRequest(http.MethodPost, "/v1/answer", AnswerRequest{Query: "q"}))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusInternalServerError))
			Expect(decode[ErrorResponse](resp).Kind).To(Equal(KindInternal))
		})
	})

	Describe("POST /v1/transform", func() {
		It("rewrites every fragment in order", func() {
			resp, err := newServer().app.Test(jsonRequest(http.MethodPost, "/v1/transform", TransformRequest{
				Fragments: []string{"e o de carne?", "e a batata?"},
				History:   []rag.Turn{{Role: rag.RoleUser, Content: "Quanto custa o hambúrguer de frango?"}},
			}))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			out := decode[TransformResponse](resp)
			Expect(out.Queries).To(HaveLen(2))
			Expect(out.Queries[0].Text).To(Equal("standalone: e o de carne?"))
			Expect(out.Queries[1].Text).To(Equal("standalone: e a batata?"))
			Expect(transformer.Histories()[0]).To(HaveLen(1))
		})

		It("uses the session history when none is given", func() {
			Expect(memory.Record(context.Background(), mem, "s1", "q", "a")).To(Succeed())

			_, err := newServer().app.Test(jsonRequest(http.MethodPost, "/v1/transform", TransformRequest{
				Fragments: []string{"e o outro?"},
				SessionID: "s1",
			}))
			Expect(err).NotTo(HaveOccurred())
			Expect(transformer.Histories()[0]).To(HaveLen(2))
		})

		It("rejects empty batches and blank fragments", func() {
			s := newServer()

			resp, err := s.app.Test(jsonRequest(http.MethodPost, "/v1/transform", TransformRequest{}))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))

			resp, err = s.app.Test(jsonRequest(http.MethodPost, "/v1/transform", TransformRequest{
				Fragments: []string{"ok", ""},
			}))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})
	})

	Describe("authentication", func() {
		BeforeEach(func() {
			cfg.APIKey = "secret"
		})

		It("rejects /v1 requests without the bearer token", func() {
			resp, err := newServer().app.Test(jsonRequest(http.MethodGet, "/v1/stats", nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusUnauthorized))
			Expect(decode[ErrorResponse](resp).Kind).To(Equal(KindUnauthorized))
		})

		It("rejects a wrong token", func() {
			req := jsonRequest(http.MethodGet, "/v1/stats", nil)
			req.Header.Set("Authorization", "Bearer nope")

			resp, err := newServer().app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusUnauthorized))
		})

		It("accepts the configured token", func() {
			req := jsonRequest(http.MethodGet, "/v1/stats", nil)
			req.Header.Set("Authorization", "Bearer secret")

			resp, err := newServer().app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
		})

		It("leaves /ping and /health open", func() {
			s := newServer()
			for _, path := range []string{"/ping", "/health"} {
				resp, err := s.app.Test(jsonRequest(http.MethodGet, path, nil))
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			}
		})

		It("guards the MCP endpoint", func() {
			cfg.MCP = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			})

			resp, err := newServer().app.Test(jsonRequest(http.MethodPost, "/mcp", map[string]any{}))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusUnauthorized))
		})
	})

	Describe("rate limiting", func() {
		It("returns 429 with Retry-After once the burst is spent", func() {
			cfg.RateLimit = 0.5
			cfg.Burst = 2
			s := newServer()

			for range 2 {
				resp, err := s.app.Test(jsonRequest(http.MethodGet, "/v1/stats", nil))
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			}

			resp, err := s.app.Test(jsonRequest(http.MethodGet, "/v1/stats", nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusTooManyRequests))
			Expect(resp.Header.Get("Retry-After")).To(Equal("2"))
		})
	})

	Describe("MCP mount", func() {
		It("forwards /mcp to the handler", func() {
			cfg.MCP = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusAccepted)
				_, _ = w.Write([]byte(r.URL.Path))
			})

			resp, err := newServer().app.Test(jsonRequest(http.MethodPost, "/mcp", map[string]any{}))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusAccepted))
		})
	})
})

var _ = Describe("RateLimiter", func() {
	It("tracks clients independently", func() {
		rl := NewRateLimiter(1, 1)
		DeferCleanup(rl.Close)

		Expect(rl.Allow("10.0.0.1")).To(BeTrue())
		Expect(rl.Allow("10.0.0.1")).To(BeFalse())
		Expect(rl.Allow("10.0.0.2")).To(BeTrue())
		Expect(rl.Clients()).To(Equal(2))
	})

	It("raises a zero burst to one", func() {
		rl := NewRateLimiter(1, 0)
		DeferCleanup(rl.Close)
		Expect(rl.Allow("a")).To(BeTrue())
	})
})
