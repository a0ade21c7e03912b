package client_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/folio/api"
	"github.com/papercomputeco/folio/api/client"
	"github.com/papercomputeco/folio/pkg/logger"
	"github.com/papercomputeco/folio/pkg/pipeline"
	"github.com/papercomputeco/folio/pkg/rag"
	testutils "github.com/papercomputeco/folio/pkg/utils/test"
)

var _ = Describe("Client", func() {
	var (
		answerer *testutils.StubAnswerer
		ts       *httptest.Server
		ctx      context.Context
		apiKey   string
	)

	newClient := func(opts ...client.Option) *client.Client {
		c, err := client.New(ts.URL, opts...)
		Expect(err).NotTo(HaveOccurred())
		return c
	}

	BeforeEach(func() {
		ctx = context.Background()
		apiKey = ""
		answerer = testutils.NewStubAnswerer("Abrimos às 11h.")
	})

	JustBeforeEach(func() {
		server, err := api.NewServer(api.Config{
			Answerer:    answerer,
			Transformer: &testutils.StubTransformer{Prefix: "q: "},
			APIKey:      apiKey,
			Logger:      logger.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(server.Shutdown)

		ts = httptest.NewServer(server.Handler())
		DeferCleanup(ts.Close)
	})

	Describe("New", func() {
		It("rejects targets without a scheme", func() {
			_, err := client.New("localhost:8080")
			Expect(err).To(HaveOccurred())
		})
	})

	It("asks a question", func() {
		out, err := newClient().Answer(ctx, api.AnswerRequest{Query: "Que horas abre?", SessionID: "s1"})
		Expect(err).NotTo(HaveOccurred())
		Expect(out.AnswerText).To(Equal("Abrimos às 11h."))
		Expect(out.SessionID).To(Equal("s1"))
		Expect(out.SelectedPages).To(HaveLen(1))
	})

	It("transforms fragments", func() {
		out, err := newClient().Transform(ctx, api.TransformRequest{
			Fragments: []string{"e no domingo?"},
			History:   []rag.Turn{{Role: rag.RoleUser, Content: "Que horas abre?"}},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Queries).To(Equal([]rag.StandaloneQuery{{Text: "q: e no domingo?", WasRewritten: true}}))
	})

	It("reads stats", func() {
		out, err := newClient().Stats(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Config.MaxCandidates).To(Equal(pipeline.DefaultMaxCandidates))
	})

	It("returns the health report even when unhealthy", func() {
		answerer.Status = pipeline.StatusUnhealthy

		out, err := newClient().Health(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Status).To(Equal(pipeline.StatusUnhealthy))
	})

	It("surfaces pipeline failures as typed errors", func() {
		answerer.Err = &pipeline.Error{
			Stage: pipeline.StateSynthesizing,
			Kind:  pipeline.KindSynthesisFailed,
			Err:   errors.New("model timed out"),
		}

		_, err := newClient().Answer(ctx, api.AnswerRequest{Query: "Que horas abre?"})
		var apiErr *client.Error
		Expect(errors.As(err, &apiErr)).To(BeTrue())
		Expect(apiErr.StatusCode).To(Equal(http.StatusBadGateway))
		Expect(apiErr.Kind).To(Equal(string(pipeline.KindSynthesisFailed)))
		Expect(apiErr.Stage).To(Equal(string(pipeline.StateSynthesizing)))
		Expect(err.Error()).To(ContainSubstring("model timed out"))
	})

	Context("with an API key", func() {
		BeforeEach(func() {
			apiKey = "secret"
		})

		It("fails without the key", func() {
			_, err := newClient().Stats(ctx)
			var apiErr *client.Error
			Expect(errors.As(err, &apiErr)).To(BeTrue())
			Expect(apiErr.StatusCode).To(Equal(http.StatusUnauthorized))
		})

		It("sends the bearer token", func() {
			_, err := newClient(client.WithAPIKey("secret")).Stats(ctx)
			Expect(err).NotTo(HaveOccurred())
		})
	})

	It("reports connection failures", func() {
		c := newClient()
		ts.Close()

		_, err := c.Stats(ctx)
		Expect(err).To(MatchError(ContainSubstring("failed to connect to folio API")))
	})
})
