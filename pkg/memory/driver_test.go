package memory_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/folio/pkg/memory"
	"github.com/papercomputeco/folio/pkg/memory/local"
	"github.com/papercomputeco/folio/pkg/rag"
)

var _ = Describe("Limits", func() {
	It("fills defaults", func() {
		l := memory.Limits{}.WithDefaults()
		Expect(l.MaxTurns).To(Equal(memory.DefaultMaxTurns))
		Expect(l.TrimTo).To(Equal(memory.DefaultTrimTo))
	})

	It("never trims to more turns than the maximum", func() {
		l := memory.Limits{MaxTurns: 6}.WithDefaults()
		Expect(l.TrimTo).To(Equal(6))
	})
})

var _ = Describe("Session helpers", func() {
	var (
		ctx context.Context
		d   *local.Driver
	)

	BeforeEach(func() {
		ctx = context.Background()
		d = local.NewDriver(memory.Limits{})
	})

	It("returns an empty snapshot without a driver or session", func() {
		h, err := memory.Snapshot(ctx, nil, "s1")
		Expect(err).NotTo(HaveOccurred())
		Expect(h).To(BeEmpty())

		h, err = memory.Snapshot(ctx, d, "")
		Expect(err).NotTo(HaveOccurred())
		Expect(h).To(BeEmpty())
	})

	It("records the question and answer as a turn pair", func() {
		Expect(memory.Record(ctx, d, "s1", "Qual o preço?", "R$ 25,90")).To(Succeed())

		h, err := memory.Snapshot(ctx, d, "s1")
		Expect(err).NotTo(HaveOccurred())
		Expect(h).To(Equal(rag.History{
			{Role: rag.RoleUser, Content: "Qual o preço?"},
			{Role: rag.RoleAssistant, Content: "R$ 25,90"},
		}))
	})

	It("reports missing drivers and sessions", func() {
		Expect(memory.Record(ctx, nil, "s1", "q", "a")).To(MatchError(memory.ErrNotConfigured))
		Expect(memory.Record(ctx, d, "", "q", "a")).To(MatchError(memory.ErrEmptySession))
	})
})
