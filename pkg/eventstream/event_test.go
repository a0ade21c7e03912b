package eventstream_test

import (
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/folio/pkg/eventstream"
	"github.com/papercomputeco/folio/pkg/rag"
)

var _ = Describe("Event", func() {
	var result *rag.AnswerResult

	BeforeEach(func() {
		result = &rag.AnswerResult{
			AnswerText:      "O hambúrguer de frango custa R$ 22,00.",
			SelectedPages:   []rag.Page{{DocumentName: "cardapio.pdf", PageNumber: 3}},
			Justification:   "Page 3 lists the price.",
			StandaloneQuery: rag.StandaloneQuery{Text: "Qual o preço do hambúrguer de frango?", WasRewritten: true},
			TotalCandidates: 7,
		}
	})

	It("builds an answer completed event from a result", func() {
		started := time.Now().Add(-1500 * time.Millisecond)
		event := eventstream.NewAnswerCompletedEvent("sess-1", "e o de frango?", result, started)

		Expect(event.SchemaVersion).To(Equal(eventstream.SchemaVersionV1))
		Expect(event.EventType).To(Equal(eventstream.EventTypeAnswerCompleted))
		Expect(event.EventID).NotTo(BeEmpty())
		Expect(event.Source.SessionID).To(Equal("sess-1"))
		Expect(event.Query.Raw).To(Equal("e o de frango?"))
		Expect(event.Query.Standalone).To(Equal("Qual o preço do hambúrguer de frango?"))
		Expect(event.Query.WasRewritten).To(BeTrue())
		Expect(event.Answer.Pages).To(HaveLen(1))
		Expect(event.RequestMeta.DurationMs).To(BeNumerically(">=", 1500))
	})

	It("assigns unique event ids", func() {
		a := eventstream.NewAnswerCompletedEvent("", "q", result, time.Now())
		b := eventstream.NewAnswerCompletedEvent("", "q", result, time.Now())
		Expect(a.EventID).NotTo(Equal(b.EventID))
	})

	It("marshals with expected top-level keys", func() {
		payload, err := json.Marshal(eventstream.NewAnswerCompletedEvent("s", "q", result, time.Now()))
		Expect(err).NotTo(HaveOccurred())

		var got map[string]any
		Expect(json.Unmarshal(payload, &got)).To(Succeed())

		for _, key := range []string{"schema_version", "event_type", "event_id", "emitted_at", "source", "request_meta", "query", "answer"} {
			Expect(got).To(HaveKey(key))
		}
	})

	It("defines stable event constants", func() {
		Expect(eventstream.EventTypeAnswerCompleted).To(Equal("folio.answer.completed"))
		Expect(eventstream.ErrNilEvent).To(MatchError("nil answer event"))
	})
})
