package chatcmder

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"

	bubbletea "github.com/charmbracelet/bubbletea"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/folio/api"
	"github.com/papercomputeco/folio/pkg/rag"
)

type fakeClient struct {
	mu       sync.Mutex
	requests []api.AnswerRequest
	err      error
}

func (f *fakeClient) Answer(_ context.Context, req api.AnswerRequest) (*api.AnswerResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &api.AnswerResponse{
		AnswerResult: rag.AnswerResult{
			AnswerText:    "Abrimos às 11h.",
			SelectedPages: []rag.Page{{DocumentName: "cardapio.pdf", PageNumber: 3}},
		},
		SessionID: req.SessionID,
	}, nil
}

func (f *fakeClient) sessions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.requests))
	for _, r := range f.requests {
		out = append(out, r.SessionID)
	}
	return out
}

var _ = Describe("runPlain", func() {
	var (
		cl     *fakeClient
		out    *bytes.Buffer
		errOut *bytes.Buffer
	)

	BeforeEach(func() {
		cl = &fakeClient{}
		out = &bytes.Buffer{}
		errOut = &bytes.Buffer{}
	})

	It("answers each line on the same session", func() {
		in := strings.NewReader("que horas abre?\n\ne no domingo?\n")
		Expect(runPlain(context.Background(), cl, "s1", in, out, errOut)).To(Succeed())

		Expect(cl.sessions()).To(Equal([]string{"s1", "s1"}))
		Expect(out.String()).To(ContainSubstring("Abrimos às 11h."))
		Expect(out.String()).To(ContainSubstring("cardapio.pdf"))
	})

	It("starts a new session on /new", func() {
		in := strings.NewReader("oi\n/new\noi\n")
		Expect(runPlain(context.Background(), cl, "s1", in, out, errOut)).To(Succeed())

		sessions := cl.sessions()
		Expect(sessions).To(HaveLen(2))
		Expect(sessions[0]).To(Equal("s1"))
		Expect(sessions[1]).To(HavePrefix("chat-"))
	})

	It("stops at /exit", func() {
		in := strings.NewReader("/exit\noi\n")
		Expect(runPlain(context.Background(), cl, "s1", in, out, errOut)).To(Succeed())
		Expect(cl.sessions()).To(BeEmpty())
	})

	It("keeps going after a failed question", func() {
		cl.err = errors.New("folio API error (HTTP 503)")
		in := strings.NewReader("oi\noi\n")
		Expect(runPlain(context.Background(), cl, "s1", in, out, errOut)).To(Succeed())
		Expect(cl.sessions()).To(HaveLen(2))
		Expect(errOut.String()).To(ContainSubstring("HTTP 503"))
	})
})

var _ = Describe("chatModel", func() {
	var (
		cl *fakeClient
		m  chatModel
	)

	update := func(msg bubbletea.Msg) bubbletea.Cmd {
		next, cmd := m.Update(msg)
		m = next.(chatModel)
		return cmd
	}

	typeLine := func(s string) bubbletea.Cmd {
		m.input.SetValue(s)
		return update(bubbletea.KeyMsg{Type: bubbletea.KeyEnter})
	}

	BeforeEach(func() {
		cl = &fakeClient{}
		m = newChatModel(context.Background(), cl, "s1")
	})

	It("ignores empty input", func() {
		Expect(typeLine("   ")).To(BeNil())
		Expect(m.entries).To(BeEmpty())
	})

	It("sends a question and renders the answer", func() {
		Expect(typeLine("que horas abre?")).NotTo(BeNil())
		Expect(m.waiting).To(BeTrue())
		Expect(m.entries).To(HaveLen(1))
		Expect(m.input.Value()).To(BeEmpty())

		msg := m.ask("que horas abre?")()
		Expect(msg).To(BeAssignableToTypeOf(answerMsg{}))
		update(msg)

		Expect(m.waiting).To(BeFalse())
		Expect(m.entries[0].answer.AnswerText).To(Equal("Abrimos às 11h."))
		Expect(m.transcript()).To(ContainSubstring("cardapio.pdf p. 3"))
		Expect(cl.sessions()).To(Equal([]string{"s1"}))
	})

	It("does not send while waiting", func() {
		typeLine("um")
		Expect(typeLine("dois")).To(BeNil())
		Expect(m.entries).To(HaveLen(1))
	})

	It("shows failures in the transcript", func() {
		typeLine("oi")
		update(answerMsg{err: errors.New("rate limit exceeded")})
		Expect(m.transcript()).To(ContainSubstring("rate limit exceeded"))
	})

	It("resets the session on /new", func() {
		typeLine("oi")
		update(answerMsg{resp: &api.AnswerResponse{}})
		typeLine("/new")
		Expect(m.entries).To(BeEmpty())
		Expect(m.sessionID).NotTo(Equal("s1"))
	})

	It("quits on ctrl+c", func() {
		cmd := update(bubbletea.KeyMsg{Type: bubbletea.KeyCtrlC})
		Expect(cmd).NotTo(BeNil())
		Expect(cmd()).To(Equal(bubbletea.Quit()))
	})

	It("resizes the transcript", func() {
		update(bubbletea.WindowSizeMsg{Width: 120, Height: 40})
		Expect(m.viewport.Width).To(Equal(120))
		Expect(m.viewport.Height).To(Equal(40 - inputHeight))
	})
})
