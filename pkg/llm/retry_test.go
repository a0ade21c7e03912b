package llm_test

import (
	"context"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/folio/pkg/llm"
)

var _ = Describe("WithRetry", func() {
	var (
		calls int
		errs  []error
		cfg   llm.RetryConfig
	)

	flaky := func(_ context.Context, _ llm.Request) (string, error) {
		calls++
		if calls <= len(errs) && errs[calls-1] != nil {
			return "", errs[calls-1]
		}
		return "ok", nil
	}

	BeforeEach(func() {
		calls = 0
		errs = nil
		cfg = llm.RetryConfig{MaxTries: 2, Delay: time.Millisecond}
	})

	It("retries a 5xx response once", func() {
		errs = []error{&llm.StatusError{Provider: "openai", StatusCode: http.StatusBadGateway}}

		out, err := llm.WithRetry(flaky, cfg)(context.Background(), llm.Request{Prompt: "hi"})
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal("ok"))
		Expect(calls).To(Equal(2))
	})

	It("does not retry a 4xx response", func() {
		errs = []error{&llm.StatusError{Provider: "openai", StatusCode: http.StatusBadRequest}}

		_, err := llm.WithRetry(flaky, cfg)(context.Background(), llm.Request{Prompt: "hi"})
		Expect(err).To(MatchError(llm.ErrGeneration))
		Expect(calls).To(Equal(1))
	})

	It("returns the last error once tries are exhausted", func() {
		errs = []error{
			&llm.StatusError{Provider: "openai", StatusCode: http.StatusServiceUnavailable},
			&llm.StatusError{Provider: "openai", StatusCode: http.StatusTooManyRequests},
			nil,
		}

		_, err := llm.WithRetry(flaky, cfg)(context.Background(), llm.Request{Prompt: "hi"})
		var statusErr *llm.StatusError
		Expect(err).To(BeAssignableToTypeOf(statusErr))
		Expect(err.(*llm.StatusError).StatusCode).To(Equal(http.StatusTooManyRequests))
		Expect(calls).To(Equal(2))
	})

	It("calls once when retries are disabled", func() {
		errs = []error{&llm.StatusError{Provider: "openai", StatusCode: http.StatusBadGateway}}

		_, err := llm.WithRetry(flaky, llm.RetryConfig{})(context.Background(), llm.Request{Prompt: "hi"})
		Expect(err).To(HaveOccurred())
		Expect(calls).To(Equal(1))
	})
})
