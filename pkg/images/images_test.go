package images_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/folio/pkg/images"
	"github.com/papercomputeco/folio/pkg/rag"
	testutils "github.com/papercomputeco/folio/pkg/utils/test"
)

func candidates() rag.CandidateSet {
	return rag.CandidateSet{
		{ID: "c1", DocumentName: "cardapio.pdf", PageNumber: 2, SimilarityScore: 0.9},
		{ID: "c2", DocumentName: "cardapio.pdf", PageNumber: 3, SimilarityScore: 0.8, ImageURL: "stale"},
		{ID: "c3", DocumentName: "promo.pdf", PageNumber: 1, SimilarityScore: 0.7},
	}
}

var _ = Describe("Key", func() {
	It("joins document and page", func() {
		Expect(images.Key("cardapio.pdf", 7)).To(Equal("cardapio.pdf_page_7"))
	})
})

var _ = Describe("Fetcher", func() {
	var (
		store *testutils.MockImageStore
		ctx   context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = testutils.NewMockImageStore("cardapio.pdf_page_2", "promo.pdf_page_1")
	})

	It("sets URLs for present pages and clears the rest", func() {
		f := images.New(images.Config{Store: store})
		in := candidates()

		out := f.Enrich(ctx, in)

		Expect(out.IDs()).To(Equal(in.IDs()))
		Expect(out[0].ImageURL).To(Equal("https://images.test/file/cardapio.pdf_page_2.png"))
		Expect(out[1].ImageURL).To(BeEmpty())
		Expect(out[2].ImageURL).To(Equal("https://images.test/file/promo.pdf_page_1.png"))
		Expect(in[1].ImageURL).To(Equal("stale"))
	})

	It("memoizes hits and misses", func() {
		f := images.New(images.Config{Store: store})

		f.Enrich(ctx, candidates())
		f.Enrich(ctx, candidates())

		Expect(store.Probes()).To(Equal(3))
		Expect(f.MemoLen()).To(Equal(3))
	})

	It("forgets outcomes after the memo ttl", func() {
		f := images.New(images.Config{Store: store, MemoTTL: 20 * time.Millisecond})
		f.Enrich(ctx, candidates())

		Eventually(func() int {
			f.Enrich(ctx, candidates())
			return store.Probes()
		}).WithTimeout(time.Second).WithPolling(10 * time.Millisecond).Should(BeNumerically(">", 3))
	})

	It("degrades to no images during an outage without memoizing", func() {
		store.Err = errors.New("connection refused")
		f := images.New(images.Config{Store: store})

		out := f.Enrich(ctx, candidates())

		Expect(out).To(HaveLen(3))
		for _, c := range out {
			Expect(c.ImageURL).To(BeEmpty())
		}
		Expect(f.MemoLen()).To(BeZero())

		store.Err = nil
		out = f.Enrich(ctx, candidates())
		Expect(out[0].ImageURL).NotTo(BeEmpty())
	})

	It("yields no images without a store", func() {
		f := images.New(images.Config{})
		out := f.Enrich(ctx, candidates())
		Expect(out[1].ImageURL).To(BeEmpty())
		Expect(f.Check(ctx)).To(Succeed())
	})

	It("handles an empty candidate set", func() {
		f := images.New(images.Config{Store: store})
		Expect(f.Enrich(ctx, rag.CandidateSet{})).To(BeEmpty())
		Expect(store.Probes()).To(BeZero())
	})
})

var _ = Describe("HTTPStore", func() {
	var (
		server  *httptest.Server
		mu      sync.Mutex
		methods []string
		auth    string
	)

	BeforeEach(func() {
		methods = nil
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			methods = append(methods, r.Method)
			auth = r.Header.Get("Authorization")
			mu.Unlock()

			switch {
			case r.URL.Path == "/stats":
				w.WriteHeader(http.StatusOK)
			case r.URL.Path == "/file/cardapio.pdf_page_2.png":
				w.WriteHeader(http.StatusOK)
			case strings.HasPrefix(r.URL.Path, "/file/broken"):
				w.WriteHeader(http.StatusInternalServerError)
			case r.URL.Path == "/file/slow_page_1.png":
				time.Sleep(200 * time.Millisecond)
				w.WriteHeader(http.StatusOK)
			default:
				w.WriteHeader(http.StatusNotFound)
			}
		}))
		DeferCleanup(server.Close)
	})

	It("requires an endpoint", func() {
		_, err := images.NewHTTPStore(images.HTTPStoreConfig{})
		Expect(err).To(HaveOccurred())
	})

	It("probes with HEAD and a bearer token", func() {
		s, err := images.NewHTTPStore(images.HTTPStoreConfig{Endpoint: server.URL + "/", Token: "secret"})
		Expect(err).NotTo(HaveOccurred())

		ok, err := s.Exists(context.Background(), "cardapio.pdf_page_2")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())

		mu.Lock()
		Expect(methods).To(Equal([]string{http.MethodHead}))
		Expect(auth).To(Equal("Bearer secret"))
		mu.Unlock()

		Expect(s.URL("cardapio.pdf_page_2")).To(Equal(server.URL + "/file/cardapio.pdf_page_2.png"))
	})

	It("reports 404 as absent", func() {
		s, _ := images.NewHTTPStore(images.HTTPStoreConfig{Endpoint: server.URL})
		ok, err := s.Exists(context.Background(), "missing_page_9")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
	})

	It("reports other statuses as errors", func() {
		s, _ := images.NewHTTPStore(images.HTTPStoreConfig{Endpoint: server.URL})
		_, err := s.Exists(context.Background(), "broken_page_1")
		Expect(err).To(HaveOccurred())
	})

	It("times out slow probes", func() {
		s, _ := images.NewHTTPStore(images.HTTPStoreConfig{Endpoint: server.URL, Timeout: 20 * time.Millisecond})
		_, err := s.Exists(context.Background(), "slow_page_1")
		Expect(err).To(MatchError(context.DeadlineExceeded))
	})

	It("pings the stats endpoint", func() {
		s, _ := images.NewHTTPStore(images.HTTPStoreConfig{Endpoint: server.URL})
		Expect(s.Ping(context.Background())).To(Succeed())

		f := images.New(images.Config{Store: s})
		Expect(f.Check(context.Background())).To(Succeed())
	})
})
