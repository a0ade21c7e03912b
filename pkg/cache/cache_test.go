package cache_test

import (
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/folio/pkg/cache"
)

type entry struct {
	Text  string
	Pages []int
}

var _ = Describe("Store", func() {
	It("returns stored values before they expire", func() {
		s := cache.New[entry](time.Minute, 0)
		s.Set("k", entry{Text: "answer"})

		got, ok := s.Get("k")
		Expect(ok).To(BeTrue())
		Expect(got.Text).To(Equal("answer"))
		Expect(s.Len()).To(Equal(1))
	})

	It("misses after the ttl elapses", func() {
		s := cache.New[entry](20*time.Millisecond, 10*time.Millisecond)
		s.Set("k", entry{Text: "answer"})

		Eventually(func() bool {
			_, ok := s.Get("k")
			return ok
		}).WithTimeout(time.Second).WithPolling(5 * time.Millisecond).Should(BeFalse())
	})

	It("is disabled when the ttl is zero", func() {
		s := cache.New[entry](0, 0)
		s.Set("k", entry{Text: "answer"})

		_, ok := s.Get("k")
		Expect(ok).To(BeFalse())
	})

	It("replaces entries wholesale", func() {
		s := cache.New[entry](time.Minute, 0)
		s.Set("k", entry{Text: "first", Pages: []int{1}})
		s.Set("k", entry{Text: "second"})

		got, _ := s.Get("k")
		Expect(got.Text).To(Equal("second"))
		Expect(got.Pages).To(BeNil())
	})

	It("deletes and flushes", func() {
		s := cache.New[string](time.Minute, 0)
		s.Set("a", "1")
		s.Set("b", "2")
		s.Delete("a")
		_, ok := s.Get("a")
		Expect(ok).To(BeFalse())

		s.Flush()
		Expect(s.Len()).To(Equal(0))
	})

	It("handles concurrent readers and writers", func() {
		s := cache.New[entry](time.Minute, 0)
		var wg sync.WaitGroup
		for i := range 50 {
			wg.Add(2)
			go func() {
				defer wg.Done()
				s.Set("shared", entry{Text: "v", Pages: []int{i}})
			}()
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				if got, ok := s.Get("shared"); ok {
					Expect(got.Text).To(Equal("v"))
					Expect(got.Pages).To(HaveLen(1))
				}
			}()
		}
		wg.Wait()
	})
})

var _ = Describe("Key", func() {
	It("is stable for the same parts", func() {
		Expect(cache.Key("a", "b")).To(Equal(cache.Key("a", "b")))
	})

	It("separates parts", func() {
		Expect(cache.Key("ab", "c")).NotTo(Equal(cache.Key("a", "bc")))
	})
})
