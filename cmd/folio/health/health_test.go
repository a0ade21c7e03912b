package healthcmder_test

import (
	"bytes"
	"net/http/httptest"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/folio/api"
	healthcmder "github.com/papercomputeco/folio/cmd/folio/health"
	"github.com/papercomputeco/folio/pkg/logger"
	"github.com/papercomputeco/folio/pkg/pipeline"
	testutils "github.com/papercomputeco/folio/pkg/utils/test"
)

var _ = Describe("folio health", func() {
	var (
		answerer *testutils.StubAnswerer
		ts       *httptest.Server
		out      *bytes.Buffer
	)

	run := func(args ...string) error {
		cmd := healthcmder.NewHealthCmd()
		cmd.PersistentFlags().String("config-dir", "", "")
		cmd.SetOut(out)
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs(append([]string{"--api-target", ts.URL}, args...))
		return cmd.Execute()
	}

	BeforeEach(func() {
		tmpDir, err := os.MkdirTemp("", "folio-health-test-*")
		Expect(err).NotTo(HaveOccurred())
		origDir, err := os.Getwd()
		Expect(err).NotTo(HaveOccurred())
		Expect(os.MkdirAll(filepath.Join(tmpDir, ".folio"), 0o755)).To(Succeed())
		Expect(os.Chdir(tmpDir)).To(Succeed())
		DeferCleanup(func() {
			_ = os.Chdir(origDir)
			_ = os.RemoveAll(tmpDir)
		})

		answerer = testutils.NewStubAnswerer("ok")
		out = &bytes.Buffer{}
	})

	JustBeforeEach(func() {
		server, err := api.NewServer(api.Config{
			Answerer:    answerer,
			Transformer: &testutils.StubTransformer{},
			Logger:      logger.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(server.Shutdown)

		ts = httptest.NewServer(server.Handler())
		DeferCleanup(ts.Close)
	})

	It("reports a healthy server", func() {
		Expect(run()).To(Succeed())
		Expect(out.String()).To(ContainSubstring("healthy"))
		Expect(out.String()).To(ContainSubstring("vector_store"))
	})

	It("does not fail on a degraded server", func() {
		answerer.Status = pipeline.StatusDegraded
		Expect(run()).To(Succeed())
		Expect(out.String()).To(ContainSubstring("degraded"))
	})

	It("fails on an unhealthy server", func() {
		answerer.Status = pipeline.StatusUnhealthy
		Expect(run()).To(MatchError(healthcmder.ErrUnhealthy))
		Expect(out.String()).To(ContainSubstring("unhealthy"))
	})

	It("prints pipeline stats", func() {
		Expect(run("--stats")).To(Succeed())
		Expect(out.String()).To(ContainSubstring("max_candidates"))
		Expect(out.String()).To(ContainSubstring("cache_entries"))
	})

	It("fails when the server is unreachable", func() {
		cmd := healthcmder.NewHealthCmd()
		cmd.PersistentFlags().String("config-dir", "", "")
		cmd.SetOut(out)
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{"--api-target", "http://127.0.0.1:1"})
		Expect(cmd.Execute()).To(MatchError(ContainSubstring("failed to connect to folio API")))
	})
})
