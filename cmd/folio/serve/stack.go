package servecmder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/papercomputeco/folio/pkg/config"
	"github.com/papercomputeco/folio/pkg/credentials"
	"github.com/papercomputeco/folio/pkg/dotdir"
	embeddingutils "github.com/papercomputeco/folio/pkg/embeddings/utils"
	"github.com/papercomputeco/folio/pkg/eventstream"
	"github.com/papercomputeco/folio/pkg/eventstream/kafka"
	"github.com/papercomputeco/folio/pkg/eventstream/nop"
	"github.com/papercomputeco/folio/pkg/images"
	"github.com/papercomputeco/folio/pkg/llm"
	"github.com/papercomputeco/folio/pkg/memory"
	"github.com/papercomputeco/folio/pkg/memory/local"
	"github.com/papercomputeco/folio/pkg/memory/redis"
	"github.com/papercomputeco/folio/pkg/pipeline"
	"github.com/papercomputeco/folio/pkg/rerank"
	"github.com/papercomputeco/folio/pkg/search"
	"github.com/papercomputeco/folio/pkg/synth"
	"github.com/papercomputeco/folio/pkg/transform"
	vectorutils "github.com/papercomputeco/folio/pkg/vector/utils"
	"github.com/papercomputeco/folio/pkg/worker"
)

const (
	defaultChunkDB = "chunks.db"

	// Rerank and synthesis get one retry on transient model failures.
	// Transform failures already fall back to the raw query.
	modelCallTries  = 2
	modelRetryDelay = 500 * time.Millisecond
)

// stack is every long-lived component "folio serve" runs.
type stack struct {
	orchestrator *pipeline.Orchestrator
	transformer  *transform.Transformer
	memory       memory.Driver
	pool         *worker.Pool

	// closers run in reverse order on shutdown.
	closers []func() error
}

func (s *stack) onClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

// Close releases every component, newest first.
func (s *stack) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// buildStack wires the pipeline from cfg. On error every component built so
// far is closed.
func buildStack(ctx context.Context, cfg *config.Config, configDir string, log *slog.Logger) (_ *stack, err error) {
	st := &stack{}
	defer func() {
		if err != nil {
			_ = st.Close()
		}
	}()

	credMgr, err := credentials.NewManager(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading credentials: %w", err)
	}

	embedder, err := embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{
		ProviderType: cfg.Embedding.Provider,
		TargetURL:    cfg.Embedding.Target,
		Model:        cfg.Embedding.Model,
		APIKey:       credentials.Resolve(credMgr, embeddingCredential(cfg.Embedding.Provider), cfg.Embedding.APIKey),
		Timeout:      cfg.Timeouts.Embedding(),
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}
	st.onClose(embedder.Close)

	target := cfg.VectorStore.Target
	if target == "" && (cfg.VectorStore.Provider == vectorutils.ProviderSQLiteVec || cfg.VectorStore.Provider == "") {
		target, err = dotdir.NewManager().File(configDir, defaultChunkDB)
		if err != nil {
			return nil, err
		}
	}
	driver, err := vectorutils.NewVectorDriver(ctx, &vectorutils.NewVectorDriverOpts{
		ProviderType: cfg.VectorStore.Provider,
		TargetURL:    target,
		Collection:   cfg.VectorStore.Collection,
		APIKey:       cfg.VectorStore.APIKey,
		Dimensions:   cfg.Embedding.Dimensions,
		Logger:       log,
	})
	if err != nil {
		return nil, fmt.Errorf("creating vector driver: %w", err)
	}
	st.onClose(driver.Close)

	log.Info("using chunk store",
		"provider", cfg.VectorStore.Provider,
		"collection", cfg.VectorStore.Collection,
		"embedding_provider", cfg.Embedding.Provider,
		"embedding_model", cfg.Embedding.Model,
	)

	searcher, err := search.New(search.Config{
		Embedder:     embedder,
		Driver:       driver,
		EmbedTimeout: cfg.Timeouts.Embedding(),
		QueryTimeout: cfg.Timeouts.Search(),
		Logger:       log,
	})
	if err != nil {
		return nil, err
	}

	fetcher, err := newImageFetcher(cfg, credMgr, log)
	if err != nil {
		return nil, err
	}

	callers := make(map[string]llm.CallFunc, 3)
	for stage, mc := range map[string]config.ModelConfig{
		"transform": cfg.Models.Transform,
		"rerank":    cfg.Models.Rerank,
		"synthesis": cfg.Models.Synthesis,
	} {
		call, err := llm.NewCaller(llm.CallerConfig{
			Provider:    mc.Provider,
			Model:       mc.Model,
			BaseURL:     mc.BaseURL,
			Temperature: mc.Temperature,
			Timeout:     cfg.Timeouts.Model(),
			CredMgr:     credMgr,
			Logger:      log.With("stage", stage),
		})
		if err != nil {
			return nil, fmt.Errorf("creating %s model caller: %w", stage, err)
		}
		if stage != "transform" {
			call = llm.WithRetry(call, llm.RetryConfig{
				MaxTries: modelCallTries,
				Delay:    modelRetryDelay,
				Logger:   log.With("stage", stage),
			})
		}
		callers[stage] = call
	}

	st.transformer, err = transform.New(transform.Config{
		Call:          callers["transform"],
		HistoryWindow: cfg.Pipeline.HistoryWindow,
		Logger:        log,
	})
	if err != nil {
		return nil, err
	}

	reranker, err := rerank.New(rerank.Config{Call: callers["rerank"], Logger: log})
	if err != nil {
		return nil, err
	}

	synthesizer, err := synth.New(synth.Config{Call: callers["synthesis"], Logger: log})
	if err != nil {
		return nil, err
	}

	st.memory, err = newMemoryDriver(ctx, cfg.Memory, log)
	if err != nil {
		return nil, err
	}
	if st.memory != nil {
		st.onClose(st.memory.Close)
	}

	publisher, err := newPublisher(cfg.Events, log)
	if err != nil {
		return nil, err
	}
	st.pool, err = worker.NewPool(&worker.Config{
		Publisher: publisher,
		Logger:    log,
	})
	if err != nil {
		_ = publisher.Close()
		return nil, fmt.Errorf("creating event worker pool: %w", err)
	}
	st.onClose(st.pool.Close)

	st.orchestrator, err = pipeline.New(pipeline.Deps{
		Transformer:    st.transformer,
		Searcher:       searcher,
		Enricher:       fetcher,
		Reranker:       reranker,
		Synthesizer:    synthesizer,
		Events:         st.pool,
		CacheNamespace: cacheNamespace(cfg.Models),
		Logger:         log,
	}, cfg.PipelineSettings())
	if err != nil {
		return nil, fmt.Errorf("creating pipeline: %w", err)
	}

	return st, nil
}

// embeddingCredential is the credentials provider holding the embedding key.
func embeddingCredential(provider string) string {
	switch provider {
	case embeddingutils.ProviderOpenAI:
		return credentials.ProviderOpenAI
	case embeddingutils.ProviderVoyage:
		return credentials.ProviderVoyage
	default:
		return ""
	}
}

// newImageFetcher builds the page image enricher. Without an endpoint the
// fetcher yields no images.
func newImageFetcher(cfg *config.Config, credMgr *credentials.Manager, log *slog.Logger) (*images.Fetcher, error) {
	fc := images.Config{
		MemoTTL: cfg.Images.MemoTTL(),
		Logger:  log,
	}

	if cfg.Images.Endpoint != "" {
		store, err := images.NewHTTPStore(images.HTTPStoreConfig{
			Endpoint: cfg.Images.Endpoint,
			Token:    credentials.Resolve(credMgr, credentials.ProviderImages, cfg.Images.Token),
			Timeout:  cfg.Timeouts.Image(),
		})
		if err != nil {
			return nil, fmt.Errorf("creating image store: %w", err)
		}
		fc.Store = store
		log.Info("using page image store", "endpoint", cfg.Images.Endpoint)
	}

	return images.New(fc), nil
}

// newMemoryDriver returns nil when session memory is disabled.
func newMemoryDriver(ctx context.Context, mc config.MemoryConfig, log *slog.Logger) (memory.Driver, error) {
	if !mc.Enabled {
		log.Info("session memory disabled")
		return nil, nil
	}

	limits := memory.Limits{MaxTurns: mc.MaxTurns}

	switch mc.Provider {
	case "redis":
		d, err := redis.NewDriver(ctx, redis.Config{
			URL:    mc.Target,
			TTL:    mc.TTL(),
			Limits: limits,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("creating redis memory driver: %w", err)
		}
		log.Info("using redis session memory")
		return d, nil

	case "local", "":
		log.Info("using in-process session memory")
		return local.NewDriver(limits), nil

	default:
		return nil, fmt.Errorf("unsupported memory provider: %s", mc.Provider)
	}
}

// newPublisher returns the answer event publisher for ec.
func newPublisher(ec config.EventsConfig, log *slog.Logger) (eventstream.Publisher, error) {
	switch ec.Provider {
	case "kafka":
		p, err := kafka.NewPublisher(kafka.Config{
			Brokers: ec.Brokers,
			Topic:   ec.Topic,
			Logger:  log,
		})
		if err != nil {
			return nil, fmt.Errorf("creating kafka publisher: %w", err)
		}
		log.Info("publishing answer events to kafka",
			"brokers", strings.Join(ec.Brokers, ","),
			"topic", ec.Topic,
		)
		return p, nil

	case "none", "":
		return nop.NewPublisher(), nil

	default:
		return nil, fmt.Errorf("unsupported events provider: %s", ec.Provider)
	}
}

// cacheNamespace keys cached answers by the models that produced them.
func cacheNamespace(m config.ModelsConfig) string {
	return strings.Join([]string{
		m.Transform.Provider + "/" + m.Transform.Model,
		m.Rerank.Provider + "/" + m.Rerank.Model,
		m.Synthesis.Provider + "/" + m.Synthesis.Model,
	}, "|")
}
