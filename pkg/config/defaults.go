package config

const (
	defaultAPIListen       = ":8080"
	defaultClientAPITarget = "http://localhost:8080"

	defaultVectorProvider   = "sqlite"
	defaultVectorCollection = "folio_chunks"

	defaultEmbeddingProvider   = "ollama"
	defaultEmbeddingTarget     = "http://localhost:11434"
	defaultEmbeddingModel      = "embeddinggemma"
	defaultEmbeddingDimensions = 768

	defaultMemoryProvider = "local"
	defaultMemoryMaxTurns = 20
	defaultMemoryTTL      = 24 * 60 * 60

	defaultImageMemoTTL = 600

	defaultMaxCandidates = 10
	defaultMaxSelected   = 2
	defaultCacheTTL      = 300
	defaultHistoryWindow = 4

	defaultModelProvider = "openai"

	defaultEmbeddingTimeout = 10
	defaultSearchTimeout    = 10
	defaultImageTimeout     = 3
	defaultModelTimeout     = 30

	defaultEventsProvider = "none"
	defaultEventsTopic    = "folio.answers"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		Client: ClientConfig{
			APITarget: defaultClientAPITarget,
		},
		VectorStore: VectorStoreConfig{
			Provider:   defaultVectorProvider,
			Collection: defaultVectorCollection,
		},
		Embedding: EmbeddingConfig{
			Provider:   defaultEmbeddingProvider,
			Target:     defaultEmbeddingTarget,
			Model:      defaultEmbeddingModel,
			Dimensions: defaultEmbeddingDimensions,
		},
		Memory: MemoryConfig{
			Provider:   defaultMemoryProvider,
			Enabled:    true,
			MaxTurns:   defaultMemoryMaxTurns,
			TTLSeconds: defaultMemoryTTL,
		},
		Images: ImagesConfig{
			MemoTTLSeconds: defaultImageMemoTTL,
		},
		Pipeline: PipelineConfig{
			MaxCandidates:       defaultMaxCandidates,
			MaxSelected:         defaultMaxSelected,
			EnableReranking:     true,
			EnableImageFetching: true,
			CacheTTLSeconds:     defaultCacheTTL,
			HistoryWindow:       defaultHistoryWindow,
		},
		Models: ModelsConfig{
			Transform: ModelConfig{Provider: defaultModelProvider, Model: "gpt-4o-mini", Temperature: 0.3},
			Rerank:    ModelConfig{Provider: defaultModelProvider, Model: "gpt-4o", Temperature: 0.1},
			Synthesis: ModelConfig{Provider: defaultModelProvider, Model: "gpt-4o", Temperature: 0.7},
		},
		Timeouts: TimeoutsConfig{
			EmbeddingSeconds: defaultEmbeddingTimeout,
			SearchSeconds:    defaultSearchTimeout,
			ImageSeconds:     defaultImageTimeout,
			ModelSeconds:     defaultModelTimeout,
		},
		Events: EventsConfig{
			Provider: defaultEventsProvider,
			Topic:    defaultEventsTopic,
		},
	}
}
