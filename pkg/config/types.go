package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Config represents the persistent folio configuration stored as config.toml
// in the .folio/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	API         APIConfig         `toml:"api"`
	Client      ClientConfig      `toml:"client"`
	VectorStore VectorStoreConfig `toml:"vector_store"`
	Embedding   EmbeddingConfig   `toml:"embedding"`
	Memory      MemoryConfig      `toml:"memory"`
	Images      ImagesConfig      `toml:"images"`
	Pipeline    PipelineConfig    `toml:"pipeline"`
	Models      ModelsConfig      `toml:"models"`
	Timeouts    TimeoutsConfig    `toml:"timeouts"`
	Events      EventsConfig      `toml:"events"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty" validate:"required"`

	// APIKey enables bearer authentication on /v1 routes when set.
	APIKey string `toml:"api_key,omitempty"`

	// RateLimit is the sustained requests per second allowed per client.
	// Zero disables rate limiting.
	RateLimit float64 `toml:"rate_limit,omitempty" validate:"min=0"`
	Burst     int     `toml:"burst,omitempty" validate:"min=0"`
}

// ClientConfig holds settings for CLI commands that connect to a running
// folio server (e.g. folio ask, folio chat, folio health).
// Values are full URLs (scheme + host + port).
type ClientConfig struct {
	APITarget string `toml:"api_target,omitempty" validate:"omitempty,url"`
}

// VectorStoreConfig holds chunk store settings.
type VectorStoreConfig struct {
	Provider   string `toml:"provider,omitempty" validate:"oneof=sqlite chroma qdrant pgvector"`
	Target     string `toml:"target,omitempty"`
	Collection string `toml:"collection,omitempty"`
	APIKey     string `toml:"api_key,omitempty"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `toml:"provider,omitempty" validate:"oneof=ollama openai voyage"`
	Target     string `toml:"target,omitempty"`
	Model      string `toml:"model,omitempty"`
	Dimensions uint   `toml:"dimensions,omitempty" validate:"min=1"`
	APIKey     string `toml:"api_key,omitempty"`
}

// MemoryConfig holds conversation session settings.
type MemoryConfig struct {
	Provider   string `toml:"provider,omitempty" validate:"oneof=local redis"`
	Target     string `toml:"target,omitempty"`
	Enabled    bool   `toml:"enabled"`
	MaxTurns   int    `toml:"max_turns,omitempty" validate:"min=0"`
	TTLSeconds int    `toml:"ttl_seconds,omitempty" validate:"min=0"`
}

// ImagesConfig holds page image store settings. An empty endpoint leaves
// every page without an image.
type ImagesConfig struct {
	Endpoint       string `toml:"endpoint,omitempty" validate:"omitempty,url"`
	Token          string `toml:"token,omitempty"`
	MemoTTLSeconds int    `toml:"memo_ttl_seconds,omitempty" validate:"min=0"`
}

// PipelineConfig holds the answering pipeline bounds and toggles.
type PipelineConfig struct {
	MaxCandidates       int  `toml:"max_candidates"`
	MaxSelected         int  `toml:"max_selected"`
	EnableReranking     bool `toml:"enable_reranking"`
	EnableImageFetching bool `toml:"enable_image_fetching"`
	CacheTTLSeconds     int  `toml:"cache_ttl_seconds"`
	HistoryWindow       int  `toml:"history_window"`
}

// ModelsConfig holds the model used by each stage that calls one.
type ModelsConfig struct {
	Transform ModelConfig `toml:"transform"`
	Rerank    ModelConfig `toml:"rerank"`
	Synthesis ModelConfig `toml:"synthesis"`
}

// ModelConfig selects a provider, model and sampling temperature.
type ModelConfig struct {
	Provider    string  `toml:"provider,omitempty" validate:"oneof=openai anthropic ollama"`
	Model       string  `toml:"model,omitempty"`
	Temperature float64 `toml:"temperature" validate:"min=0,max=2"`
	BaseURL     string  `toml:"base_url,omitempty" validate:"omitempty,url"`
}

// TimeoutsConfig holds per collaborator timeouts in seconds.
type TimeoutsConfig struct {
	EmbeddingSeconds int `toml:"embedding_seconds,omitempty" validate:"min=0"`
	SearchSeconds    int `toml:"search_seconds,omitempty" validate:"min=0"`
	ImageSeconds     int `toml:"image_seconds,omitempty" validate:"min=0"`
	ModelSeconds     int `toml:"model_seconds,omitempty" validate:"min=0"`
}

// EventsConfig holds answer event publishing settings.
type EventsConfig struct {
	Provider string   `toml:"provider,omitempty" validate:"oneof=none kafka"`
	Brokers  []string `toml:"brokers,omitempty" validate:"required_if=Provider kafka"`
	Topic    string   `toml:"topic,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func stringKey(field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

func intKey(name string, field func(c *Config) *int) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.Itoa(*field(c)) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = n
			return nil
		},
	}
}

func boolKey(name string, field func(c *Config) *bool) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.FormatBool(*field(c)) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = b
			return nil
		},
	}
}

func floatKey(name string, field func(c *Config) *float64) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.FormatFloat(*field(c), 'f', -1, 64) },
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = f
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"api.listen":     stringKey(func(c *Config) *string { return &c.API.Listen }),
	"api.api_key":    stringKey(func(c *Config) *string { return &c.API.APIKey }),
	"api.rate_limit": floatKey("api.rate_limit", func(c *Config) *float64 { return &c.API.RateLimit }),
	"api.burst":      intKey("api.burst", func(c *Config) *int { return &c.API.Burst }),

	"client.api_target": stringKey(func(c *Config) *string { return &c.Client.APITarget }),

	"vector_store.provider":   stringKey(func(c *Config) *string { return &c.VectorStore.Provider }),
	"vector_store.target":     stringKey(func(c *Config) *string { return &c.VectorStore.Target }),
	"vector_store.collection": stringKey(func(c *Config) *string { return &c.VectorStore.Collection }),
	"vector_store.api_key":    stringKey(func(c *Config) *string { return &c.VectorStore.APIKey }),

	"embedding.provider": stringKey(func(c *Config) *string { return &c.Embedding.Provider }),
	"embedding.target":   stringKey(func(c *Config) *string { return &c.Embedding.Target }),
	"embedding.model":    stringKey(func(c *Config) *string { return &c.Embedding.Model }),
	"embedding.api_key":  stringKey(func(c *Config) *string { return &c.Embedding.APIKey }),
	"embedding.dimensions": {
		get: func(c *Config) string {
			if c.Embedding.Dimensions == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(c.Embedding.Dimensions), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for embedding.dimensions: %w", err)
			}
			c.Embedding.Dimensions = uint(n)
			return nil
		},
	},

	"memory.provider":    stringKey(func(c *Config) *string { return &c.Memory.Provider }),
	"memory.target":      stringKey(func(c *Config) *string { return &c.Memory.Target }),
	"memory.enabled":     boolKey("memory.enabled", func(c *Config) *bool { return &c.Memory.Enabled }),
	"memory.max_turns":   intKey("memory.max_turns", func(c *Config) *int { return &c.Memory.MaxTurns }),
	"memory.ttl_seconds": intKey("memory.ttl_seconds", func(c *Config) *int { return &c.Memory.TTLSeconds }),

	"images.endpoint":         stringKey(func(c *Config) *string { return &c.Images.Endpoint }),
	"images.token":            stringKey(func(c *Config) *string { return &c.Images.Token }),
	"images.memo_ttl_seconds": intKey("images.memo_ttl_seconds", func(c *Config) *int { return &c.Images.MemoTTLSeconds }),

	"pipeline.max_candidates": intKey("pipeline.max_candidates", func(c *Config) *int { return &c.Pipeline.MaxCandidates }),
	"pipeline.max_selected":   intKey("pipeline.max_selected", func(c *Config) *int { return &c.Pipeline.MaxSelected }),
	"pipeline.enable_reranking": boolKey("pipeline.enable_reranking", func(c *Config) *bool {
		return &c.Pipeline.EnableReranking
	}),
	"pipeline.enable_image_fetching": boolKey("pipeline.enable_image_fetching", func(c *Config) *bool {
		return &c.Pipeline.EnableImageFetching
	}),
	"pipeline.cache_ttl_seconds": intKey("pipeline.cache_ttl_seconds", func(c *Config) *int { return &c.Pipeline.CacheTTLSeconds }),
	"pipeline.history_window":    intKey("pipeline.history_window", func(c *Config) *int { return &c.Pipeline.HistoryWindow }),

	"timeouts.embedding_seconds": intKey("timeouts.embedding_seconds", func(c *Config) *int { return &c.Timeouts.EmbeddingSeconds }),
	"timeouts.search_seconds":    intKey("timeouts.search_seconds", func(c *Config) *int { return &c.Timeouts.SearchSeconds }),
	"timeouts.image_seconds":     intKey("timeouts.image_seconds", func(c *Config) *int { return &c.Timeouts.ImageSeconds }),
	"timeouts.model_seconds":     intKey("timeouts.model_seconds", func(c *Config) *int { return &c.Timeouts.ModelSeconds }),

	"events.provider": stringKey(func(c *Config) *string { return &c.Events.Provider }),
	"events.topic":    stringKey(func(c *Config) *string { return &c.Events.Topic }),
	"events.brokers": {
		get: func(c *Config) string { return strings.Join(c.Events.Brokers, ",") },
		set: func(c *Config, v string) error {
			c.Events.Brokers = splitList(v)
			return nil
		},
	},
}

// modelStages lists the [models.<stage>] sections in pipeline order.
var modelStages = []string{"transform", "rerank", "synthesis"}

func init() {
	for _, stage := range modelStages {
		model := modelSection(stage)
		prefix := "models." + stage + "."
		configKeys[prefix+"provider"] = stringKey(func(c *Config) *string { return &model(c).Provider })
		configKeys[prefix+"model"] = stringKey(func(c *Config) *string { return &model(c).Model })
		configKeys[prefix+"base_url"] = stringKey(func(c *Config) *string { return &model(c).BaseURL })
		configKeys[prefix+"temperature"] = floatKey(prefix+"temperature", func(c *Config) *float64 {
			return &model(c).Temperature
		})
	}
}

func modelSection(stage string) func(c *Config) *ModelConfig {
	switch stage {
	case "transform":
		return func(c *Config) *ModelConfig { return &c.Models.Transform }
	case "rerank":
		return func(c *Config) *ModelConfig { return &c.Models.Rerank }
	default:
		return func(c *Config) *ModelConfig { return &c.Models.Synthesis }
	}
}

// splitList splits a comma separated value, dropping blanks.
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
