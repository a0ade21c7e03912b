package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/folio/pkg/dotdir"
)

const (
	configFile = "config.toml"

	// v0 is the alpha version of the config
	v0 = 0

	// CurrentV is the currently supported version, points to v0
	CurrentV = v0
)

type Configer struct {
	ddm        *dotdir.Manager
	targetPath string
}

func NewConfiger(override string) (*Configer, error) {
	cfger := &Configer{}

	cfger.ddm = dotdir.NewManager()
	target, err := cfger.ddm.Target(override)
	if err != nil {
		return nil, err
	}

	// If no .folio/ directory was resolved, targetPath stays empty;
	// LoadConfig will return defaults and SaveConfig will error clearly.
	if target == "" {
		return cfger, nil
	}

	path := filepath.Join(target, configFile)
	_, err = os.Stat(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Always set targetPath when the directory exists so SaveConfig
	// can create or overwrite the file.
	cfger.targetPath = path

	return cfger, nil
}

// ValidConfigKeys returns the list of all supported configuration key names
// in the TOML section order.
func ValidConfigKeys() []string {
	ordered := []string{
		"api.listen",
		"api.api_key",
		"api.rate_limit",
		"api.burst",
		"client.api_target",
		"vector_store.provider",
		"vector_store.target",
		"vector_store.collection",
		"vector_store.api_key",
		"embedding.provider",
		"embedding.target",
		"embedding.model",
		"embedding.dimensions",
		"embedding.api_key",
		"memory.provider",
		"memory.target",
		"memory.enabled",
		"memory.max_turns",
		"memory.ttl_seconds",
		"images.endpoint",
		"images.token",
		"images.memo_ttl_seconds",
		"pipeline.max_candidates",
		"pipeline.max_selected",
		"pipeline.enable_reranking",
		"pipeline.enable_image_fetching",
		"pipeline.cache_ttl_seconds",
		"pipeline.history_window",
	}
	for _, stage := range modelStages {
		for _, field := range []string{"provider", "model", "temperature", "base_url"} {
			ordered = append(ordered, "models."+stage+"."+field)
		}
	}
	ordered = append(ordered,
		"timeouts.embedding_seconds",
		"timeouts.search_seconds",
		"timeouts.image_seconds",
		"timeouts.model_seconds",
		"events.provider",
		"events.brokers",
		"events.topic",
	)

	// Sanity: only return keys that actually exist in the map.
	result := make([]string, 0, len(configKeys))
	seen := make(map[string]bool, len(configKeys))
	for _, k := range ordered {
		if _, ok := configKeys[k]; ok {
			result = append(result, k)
			seen[k] = true
		}
	}

	// Append any keys in the map that we missed in the ordered list.
	var missed []string
	for k := range configKeys {
		if !seen[k] {
			missed = append(missed, k)
		}
	}
	slices.Sort(missed)

	return append(result, missed...)
}

// IsValidConfigKey returns true if the given key is a supported configuration key.
func IsValidConfigKey(key string) bool {
	_, ok := configKeys[key]
	return ok
}

func (c *Configer) GetTarget() string {
	return c.targetPath
}

// LoadConfig loads the configuration from config.toml in the target .folio/ directory.
// If the file does not exist, returns NewDefaultConfig() so callers always receive
// a fully-populated Config with sane defaults. Fields explicitly set in the file
// override the defaults.
func (c *Configer) LoadConfig() (*Config, error) {
	if c.targetPath == "" {
		return NewDefaultConfig(), nil
	}

	data, err := os.ReadFile(c.targetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewDefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg, md, err := parseConfig(data)
	if err != nil {
		return nil, err
	}

	// Merge in defaults: fill in any zero-value fields from the loaded config
	applyDefaults(cfg, md)

	return cfg, nil
}

// applyDefaults fills zero-value fields in cfg with values from NewDefaultConfig().
// Booleans and fields where zero is meaningful are only filled when md shows
// they were absent from the file.
func applyDefaults(cfg *Config, md toml.MetaData) {
	d := NewDefaultConfig()

	if cfg.Version == 0 {
		cfg.Version = d.Version
	}

	fillString(&cfg.API.Listen, d.API.Listen)
	fillString(&cfg.Client.APITarget, d.Client.APITarget)

	fillString(&cfg.VectorStore.Provider, d.VectorStore.Provider)
	fillString(&cfg.VectorStore.Collection, d.VectorStore.Collection)

	fillString(&cfg.Embedding.Provider, d.Embedding.Provider)
	fillString(&cfg.Embedding.Target, d.Embedding.Target)
	fillString(&cfg.Embedding.Model, d.Embedding.Model)
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = d.Embedding.Dimensions
	}

	fillString(&cfg.Memory.Provider, d.Memory.Provider)
	if !md.IsDefined("memory", "enabled") {
		cfg.Memory.Enabled = d.Memory.Enabled
	}
	fillInt(&cfg.Memory.MaxTurns, d.Memory.MaxTurns)
	fillInt(&cfg.Memory.TTLSeconds, d.Memory.TTLSeconds)

	fillInt(&cfg.Images.MemoTTLSeconds, d.Images.MemoTTLSeconds)

	fillInt(&cfg.Pipeline.MaxCandidates, d.Pipeline.MaxCandidates)
	fillInt(&cfg.Pipeline.MaxSelected, d.Pipeline.MaxSelected)
	if !md.IsDefined("pipeline", "enable_reranking") {
		cfg.Pipeline.EnableReranking = d.Pipeline.EnableReranking
	}
	if !md.IsDefined("pipeline", "enable_image_fetching") {
		cfg.Pipeline.EnableImageFetching = d.Pipeline.EnableImageFetching
	}
	if !md.IsDefined("pipeline", "cache_ttl_seconds") {
		cfg.Pipeline.CacheTTLSeconds = d.Pipeline.CacheTTLSeconds
	}
	if !md.IsDefined("pipeline", "history_window") {
		cfg.Pipeline.HistoryWindow = d.Pipeline.HistoryWindow
	}

	for _, stage := range modelStages {
		model, def := modelSection(stage)(cfg), modelSection(stage)(d)
		fillString(&model.Provider, def.Provider)
		if model.Model == "" {
			// A model name only makes sense for the provider it was chosen for.
			if model.Provider == def.Provider {
				model.Model = def.Model
			}
		}
		if !md.IsDefined("models", stage, "temperature") {
			model.Temperature = def.Temperature
		}
	}

	fillInt(&cfg.Timeouts.EmbeddingSeconds, d.Timeouts.EmbeddingSeconds)
	fillInt(&cfg.Timeouts.SearchSeconds, d.Timeouts.SearchSeconds)
	fillInt(&cfg.Timeouts.ImageSeconds, d.Timeouts.ImageSeconds)
	fillInt(&cfg.Timeouts.ModelSeconds, d.Timeouts.ModelSeconds)

	fillString(&cfg.Events.Provider, d.Events.Provider)
	fillString(&cfg.Events.Topic, d.Events.Topic)
}

func fillString(field *string, def string) {
	if *field == "" {
		*field = def
	}
}

func fillInt(field *int, def int) {
	if *field == 0 {
		*field = def
	}
}

// SaveConfig persists the configuration to config.toml in the target .folio/ directory.
func (c *Configer) SaveConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("cannot save nil config")
	}

	if c.targetPath == "" {
		return errors.New("cannot save empty target path")
	}

	var buf bytes.Buffer
	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(c.targetPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// SetConfigValue loads the config, sets the given key to the given value, and saves it.
// Returns an error if the key is not a valid config key.
func (c *Configer) SetConfigValue(key string, value string) error {
	info, ok := configKeys[key]
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return err
	}

	if err := info.set(cfg, value); err != nil {
		return err
	}

	return c.SaveConfig(cfg)
}

// GetConfigValue loads the config and returns the string representation of the given key.
// Returns an error if the key is not a valid config key.
func (c *Configer) GetConfigValue(key string) (string, error) {
	info, ok := configKeys[key]
	if !ok {
		return "", fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return "", err
	}

	return info.get(cfg), nil
}

// PresetConfig returns a Config with sane defaults for the named provider preset.
// Supported presets: "openai", "anthropic", "ollama".
// Returns an error if the preset name is not recognized.
func PresetConfig(name string) (*Config, error) {
	cfg := NewDefaultConfig()

	switch strings.ToLower(name) {
	case "openai":
		cfg.Embedding = EmbeddingConfig{
			Provider:   "openai",
			Model:      "text-embedding-3-small",
			Dimensions: 1536,
		}
		return cfg, nil

	case "anthropic":
		cfg.Models = ModelsConfig{
			Transform: ModelConfig{Provider: "anthropic", Model: "claude-haiku-4-5-20251001", Temperature: 0.3},
			Rerank:    ModelConfig{Provider: "anthropic", Model: "claude-sonnet-4-5", Temperature: 0.1},
			Synthesis: ModelConfig{Provider: "anthropic", Model: "claude-sonnet-4-5", Temperature: 0.7},
		}
		cfg.Embedding = EmbeddingConfig{
			Provider:   "voyage",
			Model:      "voyage-3",
			Dimensions: 1024,
		}
		return cfg, nil

	case "ollama":
		cfg.Models = ModelsConfig{
			Transform: ModelConfig{Provider: "ollama", Model: "llama3.2", Temperature: 0.3},
			Rerank:    ModelConfig{Provider: "ollama", Model: "llama3.2", Temperature: 0.1},
			Synthesis: ModelConfig{Provider: "ollama", Model: "llama3.2", Temperature: 0.7},
		}
		cfg.Embedding = EmbeddingConfig{
			Provider:   "ollama",
			Target:     "http://localhost:11434",
			Model:      "nomic-embed-text",
			Dimensions: 768,
		}
		return cfg, nil

	default:
		return nil, fmt.Errorf("unknown preset: %q (available: openai, anthropic, ollama)", name)
	}
}

// ValidPresetNames returns the list of recognized preset names.
func ValidPresetNames() []string {
	return []string{"openai", "anthropic", "ollama"}
}

// ParseConfigTOML parses raw TOML bytes into a Config.
// Returns an error if the version field is present and not equal to CurrentV.
func ParseConfigTOML(data []byte) (*Config, error) {
	cfg, _, err := parseConfig(data)
	return cfg, err
}

func parseConfig(data []byte) (*Config, toml.MetaData, error) {
	cfg := &Config{}
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, md, fmt.Errorf("parsing config TOML: %w", err)
	}

	if cfg.Version != 0 && cfg.Version != CurrentV {
		return nil, md, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentV)
	}

	return cfg, md, nil
}
