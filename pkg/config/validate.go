package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/papercomputeco/folio/pkg/pipeline"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks provider names, ranges and the pipeline bounds.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := c.PipelineSettings().Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// PipelineSettings converts the [pipeline] section into pipeline.Config.
func (c *Config) PipelineSettings() pipeline.Config {
	p := c.Pipeline
	return pipeline.Config{
		MaxCandidates:       p.MaxCandidates,
		MaxSelected:         p.MaxSelected,
		EnableReranking:     p.EnableReranking,
		EnableImageFetching: p.EnableImageFetching,
		CacheTTL:            seconds(p.CacheTTLSeconds),
		HistoryWindow:       p.HistoryWindow,
	}
}

// Embedding returns the embedding request timeout.
func (t TimeoutsConfig) Embedding() time.Duration { return seconds(t.EmbeddingSeconds) }

// Search returns the vector query timeout.
func (t TimeoutsConfig) Search() time.Duration { return seconds(t.SearchSeconds) }

// Image returns the image probe timeout.
func (t TimeoutsConfig) Image() time.Duration { return seconds(t.ImageSeconds) }

// Model returns the per call model timeout.
func (t TimeoutsConfig) Model() time.Duration { return seconds(t.ModelSeconds) }

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// TTL is how long idle sessions are kept.
func (m MemoryConfig) TTL() time.Duration { return seconds(m.TTLSeconds) }

// MemoTTL is how long image probe outcomes are remembered.
func (i ImagesConfig) MemoTTL() time.Duration { return seconds(i.MemoTTLSeconds) }
