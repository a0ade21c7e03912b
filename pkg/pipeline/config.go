package pipeline

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	DefaultMaxCandidates = 10
	DefaultMaxSelected   = 2
	DefaultCacheTTL      = 300 * time.Second
	DefaultHistoryWindow = 4
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config bounds and toggles pipeline stages. It never changes stage order.
type Config struct {
	// MaxCandidates is the top-K of the similarity search.
	MaxCandidates int `json:"max_candidates" validate:"min=1,max=100"`

	// MaxSelected caps the pages passed to synthesis.
	MaxSelected int `json:"max_selected" validate:"min=1,ltefield=MaxCandidates"`

	EnableReranking     bool `json:"enable_reranking"`
	EnableImageFetching bool `json:"enable_image_fetching"`

	// CacheTTL is the response cache lifetime. Zero disables the cache.
	CacheTTL time.Duration `json:"cache_ttl" validate:"min=0"`

	// HistoryWindow is the number of trailing turns that shape a request.
	HistoryWindow int `json:"history_window" validate:"min=0,max=50"`
}

// DefaultConfig returns the shipped pipeline settings.
func DefaultConfig() Config {
	return Config{
		MaxCandidates:       DefaultMaxCandidates,
		MaxSelected:         DefaultMaxSelected,
		EnableReranking:     true,
		EnableImageFetching: true,
		CacheTTL:            DefaultCacheTTL,
		HistoryWindow:       DefaultHistoryWindow,
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return nil
}

// fingerprint covers every field that shapes an answer.
func (c Config) fingerprint() string {
	return strings.Join([]string{
		strconv.Itoa(c.MaxCandidates),
		strconv.Itoa(c.MaxSelected),
		strconv.FormatBool(c.EnableReranking),
		strconv.FormatBool(c.EnableImageFetching),
		strconv.Itoa(c.HistoryWindow),
	}, ",")
}
