package llm

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/papercomputeco/folio/pkg/credentials"
	"github.com/papercomputeco/folio/pkg/logger"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultMaxTokens = 1024
)

// CallerConfig holds configuration for creating a model caller.
type CallerConfig struct {
	Provider    string               // "openai", "anthropic", or "ollama"
	Model       string               // e.g. "gpt-4o-mini", "claude-haiku-4-5-20251001"
	APIKey      string               // explicit API key (highest priority)
	BaseURL     string               // override base URL
	Temperature float64              // sampling temperature
	MaxTokens   int                  // default output budget
	Timeout     time.Duration        // per call timeout, 30s when zero
	CredMgr     *credentials.Manager // credentials from folio auth
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

// HasCredentials checks whether an API key can be resolved from the config
// without creating a caller.
func HasCredentials(cfg CallerConfig) bool {
	provider := strings.ToLower(cfg.Provider)
	if provider == ProviderOllama {
		return true
	}
	return resolveAPIKey(cfg, provider) != ""
}

// NewCaller creates a CallFunc based on the provided configuration.
// Resolution order for API key:
//  1. Explicit APIKey in config
//  2. credentials.Manager (from folio auth)
//  3. Environment variables (OPENAI_API_KEY / ANTHROPIC_API_KEY)
//  4. Fall back to Ollama at localhost:11434
func NewCaller(cfg CallerConfig) (CallFunc, error) {
	provider := strings.ToLower(cfg.Provider)
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}

	apiKey := resolveAPIKey(cfg, provider)
	if apiKey == "" && provider != ProviderOllama {
		log.Warn("no API key found, falling back to ollama", "provider", provider, "model", cfg.Model)
		provider = ProviderOllama
		cfg.Model = ""
		cfg.BaseURL = ""
	}

	h := &httpCaller{
		apiKey:      apiKey,
		model:       cfg.Model,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.Timeout,
		client:      cfg.HTTPClient,
	}
	if h.maxTokens <= 0 {
		h.maxTokens = defaultMaxTokens
	}
	if h.timeout <= 0 {
		h.timeout = defaultTimeout
	}
	if h.client == nil {
		h.client = http.DefaultClient
	}

	switch provider {
	case ProviderOpenAI, "":
		h.defaults("gpt-4o-mini", "https://api.openai.com")
		return h.callOpenAI, nil

	case ProviderAnthropic:
		h.defaults("claude-haiku-4-5-20251001", "https://api.anthropic.com")
		return h.callAnthropic, nil

	case ProviderOllama:
		h.defaults("llama3.2", "http://localhost:11434")
		return h.callOllama, nil

	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

func resolveAPIKey(cfg CallerConfig, provider string) string {
	switch provider {
	case ProviderAnthropic:
		return credentials.Resolve(cfg.CredMgr, credentials.ProviderAnthropic, cfg.APIKey)
	case ProviderOllama:
		return cfg.APIKey
	default:
		return credentials.Resolve(cfg.CredMgr, credentials.ProviderOpenAI, cfg.APIKey)
	}
}

// httpCaller carries the resolved settings shared by every provider call.
type httpCaller struct {
	apiKey      string
	model       string
	baseURL     string
	temperature float64
	maxTokens   int
	timeout     time.Duration
	client      *http.Client
}

func (h *httpCaller) defaults(model, baseURL string) {
	if h.model == "" {
		h.model = model
	}
	if h.baseURL == "" {
		h.baseURL = baseURL
	}
}

func (h *httpCaller) tokens(req Request) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return h.maxTokens
}
