package images

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/papercomputeco/folio/pkg/utils"
)

const defaultProbeTimeout = 3 * time.Second

// ObjectStore answers whether a page image exists and where it lives.
type ObjectStore interface {
	// Exists probes for key. A nil error with false means the object is
	// definitively absent; an error means the store could not answer.
	Exists(ctx context.Context, key string) (bool, error)

	// URL is the public location of key.
	URL(key string) string
}

// HTTPStoreConfig configures an HTTPStore.
type HTTPStoreConfig struct {
	// Endpoint is the base URL of the object store worker.
	Endpoint string

	// Token is sent as a bearer token when set.
	Token string

	// Timeout bounds each probe. Defaults to 3s.
	Timeout time.Duration

	HTTPClient *http.Client
}

// HTTPStore probes page images with HEAD requests against
// {endpoint}/file/{key}.png.
type HTTPStore struct {
	endpoint string
	token    string
	timeout  time.Duration
	client   *http.Client
}

// NewHTTPStore builds an HTTPStore.
func NewHTTPStore(cfg HTTPStoreConfig) (*HTTPStore, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("image store endpoint is required")
	}
	if _, err := url.Parse(cfg.Endpoint); err != nil {
		return nil, fmt.Errorf("invalid image store endpoint: %w", err)
	}

	s := &HTTPStore{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		token:    cfg.Token,
		timeout:  cfg.Timeout,
		client:   cfg.HTTPClient,
	}
	if s.timeout <= 0 {
		s.timeout = defaultProbeTimeout
	}
	if s.client == nil {
		s.client = http.DefaultClient
	}
	return s, nil
}

// URL returns the file URL for key.
func (s *HTTPStore) URL(key string) string {
	return s.endpoint + "/file/" + url.PathEscape(key) + ".png"
}

// Exists sends a HEAD request for key. 200 means present, 404 absent; any
// other status is a store error.
func (s *HTTPStore) Exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.do(ctx, http.MethodHead, s.URL(key))
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("image store returned status %d for %s", resp.StatusCode, key)
	}
}

// Ping checks that the store answers its stats endpoint.
func (s *HTTPStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.do(ctx, http.MethodGet, s.endpoint+"/stats")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("image store stats returned status %d", resp.StatusCode)
	}
	return nil
}

func (s *HTTPStore) do(ctx context.Context, method, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", utils.UserAgent())
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("image store request failed: %w", err)
	}
	return resp, nil
}
