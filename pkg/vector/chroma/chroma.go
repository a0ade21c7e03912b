// Package chroma provides a Chroma vector database driver implementation.
package chroma

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/papercomputeco/folio/pkg/vector"
)

const (
	// DefaultCollectionName is the default collection name for page chunks.
	DefaultCollectionName = "folio"

	defaultMaxRetries    = 5
	defaultRetryDelay    = 500 * time.Millisecond
	defaultMaxRetryDelay = 5 * time.Second

	collectionsPath = "/api/v2/tenants/default_tenant/databases/default_database/collections"
)

// Driver implements vector.Driver using Chroma's REST API.
type Driver struct {
	baseURL        string
	collectionName string
	collectionID   string
	httpClient     *http.Client
	logger         *slog.Logger
}

// Config holds configuration for the Chroma driver.
type Config struct {
	// URL is the Chroma server URL (e.g., "http://localhost:8000").
	URL string

	// CollectionName is the name of the collection to use.
	// Defaults to DefaultCollectionName if empty.
	CollectionName string

	// MaxRetries bounds connection attempts while Chroma starts up.
	MaxRetries int

	// RetryDelay is the initial delay between connection attempts.
	RetryDelay time.Duration

	// MaxRetryDelay caps the exponential delay between attempts.
	MaxRetryDelay time.Duration
}

// NewDriver creates a new Chroma vector driver. It resolves (or creates) the
// collection, retrying with exponential backoff while the server is starting.
func NewDriver(c Config, logger *slog.Logger) (*Driver, error) {
	if c.URL == "" {
		return nil, errors.New("chroma URL is required")
	}

	collectionName := c.CollectionName
	if collectionName == "" {
		collectionName = DefaultCollectionName
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = defaultRetryDelay
	}
	if c.MaxRetryDelay <= 0 {
		c.MaxRetryDelay = defaultMaxRetryDelay
	}

	d := &Driver{
		baseURL:        strings.TrimRight(c.URL, "/"),
		collectionName: collectionName,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger,
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.RetryDelay
	b.MaxInterval = c.MaxRetryDelay

	collectionID, err := backoff.Retry(context.Background(), func() (string, error) {
		return d.getOrCreateCollection(context.Background())
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(c.MaxRetries)),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Warn("chroma not ready, retrying", "error", err, "retry_in", next)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: collection %q after %d attempts: %v", vector.ErrConnection, collectionName, c.MaxRetries, err)
	}
	d.collectionID = collectionID

	logger.Info("connected to Chroma",
		"url", c.URL,
		"collection", collectionName,
		"collection_id", collectionID,
	)

	return d, nil
}

// getOrCreateCollection gets an existing collection or creates a new one.
func (d *Driver) getOrCreateCollection(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+collectionsPath+"/"+d.collectionName, nil)
	if err != nil {
		return "", fmt.Errorf("creating get request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("sending get request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		var collection chromaCollection
		if err := json.NewDecoder(resp.Body).Decode(&collection); err != nil {
			return "", fmt.Errorf("decoding collection response: %w", err)
		}
		return collection.ID, nil
	}

	var collection chromaCollection
	if err := d.post(ctx, "create collection", collectionsPath, map[string]string{"name": d.collectionName}, &collection); err != nil {
		return "", err
	}
	return collection.ID, nil
}

// post sends a JSON body to the given path and decodes the response into out
// when out is non-nil.
func (d *Driver) post(ctx context.Context, op, path string, body, out any) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling %s request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("creating %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: sending %s request: %w", vector.ErrConnection, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		raw, _ := io.ReadAll(resp.Body)
		return &vector.StatusError{Op: "chroma " + op, StatusCode: resp.StatusCode, Body: string(raw)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", op, err)
	}
	return nil
}

func (d *Driver) collectionPath(action string) string {
	return collectionsPath + "/" + d.collectionID + "/" + action
}

// Add upserts documents with their embeddings. Chunk fields are stored in
// the collection metadata and the content as the Chroma document.
func (d *Driver) Add(ctx context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}

	reqBody := chromaAddRequest{
		IDs:        make([]string, len(docs)),
		Embeddings: make([][]float32, len(docs)),
		Metadatas:  make([]map[string]any, len(docs)),
		Documents:  make([]string, len(docs)),
	}

	for i, doc := range docs {
		reqBody.IDs[i] = doc.ID
		reqBody.Embeddings[i] = doc.Embedding
		reqBody.Metadatas[i] = toMetadata(doc)
		reqBody.Documents[i] = doc.Content
	}

	if err := d.post(ctx, "upsert", d.collectionPath("upsert"), reqBody, nil); err != nil {
		return err
	}

	d.logger.Debug("added documents to chroma", "count", len(docs))

	return nil
}

// Query finds the topK most similar documents to the given embedding.
func (d *Driver) Query(ctx context.Context, embedding []float32, topK int) ([]vector.QueryResult, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: topK must be positive, got %d", vector.ErrInvalidRequest, topK)
	}

	reqBody := chromaQueryRequest{
		QueryEmbeddings: [][]float32{embedding},
		NResults:        topK,
		Include:         []string{"metadatas", "documents", "distances"},
	}

	var queryResp chromaQueryResponse
	if err := d.post(ctx, "query", d.collectionPath("query"), reqBody, &queryResp); err != nil {
		return nil, err
	}

	var results []vector.QueryResult

	// Only one query embedding is sent, so only the first group matters.
	if len(queryResp.IDs) == 0 || len(queryResp.IDs[0]) == 0 {
		return results, nil
	}

	ids := queryResp.IDs[0]
	distances := firstGroup(queryResp.Distances)
	metadatas := firstGroup(queryResp.Metadatas)
	documents := firstGroup(queryResp.Documents)

	for i, id := range ids {
		result := vector.QueryResult{Document: fromMetadata(id, at(metadatas, i), at(documents, i))}

		// Lower distance = higher similarity
		if i < len(distances) {
			result.Score = 1.0 / (1.0 + distances[i])
		}

		results = append(results, result)
	}

	d.logger.Debug("queried chroma", "results", len(results))

	return results, nil
}

// Get retrieves documents by their IDs.
func (d *Driver) Get(ctx context.Context, ids []string) ([]vector.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	reqBody := chromaGetRequest{
		IDs:     ids,
		Include: []string{"metadatas", "documents", "embeddings"},
	}

	var getResp chromaGetResponse
	if err := d.post(ctx, "get", d.collectionPath("get"), reqBody, &getResp); err != nil {
		return nil, err
	}

	docs := make([]vector.Document, len(getResp.IDs))
	for i, id := range getResp.IDs {
		docs[i] = fromMetadata(id, at(getResp.Metadatas, i), at(getResp.Documents, i))
		if i < len(getResp.Embeddings) {
			docs[i].Embedding = getResp.Embeddings[i]
		}
	}

	return docs, nil
}

// Delete removes documents by their IDs.
func (d *Driver) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	if err := d.post(ctx, "delete", d.collectionPath("delete"), chromaDeleteRequest{IDs: ids}, nil); err != nil {
		return err
	}

	d.logger.Debug("deleted documents from chroma", "count", len(ids))

	return nil
}

// Ping checks the Chroma heartbeat endpoint.
func (d *Driver) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/api/v2/heartbeat", nil)
	if err != nil {
		return fmt.Errorf("creating heartbeat request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", vector.ErrConnection, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &vector.StatusError{Op: "chroma heartbeat", StatusCode: resp.StatusCode}
	}
	return nil
}

// Close releases resources held by the driver.
func (d *Driver) Close() error {
	return nil
}

func toMetadata(doc vector.Document) map[string]any {
	meta := make(map[string]any, len(doc.Metadata)+3)
	for k, v := range doc.Metadata {
		meta[k] = v
	}
	meta[vector.MetaDocumentName] = doc.DocumentName
	meta[vector.MetaPageNumber] = doc.PageNumber
	if doc.ImageURL != "" {
		meta[vector.MetaImageURL] = doc.ImageURL
	}
	return meta
}

func fromMetadata(id string, meta map[string]any, content string) vector.Document {
	doc := vector.Document{ID: id, Content: content}

	for k, v := range meta {
		switch k {
		case vector.MetaDocumentName:
			doc.DocumentName, _ = v.(string)
		case vector.MetaPageNumber:
			doc.PageNumber = toInt(v)
		case vector.MetaImageURL:
			doc.ImageURL, _ = v.(string)
		default:
			if doc.Metadata == nil {
				doc.Metadata = make(map[string]string)
			}
			doc.Metadata[k] = fmt.Sprint(v)
		}
	}

	return doc
}

func toInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case string:
		i, _ := strconv.Atoi(n)
		return i
	}
	return 0
}

func firstGroup[T any](groups [][]T) []T {
	if len(groups) == 0 {
		return nil
	}
	return groups[0]
}

func at[T any](items []T, i int) T {
	var zero T
	if i < len(items) {
		return items[i]
	}
	return zero
}
