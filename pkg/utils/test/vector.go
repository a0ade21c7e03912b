package testutils

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/papercomputeco/folio/pkg/vector"
)

// MockVectorDriver is a test vector driver with canned query results.
type MockVectorDriver struct {
	mu        sync.Mutex
	documents []vector.Document
	results   []vector.QueryResult

	// QueryErrs are returned by successive Query calls before results are
	// served. A nil entry means "succeed".
	QueryErrs []error

	// Unordered serves the first topK results in insertion order, like a
	// store that does not rank its page.
	Unordered bool

	queries atomic.Int32
}

func NewMockVectorDriver(results ...vector.QueryResult) *MockVectorDriver {
	return &MockVectorDriver{
		documents: make([]vector.Document, 0),
		results:   results,
	}
}

// SetResults replaces the canned query results.
func (m *MockVectorDriver) SetResults(results ...vector.QueryResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = results
}

// Queries is the number of Query invocations.
func (m *MockVectorDriver) Queries() int {
	return int(m.queries.Load())
}

func (m *MockVectorDriver) Add(_ context.Context, docs []vector.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.documents = append(m.documents, docs...)
	return nil
}

func (m *MockVectorDriver) Query(_ context.Context, _ []float32, topK int) ([]vector.QueryResult, error) {
	n := int(m.queries.Add(1))

	m.mu.Lock()
	defer m.mu.Unlock()

	if n <= len(m.QueryErrs) && m.QueryErrs[n-1] != nil {
		return nil, m.QueryErrs[n-1]
	}

	out := append([]vector.QueryResult(nil), m.results...)
	if !m.Unordered {
		sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	}
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (m *MockVectorDriver) Get(_ context.Context, _ []string) ([]vector.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.documents, nil
}

func (m *MockVectorDriver) Delete(_ context.Context, _ []string) error {
	return nil
}

func (m *MockVectorDriver) Close() error {
	return nil
}

// Result builds a query result for a page chunk.
func Result(id, document string, page int, score float32, content string) vector.QueryResult {
	return vector.QueryResult{
		Document: vector.Document{
			ID:           id,
			DocumentName: document,
			PageNumber:   page,
			Content:      content,
		},
		Score: score,
	}
}
