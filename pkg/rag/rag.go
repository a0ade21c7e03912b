// Package rag holds the data model shared by every stage of the answering
// pipeline: conversation turns, candidate chunks, selections and the final
// answer result.
package rag

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

const (
	// RoleUser marks a turn written by the person asking questions.
	RoleUser = "user"

	// RoleAssistant marks a turn produced by the answering system.
	RoleAssistant = "assistant"
)

// Turn is one message of a conversation.
type Turn struct {
	Role    string `json:"role" validate:"required,oneof=user assistant"`
	Content string `json:"content"`
}

// History is an ordered conversation snapshot, oldest turn first.
type History []Turn

// Clone returns a copy of the history so callers can keep mutating their own
// slice while a request is in flight.
func (h History) Clone() History {
	if len(h) == 0 {
		return nil
	}
	out := make(History, len(h))
	copy(out, h)
	return out
}

// Last returns the trailing n turns of the history.
func (h History) Last(n int) History {
	if n <= 0 || len(h) == 0 {
		return nil
	}
	if n >= len(h) {
		return h
	}
	return h[len(h)-n:]
}

// Fingerprint summarises the trailing window turns of the history into a
// stable hex digest. Two histories with the same fingerprint are treated as
// equivalent for caching.
func (h History) Fingerprint(window int) string {
	hasher := sha256.New()
	for _, t := range h.Last(window) {
		hasher.Write([]byte(t.Role))
		hasher.Write([]byte{0})
		hasher.Write([]byte(NormalizeText(t.Content)))
		hasher.Write([]byte{0})
	}
	return hex.EncodeToString(hasher.Sum(nil))
}

// Query is the raw request entering the pipeline.
type Query struct {
	RawText string
	History History
}

// StandaloneQuery is a question that can be answered without the conversation.
type StandaloneQuery struct {
	Text         string `json:"text"`
	WasRewritten bool   `json:"was_rewritten"`
}

// Chunk is one indexed unit of document content, usually a single page.
type Chunk struct {
	ID              string            `json:"id"`
	DocumentName    string            `json:"document_name"`
	PageNumber      int               `json:"page_number"`
	Content         string            `json:"content"`
	Embedding       []float32         `json:"-"`
	ImageURL        string            `json:"image_url,omitempty"`
	SimilarityScore float32           `json:"similarity_score"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// Page returns the citation for the chunk.
func (c Chunk) Page() Page {
	return Page{
		DocumentName: c.DocumentName,
		PageNumber:   c.PageNumber,
		ImageURL:     c.ImageURL,
	}
}

// CandidateSet is an ordered list of chunks, best match first.
type CandidateSet []Chunk

// SortBySimilarity orders the set by descending similarity. Ties keep the
// order the store returned them in.
func (cs CandidateSet) SortBySimilarity() {
	sort.SliceStable(cs, func(i, j int) bool {
		return cs[i].SimilarityScore > cs[j].SimilarityScore
	})
}

// Top returns the first n chunks of the set.
func (cs CandidateSet) Top(n int) CandidateSet {
	if n <= 0 {
		return CandidateSet{}
	}
	if n >= len(cs) {
		return cs
	}
	return cs[:n]
}

// IDs returns the chunk identifiers in set order.
func (cs CandidateSet) IDs() []string {
	ids := make([]string, len(cs))
	for i, c := range cs {
		ids[i] = c.ID
	}
	return ids
}

// Lookup finds a chunk by ID.
func (cs CandidateSet) Lookup(id string) (Chunk, bool) {
	for _, c := range cs {
		if c.ID == id {
			return c, true
		}
	}
	return Chunk{}, false
}

// Clone copies the set. Chunk metadata maps are shared.
func (cs CandidateSet) Clone() CandidateSet {
	out := make(CandidateSet, len(cs))
	copy(out, cs)
	return out
}

// Selection is the subset of candidates chosen to answer a query.
type Selection struct {
	ChunkIDs      []string `json:"chunk_ids"`
	Justification string   `json:"justification"`
}

// Len is the number of selected chunks.
func (s Selection) Len() int {
	return len(s.ChunkIDs)
}

// Chunks resolves the selection against the candidate set, keeping selection
// order. Identifiers that are not in the set are skipped.
func (s Selection) Chunks(cs CandidateSet) CandidateSet {
	out := make(CandidateSet, 0, len(s.ChunkIDs))
	for _, id := range s.ChunkIDs {
		if c, ok := cs.Lookup(id); ok {
			out = append(out, c)
		}
	}
	return out
}

// SelectTop builds a selection from the first n candidates.
func SelectTop(cs CandidateSet, n int, justification string) Selection {
	return Selection{
		ChunkIDs:      cs.Top(n).IDs(),
		Justification: justification,
	}
}

// Page is a cited document page.
type Page struct {
	DocumentName string `json:"document_name"`
	PageNumber   int    `json:"page_number"`
	ImageURL     string `json:"image_url,omitempty"`
}

// AnswerResult is the terminal artifact returned to callers.
type AnswerResult struct {
	AnswerText      string          `json:"answer_text"`
	SelectedPages   []Page          `json:"selected_pages"`
	Justification   string          `json:"justification"`
	ElapsedSeconds  float64         `json:"elapsed_seconds"`
	CacheHit        bool            `json:"cache_hit"`
	StandaloneQuery StandaloneQuery `json:"standalone_query"`
	TotalCandidates int             `json:"total_candidates"`
}

// Clone copies the result including its page slice.
func (r AnswerResult) Clone() AnswerResult {
	out := r
	if r.SelectedPages != nil {
		out.SelectedPages = make([]Page, len(r.SelectedPages))
		copy(out.SelectedPages, r.SelectedPages)
	}
	return out
}

// NormalizeText lowercases, trims and collapses inner whitespace.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
