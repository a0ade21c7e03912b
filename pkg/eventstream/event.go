package eventstream

import (
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/folio/pkg/rag"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeAnswerCompleted is emitted after an answer is returned.
	EventTypeAnswerCompleted = "folio.answer.completed"

	// SourceService names the emitting service.
	SourceService = "folio"
)

// AnswerCompletedEvent is a transport-neutral payload describing one
// answered query.
type AnswerCompletedEvent struct {
	SchemaVersion int               `json:"schema_version"`
	EventType     string            `json:"event_type"`
	EventID       string            `json:"event_id"`
	EmittedAt     time.Time         `json:"emitted_at"`
	Source        EventSource       `json:"source"`
	RequestMeta   AnswerRequestMeta `json:"request_meta"`
	Query         AnswerQuery       `json:"query"`
	Answer        AnswerPayload     `json:"answer"`
}

// EventSource identifies where the answer was produced.
type EventSource struct {
	Service   string `json:"service"`
	SessionID string `json:"session_id,omitempty"`
}

// AnswerRequestMeta captures request lifecycle metadata.
type AnswerRequestMeta struct {
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMs  int64     `json:"duration_ms"`
	CacheHit    bool      `json:"cache_hit"`
}

// AnswerQuery records the raw and standalone forms of the question.
type AnswerQuery struct {
	Raw          string `json:"raw"`
	Standalone   string `json:"standalone"`
	WasRewritten bool   `json:"was_rewritten"`
}

// AnswerPayload is the answer and its citations.
type AnswerPayload struct {
	Text            string     `json:"text"`
	Pages           []rag.Page `json:"pages"`
	Justification   string     `json:"justification"`
	TotalCandidates int        `json:"total_candidates"`
}

// NewAnswerCompletedEvent builds an event for result. The event id is a
// random UUID.
func NewAnswerCompletedEvent(sessionID, rawQuery string, result *rag.AnswerResult, startedAt time.Time) *AnswerCompletedEvent {
	now := time.Now().UTC()
	return &AnswerCompletedEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeAnswerCompleted,
		EventID:       uuid.NewString(),
		EmittedAt:     now,
		Source: EventSource{
			Service:   SourceService,
			SessionID: sessionID,
		},
		RequestMeta: AnswerRequestMeta{
			StartedAt:   startedAt.UTC(),
			CompletedAt: now,
			DurationMs:  now.Sub(startedAt).Milliseconds(),
			CacheHit:    result.CacheHit,
		},
		Query: AnswerQuery{
			Raw:          rawQuery,
			Standalone:   result.StandaloneQuery.Text,
			WasRewritten: result.StandaloneQuery.WasRewritten,
		},
		Answer: AnswerPayload{
			Text:            result.AnswerText,
			Pages:           result.SelectedPages,
			Justification:   result.Justification,
			TotalCandidates: result.TotalCandidates,
		},
	}
}
