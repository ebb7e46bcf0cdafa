package model

import "encoding/json"

// AnswerPatch is the body of PATCH /answers/{questionId}
type AnswerPatch struct {
	Value    json.RawMessage `json:"value,omitempty"`
	OptionID *string         `json:"option_id,omitempty"`
	Clear    bool            `json:"clear,omitempty"`
}

// HasValue reports whether a value was supplied; a JSON null counts as absent
func (p *AnswerPatch) HasValue() bool {
	return len(p.Value) > 0 && string(p.Value) != "null"
}

// SavedAnswer identifies the row touched by a write
type SavedAnswer struct {
	QuestionID   string `json:"question_id"`
	StateVersion int64  `json:"state_version"`
}

// EventType names a domain event emitted by a write
type EventType string

const (
	EventAnswerSaved      EventType = "answer.saved"
	EventAnswerCleared    EventType = "answer.cleared"
	EventQuestionShown    EventType = "question.shown"
	EventQuestionHidden   EventType = "question.hidden"
	EventAnswerSuppressed EventType = "answer.suppressed"
)

// Event is reported in write responses
type Event struct {
	Type       EventType `json:"type"`
	QuestionID string    `json:"question_id"`
}

// SaveResponse is the body returned by an accepted write
type SaveResponse struct {
	Saved             SavedAnswer     `json:"saved"`
	ETag              string          `json:"etag"`
	ScreenView        ScreenView      `json:"screen_view"`
	VisibilityDelta   VisibilityDelta `json:"visibility_delta"`
	SuppressedAnswers []string        `json:"suppressed_answers"`
	Events            []Event         `json:"events"`
}

// SaveResult carries the encoded body so replays can return identical bytes
type SaveResult struct {
	Body      []byte
	ETag      string
	ScreenKey string
	Replayed  bool
	Response  *SaveResponse // nil when Replayed
}

// BatchRequest is the body of POST /answers:batch
type BatchRequest struct {
	Items []BatchItem `json:"items" validate:"required,min=1,max=100,dive"`
}

// BatchItem is one write within a batch
type BatchItem struct {
	QuestionID string      `json:"question_id" validate:"required"`
	ETag       string      `json:"etag"`
	Body       AnswerPatch `json:"body"`
}

// BatchOutcome values
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// BatchItemError is the structured error of one failed item
type BatchItemError struct {
	Status int    `json:"status"`
	Code   string `json:"code"`
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
}

// BatchItemResult mirrors one input item
type BatchItemResult struct {
	QuestionID string          `json:"question_id"`
	Outcome    string          `json:"outcome"`
	ETag       string          `json:"etag,omitempty"`
	Error      *BatchItemError `json:"error,omitempty"`
}

// BatchResult keeps items in submission order
type BatchResult struct {
	Items []BatchItemResult `json:"items"`
}
