package domain

// LineItem is a single dish extracted from an uploaded menu. Identity is ID;
// the struct is immutable once submitted to a batch.
type LineItem struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Price       string `json:"price,omitempty"`
	Category    string `json:"category,omitempty"`
}

// OutcomeStatus enumerates terminal states for one generated dish photo.
type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeFailed  OutcomeStatus = "failed"
)

// GenerationOutcome is produced exactly once per line item per batch, after
// retries are exhausted or a generation succeeds.
type GenerationOutcome struct {
	URL          string        `json:"url,omitempty"`
	LineItemID   string        `json:"lineItemId"`
	Status       OutcomeStatus `json:"status"`
	ErrorMessage string        `json:"errorMessage,omitempty"`
}

// ProcessingState enumerates session lifecycle states.
type ProcessingState string

const (
	ProcessingPending    ProcessingState = "pending"
	ProcessingInProgress ProcessingState = "processing"
	ProcessingCompleted  ProcessingState = "completed"
	ProcessingFailed     ProcessingState = "failed"
)

// ProcessingResult is the durable artifact cached per session.
type ProcessingResult struct {
	OriginalImage    string              `json:"originalImage"`
	ExtractedItems   []LineItem          `json:"extractedItems"`
	GeneratedImages  []GenerationOutcome `json:"generatedImages"`
	ProcessingStatus ProcessingState     `json:"processingStatus"`
}

// SessionStatus is the coarse status projection served alongside results.
// Progress here is derived from the processing state, not from live batch
// counters; the scheduler serves fine-grained progress separately.
type SessionStatus struct {
	State    ProcessingState `json:"status"`
	Progress int             `json:"progress"`
	Stage    string          `json:"stage"`
}

// StatusUpdate carries a partial status merge. Nil fields are left untouched.
type StatusUpdate struct {
	State    *ProcessingState `json:"status,omitempty"`
	Progress *int             `json:"progress,omitempty"`
	Stage    *string          `json:"stage,omitempty"`
}
