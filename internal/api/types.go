package api

import (
	"fmt"
	"strings"
	"time"
)

// Status is the server-driven lifecycle state of a research session. The
// client never invents one except the optimistic StatusRunning set right
// after a send.
type Status string

const (
	StatusNew               Status = "NEW"
	StatusQueue             Status = "QUEUE"
	StatusStart             Status = "START"
	StatusRunning           Status = "RUNNING"
	StatusInScope           Status = "IN_SCOPE"
	StatusInResearch        Status = "IN_RESEARCH"
	StatusInReport          Status = "IN_REPORT"
	StatusNeedClarification Status = "NEED_CLARIFICATION"
	StatusCompleted         Status = "COMPLETED"
	StatusFailed            Status = "FAILED"
	StatusCancelled         Status = "CANCELLED"
)

// Terminal reports whether no further deltas will arrive for the session.
func (s Status) Terminal() bool {
	switch Status(strings.ToUpper(string(s))) {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Active is the inverse of Terminal. Unknown statuses count as active so a
// newer server can introduce intermediate states without stranding clients.
func (s Status) Active() bool { return !s.Terminal() }

// AcceptsInput reports whether the composer should be offered for the session.
func (s Status) AcceptsInput() bool {
	switch Status(strings.ToUpper(string(s))) {
	case StatusNew, StatusNeedClarification, StatusCompleted, StatusFailed, "":
		return true
	}
	return false
}

// Budget is the research effort tier attached to a session's first message.
type Budget string

const (
	BudgetMedium Budget = "MEDIUM"
	BudgetHigh   Budget = "HIGH"
	BudgetUltra  Budget = "ULTRA"
)

// Label is the tier name shown in the UI.
func (b Budget) Label() string {
	switch b {
	case BudgetMedium:
		return "basic"
	case BudgetHigh:
		return "advanced"
	case BudgetUltra:
		return "flagship"
	}
	return string(b)
}

// Time handles the backend's zone-less LocalDateTime serialization alongside
// RFC 3339.
type Time struct {
	time.Time
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

func (t *Time) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unrecognized time %q", s)
}

func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + t.Format(time.RFC3339Nano) + `"`), nil
}

// ChatMessage is one chat turn within a session.
type ChatMessage struct {
	ID         int64  `json:"id"`
	ResearchID string `json:"researchId"`
	Role       string `json:"role"` // user | assistant
	Content    string `json:"content"`
	SequenceNo int64  `json:"sequenceNo,omitempty"`
	CreateTime Time   `json:"createTime"`
}

// WorkflowEvent is one step reported by the backend agent pipeline. A zero
// ParentEventID means the event is a root.
type WorkflowEvent struct {
	ID            int64  `json:"id"`
	ResearchID    string `json:"researchId"`
	Type          string `json:"type"` // e.g. SCOPE, SUPERVISOR, RESEARCH, SEARCH, REPORT
	Title         string `json:"title"`
	Content       string `json:"content,omitempty"`
	ParentEventID int64  `json:"parentEventId,omitempty"`
	SequenceNo    int64  `json:"sequenceNo,omitempty"`
	CreateTime    Time   `json:"createTime"`
}

// HasDetail reports whether Content adds anything over Title.
func (e WorkflowEvent) HasDetail() bool {
	return e.Content != "" && e.Content != e.Title
}

// StatusResponse is the lightweight per-session status snapshot.
type StatusResponse struct {
	ID                string `json:"id"`
	Title             string `json:"title,omitempty"`
	Status            Status `json:"status"`
	ModelID           string `json:"modelId,omitempty"`
	Budget            Budget `json:"budget,omitempty"`
	StartTime         Time   `json:"startTime,omitempty"`
	UpdateTime        Time   `json:"updateTime,omitempty"`
	CompleteTime      Time   `json:"completeTime,omitempty"`
	TotalInputTokens  int64  `json:"totalInputTokens,omitempty"`
	TotalOutputTokens int64  `json:"totalOutputTokens,omitempty"`
}

// MessagesResponse is the full snapshot: status plus ordered message and
// event collections.
type MessagesResponse struct {
	ID                string          `json:"id"`
	Status            Status          `json:"status"`
	Messages          []ChatMessage   `json:"messages"`
	Events            []WorkflowEvent `json:"events"`
	StartTime         Time            `json:"startTime,omitempty"`
	UpdateTime        Time            `json:"updateTime,omitempty"`
	CompleteTime      Time            `json:"completeTime,omitempty"`
	TotalInputTokens  int64           `json:"totalInputTokens,omitempty"`
	TotalOutputTokens int64           `json:"totalOutputTokens,omitempty"`
}

// CreateResponse carries the pre-allocated session ids, all in NEW status.
type CreateResponse struct {
	ResearchIDs []string `json:"researchIds"`
}

// SendMessageRequest submits user input. Model binding and budget are only
// honored on a session's first message.
type SendMessageRequest struct {
	Content   string `json:"content"`
	ModelName string `json:"modelName,omitempty"`
	ModelID   string `json:"modelId,omitempty"`
	BaseURL   string `json:"baseUrl,omitempty"`
	APIKey    string `json:"apiKey,omitempty"`
	Budget    Budget `json:"budget,omitempty"`
}

// SendMessageResponse echoes the stored message.
type SendMessageResponse struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

// ModelInfo describes a platform-provided model.
type ModelInfo struct {
	ModelName string `json:"modelName"`
	Model     string `json:"model"`
}

// result is the backend's uniform response envelope.
type result[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

// APIError is a non-zero envelope code with the server's message.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server error (code %d)", e.Code)
	}
	return e.Message
}
