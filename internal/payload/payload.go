package payload

import (
	"fmt"
	"time"
)

// Response status values in the canonical payload.
const (
	StatusComplete = "complete"
	StatusPartial  = "partial"
)

// Answer is one answered field inside a canonical payload.
type Answer struct {
	Field    FieldDescriptor `json:"field"`
	Type     FieldType       `json:"type"`
	Value    Value           `json:"value"`
	FileURLs []string        `json:"file_urls,omitempty"`
}

// Metadata carries submission context. Completion time fields are present
// iff both created_at and submitted_at are known, and are always derived
// from the same second count.
type Metadata struct {
	CompletionTimeSeconds *int64 `json:"completion_time_seconds,omitempty"`
	CompletionTimeLabel   string `json:"completion_time_label,omitempty"`
	UserAgent             string `json:"user_agent,omitempty"`
	IPAddress             string `json:"ip_address,omitempty"`
	Referer               string `json:"referer,omitempty"`
}

// Payload is the canonical external representation of a submitted form
// response. It is materialized fresh from the underlying rows on every
// request or dispatch and never persisted, so it reflects current field
// labels and types rather than the labels at submission time.
type Payload struct {
	ID              string            `json:"id"`
	FormID          string            `json:"form_id"`
	FormTitle       string            `json:"form_title"`
	Status          string            `json:"status"`
	RespondentID    string            `json:"respondent_id,omitempty"`
	RespondentEmail string            `json:"respondent_email,omitempty"`
	CreatedAt       *time.Time        `json:"created_at"`
	SubmittedAt     *time.Time        `json:"submitted_at"`
	URLParams       map[string]string `json:"url_params,omitempty"`
	Metadata        Metadata          `json:"metadata"`
	Answers         []Answer          `json:"answers"`
}

// completionTime derives the second count and its human bucket from the
// created/submitted pair. Returns (0, "", false) when either side is missing.
func completionTime(createdAt, submittedAt *time.Time) (int64, string, bool) {
	if createdAt == nil || submittedAt == nil {
		return 0, "", false
	}
	seconds := submittedAt.Sub(*createdAt).Milliseconds() / 1000
	return seconds, completionTimeLabel(seconds), true
}

// completionTimeLabel buckets a second count into a coarse human label.
// Minutes round down and are never re-pluralized ("1 minutes" is the
// long-observed output for 90s), same for hours.
func completionTimeLabel(seconds int64) string {
	switch {
	case seconds < 60:
		return "Less than 1 minute"
	case seconds < 3600:
		return fmt.Sprintf("%d minutes", seconds/60)
	default:
		return fmt.Sprintf("%d hours", seconds/3600)
	}
}
