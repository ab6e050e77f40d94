package api

import (
	"time"

	"github.com/manzoorua/formsedge-sub001/internal/dispatch"
	"github.com/manzoorua/formsedge-sub001/internal/payload"
)

// GetResponseResponse is returned by GET /responses/{responseID}.
type GetResponseResponse struct {
	Item *payload.Payload `json:"item"`
}

// ListResponsesResponse is returned by GET /responses.
type ListResponsesResponse struct {
	Items      []*payload.Payload `json:"items"`
	TotalCount int                `json:"total_count"`
	PageSize   int                `json:"page_size"`
	NextCursor *string            `json:"next_cursor"`
	HasMore    bool               `json:"has_more"`
}

// DeliveryItem is one delivery-log row in GET /deliveries output.
type DeliveryItem struct {
	ID            string     `json:"id"`
	FormID        string     `json:"form_id"`
	IntegrationID string     `json:"integration_id"`
	ResponseID    string     `json:"response_id"`
	EventID       string     `json:"event_id"`
	EventType     string     `json:"event_type"`
	Status        string     `json:"status"`
	Attempt       int        `json:"attempt"`
	URL           string     `json:"url"`
	PayloadHash   string     `json:"payload_hash,omitempty"`
	HTTPStatus    *int       `json:"http_status,omitempty"`
	ErrorMessage  *string    `json:"error_message,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// ListDeliveriesResponse is returned by GET /deliveries.
type ListDeliveriesResponse struct {
	Items []DeliveryItem `json:"items"`
}

// DispatchRequest is the JSON body for POST /dispatch.
type DispatchRequest struct {
	FormID     string `json:"form_id"`
	ResponseID string `json:"response_id"`
}

// DispatchResponse wraps the dispatch summary.
type DispatchResponse struct {
	dispatch.Summary
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}
