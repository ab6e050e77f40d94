package dispatch

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/manzoorua/formsedge-sub001/internal/payload"
)

// Integration statuses persisted after each delivery attempt.
const (
	IntegrationConnected = "connected"
	IntegrationError     = "error"
)

// Delivery log statuses. A row is created pending before the network call
// and moves to exactly one terminal state; there is no retry transition.
type DeliveryStatus string

const (
	StatusPending DeliveryStatus = "pending"
	StatusSuccess DeliveryStatus = "success"
	StatusFailed  DeliveryStatus = "failed"
)

// EventTypeFormResponse is the only event type this dispatcher emits.
const EventTypeFormResponse = "form_response"

// Integration is an external webhook endpoint configuration attached to a form.
type Integration struct {
	ID              string
	FormID          string
	IntegrationType string
	Configuration   json.RawMessage
	IsActive        bool
	Status          string
	LastTriggeredAt *time.Time
	LastError       *string
}

// endpointConfig is the JSON shape of a webhook integration's configuration.
// Older rows use "url" instead of "webhook_url"; both are accepted.
type endpointConfig struct {
	WebhookURL string `json:"webhook_url"`
	URL        string `json:"url"`
	Secret     string `json:"secret"`
}

// Target resolves the delivery URL and optional signing secret from the
// integration's configuration blob.
func (i Integration) Target() (url, secret string, err error) {
	var cfg endpointConfig
	if err := json.Unmarshal(i.Configuration, &cfg); err != nil {
		return "", "", fmt.Errorf("parse integration configuration: %w", err)
	}
	url = cfg.WebhookURL
	if url == "" {
		url = cfg.URL
	}
	if url == "" {
		return "", "", fmt.Errorf("integration has no webhook URL configured")
	}
	return url, cfg.Secret, nil
}

// Envelope is the outer wire object wrapping a canonical payload for
// webhook delivery. EventID is freshly generated per delivery attempt, not
// per response, so duplicate sends are not deduplicable by event_id alone.
type Envelope struct {
	EventID      string           `json:"event_id"`
	EventType    string           `json:"event_type"`
	CreatedAt    time.Time        `json:"created_at"`
	FormResponse *payload.Payload `json:"form_response"`
}

// Delivery is one durable delivery-log row: the audit record of a single
// webhook send attempt. Never deleted by this subsystem.
type Delivery struct {
	ID            string
	FormID        string
	IntegrationID string
	ResponseID    string
	EventID       string
	EventType     string
	Status        DeliveryStatus
	Attempt       int
	URL           string
	RequestBody   string
	PayloadHash   string
	ResponseBody  *string
	HTTPStatus    *int
	ErrorMessage  *string
	CreatedAt     time.Time
	CompletedAt   *time.Time
}

// Summary aggregates per-integration outcomes of one dispatch call.
type Summary struct {
	Dispatched int `json:"dispatched"`
	Succeeded  int `json:"succeeded"`
	Failed     int `json:"failed"`
}
