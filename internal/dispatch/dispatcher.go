package dispatch

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/manzoorua/formsedge-sub001/internal/log"
	"github.com/manzoorua/formsedge-sub001/internal/payload"
	"github.com/manzoorua/formsedge-sub001/internal/signature"
)

// PayloadBuilder materializes a canonical payload for a response.
type PayloadBuilder interface {
	Build(ctx context.Context, responseID string) (*payload.Payload, error)
}

// EventPublisher receives dispatch outcome events. May be nil.
type EventPublisher interface {
	Publish(eventType string, data any)
}

// Config holds dispatcher settings, passed in at construction rather than
// read from ambient state.
type Config struct {
	// Timeout bounds each outbound delivery attempt.
	Timeout time.Duration
	// UserAgent identifies the sender on outbound requests.
	UserAgent string
	// SignatureHeader carries the HMAC signature when a secret is configured.
	SignatureHeader string
	// ResponseBodyLimit caps the persisted receiver response body.
	ResponseBodyLimit int
}

func (c *Config) applyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = "FormsEdge-Webhooks/1.0"
	}
	if c.SignatureHeader == "" {
		c.SignatureHeader = "X-FormsEdge-Signature"
	}
	if c.ResponseBodyLimit <= 0 {
		c.ResponseBodyLimit = 5000
	}
}

// Dispatcher delivers form response events to webhook integrations.
type Dispatcher struct {
	integrations *IntegrationStore
	deliveries   *DeliveryLog
	builder      PayloadBuilder
	client       *http.Client
	cfg          Config
	events       EventPublisher
	logger       *slog.Logger
}

// New creates a Dispatcher. events may be nil.
func New(integrations *IntegrationStore, deliveries *DeliveryLog, builder PayloadBuilder, cfg Config, events EventPublisher) *Dispatcher {
	cfg.applyDefaults()
	return &Dispatcher{
		integrations: integrations,
		deliveries:   deliveries,
		builder:      builder,
		client:       &http.Client{},
		cfg:          cfg,
		events:       events,
		logger:       log.WithComponent("dispatch"),
	}
}

// Dispatch fans the response out to every active webhook integration of the
// form. The canonical payload is built once and shared, so every recipient
// sees an identical snapshot. Individual delivery failures are recorded and
// counted, never returned as errors; Dispatch itself only fails on
// preconditions (bad input, integration load, payload build).
func (d *Dispatcher) Dispatch(ctx context.Context, formID, responseID string) (Summary, error) {
	if formID == "" {
		return Summary{}, fmt.Errorf("formID is empty")
	}
	if responseID == "" {
		return Summary{}, fmt.Errorf("responseID is empty")
	}

	integrations, err := d.integrations.LoadActiveWebhooks(ctx, formID)
	if err != nil {
		return Summary{}, err
	}
	if len(integrations) == 0 {
		// No recipients: skip payload materialization entirely.
		d.logger.Debug("no active webhook integrations", "form_id", formID)
		return Summary{}, nil
	}

	pl, err := d.builder.Build(ctx, responseID)
	if err != nil {
		return Summary{}, fmt.Errorf("build payload: %w", err)
	}

	// Scatter/gather: one goroutine per integration, join at the end.
	// A failure in one task never cancels a sibling.
	results := make([]bool, len(integrations))
	var wg sync.WaitGroup
	for idx, integ := range integrations {
		wg.Add(1)
		go func(idx int, integ Integration) {
			defer wg.Done()
			results[idx] = d.deliver(ctx, integ, responseID, pl)
		}(idx, integ)
	}
	wg.Wait()

	summary := Summary{Dispatched: len(integrations)}
	for _, ok := range results {
		if ok {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
	}

	d.publish("dispatch.completed", map[string]any{
		"at":          time.Now().UTC().Format(time.RFC3339Nano),
		"form_id":     formID,
		"response_id": responseID,
		"dispatched":  summary.Dispatched,
		"succeeded":   summary.Succeeded,
		"failed":      summary.Failed,
	})

	d.logger.Info("dispatch completed",
		"form_id", formID,
		"response_id", responseID,
		"dispatched", summary.Dispatched,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
	)
	return summary, nil
}

// deliver posts one signed envelope to one integration and records the
// outcome. Returns true on a 2xx response.
func (d *Dispatcher) deliver(ctx context.Context, integ Integration, responseID string, pl *payload.Payload) bool {
	logger := d.logger.With("integration_id", integ.ID, "response_id", responseID)

	url, secret, targetErr := integ.Target()

	eventID := uuid.NewString()
	env := Envelope{
		EventID:      eventID,
		EventType:    EventTypeFormResponse,
		CreatedAt:    time.Now().UTC(),
		FormResponse: pl,
	}
	body, err := json.Marshal(env)
	if err != nil {
		logger.Error("marshal envelope", "error", err)
		d.markIntegration(ctx, integ.ID, false, fmt.Sprintf("marshal envelope: %v", err))
		return false
	}
	hash := blake3.Sum256(body)

	delivery := &Delivery{
		ID:            uuid.NewString(),
		FormID:        integ.FormID,
		IntegrationID: integ.ID,
		ResponseID:    responseID,
		EventID:       eventID,
		EventType:     EventTypeFormResponse,
		Attempt:       1,
		URL:           url,
		RequestBody:   string(body),
		PayloadHash:   hex.EncodeToString(hash[:]),
	}
	if err := d.deliveries.InsertPending(ctx, delivery); err != nil {
		logger.Error("insert pending delivery", "error", err)
		d.markIntegration(ctx, integ.ID, false, err.Error())
		return false
	}

	if targetErr != nil {
		logger.Warn("webhook target unresolvable", "error", targetErr)
		d.failDelivery(ctx, integ, delivery, nil, "", targetErr.Error())
		return false
	}

	reqCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		d.failDelivery(ctx, integ, delivery, nil, "", fmt.Sprintf("build request: %v", err))
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", d.cfg.UserAgent)
	if secret != "" {
		// Sign the exact bytes going on the wire.
		req.Header.Set(d.cfg.SignatureHeader, signature.Sign(secret, body))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		// Timeouts and network errors are the same failure.
		logger.Warn("webhook delivery failed", "url", url, "error", err)
		d.failDelivery(ctx, integ, delivery, nil, "", err.Error())
		return false
	}
	defer resp.Body.Close()

	respBody := readLimited(resp.Body, d.cfg.ResponseBodyLimit)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := d.deliveries.MarkSuccess(ctx, delivery.ID, resp.StatusCode, respBody); err != nil {
			logger.Error("mark delivery success", "error", err)
		}
		d.markIntegration(ctx, integ.ID, true, "")
		d.publish("delivery.succeeded", map[string]any{
			"at":             time.Now().UTC().Format(time.RFC3339Nano),
			"integration_id": integ.ID,
			"response_id":    responseID,
			"event_id":       eventID,
			"http_status":    resp.StatusCode,
		})
		logger.Info("webhook delivered", "url", url, "http_status", resp.StatusCode)
		return true
	}

	errMsg := fmt.Sprintf("webhook returned status %d", resp.StatusCode)
	logger.Warn("webhook delivery rejected", "url", url, "http_status", resp.StatusCode)
	d.failDelivery(ctx, integ, delivery, &resp.StatusCode, respBody, errMsg)
	return false
}

// failDelivery records a failed attempt on both the delivery row and the
// integration, and publishes the failure event.
func (d *Dispatcher) failDelivery(ctx context.Context, integ Integration, delivery *Delivery, httpStatus *int, respBody, errMsg string) {
	if err := d.deliveries.MarkFailed(ctx, delivery.ID, httpStatus, respBody, errMsg); err != nil {
		d.logger.Error("mark delivery failed", "delivery_id", delivery.ID, "error", err)
	}
	d.markIntegration(ctx, integ.ID, false, errMsg)
	data := map[string]any{
		"at":             time.Now().UTC().Format(time.RFC3339Nano),
		"integration_id": integ.ID,
		"response_id":    delivery.ResponseID,
		"event_id":       delivery.EventID,
		"error":          errMsg,
	}
	if httpStatus != nil {
		data["http_status"] = *httpStatus
	}
	d.publish("delivery.failed", data)
}

func (d *Dispatcher) markIntegration(ctx context.Context, integrationID string, ok bool, errMsg string) {
	var err error
	if ok {
		err = d.integrations.MarkConnected(ctx, integrationID)
	} else {
		err = d.integrations.MarkError(ctx, integrationID, errMsg)
	}
	if err != nil {
		d.logger.Error("update integration status", "integration_id", integrationID, "error", err)
	}
}

func (d *Dispatcher) publish(eventType string, data any) {
	if d.events != nil {
		d.events.Publish(eventType, data)
	}
}

func readLimited(r io.Reader, limit int) string {
	b, _ := io.ReadAll(io.LimitReader(r, int64(limit)))
	return string(b)
}
