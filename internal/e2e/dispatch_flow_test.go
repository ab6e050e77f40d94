// Package e2e exercises the full flow: a stored response is dispatched to a
// live receiver through the HTTP API, and the outcome is visible through the
// delivery log and query gateway.
package e2e

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/manzoorua/formsedge-sub001/internal/api"
	"github.com/manzoorua/formsedge-sub001/internal/config"
	"github.com/manzoorua/formsedge-sub001/internal/dispatch"
	"github.com/manzoorua/formsedge-sub001/internal/payload"
	"github.com/manzoorua/formsedge-sub001/internal/signature"
	"github.com/manzoorua/formsedge-sub001/internal/storage"
)

const adminKey = "e2e-admin-key"

func mustExec(t *testing.T, db *sql.DB, query string, args ...any) {
	t.Helper()
	if _, err := db.Exec(query, args...); err != nil {
		t.Fatalf("exec: %v", err)
	}
}

func seedWorld(t *testing.T, db *sql.DB, receiverURL string) {
	t.Helper()
	mustExec(t, db, `INSERT INTO forms(id, title, created_at) VALUES('f1', 'Signup Form', '2026-01-01T00:00:00Z')`)
	mustExec(t, db, `INSERT INTO form_fields(id, form_id, label, type, position) VALUES('fld1', 'f1', 'Email', 'email', 1)`)
	mustExec(t, db, `
INSERT INTO form_responses(id, form_id, is_partial, created_at, submitted_at, user_agent)
VALUES('r1', 'f1', 0, '2026-02-01T10:00:00Z', '2026-02-01T10:01:30Z', 'e2e-agent')`)
	mustExec(t, db, `
INSERT INTO response_answers(id, response_id, field_id, type, value)
VALUES('a1', 'r1', 'fld1', 'email', 'ada@example.com')`)
	cfg, _ := json.Marshal(map[string]string{"webhook_url": receiverURL, "secret": "e2e-secret"})
	mustExec(t, db, `
INSERT INTO integrations(id, form_id, integration_type, configuration, is_active, status)
VALUES('i1', 'f1', 'webhook', ?, 1, 'connected')`, string(cfg))
}

func TestDispatchFlowEndToEnd(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "formsedge.db")
	db, err := storage.OpenSQLite(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	type received struct {
		sig  string
		body []byte
	}
	got := make(chan received, 1)
	receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- received{sig: r.Header.Get("X-FormsEdge-Signature"), body: body}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(receiver.Close)

	seedWorld(t, db, receiver.URL)

	builder := payload.NewBuilder(db)
	hub := api.NewEventHub(16)
	dispatcher := dispatch.New(
		dispatch.NewIntegrationStore(db),
		dispatch.NewDeliveryLog(db),
		builder,
		dispatch.Config{},
		hub,
	)

	apiCfg := config.Defaults().API
	apiCfg.Auth.APIKey = adminKey
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := api.New(apiCfg, api.NewResponseStore(db), builder, dispatcher, dispatch.NewDeliveryLog(db), hub, logger)
	gateway := httptest.NewServer(srv.Routes())
	t.Cleanup(gateway.Close)

	do := func(method, path string, body []byte) (*http.Response, []byte) {
		t.Helper()
		req, err := http.NewRequest(method, gateway.URL+path, bytes.NewReader(body))
		if err != nil {
			t.Fatalf("new request: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+adminKey)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("%s %s: %v", method, path, err)
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		return resp, b
	}

	// Trigger the dispatch over HTTP.
	resp, body := do(http.MethodPost, "/dispatch", []byte(`{"form_id":"f1","response_id":"r1"}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("dispatch status = %d, body %s", resp.StatusCode, body)
	}
	var summary dispatch.Summary
	if err := json.Unmarshal(body, &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.Dispatched != 1 || summary.Succeeded != 1 || summary.Failed != 0 {
		t.Fatalf("summary = %+v", summary)
	}

	// The receiver saw a signed envelope wrapping the canonical payload.
	rcv := <-got
	if !signature.Verify("e2e-secret", rcv.body, rcv.sig) {
		t.Error("receiver signature does not verify")
	}
	var env dispatch.Envelope
	if err := json.Unmarshal(rcv.body, &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.EventType != dispatch.EventTypeFormResponse {
		t.Errorf("event_type = %q", env.EventType)
	}
	if env.FormResponse == nil || env.FormResponse.ID != "r1" || env.FormResponse.FormTitle != "Signup Form" {
		t.Errorf("form_response = %+v", env.FormResponse)
	}
	if len(env.FormResponse.Answers) != 1 || env.FormResponse.Answers[0].Field.Label != "Email" {
		t.Errorf("answers = %+v", env.FormResponse.Answers)
	}

	// The delivery is auditable through the gateway.
	resp, body = do(http.MethodGet, "/deliveries?form_id=f1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("deliveries status = %d", resp.StatusCode)
	}
	var deliveries api.ListDeliveriesResponse
	if err := json.Unmarshal(body, &deliveries); err != nil {
		t.Fatalf("decode deliveries: %v", err)
	}
	if len(deliveries.Items) != 1 {
		t.Fatalf("len(deliveries) = %d, want 1", len(deliveries.Items))
	}
	d := deliveries.Items[0]
	if d.Status != "success" || d.IntegrationID != "i1" || d.ResponseID != "r1" {
		t.Errorf("delivery = %+v", d)
	}
	if d.HTTPStatus == nil || *d.HTTPStatus != 200 {
		t.Errorf("http_status = %v", d.HTTPStatus)
	}
	if d.EventID != env.EventID {
		t.Errorf("delivery event_id %q != envelope event_id %q", d.EventID, env.EventID)
	}

	// The gateway's canonical payload matches what the receiver was sent.
	resp, body = do(http.MethodGet, "/responses/r1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get response status = %d", resp.StatusCode)
	}
	var single api.GetResponseResponse
	if err := json.Unmarshal(body, &single); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	wantJSON, _ := json.Marshal(env.FormResponse)
	gotJSON, _ := json.Marshal(single.Item)
	if !bytes.Equal(wantJSON, gotJSON) {
		t.Errorf("gateway payload differs from delivered payload:\n%s\n%s", gotJSON, wantJSON)
	}

	// The outcome streamed into the event hub.
	events := hub.SnapshotSince(0)
	var types []string
	for _, ev := range events {
		types = append(types, ev.Type)
	}
	foundDelivery, foundDispatch := false, false
	for _, typ := range types {
		if typ == "delivery.succeeded" {
			foundDelivery = true
		}
		if typ == "dispatch.completed" {
			foundDispatch = true
		}
	}
	if !foundDelivery || !foundDispatch {
		t.Errorf("hub events = %v, want delivery.succeeded and dispatch.completed", types)
	}
}
