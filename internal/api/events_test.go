package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestEventHubPublishSubscribe(t *testing.T) {
	hub := NewEventHub(8)

	ch, cancel := hub.Subscribe()
	defer cancel()

	hub.Publish("delivery.succeeded", map[string]any{"integration_id": "i1"})

	ev := <-ch
	if ev.Type != "delivery.succeeded" {
		t.Errorf("Type = %q", ev.Type)
	}
	if ev.ID != 1 {
		t.Errorf("ID = %d, want 1", ev.ID)
	}
	if !strings.Contains(string(ev.Data), `"integration_id":"i1"`) {
		t.Errorf("Data = %s", ev.Data)
	}
}

func TestEventHubRingOverwritesOldest(t *testing.T) {
	hub := NewEventHub(3)
	for i := 0; i < 5; i++ {
		hub.Publish("dispatch.completed", nil)
	}

	events := hub.SnapshotSince(0)
	if len(events) != 3 {
		t.Fatalf("len = %d, want 3", len(events))
	}
	if events[0].ID != 3 || events[2].ID != 5 {
		t.Errorf("ids = [%d..%d], want [3..5]", events[0].ID, events[2].ID)
	}
}

func TestEventHubSnapshotSince(t *testing.T) {
	hub := NewEventHub(8)
	for i := 0; i < 4; i++ {
		hub.Publish("dispatch.completed", nil)
	}

	events := hub.SnapshotSince(2)
	if len(events) != 2 {
		t.Fatalf("len = %d, want 2", len(events))
	}
	if events[0].ID != 3 {
		t.Errorf("first ID = %d, want 3", events[0].ID)
	}
}

func TestEventHubCancelledSubscriberDropped(t *testing.T) {
	hub := NewEventHub(8)
	ch, cancel := hub.Subscribe()
	cancel()

	if _, ok := <-ch; ok {
		t.Error("channel should be closed after cancel")
	}
	// Publishing after cancel must not panic.
	hub.Publish("dispatch.completed", nil)
}

func TestEventsStreamReplaysBuffer(t *testing.T) {
	srv, _ := newTestServer(t, &fakeDispatcher{})
	srv.Events().Publish("delivery.succeeded", map[string]any{"integration_id": "i1"})
	srv.Events().Publish("delivery.failed", map[string]any{"integration_id": "i2"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // stream writes the replay, then exits on the dead context

	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer "+tokenF1)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "event: delivery.succeeded") || !strings.Contains(body, "event: delivery.failed") {
		t.Errorf("body missing replayed events:\n%s", body)
	}
	if !strings.Contains(body, "id: 1\n") {
		t.Errorf("body missing event id framing:\n%s", body)
	}
}

func TestEventsStreamHonorsLastEventID(t *testing.T) {
	srv, _ := newTestServer(t, &fakeDispatcher{})
	srv.Events().Publish("delivery.succeeded", nil)
	srv.Events().Publish("delivery.failed", nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer "+tokenF1)
	req.Header.Set("Last-Event-ID", "1")
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	body := rec.Body.String()
	if strings.Contains(body, "event: delivery.succeeded") {
		t.Errorf("event 1 should be skipped:\n%s", body)
	}
	if !strings.Contains(body, "event: delivery.failed") {
		t.Errorf("event 2 should be replayed:\n%s", body)
	}
}
