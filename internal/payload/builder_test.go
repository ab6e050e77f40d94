package payload

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/manzoorua/formsedge-sub001/internal/storage"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "formsedge.db")
	db, err := storage.OpenSQLite(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func mustExec(t *testing.T, db *sql.DB, query string, args ...any) {
	t.Helper()
	if _, err := db.Exec(query, args...); err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
}

func seedForm(t *testing.T, db *sql.DB, id, title string) {
	mustExec(t, db, `INSERT INTO forms(id, title, created_at) VALUES(?, ?, ?)`,
		id, title, "2026-01-01T00:00:00Z")
}

func seedField(t *testing.T, db *sql.DB, id, formID, label, fieldType string, position int) {
	mustExec(t, db, `INSERT INTO form_fields(id, form_id, label, type, position) VALUES(?, ?, ?, ?, ?)`,
		id, formID, label, fieldType, position)
}

func seedResponse(t *testing.T, db *sql.DB, id, formID string, partial bool, createdAt, submittedAt string) {
	p := 0
	if partial {
		p = 1
	}
	var created, submitted any
	if createdAt != "" {
		created = createdAt
	}
	if submittedAt != "" {
		submitted = submittedAt
	}
	mustExec(t, db, `
INSERT INTO form_responses(id, form_id, is_partial, respondent_id, respondent_email,
  created_at, submitted_at, url_params, user_agent, ip_address, referer)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, formID, p, "resp-1", "jo@example.com",
		created, submitted, `{"utm_source":"newsletter"}`, "curl/8.0", "203.0.113.9", "https://example.com")
}

func seedAnswer(t *testing.T, db *sql.DB, id, responseID, fieldID, answerType, value string) {
	mustExec(t, db, `INSERT INTO response_answers(id, response_id, field_id, type, value) VALUES(?, ?, ?, ?, ?)`,
		id, responseID, fieldID, answerType, value)
}

func TestBuildNotFound(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	b := NewBuilder(db)

	if _, err := b.Build(context.Background(), "nope"); err != ErrNotFound {
		t.Fatalf("Build = %v, want ErrNotFound", err)
	}
}

func TestBuildMissingFormCollapsesToNotFound(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	seedResponse(t, db, "r1", "orphan-form", false, "2026-02-01T10:00:00Z", "2026-02-01T10:01:30Z")

	b := NewBuilder(db)
	if _, err := b.Build(context.Background(), "r1"); err != ErrNotFound {
		t.Fatalf("Build = %v, want ErrNotFound for broken form join", err)
	}
}

func TestBuildCompleteResponse(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	seedForm(t, db, "f1", "Customer Survey")
	seedField(t, db, "fld-name", "f1", "Your name", "text", 0)
	seedField(t, db, "fld-tags", "f1", "Topics", "multiselect", 1)
	seedResponse(t, db, "r1", "f1", false, "2026-02-01T10:00:00Z", "2026-02-01T10:01:30Z")
	seedAnswer(t, db, "a1", "r1", "fld-name", "text", "Jo")
	seedAnswer(t, db, "a2", "r1", "fld-tags", "multiselect", `["pricing","support"]`)

	b := NewBuilder(db)
	p, err := b.Build(context.Background(), "r1")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if p.ID != "r1" || p.FormID != "f1" || p.FormTitle != "Customer Survey" {
		t.Errorf("unexpected identity fields: %+v", p)
	}
	if p.Status != StatusComplete {
		t.Errorf("Status = %q, want complete", p.Status)
	}
	if p.Metadata.CompletionTimeSeconds == nil || *p.Metadata.CompletionTimeSeconds != 90 {
		t.Errorf("CompletionTimeSeconds = %v, want 90", p.Metadata.CompletionTimeSeconds)
	}
	if p.Metadata.CompletionTimeLabel != "1 minutes" {
		t.Errorf("CompletionTimeLabel = %q, want %q", p.Metadata.CompletionTimeLabel, "1 minutes")
	}
	if p.URLParams["utm_source"] != "newsletter" {
		t.Errorf("URLParams = %v", p.URLParams)
	}
	if len(p.Answers) != 2 {
		t.Fatalf("len(Answers) = %d, want 2", len(p.Answers))
	}
	if p.Answers[0].Field.Label != "Your name" || p.Answers[0].Value.String() != "Jo" {
		t.Errorf("unexpected first answer: %+v", p.Answers[0])
	}
	if p.Answers[1].Value.Kind() != KindArray {
		t.Errorf("multiselect answer kind = %d, want KindArray", p.Answers[1].Value.Kind())
	}
}

func TestBuildPartialStatus(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	seedForm(t, db, "f1", "Survey")
	seedResponse(t, db, "r1", "f1", true, "2026-02-01T10:00:00Z", "")

	b := NewBuilder(db)
	p, err := b.Build(context.Background(), "r1")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if p.Status != StatusPartial {
		t.Errorf("Status = %q, want partial", p.Status)
	}
	if p.Metadata.CompletionTimeSeconds != nil || p.Metadata.CompletionTimeLabel != "" {
		t.Error("completion time must be absent without submitted_at")
	}
}

func TestBuildDropsAnswersWithDeletedFields(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	seedForm(t, db, "f1", "Survey")
	seedField(t, db, "fld-kept", "f1", "Kept", "text", 0)
	seedResponse(t, db, "r1", "f1", false, "2026-02-01T10:00:00Z", "2026-02-01T10:00:30Z")
	seedAnswer(t, db, "a1", "r1", "fld-kept", "text", "still here")
	seedAnswer(t, db, "a2", "r1", "fld-deleted", "text", "dangling")

	b := NewBuilder(db)
	p, err := b.Build(context.Background(), "r1")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(p.Answers) != 1 {
		t.Fatalf("len(Answers) = %d, want 1 (dangling answer dropped)", len(p.Answers))
	}
	if p.Answers[0].Field.ID != "fld-kept" {
		t.Errorf("kept answer = %+v", p.Answers[0])
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	seedForm(t, db, "f1", "Survey")
	seedField(t, db, "fld-a", "f1", "A", "text", 0)
	seedField(t, db, "fld-b", "f1", "B", "matrix", 1)
	seedResponse(t, db, "r1", "f1", false, "2026-02-01T10:00:00Z", "2026-02-01T11:30:00Z")
	seedAnswer(t, db, "a1", "r1", "fld-a", "text", "x")
	seedAnswer(t, db, "a2", "r1", "fld-b", "matrix", `{"z":"1","a":"2"}`)

	b := NewBuilder(db)
	first, err := b.Build(context.Background(), "r1")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	firstJSON, err := json.Marshal(first)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	for i := 0; i < 3; i++ {
		again, err := b.Build(context.Background(), "r1")
		if err != nil {
			t.Fatalf("Build: %v", err)
		}
		againJSON, err := json.Marshal(again)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if string(againJSON) != string(firstJSON) {
			t.Fatalf("payload JSON differs between builds:\n%s\n%s", firstJSON, againJSON)
		}
	}
}
