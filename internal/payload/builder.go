package payload

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/manzoorua/formsedge-sub001/internal/log"
)

// ErrNotFound is the single failure signal for a payload that cannot be
// built. A missing response and a broken join both collapse into it; the
// caller cannot tell them apart.
var ErrNotFound = errors.New("response not found")

// Builder materializes canonical payloads from response, answer and field
// rows. It is read-only, idempotent and safe for concurrent use.
type Builder struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewBuilder creates a Builder over the given database handle.
func NewBuilder(db *sql.DB) *Builder {
	return &Builder{
		db:     db,
		logger: log.WithComponent("payload"),
	}
}

// Build assembles the canonical payload for a response.
// Returns ErrNotFound if the response row is missing or its form join fails.
// Answers whose field no longer resolves are silently dropped: the response
// stays retrievable even when its schema has drifted.
func (b *Builder) Build(ctx context.Context, responseID string) (*Payload, error) {
	row := b.db.QueryRowContext(ctx, `
SELECT r.id, r.form_id, f.title, r.is_partial,
  r.respondent_id, r.respondent_email, r.created_at, r.submitted_at,
  r.url_params, r.user_agent, r.ip_address, r.referer
FROM form_responses r
JOIN forms f ON f.id = r.form_id
WHERE r.id = ?;
`, responseID)

	var (
		p               Payload
		isPartial       int
		respondentID    sql.NullString
		respondentEmail sql.NullString
		createdAtS      sql.NullString
		submittedAtS    sql.NullString
		urlParamsJSON   sql.NullString
		userAgent       sql.NullString
		ipAddress       sql.NullString
		referer         sql.NullString
	)
	err := row.Scan(
		&p.ID, &p.FormID, &p.FormTitle, &isPartial,
		&respondentID, &respondentEmail, &createdAtS, &submittedAtS,
		&urlParamsJSON, &userAgent, &ipAddress, &referer,
	)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			b.logger.Debug("response load failed", "response_id", responseID, "error", err)
		}
		return nil, ErrNotFound
	}

	p.Status = StatusComplete
	if isPartial != 0 {
		p.Status = StatusPartial
	}
	p.RespondentID = respondentID.String
	p.RespondentEmail = respondentEmail.String
	p.CreatedAt = parseTimestamp(createdAtS)
	p.SubmittedAt = parseTimestamp(submittedAtS)

	if urlParamsJSON.Valid && urlParamsJSON.String != "" {
		// Best effort: malformed url_params are dropped, not surfaced.
		params := map[string]string{}
		if err := json.Unmarshal([]byte(urlParamsJSON.String), &params); err == nil && len(params) > 0 {
			p.URLParams = params
		}
	}

	p.Metadata = Metadata{
		UserAgent: userAgent.String,
		IPAddress: ipAddress.String,
		Referer:   referer.String,
	}
	if seconds, label, ok := completionTime(p.CreatedAt, p.SubmittedAt); ok {
		p.Metadata.CompletionTimeSeconds = &seconds
		p.Metadata.CompletionTimeLabel = label
	}

	answers, err := b.loadAnswers(ctx, responseID)
	if err != nil {
		b.logger.Debug("answer load failed", "response_id", responseID, "error", err)
		return nil, ErrNotFound
	}
	p.Answers = answers

	return &p, nil
}

// loadAnswers fetches answers joined with their field snapshots. The inner
// join drops answers pointing at deleted fields.
func (b *Builder) loadAnswers(ctx context.Context, responseID string) ([]Answer, error) {
	rows, err := b.db.QueryContext(ctx, `
SELECT a.type, a.value, a.file_urls, fld.id, fld.label, fld.type
FROM response_answers a
JOIN form_fields fld ON fld.id = a.field_id
WHERE a.response_id = ?
ORDER BY fld.position ASC, a.id ASC;
`, responseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	answers := []Answer{}
	for rows.Next() {
		var (
			answerType   sql.NullString
			value        sql.NullString
			fileURLsJSON sql.NullString
			field        FieldDescriptor
		)
		if err := rows.Scan(&answerType, &value, &fileURLsJSON, &field.ID, &field.Label, &field.Type); err != nil {
			return nil, err
		}

		a := Answer{
			Field: field,
			Type:  FieldType(answerType.String),
			Value: ParseValue(field.Type, value.String, value.Valid),
		}
		if a.Type == "" {
			a.Type = field.Type
		}
		if fileURLsJSON.Valid && fileURLsJSON.String != "" {
			var urls []string
			if err := json.Unmarshal([]byte(fileURLsJSON.String), &urls); err == nil && len(urls) > 0 {
				a.FileURLs = urls
			}
		}
		answers = append(answers, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return answers, nil
}

func parseTimestamp(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}
