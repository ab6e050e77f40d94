package dispatch

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// DeliveryLog persists one row per (integration, delivery attempt). Rows are
// inserted pending before the network call so a crash mid-flight still
// leaves an auditable "we tried" record.
type DeliveryLog struct {
	db *sql.DB
}

// NewDeliveryLog creates a DeliveryLog over db.
func NewDeliveryLog(db *sql.DB) *DeliveryLog {
	return &DeliveryLog{db: db}
}

// InsertPending writes the pre-send audit row.
func (l *DeliveryLog) InsertPending(ctx context.Context, d *Delivery) error {
	if d.ID == "" {
		return fmt.Errorf("delivery id is empty")
	}
	d.Status = StatusPending
	if d.Attempt <= 0 {
		d.Attempt = 1
	}
	d.CreatedAt = time.Now().UTC()

	_, err := l.db.ExecContext(ctx, `
INSERT INTO webhook_deliveries(
  id, form_id, integration_id, response_id, event_id, event_type,
  status, attempt, url, request_body, payload_hash, created_at
)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`, d.ID, d.FormID, d.IntegrationID, d.ResponseID, d.EventID, d.EventType,
		d.Status, d.Attempt, d.URL, d.RequestBody, d.PayloadHash,
		d.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert pending delivery: %w", err)
	}
	return nil
}

// MarkSuccess moves a pending row to its success terminal state.
func (l *DeliveryLog) MarkSuccess(ctx context.Context, deliveryID string, httpStatus int, responseBody string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := l.db.ExecContext(ctx, `
UPDATE webhook_deliveries
SET status = ?, http_status = ?, response_body = ?, completed_at = ?
WHERE id = ?;
`, StatusSuccess, httpStatus, responseBody, now, deliveryID)
	if err != nil {
		return fmt.Errorf("mark delivery success: %w", err)
	}
	return nil
}

// MarkFailed moves a pending row to its failed terminal state. httpStatus is
// nil for network/timeout failures that never produced a response.
func (l *DeliveryLog) MarkFailed(ctx context.Context, deliveryID string, httpStatus *int, responseBody, errorMessage string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	var respVal any
	if responseBody != "" {
		respVal = responseBody
	}
	_, err := l.db.ExecContext(ctx, `
UPDATE webhook_deliveries
SET status = ?, http_status = ?, response_body = ?, error_message = ?, completed_at = ?
WHERE id = ?;
`, StatusFailed, httpStatus, respVal, errorMessage, now, deliveryID)
	if err != nil {
		return fmt.Errorf("mark delivery failed: %w", err)
	}
	return nil
}

// ListFilter narrows a List query. Zero values mean no filtering.
type ListFilter struct {
	FormID        string
	IntegrationID string
	ResponseID    string
	Limit         int
}

// List returns delivery rows newest first.
func (l *DeliveryLog) List(ctx context.Context, filter ListFilter) ([]Delivery, error) {
	query := `
SELECT id, form_id, integration_id, response_id, event_id, event_type,
  status, attempt, url, request_body, payload_hash, response_body,
  http_status, error_message, created_at, completed_at
FROM webhook_deliveries`
	where := ""
	args := []any{}
	appendCond := func(cond string, arg any) {
		if where == "" {
			where = " WHERE " + cond
		} else {
			where += " AND " + cond
		}
		args = append(args, arg)
	}
	if filter.FormID != "" {
		appendCond("form_id = ?", filter.FormID)
	}
	if filter.IntegrationID != "" {
		appendCond("integration_id = ?", filter.IntegrationID)
	}
	if filter.ResponseID != "" {
		appendCond("response_id = ?", filter.ResponseID)
	}
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query += where + " ORDER BY created_at DESC, id DESC LIMIT ?;"
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()

	var out []Delivery
	for rows.Next() {
		var (
			d            Delivery
			statusS      string
			payloadHash  sql.NullString
			responseBody sql.NullString
			httpStatus   sql.NullInt64
			errorMessage sql.NullString
			createdAtS   string
			completedAtS sql.NullString
		)
		if err := rows.Scan(&d.ID, &d.FormID, &d.IntegrationID, &d.ResponseID,
			&d.EventID, &d.EventType, &statusS, &d.Attempt, &d.URL,
			&d.RequestBody, &payloadHash, &responseBody, &httpStatus,
			&errorMessage, &createdAtS, &completedAtS); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		d.Status = DeliveryStatus(statusS)
		d.PayloadHash = payloadHash.String
		if responseBody.Valid {
			d.ResponseBody = &responseBody.String
		}
		if httpStatus.Valid {
			v := int(httpStatus.Int64)
			d.HTTPStatus = &v
		}
		if errorMessage.Valid {
			d.ErrorMessage = &errorMessage.String
		}
		if t, err := time.Parse(time.RFC3339Nano, createdAtS); err == nil {
			d.CreatedAt = t
		}
		if completedAtS.Valid {
			if t, err := time.Parse(time.RFC3339Nano, completedAtS.String); err == nil {
				d.CompletedAt = &t
			}
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read deliveries: %w", err)
	}
	return out, nil
}
