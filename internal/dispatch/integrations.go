package dispatch

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// webhookTypes are the integration types the dispatcher delivers to.
var webhookTypes = []string{"webhook"}

// IntegrationStore reads integration configs and writes integration health.
type IntegrationStore struct {
	db *sql.DB
}

// NewIntegrationStore creates an IntegrationStore over db.
func NewIntegrationStore(db *sql.DB) *IntegrationStore {
	return &IntegrationStore{db: db}
}

// LoadActiveWebhooks returns the active webhook-type integrations for a form.
func (s *IntegrationStore) LoadActiveWebhooks(ctx context.Context, formID string) ([]Integration, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, form_id, integration_type, configuration, is_active, status, last_triggered_at, last_error
FROM integrations
WHERE form_id = ? AND is_active = 1 AND integration_type = ?
ORDER BY id ASC;
`, formID, webhookTypes[0])
	if err != nil {
		return nil, fmt.Errorf("load integrations: %w", err)
	}
	defer rows.Close()

	var out []Integration
	for rows.Next() {
		var (
			i              Integration
			isActive       int
			lastTriggeredS sql.NullString
			lastError      sql.NullString
			configuration  string
		)
		if err := rows.Scan(&i.ID, &i.FormID, &i.IntegrationType, &configuration,
			&isActive, &i.Status, &lastTriggeredS, &lastError); err != nil {
			return nil, fmt.Errorf("scan integration: %w", err)
		}
		i.Configuration = []byte(configuration)
		i.IsActive = isActive != 0
		if lastTriggeredS.Valid {
			if t, err := time.Parse(time.RFC3339Nano, lastTriggeredS.String); err == nil {
				i.LastTriggeredAt = &t
			}
		}
		if lastError.Valid {
			i.LastError = &lastError.String
		}
		out = append(out, i)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read integrations: %w", err)
	}
	return out, nil
}

// MarkConnected records a successful delivery: status connected, last_error
// cleared, last_triggered_at bumped.
func (s *IntegrationStore) MarkConnected(ctx context.Context, integrationID string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, `
UPDATE integrations
SET status = ?, last_error = NULL, last_triggered_at = ?
WHERE id = ?;
`, IntegrationConnected, now, integrationID)
	if err != nil {
		return fmt.Errorf("mark integration connected: %w", err)
	}
	return nil
}

// MarkError records a failed delivery: status error, last_error set,
// last_triggered_at bumped.
func (s *IntegrationStore) MarkError(ctx context.Context, integrationID, message string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, `
UPDATE integrations
SET status = ?, last_error = ?, last_triggered_at = ?
WHERE id = ?;
`, IntegrationError, message, now, integrationID)
	if err != nil {
		return fmt.Errorf("mark integration error: %w", err)
	}
	return nil
}

// Get returns a single integration row, for tests and tooling.
func (s *IntegrationStore) Get(ctx context.Context, integrationID string) (*Integration, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, form_id, integration_type, configuration, is_active, status, last_triggered_at, last_error
FROM integrations
WHERE id = ?;
`, integrationID)

	var (
		i              Integration
		isActive       int
		lastTriggeredS sql.NullString
		lastError      sql.NullString
		configuration  string
	)
	if err := row.Scan(&i.ID, &i.FormID, &i.IntegrationType, &configuration,
		&isActive, &i.Status, &lastTriggeredS, &lastError); err != nil {
		return nil, fmt.Errorf("load integration: %w", err)
	}
	i.Configuration = []byte(configuration)
	i.IsActive = isActive != 0
	if lastTriggeredS.Valid {
		if t, err := time.Parse(time.RFC3339Nano, lastTriggeredS.String); err == nil {
			i.LastTriggeredAt = &t
		}
	}
	if lastError.Valid {
		i.LastError = &lastError.String
	}
	return &i, nil
}
