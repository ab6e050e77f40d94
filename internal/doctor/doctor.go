// Package doctor validates formsedge configuration and integration setup
// beyond what config.Load enforces, producing operator-facing diagnostics.
package doctor

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/manzoorua/formsedge-sub001/internal/config"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates a loaded config, optionally cross-checking the database.
type Doctor struct {
	cfg *config.Config
	db  *sql.DB
}

// New creates a Doctor. db may be nil to skip database checks.
func New(cfg *config.Config, db *sql.DB) *Doctor {
	return &Doctor{cfg: cfg, db: db}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate(ctx context.Context) *Result {
	r := &Result{Valid: true}

	d.checkStorage(r)
	d.checkAuthTokens(r)
	d.checkWebhookSettings(r)
	if d.db != nil {
		d.checkIntegrations(ctx, r)
	}

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) checkStorage(r *Result) {
	if d.cfg.Storage.Path == "" {
		d.addError(r, "storage", "storage.path", "storage.path is required")
		return
	}
	dir := filepath.Dir(d.cfg.Storage.Path)
	if info, err := os.Stat(dir); err != nil {
		d.addWarning(r, "storage", "storage.path",
			fmt.Sprintf("parent directory %s does not exist; it will be created on start", dir))
	} else if !info.IsDir() {
		d.addError(r, "storage", "storage.path", fmt.Sprintf("%s is not a directory", dir))
	}
}

// knownScopes are the scopes the query gateway route guards understand.
var knownScopes = map[string]bool{
	"*":             true,
	"responses:ro":  true,
	"responses:rw":  true,
	"deliveries:ro": true,
	"deliveries:rw": true,
	"events:ro":     true,
	"events:rw":     true,
	"dispatch:rw":   true,
}

func (d *Doctor) checkAuthTokens(r *Result) {
	if !d.cfg.API.Enabled {
		return
	}
	if d.cfg.API.Auth.APIKey == "" && len(d.cfg.API.Auth.Tokens) == 0 {
		d.addError(r, "auth", "api.auth", "api is enabled but no api_key or tokens are configured")
		return
	}
	if key := d.cfg.API.Auth.APIKey; key != "" && len(key) < 16 {
		d.addWarning(r, "auth", "api.auth.api_key", "admin api_key is shorter than 16 characters")
	}
	for i, tok := range d.cfg.API.Auth.Tokens {
		field := fmt.Sprintf("api.auth.tokens[%d]", i)
		if len(tok.Token) < 16 {
			d.addWarning(r, "auth", field, "token is shorter than 16 characters")
		}
		for _, s := range tok.Scopes {
			if !knownScopes[s] {
				d.addWarning(r, "auth", field, fmt.Sprintf("unknown scope %q has no effect", s))
			}
		}
		if len(tok.Forms) == 0 {
			d.addWarning(r, "auth", field, "token has no form grants and cannot read any responses")
		}
	}
}

func (d *Doctor) checkWebhookSettings(r *Result) {
	if t := d.cfg.Webhooks.Timeout; t > 0 && t < time.Second {
		d.addWarning(r, "webhooks", "webhooks.timeout",
			fmt.Sprintf("timeout %s is unusually low; slow receivers will always fail", t))
	}
	if t := d.cfg.Webhooks.Timeout; t > 5*time.Minute {
		d.addWarning(r, "webhooks", "webhooks.timeout",
			fmt.Sprintf("timeout %s is unusually high; a hanging receiver ties up a dispatch slot that long", t))
	}
	if d.cfg.Webhooks.ResponseBodyLimit > 1<<20 {
		d.addWarning(r, "webhooks", "webhooks.response_body_limit",
			"response_body_limit above 1MiB will bloat the delivery log")
	}
}

var urlPattern = regexp.MustCompile(`^https?://`)

// checkIntegrations scans webhook integrations for configurations the
// dispatcher would fail on at delivery time.
func (d *Doctor) checkIntegrations(ctx context.Context, r *Result) {
	rows, err := d.db.QueryContext(ctx, `
SELECT id, configuration, is_active FROM integrations WHERE integration_type = 'webhook';`)
	if err != nil {
		d.addError(r, "integrations", "", fmt.Sprintf("query integrations: %v", err))
		return
	}
	defer rows.Close()

	active := 0
	for rows.Next() {
		var (
			id       string
			raw      string
			isActive int
		)
		if err := rows.Scan(&id, &raw, &isActive); err != nil {
			d.addError(r, "integrations", "", fmt.Sprintf("scan integration: %v", err))
			return
		}
		if isActive != 0 {
			active++
		}

		var cfg struct {
			WebhookURL string `json:"webhook_url"`
			URL        string `json:"url"`
		}
		if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
			d.addError(r, "integrations", id, "configuration is not valid JSON")
			continue
		}
		target := cfg.WebhookURL
		if target == "" {
			target = cfg.URL
		}
		if target == "" {
			d.addError(r, "integrations", id, "configuration has no webhook_url")
		} else if !urlPattern.MatchString(target) {
			d.addWarning(r, "integrations", id, fmt.Sprintf("webhook_url %q is not an http(s) URL", target))
		}
	}
	if err := rows.Err(); err != nil {
		d.addError(r, "integrations", "", fmt.Sprintf("read integrations: %v", err))
		return
	}

	if active == 0 {
		d.addWarning(r, "integrations", "", "no active webhook integrations; dispatch will deliver nothing")
	}
}
