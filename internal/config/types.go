package config

import "time"

// Config represents the complete formsedge configuration.
type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	Storage  StorageConfig  `yaml:"storage"`
	API      APIConfig      `yaml:"api"`
	Webhooks WebhooksConfig `yaml:"webhooks"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// StorageConfig defines where the SQLite database lives.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Listen          string        `yaml:"listen"`
	DefaultPageSize int           `yaml:"default_page_size"`
	MaxPageSize     int           `yaml:"max_page_size"`
	Auth            APIAuthConfig `yaml:"auth"`
	CORS            CORSConfig    `yaml:"cors"`
}

// APIAuthConfig defines API authentication settings.
type APIAuthConfig struct {
	// APIKey is the admin bearer token (full access to every form).
	// Prefer Tokens for scoped access.
	APIKey string     `yaml:"api_key"`
	Tokens []APIToken `yaml:"tokens,omitempty"`
}

// APIToken defines a bearer token, its scopes and its form grants.
type APIToken struct {
	Token  string   `yaml:"token"`
	Scopes []string `yaml:"scopes"`
	Forms  []string `yaml:"forms,omitempty"`
}

// CORSConfig defines cross-origin policy for the query gateway.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`
	AllowedHeaders []string `yaml:"allowed_headers,omitempty"`
}

// WebhooksConfig defines outbound delivery settings.
type WebhooksConfig struct {
	// Timeout bounds each delivery attempt.
	Timeout time.Duration `yaml:"timeout"`
	// UserAgent identifies the sender on outbound requests.
	UserAgent string `yaml:"user_agent"`
	// SignatureHeader carries the HMAC signature when a secret is configured.
	SignatureHeader string `yaml:"signature_header"`
	// ResponseBodyLimit caps how much of the receiver's response body is
	// persisted per delivery-log row.
	ResponseBodyLimit int `yaml:"response_body_limit"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "formsedge",
			LogLevel:  "INFO",
			LogFormat: "json",
		},
		Storage: StorageConfig{
			Path: "./data/formsedge.db",
		},
		API: APIConfig{
			Enabled:         true,
			Listen:          "127.0.0.1:8080",
			DefaultPageSize: 50,
			MaxPageSize:     200,
		},
		Webhooks: WebhooksConfig{
			Timeout:           30 * time.Second,
			UserAgent:         "FormsEdge-Webhooks/1.0",
			SignatureHeader:   "X-FormsEdge-Signature",
			ResponseBodyLimit: 5000,
		},
	}
}
