package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads and parses configuration from a file. ${ENV_VAR} references are
// expanded from the environment before parsing, so secrets can stay out of
// the file. If a .checksums manifest exists next to the file, the file is
// verified against it and a mismatch is a hard failure.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}

	if err := verifyChecksumIfLocked(absPath); err != nil {
		return nil, err
	}

	data = expandEnv(data)

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", absPath, err)
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// expandEnv replaces ${VAR} references with environment values.
// Unset variables expand to the empty string.
func expandEnv(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := envVarPattern.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(name)))
	})
}

// applyDefaults fills zero values that yaml.Unmarshal may have cleared.
func applyDefaults(cfg *Config) {
	def := Defaults()
	if cfg.Service.Name == "" {
		cfg.Service.Name = def.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = def.Service.LogLevel
	}
	if cfg.Service.LogFormat == "" {
		cfg.Service.LogFormat = def.Service.LogFormat
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = def.Storage.Path
	}
	if cfg.API.Listen == "" {
		cfg.API.Listen = def.API.Listen
	}
	if cfg.API.DefaultPageSize <= 0 {
		cfg.API.DefaultPageSize = def.API.DefaultPageSize
	}
	if cfg.API.MaxPageSize <= 0 {
		cfg.API.MaxPageSize = def.API.MaxPageSize
	}
	if cfg.Webhooks.Timeout <= 0 {
		cfg.Webhooks.Timeout = def.Webhooks.Timeout
	}
	if cfg.Webhooks.UserAgent == "" {
		cfg.Webhooks.UserAgent = def.Webhooks.UserAgent
	}
	if cfg.Webhooks.SignatureHeader == "" {
		cfg.Webhooks.SignatureHeader = def.Webhooks.SignatureHeader
	}
	if cfg.Webhooks.ResponseBodyLimit <= 0 {
		cfg.Webhooks.ResponseBodyLimit = def.Webhooks.ResponseBodyLimit
	}
}

func validate(cfg *Config) error {
	if cfg.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}
	if cfg.API.Enabled {
		if cfg.API.Listen == "" {
			return fmt.Errorf("api.listen is required when the API is enabled")
		}
		if cfg.API.Auth.APIKey == "" && len(cfg.API.Auth.Tokens) == 0 {
			return fmt.Errorf("api.auth needs api_key or at least one token")
		}
	}
	if cfg.API.MaxPageSize > 200 {
		return fmt.Errorf("api.max_page_size must not exceed 200")
	}
	if cfg.API.DefaultPageSize > cfg.API.MaxPageSize {
		return fmt.Errorf("api.default_page_size must not exceed api.max_page_size")
	}
	for i, tok := range cfg.API.Auth.Tokens {
		if tok.Token == "" {
			return fmt.Errorf("api.auth.tokens[%d].token is empty", i)
		}
		if len(tok.Scopes) == 0 {
			return fmt.Errorf("api.auth.tokens[%d].scopes is empty", i)
		}
	}
	return nil
}
