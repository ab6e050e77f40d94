package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const minimalConfig = `
service:
  name: formsedge-test
storage:
  path: /tmp/formsedge-test.db
api:
  enabled: true
  listen: "127.0.0.1:0"
  auth:
    api_key: test-admin-key
`

func TestLoadMinimalConfig(t *testing.T) {
	path := writeConfig(t, t.TempDir(), minimalConfig)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "formsedge-test", cfg.Service.Name)
	require.Equal(t, "test-admin-key", cfg.API.Auth.APIKey)
	// Defaults applied
	require.Equal(t, 50, cfg.API.DefaultPageSize)
	require.Equal(t, 200, cfg.API.MaxPageSize)
	require.Equal(t, 30*time.Second, cfg.Webhooks.Timeout)
	require.Equal(t, "X-FormsEdge-Signature", cfg.Webhooks.SignatureHeader)
	require.Equal(t, 5000, cfg.Webhooks.ResponseBodyLimit)
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("FORMSEDGE_TEST_KEY", "secret-from-env")
	path := writeConfig(t, t.TempDir(), `
storage:
  path: /tmp/x.db
api:
  enabled: true
  auth:
    api_key: ${FORMSEDGE_TEST_KEY}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "secret-from-env", cfg.API.Auth.APIKey)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadRejectsOversizedPageLimit(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
storage:
  path: /tmp/x.db
api:
  enabled: true
  max_page_size: 500
  auth:
    api_key: k
`)

	_, err := Load(path)
	require.ErrorContains(t, err, "max_page_size")
}

func TestLoadRequiresAuthWhenEnabled(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
storage:
  path: /tmp/x.db
api:
  enabled: true
`)

	_, err := Load(path)
	require.ErrorContains(t, err, "api.auth")
}

func TestLoadRejectsTokenWithoutScopes(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
storage:
  path: /tmp/x.db
api:
  enabled: true
  auth:
    tokens:
      - token: abc
`)

	_, err := Load(path)
	require.ErrorContains(t, err, "scopes")
}

func TestLockAndVerify(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, minimalConfig)

	require.NoError(t, Lock(path))

	// Locked and untouched: loads fine.
	_, err := Load(path)
	require.NoError(t, err)

	// Tampered: load must fail.
	require.NoError(t, os.WriteFile(path, []byte(minimalConfig+"\n# tampered\n"), 0o644))
	_, err = Load(path)
	require.ErrorContains(t, err, "integrity")

	// Re-lock accepts the new content.
	require.NoError(t, Lock(path))
	_, err = Load(path)
	require.NoError(t, err)
}

func TestLoadWithoutLockSkipsVerification(t *testing.T) {
	path := writeConfig(t, t.TempDir(), minimalConfig)
	_, err := Load(path)
	require.NoError(t, err)
}
