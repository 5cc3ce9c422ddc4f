package container

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docmind/internal/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	skillDir := filepath.Join(dir, "skills", "haiku")
	require.NoError(t, os.MkdirAll(skillDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(skillDir, "SKILL.md"),
		[]byte("---\ndescription: Write a haiku\ntriggers: [haiku]\n---\nAnswer in haiku form."), 0o600))

	cfg, err := config.Parse([]byte(`
providers:
  - id: local
    type: ollama
    base_url: http://127.0.0.1:1
    model: llama3
store:
  driver: sqlite
  dsn: file:` + filepath.Join(dir, "ledger.db") + `
search:
  providers:
    - id: brave
      type: brave
skills:
  dir: ` + filepath.Join(dir, "skills") + `
`))
	require.NoError(t, err)
	return cfg
}

func TestNewWiresServices(t *testing.T) {
	c, err := New(context.Background(), testConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, c.Close()) })

	assert.NotNil(t, c.Store())
	assert.NotNil(t, c.Router())
	assert.NotNil(t, c.Quota())
	assert.Same(t, c.Manager(), c.Router().Manager())
	assert.Equal(t, []string{"brave"}, c.Search().Providers())
	assert.Len(t, c.Skills().List(), 7, "builtins plus the skill on disk")

	rec := httptest.NewRecorder()
	c.Server().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/quota", nil))
	require.Equal(t, http.StatusOK, rec.Code, "no resolver configured means anonymous access")

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "anonymous", body["account_id"])
	assert.EqualValues(t, 50, body["ai_total"])
}

func TestNewReportsRootCause(t *testing.T) {
	cfg := testConfig(t)
	cfg.Quota.ResetSchedule = "not a schedule"

	_, err := New(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse quota reset schedule")
}
