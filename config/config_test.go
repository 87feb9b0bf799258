package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
whatsapp:
  access_token: ${TEST_WA_TOKEN}
  phone_number_id: "1234567890"
  verify_token: verify-me
completion:
  api_key: ${TEST_OPENAI_KEY}
`

func TestLoad_MinimalWithDefaults(t *testing.T) {
	t.Setenv("TEST_WA_TOKEN", "wa-token")
	t.Setenv("TEST_OPENAI_KEY", "sk-test")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "wa-token", cfg.WhatsApp.AccessToken)
	assert.Equal(t, "sk-test", cfg.Completion.APIKey)

	assert.Equal(t, ":3000", cfg.Server.Addr)
	assert.Equal(t, 100000, cfg.Session.TokenBudget)
	assert.Equal(t, "en", cfg.Session.DefaultLanguage)
	assert.Equal(t, []string{"en", "de"}, cfg.Session.Languages)
	assert.Equal(t, 30*time.Second, cfg.Dispatch.Interval)
	assert.Equal(t, 20*time.Second, cfg.Dispatch.QuietWindow)
	assert.Equal(t, 60*time.Second, cfg.Dispatch.EligibilityWindow)
	assert.Equal(t, 2*time.Minute, cfg.Dispatch.Timeout)
	assert.Equal(t, 64, cfg.Dispatch.MaxConcurrent)
	assert.Equal(t, 3, cfg.Dispatch.MaxPasses)
	assert.Equal(t, "reset", cfg.Dispatch.ResetKeyword)
	assert.Equal(t, time.Hour, cfg.Reaper.Interval)
	assert.Equal(t, 24*time.Hour, cfg.Reaper.SessionTimeout)
	assert.Equal(t, "openai", cfg.Completion.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.Completion.Model)
	assert.InDelta(t, 0.3, cfg.Completion.Temperature, 1e-9)
	assert.Equal(t, "sqlite", cfg.CRM.Backend)
	assert.Equal(t, "data/leads.db", cfg.CRM.SQLitePath)
	assert.Equal(t, 2*time.Second, cfg.Notify.Twilio.Delay)
	assert.Equal(t, "memory", cfg.Dedupe.Backend)
	assert.Equal(t, 24*time.Hour, cfg.Dedupe.TTL)
	assert.Equal(t, 4, cfg.Knowledge.Limit)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "reading config file")
}

func TestParse_Overrides(t *testing.T) {
	cfg, err := Parse([]byte(`
whatsapp: {access_token: t, phone_number_id: "1", verify_token: v}
completion: {provider: anthropic, api_key: sk-ant}
dispatch: {interval: 5s, quiet_window: 3s, reset_keyword: neustart}
`))
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.Dispatch.Interval)
	assert.Equal(t, 3*time.Second, cfg.Dispatch.QuietWindow)
	assert.Equal(t, "neustart", cfg.Dispatch.ResetKeyword)
	assert.Equal(t, "claude-3-5-haiku-latest", cfg.Completion.Model)
}

func TestValidate(t *testing.T) {
	base := `whatsapp: {access_token: t, phone_number_id: "1", verify_token: v}
completion: {api_key: k}
`
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"missing whatsapp token", `whatsapp: {phone_number_id: "1", verify_token: v}
completion: {api_key: k}`, "whatsapp.access_token"},
		{"missing verify token", `whatsapp: {access_token: t, phone_number_id: "1"}
completion: {api_key: k}`, "whatsapp.verify_token"},
		{"unknown provider", `whatsapp: {access_token: t, phone_number_id: "1", verify_token: v}
completion: {provider: llama, api_key: k}`, "completion.provider"},
		{"missing api key", `whatsapp: {access_token: t, phone_number_id: "1", verify_token: v}`, "completion.api_key"},
		{"supabase without url", base + `crm: {backend: supabase}`, "crm.supabase"},
		{"unknown crm", base + `crm: {backend: airtable}`, "crm.backend"},
		{"redis without url", base + `dedupe: {backend: redis}`, "dedupe.redis_url"},
		{"knowledge without qdrant", base + `knowledge: {enabled: true}`, "knowledge.qdrant_url"},
		{"negative duration", base + `dispatch: {interval: -1s}`, "dispatch.interval"},
		{"bad duration", base + `reaper: {interval: soon}`, "reaper.interval"},
		{"twilio incomplete", base + `notify: {twilio: {enabled: true, account_sid: AC1}}`, "notify.twilio"},
		{"unsupported default language", base + `session: {default_language: fr}`, "session.default_language"},
		{"bad log format", base + `logging: {format: xml}`, "logging.format"},
		{"valid", base, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestKnowledgeRequiresOpenAI(t *testing.T) {
	_, err := Parse([]byte(`whatsapp: {access_token: t, phone_number_id: "1", verify_token: v}
completion: {provider: anthropic, api_key: k}
knowledge: {enabled: true, qdrant_url: "localhost:6334", collection: kb}
`))
	assert.ErrorContains(t, err, "openai embeddings")
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_EXPAND_A", "alpha")
	assert.Equal(t, "x: alpha, y: ", expandEnvVars("x: ${TEST_EXPAND_A}, y: ${TEST_EXPAND_UNSET_B}"))
}

func TestSystemPrompt(t *testing.T) {
	cfg := &Config{}
	prompt, err := cfg.SystemPrompt()
	require.NoError(t, err)
	assert.Equal(t, DefaultSystemPrompt, prompt)

	path := filepath.Join(t.TempDir(), "prompt.txt")
	require.NoError(t, os.WriteFile(path, []byte("  From file.\n"), 0o600))
	cfg.Completion.SystemPromptFile = path
	prompt, err = cfg.SystemPrompt()
	require.NoError(t, err)
	assert.Equal(t, "From file.", prompt)

	cfg.Completion.SystemPrompt = "Inline."
	prompt, err = cfg.SystemPrompt()
	require.NoError(t, err)
	assert.Equal(t, "Inline.", prompt)

	cfg.Completion.SystemPrompt = ""
	cfg.Completion.SystemPromptFile = filepath.Join(t.TempDir(), "missing.txt")
	_, err = cfg.SystemPrompt()
	assert.Error(t, err)
}
