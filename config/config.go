// Package config loads the salesbot YAML configuration.
// Environment variables in the form ${VAR_NAME} are expanded before parsing.
package config

import (
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSystemPrompt is used when neither an inline prompt nor a prompt
// file is configured.
const DefaultSystemPrompt = `You are a helpful sales assistant for a business.
Your main goal is to help potential clients learn about our services,
answer their questions, and collect contact information when they show interest.
Ask which language the user prefers and call setUserLanguage once they answer.
When the user has shared their name and interest, call saveLead.`

// Config represents the complete salesbot configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	WhatsApp   WhatsAppConfig   `yaml:"whatsapp"`
	Session    SessionConfig    `yaml:"session"`
	Dispatch   DispatchConfig   `yaml:"dispatch"`
	Reaper     ReaperConfig     `yaml:"reaper"`
	Completion CompletionConfig `yaml:"completion"`
	CRM        CRMConfig        `yaml:"crm"`
	Media      MediaConfig      `yaml:"media"`
	Notify     NotifyConfig     `yaml:"notify"`
	Dedupe     DedupeConfig     `yaml:"dedupe"`
	Knowledge  KnowledgeConfig  `yaml:"knowledge"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig holds the HTTP listener configuration
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// WhatsAppConfig holds Cloud API credentials
type WhatsAppConfig struct {
	AccessToken   string `yaml:"access_token"`
	PhoneNumberID string `yaml:"phone_number_id"`
	VerifyToken   string `yaml:"verify_token"`
	AppSecret     string `yaml:"app_secret"` // enables webhook signature checks
	APIVersion    string `yaml:"api_version"`
	BaseURL       string `yaml:"base_url"`
}

// SessionConfig holds per-conversant state settings
type SessionConfig struct {
	TokenBudget     int      `yaml:"token_budget"`
	DefaultLanguage string   `yaml:"default_language"`
	Languages       []string `yaml:"languages"`
	Shards          int      `yaml:"shards"`
}

// DispatchConfig holds batch dispatcher timing
type DispatchConfig struct {
	Interval          time.Duration `yaml:"-"`
	QuietWindow       time.Duration `yaml:"-"`
	EligibilityWindow time.Duration `yaml:"-"`
	Timeout           time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	IntervalRaw          string `yaml:"interval"`
	QuietWindowRaw       string `yaml:"quiet_window"`
	EligibilityWindowRaw string `yaml:"eligibility_window"`
	TimeoutRaw           string `yaml:"timeout"`

	MaxConcurrent int    `yaml:"max_concurrent"`
	MaxPasses     int    `yaml:"max_passes"`
	ResetKeyword  string `yaml:"reset_keyword"`
	ResetReply    string `yaml:"reset_reply"`
}

// ReaperConfig holds idle reaper timing
type ReaperConfig struct {
	Interval       time.Duration `yaml:"-"`
	SessionTimeout time.Duration `yaml:"-"`

	IntervalRaw       string `yaml:"interval"`
	SessionTimeoutRaw string `yaml:"session_timeout"`
}

// CompletionConfig selects and configures the completion engine
type CompletionConfig struct {
	Provider         string  `yaml:"provider"` // openai or anthropic
	APIKey           string  `yaml:"api_key"`
	BaseURL          string  `yaml:"base_url"`
	Model            string  `yaml:"model"`
	Temperature      float64 `yaml:"temperature"`
	MaxOutputTokens  int     `yaml:"max_output_tokens"`
	SystemPrompt     string  `yaml:"system_prompt"`
	SystemPromptFile string  `yaml:"system_prompt_file"`
}

// CRMConfig selects where leads are written
type CRMConfig struct {
	Backend    string         `yaml:"backend"` // sqlite or supabase
	SQLitePath string         `yaml:"sqlite_path"`
	Supabase   SupabaseConfig `yaml:"supabase"`
}

// SupabaseConfig holds Supabase project settings
type SupabaseConfig struct {
	URL        string `yaml:"url"`
	APIKey     string `yaml:"api_key"`
	LeadsTable string `yaml:"leads_table"`
	Bucket     string `yaml:"bucket"`
}

// MediaConfig holds media transfer settings. Media is only stored when the
// CRM backend is supabase.
type MediaConfig struct {
	Concurrency int    `yaml:"concurrency"`
	Prefix      string `yaml:"prefix"`
}

// NotifyConfig holds operator notification channels
type NotifyConfig struct {
	Timeout    time.Duration `yaml:"-"`
	TimeoutRaw string        `yaml:"timeout"`

	Twilio TwilioConfig `yaml:"twilio"`
	Matrix MatrixConfig `yaml:"matrix"`
}

// TwilioConfig holds SMS notification settings
type TwilioConfig struct {
	Enabled    bool     `yaml:"enabled"`
	AccountSID string   `yaml:"account_sid"`
	AuthToken  string   `yaml:"auth_token"`
	From       string   `yaml:"from"`
	To         []string `yaml:"to"`

	Delay    time.Duration `yaml:"-"`
	DelayRaw string        `yaml:"delay"`
}

// MatrixConfig holds Matrix room notification settings
type MatrixConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Homeserver  string `yaml:"homeserver"`
	UserID      string `yaml:"user_id"`
	AccessToken string `yaml:"access_token"`
	RoomID      string `yaml:"room_id"`
}

// DedupeConfig holds webhook redelivery filtering
type DedupeConfig struct {
	Backend  string `yaml:"backend"` // memory or redis
	RedisURL string `yaml:"redis_url"`
	MaxSize  int    `yaml:"max_size"`

	TTL    time.Duration `yaml:"-"`
	TTLRaw string        `yaml:"ttl"`
}

// KnowledgeConfig enables the knowledge-base search tool
type KnowledgeConfig struct {
	Enabled        bool    `yaml:"enabled"`
	QdrantURL      string  `yaml:"qdrant_url"`
	QdrantAPIKey   string  `yaml:"qdrant_api_key"`
	Collection     string  `yaml:"collection"`
	EmbeddingModel string  `yaml:"embedding_model"`
	Limit          int     `yaml:"limit"`
	MinScore       float32 `yaml:"min_score"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse parses configuration from YAML bytes.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	setDefault(&c.Server.Addr, ":3000")

	setDefault(&c.WhatsApp.APIVersion, "v17.0")
	setDefault(&c.WhatsApp.BaseURL, "https://graph.facebook.com")

	setDefaultInt(&c.Session.TokenBudget, 100000)
	setDefault(&c.Session.DefaultLanguage, "en")
	setDefaultInt(&c.Session.Shards, 32)
	if len(c.Session.Languages) == 0 {
		c.Session.Languages = []string{"en", "de"}
	}

	setDefault(&c.Dispatch.IntervalRaw, "30s")
	setDefault(&c.Dispatch.QuietWindowRaw, "20s")
	setDefault(&c.Dispatch.EligibilityWindowRaw, "60s")
	setDefault(&c.Dispatch.TimeoutRaw, "2m")
	setDefaultInt(&c.Dispatch.MaxConcurrent, 64)
	setDefaultInt(&c.Dispatch.MaxPasses, 3)
	setDefault(&c.Dispatch.ResetKeyword, "reset")
	setDefault(&c.Dispatch.ResetReply, "Session has been reset")

	setDefault(&c.Reaper.IntervalRaw, "1h")
	setDefault(&c.Reaper.SessionTimeoutRaw, "24h")

	setDefault(&c.Completion.Provider, "openai")
	if c.Completion.Model == "" {
		switch c.Completion.Provider {
		case "anthropic":
			c.Completion.Model = "claude-3-5-haiku-latest"
		default:
			c.Completion.Model = "gpt-4o-mini"
		}
	}
	if c.Completion.Temperature == 0 {
		c.Completion.Temperature = 0.3
	}
	setDefaultInt(&c.Completion.MaxOutputTokens, 1024)

	setDefault(&c.CRM.Backend, "sqlite")
	setDefault(&c.CRM.SQLitePath, "data/leads.db")
	setDefault(&c.CRM.Supabase.LeadsTable, "leads")
	setDefault(&c.CRM.Supabase.Bucket, "lead-media")

	setDefaultInt(&c.Media.Concurrency, 4)
	setDefault(&c.Media.Prefix, "whatsapp")

	setDefault(&c.Notify.TimeoutRaw, "30s")
	setDefault(&c.Notify.Twilio.DelayRaw, "2s")

	setDefault(&c.Dedupe.Backend, "memory")
	setDefault(&c.Dedupe.TTLRaw, "24h")
	setDefaultInt(&c.Dedupe.MaxSize, 10000)

	setDefaultInt(&c.Knowledge.Limit, 4)
	setDefault(&c.Knowledge.EmbeddingModel, "text-embedding-3-small")

	setDefault(&c.Logging.Level, "info")
	setDefault(&c.Logging.Format, "text")
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}

func setDefaultInt(field *int, value int) {
	if *field == 0 {
		*field = value
	}
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"dispatch.interval", cfg.Dispatch.IntervalRaw, &cfg.Dispatch.Interval},
		{"dispatch.quiet_window", cfg.Dispatch.QuietWindowRaw, &cfg.Dispatch.QuietWindow},
		{"dispatch.eligibility_window", cfg.Dispatch.EligibilityWindowRaw, &cfg.Dispatch.EligibilityWindow},
		{"dispatch.timeout", cfg.Dispatch.TimeoutRaw, &cfg.Dispatch.Timeout},
		{"reaper.interval", cfg.Reaper.IntervalRaw, &cfg.Reaper.Interval},
		{"reaper.session_timeout", cfg.Reaper.SessionTimeoutRaw, &cfg.Reaper.SessionTimeout},
		{"notify.timeout", cfg.Notify.TimeoutRaw, &cfg.Notify.Timeout},
		{"notify.twilio.delay", cfg.Notify.Twilio.DelayRaw, &cfg.Notify.Twilio.Delay},
		{"dedupe.ttl", cfg.Dedupe.TTLRaw, &cfg.Dedupe.TTL},
	}

	for _, f := range fields {
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.WhatsApp.AccessToken == "" {
		return fmt.Errorf("whatsapp.access_token is required")
	}
	if c.WhatsApp.PhoneNumberID == "" {
		return fmt.Errorf("whatsapp.phone_number_id is required")
	}
	if c.WhatsApp.VerifyToken == "" {
		return fmt.Errorf("whatsapp.verify_token is required")
	}

	switch c.Completion.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("completion.provider must be openai or anthropic, got %q", c.Completion.Provider)
	}
	if c.Completion.APIKey == "" {
		return fmt.Errorf("completion.api_key is required")
	}

	switch c.CRM.Backend {
	case "sqlite":
		if c.CRM.SQLitePath == "" {
			return fmt.Errorf("crm.sqlite_path is required for the sqlite backend")
		}
	case "supabase":
		if c.CRM.Supabase.URL == "" || c.CRM.Supabase.APIKey == "" {
			return fmt.Errorf("crm.supabase.url and crm.supabase.api_key are required for the supabase backend")
		}
	default:
		return fmt.Errorf("crm.backend must be sqlite or supabase, got %q", c.CRM.Backend)
	}

	switch c.Dedupe.Backend {
	case "memory":
	case "redis":
		if c.Dedupe.RedisURL == "" {
			return fmt.Errorf("dedupe.redis_url is required for the redis backend")
		}
	default:
		return fmt.Errorf("dedupe.backend must be memory or redis, got %q", c.Dedupe.Backend)
	}

	if c.Knowledge.Enabled {
		if c.Knowledge.QdrantURL == "" || c.Knowledge.Collection == "" {
			return fmt.Errorf("knowledge.qdrant_url and knowledge.collection are required when knowledge is enabled")
		}
		if c.Completion.Provider != "openai" {
			return fmt.Errorf("knowledge search needs openai embeddings, completion.provider is %q", c.Completion.Provider)
		}
	}

	if c.Notify.Twilio.Enabled {
		if c.Notify.Twilio.AccountSID == "" || c.Notify.Twilio.AuthToken == "" || c.Notify.Twilio.From == "" || len(c.Notify.Twilio.To) == 0 {
			return fmt.Errorf("notify.twilio needs account_sid, auth_token, from and at least one to number")
		}
	}
	if c.Notify.Matrix.Enabled {
		if c.Notify.Matrix.Homeserver == "" || c.Notify.Matrix.AccessToken == "" || c.Notify.Matrix.RoomID == "" {
			return fmt.Errorf("notify.matrix needs homeserver, access_token and room_id")
		}
	}

	if !slices.Contains(c.Session.Languages, c.Session.DefaultLanguage) {
		return fmt.Errorf("session.default_language %q is not in session.languages", c.Session.DefaultLanguage)
	}

	positive := []struct {
		name string
		d    time.Duration
	}{
		{"dispatch.interval", c.Dispatch.Interval},
		{"dispatch.quiet_window", c.Dispatch.QuietWindow},
		{"dispatch.eligibility_window", c.Dispatch.EligibilityWindow},
		{"dispatch.timeout", c.Dispatch.Timeout},
		{"reaper.interval", c.Reaper.Interval},
		{"reaper.session_timeout", c.Reaper.SessionTimeout},
		{"notify.timeout", c.Notify.Timeout},
		{"dedupe.ttl", c.Dedupe.TTL},
	}
	for _, p := range positive {
		if p.d <= 0 {
			return fmt.Errorf("%s must be positive", p.name)
		}
	}
	if c.Notify.Twilio.Delay < 0 {
		return fmt.Errorf("notify.twilio.delay must not be negative")
	}
	if c.Dispatch.MaxConcurrent < 1 || c.Dispatch.MaxPasses < 1 {
		return fmt.Errorf("dispatch.max_concurrent and dispatch.max_passes must be at least 1")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

// SystemPrompt resolves the system prompt: the inline value, then the
// prompt file, then the built-in default.
func (c *Config) SystemPrompt() (string, error) {
	if strings.TrimSpace(c.Completion.SystemPrompt) != "" {
		return c.Completion.SystemPrompt, nil
	}
	if c.Completion.SystemPromptFile != "" {
		data, err := os.ReadFile(c.Completion.SystemPromptFile)
		if err != nil {
			return "", fmt.Errorf("reading system prompt file: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	return DefaultSystemPrompt, nil
}
