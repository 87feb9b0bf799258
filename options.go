package pipeline

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/korberlin/WhatsApp-AI-Sales-Pipeline/notify"
	"github.com/korberlin/WhatsApp-AI-Sales-Pipeline/tool"
)

// Default engine configuration values
const (
	DefaultDispatchInterval  = 30 * time.Second
	DefaultQuietWindow       = 20 * time.Second
	DefaultEligibilityWindow = 60 * time.Second
	DefaultDispatchTimeout   = 2 * time.Minute
	DefaultReapInterval      = 1 * time.Hour
	DefaultSessionTimeout    = 24 * time.Hour
	DefaultMaxConcurrent     = 64
	DefaultMaxPasses         = 3
	DefaultResetKeyword      = "reset"
	DefaultResetReply        = "Session has been reset"
)

// Config holds engine timing and limits.
type Config struct {
	// DispatchInterval is how often the dispatch sweep runs.
	DispatchInterval time.Duration

	// QuietWindow is how long a queue must be quiet before the sweep drains it.
	QuietWindow time.Duration

	// EligibilityWindow is the quiet period used by ShouldDispatch.
	EligibilityWindow time.Duration

	// DispatchTimeout bounds one full round trip for a drained turn.
	DispatchTimeout time.Duration

	// ReapInterval is how often idle sessions are reaped.
	ReapInterval time.Duration

	// SessionTimeout is how long a session may be inactive before it is reaped.
	SessionTimeout time.Duration

	// MaxConcurrent caps dispatches running at the same time.
	MaxConcurrent int64

	// MaxPasses caps completion calls per drained turn.
	MaxPasses int

	// ResetKeyword deletes the session when it is the entire coalesced turn.
	ResetKeyword string

	// ResetReply acknowledges a reset.
	ResetReply string
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		DispatchInterval:  DefaultDispatchInterval,
		QuietWindow:       DefaultQuietWindow,
		EligibilityWindow: DefaultEligibilityWindow,
		DispatchTimeout:   DefaultDispatchTimeout,
		ReapInterval:      DefaultReapInterval,
		SessionTimeout:    DefaultSessionTimeout,
		MaxConcurrent:     DefaultMaxConcurrent,
		MaxPasses:         DefaultMaxPasses,
		ResetKeyword:      DefaultResetKeyword,
		ResetReply:        DefaultResetReply,
	}
}

func (c Config) validate() error {
	if c.DispatchInterval <= 0 || c.QuietWindow < 0 || c.EligibilityWindow < 0 {
		return fmt.Errorf("%w: dispatch interval must be positive and quiet windows non-negative", ErrInvalidConfig)
	}
	if c.DispatchTimeout <= 0 || c.ReapInterval <= 0 || c.SessionTimeout <= 0 {
		return fmt.Errorf("%w: dispatch timeout, reap interval and session timeout must be positive", ErrInvalidConfig)
	}
	if c.MaxConcurrent < 1 || c.MaxPasses < 1 {
		return fmt.Errorf("%w: max concurrent and max passes must be at least 1", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.ResetKeyword) == "" {
		return fmt.Errorf("%w: reset keyword must not be empty", ErrInvalidConfig)
	}
	return nil
}

// Option is a functional option for configuring an Engine.
type Option func(*Engine)

// WithConfig replaces the engine configuration.
func WithConfig(cfg Config) Option {
	return func(e *Engine) {
		e.config = cfg
	}
}

// WithTools sets the tools offered to the completion engine.
func WithTools(r *tool.Registry) Option {
	return func(e *Engine) {
		e.tools = r
	}
}

// WithNotifier sets the operator notifier. It should not block; wrap slow
// channels in notify.Async.
func WithNotifier(n notify.Notifier) Option {
	return func(e *Engine) {
		e.notifier = n
	}
}

// WithCatalog sets the localized user-facing messages.
func WithCatalog(c *Catalog) Option {
	return func(e *Engine) {
		e.catalog = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}
