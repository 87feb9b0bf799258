package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	pipeline "github.com/korberlin/WhatsApp-AI-Sales-Pipeline"
	"github.com/korberlin/WhatsApp-AI-Sales-Pipeline/completion"
	anthropicclient "github.com/korberlin/WhatsApp-AI-Sales-Pipeline/completion/anthropic"
	openaiclient "github.com/korberlin/WhatsApp-AI-Sales-Pipeline/completion/openai"
	"github.com/korberlin/WhatsApp-AI-Sales-Pipeline/config"
	"github.com/korberlin/WhatsApp-AI-Sales-Pipeline/crm"
	"github.com/korberlin/WhatsApp-AI-Sales-Pipeline/crm/sqlite"
	"github.com/korberlin/WhatsApp-AI-Sales-Pipeline/dedupe"
	"github.com/korberlin/WhatsApp-AI-Sales-Pipeline/media"
	"github.com/korberlin/WhatsApp-AI-Sales-Pipeline/notify"
	"github.com/korberlin/WhatsApp-AI-Sales-Pipeline/session"
	"github.com/korberlin/WhatsApp-AI-Sales-Pipeline/supabase"
	"github.com/korberlin/WhatsApp-AI-Sales-Pipeline/tool"
	"github.com/korberlin/WhatsApp-AI-Sales-Pipeline/vectorstore/qdrant"
	"github.com/korberlin/WhatsApp-AI-Sales-Pipeline/whatsapp"
)

// app holds the wired process. close releases resources in reverse
// acquisition order.
type app struct {
	engine  *pipeline.Engine
	webhook *whatsapp.Handler
	closers []io.Closer
	logger  *slog.Logger
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Warn("closing resource", "error", err)
		}
	}
}

func build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{logger: logger}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	prompt, err := cfg.SystemPrompt()
	if err != nil {
		return nil, err
	}

	store := session.NewStore(
		session.WithShards(cfg.Session.Shards),
		session.WithDefaults(session.Defaults{
			SystemPrompt: prompt,
			TokenBudget:  cfg.Session.TokenBudget,
			Language:     cfg.Session.DefaultLanguage,
			Tokenizer:    pipeline.NewTokenizer(cfg.Completion.Provider, cfg.Completion.Model, logger),
		}),
	)

	client, err := newCompletionClient(cfg.Completion)
	if err != nil {
		return nil, fmt.Errorf("creating completion client: %w", err)
	}

	wa, err := whatsapp.NewClient(whatsapp.Config{
		BaseURL:       cfg.WhatsApp.BaseURL,
		APIVersion:    cfg.WhatsApp.APIVersion,
		PhoneNumberID: cfg.WhatsApp.PhoneNumberID,
		AccessToken:   cfg.WhatsApp.AccessToken,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating whatsapp client: %w", err)
	}

	notifier, err := newNotifier(cfg.Notify, logger)
	if err != nil {
		return nil, fmt.Errorf("creating notifier: %w", err)
	}
	leads, transfer, err := newCRM(cfg, wa, logger)
	if err != nil {
		return nil, fmt.Errorf("creating lead store: %w", err)
	}
	a.closers = append(a.closers, leads)

	registry := tool.NewRegistry(tool.DefaultTimeout, logger)
	if err := registry.RegisterAll(
		tool.NewSetLanguage(cfg.Session.Languages),
		tool.NewSaveLead(leads, transfer, notifier, logger),
	); err != nil {
		return nil, err
	}

	if cfg.Knowledge.Enabled {
		kb, err := newKnowledgeTool(cfg)
		if err != nil {
			return nil, fmt.Errorf("creating knowledge search: %w", err)
		}
		a.closers = append(a.closers, kb.closer)
		if err := registry.Register(kb.tool); err != nil {
			return nil, err
		}
	}

	deduper, err := newDeduper(ctx, cfg.Dedupe)
	if err != nil {
		return nil, fmt.Errorf("creating deduper: %w", err)
	}
	a.closers = append(a.closers, deduper)

	// Closed first so queued lead notifications drain before the stores go
	if c, ok := notifier.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	a.engine, err = pipeline.New(store, client, wa,
		pipeline.WithConfig(pipeline.Config{
			DispatchInterval:  cfg.Dispatch.Interval,
			QuietWindow:       cfg.Dispatch.QuietWindow,
			EligibilityWindow: cfg.Dispatch.EligibilityWindow,
			DispatchTimeout:   cfg.Dispatch.Timeout,
			ReapInterval:      cfg.Reaper.Interval,
			SessionTimeout:    cfg.Reaper.SessionTimeout,
			MaxConcurrent:     int64(cfg.Dispatch.MaxConcurrent),
			MaxPasses:         cfg.Dispatch.MaxPasses,
			ResetKeyword:      cfg.Dispatch.ResetKeyword,
			ResetReply:        cfg.Dispatch.ResetReply,
		}),
		pipeline.WithTools(registry),
		pipeline.WithNotifier(notifier),
		pipeline.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}

	a.webhook = whatsapp.NewHandler(whatsapp.HandlerConfig{
		VerifyToken: cfg.WhatsApp.VerifyToken,
		AppSecret:   cfg.WhatsApp.AppSecret,
	}, a.engine, deduper, logger)

	logger.Info("salesbot wired", "tools", registry.Count(), "languages", cfg.Session.Languages)
	return a, nil
}

func newCompletionClient(cfg config.CompletionConfig) (completion.Client, error) {
	switch cfg.Provider {
	case "anthropic":
		return anthropicclient.New(anthropicclient.Config{
			APIKey:          cfg.APIKey,
			BaseURL:         cfg.BaseURL,
			Model:           cfg.Model,
			Temperature:     cfg.Temperature,
			MaxOutputTokens: int64(cfg.MaxOutputTokens),
		})
	default:
		return openaiclient.New(openaiclient.Config{
			APIKey:          cfg.APIKey,
			BaseURL:         cfg.BaseURL,
			Model:           cfg.Model,
			Temperature:     float32(cfg.Temperature),
			MaxOutputTokens: cfg.MaxOutputTokens,
		})
	}
}

// newCRM opens the lead store. The supabase backend also stores lead media,
// so it is the only one that gets a media transfer.
func newCRM(cfg *config.Config, fetcher media.Fetcher, logger *slog.Logger) (crm.Store, *media.Transfer, error) {
	switch cfg.CRM.Backend {
	case "supabase":
		sb, err := supabase.New(supabase.Config{
			URL:        cfg.CRM.Supabase.URL,
			APIKey:     cfg.CRM.Supabase.APIKey,
			LeadsTable: cfg.CRM.Supabase.LeadsTable,
			Bucket:     cfg.CRM.Supabase.Bucket,
		})
		if err != nil {
			return nil, nil, err
		}
		transfer := media.NewTransfer(fetcher, sb, cfg.Media.Concurrency, cfg.Media.Prefix, logger)
		return sb, transfer, nil
	default:
		store, err := sqlite.New(cfg.CRM.SQLitePath, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	}
}

type knowledgeTool struct {
	tool   tool.Tool
	closer io.Closer
}

func newKnowledgeTool(cfg *config.Config) (*knowledgeTool, error) {
	vectors, err := qdrant.New(qdrant.Config{
		URL:            cfg.Knowledge.QdrantURL,
		CollectionName: cfg.Knowledge.Collection,
		APIKey:         cfg.Knowledge.QdrantAPIKey,
	})
	if err != nil {
		return nil, err
	}

	embedder, err := openaiclient.NewEmbedder(openaiclient.EmbedderConfig{
		APIKey:  cfg.Completion.APIKey,
		BaseURL: cfg.Completion.BaseURL,
		Model:   cfg.Knowledge.EmbeddingModel,
	})
	if err != nil {
		vectors.Close()
		return nil, err
	}

	return &knowledgeTool{
		tool:   tool.NewSearchKnowledge(vectors, embedder, cfg.Knowledge.Limit, cfg.Knowledge.MinScore),
		closer: vectors,
	}, nil
}

// newNotifier fans out to every enabled channel behind an async wrapper so a
// dispatch never waits on SMS or Matrix delivery.
func newNotifier(cfg config.NotifyConfig, logger *slog.Logger) (notify.Notifier, error) {
	var channels notify.Multi

	if cfg.Twilio.Enabled {
		tw, err := notify.NewTwilio(notify.TwilioConfig{
			AccountSID: cfg.Twilio.AccountSID,
			AuthToken:  cfg.Twilio.AuthToken,
			From:       cfg.Twilio.From,
			To:         cfg.Twilio.To,
			Delay:      cfg.Twilio.Delay,
			Templates:  notify.DefaultTemplates(),
		}, logger)
		if err != nil {
			return nil, err
		}
		channels = append(channels, tw)
	}

	if cfg.Matrix.Enabled {
		mx, err := notify.NewMatrix(notify.MatrixConfig{
			Homeserver:  cfg.Matrix.Homeserver,
			UserID:      cfg.Matrix.UserID,
			AccessToken: cfg.Matrix.AccessToken,
			RoomID:      cfg.Matrix.RoomID,
			Templates:   notify.DefaultTemplates(),
		})
		if err != nil {
			return nil, err
		}
		channels = append(channels, mx)
	}

	if len(channels) == 0 {
		logger.Info("operator notifications disabled")
		return notify.Nop{}, nil
	}
	return notify.NewAsync(channels, cfg.Timeout, logger), nil
}

func newDeduper(ctx context.Context, cfg config.DedupeConfig) (dedupe.Deduper, error) {
	if cfg.Backend != "redis" {
		return dedupe.NewMemory(cfg.TTL, cfg.MaxSize), nil
	}

	r, err := dedupe.NewRedisFromURL(cfg.RedisURL, cfg.TTL)
	if err != nil {
		return nil, err
	}
	if err := r.Ping(ctx); err != nil {
		r.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return r, nil
}
