package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/korberlin/WhatsApp-AI-Sales-Pipeline/clock"
	"github.com/korberlin/WhatsApp-AI-Sales-Pipeline/completion"
	"github.com/korberlin/WhatsApp-AI-Sales-Pipeline/notify"
	"github.com/korberlin/WhatsApp-AI-Sales-Pipeline/session"
	"github.com/korberlin/WhatsApp-AI-Sales-Pipeline/tool"
)

// Sender delivers a text reply to a conversant.
type Sender interface {
	SendText(ctx context.Context, to, body string) error
}

// Engine is the session coordination engine.
type Engine struct {
	store    *session.Store
	clock    clock.Clock
	client   completion.Client
	sender   Sender
	tools    *tool.Registry
	notifier notify.Notifier
	catalog  *Catalog
	config   Config
	logger   *slog.Logger

	slots      *semaphore.Weighted
	dispatches sync.WaitGroup

	started atomic.Bool
	cancel  context.CancelFunc
	loops   sync.WaitGroup
}

// New creates an engine over store. The engine reads time from the store's
// clock so that activity stamps and quiet windows agree.
func New(store *session.Store, client completion.Client, sender Sender, opts ...Option) (*Engine, error) {
	if store == nil || client == nil || sender == nil {
		return nil, fmt.Errorf("%w: store, completion client and sender are required", ErrInvalidConfig)
	}

	e := &Engine{
		store:  store,
		clock:  store.Clock(),
		client: client,
		sender: sender,
		config: DefaultConfig(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if err := e.config.validate(); err != nil {
		return nil, err
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.logger = e.logger.With("component", "engine")
	if e.tools == nil {
		e.tools = tool.NewRegistry(0, e.logger)
	}
	if e.notifier == nil {
		e.notifier = notify.Nop{}
	}
	if e.catalog == nil {
		e.catalog = DefaultCatalog()
	}
	e.slots = semaphore.NewWeighted(e.config.MaxConcurrent)

	return e, nil
}

// Enqueue appends an inbound text fragment to the conversant's queue. It
// never blocks on a dispatch in progress.
func (e *Engine) Enqueue(id, text string) {
	now := e.clock.Now()
	for {
		// A session deleted between lookup and append refuses the fragment;
		// the next lookup creates its replacement.
		if e.store.GetOrCreate(id).Enqueue(text, now) {
			return
		}
	}
}

// EnqueueMedia records a media reference for a later CRM write and enqueues
// a placeholder turn so the model learns that media arrived.
func (e *Engine) EnqueueMedia(id, kind string, ref session.MediaRef) {
	placeholder := fmt.Sprintf("[Received a %s message]", kind)
	now := e.clock.Now()
	for {
		sess := e.store.GetOrCreate(id)
		count := sess.AddMedia(ref)
		if sess.Enqueue(placeholder, now) {
			e.logger.Info("media recorded", "session_id", id, "media_id", ref.MediaID, "pending", count)
			return
		}
	}
}

// SetHumanTakeover suspends or resumes automated dispatch for a conversant.
func (e *Engine) SetHumanTakeover(id string, on bool) {
	sess := e.store.GetOrCreate(id)
	sess.SetHumanTakeover(on)
	e.logger.Info("human takeover changed", "session_id", id, "takeover", on, "queued", sess.QueueLen())
}

// ShouldDispatch reports whether the conversant's queue is eligible for a
// drain under the eligibility window. It does not refresh activity.
func (e *Engine) ShouldDispatch(id string) bool {
	sess, ok := e.store.Peek(id)
	if !ok {
		return false
	}
	return sess.Eligible(e.clock.Now(), e.config.EligibilityWindow)
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.config }

// Start launches the dispatch and reap loops. It returns immediately.
func (e *Engine) Start(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	ctx, e.cancel = context.WithCancel(ctx)
	e.loops.Add(2)
	go e.runDispatchLoop(ctx)
	go e.runReapLoop(ctx)

	e.logger.Info("engine started",
		"dispatch_interval", e.config.DispatchInterval,
		"quiet_window", e.config.QuietWindow,
		"reap_interval", e.config.ReapInterval,
		"session_timeout", e.config.SessionTimeout,
	)
	return nil
}

// Stop halts both loops and waits for in-flight dispatches to finish, or
// for ctx to expire.
func (e *Engine) Stop(ctx context.Context) error {
	if !e.started.Load() {
		return ErrNotStarted
	}

	e.cancel()
	e.loops.Wait()

	done := make(chan struct{})
	go func() {
		e.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	e.started.Store(false)
	e.logger.Info("engine stopped")
	return nil
}

// Wait blocks until every dispatch started so far has finished.
func (e *Engine) Wait() {
	e.dispatches.Wait()
}

func (e *Engine) notify(ctx context.Context, kind notify.Kind, detail, phone string) {
	if err := e.notifier.Notify(ctx, notify.Notification{Kind: kind, Detail: detail, LeadPhone: phone}); err != nil {
		e.logger.Warn("operator notification not delivered", "kind", kind, "error", err)
	}
}
