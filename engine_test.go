package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/korberlin/WhatsApp-AI-Sales-Pipeline/clock"
	"github.com/korberlin/WhatsApp-AI-Sales-Pipeline/completion"
	"github.com/korberlin/WhatsApp-AI-Sales-Pipeline/notify"
	"github.com/korberlin/WhatsApp-AI-Sales-Pipeline/session"
	"github.com/korberlin/WhatsApp-AI-Sales-Pipeline/tool"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

const systemPrompt = "You sell solar panels."

// scriptedClient answers with queued replies; once the script runs out it
// repeats the last entry.
type scriptedClient struct {
	mu       sync.Mutex
	script   []scriptStep
	requests []completion.Request
	gate     chan struct{} // when set, Complete waits for a receive
}

type scriptStep struct {
	reply *completion.Reply
	err   error
}

func textReply(text string) scriptStep {
	return scriptStep{reply: &completion.Reply{Text: text}}
}

func toolReply(text string, calls ...session.ToolInvocation) scriptStep {
	return scriptStep{reply: &completion.Reply{Text: text, ToolCalls: calls}}
}

func invocation(id, name, args string) session.ToolInvocation {
	return session.ToolInvocation{ID: id, Name: name, Arguments: json.RawMessage(args)}
}

func (c *scriptedClient) Complete(ctx context.Context, req completion.Request) (*completion.Reply, error) {
	if c.gate != nil {
		select {
		case <-c.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	turns := make([]session.Turn, len(req.Turns))
	copy(turns, req.Turns)
	c.requests = append(c.requests, completion.Request{Turns: turns, Tools: req.Tools})

	step := c.script[0]
	if len(c.script) > 1 {
		c.script = c.script[1:]
	}
	return step.reply, step.err
}

func (c *scriptedClient) calls() []completion.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]completion.Request(nil), c.requests...)
}

type sentMessage struct {
	to   string
	body string
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (s *recordingSender) SendText(ctx context.Context, to, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentMessage{to: to, body: body})
	return s.err
}

func (s *recordingSender) messages() []sentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentMessage(nil), s.sent...)
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (r *recordingNotifier) Notify(ctx context.Context, n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

type harness struct {
	clock    *clock.FakeClock
	store    *session.Store
	client   *scriptedClient
	sender   *recordingSender
	notifier *recordingNotifier
	engine   *Engine
}

func newHarness(t *testing.T, script []scriptStep, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		clock:    clock.Fake(t0),
		client:   &scriptedClient{script: script},
		sender:   &recordingSender{},
		notifier: &recordingNotifier{},
	}
	h.store = session.NewStore(
		session.WithClock(h.clock),
		session.WithShards(4),
		session.WithDefaults(session.Defaults{
			SystemPrompt: systemPrompt,
			TokenBudget:  10000,
			Tokenizer:    HeuristicTokenizer{},
		}),
	)

	base := []Option{WithNotifier(h.notifier)}
	engine, err := New(h.store, h.client, h.sender, append(base, opts...)...)
	require.NoError(t, err)
	h.engine = engine
	return h
}

// drain advances past the quiet window, sweeps and waits for the dispatch.
func (h *harness) drain(t *testing.T) int {
	t.Helper()
	h.clock.Advance(h.engine.config.QuietWindow + time.Second)
	n := h.engine.SweepOnce(context.Background())
	h.engine.Wait()
	return n
}

func lastUserText(req completion.Request) string {
	for i := len(req.Turns) - 1; i >= 0; i-- {
		if req.Turns[i].Role == session.RoleUser {
			return req.Turns[i].Content
		}
	}
	return ""
}

func TestNew_Validation(t *testing.T) {
	store := session.NewStore()
	client := &scriptedClient{script: []scriptStep{textReply("x")}}

	_, err := New(nil, client, &recordingSender{})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(store, nil, &recordingSender{})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg := DefaultConfig()
	cfg.MaxPasses = 0
	_, err = New(store, client, &recordingSender{}, WithConfig(cfg))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg = DefaultConfig()
	cfg.ResetKeyword = "  "
	_, err = New(store, client, &recordingSender{}, WithConfig(cfg))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	e, err := New(store, client, &recordingSender{})
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), e.Config())
}

func TestStartStop(t *testing.T) {
	h := newHarness(t, []scriptStep{textReply("hi")})
	ctx := context.Background()

	assert.ErrorIs(t, h.engine.Stop(ctx), ErrNotStarted)
	require.NoError(t, h.engine.Start(ctx))
	assert.ErrorIs(t, h.engine.Start(ctx), ErrAlreadyStarted)
	require.NoError(t, h.engine.Stop(ctx))
	assert.ErrorIs(t, h.engine.Stop(ctx), ErrNotStarted)

	// Restartable after a clean stop
	require.NoError(t, h.engine.Start(ctx))
	require.NoError(t, h.engine.Stop(ctx))
}

func TestStopWaitsForInFlightDispatch(t *testing.T) {
	h := newHarness(t, []scriptStep{textReply("done")})
	h.client.gate = make(chan struct{})

	require.NoError(t, h.engine.Start(context.Background()))
	h.engine.Enqueue("49151", "hello")
	h.clock.Advance(time.Minute)
	require.Equal(t, 1, h.engine.SweepOnce(context.Background()))

	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, h.engine.Stop(short), context.DeadlineExceeded)

	close(h.client.gate)
	require.NoError(t, h.engine.Stop(context.Background()))
	assert.Len(t, h.sender.messages(), 1)
}

func TestEnqueueMediaRecordsReferenceAndPlaceholder(t *testing.T) {
	h := newHarness(t, []scriptStep{textReply("Thanks for the photo!")})

	h.engine.EnqueueMedia("49151", "image", session.MediaRef{MediaID: "m1", MimeType: "image/jpeg"})

	sess, ok := h.store.Peek("49151")
	require.True(t, ok)
	assert.Equal(t, []session.MediaRef{{MediaID: "m1", MimeType: "image/jpeg"}}, sess.PendingMedia())

	require.Equal(t, 1, h.drain(t))
	calls := h.client.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "[Received a image message] ", lastUserText(calls[0]))
}

func TestSetHumanTakeoverSuspendsDispatch(t *testing.T) {
	h := newHarness(t, []scriptStep{textReply("hi")})

	h.engine.Enqueue("49151", "hello")
	h.engine.SetHumanTakeover("49151", true)
	assert.Equal(t, 0, h.drain(t))
	assert.Empty(t, h.client.calls())

	h.engine.SetHumanTakeover("49151", false)
	assert.Equal(t, 1, h.drain(t))
}

func TestShouldDispatchUsesEligibilityWindow(t *testing.T) {
	h := newHarness(t, []scriptStep{textReply("hi")})

	assert.False(t, h.engine.ShouldDispatch("unknown"))

	h.engine.Enqueue("49151", "hello")
	h.clock.Advance(30 * time.Second)
	sess, _ := h.store.Peek("49151")
	assert.True(t, sess.Eligible(h.clock.Now(), h.engine.config.QuietWindow), "sweep threshold already passed")
	assert.False(t, h.engine.ShouldDispatch("49151"))

	h.clock.Advance(31 * time.Second)
	assert.True(t, h.engine.ShouldDispatch("49151"))
	assert.Equal(t, t0, sess.LastActivity(), "the check does not refresh activity")
}

func TestToolCallGatingBlocksEligibility(t *testing.T) {
	h := newHarness(t, []scriptStep{textReply("hi")})

	h.engine.Enqueue("49151", "hello")
	sess, _ := h.store.Peek("49151")
	require.NoError(t, sess.BeginToolCall("call-1"))

	h.clock.Advance(2 * time.Minute)
	assert.False(t, h.engine.ShouldDispatch("49151"))
	assert.Equal(t, 0, h.engine.SweepOnce(context.Background()))

	require.NoError(t, sess.EndToolCall("call-1"))
	assert.True(t, h.engine.ShouldDispatch("49151"))
}

func TestSweepRespectsConcurrencyCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConcurrent = 1
	h := newHarness(t, []scriptStep{textReply("hi")}, WithConfig(cfg))
	h.client.gate = make(chan struct{})

	h.engine.Enqueue("a", "one")
	h.engine.Enqueue("b", "two")
	h.clock.Advance(time.Minute)

	assert.Equal(t, 1, h.engine.SweepOnce(context.Background()))
	assert.Equal(t, 0, h.engine.SweepOnce(context.Background()), "slot still taken")

	h.client.gate <- struct{}{}
	h.engine.Wait()

	close(h.client.gate)
	assert.Equal(t, 1, h.engine.SweepOnce(context.Background()), "deferred session picked up next tick")
	h.engine.Wait()
	assert.Len(t, h.sender.messages(), 2)
}

func TestTokenizerFeedsLedger(t *testing.T) {
	h := newHarness(t, []scriptStep{textReply("ok")})
	h.engine.Enqueue("49151", "abcdefgh")
	h.drain(t)

	sess, _ := h.store.Peek("49151")
	want := EstimateTokens(systemPrompt) + EstimateTokens("abcdefgh ") + EstimateTokens("ok")
	assert.Equal(t, want, sess.HistoryCost())
}

func TestEngineUsesToolsRegistry(t *testing.T) {
	registry := tool.NewRegistry(0, nil)
	require.NoError(t, registry.Register(tool.NewSetLanguage([]string{"en", "de"})))

	h := newHarness(t, []scriptStep{textReply("hi")}, WithTools(registry))
	h.engine.Enqueue("49151", "hello")
	h.drain(t)

	calls := h.client.calls()
	require.Len(t, calls, 1)
	require.Len(t, calls[0].Tools, 1)
	assert.Equal(t, "setUserLanguage", calls[0].Tools[0].Name)
}

func TestSendFailureReleasesSession(t *testing.T) {
	h := newHarness(t, []scriptStep{textReply("hi")})
	h.sender.err = errors.New("whatsapp down")

	h.engine.Enqueue("49151", "hello")
	require.Equal(t, 1, h.drain(t))

	sess, _ := h.store.Peek("49151")
	assert.False(t, sess.InFlight())

	h.engine.Enqueue("49151", "again")
	assert.Equal(t, 1, h.drain(t))
}
