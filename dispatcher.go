package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/korberlin/WhatsApp-AI-Sales-Pipeline/session"
)

// Coalesce joins drained fragments into one turn in arrival order. Every
// fragment is followed by a single space.
func Coalesce(fragments []session.Fragment) string {
	var b strings.Builder
	for _, f := range fragments {
		b.WriteString(f.Text)
		b.WriteByte(' ')
	}
	return b.String()
}

func (e *Engine) runDispatchLoop(ctx context.Context) {
	defer e.loops.Done()

	ticker := time.NewTicker(e.config.DispatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.SweepOnce(ctx)
		}
	}
}

// SweepOnce starts a dispatch for every session whose queue has been quiet
// for longer than the quiet window. Dispatches run in the background; the
// return value is the number started. Sessions that find every dispatch
// slot taken are revisited on the next sweep.
func (e *Engine) SweepOnce(ctx context.Context) int {
	now := e.clock.Now()
	started, deferred := 0, 0

	e.store.ForEach(func(sess *session.Session) bool {
		if ctx.Err() != nil {
			return false
		}
		if !sess.Eligible(now, e.config.QuietWindow) {
			return true
		}
		if !e.slots.TryAcquire(1) {
			deferred++
			return true
		}

		fragments, ok := sess.BeginDispatch(now, e.config.QuietWindow)
		if !ok {
			e.slots.Release(1)
			return true
		}

		started++
		e.dispatches.Add(1)
		go func() {
			defer e.dispatches.Done()
			defer e.slots.Release(1)
			e.dispatch(ctx, sess, fragments)
		}()
		return true
	})

	if started > 0 || deferred > 0 {
		e.logger.Info("dispatch sweep", "started", started, "deferred", deferred, "sessions", e.store.Len())
	} else {
		e.logger.Debug("dispatch sweep", "started", 0, "sessions", e.store.Len())
	}
	return started
}

// dispatch runs one drained turn to completion. The session's dispatch claim
// is released on every path.
func (e *Engine) dispatch(ctx context.Context, sess *session.Session, fragments []session.Fragment) {
	defer sess.EndDispatch()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("dispatch panicked", "session_id", sess.ID(), "panic", r)
		}
	}()

	// History was written; the reaper measures idleness from here
	defer func() { sess.Touch(e.clock.Now()) }()

	// Shutting down the sweep must not abort a turn already underway
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.config.DispatchTimeout)
	defer cancel()

	text := Coalesce(fragments)
	e.logger.Debug("dispatching turn", "session_id", sess.ID(), "fragments", len(fragments))

	if e.isReset(text) {
		e.reset(ctx, sess)
		return
	}

	reply := e.converse(ctx, sess, text)
	e.send(ctx, sess.ID(), reply)
}

func (e *Engine) isReset(text string) bool {
	return strings.EqualFold(strings.TrimSpace(text), strings.TrimSpace(e.config.ResetKeyword))
}

// reset deletes the session. Fragments that arrived while the reset turn was
// in flight are carried into the replacement session.
func (e *Engine) reset(ctx context.Context, sess *session.Session) {
	carried, removed := e.store.Reset(sess)
	if !removed {
		e.logger.Warn("reset on a session that is no longer live", "session_id", sess.ID())
	}

	e.logger.Info("session reset", "session_id", sess.ID(), "carried_fragments", carried)
	e.send(ctx, sess.ID(), e.config.ResetReply)
}

func (e *Engine) send(ctx context.Context, to, text string) {
	if strings.TrimSpace(text) == "" {
		e.logger.Warn("nothing to send", "session_id", to, "error", ErrEmptyReply)
		return
	}
	if err := e.sender.SendText(ctx, to, text); err != nil {
		e.logger.Error("reply not delivered", "error", &DispatchError{Op: "send", SessionID: to, Err: err})
		return
	}
	e.logger.Debug("reply sent", "session_id", to, "chars", len(text))
}
