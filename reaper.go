package pipeline

import (
	"context"
	"time"

	"github.com/korberlin/WhatsApp-AI-Sales-Pipeline/session"
)

// ReapResult holds the results of a reap sweep.
type ReapResult struct {
	// Reaped is the number of sessions deleted.
	Reaped int

	// Busy is the number of idle sessions skipped because a dispatch owned
	// them. They are revisited on the next sweep.
	Busy int
}

func (e *Engine) runReapLoop(ctx context.Context) {
	defer e.loops.Done()

	ticker := time.NewTicker(e.config.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.ReapOnce()
		}
	}
}

// ReapOnce deletes every session inactive for longer than the session
// timeout. Deletion is silent.
func (e *Engine) ReapOnce() ReapResult {
	now := e.clock.Now()
	var result ReapResult

	e.store.ForEach(func(sess *session.Session) bool {
		removed, busy := e.store.RemoveIdle(sess, now, e.config.SessionTimeout)
		switch {
		case removed:
			result.Reaped++
			e.logger.Debug("session reaped", "session_id", sess.ID(), "last_activity", sess.LastActivity())
		case busy:
			result.Busy++
		}
		return true
	})

	if result.Reaped > 0 || result.Busy > 0 {
		e.logger.Info("reap sweep", "reaped", result.Reaped, "busy", result.Busy, "sessions", e.store.Len())
	} else {
		e.logger.Debug("reap sweep", "reaped", 0, "sessions", e.store.Len())
	}
	return result
}
