package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/korberlin/WhatsApp-AI-Sales-Pipeline/completion"
	"github.com/korberlin/WhatsApp-AI-Sales-Pipeline/notify"
	"github.com/korberlin/WhatsApp-AI-Sales-Pipeline/session"
	"github.com/korberlin/WhatsApp-AI-Sales-Pipeline/tool"
)

// errExtraToolCall answers tool calls beyond the first in one reply.
var errExtraToolCall = errors.New("only one tool call is serviced per turn")

// converse appends the user turn and runs completion passes until the model
// answers with text, an external tool finishes, or MaxPasses is reached. It
// always returns something to send.
func (e *Engine) converse(ctx context.Context, sess *session.Session, text string) string {
	if evicted := sess.Append(session.Turn{Role: session.RoleUser, Content: text, Timestamp: e.clock.Now()}); evicted > 0 {
		e.logger.Info("history trimmed", "session_id", sess.ID(), "evicted", evicted, "cost", sess.HistoryCost())
	}

	lastText := ""
	for pass := 1; pass <= e.config.MaxPasses; pass++ {
		reply, err := e.client.Complete(ctx, completion.Request{
			Turns: completion.Sanitize(sess.Transcript()),
			Tools: e.tools.Specs(),
		})
		if err != nil {
			derr := &DispatchError{Op: "complete", SessionID: sess.ID(), Err: err}
			e.logger.Error("completion failed", "error", derr, "pass", pass)
			e.notify(ctx, notify.KindSystemError, fmt.Sprintf("completion failed for %s - %v", sess.ID(), err), sess.ID())
			return e.message(sess, MsgGeneralError)
		}

		if !reply.WantsTool() {
			if strings.TrimSpace(reply.Text) == "" {
				e.logger.Warn("completion returned no text", "session_id", sess.ID(), "error", ErrEmptyReply)
				return e.message(sess, MsgGeneralError)
			}
			sess.Append(session.Turn{Role: session.RoleAssistant, Content: reply.Text, Timestamp: e.clock.Now()})
			return reply.Text
		}

		result := e.serviceToolCall(ctx, sess, reply)
		if strings.TrimSpace(reply.Text) != "" {
			lastText = reply.Text
		}
		if result.Resubmit {
			// The user turn is already in history and is not appended
			// again; the next pass sees the tool result after it.
			continue
		}

		if lastText != "" {
			return lastText
		}
		return e.outcomeMessage(sess, result)
	}

	e.logger.Warn("tool passes exhausted", "session_id", sess.ID(), "max_passes", e.config.MaxPasses)
	if lastText != "" {
		return lastText
	}
	return e.message(sess, MsgGeneralError)
}

// serviceToolCall records the assistant's tool invocation turn, executes
// the first invocation while the session awaits its result, and records a
// result turn for every invocation. The session is back to idle on return.
func (e *Engine) serviceToolCall(ctx context.Context, sess *session.Session, reply *completion.Reply) *tool.Result {
	calls := reply.ToolCalls
	sess.Append(session.Turn{
		Role:      session.RoleAssistant,
		Content:   reply.Text,
		ToolCalls: calls,
		Timestamp: e.clock.Now(),
	})

	first := calls[0]
	result := e.runTool(ctx, sess, first)
	e.appendResult(sess, first, result)

	for _, extra := range calls[1:] {
		e.logger.Warn("ignoring additional tool call", "session_id", sess.ID(), "tool", extra.Name)
		e.appendResult(sess, extra, tool.Failure(errExtraToolCall))
	}
	return result
}

func (e *Engine) runTool(ctx context.Context, sess *session.Session, call session.ToolInvocation) *tool.Result {
	if err := sess.BeginToolCall(call.ID); err != nil {
		derr := &DispatchError{Op: "tool", SessionID: sess.ID(), Err: err}
		e.logger.Error("tool call rejected", "error", derr, "tool", call.Name)
		return tool.Failure(err)
	}
	defer func() {
		if err := sess.EndToolCall(call.ID); err != nil {
			e.logger.Error("tool call not released", "session_id", sess.ID(), "tool", call.Name, "error", err)
		}
	}()

	e.logger.Info("running tool", "session_id", sess.ID(), "tool", call.Name, "call_id", call.ID)
	return e.tools.Execute(ctx, tool.Call{
		ID:      call.ID,
		Name:    call.Name,
		Input:   call.Arguments,
		Session: sess,
	})
}

func (e *Engine) appendResult(sess *session.Session, call session.ToolInvocation, result *tool.Result) {
	sess.Append(session.Turn{
		Role:       session.RoleTool,
		Content:    result.Content(),
		ToolCallID: call.ID,
		ToolName:   call.Name,
		IsError:    !result.Success,
		Timestamp:  e.clock.Now(),
	})
}

// outcomeMessage picks the localized reply for an external tool when the
// model gave no text of its own.
func (e *Engine) outcomeMessage(sess *session.Session, result *tool.Result) string {
	switch result.Outcome {
	case tool.OutcomeLeadSaved:
		return e.message(sess, MsgLeadSaved)
	case tool.OutcomeMediaFailed:
		return e.message(sess, MsgMediaError)
	case tool.OutcomeLeadFailed:
		return e.message(sess, MsgSavingLeadError)
	}
	return e.message(sess, MsgGeneralError)
}

func (e *Engine) message(sess *session.Session, key MessageKey) string {
	return e.catalog.Get(sess.Language(), key)
}
