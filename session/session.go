package session

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Session is the per-conversant state record. All methods are safe for
// concurrent use; none of them blocks on external work.
type Session struct {
	id        string
	createdAt time.Time

	mu           sync.Mutex
	history      *Ledger
	lastActivity time.Time
	language     string
	pendingMedia []MediaRef
	lead         LeadFields
	queue        []Fragment
	inFlight     bool
	toolState    ToolCallState
	toolCallID   string
	takeover     bool
	deleted      bool
}

// Defaults describes how new sessions are initialised.
type Defaults struct {
	SystemPrompt string
	TokenBudget  int
	Language     string
	Tokenizer    Tokenizer
}

func newSession(id string, now time.Time, d Defaults) *Session {
	return &Session{
		id:           id,
		createdAt:    now,
		history:      NewLedger(Turn{Role: RoleSystem, Content: d.SystemPrompt, Timestamp: now}, d.TokenBudget, d.Tokenizer),
		lastActivity: now,
		language:     d.Language,
		lead:         LeadFields{LeadPhone: id},
		toolState:    ToolCallIdle,
	}
}

// ID returns the conversant identity.
func (s *Session) ID() string { return s.id }

// CreatedAt returns when the session was created.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Touch refreshes the last activity timestamp.
func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	if now.After(s.lastActivity) {
		s.lastActivity = now
	}
	s.mu.Unlock()
}

// LastActivity returns the last read or write touch.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Deleted reports whether the session has been removed from its store.
func (s *Session) Deleted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleted
}

// markDeleted flags the session as removed and returns any fragments still
// queued so the caller can carry them into a replacement session.
func (s *Session) markDeleted() []Fragment {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = true
	leftover := s.queue
	s.queue = nil
	return leftover
}

// Enqueue appends a fragment to the inbound queue. It returns false only when
// the session has already been deleted, in which case the caller must
// enqueue into a fresh session.
func (s *Session) Enqueue(text string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleted {
		return false
	}
	s.queue = append(s.queue, Fragment{Text: text, ArrivedAt: now})
	if now.After(s.lastActivity) {
		s.lastActivity = now
	}
	return true
}

// QueueLen returns the number of fragments waiting to be drained.
func (s *Session) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Eligible reports whether the queue may be drained now: it is non-empty, no
// dispatch is in flight, no tool call is pending, no human has taken over,
// and more than quiet has passed since the newest fragment arrived.
func (s *Session) Eligible(now time.Time, quiet time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eligibleLocked(now, quiet)
}

func (s *Session) eligibleLocked(now time.Time, quiet time.Duration) bool {
	if s.deleted || len(s.queue) == 0 || s.inFlight || s.takeover {
		return false
	}
	if s.toolState != ToolCallIdle {
		return false
	}
	last := s.queue[len(s.queue)-1].ArrivedAt
	return now.Sub(last) > quiet
}

// BeginDispatch claims the session for a dispatch and swaps the inbound queue
// for an empty one in a single step. It returns the drained fragments and
// true when the caller now owns the dispatch and must call EndDispatch.
func (s *Session) BeginDispatch(now time.Time, quiet time.Duration) ([]Fragment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.eligibleLocked(now, quiet) {
		return nil, false
	}
	s.inFlight = true
	drained := s.queue
	s.queue = nil
	if len(drained) == 0 {
		s.inFlight = false
		return nil, false
	}
	return drained, true
}

// EndDispatch releases the dispatch claim.
func (s *Session) EndDispatch() {
	s.mu.Lock()
	s.inFlight = false
	s.mu.Unlock()
}

// InFlight reports whether a dispatch currently owns the session.
func (s *Session) InFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

// Append adds a turn to the history and trims it to budget. It returns the
// number of evicted turns.
func (s *Session) Append(t Turn) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Append(t)
}

// Transcript returns a copy of the history, system turn first.
func (s *Session) Transcript() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Turns()
}

// HistoryCost returns the cumulative token cost of the history.
func (s *Session) HistoryCost() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Total()
}

// BeginToolCall moves the session from idle to awaiting the result of callID.
func (s *Session) BeginToolCall(callID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.toolState.CanTransitionTo(ToolCallAwaitingResult) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.toolState, ToolCallAwaitingResult)
	}
	s.toolState = ToolCallAwaitingResult
	s.toolCallID = callID
	return nil
}

// EndToolCall moves the session back to idle once callID's result is recorded.
func (s *Session) EndToolCall(callID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.toolState.CanTransitionTo(ToolCallIdle) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.toolState, ToolCallIdle)
	}
	if s.toolCallID != callID {
		return fmt.Errorf("%w: pending %q, got %q", ErrToolCallMismatch, s.toolCallID, callID)
	}
	s.toolState = ToolCallIdle
	s.toolCallID = ""
	return nil
}

// ToolCall returns the tool-call state and the pending call id, if any.
func (s *Session) ToolCall() (ToolCallState, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.toolState, s.toolCallID
}

// Language returns the conversant's locale tag.
func (s *Session) Language() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.language
}

// SetLanguage replaces the conversant's locale tag.
func (s *Session) SetLanguage(tag string) {
	s.mu.Lock()
	s.language = strings.ToLower(strings.TrimSpace(tag))
	s.mu.Unlock()
}

// AddMedia records a media reference for a later CRM write.
func (s *Session) AddMedia(ref MediaRef) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingMedia = append(s.pendingMedia, ref)
	return len(s.pendingMedia)
}

// PendingMedia returns a copy of the media references awaiting handoff.
func (s *Session) PendingMedia() []MediaRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]MediaRef, len(s.pendingMedia))
	copy(out, s.pendingMedia)
	return out
}

// ReleaseMedia drops the first n pending media references after they were
// handed off. References added after the handoff snapshot are kept.
func (s *Session) ReleaseMedia(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n >= len(s.pendingMedia) {
		s.pendingMedia = nil
		return
	}
	if n > 0 {
		s.pendingMedia = append([]MediaRef(nil), s.pendingMedia[n:]...)
	}
}

// MergeLead merges fields into the collected lead profile. Empty values never
// overwrite an existing entry.
func (s *Session) MergeLead(fields map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range fields {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		s.lead[k] = v
	}
}

// Lead returns a copy of the collected lead profile.
func (s *Session) Lead() LeadFields {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(LeadFields, len(s.lead))
	for k, v := range s.lead {
		out[k] = v
	}
	return out
}

// HumanTakeover reports whether automated dispatch is suspended.
func (s *Session) HumanTakeover() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.takeover
}

// SetHumanTakeover is the write path for the support-handoff collaborator.
func (s *Session) SetHumanTakeover(on bool) {
	s.mu.Lock()
	s.takeover = on
	s.mu.Unlock()
}
