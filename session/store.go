package session

import (
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/korberlin/WhatsApp-AI-Sales-Pipeline/clock"
)

const defaultShards = 32

// Store is the in-memory registry of live sessions, keyed by conversant id.
// The key space is split into shards so unrelated conversants never contend
// on one lock, and no store lock is held while a session does work.
type Store struct {
	shards   []*shard
	clock    clock.Clock
	defaults Defaults
}

type shard struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewStore creates an empty session store.
func NewStore(opts ...StoreOption) *Store {
	config := &storeConfig{}

	// Apply options
	for _, opt := range opts {
		opt(config)
	}

	if config.shards <= 0 {
		config.shards = defaultShards
	}
	if config.clock == nil {
		config.clock = clock.Real()
	}
	if config.defaults.Tokenizer == nil {
		config.defaults.Tokenizer = TokenizerFunc(func(text string) int { return (len(text) + 3) / 4 })
	}
	if config.defaults.Language == "" {
		config.defaults.Language = "en"
	}

	s := &Store{
		shards:   make([]*shard, config.shards),
		clock:    config.clock,
		defaults: config.defaults,
	}
	for i := range s.shards {
		s.shards[i] = &shard{sessions: make(map[string]*Session)}
	}
	return s
}

func (s *Store) shardFor(id string) *shard {
	return s.shards[xxhash.Sum64String(id)%uint64(len(s.shards))]
}

// GetOrCreate returns the session for id, creating it on first touch.
// Concurrent first touches for the same id observe the same session.
// The lookup refreshes the session's last activity.
func (s *Store) GetOrCreate(id string) *Session {
	now := s.clock.Now()
	sh := s.shardFor(id)

	sh.mu.RLock()
	sess, ok := sh.sessions[id]
	sh.mu.RUnlock()
	if ok {
		sess.Touch(now)
		return sess
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if sess, ok := sh.sessions[id]; ok {
		sess.Touch(now)
		return sess
	}
	sess = newSession(id, now, s.defaults)
	sh.sessions[id] = sess
	return sess
}

// Get returns the session for id without creating it. A hit refreshes the
// session's last activity.
func (s *Store) Get(id string) (*Session, bool) {
	sh := s.shardFor(id)
	sh.mu.RLock()
	sess, ok := sh.sessions[id]
	sh.mu.RUnlock()
	if ok {
		sess.Touch(s.clock.Now())
	}
	return sess, ok
}

// Peek returns the session for id without creating it or refreshing its
// activity.
func (s *Store) Peek(id string) (*Session, bool) {
	sh := s.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	sess, ok := sh.sessions[id]
	return sess, ok
}

// Delete removes the session for id, if any.
func (s *Store) Delete(id string) bool {
	sh := s.shardFor(id)
	sh.mu.Lock()
	sess, ok := sh.sessions[id]
	if ok {
		delete(sh.sessions, id)
	}
	sh.mu.Unlock()
	if ok {
		sess.markDeleted()
	}
	return ok
}

// Remove deletes sess only if it is still the live session for its id.
// It returns the fragments that were queued on sess but never drained.
func (s *Store) Remove(sess *Session) ([]Fragment, bool) {
	sh := s.shardFor(sess.id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if cur, ok := sh.sessions[sess.id]; !ok || cur != sess {
		return nil, false
	}
	delete(sh.sessions, sess.id)
	return sess.markDeleted(), true
}

// Reset deletes sess and, when fragments were still queued on it, installs
// a fresh session holding them in one step, so later fragments queue behind
// them. It returns the number of carried fragments.
func (s *Store) Reset(sess *Session) (int, bool) {
	now := s.clock.Now()
	sh := s.shardFor(sess.id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if cur, ok := sh.sessions[sess.id]; !ok || cur != sess {
		return 0, false
	}

	leftover := sess.markDeleted()
	delete(sh.sessions, sess.id)
	if len(leftover) == 0 {
		return 0, true
	}

	fresh := newSession(sess.id, now, s.defaults)
	fresh.queue = leftover
	sh.sessions[sess.id] = fresh
	return len(leftover), true
}

// RemoveIdle deletes sess when it has been inactive for longer than timeout
// and is not mid-dispatch. busy is true when the session was idle but a
// dispatch owned it, so it was kept for a later sweep.
func (s *Store) RemoveIdle(sess *Session, now time.Time, timeout time.Duration) (removed, busy bool) {
	sh := s.shardFor(sess.id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if cur, ok := sh.sessions[sess.id]; !ok || cur != sess {
		return false, false
	}

	sess.mu.Lock()
	idle := now.Sub(sess.lastActivity) > timeout
	if !idle {
		sess.mu.Unlock()
		return false, false
	}
	if sess.inFlight {
		sess.mu.Unlock()
		return false, true
	}
	sess.deleted = true
	sess.queue = nil
	sess.mu.Unlock()

	delete(sh.sessions, sess.id)
	return true, false
}

// ForEach calls fn for every live session. Each shard is snapshotted under
// its read lock and fn runs without any store lock held, so fn may call back
// into the store.
func (s *Store) ForEach(fn Visitor) {
	for _, sh := range s.shards {
		sh.mu.RLock()
		batch := make([]*Session, 0, len(sh.sessions))
		for _, sess := range sh.sessions {
			batch = append(batch, sess)
		}
		sh.mu.RUnlock()

		for _, sess := range batch {
			if !fn(sess) {
				return
			}
		}
	}
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.sessions)
		sh.mu.RUnlock()
	}
	return n
}

// Clock returns the store's time source.
func (s *Store) Clock() clock.Clock { return s.clock }
