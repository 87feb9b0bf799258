package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/korberlin/WhatsApp-AI-Sales-Pipeline/clock"
)

func newTestStore(clk clock.Clock) *Store {
	return NewStore(
		WithClock(clk),
		WithShards(4),
		WithDefaults(Defaults{SystemPrompt: "you sell things", TokenBudget: 100, Tokenizer: wordTokenizer}),
	)
}

func TestGetOrCreateIsIdempotentUnderConcurrency(t *testing.T) {
	store := newTestStore(clock.Fake(t0))

	const workers = 64
	got := make([]*Session, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i] = store.GetOrCreate("491700000000")
		}(i)
	}
	wg.Wait()

	for _, s := range got {
		assert.Same(t, got[0], s)
	}
	assert.Equal(t, 1, store.Len())
}

func TestGetOrCreateInitialisesSession(t *testing.T) {
	store := newTestStore(clock.Fake(t0))
	s := store.GetOrCreate("491700000000")

	turns := s.Transcript()
	require.Len(t, turns, 1)
	assert.Equal(t, RoleSystem, turns[0].Role)
	assert.Equal(t, "you sell things", turns[0].Content)
	assert.Equal(t, "en", s.Language())
	assert.Equal(t, t0, s.LastActivity())
}

func TestLookupRefreshesActivity(t *testing.T) {
	clk := clock.Fake(t0)
	store := newTestStore(clk)
	s := store.GetOrCreate("a")

	clk.Advance(time.Hour)
	store.GetOrCreate("a")
	assert.Equal(t, t0.Add(time.Hour), s.LastActivity())

	clk.Advance(time.Hour)
	_, ok := store.Get("a")
	require.True(t, ok)
	assert.Equal(t, t0.Add(2*time.Hour), s.LastActivity())

	clk.Advance(time.Hour)
	peeked, ok := store.Peek("a")
	require.True(t, ok)
	assert.Same(t, s, peeked)
	assert.Equal(t, t0.Add(2*time.Hour), s.LastActivity(), "peek leaves activity alone")

	_, ok = store.Peek("missing")
	assert.False(t, ok)
	assert.Equal(t, 1, store.Len())
}

func TestDeleteCreatesFreshSession(t *testing.T) {
	store := newTestStore(clock.Fake(t0))
	old := store.GetOrCreate("a")
	old.Append(Turn{Role: RoleUser, Content: "hello"})

	assert.True(t, store.Delete("a"))
	assert.False(t, store.Delete("a"))
	assert.True(t, old.Deleted())

	fresh := store.GetOrCreate("a")
	assert.NotSame(t, old, fresh)
	assert.Len(t, fresh.Transcript(), 1)
}

func TestRemoveOnlyDeletesSameInstance(t *testing.T) {
	store := newTestStore(clock.Fake(t0))
	old := store.GetOrCreate("a")
	old.Enqueue("after reset", t0)

	leftover, ok := store.Remove(old)
	require.True(t, ok)
	require.Len(t, leftover, 1)
	assert.Equal(t, "after reset", leftover[0].Text)

	fresh := store.GetOrCreate("a")
	_, ok = store.Remove(old)
	assert.False(t, ok)
	_, ok = store.Get("a")
	assert.True(t, ok)
	assert.False(t, fresh.Deleted())
}

func TestResetCarriesLeftoverFragments(t *testing.T) {
	store := newTestStore(clock.Fake(t0))
	old := store.GetOrCreate("a")
	old.Append(Turn{Role: RoleUser, Content: "old history"})
	old.Enqueue("late one", t0)
	old.Enqueue("late two", t0.Add(time.Second))

	carried, ok := store.Reset(old)
	require.True(t, ok)
	assert.Equal(t, 2, carried)
	assert.True(t, old.Deleted())
	assert.False(t, old.Enqueue("refused", t0))

	fresh, ok := store.Peek("a")
	require.True(t, ok)
	assert.NotSame(t, old, fresh)
	assert.Len(t, fresh.Transcript(), 1, "fresh session holds only the system turn")

	fresh.Enqueue("newer", t0.Add(2*time.Second))
	drained, ok := fresh.BeginDispatch(t0.Add(time.Hour), 0)
	require.True(t, ok)
	require.Len(t, drained, 3)
	assert.Equal(t, "late one", drained[0].Text)
	assert.Equal(t, "late two", drained[1].Text)
	assert.Equal(t, "newer", drained[2].Text)

	_, ok = store.Reset(old)
	assert.False(t, ok)
}

func TestResetWithoutLeftoverLeavesNoSession(t *testing.T) {
	store := newTestStore(clock.Fake(t0))
	s := store.GetOrCreate("a")

	carried, ok := store.Reset(s)
	require.True(t, ok)
	assert.Zero(t, carried)
	assert.Zero(t, store.Len())
}

func TestRemoveIdle(t *testing.T) {
	const timeout = 24 * time.Hour
	clk := clock.Fake(t0)
	store := newTestStore(clk)
	s := store.GetOrCreate("a")

	removed, busy := store.RemoveIdle(s, t0.Add(timeout-time.Second), timeout)
	assert.False(t, removed)
	assert.False(t, busy)

	s.Enqueue("x", t0)
	_, ok := s.BeginDispatch(t0.Add(time.Minute), 0)
	require.True(t, ok)
	removed, busy = store.RemoveIdle(s, t0.Add(timeout+time.Second), timeout)
	assert.False(t, removed)
	assert.True(t, busy)

	s.EndDispatch()
	removed, _ = store.RemoveIdle(s, t0.Add(timeout+time.Second), timeout)
	assert.True(t, removed)
	assert.Zero(t, store.Len())
	assert.True(t, s.Deleted())
}

func TestForEachVisitsAllAndAllowsDeletion(t *testing.T) {
	store := newTestStore(clock.Fake(t0))
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		store.GetOrCreate(id)
	}

	visited := 0
	store.ForEach(func(s *Session) bool {
		visited++
		store.Delete(s.ID())
		return true
	})
	assert.Equal(t, 5, visited)
	assert.Zero(t, store.Len())
}

func TestForEachStopsEarly(t *testing.T) {
	store := newTestStore(clock.Fake(t0))
	for _, id := range []string{"a", "b", "c"} {
		store.GetOrCreate(id)
	}

	visited := 0
	store.ForEach(func(*Session) bool {
		visited++
		return false
	})
	assert.Equal(t, 1, visited)
}
