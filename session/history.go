package session

// Ledger is a token-budgeted conversation history whose first turn is a
// fixed system turn. Ledger is not safe for concurrent use; Session guards it.
type Ledger struct {
	turns     []Turn
	costs     []int
	total     int
	budget    int
	tokenizer Tokenizer
}

// NewLedger creates a ledger seeded with the system turn.
// A budget <= 0 disables trimming.
func NewLedger(system Turn, budget int, tokenizer Tokenizer) *Ledger {
	system.Role = RoleSystem
	l := &Ledger{
		budget:    budget,
		tokenizer: tokenizer,
	}
	l.push(system)
	return l
}

// Cost returns the token cost of a turn: the sum over its text-bearing parts.
// Media parts and tool arguments contribute nothing.
func Cost(t Turn, tokenizer Tokenizer) int {
	cost := 0
	for _, text := range t.TextParts() {
		cost += tokenizer.Count(text)
	}
	return cost
}

func (l *Ledger) push(t Turn) {
	c := Cost(t, l.tokenizer)
	l.turns = append(l.turns, t)
	l.costs = append(l.costs, c)
	l.total += c
}

// Append adds a turn and trims the history back under budget.
// It returns the number of evicted turns.
func (l *Ledger) Append(t Turn) int {
	l.push(t)
	return l.Trim()
}

// Trim evicts the oldest non-system turns until the total cost is within
// budget or only system turns remain. It returns the number of evicted turns.
func (l *Ledger) Trim() int {
	if l.budget <= 0 || l.total <= l.budget {
		return 0
	}

	evicted := 0
	i := 0
	for l.total > l.budget && i < len(l.turns) {
		if l.turns[i].Role == RoleSystem {
			i++
			continue
		}
		l.total -= l.costs[i]
		l.turns = append(l.turns[:i], l.turns[i+1:]...)
		l.costs = append(l.costs[:i], l.costs[i+1:]...)
		evicted++
	}
	return evicted
}

// Turns returns a copy of the history.
func (l *Ledger) Turns() []Turn {
	out := make([]Turn, len(l.turns))
	copy(out, l.turns)
	return out
}

// Len returns the number of turns, including the system turn.
func (l *Ledger) Len() int { return len(l.turns) }

// Total returns the cumulative token cost of the history.
func (l *Ledger) Total() int { return l.total }

// Budget returns the configured token budget.
func (l *Ledger) Budget() int { return l.budget }
