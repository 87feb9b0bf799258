package session

// Tokenizer computes the token cost of a piece of text for the target
// completion model.
type Tokenizer interface {
	Count(text string) int
}

// TokenizerFunc adapts a plain function to the Tokenizer interface.
type TokenizerFunc func(text string) int

// Count implements Tokenizer.
func (f TokenizerFunc) Count(text string) int { return f(text) }

// Visitor is called for each session during a sweep. Returning false stops
// the iteration.
type Visitor func(s *Session) bool
