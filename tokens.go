package pipeline

import (
	"log/slog"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"

	"github.com/korberlin/WhatsApp-AI-Sales-Pipeline/session"
)

// EstimateTokens estimates the token count for a given text using a Unicode-aware heuristic.
// ASCII characters (English, numbers, punctuation) are weighted at ~4 per token.
// Non-ASCII characters (CJK, Cyrillic, Arabic, Emoji, etc.) are weighted at ~1 per token.
func EstimateTokens(text string) int {
	weight := 0
	for _, r := range text {
		switch {
		case r <= 127: // ASCII (English, numbers, punctuation)
			weight += 1 // ~4 ASCII chars = 1 token
		default: // Non-ASCII (CJK, Cyrillic, Arabic, Emoji, etc.)
			weight += 4 // ~1 non-ASCII char = 1 token (conservative)
		}
	}
	return (weight + 3) / 4
}

// HeuristicTokenizer counts with EstimateTokens. It is used for providers
// without a public tokenizer.
type HeuristicTokenizer struct{}

// Count implements session.Tokenizer.
func (HeuristicTokenizer) Count(text string) int { return EstimateTokens(text) }

// fallbackEncoding is used for models tiktoken does not know.
const fallbackEncoding = "cl100k_base"

var loaderOnce sync.Once

// TiktokenTokenizer counts tokens with the BPE encoding of an OpenAI model.
// Encodings are loaded from the embedded offline loader, never the network.
type TiktokenTokenizer struct {
	mu  sync.Mutex
	enc *tiktoken.Tiktoken
}

// NewTiktokenTokenizer returns a tokenizer for model, falling back to
// cl100k_base for unknown models.
func NewTiktokenTokenizer(model string) (*TiktokenTokenizer, error) {
	loaderOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	})

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			return nil, err
		}
	}
	return &TiktokenTokenizer{enc: enc}, nil
}

// Count implements session.Tokenizer.
func (t *TiktokenTokenizer) Count(text string) int {
	if text == "" {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.enc.Encode(text, nil, nil))
}

// NewTokenizer picks the tokenizer matching the completion provider's
// accounting. OpenAI models use tiktoken; everything else, and any tiktoken
// setup failure, uses the heuristic.
func NewTokenizer(provider, model string, logger *slog.Logger) session.Tokenizer {
	if logger == nil {
		logger = slog.Default()
	}
	if provider != "openai" {
		return HeuristicTokenizer{}
	}

	tok, err := NewTiktokenTokenizer(model)
	if err != nil {
		logger.Warn("tiktoken unavailable, estimating tokens", "model", model, "error", err)
		return HeuristicTokenizer{}
	}
	return tok
}

// Compile-time checks.
var (
	_ session.Tokenizer = HeuristicTokenizer{}
	_ session.Tokenizer = (*TiktokenTokenizer)(nil)
)
