package tool

import (
	"context"
	"fmt"
	"strings"

	"github.com/korberlin/WhatsApp-AI-Sales-Pipeline/vectorstore"
)

// SearchKnowledge looks up product and pricing information in the vector
// store. It is read-only, so the engine re-submits with the results.
type SearchKnowledge struct {
	store    vectorstore.VectorStore
	embedder vectorstore.Embedder
	limit    int
	minScore float32
}

// NewSearchKnowledge creates the tool. limit defaults to 4.
func NewSearchKnowledge(store vectorstore.VectorStore, embedder vectorstore.Embedder, limit int, minScore float32) *SearchKnowledge {
	if limit <= 0 {
		limit = 4
	}
	return &SearchKnowledge{
		store:    store,
		embedder: embedder,
		limit:    limit,
		minScore: minScore,
	}
}

// Name implements Tool
func (t *SearchKnowledge) Name() string { return "searchKnowledgeBase" }

// Description implements Tool
func (t *SearchKnowledge) Description() string {
	return "Search the company knowledge base for product, pricing and service information before answering factual questions."
}

// InputSchema implements Tool
func (t *SearchKnowledge) InputSchema() ToolSchema {
	return ToolSchema{
		Type: "object",
		Properties: map[string]PropertyDef{
			"query": {Type: "string", Description: "What to look up"},
		},
		Required: []string{"query"},
	}
}

// Execute implements Tool
func (t *SearchKnowledge) Execute(ctx context.Context, call Call) (*Result, error) {
	var in struct {
		Query string `json:"query"`
	}
	if err := decodeInput(call.Input, &in); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	query := strings.TrimSpace(in.Query)
	if query == "" {
		return &Result{Success: false, Error: "query is required", Resubmit: true}, nil
	}

	vector, err := t.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	filter := vectorstore.SearchFilter{MinScore: t.minScore}
	if call.Session != nil {
		filter.Language = call.Session.Language()
	}
	results, err := t.store.Search(ctx, vector, filter, t.limit)
	if err != nil {
		return nil, fmt.Errorf("searching knowledge base: %w", err)
	}
	// Fall back to every language when nothing is written in the user's
	if len(results) == 0 && filter.Language != "" {
		filter.Language = ""
		if results, err = t.store.Search(ctx, vector, filter, t.limit); err != nil {
			return nil, fmt.Errorf("searching knowledge base: %w", err)
		}
	}

	chunks := make([]map[string]any, 0, len(results))
	for _, r := range results {
		chunk := map[string]any{
			"content": r.Content,
			"score":   r.Score,
		}
		if r.Title != "" {
			chunk["title"] = r.Title
		}
		chunks = append(chunks, chunk)
	}

	return &Result{
		Success:  true,
		Data:     map[string]any{"results": chunks},
		Resubmit: true,
	}, nil
}
