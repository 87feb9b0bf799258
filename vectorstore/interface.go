// Package vectorstore defines similarity search over the sales knowledge
// base (product sheets, pricing notes, FAQ chunks).
package vectorstore

import "context"

// VectorStore is a technology-agnostic interface for vector similarity search.
// Implementations can use Qdrant, Pinecone, Supabase Vector, Weaviate, etc.
type VectorStore interface {
	// Search performs vector similarity search with optional filtering.
	Search(ctx context.Context, vector []float32, filter SearchFilter, limit int) ([]SearchResult, error)

	// Close releases any resources held by the vector store.
	Close() error
}

// Embedder turns text into a query vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// SearchFilter defines filtering options for vector search.
type SearchFilter struct {
	// Language restricts results to chunks written in this locale.
	Language string

	// Metadata filters results by metadata key-value pairs.
	Metadata map[string]any

	// MinScore filters results below this similarity threshold (0.0-1.0).
	MinScore float32
}

// SearchResult represents a single knowledge chunk returned by a search.
type SearchResult struct {
	// ID is the unique identifier of the chunk.
	ID string

	// Score is the similarity score (0.0-1.0, higher is more similar).
	Score float32

	// Content is the chunk text.
	Content string

	// Title names the document the chunk was cut from.
	Title string

	// Metadata contains additional key-value pairs.
	Metadata map[string]any
}
