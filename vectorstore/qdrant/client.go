// Package qdrant searches the sales knowledge base stored in a Qdrant
// collection. Each point carries a chunk of product or pricing text in its
// payload ("content", or "text" for collections built by older importers),
// an optional "title", and a "language" tag used for locale filtering.
package qdrant

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/qdrant/go-client/qdrant"

	"github.com/korberlin/WhatsApp-AI-Sales-Pipeline/vectorstore"
)

const (
	defaultPort  = 6334
	defaultLimit = 4

	payloadLanguage = "language"
	payloadTitle    = "title"
)

// Config holds Qdrant connection configuration.
type Config struct {
	// URL is the Qdrant gRPC address, e.g. "https://kb.example.io:6334".
	// A bare host:port is treated as https.
	URL string

	// CollectionName is the knowledge-base collection to search.
	CollectionName string

	// APIKey is optional.
	APIKey string
}

// Client implements vectorstore.VectorStore for Qdrant.
type Client struct {
	client     *qdrant.Client
	collection string
}

// New creates a new Qdrant client. No request is made until the first search.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("qdrant url is required")
	}
	if cfg.CollectionName == "" {
		return nil, fmt.Errorf("qdrant collection name is required")
	}

	addr, err := parseAddress(cfg.URL)
	if err != nil {
		return nil, err
	}

	qc, err := qdrant.NewClient(&qdrant.Config{
		Host:   addr.host,
		Port:   addr.port,
		APIKey: cfg.APIKey,
		UseTLS: addr.tls,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	return &Client{client: qc, collection: cfg.CollectionName}, nil
}

type address struct {
	host string
	port int
	tls  bool
}

func parseAddress(raw string) (address, error) {
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return address{}, fmt.Errorf("failed to parse qdrant url: %w", err)
	}
	if u.Hostname() == "" {
		return address{}, fmt.Errorf("qdrant url %q has no host", raw)
	}

	addr := address{host: u.Hostname(), port: defaultPort, tls: u.Scheme == "https"}
	if p := u.Port(); p != "" {
		addr.port, err = strconv.Atoi(p)
		if err != nil {
			return address{}, fmt.Errorf("invalid qdrant port %q: %w", p, err)
		}
	}
	return addr, nil
}

// Search implements vectorstore.VectorStore. The score threshold is applied
// server side.
func (c *Client) Search(ctx context.Context, vector []float32, filter vectorstore.SearchFilter, limit int) ([]vectorstore.SearchResult, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	n := uint64(limit)

	query := &qdrant.QueryPoints{
		CollectionName: c.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &n,
		Filter:         buildFilter(filter),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if filter.MinScore > 0 {
		query.ScoreThreshold = &filter.MinScore
	}

	points, err := c.client.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("qdrant search in %s: %w", c.collection, err)
	}

	results := make([]vectorstore.SearchResult, 0, len(points))
	for _, point := range points {
		if r, ok := toResult(point); ok {
			results = append(results, r)
		}
	}
	return results, nil
}

// toResult converts a scored point. Points without chunk text are dropped.
func toResult(point *qdrant.ScoredPoint) (vectorstore.SearchResult, bool) {
	r := vectorstore.SearchResult{
		ID:       pointID(point.GetId()),
		Score:    point.GetScore(),
		Metadata: make(map[string]any),
	}

	for key, value := range point.GetPayload() {
		switch key {
		case "content":
			if s := value.GetStringValue(); s != "" {
				r.Content = s
			}
		case "text":
			if r.Content == "" {
				r.Content = value.GetStringValue()
			}
		case payloadTitle:
			r.Title = value.GetStringValue()
		default:
			r.Metadata[key] = payloadValue(value)
		}
	}
	return r, r.Content != ""
}

func pointID(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if u := id.GetUuid(); u != "" {
		return u
	}
	return strconv.FormatUint(id.GetNum(), 10)
}

// buildFilter turns the locale and metadata constraints into a conjunction
// of exact-match conditions. It returns nil when nothing is constrained.
func buildFilter(filter vectorstore.SearchFilter) *qdrant.Filter {
	var must []*qdrant.Condition
	if filter.Language != "" {
		must = append(must, qdrant.NewMatchKeyword(payloadLanguage, filter.Language))
	}
	for key, value := range filter.Metadata {
		must = append(must, matchCondition(key, value))
	}
	if len(must) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must}
}

func matchCondition(key string, value any) *qdrant.Condition {
	switch v := value.(type) {
	case string:
		return qdrant.NewMatchKeyword(key, v)
	case int:
		return qdrant.NewMatchInt(key, int64(v))
	case int64:
		return qdrant.NewMatchInt(key, v)
	case bool:
		return qdrant.NewMatchBool(key, v)
	default:
		return qdrant.NewMatchKeyword(key, fmt.Sprint(v))
	}
}

// payloadValue unwraps scalar payload values; nested values are dropped.
func payloadValue(v *qdrant.Value) any {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	}
	return nil
}

// Close implements vectorstore.VectorStore.
func (c *Client) Close() error {
	return c.client.Close()
}

var _ vectorstore.VectorStore = (*Client)(nil)
