package supabase

import (
	"bytes"
	"context"
	"fmt"
	"time"

	storage_go "github.com/supabase-community/storage-go"
	"github.com/supabase-community/supabase-go"

	"github.com/korberlin/WhatsApp-AI-Sales-Pipeline/crm"
	"github.com/korberlin/WhatsApp-AI-Sales-Pipeline/media"
)

// Config holds Supabase connection configuration
type Config struct {
	URL        string
	APIKey     string
	LeadsTable string // Default: "leads"
	Bucket     string // Storage bucket for lead attachments. Default: "lead-media"
}

// Client persists leads through PostgREST and stores lead media in a
// Supabase Storage bucket.
type Client struct {
	client *supabase.Client
	table  string
	bucket string
}

// New creates a new Supabase client
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("supabase URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("supabase API key is required")
	}

	if cfg.LeadsTable == "" {
		cfg.LeadsTable = "leads"
	}
	if cfg.Bucket == "" {
		cfg.Bucket = "lead-media"
	}

	client, err := supabase.NewClient(cfg.URL, cfg.APIKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}

	return &Client{
		client: client,
		table:  cfg.LeadsTable,
		bucket: cfg.Bucket,
	}, nil
}

// SaveLead inserts a lead row and returns the id the database assigned.
func (c *Client) SaveLead(ctx context.Context, lead *crm.Lead) (string, error) {
	if err := lead.Validate(); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var inserted []leadRow
	_, err := c.client.From(c.table).
		Insert(newLeadRow(lead), false, "", "representation", "").
		ExecuteTo(&inserted)

	if err != nil {
		return "", fmt.Errorf("failed to insert lead: %w", err)
	}

	if len(inserted) == 0 {
		return "", fmt.Errorf("lead insert returned no rows")
	}

	return inserted[0].ID, nil
}

// Upload stores data in the attachments bucket and returns its public URL.
func (c *Client) Upload(ctx context.Context, objectPath, mimeType string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	upsert := false
	opts := storage_go.FileOptions{Upsert: &upsert}
	if mimeType != "" {
		opts.ContentType = &mimeType
	}

	if _, err := c.client.Storage.UploadFile(c.bucket, objectPath, bytes.NewReader(data), opts); err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", objectPath, err)
	}

	resp := c.client.Storage.GetPublicUrl(c.bucket, objectPath)
	return resp.SignedURL, nil
}

// Close implements crm.Store. The underlying HTTP clients hold no resources.
func (c *Client) Close() error {
	return nil
}

func newLeadRow(lead *crm.Lead) leadRow {
	created := lead.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	attachments := lead.Attachments
	if attachments == nil {
		attachments = []crm.Attachment{}
	}
	return leadRow{
		Name:           lead.Name,
		Phone:          lead.Phone,
		Email:          lead.Email,
		Country:        lead.Country,
		Interest:       lead.Interest,
		Notes:          lead.Notes,
		WhatsAppNumber: lead.WhatsAppNumber,
		Attachments:    attachments,
		DateCreated:    created.Format("2006-01-02"),
		CreatedAt:      created,
	}
}

// Compile-time checks
var (
	_ crm.Store      = (*Client)(nil)
	_ media.Uploader = (*Client)(nil)
)
