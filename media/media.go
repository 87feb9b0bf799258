// Package media moves media received from the messaging channel into
// durable storage so it can be attached to a lead.
package media

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/korberlin/WhatsApp-AI-Sales-Pipeline/crm"
	"github.com/korberlin/WhatsApp-AI-Sales-Pipeline/session"
)

// Blob is downloaded media content.
type Blob struct {
	Data     []byte
	MimeType string
}

// Fetcher downloads media by the channel-assigned media id.
type Fetcher interface {
	Fetch(ctx context.Context, mediaID string) (*Blob, error)
}

// Uploader stores media and returns a URL it can be retrieved from.
type Uploader interface {
	Upload(ctx context.Context, objectPath, mimeType string, data []byte) (string, error)
}

// Failure records a media reference that could not be transferred.
type Failure struct {
	Ref session.MediaRef
	Err error
}

// Transfer copies pending media from a Fetcher to an Uploader.
type Transfer struct {
	fetcher     Fetcher
	uploader    Uploader
	concurrency int
	prefix      string
	logger      *slog.Logger
}

// NewTransfer creates a Transfer. concurrency bounds parallel transfers
// (default 4); prefix is prepended to every object path.
func NewTransfer(fetcher Fetcher, uploader Uploader, concurrency int, prefix string, logger *slog.Logger) *Transfer {
	if concurrency <= 0 {
		concurrency = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Transfer{
		fetcher:     fetcher,
		uploader:    uploader,
		concurrency: concurrency,
		prefix:      prefix,
		logger:      logger.With("component", "media"),
	}
}

// Run transfers every reference for the given owner. Individual failures do
// not stop the others; attachments keep the order of refs.
func (t *Transfer) Run(ctx context.Context, owner string, refs []session.MediaRef) ([]crm.Attachment, []Failure) {
	if len(refs) == 0 {
		return nil, nil
	}

	results := make([]*crm.Attachment, len(refs))
	var (
		mu       sync.Mutex
		failures []Failure
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.concurrency)
	for i, ref := range refs {
		g.Go(func() error {
			url, err := t.transferOne(gctx, owner, ref)
			if err != nil {
				t.logger.Error("media transfer failed", "media_id", ref.MediaID, "owner", owner, "error", err)
				mu.Lock()
				failures = append(failures, Failure{Ref: ref, Err: err})
				mu.Unlock()
				return nil
			}
			results[i] = &crm.Attachment{URL: url, MimeType: ref.MimeType, MediaID: ref.MediaID}
			return nil
		})
	}
	_ = g.Wait()

	attachments := make([]crm.Attachment, 0, len(refs))
	for _, a := range results {
		if a != nil {
			attachments = append(attachments, *a)
		}
	}

	t.logger.Info("media transferred", "owner", owner, "uploaded", len(attachments), "failed", len(failures))
	return attachments, failures
}

func (t *Transfer) transferOne(ctx context.Context, owner string, ref session.MediaRef) (string, error) {
	blob, err := t.fetcher.Fetch(ctx, ref.MediaID)
	if err != nil {
		return "", fmt.Errorf("fetching media %s: %w", ref.MediaID, err)
	}

	mimeType := ref.MimeType
	if mimeType == "" {
		mimeType = blob.MimeType
	}

	url, err := t.uploader.Upload(ctx, ObjectPath(t.prefix, owner, mimeType), mimeType, blob.Data)
	if err != nil {
		return "", fmt.Errorf("uploading media %s: %w", ref.MediaID, err)
	}
	return url, nil
}

// ObjectPath builds a unique storage path for a media object, using the
// mime type to pick a file extension.
func ObjectPath(prefix, owner, mimeType string) string {
	ext := ""
	if mimeType != "" {
		base := strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0])
		if exts, err := mime.ExtensionsByType(base); err == nil && len(exts) > 0 {
			ext = exts[0]
		}
	}
	return path.Join(prefix, owner, uuid.New().String()+ext)
}
