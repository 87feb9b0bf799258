// Package whatsapp talks to the WhatsApp Business Cloud API: it sends text
// replies, downloads inbound media and receives webhook deliveries.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/korberlin/WhatsApp-AI-Sales-Pipeline/media"
)

const (
	DefaultBaseURL    = "https://graph.facebook.com"
	DefaultAPIVersion = "v17.0"

	// maxMediaSize caps a single media download (WhatsApp allows 100MB documents).
	maxMediaSize = 100 << 20
)

// Config configures the Cloud API client.
type Config struct {
	BaseURL       string
	APIVersion    string
	PhoneNumberID string
	AccessToken   string
	Timeout       time.Duration
}

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("whatsapp api: status %d: %s", e.StatusCode, e.Body)
}

// Client is a WhatsApp Cloud API client.
type Client struct {
	config Config
	http   *http.Client
	logger *slog.Logger
}

// NewClient creates a Cloud API client.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.AccessToken == "" {
		return nil, fmt.Errorf("whatsapp access token is required")
	}
	if cfg.PhoneNumberID == "" {
		return nil, fmt.Errorf("whatsapp phone number id is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		config: cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger.With("component", "whatsapp"),
	}, nil
}

type textMessage struct {
	MessagingProduct string `json:"messaging_product"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Text             struct {
		Body string `json:"body"`
	} `json:"text"`
}

// SendText sends a plain text message to a conversant.
func (c *Client) SendText(ctx context.Context, to, body string) error {
	msg := textMessage{MessagingProduct: "whatsapp", To: to, Type: "text"}
	msg.Text.Body = body

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}

	url := fmt.Sprintf("%s/%s/%s/messages", c.config.BaseURL, c.config.APIVersion, c.config.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(req)
	if err != nil {
		return fmt.Errorf("sending message to %s: %w", to, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	c.logger.Info("message sent", "to", to)
	return nil
}

type mediaInfo struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
	FileSize int64  `json:"file_size"`
}

// Fetch downloads inbound media. It resolves the media id to a short-lived
// URL first, then downloads it with the same credentials.
func (c *Client) Fetch(ctx context.Context, mediaID string) (*media.Blob, error) {
	url := fmt.Sprintf("%s/%s/%s", c.config.BaseURL, c.config.APIVersion, mediaID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("resolving media %s: %w", mediaID, err)
	}
	var info mediaInfo
	err = json.NewDecoder(resp.Body).Decode(&info)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("decoding media %s: %w", mediaID, err)
	}
	if info.URL == "" {
		return nil, fmt.Errorf("media %s has no download url", mediaID)
	}

	req, err = http.NewRequestWithContext(ctx, http.MethodGet, info.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating download request: %w", err)
	}
	resp, err = c.do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading media %s: %w", mediaID, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading media %s: %w", mediaID, err)
	}
	if len(data) > maxMediaSize {
		return nil, fmt.Errorf("media %s exceeds %d bytes", mediaID, maxMediaSize)
	}

	mimeType := info.MimeType
	if mimeType == "" {
		mimeType = resp.Header.Get("Content-Type")
	}
	return &media.Blob{Data: data, MimeType: mimeType}, nil
}

// do sends an authorized request and turns non-2xx responses into *APIError.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("Authorization", "Bearer "+c.config.AccessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return resp, nil
}

// Compile-time check that Client implements media.Fetcher.
var _ media.Fetcher = (*Client)(nil)
