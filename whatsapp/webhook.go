package whatsapp

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/korberlin/WhatsApp-AI-Sales-Pipeline/dedupe"
	"github.com/korberlin/WhatsApp-AI-Sales-Pipeline/session"
)

// maxWebhookBody caps a webhook request body.
const maxWebhookBody = 1 << 20

// Inbound receives parsed conversant input.
type Inbound interface {
	Enqueue(conversantID, text string)
	EnqueueMedia(conversantID, kind string, ref session.MediaRef)
}

// HandlerConfig configures the webhook handler.
type HandlerConfig struct {
	VerifyToken string
	// AppSecret enables X-Hub-Signature-256 verification when set.
	AppSecret string
}

// Handler serves the WhatsApp webhook.
type Handler struct {
	config  HandlerConfig
	inbound Inbound
	deduper dedupe.Deduper
	logger  *slog.Logger
}

// NewHandler creates a webhook handler. deduper may be nil.
func NewHandler(cfg HandlerConfig, inbound Inbound, deduper dedupe.Deduper, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		config:  cfg,
		inbound: inbound,
		deduper: deduper,
		logger:  logger.With("component", "webhook"),
	}
}

// Routes returns the HTTP routes served by the process.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/webhook/whatsapp", h)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.verify(w, r)
	case http.MethodPost:
		h.receive(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") != "subscribe" || h.config.VerifyToken == "" ||
		!hmac.Equal([]byte(q.Get("hub.verify_token")), []byte(h.config.VerifyToken)) {
		h.logger.Warn("webhook verification failed")
		w.WriteHeader(http.StatusForbidden)
		return
	}

	h.logger.Info("webhook verified")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(q.Get("hub.challenge")))
}

// Webhook payload as delivered by the Cloud API.
type webhookPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string      `json:"field"`
			Value changeValue `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type changeValue struct {
	Contacts []struct {
		WaID    string `json:"wa_id"`
		Profile struct {
			Name string `json:"name"`
		} `json:"profile"`
	} `json:"contacts"`
	Messages []inboundMessage `json:"messages"`
	Statuses []struct {
		ID          string `json:"id"`
		Status      string `json:"status"`
		RecipientID string `json:"recipient_id"`
	} `json:"statuses"`
}

type inboundMessage struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text,omitempty"`
	Image    *mediaPayload `json:"image,omitempty"`
	Video    *mediaPayload `json:"video,omitempty"`
	Audio    *mediaPayload `json:"audio,omitempty"`
	Document *mediaPayload `json:"document,omitempty"`
}

type mediaPayload struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
}

func (m *inboundMessage) media() *mediaPayload {
	switch m.Type {
	case "image":
		return m.Image
	case "video":
		return m.Video
	case "audio":
		return m.Audio
	case "document":
		return m.Document
	}
	return nil
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "cannot read body", http.StatusBadRequest)
		return
	}

	if h.config.AppSecret != "" && !validSignature(body, r.Header.Get("X-Hub-Signature-256"), h.config.AppSecret) {
		h.logger.Warn("webhook signature mismatch")
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		h.logger.Warn("malformed webhook payload", "error", err)
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	// Acknowledge everything we could parse so the provider stops retrying
	w.WriteHeader(http.StatusOK)

	if payload.Object != "whatsapp_business_account" {
		h.logger.Debug("ignoring webhook object", "object", payload.Object)
		return
	}
	h.route(r.Context(), &payload)
}

func (h *Handler) route(ctx context.Context, payload *webhookPayload) {
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, st := range change.Value.Statuses {
				h.logger.Info("status update", "status", st.Status, "recipient", st.RecipientID)
			}
			for i := range change.Value.Messages {
				h.handleMessage(ctx, &change.Value.Messages[i])
			}
		}
	}
}

func (h *Handler) handleMessage(ctx context.Context, msg *inboundMessage) {
	if msg.From == "" {
		return
	}
	if h.duplicate(ctx, msg.ID) {
		h.logger.Debug("dropping redelivered message", "message_id", msg.ID)
		return
	}

	switch msg.Type {
	case "text":
		if msg.Text == nil {
			return
		}
		h.logger.Info("text message received", "from", msg.From)
		h.inbound.Enqueue(msg.From, msg.Text.Body)
	case "image", "video", "audio", "document":
		payload := msg.media()
		if payload == nil {
			return
		}
		h.logger.Info("media message received", "from", msg.From, "type", msg.Type)
		h.inbound.EnqueueMedia(msg.From, msg.Type, session.MediaRef{
			MediaID:  payload.ID,
			MimeType: payload.MimeType,
		})
	default:
		h.logger.Debug("ignoring message type", "from", msg.From, "type", msg.Type)
	}
}

// duplicate fails open: a broken dedupe backend must not drop messages.
func (h *Handler) duplicate(ctx context.Context, messageID string) bool {
	if h.deduper == nil || messageID == "" {
		return false
	}
	seen, err := h.deduper.Seen(ctx, messageID)
	if err != nil {
		h.logger.Error("dedupe check failed", "message_id", messageID, "error", err)
		return false
	}
	return seen
}

func validSignature(body []byte, header, secret string) bool {
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}
