// Package crm defines the lead record written when a conversant has shared
// enough contact details, and the store contract that persists it.
package crm

import (
	"context"
	"errors"
	"time"
)

// ErrMissingRequired is returned when a lead lacks a name or phone number.
var ErrMissingRequired = errors.New("lead name and phone are required fields")

// Attachment is a media file handed over with a lead. URL is empty when the
// backend stores no media and only the channel's media id is recorded.
type Attachment struct {
	URL      string `json:"url,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	MediaID  string `json:"media_id,omitempty"`
}

// Lead is a sales lead collected in a conversation.
type Lead struct {
	ID             string       `json:"id,omitempty"`
	Name           string       `json:"name"`
	Phone          string       `json:"phone"`
	Email          string       `json:"email,omitempty"`
	Country        string       `json:"country,omitempty"`
	Interest       string       `json:"interest,omitempty"`
	Notes          string       `json:"notes,omitempty"`
	WhatsAppNumber string       `json:"whatsapp_number,omitempty"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}

// Validate checks the fields every CRM backend requires.
func (l *Lead) Validate() error {
	if l.Name == "" || l.Phone == "" {
		return ErrMissingRequired
	}
	return nil
}

// Store persists leads.
type Store interface {
	// SaveLead writes the lead and returns the identifier assigned to it.
	SaveLead(ctx context.Context, lead *Lead) (string, error)

	// Close releases any resources held by the store.
	Close() error
}
