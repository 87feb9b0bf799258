package supabase

import (
	"time"

	"github.com/korberlin/WhatsApp-AI-Sales-Pipeline/crm"
)

// leadRow is the shape of a row in the leads table.
//
//	create table leads (
//	  id uuid primary key default gen_random_uuid(),
//	  name text not null,
//	  phone text not null,
//	  email text, country text, interest text, notes text,
//	  whatsapp_number text,
//	  attachments jsonb not null default '[]',
//	  date_created date not null,
//	  created_at timestamptz not null
//	);
type leadRow struct {
	ID             string           `json:"id,omitempty"`
	Name           string           `json:"name"`
	Phone          string           `json:"phone"`
	Email          string           `json:"email"`
	Country        string           `json:"country"`
	Interest       string           `json:"interest"`
	Notes          string           `json:"notes"`
	WhatsAppNumber string           `json:"whatsapp_number"`
	Attachments    []crm.Attachment `json:"attachments"`
	DateCreated    string           `json:"date_created"`
	CreatedAt      time.Time        `json:"created_at"`
}
