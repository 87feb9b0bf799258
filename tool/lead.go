package tool

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/korberlin/WhatsApp-AI-Sales-Pipeline/crm"
	"github.com/korberlin/WhatsApp-AI-Sales-Pipeline/media"
	"github.com/korberlin/WhatsApp-AI-Sales-Pipeline/notify"
	"github.com/korberlin/WhatsApp-AI-Sales-Pipeline/session"
)

// SaveLead persists the conversant's contact details, together with any
// media they sent, to the CRM. It has external effects, so the engine does
// not re-submit after it.
type SaveLead struct {
	store    crm.Store
	transfer *media.Transfer
	notifier notify.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewSaveLead creates the tool. transfer may be nil when media storage is
// not configured; pending media then stays on the session.
func NewSaveLead(store crm.Store, transfer *media.Transfer, notifier notify.Notifier, logger *slog.Logger) *SaveLead {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SaveLead{
		store:    store,
		transfer: transfer,
		notifier: notifier,
		logger:   logger.With("tool", "saveLead"),
		now:      time.Now,
	}
}

// Name implements Tool
func (t *SaveLead) Name() string { return "saveLead" }

// Description implements Tool
func (t *SaveLead) Description() string {
	return "Save the user's contact details as a sales lead. Call this once the user has shared at least their name."
}

// InputSchema implements Tool
func (t *SaveLead) InputSchema() ToolSchema {
	return ToolSchema{
		Type: "object",
		Properties: map[string]PropertyDef{
			session.LeadName:     {Type: "string", Description: "Full name of the user"},
			session.LeadPhone:    {Type: "string", Description: "Phone number, defaults to the WhatsApp number"},
			session.LeadEmail:    {Type: "string", Description: "Email address"},
			session.LeadCountry:  {Type: "string", Description: "Country the user lives in"},
			session.LeadInterest: {Type: "string", Description: "Product or service the user is interested in"},
			session.LeadNotes:    {Type: "string", Description: "Anything else relevant for the sales team"},
		},
		Required: []string{session.LeadName},
	}
}

type leadInput struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
	Country  string `json:"country"`
	Interest string `json:"interest"`
	Notes    string `json:"notes"`
}

// Execute implements Tool
func (t *SaveLead) Execute(ctx context.Context, call Call) (*Result, error) {
	sess := call.Session

	var in leadInput
	if err := decodeInput(call.Input, &in); err != nil {
		t.notify(ctx, notify.KindLeadError, fmt.Sprintf("invalid lead arguments: %v", err), sess.ID())
		return &Result{Success: false, Error: fmt.Sprintf("invalid arguments: %v", err), Outcome: OutcomeLeadFailed}, nil
	}

	sess.MergeLead(map[string]string{
		session.LeadName:     in.Name,
		session.LeadPhone:    in.Phone,
		session.LeadEmail:    in.Email,
		session.LeadCountry:  in.Country,
		session.LeadInterest: in.Interest,
		session.LeadNotes:    in.Notes,
	})
	fields := sess.Lead()

	lead := &crm.Lead{
		Name:           fields[session.LeadName],
		Phone:          fields[session.LeadPhone],
		Email:          fields[session.LeadEmail],
		Country:        fields[session.LeadCountry],
		Interest:       fields[session.LeadInterest],
		Notes:          fields[session.LeadNotes],
		WhatsAppNumber: sess.ID(),
		CreatedAt:      t.now().UTC(),
	}
	if err := lead.Validate(); err != nil {
		t.notify(ctx, notify.KindLeadError, "Missing required fields: name or phone", lead.Phone)
		return &Result{Success: false, Error: err.Error(), Outcome: OutcomeLeadFailed}, nil
	}

	// Snapshot pending media; anything arriving during the upload stays queued
	refs := sess.PendingMedia()
	var failures []media.Failure
	switch {
	case len(refs) == 0:
	case t.transfer != nil:
		lead.Attachments, failures = t.transfer.Run(ctx, sess.ID(), refs)
		for _, f := range failures {
			t.notify(ctx, notify.KindAPIFailure, fmt.Sprintf("Media upload failed for lead %s: %v", lead.Name, f.Err), lead.Phone)
		}
	default:
		// No media storage: hand over the channel references so an operator
		// can still fetch them from WhatsApp.
		lead.Attachments = referenceAttachments(refs)
	}

	id, err := t.store.SaveLead(ctx, lead)
	if err != nil {
		t.logger.Error("saving lead failed", "session_id", sess.ID(), "error", err)
		t.notify(ctx, notify.KindLeadError, fmt.Sprintf("Failed to save lead for %s (%s) - %v", lead.Name, lead.Phone, err), lead.Phone)
		return &Result{Success: false, Error: "failed to save lead", Outcome: OutcomeLeadFailed}, nil
	}

	sess.ReleaseMedia(len(refs))
	t.notify(ctx, notify.KindLeadSaved, fmt.Sprintf("for %s (%s)", lead.Name, lead.Phone), lead.Phone)
	t.logger.Info("lead saved", "session_id", sess.ID(), "lead_id", id, "attachments", len(lead.Attachments))

	outcome := OutcomeLeadSaved
	if len(refs) > 0 && t.transfer != nil && len(lead.Attachments) == 0 {
		outcome = OutcomeMediaFailed
	}
	return &Result{
		Success: true,
		Data: map[string]any{
			"lead_id":       id,
			"attachments":   len(lead.Attachments),
			"media_failed":  len(failures),
			"whatsapp_user": sess.ID(),
		},
		Outcome: outcome,
	}, nil
}

func (t *SaveLead) notify(ctx context.Context, kind notify.Kind, detail, phone string) {
	if err := t.notifier.Notify(ctx, notify.Notification{Kind: kind, Detail: detail, LeadPhone: phone}); err != nil {
		t.logger.Warn("operator notification not delivered", "kind", kind, "error", err)
	}
}

func referenceAttachments(refs []session.MediaRef) []crm.Attachment {
	out := make([]crm.Attachment, 0, len(refs))
	for _, ref := range refs {
		out = append(out, crm.Attachment{MediaID: ref.MediaID, MimeType: ref.MimeType})
	}
	return out
}
