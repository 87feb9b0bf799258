// Package sqlite is a local crm.Store backed by an embedded SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/korberlin/WhatsApp-AI-Sales-Pipeline/crm"
)

// Store implements crm.Store using SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New opens (or creates) the SQLite database at path. Parent directories are
// created if needed and the schema is applied.
func New(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "crm_sqlite")

	// Ensure parent directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("lead store initialized", "path", path)
	return s, nil
}

func (s *Store) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS leads (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			phone TEXT NOT NULL,
			email TEXT NOT NULL DEFAULT '',
			country TEXT NOT NULL DEFAULT '',
			interest TEXT NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT '',
			whatsapp_number TEXT NOT NULL DEFAULT '',
			attachments TEXT NOT NULL DEFAULT '[]',
			created_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_leads_phone ON leads(phone);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveLead implements crm.Store.
func (s *Store) SaveLead(ctx context.Context, lead *crm.Lead) (string, error) {
	if err := lead.Validate(); err != nil {
		return "", err
	}

	id := uuid.New().String()
	createdAt := lead.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	attachments := lead.Attachments
	if attachments == nil {
		attachments = []crm.Attachment{}
	}
	attachmentsJSON, err := json.Marshal(attachments)
	if err != nil {
		return "", fmt.Errorf("encoding attachments: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO leads (id, name, phone, email, country, interest, notes, whatsapp_number, attachments, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, lead.Name, lead.Phone, lead.Email, lead.Country, lead.Interest, lead.Notes,
		lead.WhatsAppNumber, string(attachmentsJSON), createdAt,
	)
	if err != nil {
		return "", fmt.Errorf("inserting lead: %w", err)
	}

	s.logger.Debug("lead saved", "lead_id", id, "attachments", len(attachments))
	return id, nil
}

// GetLead loads a lead by id.
func (s *Store) GetLead(ctx context.Context, id string) (*crm.Lead, error) {
	var (
		lead            crm.Lead
		attachmentsJSON string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, phone, email, country, interest, notes, whatsapp_number, attachments, created_at
		FROM leads WHERE id = ?`, id,
	).Scan(&lead.ID, &lead.Name, &lead.Phone, &lead.Email, &lead.Country, &lead.Interest,
		&lead.Notes, &lead.WhatsAppNumber, &attachmentsJSON, &lead.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("loading lead %s: %w", id, err)
	}

	if err := json.Unmarshal([]byte(attachmentsJSON), &lead.Attachments); err != nil {
		return nil, fmt.Errorf("decoding attachments: %w", err)
	}
	return &lead, nil
}

// Close implements crm.Store.
func (s *Store) Close() error {
	return s.db.Close()
}

// Compile-time check that Store implements crm.Store.
var _ crm.Store = (*Store)(nil)
