package notify

import (
	"context"
	"fmt"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/id"
)

// MatrixConfig configures delivery into a Matrix operator room.
type MatrixConfig struct {
	Homeserver  string
	UserID      string
	AccessToken string
	RoomID      string
	Templates   Templates
}

// roomSender is the slice of the Matrix client used here.
type roomSender interface {
	SendText(ctx context.Context, roomID id.RoomID, text string) (*mautrix.RespSendEvent, error)
}

// Matrix posts notifications into a Matrix room.
type Matrix struct {
	client    roomSender
	roomID    id.RoomID
	templates Templates
}

// NewMatrix creates a Matrix room notifier.
func NewMatrix(cfg MatrixConfig) (*Matrix, error) {
	if cfg.Homeserver == "" || cfg.AccessToken == "" || cfg.RoomID == "" {
		return nil, fmt.Errorf("matrix homeserver, access token and room id are required")
	}

	client, err := mautrix.NewClient(cfg.Homeserver, id.UserID(cfg.UserID), cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("creating matrix client: %w", err)
	}
	return newMatrix(client, cfg), nil
}

func newMatrix(client roomSender, cfg MatrixConfig) *Matrix {
	if cfg.Templates == nil {
		cfg.Templates = DefaultTemplates()
	}
	return &Matrix{
		client:    client,
		roomID:    id.RoomID(cfg.RoomID),
		templates: cfg.Templates,
	}
}

// Notify implements Notifier.
func (m *Matrix) Notify(ctx context.Context, n Notification) error {
	if _, err := m.client.SendText(ctx, m.roomID, m.templates.Render(n)); err != nil {
		return fmt.Errorf("matrix send to %s: %w", m.roomID, err)
	}
	return nil
}

// Compile-time check that Matrix implements Notifier.
var _ Notifier = (*Matrix)(nil)
