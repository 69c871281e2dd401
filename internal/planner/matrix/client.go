// Package matrix provides the send-only Matrix client the planner uses to
// post audit notices to an operations room.
package matrix

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// Config holds Matrix client configuration
type Config struct {
	Homeserver  string
	UserID      string
	AccessToken string
}

// Client wraps the Matrix client
type Client struct {
	client *mautrix.Client
	config *Config
}

// New creates a new Matrix client. It does not sync: the planner only
// sends.
func New(config *Config) (*Client, error) {
	if config == nil || config.Homeserver == "" {
		return nil, fmt.Errorf("matrix homeserver is required")
	}
	client, err := mautrix.NewClient(config.Homeserver, id.UserID(config.UserID), config.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Matrix client: %w", err)
	}
	return &Client{client: client, config: config}, nil
}

// JoinRoom joins roomID. Being already a member is not an error.
func (c *Client) JoinRoom(ctx context.Context, roomID string) error {
	_, err := c.client.JoinRoomByID(ctx, id.RoomID(roomID))
	if err != nil {
		if errors.Is(err, mautrix.MForbidden) {
			slog.Warn("matrix: already a member or access denied, continuing", "room", roomID)
			return nil
		}
		return fmt.Errorf("failed to join room %s: %w", roomID, err)
	}
	return nil
}

// SendNotice sends a notice message (less intrusive than normal messages)
func (c *Client) SendNotice(roomID, message string) error {
	content := event.MessageEventContent{
		MsgType: event.MsgNotice,
		Body:    message,
	}

	_, err := c.client.SendMessageEvent(context.Background(), id.RoomID(roomID), event.EventMessage, &content)
	if err != nil {
		return fmt.Errorf("failed to send notice: %w", err)
	}
	return nil
}

// SendFormattedNotice sends a notice with an HTML body and a plain-text
// fallback.
func (c *Client) SendFormattedNotice(roomID, html, plaintext string) error {
	content := event.MessageEventContent{
		MsgType:       event.MsgNotice,
		Body:          plaintext,
		Format:        event.FormatHTML,
		FormattedBody: html,
	}

	_, err := c.client.SendMessageEvent(context.Background(), id.RoomID(roomID), event.EventMessage, &content)
	if err != nil {
		return fmt.Errorf("failed to send formatted notice: %w", err)
	}
	return nil
}

// GetUserID returns the client's user ID
func (c *Client) GetUserID() string {
	return c.config.UserID
}
