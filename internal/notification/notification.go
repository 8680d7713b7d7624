// Package notification renders ledger events into email messages and hands them
// to a Sender. Delivery is best-effort: callers log failures and carry on.
package notification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	id "transitpass/pkg/domain"
)

// Message is a rendered email ready for delivery.
type Message struct {
	To        string    `json:"to"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	Template  Template  `json:"template"`
	UserID    int64     `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Sender delivers or enqueues a message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Contact is the addressable identity of a user.
type Contact struct {
	Name  string
	Email string
}

// Directory resolves user ids to contacts.
type Directory interface {
	Contact(ctx context.Context, userID id.UserID) (Contact, error)
}

// Dispatcher renders a template for a user and hands it to a Sender.
type Dispatcher struct {
	directory Directory
	sender    Sender
	logger    *slog.Logger
}

func NewDispatcher(directory Directory, sender Sender, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{directory: directory, sender: sender, logger: logger}
}

// Notify resolves the user's email, renders the template and sends it.
// The "name" key is filled from the directory when absent.
func (d *Dispatcher) Notify(ctx context.Context, userID id.UserID, t Template, data Data) error {
	contact, err := d.directory.Contact(ctx, userID)
	if err != nil {
		return fmt.Errorf("resolve contact for user %d: %w", userID, err)
	}
	merged := Data{"name": contact.Name}
	for k, v := range data {
		merged[k] = v
	}
	subject, body, err := Render(t, merged)
	if err != nil {
		return err
	}
	msg := Message{
		To:        contact.Email,
		Subject:   subject,
		Body:      body,
		Template:  t,
		UserID:    int64(userID),
		CreatedAt: time.Now().UTC(),
	}
	if err := d.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("send %s: %w", t, err)
	}
	d.logger.DebugContext(ctx, "notification dispatched", "template", t, "user_id", userID)
	return nil
}

// LogSender writes messages to the log instead of delivering them.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.logger.InfoContext(ctx, "notification",
		"to", msg.To,
		"subject", msg.Subject,
		"template", msg.Template,
	)
	return nil
}
