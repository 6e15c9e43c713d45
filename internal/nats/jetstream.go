package natsjs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/Martian-dev/followup-reminder/internal/contacts"
)

const (
	StreamName    = "FOLLOWUP_REMINDERS"
	subjectPrefix = "followup"
)

// Reminder is the payload published for an overdue contact
type Reminder struct {
	Account       string    `json:"account"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	LastContact   time.Time `json:"lastContact"`
	LastMessageID string    `json:"lastMessageId"`
	DaysSince     int       `json:"daysSince"`
	Frequency     int       `json:"frequency"`
}

// Publisher wraps NATS JetStream for publishing follow-up reminders
type Publisher struct {
	nc *nats.Conn
	js nats.JetStreamContext
}

// NewPublisher connects to NATS and creates a JetStream context
func NewPublisher(url string) (*Publisher, error) {
	nc, err := nats.Connect(url, nats.Name("followup-reminder"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	return &Publisher{nc: nc, js: js}, nil
}

// EnsureStream ensures the reminders stream exists
func (p *Publisher) EnsureStream(ctx context.Context) error {
	info, err := p.js.StreamInfo(StreamName, nats.Context(ctx))
	if err == nil && info != nil {
		return nil
	}

	_, err = p.js.AddStream(&nats.StreamConfig{
		Name:       StreamName,
		Subjects:   []string{subjectPrefix + ".>"},
		Storage:    nats.FileStorage,
		Retention:  nats.LimitsPolicy,
		Duplicates: 24 * time.Hour,
		MaxAge:     30 * 24 * time.Hour,
	}, nats.Context(ctx))
	if err != nil {
		if errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			return nil
		}
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// PublishOverdue publishes a reminder for an overdue contact. The JetStream
// message id is stable per contact and message so repeated refreshes within
// the duplicate window are dropped by the server.
func (p *Publisher) PublishOverdue(ctx context.Context, account string, rec contacts.ContactRecord, daysSince, frequency int) error {
	payload, err := json.Marshal(Reminder{
		Account:       account,
		Email:         rec.Email,
		Name:          rec.DisplayName,
		LastContact:   rec.LastContactAt.UTC(),
		LastMessageID: rec.LastMessageID,
		DaysSince:     daysSince,
		Frequency:     frequency,
	})
	if err != nil {
		return fmt.Errorf("failed to encode reminder: %w", err)
	}

	_, err = p.js.Publish(Subject(account), payload, nats.MsgId(MsgID(rec)), nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("failed to publish reminder: %w", err)
	}
	return nil
}

// Subject returns the subject reminders for account are published on
func Subject(account string) string {
	return fmt.Sprintf("%s.%s.overdue", subjectPrefix, subjectToken(account))
}

// MsgID is the deduplication id for a contact's reminder
func MsgID(rec contacts.ContactRecord) string {
	return fmt.Sprintf("overdue|%s|%s", rec.Email, rec.LastMessageID)
}

// subjectToken makes s safe to use as a single subject token
func subjectToken(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, s)
}

// Close closes the NATS connection
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}
