package mailbox

import (
	"context"
	"errors"

	"github.com/Martian-dev/followup-reminder/internal/auth"
	"github.com/Martian-dev/followup-reminder/internal/contacts"
)

// MaxSent is the size of the single page of sent mail we look at
const MaxSent = 100

// ErrAuthRequired means the provider rejected the credentials
var ErrAuthRequired = errors.New("mail provider: authentication required")

// SentMailProvider reads the user's sent mail
type SentMailProvider interface {
	// ListSent returns summaries of the most recent sent messages, first page only
	ListSent(ctx context.Context, max int64) ([]contacts.MessageSummary, error)

	// MessageBody returns the plain-text body of a message
	MessageBody(ctx context.Context, id string) (string, error)
}

// ProviderFactory creates a SentMailProvider for a request's credentials
type ProviderFactory func(ctx context.Context, creds auth.Credentials) (SentMailProvider, error)
