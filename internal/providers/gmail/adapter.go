package gmail

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/Martian-dev/followup-reminder/internal/auth"
	"github.com/Martian-dev/followup-reminder/internal/contacts"
	"github.com/Martian-dev/followup-reminder/internal/mailbox"
)

const (
	sentLabel = "SENT"
	me        = "me"

	// DefaultConcurrency bounds parallel metadata fetches
	DefaultConcurrency = 8
)

// Adapter implements mailbox.SentMailProvider for Gmail
type Adapter struct {
	svc         *gmail.Service
	concurrency int
}

// New creates a Gmail adapter authorized with the request's credentials.
// The token is used as-is and never refreshed.
func New(ctx context.Context, creds auth.Credentials, opts ...option.ClientOption) (*Adapter, error) {
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(creds.Token()))

	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	return &Adapter{svc: svc, concurrency: DefaultConcurrency}, nil
}

// Factory returns a mailbox.ProviderFactory producing Gmail adapters
func Factory(concurrency int, opts ...option.ClientOption) mailbox.ProviderFactory {
	return func(ctx context.Context, creds auth.Credentials) (mailbox.SentMailProvider, error) {
		a, err := New(ctx, creds, opts...)
		if err != nil {
			return nil, err
		}
		if concurrency > 0 {
			a.concurrency = concurrency
		}
		return a, nil
	}
}

// ListSent lists the first page of sent messages and fetches their To and
// Date headers. Summaries keep the order of the listing.
func (a *Adapter) ListSent(ctx context.Context, max int64) ([]contacts.MessageSummary, error) {
	list, err := a.svc.Users.Messages.List(me).
		LabelIds(sentLabel).
		MaxResults(max).
		Context(ctx).
		Do()
	if err != nil {
		return nil, classify(err, "failed to list sent messages")
	}

	summaries := make([]contacts.MessageSummary, len(list.Messages))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, m := range list.Messages {
		g.Go(func() error {
			meta, err := a.svc.Users.Messages.Get(me, m.Id).
				Format("metadata").
				MetadataHeaders("To", "Date").
				Context(gctx).
				Do()
			if err != nil {
				return classify(err, fmt.Sprintf("failed to get message %s", m.Id))
			}
			summaries[i] = summarize(meta)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return summaries, nil
}

// MessageBody fetches a message in raw form and extracts its plain-text body
func (a *Adapter) MessageBody(ctx context.Context, id string) (string, error) {
	msg, err := a.svc.Users.Messages.Get(me, id).
		Format("raw").
		Context(ctx).
		Do()
	if err != nil {
		return "", classify(err, fmt.Sprintf("failed to get message %s", id))
	}

	return plainTextBody(msg.Raw)
}

// summarize converts Gmail metadata into a MessageSummary. Only the first To
// and Date headers count; a Date that does not parse leaves SentAt zero.
func summarize(m *gmail.Message) contacts.MessageSummary {
	summary := contacts.MessageSummary{ID: m.Id}
	if m.Payload == nil {
		return summary
	}

	var to, date string
	var haveTo, haveDate bool
	for _, h := range m.Payload.Headers {
		switch {
		case !haveTo && strings.EqualFold(h.Name, "To"):
			to, haveTo = h.Value, true
		case !haveDate && strings.EqualFold(h.Name, "Date"):
			date, haveDate = h.Value, true
		}
	}

	summary.To = to
	if haveDate {
		if t, err := mail.ParseDate(strings.TrimSpace(date)); err == nil {
			summary.SentAt = t
		}
	}
	return summary
}

// classify maps Gmail API failures onto mailbox errors
func classify(err error, msg string) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusUnauthorized {
		return fmt.Errorf("%s: %w", msg, mailbox.ErrAuthRequired)
	}

	return fmt.Errorf("%s: %w", msg, err)
}
