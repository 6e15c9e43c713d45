package mailbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Martian-dev/followup-reminder/internal/contacts"
)

// Notifier delivers reminders for overdue contacts
type Notifier interface {
	PublishOverdue(ctx context.Context, account string, rec contacts.ContactRecord, daysSince, frequency int) error
}

// Entry is a contact record evaluated against a follow-up frequency
type Entry struct {
	contacts.ContactRecord
	DaysSince int
	Overdue   bool
}

// Refresher turns a provider's sent mail into contact records
type Refresher struct {
	Notifier Notifier
	Logger   *slog.Logger
	Now      func() time.Time
}

// NewRefresher creates a refresher. notifier may be nil.
func NewRefresher(notifier Notifier, logger *slog.Logger) *Refresher {
	return &Refresher{
		Notifier: notifier,
		Logger:   logger,
		Now:      time.Now,
	}
}

// Contacts lists sent mail and aggregates it. Aggregation starts only after
// every summary has been fetched.
func (r *Refresher) Contacts(ctx context.Context, p SentMailProvider) ([]contacts.ContactRecord, error) {
	summaries, err := p.ListSent(ctx, MaxSent)
	if err != nil {
		return nil, fmt.Errorf("list sent mail: %w", err)
	}

	records := contacts.Aggregate(summaries)
	r.Logger.Debug("aggregated contacts", "messages", len(summaries), "contacts", len(records))
	return records, nil
}

// Evaluate applies the overdue predicate to every record using the current time
func (r *Refresher) Evaluate(records []contacts.ContactRecord, frequency int) []Entry {
	now := r.Now()
	entries := make([]Entry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, Entry{
			ContactRecord: rec,
			DaysSince:     contacts.DaysBetween(now, rec.LastContactAt),
			Overdue:       contacts.IsOverdue(rec, frequency, now),
		})
	}
	return entries
}

// Remind publishes a reminder for each overdue entry and returns how many
// were sent. Publish failures are logged and skipped.
func (r *Refresher) Remind(ctx context.Context, account string, entries []Entry, frequency int) int {
	if r.Notifier == nil || account == "" {
		return 0
	}

	sent := 0
	for _, e := range entries {
		if !e.Overdue {
			continue
		}
		if err := r.Notifier.PublishOverdue(ctx, account, e.ContactRecord, e.DaysSince, frequency); err != nil {
			r.Logger.Warn("publish reminder", "email", e.Email, "error", err)
			continue
		}
		sent++
	}
	return sent
}
