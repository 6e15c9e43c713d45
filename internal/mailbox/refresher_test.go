package mailbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/nalgeon/be"

	"github.com/Martian-dev/followup-reminder/internal/contacts"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeProvider struct {
	summaries []contacts.MessageSummary
	err       error
	max       int64
}

func (f *fakeProvider) ListSent(_ context.Context, max int64) ([]contacts.MessageSummary, error) {
	f.max = max
	return f.summaries, f.err
}

func (f *fakeProvider) MessageBody(context.Context, string) (string, error) {
	return "", nil
}

type recordingNotifier struct {
	published []string
	failFor   string
}

func (n *recordingNotifier) PublishOverdue(_ context.Context, account string, rec contacts.ContactRecord, _, _ int) error {
	if rec.Email == n.failFor {
		return errors.New("broker down")
	}
	n.published = append(n.published, account+"/"+rec.Email)
	return nil
}

func newTestRefresher(n Notifier) *Refresher {
	r := NewRefresher(n, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r.Now = func() time.Time { return now }
	return r
}

func TestRefresherContacts(t *testing.T) {
	p := &fakeProvider{summaries: []contacts.MessageSummary{
		{ID: "m1", To: "a@x.com, b@x.com", SentAt: now.Add(-10 * 24 * time.Hour)},
		{ID: "m2", To: "b@x.com", SentAt: now.Add(-24 * time.Hour)},
	}}

	records, err := newTestRefresher(nil).Contacts(context.Background(), p)
	be.Err(t, err, nil)
	be.Equal(t, p.max, int64(MaxSent))
	be.Equal(t, len(records), 2)
	be.Equal(t, records[1].LastMessageID, "m2")
}

func TestRefresherContactsPropagatesAuthError(t *testing.T) {
	p := &fakeProvider{err: ErrAuthRequired}

	_, err := newTestRefresher(nil).Contacts(context.Background(), p)
	be.Err(t, err, ErrAuthRequired)
}

func TestRefresherEvaluate(t *testing.T) {
	records := []contacts.ContactRecord{
		{Email: "old@x.com", LastContactAt: now.Add(-10 * 24 * time.Hour)},
		{Email: "new@x.com", LastContactAt: now.Add(-2 * time.Hour)},
	}

	entries := newTestRefresher(nil).Evaluate(records, 7)
	be.Equal(t, len(entries), 2)
	be.Equal(t, entries[0].DaysSince, 10)
	be.True(t, entries[0].Overdue)
	be.Equal(t, entries[1].DaysSince, 1)
	be.True(t, !entries[1].Overdue)
}

func TestRefresherRemind(t *testing.T) {
	n := &recordingNotifier{failFor: "broken@x.com"}
	r := newTestRefresher(n)

	entries := r.Evaluate([]contacts.ContactRecord{
		{Email: "late@x.com", LastContactAt: now.Add(-30 * 24 * time.Hour)},
		{Email: "fresh@x.com", LastContactAt: now},
		{Email: "broken@x.com", LastContactAt: now.Add(-30 * 24 * time.Hour)},
	}, 14)

	be.Equal(t, r.Remind(context.Background(), "acct", entries, 14), 1)
	be.Equal(t, n.published, []string{"acct/late@x.com"})

	be.Equal(t, r.Remind(context.Background(), "", entries, 14), 0)
	be.Equal(t, newTestRefresher(nil).Remind(context.Background(), "acct", entries, 14), 0)
}
