package contacts

import (
	"strings"
	"time"
)

const secondsPerDay = 24 * 60 * 60

// Frequencies are the follow-up thresholds offered in the UI, in days.
var Frequencies = []int{1, 3, 7, 14, 30}

// MessageSummary is the minimal projection of a sent message needed for aggregation
type MessageSummary struct {
	ID string
	// To is the raw recipient header, comma-joined. Empty means no recipient field.
	To string
	// SentAt is zero when the message had no usable timestamp.
	SentAt time.Time
}

// ContactRecord holds the most recent outbound contact with one address
type ContactRecord struct {
	Email         string
	DisplayName   string
	LastContactAt time.Time
	LastMessageID string
}

// Aggregate reduces sent messages to one record per recipient address.
//
// Records come back in the order each address was first seen. For every address,
// LastContactAt is the latest SentAt among the messages addressed to it; on equal
// timestamps the earliest message in the input wins.
func Aggregate(messages []MessageSummary) []ContactRecord {
	index := make(map[string]int)
	var records []ContactRecord

	for _, m := range messages {
		if m.To == "" || m.SentAt.IsZero() {
			continue
		}

		for _, email := range splitRecipients(m.To) {
			i, seen := index[email]
			if !seen {
				index[email] = len(records)
				records = append(records, ContactRecord{
					Email:         email,
					DisplayName:   displayName(email),
					LastContactAt: m.SentAt,
					LastMessageID: m.ID,
				})
				continue
			}

			if m.SentAt.After(records[i].LastContactAt) {
				records[i].LastContactAt = m.SentAt
				records[i].LastMessageID = m.ID
			}
		}
	}

	return records
}

// splitRecipients splits a raw recipient header on commas.
// Tokens are trimmed but otherwise passed through unvalidated.
func splitRecipients(s string) []string {
	parts := strings.Split(s, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

// displayName is the local part of the address, or the whole token without an @.
func displayName(email string) string {
	name, _, _ := strings.Cut(email, "@")
	return name
}

// DaysBetween returns the absolute distance between two instants in days,
// rounding partial days up.
// The gap is taken from Unix seconds so it does not saturate like time.Duration.
func DaysBetween(now, then time.Time) int {
	secs := now.Unix() - then.Unix()
	nanos := int64(now.Nanosecond()) - int64(then.Nanosecond())
	if secs < 0 || (secs == 0 && nanos < 0) {
		secs, nanos = -secs, -nanos
	}
	if nanos < 0 {
		secs--
		nanos += int64(time.Second)
	}

	days := secs / secondsPerDay
	if secs%secondsPerDay != 0 || nanos > 0 {
		days++
	}
	return int(days)
}

// IsOverdue reports whether more than frequencyDays have passed since the last contact.
func IsOverdue(rec ContactRecord, frequencyDays int, now time.Time) bool {
	return DaysBetween(now, rec.LastContactAt) > frequencyDays
}

// ValidFrequency reports whether days can be used as a follow-up threshold.
func ValidFrequency(days int) bool {
	return days > 0
}
