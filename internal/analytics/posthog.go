package analytics

import (
	"log/slog"

	"github.com/posthog/posthog-go"
)

const (
	EventLoginCompleted   = "login_completed"
	EventContactsLoaded   = "contacts_loaded"
	EventMessagePreviewed = "message_previewed"
)

// Tracker records product usage events
type Tracker interface {
	Track(distinctID, event string, props map[string]any)
	Close() error
}

// New returns a PostHog-backed tracker, or a no-op one when apiKey is empty
func New(apiKey, endpoint string, logger *slog.Logger) (Tracker, error) {
	if apiKey == "" {
		return Nop{}, nil
	}

	cfg := posthog.Config{}
	if endpoint != "" {
		cfg.Endpoint = endpoint
	}
	client, err := posthog.NewWithConfig(apiKey, cfg)
	if err != nil {
		return nil, err
	}
	return &PostHog{client: client, logger: logger}, nil
}

// PostHog sends events to PostHog
type PostHog struct {
	client posthog.Client
	logger *slog.Logger
}

func (p *PostHog) Track(distinctID, event string, props map[string]any) {
	if distinctID == "" {
		distinctID = "anonymous"
	}
	properties := posthog.NewProperties()
	for k, v := range props {
		properties.Set(k, v)
	}
	err := p.client.Enqueue(posthog.Capture{
		DistinctId: distinctID,
		Event:      event,
		Properties: properties,
	})
	if err != nil {
		p.logger.Warn("enqueue analytics event", "event", event, "error", err)
	}
}

func (p *PostHog) Close() error {
	return p.client.Close()
}

// Nop discards events
type Nop struct{}

func (Nop) Track(string, string, map[string]any) {}

func (Nop) Close() error { return nil }
