// Package notify fans ticket lifecycle events out to per-guild webhooks.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/modmail-service/internal/config"
	"github.com/spec-kit/modmail-service/internal/events"
)

const webhookTimeout = 5 * time.Second

// WebhookNotifier posts lifecycle events as JSON to a guild's configured
// webhook URL. Fire-and-forget: failures are logged, never retried, and
// never block the operation that raised the event.
type WebhookNotifier struct {
	client *http.Client
	guilds *config.GuildStore
	logger *zap.Logger
}

// NewWebhookNotifier creates the notifier.
func NewWebhookNotifier(guilds *config.GuildStore, logger *zap.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		client: &http.Client{Timeout: webhookTimeout},
		guilds: guilds,
		logger: logger,
	}
}

// Register subscribes the notifier to the lifecycle events worth announcing.
func (n *WebhookNotifier) Register(dispatcher events.Dispatcher) {
	for _, eventType := range []events.EventType{
		events.EventTicketOpened,
		events.EventTicketClaimed,
		events.EventTicketClosed,
		events.EventRatingRecorded,
	} {
		dispatcher.Subscribe(eventType, n.handle)
	}
}

func (n *WebhookNotifier) handle(ctx context.Context, event events.Event) error {
	cfg, ok := n.guilds.Get(event.GuildID)
	if !ok || cfg.WebhookURL == "" {
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		n.logger.Warn("failed to encode webhook payload",
			zap.String("event_id", event.ID), zap.Error(err))
		return nil
	}

	// Detached from the caller so a slow webhook cannot stall the
	// triggering lifecycle operation.
	go n.post(cfg.WebhookURL, event, payload)
	return nil
}

func (n *WebhookNotifier) post(url string, event events.Event, payload []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		n.logger.Warn("failed to build webhook request", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Warn("webhook delivery failed",
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID),
			zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		n.logger.Warn("webhook rejected event",
			zap.String("event_type", string(event.Type)),
			zap.Int("status", resp.StatusCode))
	}
}
