// Package dispatchq carries outbound sends from the API to the external
// sender component over a message queue. The pipeline only enqueues; the
// sender owns the provider's send API, and the delivery receipts it triggers
// flow back through the status webhooks.
package dispatchq

import (
	"context"
	"time"
)

// Routing keys on the dispatch exchange.
const (
	KeyMessageSend = "message.send"
)

// Meta identifies one enqueued envelope for tracing and consumer dedupe.
type Meta struct {
	ID            string    `json:"id"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Envelope is the JSON body placed on the queue.
type Envelope struct {
	Meta Meta `json:"meta"`
	Data any  `json:"data"`
}

// OutboundSend is the Data payload for KeyMessageSend: everything the sender
// needs to call the provider without touching our database.
type OutboundSend struct {
	TenantID     string `json:"tenant_id"`
	AccountID    string `json:"account_id"`
	InstanceName string `json:"instance_name"`
	Provider     string `json:"provider"`
	MessageID    string `json:"message_id"`
	ToPhone      string `json:"to_phone"`
	Text         string `json:"text"`
}

// Publisher enqueues envelopes by routing key.
type Publisher interface {
	Publish(ctx context.Context, key string, env Envelope) error
	Close() error
}

// Noop drops envelopes; used when no broker is configured (messages stay
// QUEUED until a sender is attached).
type Noop struct{}

// Publish implements Publisher.
func (Noop) Publish(context.Context, string, Envelope) error { return nil }

// Close implements Publisher.
func (Noop) Close() error { return nil }
