// Package fanout publishes committed message inserts and updates to
// subscribed conversation views. Delivery is at-least-once; consumers are
// expected to be idempotent (the UI keys on message id). Events for the same
// thread are published in commit order; no ordering is guaranteed across
// threads.
package fanout

import (
	"context"
	"time"
)

// Event kinds published to conversation views.
const (
	KindMessageCreated = "message.created"
	KindMessageUpdated = "message.updated"
	KindThreadUpdated  = "thread.updated"
)

// Event is the unit pushed to subscribed views. Payload is the affected
// record serialized as JSON.
type Event struct {
	Kind       string    `json:"kind"`
	TenantID   string    `json:"tenant_id"`
	ThreadID   string    `json:"thread_id"`
	Payload    []byte    `json:"payload"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ChannelKey is the per-tenant channel events are published on.
func ChannelKey(tenantID string) string { return "threads:" + tenantID }

// Publisher pushes events to a channel. Implementations must tolerate
// concurrent calls; publish failures are logged, never propagated into the
// webhook pipeline.
type Publisher interface {
	Publish(ctx context.Context, channel string, ev Event) error
	Close() error
}

// Subscriber delivers events for a channel in publish order.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan Event, error)
}

// Noop discards every event; used when no fan-out backend is configured.
type Noop struct{}

// Publish implements Publisher.
func (Noop) Publish(context.Context, string, Event) error { return nil }

// Close implements Publisher.
func (Noop) Close() error { return nil }
