// Package services – Status Engine
//
// Applies provider delivery-status codes to a message's lifecycle state.
// Provider codes (numeric for zapmail, symbolic for evolution) map through
// one fixed table to the five canonical states; an update is applied only
// when the new state is not behind the current one in the total order
// QUEUED(0) < SENT(1) < DELIVERED(2) < READ(3). FAILED is always accepted
// and short-circuits any state. A duplicate or out-of-order webhook can
// therefore never regress a message's visible status.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/legalflow/messaging-backend/internal/domain"
	"github.com/legalflow/messaging-backend/internal/repo"
)

// statusCodeMap folds both providers' vocabularies into the canonical
// states. zapmail sends ack integers, evolution symbolic strings; neither
// set overlaps, so one table serves both.
var statusCodeMap = map[string]string{
	// zapmail ack codes
	"0":  domain.StatusQueued, // clock/retry, no ack yet
	"1":  domain.StatusQueued, // accepted by gateway
	"2":  domain.StatusSent,   // server ack
	"3":  domain.StatusDelivered,
	"4":  domain.StatusRead,
	"5":  domain.StatusRead, // played (voice notes) collapses into read
	"-1": domain.StatusFailed,

	// evolution symbolic statuses
	"PENDING":      domain.StatusQueued,
	"SERVER_ACK":   domain.StatusSent,
	"DELIVERY_ACK": domain.StatusDelivered,
	"READ":         domain.StatusRead,
	"PLAYED":       domain.StatusRead,
	"ERROR":        domain.StatusFailed,
}

// StatusEngine applies delivery-status transitions.
type StatusEngine struct {
	DB  *gorm.DB
	Log zerolog.Logger
}

// Outcome reports what Apply did, for dispatcher logging and fan-out.
type Outcome struct {
	// Message is nil when the update matched nothing or was discarded.
	Message *domain.Message
	// Applied is true when the row was updated.
	Applied bool
}

// Apply maps a provider status code and applies it to the message identified
// by providerMessageID under the scope's account.
//
// No-op cases (never errors):
//   - unknown provider code: dropped, logged at info
//   - no message with that provider id: the insert may still be in flight on
//     a concurrent call, and the provider will resend; dropped, logged
//   - stale transition (new state behind current): discarded
func (e *StatusEngine) Apply(ctx context.Context, scope Scope, providerMessageID, code string, at time.Time) (*Outcome, error) {
	tr := otel.Tracer("services/StatusEngine")
	ctx, span := tr.Start(ctx, "Apply",
		trace.WithAttributes(
			attribute.String("message.provider_id", providerMessageID),
			attribute.String("status.code", code),
		),
	)
	defer span.End()

	next, ok := statusCodeMap[code]
	if !ok {
		e.Log.Info().Str("code", code).Msg("status: unknown provider code, dropped")
		return &Outcome{}, nil
	}

	msg, err := repo.GetMessageByProviderID(ctx, e.DB, scope.AccountID, providerMessageID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			e.Log.Info().
				Str("provider_message_id", providerMessageID).
				Str("code", code).
				Msg("status: no matching message, dropped")
			return &Outcome{}, nil
		}
		return nil, err
	}
	if msg.TenantID != scope.TenantID {
		// Should be unreachable: the account scope derives from the same
		// webhook. Fail closed regardless.
		return nil, ErrCrossTenant
	}

	updates, applied := transition(msg, next, at)
	if !applied {
		return &Outcome{Message: msg}, nil
	}
	if err := repo.UpdateMessageStatus(ctx, e.DB, msg.ID, updates); err != nil {
		return nil, err
	}
	msg.Status = next
	return &Outcome{Message: msg, Applied: true}, nil
}

// transition computes the column updates for moving msg to next at the given
// time, or applied=false when the move would regress the lifecycle.
func transition(msg *domain.Message, next string, at time.Time) (map[string]any, bool) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	if next == domain.StatusFailed {
		return map[string]any{
			"status":      domain.StatusFailed,
			"fail_reason": "provider reported delivery failure",
		}, true
	}

	curRank, curOK := domain.StatusRank(msg.Status)
	nextRank, nextOK := domain.StatusRank(next)
	if !nextOK {
		return nil, false
	}
	// A FAILED message is terminal (curOK=false): nothing ranked may follow.
	if !curOK || nextRank <= curRank {
		return nil, false
	}

	updates := map[string]any{"status": next}
	switch next {
	case domain.StatusSent:
		updates["sent_at"] = at
	case domain.StatusDelivered:
		updates["delivered_at"] = at
	case domain.StatusRead:
		updates["read_at"] = at
		// A read message was necessarily delivered; fill the gap when the
		// DELIVERED webhook was lost or arrived out of order.
		if msg.DeliveredAt == nil {
			updates["delivered_at"] = at
		}
	}
	return updates, true
}
