// Package services – Dispatcher
//
// The dispatcher is the webhook entry point: it matches the provider
// instance to the tenant's account, normalizes the payload, and branches to
// the status engine or the resolve-persist-relay path. Every downstream step
// is idempotent (contact/thread get-or-create, provider-message-id unique
// index, monotonic status), so provider redeliveries never duplicate side
// effects. The dispatcher itself keeps no state between calls beyond a
// read-through account cache with TTL invalidation; the database remains the
// authority.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/legalflow/messaging-backend/internal/dispatchq"
	"github.com/legalflow/messaging-backend/internal/domain"
	"github.com/legalflow/messaging-backend/internal/fanout"
	"github.com/legalflow/messaging-backend/internal/gateway"
	"github.com/legalflow/messaging-backend/internal/repo"
)

// Ack outcomes reported to the webhook handler. All of them acknowledge the
// provider with HTTP 200; the distinction feeds logs and metrics.
const (
	AckProcessed = "processed"
	AckDuplicate = "duplicate"
	AckIgnored   = "ignored"
	AckDropped   = "dropped"
)

// Ack is the dispatcher's answer for one webhook call.
type Ack struct {
	Outcome   string `json:"outcome"`
	MessageID string `json:"message_id,omitempty"`
}

// Dispatcher orchestrates the ingestion pipeline.
type Dispatcher struct {
	DB       *gorm.DB
	Registry *gateway.Registry
	Resolver *ContactResolver
	Status   *StatusEngine
	Media    *MediaRelay
	Guard    *Guard
	Fanout   fanout.Publisher
	Queue    dispatchq.Publisher
	Log      zerolog.Logger

	// AsyncMedia relays media on a separate goroutine after the message
	// commit. Tests leave it false for determinism.
	AsyncMedia bool

	// AccountCacheTTL bounds how long an instance→account mapping is served
	// from memory. Zero means 30 seconds.
	AccountCacheTTL time.Duration

	cacheMu sync.Mutex
	cache   map[string]accountCacheEntry
}

type accountCacheEntry struct {
	account *domain.Account
	fetched time.Time
}

// Handle processes one raw webhook body addressed to a provider instance.
//
// Error contract: gateway.ErrMalformed or an unknown provider tag surface as
// client errors; ErrAccountNotFound means no tenant has the instance
// configured; any other error is a fatal store failure for this one event
// (the provider retries, and retry is safe).
func (d *Dispatcher) Handle(ctx context.Context, providerTag, instanceName string, raw []byte) (*Ack, error) {
	tr := otel.Tracer("services/Dispatcher")
	ctx, span := tr.Start(ctx, "Handle",
		trace.WithAttributes(
			attribute.String("provider", providerTag),
			attribute.String("instance", instanceName),
		),
	)
	defer span.End()

	dec, ok := d.Registry.Decoder(providerTag)
	if !ok {
		return nil, gateway.ErrMalformed
	}

	account, err := d.accountByInstance(ctx, instanceName)
	if err != nil {
		return nil, err
	}
	scope := Scope{TenantID: account.TenantID, AccountID: account.ID}

	ev, err := dec.Decode(raw)
	if err != nil {
		if errors.Is(err, gateway.ErrIgnored) {
			d.Log.Info().
				Str("provider", providerTag).
				Str("instance", instanceName).
				Msg("webhook: event ignored")
			return &Ack{Outcome: AckIgnored}, nil
		}
		return nil, err
	}

	switch ev.Kind {
	case gateway.KindStatusUpdate:
		return d.handleStatus(ctx, scope, ev.Status)
	case gateway.KindNewMessage:
		return d.handleMessage(ctx, scope, account, ev.Message)
	default:
		return &Ack{Outcome: AckIgnored}, nil
	}
}

func (d *Dispatcher) handleStatus(ctx context.Context, scope Scope, su *gateway.StatusUpdate) (*Ack, error) {
	out, err := d.Status.Apply(ctx, scope, su.ProviderMessageID, su.Code, su.Timestamp)
	if err != nil {
		return nil, err
	}
	if out.Message == nil {
		return &Ack{Outcome: AckDropped}, nil
	}
	if out.Applied {
		d.publish(ctx, fanout.KindMessageUpdated, out.Message)
		return &Ack{Outcome: AckProcessed, MessageID: out.Message.ID}, nil
	}
	return &Ack{Outcome: AckDuplicate, MessageID: out.Message.ID}, nil
}

func (d *Dispatcher) handleMessage(ctx context.Context, scope Scope, account *domain.Account, nm *gateway.NewMessage) (*Ack, error) {
	res, err := d.Resolver.Resolve(ctx, account, nm.ExternalThreadKey, nm.SenderDisplayName)
	if err != nil {
		if errors.Is(err, ErrInvalidPhone) {
			// Group chats and broadcast identities are not conversations we
			// track; acknowledge and move on.
			d.Log.Info().Str("key", nm.ExternalThreadKey).Msg("webhook: no phone identity, ignored")
			return &Ack{Outcome: AckIgnored}, nil
		}
		return nil, err
	}

	msg := buildMessage(scope, account, res, nm)
	if err := repo.CreateMessage(ctx, d.DB, msg); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			// Redelivered webhook: the first delivery already persisted it.
			d.Log.Info().
				Str("provider_message_id", nm.ProviderMessageID).
				Msg("webhook: duplicate message delivery")
			return &Ack{Outcome: AckDuplicate}, nil
		}
		return nil, err
	}

	if err := repo.TouchThread(ctx, d.DB, res.Thread.ID, msg.Timestamp, !nm.FromMe); err != nil {
		d.Log.Warn().Err(err).Str("thread_id", res.Thread.ID).Msg("thread touch failed")
	}

	if nm.MediaURL != "" && msg.HasMedia() {
		if d.AsyncMedia {
			go d.Media.Attach(context.WithoutCancel(ctx), msg, nm.MediaURL)
		} else {
			d.Media.Attach(ctx, msg, nm.MediaURL)
		}
	}

	if res.ThreadCreated {
		d.publishThread(ctx, res.Thread)
	}
	d.publish(ctx, fanout.KindMessageCreated, msg)

	return &Ack{Outcome: AckProcessed, MessageID: msg.ID}, nil
}

// Send persists a user-originated OUTBOUND message as QUEUED and places it
// on the dispatch queue for the external sender. The provider's delivery
// receipts later advance its status through the normal webhook path.
func (d *Dispatcher) Send(ctx context.Context, scope Scope, threadID, text string) (*domain.Message, error) {
	tr := otel.Tracer("services/Dispatcher")
	ctx, span := tr.Start(ctx, "Send",
		trace.WithAttributes(attribute.String("thread.id", threadID)),
	)
	defer span.End()

	if text == "" {
		return nil, ErrEmptyBody
	}

	thread, err := d.Guard.Thread(ctx, scope, threadID)
	if err != nil {
		return nil, err
	}
	if thread.Status != domain.ThreadActive {
		return nil, ErrThreadClosed
	}

	account, err := d.Guard.Account(ctx, scope, thread.AccountID)
	if err != nil {
		return nil, err
	}
	contact, err := repo.GetContact(ctx, d.DB, thread.ContactID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	msg := &domain.Message{
		TenantID:  thread.TenantID,
		ThreadID:  thread.ID,
		ContactID: thread.ContactID,
		AccountID: thread.AccountID,
		// The sender rewrites this with the provider's id once the send API
		// returns; until then the internal id keeps the unique index happy.
		ProviderMessageID: "out-" + uuid.NewString(),
		Direction:         domain.DirectionOutbound,
		Type:              domain.TypeText,
		Status:            domain.StatusQueued,
		Content:           text,
		Timestamp:         now,
	}
	if err := repo.CreateMessage(ctx, d.DB, msg); err != nil {
		return nil, err
	}
	if err := repo.TouchThread(ctx, d.DB, thread.ID, now, false); err != nil {
		d.Log.Warn().Err(err).Str("thread_id", thread.ID).Msg("thread touch failed")
	}

	env := dispatchq.Envelope{
		Meta: dispatchq.Meta{
			ID:            uuid.NewString(),
			CorrelationID: msg.ID,
			OccurredAt:    now,
		},
		Data: dispatchq.OutboundSend{
			TenantID:     thread.TenantID,
			AccountID:    account.ID,
			InstanceName: account.InstanceName,
			Provider:     account.Provider,
			MessageID:    msg.ID,
			ToPhone:      contact.DisplayPhone,
			Text:         text,
		},
	}
	if err := d.Queue.Publish(ctx, dispatchq.KeyMessageSend, env); err != nil {
		// The message stays QUEUED; a sweeper or manual retry can re-enqueue.
		d.Log.Error().Err(err).Str("message_id", msg.ID).Msg("dispatch queue publish failed")
	}

	d.publish(ctx, fanout.KindMessageCreated, msg)
	return msg, nil
}

// buildMessage maps a normalized event onto the persistence model. Inbound
// messages arrive already delivered to us, so they enter at DELIVERED;
// provider echoes of our own sends enter at SENT and advance via receipts.
func buildMessage(scope Scope, account *domain.Account, res *Resolution, nm *gateway.NewMessage) *domain.Message {
	msg := &domain.Message{
		TenantID:          scope.TenantID,
		ThreadID:          res.Thread.ID,
		ContactID:         res.Contact.ID,
		AccountID:         account.ID,
		ProviderMessageID: nm.ProviderMessageID,
		Type:              nm.Type,
		Content:           nm.Text,
		Caption:           nm.Caption,
		FileName:          nm.FileName,
		MimeType:          nm.MimeType,
		Timestamp:         nm.Timestamp,
	}
	if nm.DurationSeconds > 0 {
		d := nm.DurationSeconds
		msg.DurationSeconds = &d
	}
	if nm.FromMe {
		msg.Direction = domain.DirectionOutbound
		msg.Status = domain.StatusSent
		now := nm.Timestamp
		msg.SentAt = &now
	} else {
		msg.Direction = domain.DirectionInbound
		msg.Status = domain.StatusDelivered
		now := nm.Timestamp
		msg.DeliveredAt = &now
	}
	if msg.Content == "" && msg.HasMedia() {
		// Text-only fallback when the relay cannot deliver the binary.
		msg.Content = placeholderFor(msg.Type)
	}
	return msg
}

func placeholderFor(typ string) string {
	switch typ {
	case domain.TypeImage:
		return "[imagem]"
	case domain.TypeVideo:
		return "[vídeo]"
	case domain.TypeAudio:
		return "[áudio]"
	case domain.TypeDocument:
		return "[documento]"
	default:
		return "[mensagem]"
	}
}

// accountByInstance serves the instance→account mapping through a TTL
// cache. The cache is read-through only; the row in the store stays the
// authority and entries are simply refetched after the TTL.
func (d *Dispatcher) accountByInstance(ctx context.Context, instanceName string) (*domain.Account, error) {
	ttl := d.AccountCacheTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	d.cacheMu.Lock()
	if d.cache == nil {
		d.cache = make(map[string]accountCacheEntry)
	}
	if e, ok := d.cache[instanceName]; ok && time.Since(e.fetched) < ttl {
		d.cacheMu.Unlock()
		return e.account, nil
	}
	d.cacheMu.Unlock()

	account, err := repo.GetAccountByInstance(ctx, d.DB, instanceName)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}

	d.cacheMu.Lock()
	d.cache[instanceName] = accountCacheEntry{account: account, fetched: time.Now()}
	d.cacheMu.Unlock()
	return account, nil
}

// InvalidateAccount drops a cached instance mapping, e.g. after the account
// is reconfigured.
func (d *Dispatcher) InvalidateAccount(instanceName string) {
	d.cacheMu.Lock()
	delete(d.cache, instanceName)
	d.cacheMu.Unlock()
}

func (d *Dispatcher) publish(ctx context.Context, kind string, msg *domain.Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	ev := fanout.Event{
		Kind:       kind,
		TenantID:   msg.TenantID,
		ThreadID:   msg.ThreadID,
		Payload:    payload,
		OccurredAt: time.Now().UTC(),
	}
	if err := d.Fanout.Publish(ctx, fanout.ChannelKey(msg.TenantID), ev); err != nil {
		d.Log.Warn().Err(err).Str("thread_id", msg.ThreadID).Msg("fanout publish failed")
	}
}

func (d *Dispatcher) publishThread(ctx context.Context, t *domain.Thread) {
	payload, err := json.Marshal(t)
	if err != nil {
		return
	}
	ev := fanout.Event{
		Kind:       fanout.KindThreadUpdated,
		TenantID:   t.TenantID,
		ThreadID:   t.ID,
		Payload:    payload,
		OccurredAt: time.Now().UTC(),
	}
	if err := d.Fanout.Publish(ctx, fanout.ChannelKey(t.TenantID), ev); err != nil {
		d.Log.Warn().Err(err).Str("thread_id", t.ID).Msg("fanout publish failed")
	}
}
