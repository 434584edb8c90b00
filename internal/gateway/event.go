// Package gateway normalizes webhook payloads from the supported
// messaging-gateway providers into one canonical event model. Each provider
// ships its own payload layout; a Decoder per provider turns the raw JSON
// into an InboundEvent, so adding a provider means adding one decoder, not
// branching deeper into the pipeline.
package gateway

import (
	"errors"
	"time"
)

// EventKind discriminates the InboundEvent union.
type EventKind int

const (
	// KindStatusUpdate is a delivery-status change for a known message.
	KindStatusUpdate EventKind = iota + 1
	// KindNewMessage is a new inbound (or echoed outbound) message.
	KindNewMessage
)

// ErrIgnored marks a payload the decoder recognized but deliberately
// produces no event for (presence updates, group metadata, unknown event
// names). The dispatcher still acknowledges the provider so it does not
// retry-storm payloads we will never consume.
var ErrIgnored = errors.New("gateway: event ignored")

// ErrMalformed marks a payload that could not be parsed at all. The
// dispatcher answers these with a client error.
var ErrMalformed = errors.New("gateway: malformed payload")

// StatusUpdate reports a provider-side delivery-status change.
// Code is provider-specific; the status engine owns the mapping to the
// canonical lifecycle states.
type StatusUpdate struct {
	ProviderMessageID string
	Code              string
	Timestamp         time.Time
}

// NewMessage is a normalized inbound message. Exactly the content fields
// matching Type are set; the rest stay zero.
type NewMessage struct {
	// ExternalThreadKey is the provider's chat identifier, usually the
	// counterparty phone plus a provider suffix (e.g. "5511999990000@c.us").
	ExternalThreadKey string
	// FromMe is true for outbound messages echoed back by the provider.
	FromMe            bool
	Type              string // domain.Type* values
	Text              string
	Caption           string
	MediaURL          string
	MimeType          string
	FileName          string
	ByteLength        int64
	DurationSeconds   int
	ProviderMessageID string
	SenderDisplayName string
	Timestamp         time.Time
}

// InboundEvent is the tagged union produced by decoders: exactly one of
// Status or Message is non-nil, per Kind.
type InboundEvent struct {
	Kind    EventKind
	Status  *StatusUpdate
	Message *NewMessage
}

// Decoder turns one provider's raw webhook body into a canonical event.
type Decoder interface {
	// Provider returns the tag this decoder handles (the :provider path
	// segment of the webhook URL).
	Provider() string
	// Decode parses raw. It returns ErrIgnored for recognized-but-unused
	// events and ErrMalformed for unparseable bodies.
	Decode(raw []byte) (*InboundEvent, error)
}

// Registry maps provider tags to decoders.
type Registry struct {
	decoders map[string]Decoder
}

// NewRegistry builds a registry with the default decoders for both
// supported providers.
func NewRegistry() *Registry {
	r := &Registry{decoders: make(map[string]Decoder)}
	r.Register(NewZapmailDecoder())
	r.Register(NewEvolutionDecoder())
	return r
}

// Register adds (or replaces) the decoder for its provider tag.
func (r *Registry) Register(d Decoder) {
	r.decoders[d.Provider()] = d
}

// Decoder returns the decoder for a provider tag, or false when the tag is
// unknown.
func (r *Registry) Decoder(provider string) (Decoder, bool) {
	d, ok := r.decoders[provider]
	return d, ok
}

// unixTime converts a provider's second-resolution epoch stamp, falling back
// to now when the provider omitted it.
func unixTime(sec int64) time.Time {
	if sec <= 0 {
		return time.Now().UTC()
	}
	return time.Unix(sec, 0).UTC()
}
