// Package gateway normalizes webhook payloads from the supported
// messaging-gateway providers. This file implements the decoder for the
// "zapmail" provider: an envelope of {event, data} where data carries typed
// content sub-objects and numeric ack codes.
package gateway

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/legalflow/messaging-backend/internal/domain"
)

// ProviderZapmail is the URL tag for the zapmail-shaped provider.
const ProviderZapmail = "zapmail"

// zapmailEnvelope is the outer payload shape: {"event": "...", "data": {...}}.
type zapmailEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// zapmailData covers both message and ack payloads; which fields are set
// depends on the event.
type zapmailData struct {
	ID        string `json:"id"`
	MessageID string `json:"messageId"`
	ChatID    string `json:"chatId"`
	FromMe    bool   `json:"fromMe"`
	Sender    struct {
		Pushname string `json:"pushname"`
	} `json:"sender"`
	Timestamp int64 `json:"timestamp"`
	Ack       *int  `json:"ack"` // present on status events

	Text *struct {
		Body string `json:"body"`
	} `json:"text"`
	Image    *zapmailMedia `json:"image"`
	Video    *zapmailMedia `json:"video"`
	Audio    *zapmailMedia `json:"audio"`
	Document *zapmailMedia `json:"document"`
}

type zapmailMedia struct {
	URL      string `json:"url"`
	Caption  string `json:"caption"`
	MimeType string `json:"mimeType"`
	Length   int64  `json:"length"`
	Seconds  int    `json:"seconds"`
	FileName string `json:"fileName"`
}

// ZapmailDecoder decodes zapmail webhook envelopes.
type ZapmailDecoder struct{}

// NewZapmailDecoder returns the decoder for the zapmail provider.
func NewZapmailDecoder() *ZapmailDecoder { return &ZapmailDecoder{} }

// Provider implements Decoder.
func (*ZapmailDecoder) Provider() string { return ProviderZapmail }

// Decode implements Decoder. Classification: an envelope whose event name
// matches the ack pattern, or whose data carries an ack code, is a status
// update; an envelope with a typed content sub-object is a new message;
// everything else is ignored.
func (*ZapmailDecoder) Decode(raw []byte) (*InboundEvent, error) {
	var env zapmailEnvelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
		return nil, ErrMalformed
	}
	var d zapmailData
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return nil, ErrMalformed
		}
	}

	ev := strings.ToLower(env.Event)
	switch {
	case strings.Contains(ev, "ack") || strings.Contains(ev, "status"):
		if d.Ack == nil {
			return nil, ErrIgnored
		}
		id := d.MessageID
		if id == "" {
			id = d.ID
		}
		if id == "" {
			return nil, ErrIgnored
		}
		return &InboundEvent{
			Kind: KindStatusUpdate,
			Status: &StatusUpdate{
				ProviderMessageID: id,
				Code:              strconv.Itoa(*d.Ack),
				Timestamp:         unixTime(d.Timestamp),
			},
		}, nil

	case ev == "message" || ev == "message.received" || ev == "onmessage":
		msg := &NewMessage{
			ExternalThreadKey: d.ChatID,
			FromMe:            d.FromMe,
			ProviderMessageID: d.ID,
			SenderDisplayName: d.Sender.Pushname,
			Timestamp:         unixTime(d.Timestamp),
		}
		if msg.ProviderMessageID == "" || msg.ExternalThreadKey == "" {
			return nil, ErrIgnored
		}
		switch {
		case d.Text != nil:
			msg.Type = domain.TypeText
			msg.Text = d.Text.Body
		case d.Image != nil:
			fillMedia(msg, domain.TypeImage, d.Image)
		case d.Video != nil:
			fillMedia(msg, domain.TypeVideo, d.Video)
		case d.Audio != nil:
			fillMedia(msg, domain.TypeAudio, d.Audio)
		case d.Document != nil:
			fillMedia(msg, domain.TypeDocument, d.Document)
		default:
			// Stickers, reactions, polls: nothing we persist.
			return nil, ErrIgnored
		}
		return &InboundEvent{Kind: KindNewMessage, Message: msg}, nil
	}

	return nil, ErrIgnored
}

func fillMedia(msg *NewMessage, typ string, m *zapmailMedia) {
	msg.Type = typ
	msg.MediaURL = m.URL
	msg.Caption = m.Caption
	msg.MimeType = m.MimeType
	msg.ByteLength = m.Length
	msg.DurationSeconds = m.Seconds
	msg.FileName = m.FileName
}
