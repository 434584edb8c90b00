// Package gateway normalizes webhook payloads from the supported
// messaging-gateway providers. This file implements the decoder for the
// "evolution" provider: an envelope of {event, instance, data} where data
// nests a key block (chat id, message id, fromMe) and a message block with
// per-type content, and status updates use symbolic strings.
package gateway

import (
	"encoding/json"
	"strings"

	"github.com/legalflow/messaging-backend/internal/domain"
)

// ProviderEvolution is the URL tag for the evolution-shaped provider.
const ProviderEvolution = "evolution"

type evolutionEnvelope struct {
	Event    string          `json:"event"`
	Instance string          `json:"instance"`
	Data     json.RawMessage `json:"data"`
}

type evolutionKey struct {
	RemoteJID string `json:"remoteJid"`
	FromMe    bool   `json:"fromMe"`
	ID        string `json:"id"`
}

type evolutionData struct {
	Key              evolutionKey `json:"key"`
	PushName         string       `json:"pushName"`
	Status           string       `json:"status"` // status updates
	MessageTimestamp int64        `json:"messageTimestamp"`
	Message          *struct {
		Conversation string `json:"conversation"`
		ExtendedText *struct {
			Text string `json:"text"`
		} `json:"extendedTextMessage"`
		Image    *evolutionMedia `json:"imageMessage"`
		Video    *evolutionMedia `json:"videoMessage"`
		Audio    *evolutionMedia `json:"audioMessage"`
		Document *evolutionMedia `json:"documentMessage"`
	} `json:"message"`
}

type evolutionMedia struct {
	URL      string `json:"url"`
	Caption  string `json:"caption"`
	MimeType string `json:"mimetype"`
	Length   int64  `json:"fileLength"`
	Seconds  int    `json:"seconds"`
	FileName string `json:"fileName"`
}

// EvolutionDecoder decodes evolution webhook envelopes.
type EvolutionDecoder struct{}

// NewEvolutionDecoder returns the decoder for the evolution provider.
func NewEvolutionDecoder() *EvolutionDecoder { return &EvolutionDecoder{} }

// Provider implements Decoder.
func (*EvolutionDecoder) Provider() string { return ProviderEvolution }

// Decode implements Decoder.
func (*EvolutionDecoder) Decode(raw []byte) (*InboundEvent, error) {
	var env evolutionEnvelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
		return nil, ErrMalformed
	}
	var d evolutionData
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return nil, ErrMalformed
		}
	}

	switch strings.ToLower(env.Event) {
	case "messages.update":
		if d.Key.ID == "" || d.Status == "" {
			return nil, ErrIgnored
		}
		return &InboundEvent{
			Kind: KindStatusUpdate,
			Status: &StatusUpdate{
				ProviderMessageID: d.Key.ID,
				Code:              strings.ToUpper(d.Status),
				Timestamp:         unixTime(d.MessageTimestamp),
			},
		}, nil

	case "messages.upsert":
		if d.Key.ID == "" || d.Key.RemoteJID == "" || d.Message == nil {
			return nil, ErrIgnored
		}
		msg := &NewMessage{
			ExternalThreadKey: d.Key.RemoteJID,
			FromMe:            d.Key.FromMe,
			ProviderMessageID: d.Key.ID,
			SenderDisplayName: d.PushName,
			Timestamp:         unixTime(d.MessageTimestamp),
		}
		m := d.Message
		switch {
		case m.Conversation != "":
			msg.Type = domain.TypeText
			msg.Text = m.Conversation
		case m.ExtendedText != nil:
			msg.Type = domain.TypeText
			msg.Text = m.ExtendedText.Text
		case m.Image != nil:
			fillEvolutionMedia(msg, domain.TypeImage, m.Image)
		case m.Video != nil:
			fillEvolutionMedia(msg, domain.TypeVideo, m.Video)
		case m.Audio != nil:
			fillEvolutionMedia(msg, domain.TypeAudio, m.Audio)
		case m.Document != nil:
			fillEvolutionMedia(msg, domain.TypeDocument, m.Document)
		default:
			return nil, ErrIgnored
		}
		return &InboundEvent{Kind: KindNewMessage, Message: msg}, nil
	}

	// connection.update, presence.update, contacts.upsert, etc.
	return nil, ErrIgnored
}

func fillEvolutionMedia(msg *NewMessage, typ string, m *evolutionMedia) {
	msg.Type = typ
	msg.MediaURL = m.URL
	msg.Caption = m.Caption
	msg.MimeType = m.MimeType
	msg.ByteLength = m.Length
	msg.DurationSeconds = m.Seconds
	msg.FileName = m.FileName
}
