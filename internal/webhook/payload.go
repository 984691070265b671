package webhook

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/vlogdigital3/agendia-de-viagem/internal/domain"
)

// evolutionPayload mirrors the gateway's messages.upsert webhook body.
// Only the fields the pipeline consumes are mapped.
type evolutionPayload struct {
	Instance string `json:"instance"`
	Data     struct {
		Key struct {
			RemoteJid string `json:"remoteJid"`
			FromMe    bool   `json:"fromMe"`
		} `json:"key"`
		PushName string `json:"pushName"`
		Message  struct {
			Conversation        string `json:"conversation"`
			ExtendedTextMessage *struct {
				Text string `json:"text"`
			} `json:"extendedTextMessage"`
			ImageMessage *struct {
				Caption string `json:"caption"`
			} `json:"imageMessage"`
		} `json:"message"`
	} `json:"data"`
}

// ParseInbound decodes one webhook delivery into an InboundEvent. An error
// here is the only condition that surfaces a non-200 to the gateway.
func ParseInbound(r io.Reader) (domain.InboundEvent, error) {
	var p evolutionPayload
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return domain.InboundEvent{}, fmt.Errorf("decode webhook payload: %w", err)
	}
	if p.Data.Key.RemoteJid == "" {
		return domain.InboundEvent{}, fmt.Errorf("webhook payload missing remoteJid")
	}

	jid := p.Data.Key.RemoteJid
	phone, _, _ := strings.Cut(jid, "@")

	text := p.Data.Message.Conversation
	if text == "" && p.Data.Message.ExtendedTextMessage != nil {
		text = p.Data.Message.ExtendedTextMessage.Text
	}
	if text == "" && p.Data.Message.ImageMessage != nil {
		text = p.Data.Message.ImageMessage.Caption
	}

	return domain.InboundEvent{
		InstanceName: p.Instance,
		RemoteJid:    jid,
		Phone:        phone,
		IsGroup:      strings.HasSuffix(jid, "@g.us"),
		IsFromSelf:   p.Data.Key.FromMe,
		SenderName:   p.Data.PushName,
		Text:         strings.TrimSpace(text),
		HasMedia:     p.Data.Message.ImageMessage != nil,
	}, nil
}
