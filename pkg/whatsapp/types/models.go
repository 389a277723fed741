package types

import (
	"encoding/json"
	"strings"
	"time"
)

// SessionInfo is the session resource returned by the sessions API
type SessionInfo struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Me     *struct {
		ID       string `json:"id"`
		PushName string `json:"pushName"`
	} `json:"me,omitempty"`
}

// CreateSessionRequest creates and starts a named session
type CreateSessionRequest struct {
	Name  string `json:"name"`
	Start bool   `json:"start"`
}

// QRResponse is the raw pairing code returned by the auth API
type QRResponse struct {
	Mimetype string `json:"mimetype,omitempty"`
	Value    string `json:"value"`
}

// SendMessageRequest represents the request for sending text messages
type SendMessageRequest struct {
	ChatID  string `json:"chatId"`
	Text    string `json:"text"`
	Session string `json:"session"`
}

// SendMessageResponse is the normalized result of a send
type SendMessageResponse struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
}

// WAHAMessageResponse covers both engine shapes of a sent message ID:
// a plain string or an object carrying _serialized.
type WAHAMessageResponse struct {
	ID   json.RawMessage `json:"id"`
	Data *struct {
		ID *struct {
			Serialized string `json:"_serialized"`
		} `json:"id"`
	} `json:"_data,omitempty"`
}

// MessageID extracts the serialized message ID, or "" when absent
func (r *WAHAMessageResponse) MessageID() string {
	if len(r.ID) > 0 {
		var plain string
		if err := json.Unmarshal(r.ID, &plain); err == nil {
			return plain
		}
		var obj struct {
			Serialized string `json:"_serialized"`
		}
		if err := json.Unmarshal(r.ID, &obj); err == nil && obj.Serialized != "" {
			return obj.Serialized
		}
	}
	if r.Data != nil && r.Data.ID != nil {
		return r.Data.ID.Serialized
	}
	return ""
}

// WAHAErrorResponse represents error responses from WAHA API
type WAHAErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// StreamEnvelope is one frame on the event websocket
type StreamEnvelope struct {
	Event   string          `json:"event"`
	Session string          `json:"session"`
	Payload json.RawMessage `json:"payload"`
}

// SessionStatusPayload is the payload of session.status events
type SessionStatusPayload struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// StateChangePayload is the payload of state.change events
type StateChangePayload struct {
	State string `json:"state"`
}

// MessagePayload is the wire form of an inbound message event
type MessagePayload struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"`
	From      string `json:"from"`
	FromMe    bool   `json:"fromMe"`
	Body      string `json:"body"`
	HasMedia  bool   `json:"hasMedia"`
	Media     *struct {
		URL      string `json:"url"`
		Mimetype string `json:"mimetype"`
		Filename string `json:"filename"`
	} `json:"media,omitempty"`
	Location *struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"location,omitempty"`
	Data *struct {
		Type     string   `json:"type"`
		Caption  string   `json:"caption"`
		Filename string   `json:"filename"`
		Lat      *float64 `json:"lat"`
		Lng      *float64 `json:"lng"`
	} `json:"_data,omitempty"`
}

// InboundMessage is a received message in engine-independent form
type InboundMessage struct {
	ID          string
	From        string
	Body        string
	Caption     string
	Type        string
	FileName    string
	HasLocation bool
	Latitude    float64
	Longitude   float64
	// Timestamp is epoch seconds; 0 means absent
	Timestamp int64
	FromMe    bool
}

// IsGroup reports whether the sender is a group chat
func (m *InboundMessage) IsGroup() bool {
	return strings.HasSuffix(m.From, groupSuffix)
}

// IsBroadcast reports whether the sender is a status/broadcast list or a channel
func (m *InboundMessage) IsBroadcast() bool {
	return strings.HasSuffix(m.From, broadcastSuffix) || strings.HasSuffix(m.From, newsletterSuffix)
}

// Time returns the message time, or the zero time when absent
func (m *InboundMessage) Time() time.Time {
	if m.Timestamp <= 0 {
		return time.Time{}
	}
	return time.Unix(m.Timestamp, 0)
}

// ToInbound normalizes the wire payload
func (p *MessagePayload) ToInbound() *InboundMessage {
	msg := &InboundMessage{
		ID:        p.ID,
		From:      p.From,
		Body:      p.Body,
		Timestamp: p.Timestamp,
		FromMe:    p.FromMe,
	}

	if p.Data != nil {
		msg.Type = p.Data.Type
		msg.Caption = p.Data.Caption
		msg.FileName = p.Data.Filename
		if p.Data.Lat != nil && p.Data.Lng != nil {
			msg.HasLocation = true
			msg.Latitude = *p.Data.Lat
			msg.Longitude = *p.Data.Lng
		}
	}
	if p.Location != nil {
		msg.HasLocation = true
		msg.Latitude = p.Location.Latitude
		msg.Longitude = p.Location.Longitude
	}
	if p.Media != nil && p.Media.Filename != "" {
		msg.FileName = p.Media.Filename
	}

	if msg.Type == "" {
		msg.Type = p.inferType()
	}
	return msg
}

func (p *MessagePayload) inferType() string {
	if p.Location != nil {
		return MessageTypeLocation
	}
	if !p.HasMedia || p.Media == nil {
		return MessageTypeChat
	}
	switch mime := p.Media.Mimetype; {
	case strings.HasPrefix(mime, "image/"):
		return MessageTypeImage
	case strings.HasPrefix(mime, "video/"):
		return MessageTypeVideo
	case strings.HasPrefix(mime, "audio/"):
		return MessageTypeAudio
	default:
		return MessageTypeDocument
	}
}

// ClientConfig represents the configuration for WhatsApp client
type ClientConfig struct {
	BaseURL     string        `json:"base_url"`
	APIKey      string        `json:"api_key"`
	SessionName string        `json:"session_name"`
	Timeout     time.Duration `json:"timeout"`
	EventBuffer int           `json:"event_buffer"`
}

// ChatID turns a digits-only phone number into a user chat address
func ChatID(digits string) string {
	return digits + userChatSuffix
}
